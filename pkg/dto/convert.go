package dto

import (
	"time"

	"github.com/your-org/doorguard/internal/models"
)

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func FromStatus(s models.Status) StatusResponse {
	return StatusResponse{
		Phase:   string(s.Phase),
		Message: s.Message,
		Current: s.Current,
		Total:   s.Total,
		At:      formatTime(s.At),
	}
}

func FromNotification(n models.Notification) NotificationResponse {
	return NotificationResponse{
		Topic:    n.Topic,
		Title:    n.Title,
		Body:     n.Body,
		ImageURL: n.ImageURL,
		At:       formatTime(n.At),
	}
}

func FromAccessLog(e models.AccessLogEntry) AccessLogResponse {
	return AccessLogResponse{
		ID:       e.ID,
		Name:     e.Name,
		Time:     formatTime(e.Time),
		ImageURL: e.ImageURL,
		Success:  e.Success,
	}
}
