package dto

import "github.com/google/uuid"

type LoginRequest struct {
	Identifier string `json:"identifier" binding:"required"`
	Secret     string `json:"secret" binding:"required"`
}

type LoginResponse struct {
	Subject string `json:"subject"`
}

type EnrollRequest struct {
	Name string `json:"name" binding:"required"`
}

type EnrollResponse struct {
	Name      string `json:"name"`
	Captured  int    `json:"captured"`
	Attempts  int    `json:"attempts"`
	Encodings int    `json:"encodings"`
}

type IdentityResponse struct {
	Name      string `json:"name"`
	Encodings int    `json:"encodings"`
}

type IdentityListResponse struct {
	Identities []IdentityResponse `json:"identities"`
	Total      int                `json:"total"`
}

type DeleteIdentityResponse struct {
	Name    string `json:"name"`
	Removed int    `json:"removed"`
}

// DoorResponse is the outcome of one POST /v1/door/open.
type DoorResponse struct {
	State           string   `json:"state"`
	Identity        string   `json:"identity,omitempty"`
	Distance        *float64 `json:"distance,omitempty"`
	FramesAttempted int      `json:"frames_attempted"`
	FramesRead      int      `json:"frames_read"`
	UnknownFrames   int      `json:"unknown_frames"`
	Alerted         bool     `json:"alerted"`
	Message         string   `json:"message"`
	Error           string   `json:"error,omitempty"`
}

type AccessLogResponse struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Time     string    `json:"time"`
	ImageURL string    `json:"image_url"`
	Success  bool      `json:"success"`
}

type AccessLogListResponse struct {
	Logs  []AccessLogResponse `json:"logs"`
	Total int                 `json:"total"`
}

type StatusResponse struct {
	Phase   string `json:"phase"`
	Message string `json:"message"`
	Current int    `json:"current,omitempty"`
	Total   int    `json:"total,omitempty"`
	At      string `json:"at"`
}

type NotificationResponse struct {
	Topic    string `json:"topic"`
	Title    string `json:"title"`
	Body     string `json:"body"`
	ImageURL string `json:"image_url,omitempty"`
	At       string `json:"at"`
}

const (
	WSTypeStatus       = "status"
	WSTypeNotification = "notification"
)

// WSMessage is a WebSocket message for real-time delivery.
type WSMessage struct {
	Type         string                `json:"type"` // status, notification
	Topic        string                `json:"topic,omitempty"`
	Status       *StatusResponse       `json:"status,omitempty"`
	Notification *NotificationResponse `json:"notification,omitempty"`
}
