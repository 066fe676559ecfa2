package models

import (
	"time"

	"github.com/google/uuid"
)

// AccessLogEntry is one append-only audit record.
type AccessLogEntry struct {
	ID       uuid.UUID `json:"id" db:"id"`
	Name     string    `json:"name" db:"name"`
	Time     time.Time `json:"time" db:"time"`
	ImageURL string    `json:"image_url" db:"image_url"`
	Success  bool      `json:"success" db:"success"`
}
