package models

import "time"

type Notification struct {
	Topic    string    `json:"topic"`
	Title    string    `json:"title"`
	Body     string    `json:"body"`
	ImageURL string    `json:"image_url,omitempty"`
	At       time.Time `json:"at"`
}
