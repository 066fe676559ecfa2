package models

import "time"

type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhasePreview    Phase = "preview"
	PhaseEnrolling  Phase = "enrolling"
	PhaseScanning   Phase = "scanning"
	PhaseRecognized Phase = "recognized"
	PhaseAlerted    Phase = "alerted"
	PhaseExhausted  Phase = "exhausted"
	PhaseRegistered Phase = "registered"
	PhaseFailed     Phase = "failed"
)

// Status is the single human-readable status indicator of the station.
type Status struct {
	Phase   Phase     `json:"phase"`
	Message string    `json:"message"`
	Current int       `json:"current,omitempty"`
	Total   int       `json:"total,omitempty"`
	At      time.Time `json:"at"`
}

// Terminal reports whether no invocation is in progress.
func (s Status) Terminal() bool {
	return s.Phase != PhaseScanning && s.Phase != PhaseEnrolling
}
