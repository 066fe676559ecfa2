package models

import (
	"image"
	"time"
)

type DecisionKind string

const (
	DecisionEntry DecisionKind = "entry"
	DecisionAlert DecisionKind = "alert"
)

// Decision is emitted by the recognition engine and carried out by the
// effect executor.
type Decision struct {
	Kind          DecisionKind
	Identity      string
	Distance      float64
	FrameIndex    int
	UnknownStreak int
	// Frame is the evidence image: the matched frame for an entry, the most
	// recent unknown frame for an alert.
	Frame image.Image
	At    time.Time
}
