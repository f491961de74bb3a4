package models

import "time"

// Severity levels, ordered from least to most urgent.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// BoundingBox is the detection rectangle in frame coordinates.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// AlertEvent is one suspected threat instance as delivered by the backend.
type AlertEvent struct {
	ID            string       `json:"id"`
	CameraID      string       `json:"camera_id"`
	CameraName    string       `json:"camera_name,omitempty"`
	Location      string       `json:"location,omitempty"`
	WeaponType    string       `json:"weapon_type"`
	Confidence    float64      `json:"confidence"`
	ImageSnapshot string       `json:"image_snapshot,omitempty"`
	BoundingBox   *BoundingBox `json:"bounding_box,omitempty"`
	Timestamp     time.Time    `json:"timestamp"`
	Severity      string       `json:"severity,omitempty"`
}

// DeriveSeverity fills Severity when the backend omitted it: firearms are
// critical, everything else is high.
func (a *AlertEvent) DeriveSeverity() {
	if a.Severity != "" {
		return
	}
	switch a.WeaponType {
	case "pistol", "rifle", "gun":
		a.Severity = SeverityCritical
	default:
		a.Severity = SeverityHigh
	}
}

// QueueEntry is an AlertEvent plus ingestion metadata. Identity is the
// alert id.
type QueueEntry struct {
	Alert     AlertEvent
	FirstSeen time.Time
}
