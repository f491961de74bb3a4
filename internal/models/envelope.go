package models

import "encoding/json"

// MessageType tags inbound frames. The set is closed; anything else is
// rejected by the router.
type MessageType string

const (
	TypeAlert        MessageType = "new_alert"
	TypeStatus       MessageType = "status_update"
	TypeDetection    MessageType = "detection"
	TypeConnected    MessageType = "connected"
	TypeSubscribed   MessageType = "subscribed"
	TypeUnsubscribed MessageType = "unsubscribed"
	TypePing         MessageType = "ping"
	TypePong         MessageType = "pong"
	TypeError        MessageType = "error"
	TypeCameraStatus MessageType = "camera_status"
	TypeStats        MessageType = "stats"
)

// knownTypes is the closed set of inbound tags.
var knownTypes = map[MessageType]bool{
	TypeAlert:        true,
	TypeStatus:       true,
	TypeDetection:    true,
	TypeConnected:    true,
	TypeSubscribed:   true,
	TypeUnsubscribed: true,
	TypePing:         true,
	TypePong:         true,
	TypeError:        true,
	TypeCameraStatus: true,
	TypeStats:        true,
}

// Known reports whether t belongs to the closed inbound tag set.
func (t MessageType) Known() bool {
	return knownTypes[t]
}

// Envelope is the inbound wire frame. Data stays raw until the router
// decodes it per type.
type Envelope struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
	Channel   string          `json:"channel,omitempty"`
	CameraID  string          `json:"camera_id,omitempty"`
	Message   string          `json:"message,omitempty"`
	Status    string          `json:"status,omitempty"`

	// Detection frames inline their fields instead of nesting under data.
	FrameWidth       int         `json:"frame_width,omitempty"`
	FrameHeight      int         `json:"frame_height,omitempty"`
	ProcessingTimeMS float64     `json:"processing_time_ms,omitempty"`
	Detections       []Detection `json:"detections,omitempty"`
}

// Command is the outbound wire frame: an action plus a flat payload.
type Command struct {
	Action   string `json:"action"`
	CameraID string `json:"camera_id,omitempty"`
}

// Outbound actions understood by the backend.
const (
	ActionPing              = "ping"
	ActionPong              = "pong"
	ActionSubscribeAlerts   = "subscribe_alerts"
	ActionUnsubscribeAlerts = "unsubscribe_alerts"
	ActionSubscribeCamera   = "subscribe_camera"
	ActionUnsubscribeCamera = "unsubscribe_camera"
	ActionGetStats          = "get_stats"
)
