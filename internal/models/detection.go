package models

// Detection is a single detected object within a frame.
type Detection struct {
	ClassName     string  `json:"class_name"`
	Confidence    float64 `json:"confidence"`
	X1            float64 `json:"x1"`
	Y1            float64 `json:"y1"`
	X2            float64 `json:"x2"`
	Y2            float64 `json:"y2"`
	Width         float64 `json:"width,omitempty"`
	Height        float64 `json:"height,omitempty"`
	DetectionType string  `json:"detection_type,omitempty"`
	Severity      string  `json:"severity,omitempty"`
}

// DetectionFrame is the per-camera overlay payload: the latest set of
// detections plus the frame geometry they were computed against.
type DetectionFrame struct {
	CameraID         string      `json:"camera_id"`
	Timestamp        string      `json:"timestamp,omitempty"`
	FrameWidth       int         `json:"frame_width,omitempty"`
	FrameHeight      int         `json:"frame_height,omitempty"`
	ProcessingTimeMS float64     `json:"processing_time_ms,omitempty"`
	Detections       []Detection `json:"detections"`
}

// StatusSnapshot is the periodic system status broadcast.
type StatusSnapshot struct {
	CamerasOnline int    `json:"cameras_online"`
	AlertsToday   int    `json:"alerts_today"`
	SystemStatus  string `json:"system_status"`
}

// CameraStatus reports one camera going online/offline.
type CameraStatus struct {
	CameraID string `json:"camera_id"`
	Status   string `json:"status"`
}
