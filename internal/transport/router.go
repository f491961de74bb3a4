package transport

import (
	"encoding/json"
	"fmt"
	"sync"

	"alert-console/internal/logging"
	"alert-console/internal/models"
)

// DetectionWildcard subscribes a detection handler to every camera.
const DetectionWildcard = "*"

// Disposer unregisters a handler. Callers must invoke it when they stop
// caring about the events, or the handler leaks for the router's lifetime.
type Disposer func()

// Router parses inbound envelopes and dispatches them by type to
// registered handlers. Parse failures and unknown tags are logged and
// dropped, never surfaced to the connection.
type Router struct {
	logger *logging.Logger

	mu          sync.Mutex
	nextID      int
	alertHs     map[int]func(models.AlertEvent)
	statusHs    map[int]func(models.StatusSnapshot)
	cameraHs    map[int]func(models.CameraStatus)
	statsHs     map[int]func(json.RawMessage)
	detectionHs map[string]map[int]func(models.DetectionFrame)
}

func NewRouter(logger *logging.Logger) *Router {
	return &Router{
		logger:      logger,
		alertHs:     make(map[int]func(models.AlertEvent)),
		statusHs:    make(map[int]func(models.StatusSnapshot)),
		cameraHs:    make(map[int]func(models.CameraStatus)),
		statsHs:     make(map[int]func(json.RawMessage)),
		detectionHs: make(map[string]map[int]func(models.DetectionFrame)),
	}
}

// ParseEnvelope decodes one raw inbound frame and rejects unknown tags.
func ParseEnvelope(raw []byte) (models.Envelope, error) {
	var env models.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return models.Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if !env.Type.Known() {
		return models.Envelope{}, fmt.Errorf("unknown message type %q", env.Type)
	}
	return env, nil
}

// OnAlert registers a handler for alert events.
func (r *Router) OnAlert(h func(models.AlertEvent)) Disposer {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.alertHs[id] = h
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.alertHs, id)
	}
}

// OnStatus registers a handler for system status snapshots.
func (r *Router) OnStatus(h func(models.StatusSnapshot)) Disposer {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.statusHs[id] = h
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.statusHs, id)
	}
}

// OnCameraStatus registers a handler for per-camera online/offline updates.
func (r *Router) OnCameraStatus(h func(models.CameraStatus)) Disposer {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.cameraHs[id] = h
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.cameraHs, id)
	}
}

// OnStats registers a handler for get_stats replies. The payload stays
// raw; its shape is owned by the backend.
func (r *Router) OnStats(h func(json.RawMessage)) Disposer {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.statsHs[id] = h
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.statsHs, id)
	}
}

// OnDetection registers a handler for detection frames of one camera.
// Pass DetectionWildcard to receive frames from every camera.
func (r *Router) OnDetection(cameraID string, h func(models.DetectionFrame)) Disposer {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	if r.detectionHs[cameraID] == nil {
		r.detectionHs[cameraID] = make(map[int]func(models.DetectionFrame))
	}
	r.detectionHs[cameraID][id] = h
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if hs := r.detectionHs[cameraID]; hs != nil {
			delete(hs, id)
			if len(hs) == 0 {
				delete(r.detectionHs, cameraID)
			}
		}
	}
}

// Dispatch routes one parsed envelope to its registered handlers.
// Handlers run on the caller's goroutine so delivery order is preserved.
func (r *Router) Dispatch(env models.Envelope) {
	switch env.Type {
	case models.TypeAlert:
		var alert models.AlertEvent
		if err := json.Unmarshal(env.Data, &alert); err != nil {
			r.logger.Warnf("Dropping malformed alert payload: %v", err)
			return
		}
		if alert.ID == "" {
			r.logger.Warnf("Dropping alert without id from camera %s", alert.CameraID)
			return
		}
		alert.DeriveSeverity()
		for _, h := range r.alertHandlers() {
			h(alert)
		}

	case models.TypeStatus:
		var snap models.StatusSnapshot
		if err := json.Unmarshal(env.Data, &snap); err != nil {
			r.logger.Warnf("Dropping malformed status payload: %v", err)
			return
		}
		for _, h := range r.statusHandlers() {
			h(snap)
		}

	case models.TypeCameraStatus:
		status := models.CameraStatus{CameraID: env.CameraID, Status: env.Status}
		if env.Data != nil {
			if err := json.Unmarshal(env.Data, &status); err != nil {
				r.logger.Warnf("Dropping malformed camera status payload: %v", err)
				return
			}
		}
		for _, h := range r.cameraStatusHandlers() {
			h(status)
		}

	case models.TypeDetection:
		frame := models.DetectionFrame{
			CameraID:         env.CameraID,
			Timestamp:        env.Timestamp,
			FrameWidth:       env.FrameWidth,
			FrameHeight:      env.FrameHeight,
			ProcessingTimeMS: env.ProcessingTimeMS,
			Detections:       env.Detections,
		}
		for _, h := range r.detectionHandlers(frame.CameraID) {
			h(frame)
		}

	case models.TypeStats:
		for _, h := range r.statsHandlers() {
			h(env.Data)
		}

	case models.TypeConnected, models.TypeSubscribed, models.TypeUnsubscribed:
		r.logger.Debugf("Server message %s: channel=%s %s", env.Type, env.Channel, env.Message)

	case models.TypeError:
		r.logger.Warnf("Server error message: %s", env.Message)

	default:
		// ping/pong are handled by the connection owner before dispatch.
		r.logger.Debugf("Unrouted message type %q", env.Type)
	}
}

func (r *Router) alertHandlers() []func(models.AlertEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	hs := make([]func(models.AlertEvent), 0, len(r.alertHs))
	for _, h := range r.alertHs {
		hs = append(hs, h)
	}
	return hs
}

func (r *Router) statusHandlers() []func(models.StatusSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	hs := make([]func(models.StatusSnapshot), 0, len(r.statusHs))
	for _, h := range r.statusHs {
		hs = append(hs, h)
	}
	return hs
}

func (r *Router) cameraStatusHandlers() []func(models.CameraStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	hs := make([]func(models.CameraStatus), 0, len(r.cameraHs))
	for _, h := range r.cameraHs {
		hs = append(hs, h)
	}
	return hs
}

func (r *Router) statsHandlers() []func(json.RawMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	hs := make([]func(json.RawMessage), 0, len(r.statsHs))
	for _, h := range r.statsHs {
		hs = append(hs, h)
	}
	return hs
}

func (r *Router) detectionHandlers(cameraID string) []func(models.DetectionFrame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var hs []func(models.DetectionFrame)
	for _, h := range r.detectionHs[cameraID] {
		hs = append(hs, h)
	}
	for _, h := range r.detectionHs[DetectionWildcard] {
		hs = append(hs, h)
	}
	return hs
}
