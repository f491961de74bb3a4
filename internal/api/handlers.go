package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"alert-console/internal/alerts"
	"alert-console/internal/logging"
	"alert-console/internal/sound"
	"alert-console/internal/stream"
	"alert-console/internal/transport"
)

type Handler struct {
	presenter *alerts.Presenter
	sound     *sound.Controller
	conn      *transport.Client
	streams   *stream.Manager
	logger    *logging.Logger
}

func NewHandler(presenter *alerts.Presenter, snd *sound.Controller, conn *transport.Client, streams *stream.Manager, logger *logging.Logger) *Handler {
	return &Handler{presenter: presenter, sound: snd, conn: conn, streams: streams, logger: logger}
}

func (h *Handler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"connection":   h.conn.Status(),
		"client_id":    h.conn.ClientID(),
		"queued_sends": h.conn.QueueLen(),
		"phase":        h.presenter.Phase(),
		"pending":      h.presenter.PendingCount(),
	})
}

// RefreshStats asks the backend for fresh connection statistics; the
// reply arrives asynchronously over the event socket.
func (h *Handler) RefreshStats(c *gin.Context) {
	if err := h.conn.RequestStats(); err != nil {
		h.logger.Errorf("Request stats failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "requested"})
}

func (h *Handler) GetCurrentAlert(c *gin.Context) {
	entry, ok := h.presenter.Current()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "No alert displayed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"alert":      entry.Alert,
		"first_seen": entry.FirstSeen,
		"pending":    h.presenter.PendingCount(),
	})
}

// triage runs one of the presenter's dismiss triggers and maps the
// phase-guard rejection to 409, so a double-click surfaces as a
// conflict instead of a second acknowledgment.
func (h *Handler) triage(c *gin.Context, action string, trigger func() bool) {
	if !trigger() {
		c.JSON(http.StatusConflict, gin.H{"error": "No alert displayed"})
		return
	}
	h.logger.Infof("Operator action: %s", action)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) ConfirmAlert(c *gin.Context) {
	h.triage(c, "confirm", h.presenter.Confirm)
}

func (h *Handler) MarkFalseAlarm(c *gin.Context) {
	h.triage(c, "false-alarm", h.presenter.MarkFalse)
}

func (h *Handler) ViewDetails(c *gin.Context) {
	h.triage(c, "details", h.presenter.ViewDetails)
}

func (h *Handler) DismissAlert(c *gin.Context) {
	h.triage(c, "dismiss", h.presenter.Dismiss)
}

func (h *Handler) ListCameras(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"cameras": h.streams.Cameras()})
}

// WatchCamera opens the camera's detection feed and subscribes its
// channel on the event socket, so per-camera status and detections
// arrive even when the dedicated feed is skipped or down.
func (h *Handler) WatchCamera(c *gin.Context) {
	id := c.Param("camera_id")
	if _, err := h.streams.Watch(id); err != nil {
		h.logger.Errorf("Watch camera %s failed: %v", id, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	h.conn.Subscribe(transport.CameraChannel(id))
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) UnwatchCamera(c *gin.Context) {
	id := c.Param("camera_id")
	h.streams.Unwatch(id)
	h.conn.Unsubscribe(transport.CameraChannel(id))
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) GetDetections(c *gin.Context) {
	id := c.Param("camera_id")
	frame, ok := h.streams.Latest(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Camera not watched"})
		return
	}
	c.JSON(http.StatusOK, frame)
}

func (h *Handler) ResetCamera(c *gin.Context) {
	id := c.Param("camera_id")
	if err := h.streams.Reset(id); err != nil {
		h.logger.Errorf("Reset camera %s failed: %v", id, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) GetSoundSettings(c *gin.Context) {
	c.JSON(http.StatusOK, h.sound.Settings())
}

func (h *Handler) UpdateSoundSettings(c *gin.Context) {
	var s sound.Settings
	if err := c.ShouldBindJSON(&s); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if s.Volume < 0 || s.Volume > 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "volume must be between 0 and 1"})
		return
	}
	if err := h.sound.Update(c.Request.Context(), s); err != nil {
		h.logger.Errorf("Persist sound settings failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s)
}
