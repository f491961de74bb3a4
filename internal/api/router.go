// Package api exposes the console's local control surface: notification
// triage, camera feed control and sound preferences. It binds to
// loopback for the dashboard shell; it is not an internet-facing API.
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

func NewRouter(presenter *alerts.Presenter, snd *sound.Controller, conn *transport.Client, streams *stream.Manager, logger *logging.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLoggingMiddleware(logger))

	h := NewHandler(presenter, snd, conn, streams, logger)
	api := r.Group("/api/v0")
	{
		api.GET("/status", h.GetStatus)
		api.POST("/stats/refresh", h.RefreshStats)

		api.GET("/alerts/current", h.GetCurrentAlert)
		api.POST("/alerts/current/confirm", h.ConfirmAlert)
		api.POST("/alerts/current/false-alarm", h.MarkFalseAlarm)
		api.POST("/alerts/current/details", h.ViewDetails)
		api.POST("/alerts/current/dismiss", h.DismissAlert)

		api.GET("/cameras", h.ListCameras)
		api.POST("/cameras/:camera_id/watch", h.WatchCamera)
		api.DELETE("/cameras/:camera_id/watch", h.UnwatchCamera)
		api.GET("/cameras/:camera_id/detections", h.GetDetections)
		api.POST("/cameras/:camera_id/reset", h.ResetCamera)

		api.GET("/sound", h.GetSoundSettings)
		api.PUT("/sound", h.UpdateSoundSettings)
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}
