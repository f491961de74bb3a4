// Package sound plays the looping alert sound and owns the operator's
// persisted audio preferences. Playback failures never propagate: a
// broken asset set falls back to the synthesized tone, and a broken
// audio device degrades to silence while the visual alert still shows.
package sound

import (
	"context"
	"sync"

	"alert-console/internal/logging"
	"alert-console/internal/store"
)

// Controller selects a playback strategy per alert and applies the
// muted/volume preferences. It satisfies the presenter's Sounder.
type Controller struct {
	logger   *logging.Logger
	st       *store.Store
	primary  Strategy
	fallback Strategy

	mu       sync.Mutex
	settings Settings
	playing  Strategy
}

// NewController wires the decoded-asset strategy as primary and the
// synthesized tone as fallback. Either may be nil.
func NewController(settings Settings, primary, fallback Strategy, st *store.Store, logger *logging.Logger) *Controller {
	return &Controller{
		logger:   logger,
		st:       st,
		primary:  primary,
		fallback: fallback,
		settings: settings,
	}
}

// Play starts the looping sound for an alert of the given severity.
// Muted consoles stay quiet; a primary strategy failure falls back to
// the tone, and a double failure is logged and swallowed.
func (c *Controller) Play(severity string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.settings.Muted {
		c.logger.Debugf("Alert sound suppressed, console muted")
		return
	}
	volume := c.settings.Volume
	if c.primary != nil {
		err := c.primary.Start(severity, volume)
		if err == nil {
			c.playing = c.primary
			return
		}
		c.logger.Warnf("Asset playback failed, falling back to tone: %v", err)
	}
	if c.fallback != nil {
		if err := c.fallback.Start(severity, volume); err != nil {
			c.logger.Errorf("Tone playback failed, alert will be silent: %v", err)
			return
		}
		c.playing = c.fallback
	}
}

// Stop halts playback. Safe to call repeatedly or when nothing plays.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.playing == nil {
		return
	}
	c.playing.Stop()
	c.playing = nil
}

// Settings returns the current preferences.
func (c *Controller) Settings() Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// Update replaces the preferences and persists them. Muting while a
// sound is looping stops it immediately.
func (c *Controller) Update(ctx context.Context, s Settings) error {
	c.mu.Lock()
	c.settings = s
	if s.Muted && c.playing != nil {
		c.playing.Stop()
		c.playing = nil
	}
	c.mu.Unlock()

	if c.st == nil {
		return nil
	}
	return SaveSettings(ctx, c.st, s)
}
