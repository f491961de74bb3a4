package alerts

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"alert-console/internal/logging"
	"alert-console/internal/models"
)

// Phase is the presenter's display state.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseDisplaying Phase = "displaying"
	PhaseDismissing Phase = "dismissing"
)

const (
	settleDelay   = 300 * time.Millisecond
	flashDuration = 3 * time.Second
)

// Sounder starts and stops the looping alert sound. The presenter never
// sees playback errors; the sound layer swallows them.
type Sounder interface {
	Play(severity string)
	Stop()
}

// Hooks are the presenter's upstream callbacks. Acknowledge fires
// exactly once per display cycle regardless of which trigger dismissed
// the alert. Confirm, MarkFalse and ViewDetails fire before the common
// dismiss path for their respective triggers.
type Hooks struct {
	Acknowledge func(models.AlertEvent)
	Confirm     func(models.AlertEvent)
	MarkFalse   func(models.AlertEvent)
	ViewDetails func(models.AlertEvent)
	Flash       func(time.Duration)
}

// Presenter governs the single currently-displayed alert. Alerts that
// arrive while one is displayed only queue up; they never preempt it.
type Presenter struct {
	logger *logging.Logger
	clk    clock.Clock
	queue  *IngestQueue
	sound  Sounder
	hooks  Hooks

	// autoClose > 0 dismisses a displayed alert after that duration.
	autoClose time.Duration

	mu        sync.Mutex
	phase     Phase
	current   *models.QueueEntry
	countdown *clock.Timer
	settle    *clock.Timer
	closed    bool
}

// NewPresenter builds an idle presenter. autoClose = 0 disables the
// auto-dismiss countdown.
func NewPresenter(queue *IngestQueue, sound Sounder, hooks Hooks, autoClose time.Duration, clk clock.Clock, logger *logging.Logger) *Presenter {
	if clk == nil {
		clk = clock.New()
	}
	return &Presenter{
		logger:    logger,
		clk:       clk,
		queue:     queue,
		sound:     sound,
		hooks:     hooks,
		autoClose: autoClose,
		phase:     PhaseIdle,
	}
}

// Phase returns the current display phase.
func (p *Presenter) Phase() Phase {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.phase
}

// Current returns the displayed entry, if any.
func (p *Presenter) Current() (models.QueueEntry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return models.QueueEntry{}, false
	}
	return *p.current, true
}

// PendingCount reports queued-but-undisplayed alerts, for the
// "N more pending" indicator.
func (p *Presenter) PendingCount() int {
	return p.queue.Len()
}

// Notify ingests one alert event and promotes it immediately when the
// presenter is idle. Duplicates are dropped by the queue.
func (p *Presenter) Notify(alert models.AlertEvent) {
	if !p.queue.Enqueue(alert) {
		return
	}
	p.promote()
}

// promote moves the oldest queued alert into the display slot. Only an
// idle presenter promotes; otherwise the alert stays queued.
func (p *Presenter) promote() {
	p.mu.Lock()
	if p.phase != PhaseIdle || p.closed {
		p.mu.Unlock()
		return
	}
	entry, ok := p.queue.Promote()
	if !ok {
		p.mu.Unlock()
		return
	}
	p.current = &entry
	p.phase = PhaseDisplaying
	if p.autoClose > 0 {
		p.countdown = p.clk.AfterFunc(p.autoClose, func() {
			p.Dismiss()
		})
	}
	severity := entry.Alert.Severity
	p.mu.Unlock()

	p.logger.Infof("Displaying alert %s (severity=%s, camera=%s)", entry.Alert.ID, severity, entry.Alert.CameraID)
	p.sound.Play(severity)
	if p.hooks.Flash != nil {
		p.hooks.Flash(flashDuration)
	}
}

// Confirm resolves the displayed alert: the confirm hook runs first,
// then the common dismiss path. Returns false when nothing is displayed.
func (p *Presenter) Confirm() bool {
	return p.finish(p.hooks.Confirm)
}

// MarkFalse flags the displayed alert as a false alarm.
func (p *Presenter) MarkFalse() bool {
	return p.finish(p.hooks.MarkFalse)
}

// ViewDetails opens the displayed alert for review and dismisses the
// notification.
func (p *Presenter) ViewDetails() bool {
	return p.finish(p.hooks.ViewDetails)
}

// Dismiss closes the displayed alert with no triage decision.
func (p *Presenter) Dismiss() bool {
	return p.finish(nil)
}

// finish runs the shared Displaying -> Dismissing transition. The phase
// guard makes it a no-op for repeated triggers within one cycle, which
// is what bounds the acknowledgment hook to exactly one call.
func (p *Presenter) finish(trigger func(models.AlertEvent)) bool {
	p.mu.Lock()
	if p.phase != PhaseDisplaying || p.current == nil {
		p.mu.Unlock()
		return false
	}
	alert := p.current.Alert
	p.phase = PhaseDismissing
	if p.countdown != nil {
		p.countdown.Stop()
		p.countdown = nil
	}
	p.mu.Unlock()

	if trigger != nil {
		trigger(alert)
	}
	p.sound.Stop()
	if p.hooks.Acknowledge != nil {
		p.hooks.Acknowledge(alert)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return true
	}
	// Settle delay lets the exit transition play before the next
	// alert takes the slot.
	p.settle = p.clk.AfterFunc(settleDelay, p.settleDone)
	p.mu.Unlock()
	return true
}

func (p *Presenter) settleDone() {
	p.mu.Lock()
	if p.phase != PhaseDismissing {
		p.mu.Unlock()
		return
	}
	p.current = nil
	p.phase = PhaseIdle
	p.settle = nil
	p.mu.Unlock()

	p.promote()
}

// Close cancels the presenter's timers and stops playback. Queued
// alerts stay in the ingest queue.
func (p *Presenter) Close() {
	p.mu.Lock()
	p.closed = true
	if p.countdown != nil {
		p.countdown.Stop()
		p.countdown = nil
	}
	if p.settle != nil {
		p.settle.Stop()
		p.settle = nil
	}
	p.mu.Unlock()
	p.sound.Stop()
}
