// Package stream holds the per-camera detection socket used for live
// overlays. Each camera gets its own client with an independent circuit
// breaker, so one flapping feed cannot disturb the shared transport or
// other cameras.
package stream

import (
	"fmt"
	"math"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"

	"alert-console/internal/logging"
	"alert-console/internal/models"
	"alert-console/internal/transport"
)

// SkipPolicy reports whether a camera id should never get a socket
// (simulated or demo resources render locally without a feed).
type SkipPolicy func(cameraID string) bool

// DefaultSkipPolicy skips simulated and demo cameras.
func DefaultSkipPolicy(cameraID string) bool {
	return strings.HasPrefix(cameraID, "sim-") || strings.HasPrefix(cameraID, "demo-")
}

// Config tunes a stream Client.
type Config struct {
	// URL is the base ws:// endpoint; the camera path is appended.
	URL      string
	CameraID string
	// MaxRetries bounds reconnect attempts; past it the breaker opens
	// permanently until Reset. Default 5.
	MaxRetries int
	// BaseDelay and MaxDelay shape the backoff:
	// delay = min(BaseDelay * 2^attempt, MaxDelay). Defaults 1s / 30s.
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// Skip defaults to DefaultSkipPolicy.
	Skip SkipPolicy
	// OnFrame receives every inbound detection frame.
	OnFrame func(models.DetectionFrame)
	// Clock defaults to the real clock.
	Clock clock.Clock
}

func (c *Config) defaults() {
	if c.MaxRetries == 0 {
		c.MaxRetries = 5
	}
	if c.BaseDelay == 0 {
		c.BaseDelay = time.Second
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.Skip == nil {
		c.Skip = DefaultSkipPolicy
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
}

// Client is one camera's detection feed.
type Client struct {
	cfg    Config
	logger *logging.Logger
	clk    clock.Clock

	writeMu sync.Mutex

	mu         sync.Mutex
	conn       *websocket.Conn
	attempts   int
	open       bool
	tripped    bool // breaker open for good until Reset
	closed     bool // deliberate close, no reconnects
	generation int
	retryTimer *clock.Timer
	latest     models.DetectionFrame
}

// NewClient builds a stream client. Connect starts the feed.
func NewClient(cfg Config, logger *logging.Logger) *Client {
	cfg.defaults()
	return &Client{cfg: cfg, logger: logger, clk: cfg.Clock}
}

// Latest returns the most recent detection frame for this camera.
func (c *Client) Latest() models.DetectionFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latest
}

// Tripped reports whether the circuit breaker is permanently open.
func (c *Client) Tripped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tripped
}

// Connected reports whether the socket is currently open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// Connect opens the detection socket. Skip-policy cameras are a
// silent no-op: no connection is ever attempted for them.
func (c *Client) Connect() error {
	if c.cfg.Skip(c.cfg.CameraID) {
		c.logger.Debugf("Camera %s matches skip policy, no stream socket", c.cfg.CameraID)
		return nil
	}
	c.mu.Lock()
	if c.open || c.tripped || c.closed {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()
	return c.dial()
}

// Reset closes the breaker and reconnects from a clean attempt count.
func (c *Client) Reset() error {
	c.mu.Lock()
	c.attempts = 0
	c.tripped = false
	c.closed = false
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	c.mu.Unlock()
	return c.Connect()
}

// Close tears the feed down deliberately; no reconnect follows.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	c.open = false
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	conn := c.conn
	c.conn = nil
	c.generation++
	c.mu.Unlock()

	if conn != nil {
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stream closed"), deadline)
		return conn.Close()
	}
	return nil
}

// delay computes the backoff for a zero-based attempt index.
func (c *Client) delay(attempt int) time.Duration {
	d := time.Duration(float64(c.cfg.BaseDelay) * math.Pow(2, float64(attempt)))
	if d > c.cfg.MaxDelay || d <= 0 {
		return c.cfg.MaxDelay
	}
	return d
}

func (c *Client) endpoint() (string, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("parse stream url: %w", err)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/detection/" + c.cfg.CameraID
	return u.String(), nil
}

func (c *Client) dial() error {
	endpoint, err := c.endpoint()
	if err != nil {
		return err
	}
	conn, resp, err := websocket.DefaultDialer.Dial(endpoint, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		c.logger.Warnf("Stream dial for camera %s failed: %v", c.cfg.CameraID, err)
		c.scheduleRetry()
		return fmt.Errorf("stream dial: %w", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return nil
	}
	c.conn = conn
	c.open = true
	// The breaker counts consecutive failures; a successful open
	// starts the count over.
	c.attempts = 0
	c.generation++
	gen := c.generation
	c.mu.Unlock()

	c.logger.Infof("Stream connected for camera %s", c.cfg.CameraID)
	go c.readLoop(conn, gen)
	return nil
}

// scheduleRetry arms the breaker's backoff timer, or trips it open once
// the retry cap is exceeded.
func (c *Client) scheduleRetry() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.tripped {
		return
	}
	if c.attempts >= c.cfg.MaxRetries {
		c.tripped = true
		c.logger.Errorf("Stream breaker open for camera %s after %d attempts", c.cfg.CameraID, c.attempts)
		return
	}
	delay := c.delay(c.attempts)
	c.attempts++
	c.logger.Infof("Stream retry %d/%d for camera %s in %s", c.attempts, c.cfg.MaxRetries, c.cfg.CameraID, delay)
	c.retryTimer = c.clk.AfterFunc(delay, func() {
		c.mu.Lock()
		if c.closed || c.tripped {
			c.mu.Unlock()
			return
		}
		c.retryTimer = nil
		c.mu.Unlock()
		_ = c.dial()
	})
}

func (c *Client) handleLost(conn *websocket.Conn, gen int, cause string) {
	c.mu.Lock()
	if gen != c.generation || c.closed {
		c.mu.Unlock()
		return
	}
	c.open = false
	c.conn = nil
	c.generation++
	c.mu.Unlock()

	conn.Close()
	c.logger.Warnf("Stream for camera %s lost (%s)", c.cfg.CameraID, cause)
	c.scheduleRetry()
}

func (c *Client) readLoop(conn *websocket.Conn, gen int) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.handleLost(conn, gen, fmt.Sprintf("read: %v", err))
			return
		}
		env, err := transport.ParseEnvelope(raw)
		if err != nil {
			c.logger.Warnf("Dropping stream message for camera %s: %v", c.cfg.CameraID, err)
			continue
		}
		switch env.Type {
		case models.TypePing:
			c.writeMu.Lock()
			err := conn.WriteJSON(models.Command{Action: models.ActionPong})
			c.writeMu.Unlock()
			if err != nil {
				c.logger.Warnf("Stream pong for camera %s failed: %v", c.cfg.CameraID, err)
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
			if frame.CameraID == "" {
				frame.CameraID = c.cfg.CameraID
			}
			c.mu.Lock()
			c.latest = frame
			c.mu.Unlock()
			if c.cfg.OnFrame != nil {
				c.cfg.OnFrame(frame)
			}
		default:
			c.logger.Debugf("Stream message %s for camera %s ignored", env.Type, c.cfg.CameraID)
		}
	}
}
