package transport

import (
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"

	"alert-console/internal/logging"
	"alert-console/internal/models"
)

// Status is the connection lifecycle state.
type Status string

const (
	StatusClosed       Status = "closed"
	StatusConnecting   Status = "connecting"
	StatusOpen         Status = "open"
	StatusReconnecting Status = "reconnecting"
)

// backoffSchedule holds the reconnect delays; attempts past the end
// reuse the last value.
var backoffSchedule = []time.Duration{
	1 * time.Second,
	2 * time.Second,
	4 * time.Second,
	8 * time.Second,
	16 * time.Second,
	30 * time.Second,
}

// delayFor returns the reconnect delay for a zero-based attempt index.
func delayFor(attempt int) time.Duration {
	if attempt >= len(backoffSchedule) {
		return backoffSchedule[len(backoffSchedule)-1]
	}
	if attempt < 0 {
		return backoffSchedule[0]
	}
	return backoffSchedule[attempt]
}

// Config tunes a Client.
type Config struct {
	// URL is the event endpoint, e.g. ws://host/ws.
	URL string
	// ClientID is the stable client identifier carried as a query
	// parameter so the server can reassociate session state.
	ClientID string
	// HeartbeatInterval is the ping period; a missing pong for twice
	// this duration force-closes the connection. Default 25s.
	HeartbeatInterval time.Duration
	// MaxReconnects bounds automatic reconnect attempts. Default 10.
	MaxReconnects int
	// SendQueueCap bounds the outbound queue while disconnected;
	// overflow evicts the oldest entry. Default 50.
	SendQueueCap int
	// OnStatus, if set, is invoked on every connection status change.
	OnStatus func(Status)
	// Clock defaults to the real clock; tests inject a mock.
	Clock clock.Clock
}

func (c *Config) defaults() {
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 25 * time.Second
	}
	if c.MaxReconnects == 0 {
		c.MaxReconnects = 10
	}
	if c.SendQueueCap == 0 {
		c.SendQueueCap = 50
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
}

// Client owns one persistent logical connection to the alert/event
// endpoint. It reconnects with exponential backoff, detects silent
// partitions via heartbeat, queues outbound commands while disconnected
// and keeps an idempotent subscription registry that is re-issued after
// every successful reconnect (the server tracks subscriptions per live
// socket, so they do not survive on its side).
type Client struct {
	cfg    Config
	logger *logging.Logger
	router *Router
	clk    clock.Clock

	// writeMu serializes writes; gorilla allows one concurrent writer.
	writeMu sync.Mutex

	mu         sync.Mutex
	status     Status
	conn       *websocket.Conn
	dialing    bool
	deliberate bool
	attempts   int
	lastPong   time.Time
	queue      []models.Command
	subs       map[string]bool
	generation int
	retryTimer *clock.Timer
	hbStop     chan struct{}
}

// Subscription channel ids.
const (
	ChannelAlerts       = "alerts"
	cameraChannelPrefix = "camera:"
)

// CameraChannel builds the channel id for one camera's feed.
func CameraChannel(cameraID string) string {
	return cameraChannelPrefix + cameraID
}

// NewClient builds a Client. Connect must be called to open it.
func NewClient(cfg Config, router *Router, logger *logging.Logger) *Client {
	cfg.defaults()
	return &Client{
		cfg:    cfg,
		logger: logger,
		router: router,
		clk:    cfg.Clock,
		status: StatusClosed,
		subs:   make(map[string]bool),
	}
}

// Status returns the current connection status.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// ClientID returns the stable client identifier.
func (c *Client) ClientID() string {
	return c.cfg.ClientID
}

// Connect opens the connection. It is idempotent: a no-op when already
// open or connecting. A failed dial schedules the normal reconnect path
// and returns the dial error; callers may treat it as advisory.
func (c *Client) Connect() error {
	c.mu.Lock()
	if c.status == StatusOpen || c.status == StatusConnecting {
		c.mu.Unlock()
		return nil
	}
	c.deliberate = false
	c.attempts = 0
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	c.setStatusLocked(StatusConnecting)
	c.mu.Unlock()

	return c.dial()
}

// Disconnect closes the connection deliberately: pending reconnect and
// heartbeat timers are cancelled and no auto-reconnect follows.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	c.deliberate = true
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	c.stopHeartbeatLocked()
	conn := c.conn
	c.conn = nil
	c.generation++
	c.setStatusLocked(StatusClosed)
	c.mu.Unlock()

	if conn != nil {
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect"), deadline)
		return conn.Close()
	}
	return nil
}

// Send transmits a command immediately when open, otherwise it joins the
// bounded outbound queue and is flushed in arrival order on the next
// open. At capacity the oldest queued command is evicted.
func (c *Client) Send(cmd models.Command) error {
	c.mu.Lock()
	if c.status == StatusOpen && c.conn != nil {
		conn := c.conn
		c.mu.Unlock()
		if err := c.writeJSON(conn, cmd); err != nil {
			return fmt.Errorf("send %s: %w", cmd.Action, err)
		}
		return nil
	}
	if len(c.queue) >= c.cfg.SendQueueCap {
		c.logger.Warnf("Outbound queue full, evicting oldest command (%s)", c.queue[0].Action)
		c.queue = c.queue[1:]
	}
	c.queue = append(c.queue, cmd)
	c.mu.Unlock()
	return nil
}

// Subscribe registers a channel in the subscription registry and, when
// open, issues the subscribe command. Subscribing twice is a no-op.
func (c *Client) Subscribe(channel string) {
	c.mu.Lock()
	if c.subs[channel] {
		c.mu.Unlock()
		return
	}
	c.subs[channel] = true
	open := c.status == StatusOpen
	conn := c.conn
	c.mu.Unlock()

	if open && conn != nil {
		if err := c.writeJSON(conn, subscribeCommand(channel, true)); err != nil {
			c.logger.Warnf("Subscribe %s failed, will re-issue on reconnect: %v", channel, err)
		}
	}
}

// Unsubscribe removes a channel from the registry and, when open, issues
// the unsubscribe command. Unsubscribing an unknown channel is a no-op.
func (c *Client) Unsubscribe(channel string) {
	c.mu.Lock()
	if !c.subs[channel] {
		c.mu.Unlock()
		return
	}
	delete(c.subs, channel)
	open := c.status == StatusOpen
	conn := c.conn
	c.mu.Unlock()

	if open && conn != nil {
		if err := c.writeJSON(conn, subscribeCommand(channel, false)); err != nil {
			c.logger.Warnf("Unsubscribe %s failed: %v", channel, err)
		}
	}
}

// RequestStats asks the server for its connection statistics; the reply
// arrives through Router.OnStats.
func (c *Client) RequestStats() error {
	return c.Send(models.Command{Action: models.ActionGetStats})
}

// QueueLen reports the number of commands waiting for the next open.
func (c *Client) QueueLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

func subscribeCommand(channel string, subscribe bool) models.Command {
	if camID, ok := cameraFromChannel(channel); ok {
		action := models.ActionSubscribeCamera
		if !subscribe {
			action = models.ActionUnsubscribeCamera
		}
		return models.Command{Action: action, CameraID: camID}
	}
	action := models.ActionSubscribeAlerts
	if !subscribe {
		action = models.ActionUnsubscribeAlerts
	}
	return models.Command{Action: action}
}

func cameraFromChannel(channel string) (string, bool) {
	if len(channel) > len(cameraChannelPrefix) && channel[:len(cameraChannelPrefix)] == cameraChannelPrefix {
		return channel[len(cameraChannelPrefix):], true
	}
	return "", false
}

func (c *Client) endpoint() (string, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("parse endpoint url: %w", err)
	}
	q := u.Query()
	q.Set("client_id", c.cfg.ClientID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// dial performs one connection attempt. Failure feeds the reconnect
// scheduler unless the client was deliberately closed meanwhile.
func (c *Client) dial() error {
	// Connect can race a backoff timer whose callback is already past
	// its cancellation window; only one dial may be in flight.
	c.mu.Lock()
	if c.dialing {
		c.mu.Unlock()
		return nil
	}
	c.dialing = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.dialing = false
		c.mu.Unlock()
	}()

	endpoint, err := c.endpoint()
	if err != nil {
		c.mu.Lock()
		c.setStatusLocked(StatusClosed)
		c.mu.Unlock()
		return err
	}

	conn, resp, err := websocket.DefaultDialer.Dial(endpoint, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		c.logger.Warnf("Dial %s failed: %v", c.cfg.URL, err)
		c.scheduleReconnect()
		return fmt.Errorf("dial: %w", err)
	}

	c.mu.Lock()
	if c.deliberate {
		// Disconnect raced the dial; drop the fresh socket.
		c.mu.Unlock()
		conn.Close()
		return nil
	}
	c.conn = conn
	c.attempts = 0
	c.lastPong = c.clk.Now()
	c.generation++
	gen := c.generation
	c.setStatusLocked(StatusOpen)
	queued := c.queue
	c.queue = nil
	subs := make([]string, 0, len(c.subs))
	for ch := range c.subs {
		subs = append(subs, ch)
	}
	c.startHeartbeatLocked(conn, gen)
	c.mu.Unlock()

	c.logger.Infof("Connected to %s (client_id=%s)", c.cfg.URL, c.cfg.ClientID)

	// Registry subscriptions first so the flushed commands land on a
	// subscribed session, then the queue in arrival order.
	for _, ch := range subs {
		if err := c.writeJSON(conn, subscribeCommand(ch, true)); err != nil {
			c.logger.Warnf("Re-subscribe %s failed: %v", ch, err)
		}
	}
	for _, cmd := range queued {
		if err := c.writeJSON(conn, cmd); err != nil {
			c.logger.Warnf("Flush of queued %s failed: %v", cmd.Action, err)
			break
		}
	}

	go c.readLoop(conn, gen)
	return nil
}

// scheduleReconnect arms the backoff timer for the next attempt, or
// gives up once the attempt cap is exceeded.
func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.deliberate {
		c.setStatusLocked(StatusClosed)
		return
	}
	if c.attempts >= c.cfg.MaxReconnects {
		c.logger.Errorf("Giving up after %d reconnect attempts; manual connect required", c.attempts)
		c.setStatusLocked(StatusClosed)
		return
	}
	delay := delayFor(c.attempts)
	c.attempts++
	c.setStatusLocked(StatusReconnecting)
	c.logger.Infof("Reconnect attempt %d/%d in %s", c.attempts, c.cfg.MaxReconnects, delay)
	c.retryTimer = c.clk.AfterFunc(delay, func() {
		c.mu.Lock()
		if c.deliberate {
			c.mu.Unlock()
			return
		}
		c.retryTimer = nil
		c.mu.Unlock()
		_ = c.dial()
	})
}

// handleLost runs when a connection drops for any non-deliberate reason.
func (c *Client) handleLost(conn *websocket.Conn, gen int, cause string) {
	c.mu.Lock()
	if gen != c.generation || c.deliberate {
		c.mu.Unlock()
		// Superseded socket; whoever advanced the generation owns the
		// live one, this one just needs closing.
		conn.Close()
		return
	}
	c.stopHeartbeatLocked()
	c.conn = nil
	c.generation++
	c.mu.Unlock()

	conn.Close()
	c.logger.Warnf("Connection lost (%s)", cause)
	c.scheduleReconnect()
}

func (c *Client) readLoop(conn *websocket.Conn, gen int) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.handleLost(conn, gen, fmt.Sprintf("read: %v", err))
			return
		}
		env, err := ParseEnvelope(raw)
		if err != nil {
			c.logger.Warnf("Dropping inbound message: %v", err)
			continue
		}
		switch env.Type {
		case models.TypePing:
			if err := c.writeJSON(conn, models.Command{Action: models.ActionPong}); err != nil {
				c.logger.Warnf("Pong reply failed: %v", err)
			}
		case models.TypePong:
			c.mu.Lock()
			c.lastPong = c.clk.Now()
			c.mu.Unlock()
		default:
			c.router.Dispatch(env)
		}
	}
}

// startHeartbeatLocked launches the heartbeat loop for the given
// connection generation. Caller holds c.mu.
func (c *Client) startHeartbeatLocked(conn *websocket.Conn, gen int) {
	c.stopHeartbeatLocked()
	stop := make(chan struct{})
	c.hbStop = stop
	interval := c.cfg.HeartbeatInterval
	ticker := c.clk.Ticker(interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				c.mu.Lock()
				stale := c.clk.Now().Sub(c.lastPong) >= 2*interval
				current := gen == c.generation
				c.mu.Unlock()
				if !current {
					return
				}
				if stale {
					// Silent partition: reuse the normal reconnect path.
					c.handleLost(conn, gen, "heartbeat timeout")
					return
				}
				if err := c.writeJSON(conn, models.Command{Action: models.ActionPing}); err != nil {
					c.handleLost(conn, gen, fmt.Sprintf("ping write: %v", err))
					return
				}
			}
		}
	}()
}

// stopHeartbeatLocked cancels the heartbeat loop. Caller holds c.mu.
func (c *Client) stopHeartbeatLocked() {
	if c.hbStop != nil {
		close(c.hbStop)
		c.hbStop = nil
	}
}

func (c *Client) writeJSON(conn *websocket.Conn, v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(v)
}

func (c *Client) setStatusLocked(s Status) {
	if c.status == s {
		return
	}
	c.status = s
	if c.cfg.OnStatus != nil {
		cb := c.cfg.OnStatus
		go cb(s)
	}
}
