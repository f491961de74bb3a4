package transport

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"

	"alert-console/internal/logging"
	"alert-console/internal/models"
)

// wsServer is a fake backend: it records every inbound command and lets
// tests push envelopes or drop connections.
type wsServer struct {
	t        *testing.T
	srv      *httptest.Server
	upgrader websocket.Upgrader
	inbound  chan models.Command
	upgrades int32

	mu    sync.Mutex
	conns []*websocket.Conn
}

func newWSServer(t *testing.T) *wsServer {
	t.Helper()
	s := &wsServer{t: t, inbound: make(chan models.Command, 64)}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		atomic.AddInt32(&s.upgrades, 1)
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.mu.Unlock()
		for {
			var cmd models.Command
			if err := conn.ReadJSON(&cmd); err != nil {
				return
			}
			s.inbound <- cmd
		}
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *wsServer) url() string {
	return strings.Replace(s.srv.URL, "http://", "ws://", 1)
}

func (s *wsServer) send(t *testing.T, v interface{}) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.conns) == 0 {
		t.Fatal("no server-side connection")
	}
	if err := s.conns[len(s.conns)-1].WriteJSON(v); err != nil {
		t.Fatalf("server send: %v", err)
	}
}

func (s *wsServer) dropAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		c.Close()
	}
	s.conns = nil
}

func (s *wsServer) nextCommand(t *testing.T) models.Command {
	t.Helper()
	select {
	case cmd := <-s.inbound:
		return cmd
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for command")
		return models.Command{}
	}
}

func waitForStatus(t *testing.T, c *Client, want Status) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.Status() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("status = %s, want %s", c.Status(), want)
}

func newTestClient(s *wsServer, clk clock.Clock) *Client {
	cfg := Config{URL: s.url(), ClientID: "test-client", Clock: clk}
	return NewClient(cfg, NewRouter(logging.NewNop()), logging.NewNop())
}

func TestDelaySchedule(t *testing.T) {
	want := []time.Duration{
		1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
		16 * time.Second, 30 * time.Second, 30 * time.Second, 30 * time.Second,
	}
	for attempt, d := range want {
		if got := delayFor(attempt); got != d {
			t.Errorf("delayFor(%d) = %s, want %s", attempt, got, d)
		}
	}
}

func TestConnectIsIdempotent(t *testing.T) {
	s := newWSServer(t)
	c := newTestClient(s, clock.New())
	defer c.Disconnect()

	if err := c.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	waitForStatus(t, c, StatusOpen)
	if err := c.Connect(); err != nil {
		t.Fatalf("second Connect: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if got := atomic.LoadInt32(&s.upgrades); got != 1 {
		t.Errorf("upgrades = %d, want 1", got)
	}
}

func TestConnectCarriesClientID(t *testing.T) {
	var gotID string
	var mu sync.Mutex
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotID = r.URL.Query().Get("client_id")
		mu.Unlock()
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	cfg := Config{URL: strings.Replace(srv.URL, "http://", "ws://", 1), ClientID: "op-7"}
	c := NewClient(cfg, NewRouter(logging.NewNop()), logging.NewNop())
	defer c.Disconnect()
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	waitForStatus(t, c, StatusOpen)

	mu.Lock()
	defer mu.Unlock()
	if gotID != "op-7" {
		t.Errorf("client_id = %q, want %q", gotID, "op-7")
	}
}

func TestQueuedCommandsFlushInOrder(t *testing.T) {
	s := newWSServer(t)
	c := newTestClient(s, clock.New())
	defer c.Disconnect()

	for _, id := range []string{"cam-1", "cam-2", "cam-3"} {
		if err := c.Send(models.Command{Action: models.ActionSubscribeCamera, CameraID: id}); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}
	if got := c.QueueLen(); got != 3 {
		t.Fatalf("QueueLen = %d, want 3", got)
	}

	if err := c.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	for _, want := range []string{"cam-1", "cam-2", "cam-3"} {
		cmd := s.nextCommand(t)
		if cmd.CameraID != want {
			t.Errorf("flushed camera_id = %q, want %q", cmd.CameraID, want)
		}
	}
	if got := c.QueueLen(); got != 0 {
		t.Errorf("QueueLen after flush = %d, want 0", got)
	}
}

func TestSendQueueEvictsOldest(t *testing.T) {
	s := newWSServer(t)
	cfg := Config{URL: s.url(), ClientID: "test", SendQueueCap: 2}
	c := NewClient(cfg, NewRouter(logging.NewNop()), logging.NewNop())
	defer c.Disconnect()

	for _, id := range []string{"cam-1", "cam-2", "cam-3"} {
		c.Send(models.Command{Action: models.ActionSubscribeCamera, CameraID: id})
	}
	if got := c.QueueLen(); got != 2 {
		t.Fatalf("QueueLen = %d, want 2", got)
	}

	c.Connect()
	if cmd := s.nextCommand(t); cmd.CameraID != "cam-2" {
		t.Errorf("first flushed = %q, want cam-2", cmd.CameraID)
	}
	if cmd := s.nextCommand(t); cmd.CameraID != "cam-3" {
		t.Errorf("second flushed = %q, want cam-3", cmd.CameraID)
	}
}

func TestSubscriptionsReissuedOnReconnect(t *testing.T) {
	s := newWSServer(t)
	c := newTestClient(s, clock.New())
	defer c.Disconnect()

	if err := c.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	waitForStatus(t, c, StatusOpen)

	c.Subscribe(ChannelAlerts)
	c.Subscribe(ChannelAlerts) // idempotent
	if cmd := s.nextCommand(t); cmd.Action != models.ActionSubscribeAlerts {
		t.Fatalf("action = %q, want %q", cmd.Action, models.ActionSubscribeAlerts)
	}
	select {
	case cmd := <-s.inbound:
		t.Fatalf("duplicate subscribe sent: %+v", cmd)
	case <-time.After(50 * time.Millisecond):
	}

	s.dropAll()
	waitForStatus(t, c, StatusReconnecting)
	// First reconnect delay is 1s on the real clock.
	waitFor := time.Now().Add(3 * time.Second)
	for time.Now().Before(waitFor) && c.Status() != StatusOpen {
		time.Sleep(10 * time.Millisecond)
	}
	if c.Status() != StatusOpen {
		t.Fatalf("status after reconnect = %s, want open", c.Status())
	}
	if cmd := s.nextCommand(t); cmd.Action != models.ActionSubscribeAlerts {
		t.Errorf("re-issued action = %q, want %q", cmd.Action, models.ActionSubscribeAlerts)
	}
}

func TestDialDefersToInFlightDial(t *testing.T) {
	s := newWSServer(t)
	c := newTestClient(s, clock.New())
	defer c.Disconnect()

	// A backoff-timer dial already past its cancellation window.
	c.mu.Lock()
	c.dialing = true
	c.mu.Unlock()

	if err := c.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if got := atomic.LoadInt32(&s.upgrades); got != 0 {
		t.Fatalf("upgrades = %d, want 0 while another dial is in flight", got)
	}

	// The in-flight dial finishes; a fresh Connect proceeds normally.
	c.mu.Lock()
	c.dialing = false
	c.status = StatusClosed
	c.mu.Unlock()
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	waitForStatus(t, c, StatusOpen)
	if got := atomic.LoadInt32(&s.upgrades); got != 1 {
		t.Errorf("upgrades = %d, want 1", got)
	}
}

func TestCameraChannelSubscription(t *testing.T) {
	s := newWSServer(t)
	c := newTestClient(s, clock.New())
	defer c.Disconnect()

	c.Connect()
	waitForStatus(t, c, StatusOpen)

	c.Subscribe(CameraChannel("cam-7"))
	cmd := s.nextCommand(t)
	if cmd.Action != models.ActionSubscribeCamera || cmd.CameraID != "cam-7" {
		t.Fatalf("command = %+v, want subscribe_camera for cam-7", cmd)
	}

	c.Unsubscribe(CameraChannel("cam-7"))
	cmd = s.nextCommand(t)
	if cmd.Action != models.ActionUnsubscribeCamera || cmd.CameraID != "cam-7" {
		t.Fatalf("command = %+v, want unsubscribe_camera for cam-7", cmd)
	}
}

func TestServerPingIsAnsweredWithPong(t *testing.T) {
	s := newWSServer(t)
	c := newTestClient(s, clock.New())
	defer c.Disconnect()

	c.Connect()
	waitForStatus(t, c, StatusOpen)

	s.send(t, map[string]string{"type": "ping"})
	if cmd := s.nextCommand(t); cmd.Action != models.ActionPong {
		t.Errorf("reply action = %q, want pong", cmd.Action)
	}
}

func TestHeartbeatTimeoutForcesReconnect(t *testing.T) {
	s := newWSServer(t)
	mock := clock.NewMock()
	cfg := Config{URL: s.url(), ClientID: "test", HeartbeatInterval: 25 * time.Second, Clock: mock}
	c := NewClient(cfg, NewRouter(logging.NewNop()), logging.NewNop())
	defer c.Disconnect()

	c.Connect()
	waitForStatus(t, c, StatusOpen)
	time.Sleep(20 * time.Millisecond) // let the heartbeat goroutine arm its ticker

	// First tick: pong still fresh, a ping goes out.
	mock.Add(25 * time.Second)
	if cmd := s.nextCommand(t); cmd.Action != models.ActionPing {
		t.Fatalf("heartbeat action = %q, want ping", cmd.Action)
	}

	// No pong arrives; the second tick crosses the 2T deadline.
	mock.Add(25 * time.Second)
	waitForStatus(t, c, StatusReconnecting)
}

func TestHeartbeatPongKeepsConnectionAlive(t *testing.T) {
	s := newWSServer(t)
	mock := clock.NewMock()
	cfg := Config{URL: s.url(), ClientID: "test", HeartbeatInterval: 25 * time.Second, Clock: mock}
	c := NewClient(cfg, NewRouter(logging.NewNop()), logging.NewNop())
	defer c.Disconnect()

	c.Connect()
	waitForStatus(t, c, StatusOpen)
	time.Sleep(20 * time.Millisecond)

	mock.Add(25 * time.Second)
	if cmd := s.nextCommand(t); cmd.Action != models.ActionPing {
		t.Fatalf("heartbeat action = %q, want ping", cmd.Action)
	}
	s.send(t, map[string]string{"type": "pong"})
	time.Sleep(50 * time.Millisecond) // let the pong land before the next tick

	mock.Add(25 * time.Second)
	if cmd := s.nextCommand(t); cmd.Action != models.ActionPing {
		t.Fatalf("second heartbeat action = %q, want ping", cmd.Action)
	}
	if got := c.Status(); got != StatusOpen {
		t.Errorf("status = %s, want open", got)
	}
}

func TestDisconnectSuppressesReconnect(t *testing.T) {
	s := newWSServer(t)
	c := newTestClient(s, clock.New())

	c.Connect()
	waitForStatus(t, c, StatusOpen)
	if err := c.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	if got := c.Status(); got != StatusClosed {
		t.Errorf("status = %s, want closed", got)
	}
	if got := atomic.LoadInt32(&s.upgrades); got != 1 {
		t.Errorf("upgrades = %d, want 1 (no reconnect after deliberate close)", got)
	}
}

func TestGivesUpAfterMaxAttempts(t *testing.T) {
	mock := clock.NewMock()
	// Point at a server that is already gone.
	s := newWSServer(t)
	url := s.url()
	s.srv.Close()

	cfg := Config{URL: url, ClientID: "test", MaxReconnects: 2, Clock: mock}
	c := NewClient(cfg, NewRouter(logging.NewNop()), logging.NewNop())

	if err := c.Connect(); err == nil {
		t.Fatal("Connect to dead server succeeded")
	}
	waitForStatus(t, c, StatusReconnecting)

	mock.Add(1 * time.Second) // attempt 2 fails, schedules 2s
	waitForStatus(t, c, StatusReconnecting)
	mock.Add(2 * time.Second) // attempt cap reached
	waitForStatus(t, c, StatusClosed)

	// No further attempts get scheduled without a manual Connect.
	mock.Add(time.Minute)
	if got := c.Status(); got != StatusClosed {
		t.Errorf("status = %s, want closed", got)
	}
}
