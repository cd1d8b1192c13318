package web

import (
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/skyline-rigging/flyer-controller/bus"
	"github.com/skyline-rigging/flyer-controller/config"
)

// Timing constants, all milliseconds on the wire (spec §6 "Ping/Pong"),
// grounded on original_source/src/interface/web/ws.rs.
const (
	minBatchPeriod  = 2 * time.Millisecond
	maxBatchPeriod  = 300 * time.Millisecond
	maxSendLatency  = 400 * time.Millisecond
	pingInterval    = 100 * time.Millisecond
	pingTimeout     = 10 * time.Second
	batchFilterRate = 0.03

	streamQueueDepth = 2048
	directQueueDepth = 32

	maxMessageSize = 1 << 16
)

// clientFlags tracks a connection's liveness and auth state with atomic
// bools so the sender, reader, and bus-relay goroutines can all check it
// lock-free (original_source's AtomicBool-backed ClientFlags).
type clientFlags struct {
	alive         int32
	authenticated int32
}

func (f *clientFlags) kill()              { atomic.StoreInt32(&f.alive, 0) }
func (f *clientFlags) isAlive() bool       { return atomic.LoadInt32(&f.alive) == 1 }
func (f *clientFlags) authenticate()       { atomic.StoreInt32(&f.authenticated, 1) }
func (f *clientFlags) isAuthenticated() bool { return atomic.LoadInt32(&f.authenticated) == 1 }

// flowControl is the mutex-guarded ping/pong latency state the sender
// goroutine uses to size its adaptive batch period.
type flowControl struct {
	mu               sync.Mutex
	lastPing         time.Duration
	lastPong         time.Duration
	lastPongLatency  time.Duration
}

func (fc *flowControl) snapshot() (lastPing, lastPong, lastPongLatency time.Duration) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.lastPing, fc.lastPong, fc.lastPongLatency
}

func (fc *flowControl) setPing(t time.Duration) {
	fc.mu.Lock()
	fc.lastPing = t
	fc.mu.Unlock()
}

func (fc *flowControl) onPong(t, now time.Duration) {
	fc.mu.Lock()
	fc.lastPong = t
	fc.lastPongLatency = now - t
	fc.mu.Unlock()
}

// session is one authenticated-or-authenticating WebSocket connection:
// the shared identity/flags plus handles to its sender goroutine's
// inbound queues. Grounded on ws.rs's ClientInfo + MessageSendPort.
type session struct {
	started     time.Time
	challenge   string
	secretKey   string
	flags       *clientFlags
	flow        *flowControl
	streamQueue chan bus.Envelope
	directQueue chan serverMessage

	conn   *websocket.Conn
	logger *log.Logger

	bus *bus.Bus
	cfg *config.SharedFile
	sub *bus.Subscriber
}

func newSession(conn *websocket.Conn, secretKey string, b *bus.Bus, cfg *config.SharedFile, logger *log.Logger) (*session, error) {
	challenge, err := makeRandomString()
	if err != nil {
		return nil, fmt.Errorf("web: generate challenge: %w", err)
	}
	return &session{
		started:     time.Now(),
		challenge:   challenge,
		secretKey:   secretKey,
		flags:       &clientFlags{alive: 1},
		flow:        &flowControl{},
		streamQueue: make(chan bus.Envelope, streamQueueDepth),
		directQueue: make(chan serverMessage, directQueueDepth),
		conn:        conn,
		logger:      logger,
		bus:         b,
		cfg:         cfg,
	}, nil
}

func (s *session) relativeTime(t time.Time) time.Duration { return t.Sub(s.started) }

// run drives one connection end to end: the sender goroutine, the bus
// relay goroutine, and this (the caller's) goroutine as the reader —
// spec §5 thread 6's "one sender thread, one reader thread, one bus-
// subscriber thread" per client.
func (s *session) run() {
	defer s.close()

	s.sub = s.bus.Register()
	defer s.bus.Unregister(s.sub)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); s.senderLoop() }()
	go func() { defer wg.Done(); s.busRelayLoop() }()

	// Offer the auth challenge before anything else, then the config
	// state this client will see first (ws.rs: "Send the first config
	// state this client will see").
	s.directQueue <- serverMessage{Auth: &authChallenge{Challenge: s.challenge}}
	s.streamQueue <- bus.Envelope{At: time.Now(), Message: bus.ConfigIsCurrent{Config: s.cfg.Snapshot()}}

	s.readerLoop()
	wg.Wait()
}

func (s *session) close() {
	s.flags.kill()
	_ = s.conn.Close()
}

// busRelayLoop shuttles telemetry from the controller's subscriber
// channel into this connection's stream queue, killing the connection if
// the queue is full rather than silently losing data (spec §5: "queue
// overflow ... terminate offending client connection", applied here
// symmetrically to the outbound side per ws.rs's start_ws_bus_receiver).
func (s *session) busRelayLoop() {
	for env := range s.sub.C() {
		if !s.flags.isAlive() {
			return
		}
		select {
		case s.streamQueue <- env:
		default:
			s.logger.Printf("web: client stream queue overflow, closing connection")
			s.flags.kill()
			return
		}
	}
	s.flags.kill()
}

// senderLoop is the only goroutine that writes to the socket. It pings on
// a fixed interval, sends direct (non-batched) messages immediately, and
// batches stream messages at an adaptive period driven by observed pong
// latency (spec §6's adaptive batch_period).
func (s *session) senderLoop() {
	batchPeriod := minBatchPeriod
	for s.flags.isAlive() {
		now := s.relativeTime(time.Now())
		lastPing, lastPong, lastPongLatency := s.flow.snapshot()

		if now-lastPong >= pingTimeout {
			break
		}

		if now-lastPing >= pingInterval {
			s.flow.setPing(now)
			if err := s.writePing(now); err != nil {
				break
			}
		}

		if now-lastPong <= maxSendLatency {
			if !s.sendDirectBatch() {
				break
			}
			if !s.sendStreamBatch() {
				break
			}
		}

		filterTarget := lastPongLatency * 18 / 10
		batchPeriod += time.Duration(batchFilterRate * float64(filterTarget-batchPeriod))
		if batchPeriod < minBatchPeriod {
			batchPeriod = minBatchPeriod
		}
		if batchPeriod > maxBatchPeriod {
			batchPeriod = maxBatchPeriod
		}
		time.Sleep(batchPeriod)
	}
	s.writeClose()
}

func (s *session) writePing(now time.Duration) error {
	payload := []byte(strconv.FormatFloat(now.Seconds()*1000, 'f', -1, 64))
	if err := s.conn.SetWriteDeadline(time.Now().Add(time.Second)); err != nil {
		return err
	}
	if err := s.conn.WriteMessage(websocket.PingMessage, payload); err != nil {
		s.flags.kill()
		return err
	}
	return nil
}

func (s *session) writeClose() {
	_ = s.conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (s *session) sendDirectBatch() bool {
	for {
		select {
		case msg := <-s.directQueue:
			if !s.writeJSON(msg) {
				return false
			}
		default:
			return true
		}
	}
}

func (s *session) sendStreamBatch() bool {
	var entries []streamEntry
drain:
	for {
		select {
		case env := <-s.streamQueue:
			if env.At.Before(s.started) {
				continue
			}
			entries = append(entries, streamEntry{
				Timestamp: s.relativeTime(env.At).Seconds() * 1000,
				Message:   env.Message,
			})
		default:
			break drain
		}
	}
	if len(entries) == 0 {
		return true
	}
	return s.writeJSON(serverMessage{Stream: entries})
}

func (s *session) writeJSON(msg serverMessage) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Printf("web: marshal server message: %v", err)
		return true
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(time.Second)); err != nil {
		s.flags.kill()
		return false
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.flags.kill()
		return false
	}
	return true
}

// readerLoop is this connection's only reader. It installs a pong
// handler to feed flow-control latency, then pumps incoming text frames
// through handleJSON (spec §5's reader thread).
func (s *session) readerLoop() {
	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetPongHandler(s.handlePong)

	for s.flags.isAlive() {
		_ = s.conn.SetReadDeadline(time.Now().Add(pingTimeout + pingInterval))
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		s.handleJSON(data)
	}
	s.flags.kill()
}

func (s *session) handlePong(payload string) error {
	ms, err := strconv.ParseFloat(payload, 64)
	if err != nil {
		s.flags.kill()
		return nil
	}
	t := time.Duration(ms * float64(time.Millisecond))
	now := s.relativeTime(time.Now())
	lastPing, _, _ := s.flow.snapshot()
	if t > lastPing+10*time.Millisecond {
		// Rejects timestamps claiming to be from the future relative to
		// our last ping (ws.rs's "reject timestamps from the future").
		s.flags.kill()
		return nil
	}
	s.flow.onPong(t, now)
	return nil
}

func (s *session) handleJSON(data []byte) {
	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.directQueue <- serverMessage{Error: &clientError{Code: errorCodeParseFailed, Message: err.Error()}}
		return
	}

	switch {
	case msg.Auth != nil:
		s.tryAuthenticate(*msg.Auth)
	case msg.Command != nil:
		s.tryCommand(*msg.Command)
	case msg.UpdateConfig != nil:
		s.tryUpdateConfig(msg.UpdateConfig)
	}
}

func (s *session) tryAuthenticate(r authResponse) {
	ok := authenticate(s.challenge, s.secretKey, r.Digest)
	if ok {
		s.flags.authenticate()
	}
	status := ok
	s.directQueue <- serverMessage{AuthStatus: &status}
}

func (s *session) tryCommand(payload commandPayload) {
	if !s.flags.isAuthenticated() {
		s.directQueue <- serverMessage{Error: &clientError{Code: errorCodeAuthRequired}}
		return
	}
	cmd, ok := toCommand(payload)
	if !ok {
		s.directQueue <- serverMessage{Error: &clientError{Code: errorCodeParseFailed, Message: "unrecognized command"}}
		return
	}
	s.bus.Send(cmd)
}

func (s *session) tryUpdateConfig(updates interface{}) {
	if !s.flags.isAuthenticated() {
		s.directQueue <- serverMessage{Error: &clientError{Code: errorCodeAuthRequired}}
		return
	}
	// Trial merge against a recent snapshot so a malformed update is
	// rejected here, synchronously, rather than surfacing only as a
	// later broadcast bus.Error the client has no way to correlate back
	// to this request (ws.rs's try_update_config).
	if _, err := s.cfg.MergeUpdate(updates); err != nil {
		s.directQueue <- serverMessage{Error: &clientError{Code: errorCodeUpdateConfigFailed, Message: err.Error()}}
		return
	}
	s.bus.Send(bus.UpdateConfig{Value: updates})
}
