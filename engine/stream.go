package engine

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/flowdeck-io/flowdeck/slogger"
	"github.com/gorilla/websocket"
)

const defaultReconnectDelay = 5 * time.Second

// StreamOptions configures a push channel Stream.
type StreamOptions struct {
	// URL is the websocket endpoint, e.g. "ws://localhost:8000/ws/workflows".
	URL string

	// Handler receives decoded events in engine-send order. Required.
	Handler func(Event)

	// ReconnectDelay is the fixed delay before each reconnection attempt.
	ReconnectDelay time.Duration

	// Dialer overrides the default websocket dialer. Optional.
	Dialer *websocket.Dialer

	Logger slogger.Logger
}

// Stream maintains a persistent push channel connection to the engine and
// delivers node- and workflow-level events as they occur.
//
// Reconnection is unconditional: on any disconnect a single attempt is
// scheduled after a fixed delay, repeating for the life of the stream with
// no backoff growth and no retry ceiling. A long-lived desktop session
// prefers that simplicity over adaptive backoff.
type Stream struct {
	url            string
	handler        func(Event)
	reconnectDelay time.Duration
	dialer         *websocket.Dialer
	logger         slogger.Logger

	mutex     sync.Mutex
	conn      *websocket.Conn
	done      chan struct{}
	closeOnce sync.Once
	started   bool
}

// NewStream creates a Stream. Call Start to connect.
func NewStream(opts StreamOptions) (*Stream, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("stream url is required")
	}
	if opts.Handler == nil {
		return nil, fmt.Errorf("stream handler is required")
	}
	delay := opts.ReconnectDelay
	if delay <= 0 {
		delay = defaultReconnectDelay
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	logger := opts.Logger
	if logger == nil {
		logger = slogger.DefaultLogger
	}
	return &Stream{
		url:            opts.URL,
		handler:        opts.Handler,
		reconnectDelay: delay,
		dialer:         dialer,
		logger:         logger,
		done:           make(chan struct{}),
	}, nil
}

// Start connects in the background and begins delivering events. It is safe
// to call once; subsequent calls are no-ops.
func (s *Stream) Start() {
	s.mutex.Lock()
	if s.started {
		s.mutex.Unlock()
		return
	}
	s.started = true
	s.mutex.Unlock()
	go s.run()
}

// Close tears down the connection and stops reconnecting. Idempotent.
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.mutex.Lock()
		if s.conn != nil {
			s.conn.Close()
		}
		s.mutex.Unlock()
	})
}

func (s *Stream) run() {
	for {
		select {
		case <-s.done:
			return
		default:
		}

		conn, _, err := s.dialer.Dial(s.url, nil)
		if err != nil {
			s.logger.Warn("push channel connect failed", "url", s.url, "error", err)
		} else if !s.install(conn) {
			// Close landed while the dial was in flight.
			conn.Close()
			return
		} else {
			s.logger.Debug("push channel connected", "url", s.url)
			s.readLoop(conn)
			conn.Close()
			s.mutex.Lock()
			s.conn = nil
			s.mutex.Unlock()
		}

		select {
		case <-s.done:
			return
		case <-time.After(s.reconnectDelay):
		}
	}
}

// install publishes the connection so Close can tear it down. It reports
// false when the stream was closed while dialing; the caller then owns
// closing the connection.
func (s *Stream) install(conn *websocket.Conn) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	select {
	case <-s.done:
		return false
	default:
	}
	s.conn = conn
	return true
}

func (s *Stream) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
			default:
				s.logger.Warn("push channel disconnected", "error", err)
			}
			return
		}
		var event Event
		if err := json.Unmarshal(data, &event); err != nil {
			s.logger.Warn("push channel message not decodable", "error", err)
			continue
		}
		if !event.EventType.known() {
			continue
		}
		s.handler(event)
	}
}
