package engine

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// wsServer upgrades each connection and sends the given message batches,
// one batch per connection, closing the connection after its batch.
type wsServer struct {
	mutex    sync.Mutex
	batches  [][]string
	connects int
}

func (s *wsServer) handler(t *testing.T) http.HandlerFunc {
	upgrader := websocket.Upgrader{}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		s.mutex.Lock()
		index := s.connects
		s.connects++
		var batch []string
		if index < len(s.batches) {
			batch = s.batches[index]
		}
		s.mutex.Unlock()

		for _, msg := range batch {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
		}
		// Give the client a moment to drain before dropping the connection
		time.Sleep(50 * time.Millisecond)
	}
}

func (s *wsServer) connectCount() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.connects
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func collectEvents(t *testing.T, stream *Stream, events *[]Event, mutex *sync.Mutex, want int, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		mutex.Lock()
		n := len(*events)
		mutex.Unlock()
		if n >= want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d events", want)
}

func TestStreamDeliversEvents(t *testing.T) {
	ws := &wsServer{batches: [][]string{{
		`{"event_type":"connected","message":"hello"}`,
		`{"event_type":"node_started","execution_id":"exec_1","node_id":"nav","node_type":"browser_navigate"}`,
		`{"event_type":"node_completed","execution_id":"exec_1","node_id":"nav","data":{"status":"completed"}}`,
		`not json`,
		`{"event_type":"workflow_completed","execution_id":"exec_1"}`,
	}}}
	server := httptest.NewServer(ws.handler(t))
	defer server.Close()

	var mutex sync.Mutex
	var received []Event
	stream, err := NewStream(StreamOptions{
		URL:            wsURL(server),
		ReconnectDelay: time.Hour, // keep the test to one connection
		Handler: func(e Event) {
			mutex.Lock()
			received = append(received, e)
			mutex.Unlock()
		},
	})
	require.NoError(t, err)
	stream.Start()
	defer stream.Close()

	collectEvents(t, stream, &received, &mutex, 3, 3*time.Second)

	mutex.Lock()
	defer mutex.Unlock()
	// The greeting and the malformed message are ignored
	require.Equal(t, EventNodeStarted, received[0].EventType)
	require.Equal(t, "nav", received[0].NodeID)
	require.Equal(t, EventNodeCompleted, received[1].EventType)
	require.Equal(t, "completed", received[1].Data["status"])
	require.Equal(t, EventWorkflowCompleted, received[2].EventType)
}

func TestStreamReconnects(t *testing.T) {
	ws := &wsServer{batches: [][]string{
		{`{"event_type":"node_started","execution_id":"exec_1","node_id":"a"}`},
		{`{"event_type":"node_completed","execution_id":"exec_1","node_id":"a"}`},
	}}
	server := httptest.NewServer(ws.handler(t))
	defer server.Close()

	var mutex sync.Mutex
	var received []Event
	stream, err := NewStream(StreamOptions{
		URL:            wsURL(server),
		ReconnectDelay: 20 * time.Millisecond,
		Handler: func(e Event) {
			mutex.Lock()
			received = append(received, e)
			mutex.Unlock()
		},
	})
	require.NoError(t, err)
	stream.Start()
	defer stream.Close()

	// Events from both connections arrive, proving the reconnect happened
	collectEvents(t, stream, &received, &mutex, 2, 5*time.Second)
	require.GreaterOrEqual(t, ws.connectCount(), 2)
}

func TestStreamCloseStopsReconnecting(t *testing.T) {
	ws := &wsServer{}
	server := httptest.NewServer(ws.handler(t))
	defer server.Close()

	stream, err := NewStream(StreamOptions{
		URL:            wsURL(server),
		ReconnectDelay: 10 * time.Millisecond,
		Handler:        func(Event) {},
	})
	require.NoError(t, err)
	stream.Start()

	time.Sleep(50 * time.Millisecond)
	stream.Close()
	stream.Close() // idempotent

	// Allow any in-flight dial to settle, then verify no further connects
	time.Sleep(150 * time.Millisecond)
	settled := ws.connectCount()
	time.Sleep(150 * time.Millisecond)
	require.Equal(t, settled, ws.connectCount())
}

func TestStreamDialCompletingAfterCloseIsNotInstalled(t *testing.T) {
	ws := &wsServer{}
	server := httptest.NewServer(ws.handler(t))
	defer server.Close()

	stream, err := NewStream(StreamOptions{
		URL:     wsURL(server),
		Handler: func(Event) {},
	})
	require.NoError(t, err)
	stream.Close()

	// A dial that lands in the window between Close and connection
	// installation must be rejected so the run loop closes it instead of
	// leaving it dangling.
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server), nil)
	require.NoError(t, err)
	require.False(t, stream.install(conn))
	conn.Close()

	stream.mutex.Lock()
	require.Nil(t, stream.conn)
	stream.mutex.Unlock()
}

func TestStreamOptionValidation(t *testing.T) {
	_, err := NewStream(StreamOptions{Handler: func(Event) {}})
	require.Error(t, err)

	_, err = NewStream(StreamOptions{URL: "ws://x"})
	require.Error(t, err)
}
