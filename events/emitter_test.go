package events

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type stateChange struct {
	ExecutionID string
	Status      string
}

func TestEmitterDeliversToSubscribers(t *testing.T) {
	emitter := NewEmitter[stateChange]()

	var received []stateChange
	unsubscribe := emitter.Subscribe(func(c stateChange) {
		received = append(received, c)
	})
	defer unsubscribe()

	emitter.Emit(stateChange{ExecutionID: "exec_1", Status: "running"})
	emitter.Emit(stateChange{ExecutionID: "exec_1", Status: "completed"})

	require.Len(t, received, 2)
	require.Equal(t, "running", received[0].Status)
	require.Equal(t, "completed", received[1].Status)
}

func TestEmitterUnsubscribe(t *testing.T) {
	emitter := NewEmitter[int]()

	count := 0
	unsubscribe := emitter.Subscribe(func(int) { count++ })

	emitter.Emit(1)
	unsubscribe()
	emitter.Emit(2)

	require.Equal(t, 1, count)
	require.Equal(t, 0, emitter.SubscriberCount())

	// Unsubscribing twice is a no-op
	unsubscribe()
}

func TestEmitterMultipleSubscribers(t *testing.T) {
	emitter := NewEmitter[string]()

	a, b := 0, 0
	defer emitter.Subscribe(func(string) { a++ })()
	defer emitter.Subscribe(func(string) { b++ })()

	require.Equal(t, 2, emitter.SubscriberCount())
	emitter.Emit("node_started")

	require.Equal(t, 1, a)
	require.Equal(t, 1, b)
}

func TestEmitterWithNoSubscribers(t *testing.T) {
	emitter := NewEmitter[string]()
	emitter.Emit("ignored") // must not panic
}
