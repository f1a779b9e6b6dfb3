package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(h *harness) *Manager {
	return NewManager(DefaultConfig(), h.deps())
}

func TestManager_OpenReplacesSession(t *testing.T) {
	h := newHarness()
	m := newTestManager(h)
	t.Cleanup(func() { m.Close() })

	first, err := m.Open(context.Background())
	require.NoError(t, err)
	firstTransport := h.dialer.Last()
	firstSource := h.devices.LastSource()

	second, err := m.Open(context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, first.ID(), second.ID())
	assert.Equal(t, StatusClosed, first.Status(), "old session torn down first")
	assert.True(t, firstTransport.Closed())
	assert.True(t, firstSource.Closed())

	assert.Same(t, second, m.Current())
	assert.Equal(t, StatusListening, second.Status())
	assert.Equal(t, second.ID(), m.Snapshot().ID)
}

func TestManager_Close(t *testing.T) {
	h := newHarness()
	m := newTestManager(h)

	assert.ErrorIs(t, m.Close(), ErrNoSession)

	s, err := m.Open(context.Background())
	require.NoError(t, err)

	require.NoError(t, m.Close())
	assert.Nil(t, m.Current())
	assert.Equal(t, StatusClosed, s.Status())
	assert.Equal(t, StatusClosed, m.Snapshot().Status)
}

func TestManager_Subscribe(t *testing.T) {
	h := newHarness()
	m := newTestManager(h)
	t.Cleanup(func() { m.Close() })

	ch, cancel := m.Subscribe(32)
	defer cancel()

	initial := <-ch
	assert.Equal(t, StatusClosed, initial.Status)
	assert.Empty(t, initial.ID)

	_, err := m.Open(context.Background())
	require.NoError(t, err)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap := <-ch:
			if snap.Status == StatusListening {
				return
			}
		case <-deadline:
			t.Fatal("no listening snapshot")
		}
	}
}

func TestManager_SubscribeCancel(t *testing.T) {
	m := newTestManager(newHarness())

	ch, cancel := m.Subscribe(1)
	<-ch
	cancel()
	cancel()

	_, ok := <-ch
	assert.False(t, ok, "channel closed after cancel")
}

func TestManager_FailedOpenIsObservable(t *testing.T) {
	h := newHarness()
	h.devices.FailSource(errors.New("permission denied"))
	m := newTestManager(h)

	_, err := m.Open(context.Background())
	require.Error(t, err)
	assert.Nil(t, m.Current())

	snap := m.Snapshot()
	assert.Equal(t, StatusError, snap.Status)
	assert.Equal(t, "microphone unavailable", snap.Error)
	assert.Equal(t, []Status{StatusConnecting, StatusError}, h.rec.statuses(), "deps.OnSnapshot still called")
}

func TestManager_DropsStaleSnapshot(t *testing.T) {
	m := newTestManager(newHarness())
	ch, cancel := m.Subscribe(8)
	defer cancel()
	<-ch

	m.broadcast(Snapshot{ID: "a", Seq: 4, Status: StatusSpeaking})
	m.broadcast(Snapshot{ID: "a", Seq: 5, Status: StatusClosed})
	m.broadcast(Snapshot{ID: "a", Seq: 4, Status: StatusSpeaking})

	assert.Equal(t, StatusClosed, m.Snapshot().Status, "late snapshot must not overwrite a newer one")
	assert.Equal(t, StatusSpeaking, (<-ch).Status)
	assert.Equal(t, StatusClosed, (<-ch).Status)
	select {
	case snap := <-ch:
		t.Fatalf("stale snapshot delivered: %+v", snap)
	default:
	}

	m.broadcast(Snapshot{ID: "b", Seq: 1, Status: StatusConnecting})
	assert.Equal(t, "b", m.Snapshot().ID, "a new session starts its own sequence")
}
