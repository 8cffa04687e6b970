package dialer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callagent/internal/call"
)

// fakePresence returns a fixed count or error per session
type fakePresence struct {
	mu     sync.Mutex
	counts map[string]int
	err    error
}

func (f *fakePresence) CountParticipants(ctx context.Context, sessionName string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	return f.counts[sessionName], nil
}

func (f *fakePresence) setCount(session string, count int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.counts == nil {
		f.counts = make(map[string]int)
	}
	f.counts[session] = count
}

type recordedHistory struct {
	mu         sync.Mutex
	dispatches []call.Record
	statuses   []call.Record
}

func (h *recordedHistory) RecordDispatch(rec call.Record) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dispatches = append(h.dispatches, rec)
}

func (h *recordedHistory) RecordStatus(rec call.Record) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.statuses = append(h.statuses, rec)
}

func newTestManager(provider DispatchProvider, presence PresenceProvider) *Manager {
	dispatcher := NewDispatcher(provider, "call")
	return NewManager(dispatcher, call.NewRegistry(), presence, time.Second)
}

func TestPlaceSingleCall(t *testing.T) {
	provider := newFakeProvider()
	m := newTestManager(provider, &fakePresence{})

	rec, err := m.PlaceSingleCall(context.Background(), "+15551234567")
	require.NoError(t, err)

	assert.NotEmpty(t, rec.CallID)
	assert.Equal(t, "+15551234567", rec.PhoneNumber)
	assert.Equal(t, call.StatusConnecting, rec.Status)
	assert.Equal(t, 1, m.Registry().Count())
}

func TestPlaceSingleCallValidation(t *testing.T) {
	tests := []struct {
		name  string
		phone string
	}{
		{"empty number", ""},
		{"missing plus prefix", "15551234567"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := newFakeProvider()
			m := newTestManager(provider, &fakePresence{})

			_, err := m.PlaceSingleCall(context.Background(), tt.phone)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Empty(t, provider.sessions, "provider must not be touched on validation failure")
			assert.Equal(t, 0, m.Registry().Count(), "nothing may be registered on validation failure")
		})
	}
}

func TestPlaceSingleCallDispatchFailureRegistersNothing(t *testing.T) {
	provider := newFakeProvider()
	provider.dispatchErr = errors.New("no agents available")
	m := newTestManager(provider, &fakePresence{})

	_, err := m.PlaceSingleCall(context.Background(), "+15551234567")

	var derr *DispatchError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, 0, m.Registry().Count())
}

func TestPlaceSingleCallRecordsHistory(t *testing.T) {
	provider := newFakeProvider()
	m := newTestManager(provider, &fakePresence{})

	history := &recordedHistory{}
	m.SetHistory(history)

	rec, err := m.PlaceSingleCall(context.Background(), "+15551234567")
	require.NoError(t, err)

	require.Len(t, history.dispatches, 1)
	assert.Equal(t, rec.CallID, history.dispatches[0].CallID)
}

func TestPlaceBulkCalls(t *testing.T) {
	provider := newFakeProvider()
	m := newTestManager(provider, &fakePresence{})

	numbers := []string{"+15550000001", "bad-number", "+15550000003"}
	results := m.PlaceBulkCalls(context.Background(), numbers)

	require.Len(t, results, 3)
	for i, res := range results {
		assert.Equal(t, numbers[i], res.PhoneNumber, "results must keep input order")
	}

	assert.True(t, results[0].Success)
	assert.NotEmpty(t, results[0].CallID)

	assert.False(t, results[1].Success)
	assert.NotEmpty(t, results[1].Error)
	assert.Empty(t, results[1].CallID)

	assert.True(t, results[2].Success)

	assert.Equal(t, 2, m.Registry().Count(), "one failure must not abort the others")
}

func TestPlaceBulkCallsLargeBatch(t *testing.T) {
	provider := newFakeProvider()
	m := newTestManager(provider, &fakePresence{})

	numbers := make([]string, 50)
	for i := range numbers {
		numbers[i] = fmt.Sprintf("+1555000%04d", i)
	}

	results := m.PlaceBulkCalls(context.Background(), numbers)

	require.Len(t, results, 50)
	for i, res := range results {
		assert.Equal(t, numbers[i], res.PhoneNumber)
		assert.True(t, res.Success)
	}
	assert.Equal(t, 50, m.Registry().Count())
}

func TestGetStatusUnknownCall(t *testing.T) {
	m := newTestManager(newFakeProvider(), &fakePresence{})

	_, err := m.GetStatus(context.Background(), "no-such-call")
	assert.ErrorIs(t, err, call.ErrNotFound)
}

func TestGetStatusAppliesPresence(t *testing.T) {
	provider := newFakeProvider()
	presence := &fakePresence{}
	m := newTestManager(provider, presence)

	rec, err := m.PlaceSingleCall(context.Background(), "+15551234567")
	require.NoError(t, err)

	// Nobody in the session yet
	snap, err := m.GetStatus(context.Background(), rec.CallID)
	require.NoError(t, err)
	assert.Equal(t, call.StatusConnecting, snap.Status)

	// Agent and callee both joined
	presence.setCount(rec.SessionName, 2)
	snap, err = m.GetStatus(context.Background(), rec.CallID)
	require.NoError(t, err)
	assert.Equal(t, call.StatusConnected, snap.Status)

	// Callee hung up
	presence.setCount(rec.SessionName, 1)
	snap, err = m.GetStatus(context.Background(), rec.CallID)
	require.NoError(t, err)
	assert.Equal(t, call.StatusDisconnected, snap.Status)

	// Terminal sticks regardless of later observations
	presence.setCount(rec.SessionName, 2)
	snap, err = m.GetStatus(context.Background(), rec.CallID)
	require.NoError(t, err)
	assert.Equal(t, call.StatusDisconnected, snap.Status)
}

func TestGetStatusSessionGoneForcesDisconnected(t *testing.T) {
	provider := newFakeProvider()
	presence := &fakePresence{}
	m := newTestManager(provider, presence)

	rec, err := m.PlaceSingleCall(context.Background(), "+15551234567")
	require.NoError(t, err)

	presence.err = fmt.Errorf("%w: room deleted", ErrSessionGone)

	snap, err := m.GetStatus(context.Background(), rec.CallID)
	require.NoError(t, err)
	assert.Equal(t, call.StatusDisconnected, snap.Status)
}

func TestGetStatusTransientFailureKeepsStatus(t *testing.T) {
	provider := newFakeProvider()
	presence := &fakePresence{}
	m := newTestManager(provider, presence)

	rec, err := m.PlaceSingleCall(context.Background(), "+15551234567")
	require.NoError(t, err)

	presence.setCount(rec.SessionName, 2)
	snap, err := m.GetStatus(context.Background(), rec.CallID)
	require.NoError(t, err)
	require.Equal(t, call.StatusConnected, snap.Status)

	// A flaky query must not flip the stored status
	presence.err = errors.New("connection timed out")
	snap, err = m.GetStatus(context.Background(), rec.CallID)
	require.NoError(t, err)
	assert.Equal(t, call.StatusConnected, snap.Status)
}

func TestGetStatusRecordsHistoryOnChange(t *testing.T) {
	provider := newFakeProvider()
	presence := &fakePresence{}
	m := newTestManager(provider, presence)

	history := &recordedHistory{}
	m.SetHistory(history)

	rec, err := m.PlaceSingleCall(context.Background(), "+15551234567")
	require.NoError(t, err)

	// Unchanged status produces no row
	_, err = m.GetStatus(context.Background(), rec.CallID)
	require.NoError(t, err)
	assert.Empty(t, history.statuses)

	presence.setCount(rec.SessionName, 2)
	_, err = m.GetStatus(context.Background(), rec.CallID)
	require.NoError(t, err)
	require.Len(t, history.statuses, 1)
	assert.Equal(t, call.StatusConnected, history.statuses[0].Status)
}

func TestSetStatus(t *testing.T) {
	provider := newFakeProvider()
	m := newTestManager(provider, &fakePresence{})

	rec, err := m.PlaceSingleCall(context.Background(), "+15551234567")
	require.NoError(t, err)

	require.NoError(t, m.SetStatus(rec.CallID, "disconnected"))

	got, err := m.Registry().Get(rec.CallID)
	require.NoError(t, err)
	assert.Equal(t, call.StatusDisconnected, got.Status)
}

func TestSetStatusValidation(t *testing.T) {
	provider := newFakeProvider()
	m := newTestManager(provider, &fakePresence{})

	rec, err := m.PlaceSingleCall(context.Background(), "+15551234567")
	require.NoError(t, err)

	var verr *ValidationError
	assert.ErrorAs(t, m.SetStatus(rec.CallID, ""), &verr)
	assert.ErrorAs(t, m.SetStatus(rec.CallID, "ringing"), &verr)

	assert.ErrorIs(t, m.SetStatus("no-such-call", "connected"), call.ErrNotFound)
}
