package dialer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider records calls and can be told to fail either step
type fakeProvider struct {
	mu sync.Mutex

	sessions   []string
	dispatches map[string]string // session -> phone

	createErr   error
	dispatchErr error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{dispatches: make(map[string]string)}
}

func (f *fakeProvider) CreateSession(ctx context.Context, sessionName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.sessions = append(f.sessions, sessionName)
	return nil
}

func (f *fakeProvider) RequestDispatch(ctx context.Context, sessionName, phoneNumber string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dispatchErr != nil {
		return "", f.dispatchErr
	}
	f.dispatches[sessionName] = phoneNumber
	return "dispatch-" + sessionName, nil
}

func TestPlaceCall(t *testing.T) {
	provider := newFakeProvider()
	d := NewDispatcher(provider, "call")

	session, ref, err := d.PlaceCall(context.Background(), "+15551234567")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(session, "call-15551234567-"))
	assert.Equal(t, "dispatch-"+session, ref)
	assert.Equal(t, []string{session}, provider.sessions)
	assert.Equal(t, "+15551234567", provider.dispatches[session])
}

func TestPlaceCallSessionNamesAreUnique(t *testing.T) {
	provider := newFakeProvider()
	d := NewDispatcher(provider, "call")

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		session, _, err := d.PlaceCall(context.Background(), "+15551234567")
		require.NoError(t, err)
		assert.False(t, seen[session], "session name %s repeated", session)
		seen[session] = true
	}
}

func TestPlaceCallCreateSessionFails(t *testing.T) {
	provider := newFakeProvider()
	provider.createErr = errors.New("platform down")
	d := NewDispatcher(provider, "call")

	_, _, err := d.PlaceCall(context.Background(), "+15551234567")
	require.Error(t, err)

	var derr *DispatchError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, "+15551234567", derr.PhoneNumber)
	assert.ErrorIs(t, err, provider.createErr)
	assert.Empty(t, provider.dispatches)
}

func TestPlaceCallDispatchFails(t *testing.T) {
	provider := newFakeProvider()
	provider.dispatchErr = errors.New("no agents available")
	d := NewDispatcher(provider, "call")

	_, _, err := d.PlaceCall(context.Background(), "+15551234567")
	require.Error(t, err)

	var derr *DispatchError
	require.ErrorAs(t, err, &derr)
	assert.ErrorIs(t, err, provider.dispatchErr)
}
