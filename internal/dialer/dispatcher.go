package dialer

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
)

// DispatchProvider is the external call-placement platform. CreateSession
// provisions a media session and RequestDispatch schedules an agent into it
// to place the actual phone call.
type DispatchProvider interface {
	CreateSession(ctx context.Context, sessionName string) error
	RequestDispatch(ctx context.Context, sessionName, phoneNumber string) (dispatchRef string, err error)
}

// Dispatcher places a single outbound call through the provider. It is
// stateless with respect to call data and safe for concurrent use.
type Dispatcher struct {
	provider DispatchProvider
	prefix   string
}

// NewDispatcher creates a dispatcher that names sessions with the given prefix
func NewDispatcher(provider DispatchProvider, sessionPrefix string) *Dispatcher {
	return &Dispatcher{
		provider: provider,
		prefix:   sessionPrefix,
	}
}

// PlaceCall creates a uniquely named session for the destination number and
// requests an agent dispatch into it. The agent dials the callee on its own
// time; this returns as soon as the dispatch is accepted and does not wait
// for anyone to join. The phone number must already be validated as E.164
// by the caller. There is no retry here; retrying is a caller decision.
func (d *Dispatcher) PlaceCall(ctx context.Context, phoneNumber string) (sessionName, dispatchRef string, err error) {
	sessionName = d.sessionName(phoneNumber)

	if err := d.provider.CreateSession(ctx, sessionName); err != nil {
		return "", "", &DispatchError{PhoneNumber: phoneNumber, Cause: fmt.Errorf("creating session: %w", err)}
	}

	dispatchRef, err = d.provider.RequestDispatch(ctx, sessionName, phoneNumber)
	if err != nil {
		return "", "", &DispatchError{PhoneNumber: phoneNumber, Cause: fmt.Errorf("requesting dispatch: %w", err)}
	}

	log.Printf("[Dispatcher] Dispatched call to %s (session=%s, ref=%s)", phoneNumber, sessionName, dispatchRef)
	return sessionName, dispatchRef, nil
}

// sessionName derives a per-attempt unique session name. The random suffix
// keeps concurrent calls to the same number from colliding provider-side.
func (d *Dispatcher) sessionName(phoneNumber string) string {
	digits := strings.TrimPrefix(phoneNumber, "+")
	return fmt.Sprintf("%s-%s-%s", d.prefix, digits, uuid.NewString()[:8])
}
