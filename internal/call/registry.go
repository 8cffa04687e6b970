package call

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound reports an unknown call ID. It is a lookup outcome, never a
// call status.
var ErrNotFound = errors.New("call not found")

// Record is the tracked state of one outbound call attempt. A record only
// exists after a successful dispatch, so SessionName and DispatchRef are
// always populated. Status and LastUpdated are the only mutable fields.
type Record struct {
	CallID      string    `json:"call_id"`
	PhoneNumber string    `json:"phone_number"`
	SessionName string    `json:"session_name"`
	DispatchRef string    `json:"dispatch_ref"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	LastUpdated time.Time `json:"last_updated"`
}

// Registry is the in-memory table of all calls placed during the process
// lifetime. It is the single owner of record mutation; every write goes
// through its lock. Entries are never evicted — call volume is modest and
// the growth is an accepted operational characteristic.
type Registry struct {
	mu    sync.Mutex
	calls map[string]*Record
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		calls: make(map[string]*Record),
	}
}

// Create registers a freshly dispatched call and returns its new ID.
// The record starts in connecting.
func (r *Registry) Create(phoneNumber, sessionName, dispatchRef string) string {
	now := time.Now()
	rec := &Record{
		CallID:      uuid.NewString(),
		PhoneNumber: phoneNumber,
		SessionName: sessionName,
		DispatchRef: dispatchRef,
		Status:      StatusConnecting,
		CreatedAt:   now,
		LastUpdated: now,
	}

	r.mu.Lock()
	r.calls[rec.CallID] = rec
	total := len(r.calls)
	r.mu.Unlock()

	log.Printf("[Registry] Added call %s (phone=%s, session=%s, tracked=%d)",
		rec.CallID, phoneNumber, sessionName, total)
	return rec.CallID
}

// Get returns a copy of the record for the given call ID
func (r *Registry) Get(callID string) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.calls[callID]
	if !ok {
		return Record{}, ErrNotFound
	}
	return *rec, nil
}

// SetStatus overwrites the status without checking transition legality.
// This is the explicit override path (webhook-driven correction); callers
// must pass a value that already went through ParseStatus.
func (r *Registry) SetStatus(callID string, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.calls[callID]
	if !ok {
		return ErrNotFound
	}
	rec.Status = status
	rec.LastUpdated = time.Now()
	return nil
}

// ApplyPresence runs the lifecycle state machine against an observed
// participant count and returns the possibly updated record. The
// read-modify-write happens entirely under the registry lock, so concurrent
// observers for the same call serialize cleanly.
func (r *Registry) ApplyPresence(callID string, participantCount int) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.calls[callID]
	if !ok {
		return Record{}, ErrNotFound
	}

	next := nextStatus(rec.Status, participantCount)
	if next != rec.Status {
		log.Printf("[Registry] Call %s: %s -> %s (participants=%d)",
			callID, rec.Status, next, participantCount)
		rec.Status = next
		rec.LastUpdated = time.Now()
	}
	return *rec, nil
}

// Count returns the number of tracked calls
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// List returns a snapshot of all tracked calls (for monitoring)
func (r *Registry) List() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Record, 0, len(r.calls))
	for _, rec := range r.calls {
		out = append(out, *rec)
	}
	return out
}
