package dialer

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"callagent/internal/call"
	"callagent/internal/websocket"
)

// PresenceProvider reports how many participants are currently in a
// session. Errors wrapping ErrSessionGone mean the session was torn down.
type PresenceProvider interface {
	CountParticipants(ctx context.Context, sessionName string) (int, error)
}

// HistoryRecorder persists audit rows for placed calls. The registry stays
// the single source of truth for live status; history is write-only.
type HistoryRecorder interface {
	RecordDispatch(rec call.Record)
	RecordStatus(rec call.Record)
}

// Manager is the public operation set for outbound calls: place one, place
// many, read status, override status. It composes the dispatcher, the
// registry and the presence provider; nothing else touches call records.
type Manager struct {
	dispatcher *Dispatcher
	registry   *call.Registry
	presence   PresenceProvider

	presenceTimeout time.Duration

	hub     *websocket.Hub  // optional, nil disables event fan-out
	history HistoryRecorder // optional, nil disables audit rows
}

// NewManager wires the call orchestration components together
func NewManager(dispatcher *Dispatcher, registry *call.Registry, presence PresenceProvider, presenceTimeout time.Duration) *Manager {
	return &Manager{
		dispatcher:      dispatcher,
		registry:        registry,
		presence:        presence,
		presenceTimeout: presenceTimeout,
	}
}

// SetHub attaches a websocket hub for live call event broadcasting
func (m *Manager) SetHub(hub *websocket.Hub) {
	m.hub = hub
}

// SetHistory attaches an audit recorder for placed calls
func (m *Manager) SetHistory(history HistoryRecorder) {
	m.history = history
}

// Registry exposes the call table for monitoring endpoints
func (m *Manager) Registry() *call.Registry {
	return m.registry
}

// BulkResult is the per-number outcome of a bulk dial. Results keep the
// input order regardless of dispatch completion order.
type BulkResult struct {
	PhoneNumber string `json:"phone_number"`
	Success     bool   `json:"success"`
	CallID      string `json:"call_id,omitempty"`
	SessionName string `json:"session_name,omitempty"`
	DispatchRef string `json:"dispatch_ref,omitempty"`
	Error       string `json:"error,omitempty"`
}

// StatusSnapshot is what callers see when they poll a call
type StatusSnapshot struct {
	CallID      string      `json:"call_id"`
	Status      call.Status `json:"status"`
	PhoneNumber string      `json:"phone_number"`
	SessionName string      `json:"session_name"`
	LastUpdated time.Time   `json:"last_updated"`
}

// PlaceSingleCall validates the number, dispatches it and registers the
// call. On a dispatch failure nothing is registered.
func (m *Manager) PlaceSingleCall(ctx context.Context, phoneNumber string) (call.Record, error) {
	if err := validatePhoneNumber(phoneNumber); err != nil {
		return call.Record{}, err
	}

	sessionName, dispatchRef, err := m.dispatcher.PlaceCall(ctx, phoneNumber)
	if err != nil {
		log.Printf("[Manager] Dispatch failed for %s: %v", phoneNumber, err)
		return call.Record{}, err
	}

	callID := m.registry.Create(phoneNumber, sessionName, dispatchRef)
	rec, err := m.registry.Get(callID)
	if err != nil {
		// Registry entries are never evicted, so a just-created ID always resolves.
		return call.Record{}, err
	}

	if m.hub != nil {
		m.hub.Broadcast(websocket.EventCallDispatched, rec)
	}
	if m.history != nil {
		m.history.RecordDispatch(rec)
	}
	return rec, nil
}

// PlaceBulkCalls dispatches every number independently and concurrently.
// One number failing never aborts the others, and the result slice matches
// the input order.
func (m *Manager) PlaceBulkCalls(ctx context.Context, phoneNumbers []string) []BulkResult {
	results := make([]BulkResult, len(phoneNumbers))

	var wg sync.WaitGroup
	for i, number := range phoneNumbers {
		wg.Add(1)
		go func(i int, number string) {
			defer wg.Done()

			rec, err := m.PlaceSingleCall(ctx, number)
			if err != nil {
				results[i] = BulkResult{PhoneNumber: number, Error: err.Error()}
				return
			}
			results[i] = BulkResult{
				PhoneNumber: number,
				Success:     true,
				CallID:      rec.CallID,
				SessionName: rec.SessionName,
				DispatchRef: rec.DispatchRef,
			}
		}(i, number)
	}
	wg.Wait()

	return results
}

// GetStatus reconciles the registry with a live presence query and returns
// the current snapshot. The presence query runs with a bounded timeout and
// never while holding the registry lock. A query failure that proves the
// session is gone forces disconnected; any other failure leaves the stored
// status untouched and the stale snapshot is returned best-effort.
func (m *Manager) GetStatus(ctx context.Context, callID string) (StatusSnapshot, error) {
	rec, err := m.registry.Get(callID)
	if err != nil {
		return StatusSnapshot{}, err
	}
	previous := rec.Status

	qctx, cancel := context.WithTimeout(ctx, m.presenceTimeout)
	defer cancel()

	count, qerr := m.presence.CountParticipants(qctx, rec.SessionName)
	switch {
	case qerr == nil:
		rec, err = m.registry.ApplyPresence(callID, count)
		if err != nil {
			return StatusSnapshot{}, err
		}
	case errors.Is(qerr, ErrSessionGone):
		// Session teardown implies the call ended, whatever we had stored.
		log.Printf("[Manager] Session %s gone, forcing call %s to disconnected", rec.SessionName, callID)
		if err := m.registry.SetStatus(callID, call.StatusDisconnected); err != nil {
			return StatusSnapshot{}, err
		}
		rec, err = m.registry.Get(callID)
		if err != nil {
			return StatusSnapshot{}, err
		}
	default:
		// Transient read failure: report the last known status instead of
		// turning a flaky query into a call failure.
		log.Printf("[Manager] Presence query failed for call %s (session=%s): %v", callID, rec.SessionName, qerr)
	}

	if rec.Status != previous {
		if m.hub != nil {
			m.hub.Broadcast(websocket.EventCallStatus, rec)
		}
		if m.history != nil {
			m.history.RecordStatus(rec)
		}
	}

	return snapshot(rec), nil
}

// SetStatus is the explicit override path. The value must be a member of
// the recognized status set, but the transition itself is not checked.
func (m *Manager) SetStatus(callID, status string) error {
	if strings.TrimSpace(status) == "" {
		return &ValidationError{Reason: "status is required"}
	}
	parsed, err := call.ParseStatus(status)
	if err != nil {
		return &ValidationError{Reason: err.Error()}
	}

	if err := m.registry.SetStatus(callID, parsed); err != nil {
		return err
	}
	log.Printf("[Manager] Call %s status overridden to %s", callID, parsed)

	if m.hub != nil {
		if rec, err := m.registry.Get(callID); err == nil {
			m.hub.Broadcast(websocket.EventCallStatus, rec)
		}
	}
	return nil
}

func snapshot(rec call.Record) StatusSnapshot {
	return StatusSnapshot{
		CallID:      rec.CallID,
		Status:      rec.Status,
		PhoneNumber: rec.PhoneNumber,
		SessionName: rec.SessionName,
		LastUpdated: rec.LastUpdated,
	}
}

// validatePhoneNumber enforces the E.164 entry requirement: non-empty and
// a leading +. Anything beyond that is the provider's problem.
func validatePhoneNumber(phoneNumber string) error {
	if phoneNumber == "" {
		return &ValidationError{Reason: "phone number is required"}
	}
	if !strings.HasPrefix(phoneNumber, "+") {
		return &ValidationError{Reason: "phone number must be in E.164 format (e.g. +1234567890)"}
	}
	return nil
}
