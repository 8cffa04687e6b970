package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"callagent/internal/call"
	"callagent/internal/config"
	"callagent/internal/dialer"
	"callagent/internal/websocket"
)

// Server is the REST API surface over the call manager
type Server struct {
	config  *config.Config
	manager *dialer.Manager
	hub     *websocket.Hub
}

// NewServer creates a new API server
func NewServer(cfg *config.Config, manager *dialer.Manager, hub *websocket.Hub) *Server {
	return &Server{
		config:  cfg,
		manager: manager,
		hub:     hub,
	}
}

// Handler builds the route table. Split from Start so tests can drive the
// mux without a listening socket.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/makeCall", s.handleMakeCall)
	mux.HandleFunc("/makeBulkCalls", s.handleMakeBulkCalls)
	mux.HandleFunc("/callStatus/", s.handleCallStatus)
	mux.HandleFunc("/updateCallStatus/", s.handleUpdateCallStatus)
	mux.HandleFunc("/calls", s.handleListCalls)
	mux.HandleFunc("/health", s.handleHealth)

	if s.hub != nil {
		mux.HandleFunc("/ws", s.hub.HandleWebSocket)
	}

	return s.corsMiddleware(mux)
}

// Start runs the HTTP server until the listener fails
func (s *Server) Start() error {
	addr := s.config.API.Address()
	log.Printf("[API] Starting server on %s", addr)
	return http.ListenAndServe(addr, s.Handler())
}

// corsMiddleware adds CORS headers when enabled and recovers from handler panics
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.config.API.EnableCORS {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
		}

		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("[API] PANIC RECOVERED: %v", rec)
				w.WriteHeader(http.StatusInternalServerError)
				fmt.Fprintf(w, `{"error": "Internal Server Error"}`)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// handleMakeCall dispatches a single outbound call
func (s *Server) handleMakeCall(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		PhoneNumber string `json:"phone_number"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	rec, err := s.manager.PlaceSingleCall(r.Context(), req.PhoneNumber)
	if err != nil {
		s.writeCallError(w, err)
		return
	}

	log.Printf("[API] Call dispatched: call_id=%s phone=%s", rec.CallID, rec.PhoneNumber)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"call_id":      rec.CallID,
		"phone_number": rec.PhoneNumber,
		"session_name": rec.SessionName,
		"dispatch_ref": rec.DispatchRef,
		"status":       rec.Status,
		"message":      "Call dispatched successfully",
	})
}

// handleMakeBulkCalls dispatches a batch of calls. The response always has
// one result per requested number, in request order.
func (s *Server) handleMakeBulkCalls(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		PhoneNumbers []string `json:"phone_numbers"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.PhoneNumbers) == 0 {
		writeError(w, http.StatusBadRequest, "phone_numbers is required")
		return
	}

	results := s.manager.PlaceBulkCalls(r.Context(), req.PhoneNumbers)

	succeeded := 0
	for _, res := range results {
		if res.Success {
			succeeded++
		}
	}
	log.Printf("[API] Bulk dispatch: %d/%d calls placed", succeeded, len(results))

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"total":     len(results),
		"succeeded": succeeded,
		"failed":    len(results) - succeeded,
		"results":   results,
	})
}

// handleCallStatus returns the reconciled status of one call
func (s *Server) handleCallStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	callID := strings.TrimPrefix(r.URL.Path, "/callStatus/")
	if callID == "" || strings.Contains(callID, "/") {
		writeError(w, http.StatusBadRequest, "call id is required")
		return
	}

	snap, err := s.manager.GetStatus(r.Context(), callID)
	if err != nil {
		s.writeCallError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"call_id":      snap.CallID,
		"status":       snap.Status,
		"phone_number": snap.PhoneNumber,
		"session_name": snap.SessionName,
		"last_updated": snap.LastUpdated,
	})
}

// handleUpdateCallStatus is the manual status override endpoint
func (s *Server) handleUpdateCallStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	callID := strings.TrimPrefix(r.URL.Path, "/updateCallStatus/")
	if callID == "" || strings.Contains(callID, "/") {
		writeError(w, http.StatusBadRequest, "call id is required")
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.manager.SetStatus(callID, req.Status); err != nil {
		s.writeCallError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"call_id": callID,
		"status":  req.Status,
		"message": "Status updated",
	})
}

// handleListCalls dumps the registry for monitoring dashboards
func (s *Server) handleListCalls(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	calls := s.manager.Registry().List()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"count":   len(calls),
		"calls":   calls,
	})
}

// handleHealth is the liveness probe
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":       "ok",
		"active_calls": s.manager.Registry().Count(),
	}
	if s.hub != nil {
		resp["ws_clients"] = s.hub.ClientCount()
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeCallError maps domain errors onto HTTP status codes
func (s *Server) writeCallError(w http.ResponseWriter, err error) {
	var verr *dialer.ValidationError
	var derr *dialer.DispatchError

	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Reason)
	case errors.Is(err, call.ErrNotFound):
		writeError(w, http.StatusNotFound, "call not found")
	case errors.As(err, &derr):
		writeError(w, http.StatusInternalServerError, derr.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}
