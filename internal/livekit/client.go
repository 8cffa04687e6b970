package livekit

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	lkproto "github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"

	"callagent/internal/config"
	"callagent/internal/dialer"
)

// emptyTimeout is how long the platform keeps an unused session alive.
// Dispatched agents can take a few seconds to join; anything beyond this
// means the dispatch never got picked up.
const emptyTimeout = 300 // seconds

// Client wraps the LiveKit room and agent-dispatch APIs. It satisfies the
// dialer.DispatchProvider and dialer.PresenceProvider interfaces and holds
// no per-call state, so a single instance serves all concurrent calls.
type Client struct {
	rooms          *lksdk.RoomServiceClient
	dispatches     *lksdk.AgentDispatchClient
	agentName      string
	callerIdentity string
}

// dispatchMetadata is handed to the agent worker that picks up the dispatch
type dispatchMetadata struct {
	PhoneNumber    string `json:"phone_number"`
	CallerIdentity string `json:"caller_identity"`
}

// NewClient builds a client from the service configuration
func NewClient(cfg config.LiveKitConfig, dispatchCfg config.DispatchConfig) *Client {
	return &Client{
		rooms:          lksdk.NewRoomServiceClient(cfg.URL, cfg.APIKey, cfg.APISecret),
		dispatches:     lksdk.NewAgentDispatchServiceClient(cfg.URL, cfg.APIKey, cfg.APISecret),
		agentName:      dispatchCfg.AgentName,
		callerIdentity: dispatchCfg.CallerIdentity,
	}
}

// CreateSession provisions the media room the call will run in
func (c *Client) CreateSession(ctx context.Context, sessionName string) error {
	_, err := c.rooms.CreateRoom(ctx, &lkproto.CreateRoomRequest{
		Name:         sessionName,
		EmptyTimeout: emptyTimeout,
	})
	if err != nil {
		return fmt.Errorf("create room %s: %w", sessionName, err)
	}
	return nil
}

// RequestDispatch schedules the outbound-calling agent into the session.
// The agent worker reads the phone number from the dispatch metadata and
// places the call; we do not wait for it.
func (c *Client) RequestDispatch(ctx context.Context, sessionName, phoneNumber string) (string, error) {
	metadata, err := json.Marshal(dispatchMetadata{
		PhoneNumber:    phoneNumber,
		CallerIdentity: c.callerIdentity,
	})
	if err != nil {
		return "", fmt.Errorf("encode dispatch metadata: %w", err)
	}

	dispatch, err := c.dispatches.CreateDispatch(ctx, &lkproto.CreateAgentDispatchRequest{
		AgentName: c.agentName,
		Room:      sessionName,
		Metadata:  string(metadata),
	})
	if err != nil {
		return "", fmt.Errorf("create dispatch for %s: %w", sessionName, err)
	}

	log.Printf("[LiveKit] Dispatch %s created for session %s", dispatch.Id, sessionName)
	return dispatch.Id, nil
}

// CountParticipants queries live occupancy for a session. A provider
// response saying the room is gone is wrapped with dialer.ErrSessionGone so
// the caller can tell teardown apart from transient failures.
func (c *Client) CountParticipants(ctx context.Context, sessionName string) (int, error) {
	res, err := c.rooms.ListParticipants(ctx, &lkproto.ListParticipantsRequest{
		Room: sessionName,
	})
	if err != nil {
		if isNotFound(err) {
			return 0, fmt.Errorf("%w: %s", dialer.ErrSessionGone, sessionName)
		}
		return 0, fmt.Errorf("list participants for %s: %w", sessionName, err)
	}
	return len(res.Participants), nil
}

// isNotFound detects room-teardown errors. The server reports these as
// twirp not_found errors; matching the message keeps us independent of the
// exact error type across SDK versions.
func isNotFound(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "does not exist")
}
