// Package matrix wraps the mautrix client for the bridge. It runs the sync
// loop, reduces raw Matrix events to the neutral bridge.Event stream, and
// implements the outbound operations the bridge consumes. The bridge core
// never touches mautrix types.
package matrix

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/bdobrica/kaiwa/internal/kaiwa/bridge"
)

const (
	eventBuffer   = 256
	typingTimeout = 60 * time.Second
)

// Config holds Matrix client configuration.
type Config struct {
	Homeserver  string
	UserID      string
	AccessToken string
	// DB is an optional SQLite connection used to persist the Matrix sync
	// token (next_batch) across restarts. When nil, an in-memory store is
	// used and old room history replays on every restart.
	DB *sql.DB
}

// Client wraps the mautrix client and exposes the bridge's collaborator
// surface.
type Client struct {
	client *mautrix.Client
	config *Config
	stopCh chan struct{}
	events chan bridge.Event
}

// Compile-time check that Client satisfies the bridge's outbound surface.
var _ bridge.Messenger = (*Client)(nil)

// New creates a Matrix client from config.
func New(config *Config) (*Client, error) {
	client, err := mautrix.NewClient(config.Homeserver, id.UserID(config.UserID), config.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Matrix client: %w", err)
	}

	c := &Client{
		client: client,
		config: config,
		stopCh: make(chan struct{}),
		events: make(chan bridge.Event, eventBuffer),
	}

	// With a persistent sync store the bot resumes from its last known
	// position after a restart instead of replaying the full room history.
	if config.DB != nil {
		client.Store = newDBSyncStore(config.DB)
		slog.Info("Matrix sync store: using persistent SQLite store")
	} else {
		slog.Warn("Matrix sync store: no DB configured, using in-memory store (history will replay on restart)")
	}

	return c, nil
}

// Events returns the stream of reduced incoming events. The channel is never
// closed; consumers stop via their own context.
func (c *Client) Events() <-chan bridge.Event {
	return c.events
}

// Start registers event handlers and begins syncing with the homeserver in a
// background goroutine, reconnecting with exponential backoff on failure.
// Without the reconnect loop a transient homeserver error would silently kill
// the sync goroutine and leave the bot deaf to all new messages.
func (c *Client) Start(ctx context.Context) error {
	syncer, ok := c.client.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return fmt.Errorf("unexpected syncer type %T", c.client.Syncer)
	}

	// Skip backlog delivered by the first sync so the bot does not answer
	// messages sent while it was offline without a saved sync token.
	syncer.OnSync(c.client.DontProcessOldEvents)

	syncer.OnEventType(event.EventMessage, c.handleMessage)
	syncer.OnEventType(event.StateMember, c.handleMember)

	go func() {
		const (
			backoffMin = 2 * time.Second
			backoffMax = 5 * time.Minute
		)
		backoff := backoffMin
		for {
			start := time.Now()
			if err := c.client.Sync(); err != nil {
				if time.Since(start) > time.Minute {
					// Sync ran for a while before failing, so the
					// connection was healthy. Start over from the
					// shortest delay.
					backoff = backoffMin
				}
				select {
				case <-c.stopCh:
					return
				default:
				}
				slog.Error("Matrix sync stopped; reconnecting", "err", err, "backoff", backoff)
				select {
				case <-c.stopCh:
					return
				case <-time.After(backoff):
				}
				backoff *= 2
				if backoff > backoffMax {
					backoff = backoffMax
				}
				continue
			}
			// Sync returned nil, which only happens on a clean StopSync.
			return
		}
	}()

	return nil
}

// Stop stops syncing.
func (c *Client) Stop() {
	close(c.stopCh)
	c.client.StopSync()
}

// SendText posts a plain text message to a room.
func (c *Client) SendText(ctx context.Context, roomID, body string) (string, error) {
	resp, err := c.client.SendText(ctx, id.RoomID(roomID), body)
	if err != nil {
		return "", fmt.Errorf("failed to send message: %w", err)
	}
	return resp.EventID.String(), nil
}

// SendNotice posts a notice (less intrusive than a normal message).
func (c *Client) SendNotice(ctx context.Context, roomID, body string) error {
	content := event.MessageEventContent{
		MsgType: event.MsgNotice,
		Body:    body,
	}
	_, err := c.client.SendMessageEvent(ctx, id.RoomID(roomID), event.EventMessage, &content)
	if err != nil {
		return fmt.Errorf("failed to send notice: %w", err)
	}
	return nil
}

// AcceptInvite joins the room the bot was invited to. Joining a room the bot
// is already a member of counts as success: homeservers answer M_FORBIDDEN
// for that case.
func (c *Client) AcceptInvite(ctx context.Context, roomID string) error {
	_, err := c.client.JoinRoomByID(ctx, id.RoomID(roomID))
	if err != nil {
		if errors.Is(err, mautrix.MForbidden) {
			slog.Warn("AcceptInvite: already a member or access denied, continuing", "room", roomID)
			return nil
		}
		return fmt.Errorf("failed to join room: %w", err)
	}
	return nil
}

// MarkRead sends a read receipt for the given event.
func (c *Client) MarkRead(ctx context.Context, roomID, eventID string) error {
	if err := c.client.MarkRead(ctx, id.RoomID(roomID), id.EventID(eventID)); err != nil {
		return fmt.Errorf("failed to send read receipt: %w", err)
	}
	return nil
}

// SetTyping toggles the bot's typing indicator in a room.
func (c *Client) SetTyping(ctx context.Context, roomID string, typing bool) error {
	timeout := time.Duration(0)
	if typing {
		timeout = typingTimeout
	}
	if _, err := c.client.UserTyping(ctx, id.RoomID(roomID), typing, timeout); err != nil {
		return fmt.Errorf("failed to set typing: %w", err)
	}
	return nil
}

// GetUserID returns the bot's own user ID.
func (c *Client) GetUserID() string {
	return c.config.UserID
}

// handleMessage reduces an incoming room message to a bridge event. Own
// messages and anything without a plain text body are dropped here so the
// bridge only ever sees usable turns.
func (c *Client) handleMessage(ctx context.Context, evt *event.Event) {
	if evt.Sender == id.UserID(c.config.UserID) {
		return
	}

	msgContent := evt.Content.AsMessage()
	if msgContent == nil || msgContent.MsgType != event.MsgText {
		slog.Debug("ignoring event without usable text body",
			"room", evt.RoomID, "event", evt.ID, "type", evt.Type.String())
		return
	}

	c.emit(bridge.Event{
		Kind:      bridge.KindMessage,
		RoomID:    evt.RoomID.String(),
		Sender:    evt.Sender.String(),
		Body:      msgContent.Body,
		EventID:   evt.ID.String(),
		Timestamp: time.UnixMilli(evt.Timestamp),
	})
}

// handleMember watches membership state for invites addressed to the bot and
// forwards them as invite events.
func (c *Client) handleMember(ctx context.Context, evt *event.Event) {
	member := evt.Content.AsMember()
	if member == nil || member.Membership != event.MembershipInvite {
		return
	}
	if evt.GetStateKey() != c.config.UserID {
		// Someone else's invite, not ours.
		return
	}

	c.emit(bridge.Event{
		Kind:      bridge.KindInvite,
		RoomID:    evt.RoomID.String(),
		Sender:    evt.Sender.String(),
		EventID:   evt.ID.String(),
		Timestamp: time.UnixMilli(evt.Timestamp),
	})
}

// emit pushes an event to the bridge unless the client is stopping.
func (c *Client) emit(evt bridge.Event) {
	select {
	case <-c.stopCh:
	case c.events <- evt:
	}
}
