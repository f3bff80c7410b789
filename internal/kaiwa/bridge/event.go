package bridge

import (
	"context"
	"time"

	"github.com/bdobrica/kaiwa/internal/kaiwa/session"
)

// EventKind distinguishes the two inputs the bridge reacts to.
type EventKind string

const (
	// KindMessage is a decrypted text message in a room the bot is in.
	KindMessage EventKind = "message"
	// KindInvite is an invitation for the bot to join a room.
	KindInvite EventKind = "invite"
)

// Event is one item from the incoming Matrix stream, already decrypted and
// reduced to what the bridge needs. The bridge never sees protocol types.
type Event struct {
	Kind      EventKind
	RoomID    string
	Sender    string
	Body      string
	EventID   string
	Timestamp time.Time
}

// Messenger is the outbound Matrix surface the bridge consumes. MarkRead and
// SetTyping are best-effort niceties; the bridge tolerates their failure.
type Messenger interface {
	// SendText posts a text message and returns the resulting event ID.
	SendText(ctx context.Context, roomID, body string) (string, error)
	// AcceptInvite joins the room the bot was invited to. Joining a room
	// the bot is already in must succeed.
	AcceptInvite(ctx context.Context, roomID string) error
	// MarkRead sends a read receipt for the given event.
	MarkRead(ctx context.Context, roomID, eventID string) error
	// SetTyping toggles the bot's typing indicator in a room.
	SetTyping(ctx context.Context, roomID string, typing bool) error
}

// Completer turns a transcript snapshot into a single assistant reply.
type Completer interface {
	RequestReply(ctx context.Context, transcript []session.Turn) (string, error)
}
