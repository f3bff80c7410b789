// Package bridge is the conversation engine between the Matrix event stream
// and the completion API. A single dispatcher goroutine consumes incoming
// events and fans them out to per-room FIFO queues, each drained by its own
// goroutine, so a room's pipeline (append user turn, request completion,
// record result, send reply) is strictly sequential while unrelated rooms
// proceed in parallel.
package bridge

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bdobrica/kaiwa/common/retry"
	"github.com/bdobrica/kaiwa/internal/kaiwa/auth"
	"github.com/bdobrica/kaiwa/internal/kaiwa/session"
)

const (
	defaultQueueSize     = 32
	defaultShutdownGrace = 15 * time.Second
	defaultInviteBackoff = 2 * time.Second

	// DefaultApologyText is posted to a room when a completion fails for
	// good, so the user gets an answer rather than silence.
	DefaultApologyText = "Sorry, I could not get a reply from the model. Please try again in a moment."
)

// Config wires the bridge's collaborators and tunables.
type Config struct {
	Sessions  *session.Store
	Filter    *auth.Filter
	Completer Completer
	Messenger Messenger

	// QueueSize bounds each room's pending-event queue. When a room's queue
	// is full the newest event is dropped with a warning instead of stalling
	// the dispatcher. Default: 32.
	QueueSize int

	// ShutdownGrace is how long in-flight room pipelines get to finish after
	// cancellation before they are abandoned. Default: 15s.
	ShutdownGrace time.Duration

	// InviteBackoff is the delay before the single invite-accept retry.
	// Default: 2s.
	InviteBackoff time.Duration

	// ApologyText overrides DefaultApologyText when non-empty.
	ApologyText string
}

// Bridge routes incoming events through per-room pipelines.
type Bridge struct {
	cfg Config

	mu     sync.Mutex
	queues map[string]chan Event

	inviteMu sync.Mutex
	accepted map[string]struct{}

	wg sync.WaitGroup

	// pipeCtx outlives the dispatcher's own context so in-flight pipelines
	// can finish during the shutdown grace period.
	pipeCtx    context.Context
	pipeCancel context.CancelFunc
}

// New creates a Bridge. Sessions, Filter, Completer and Messenger are
// required.
func New(cfg Config) *Bridge {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = defaultShutdownGrace
	}
	if cfg.InviteBackoff <= 0 {
		cfg.InviteBackoff = defaultInviteBackoff
	}
	if cfg.ApologyText == "" {
		cfg.ApologyText = DefaultApologyText
	}
	return &Bridge{
		cfg:      cfg,
		queues:   make(map[string]chan Event),
		accepted: make(map[string]struct{}),
	}
}

// Run consumes events until ctx is cancelled or the channel closes, then
// drains the per-room pipelines within the shutdown grace period. It is the
// only goroutine that touches the queue map while running.
func (b *Bridge) Run(ctx context.Context, events <-chan Event) error {
	b.pipeCtx, b.pipeCancel = context.WithCancel(context.Background())
	defer b.pipeCancel()

	slog.Info("bridge: dispatcher running")
	for {
		select {
		case <-ctx.Done():
			slog.Info("bridge: cancellation received, draining pipelines")
			return b.drain()
		case evt, ok := <-events:
			if !ok {
				slog.Info("bridge: event stream closed, draining pipelines")
				return b.drain()
			}
			b.route(evt)
		}
	}
}

// route hands one event to the right pipeline. Invites run independently of
// room ordering; messages are filtered, then queued per room.
func (b *Bridge) route(evt Event) {
	switch evt.Kind {
	case KindInvite:
		b.wg.Add(1)
		go b.handleInvite(evt)
		return
	case KindMessage:
		// Handled below.
	default:
		slog.Debug("bridge: unknown event kind", "kind", evt.Kind, "room", evt.RoomID)
		return
	}

	if evt.Body == "" {
		// No usable body, typically an undecryptable or redacted event.
		slog.Debug("bridge: dropping event without text body", "room", evt.RoomID, "event", evt.EventID)
		return
	}
	if !b.cfg.Filter.Allowed(evt.Sender) {
		// Policy drop: no reply, no transcript mutation.
		slog.Debug("bridge: dropping message from unauthorized sender", "sender", evt.Sender, "room", evt.RoomID)
		return
	}

	q := b.queueFor(evt.RoomID)
	select {
	case q <- evt:
	default:
		slog.Warn("bridge: room queue full, dropping event",
			"room", evt.RoomID, "event", evt.EventID, "queue_size", b.cfg.QueueSize)
	}
}

// queueFor returns the room's queue, starting its pipeline goroutine on
// first use.
func (b *Bridge) queueFor(roomID string) chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.queues[roomID]
	if !ok {
		q = make(chan Event, b.cfg.QueueSize)
		b.queues[roomID] = q
		b.wg.Add(1)
		go b.drainRoom(roomID, q)
	}
	return q
}

// drainRoom processes one room's events strictly in arrival order. Message
// N+1 does not start until message N's pipeline has completed or failed.
func (b *Bridge) drainRoom(roomID string, q chan Event) {
	defer b.wg.Done()
	for evt := range q {
		b.process(evt)
	}
	slog.Debug("bridge: room pipeline stopped", "room", roomID)
}

// process runs the full per-message pipeline: append the user turn, mark the
// completion in flight, request a reply, record the outcome, send the reply
// or an apology. Failures stay contained to this room.
func (b *Bridge) process(evt Event) {
	ctx := b.pipeCtx
	log := slog.With("room", evt.RoomID, "event", evt.EventID, "sender", evt.Sender)

	transcript := b.cfg.Sessions.AppendUserTurn(evt.RoomID, evt.Body)

	if !b.cfg.Sessions.BeginCompletion(evt.RoomID) {
		// Per-room FIFO makes this unreachable; seeing it means the
		// dispatcher is broken, not the user. Abort without touching the
		// session so other rooms stay healthy.
		log.Error("bridge: completion already in flight, dispatcher ordering violated")
		return
	}

	if err := b.cfg.Messenger.MarkRead(ctx, evt.RoomID, evt.EventID); err != nil {
		log.Debug("bridge: read receipt failed", "err", err)
	}
	if err := b.cfg.Messenger.SetTyping(ctx, evt.RoomID, true); err != nil {
		log.Debug("bridge: typing notice failed", "err", err)
	}

	reply, err := b.cfg.Completer.RequestReply(ctx, transcript)

	if terr := b.cfg.Messenger.SetTyping(ctx, evt.RoomID, false); terr != nil {
		log.Debug("bridge: clearing typing notice failed", "err", terr)
	}

	if err != nil {
		b.cfg.Sessions.CompleteWithFailure(evt.RoomID)
		log.Error("bridge: completion failed", "err", err)
		if _, serr := b.cfg.Messenger.SendText(ctx, evt.RoomID, b.cfg.ApologyText); serr != nil {
			log.Warn("bridge: could not deliver failure notice", "err", serr)
		}
		return
	}

	b.cfg.Sessions.CompleteWithReply(evt.RoomID, reply)
	if _, err := b.cfg.Messenger.SendText(ctx, evt.RoomID, reply); err != nil {
		// Delivery reliability is the transport's concern; the transcript
		// already holds the reply, so just record the diagnostic.
		log.Error("bridge: reply send failed", "err", err)
	}
}

// handleInvite accepts a room invitation: one attempt plus one retry with
// backoff, then give up with a diagnostic. Duplicate invites for a room the
// bridge already accepted are ignored.
func (b *Bridge) handleInvite(evt Event) {
	defer b.wg.Done()

	b.inviteMu.Lock()
	if _, ok := b.accepted[evt.RoomID]; ok {
		b.inviteMu.Unlock()
		slog.Debug("bridge: duplicate invite ignored", "room", evt.RoomID)
		return
	}
	b.accepted[evt.RoomID] = struct{}{}
	b.inviteMu.Unlock()

	slog.Info("bridge: accepting room invite", "room", evt.RoomID, "inviter", evt.Sender)
	err := retry.Do(b.pipeCtx, retry.Config{
		MaxAttempts:  2,
		InitialDelay: b.cfg.InviteBackoff,
	}, func() error {
		return b.cfg.Messenger.AcceptInvite(b.pipeCtx, evt.RoomID)
	})
	if err != nil {
		slog.Error("bridge: could not accept invite", "room", evt.RoomID, "err", err)
		// Forget the room so a fresh invite can try again.
		b.inviteMu.Lock()
		delete(b.accepted, evt.RoomID)
		b.inviteMu.Unlock()
		return
	}
	slog.Info("bridge: joined room", "room", evt.RoomID)
}

// drain closes every room queue, waits up to the grace period for the
// pipelines to finish, then cancels whatever is still running. A completion
// abandoned this way has its response discarded along with the process's
// session state.
func (b *Bridge) drain() error {
	b.mu.Lock()
	for _, q := range b.queues {
		close(q)
	}
	b.queues = make(map[string]chan Event)
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("bridge: all pipelines drained")
	case <-time.After(b.cfg.ShutdownGrace):
		slog.Warn("bridge: shutdown grace expired, abandoning in-flight pipelines",
			"grace", b.cfg.ShutdownGrace)
		b.pipeCancel()
	}
	return nil
}
