// Package session owns the per-room conversation state of the bridge. Each
// room the bot talks in gets one RoomSession holding the ordered transcript
// that is replayed to the completion API as context. Sessions live in memory
// only: a process restart starts every conversation over. That is a
// documented limitation of the bridge, not an accident.
package session

import (
	"sync"

	"github.com/google/uuid"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	// RoleUser marks a turn written by a human in the room.
	RoleUser Role = "user"
	// RoleAssistant marks a turn written by the model.
	RoleAssistant Role = "assistant"
)

// Turn is a single message exchange unit. Immutable once appended.
type Turn struct {
	Role    Role
	Content string
}

// roomSession is the private per-room record. All access goes through the
// Store; callers only ever see snapshot copies of the transcript. Each room
// has its own lock so heavy traffic in one room never blocks another.
type roomSession struct {
	mu         sync.Mutex
	id         string // UUID, for log correlation only
	transcript []Turn
	inFlight   bool
}

func newRoomSession() *roomSession {
	return &roomSession{id: uuid.New().String()}
}

// trim drops the oldest turns until the transcript satisfies both ceilings.
// The most recent turn is always kept, even when it alone exceeds the
// character budget, so the user's latest message is never silently lost.
func (r *roomSession) trim(maxTurns, maxChars int) {
	if maxTurns > 0 && len(r.transcript) > maxTurns {
		excess := len(r.transcript) - maxTurns
		r.transcript = r.transcript[excess:]
	}
	if maxChars > 0 {
		for len(r.transcript) > 1 && transcriptChars(r.transcript) > maxChars {
			r.transcript = r.transcript[1:]
		}
	}
}

// transcriptChars returns the total content length of a transcript. Used as a
// cheap proxy for completion payload size.
func transcriptChars(turns []Turn) int {
	total := 0
	for _, t := range turns {
		total += len(t.Content)
	}
	return total
}
