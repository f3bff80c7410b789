package session

import (
	"log/slog"
	"sync"
)

// Config holds the transcript retention ceilings.
type Config struct {
	// MaxTurns is the maximum number of turns retained per room. When
	// exceeded, the oldest turns are dropped first. Default: 50.
	MaxTurns int

	// MaxChars is the total content-length budget per room transcript,
	// bounding the completion payload size. Default: 32000.
	MaxChars int
}

// DefaultConfig returns the documented retention defaults.
func DefaultConfig() Config {
	return Config{
		MaxTurns: 50,
		MaxChars: 32000,
	}
}

// Store is the sole owner of all RoomSessions. It hands out transcript
// snapshots, never live references, and serializes mutation per room.
// Safe for concurrent use.
type Store struct {
	mu     sync.Mutex // guards the rooms map only
	config Config
	rooms  map[string]*roomSession
}

// NewStore creates a Store with the given retention configuration.
func NewStore(cfg Config) *Store {
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = DefaultConfig().MaxTurns
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = DefaultConfig().MaxChars
	}
	return &Store{
		config: cfg,
		rooms:  make(map[string]*roomSession),
	}
}

// room returns the session for roomID, creating it lazily on first use.
func (s *Store) room(roomID string) *roomSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok {
		r = newRoomSession()
		s.rooms[roomID] = r
		slog.Debug("session: new room session", "room", roomID, "session", r.id)
	}
	return r
}

// AppendUserTurn appends a user turn to the room's transcript, applies the
// retention policy, and returns a snapshot of the resulting transcript to use
// as the completion request payload. Call this before issuing the completion
// request so the user's message is part of what gets sent.
func (s *Store) AppendUserTurn(roomID, content string) []Turn {
	r := s.room(roomID)
	r.mu.Lock()
	defer r.mu.Unlock()

	r.transcript = append(r.transcript, Turn{Role: RoleUser, Content: content})
	r.trim(s.config.MaxTurns, s.config.MaxChars)
	return snapshot(r.transcript)
}

// BeginCompletion atomically checks and sets the room's in-flight flag.
// It returns false when a completion request is already outstanding, in which
// case the caller must not proceed: the dispatcher's per-room ordering should
// make that impossible, so a false return indicates a dispatcher bug.
func (s *Store) BeginCompletion(roomID string) bool {
	r := s.room(roomID)
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.inFlight {
		return false
	}
	r.inFlight = true
	return true
}

// CompleteWithReply appends the assistant's reply to the transcript and
// clears the in-flight flag.
func (s *Store) CompleteWithReply(roomID, content string) {
	r := s.room(roomID)
	r.mu.Lock()
	defer r.mu.Unlock()

	r.transcript = append(r.transcript, Turn{Role: RoleAssistant, Content: content})
	r.trim(s.config.MaxTurns, s.config.MaxChars)
	r.inFlight = false
}

// CompleteWithFailure clears the in-flight flag without appending anything.
// The failed user turn stays in the transcript so the context is not lost
// when the user tries again.
func (s *Store) CompleteWithFailure(roomID string) {
	r := s.room(roomID)
	r.mu.Lock()
	defer r.mu.Unlock()

	r.inFlight = false
}

// Snapshot returns a copy of the room's current transcript, or nil when the
// room has no session yet.
func (s *Store) Snapshot(roomID string) []Turn {
	s.mu.Lock()
	r, ok := s.rooms[roomID]
	s.mu.Unlock()
	if !ok {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return snapshot(r.transcript)
}

// Rooms returns the IDs of all rooms with an active session.
func (s *Store) Rooms() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		ids = append(ids, id)
	}
	return ids
}

// snapshot copies a transcript so callers never hold a live reference into
// store-owned memory.
func snapshot(turns []Turn) []Turn {
	cp := make([]Turn, len(turns))
	copy(cp, turns)
	return cp
}
