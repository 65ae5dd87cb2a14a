package realtime

import (
	"sync"

	"github.com/google/uuid"
)

// BaselineRecord is one REST-fetched read/unread fact.
type BaselineRecord struct {
	Key    string
	Unread bool
}

// AckFunc pushes a read acknowledgement to the server so the next baseline
// agrees with local state.
type AckFunc func(domain Domain, key string)

// UnreadStore is the single source of truth for unread state. REST baselines
// and live events both funnel through it; UI consumers only read derived
// values and call MarkRead/MarkUnread. A baseline always wins over any
// live-event-derived state for its domain.
type UnreadStore struct {
	mu     sync.Mutex
	unread map[Domain]map[string]struct{}
	ack    AckFunc
}

func NewUnreadStore() *UnreadStore {
	return &UnreadStore{
		unread: map[Domain]map[string]struct{}{
			DomainNotifications: {},
			DomainChat:          {},
		},
	}
}

// SetAckFunc installs the server acknowledgement hook invoked by MarkRead.
func (s *UnreadStore) SetAckFunc(fn AckFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ack = fn
}

// Baseline replaces the unread set for one domain with the authoritative
// REST-fetched state, discarding whatever live events had accumulated there.
func (s *UnreadStore) Baseline(domain Domain, records []BaselineRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fresh := make(map[string]struct{})
	for _, r := range records {
		if r.Unread {
			fresh[r.Key] = struct{}{}
		}
	}
	s.unread[domain] = fresh
}

// Apply folds a live event into the unread state. Events echoing back to
// their own sender never mark anything unread; the transport is not trusted
// to filter them.
func (s *UnreadStore) Apply(ev Event, currentUserID uuid.UUID) {
	if ev.SenderID == currentUserID {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unread[domainForKind(ev.Kind)][ev.ConversationKey] = struct{}{}
}

// MarkRead clears the unread flag for a scope key and acknowledges the read
// server-side. Safe to call repeatedly; the second call is a no-op locally
// and the ack is idempotent server-side.
func (s *UnreadStore) MarkRead(key string) {
	domain := DomainForKey(key)

	s.mu.Lock()
	delete(s.unread[domain], key)
	ack := s.ack
	s.mu.Unlock()

	if ack != nil {
		ack(domain, key)
	}
}

// MarkUnread flags a scope key without waiting for a push event.
func (s *UnreadStore) MarkUnread(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unread[DomainForKey(key)][key] = struct{}{}
}

// IsUnread reports the flag for one scope key.
func (s *UnreadStore) IsUnread(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.unread[DomainForKey(key)][key]
	return ok
}

// HasUnread reports whether anything is unread in any domain. Derived on
// every call, never cached.
func (s *UnreadStore) HasUnread() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, keys := range s.unread {
		if len(keys) > 0 {
			return true
		}
	}
	return false
}

// HasNewNotification reports whether any notification is unread.
func (s *UnreadStore) HasNewNotification() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.unread[DomainNotifications]) > 0
}

// HasNewMessage reports whether any conversation is unread.
func (s *UnreadStore) HasNewMessage() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.unread[DomainChat]) > 0
}

// Snapshot returns a copy of the full unread map for UI rendering.
func (s *UnreadStore) Snapshot() map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]bool)
	for _, keys := range s.unread {
		for k := range keys {
			out[k] = true
		}
	}
	return out
}
