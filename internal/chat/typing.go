package chat

import (
	"fmt"
	"time"
)

// TypingExpiry is how long a typing signal stays visible without a
// refresh.
const TypingExpiry = 3 * time.Second

// timeNow is swapped in tests to control typing expiry.
var timeNow = time.Now

type typingEntry struct {
	nickname string
	until    time.Time
}

// TypingTracker aggregates per-user typing signals for one room. Each
// user has an independent expiry timestamp, refreshed on every typing
// event, so overlapping typists expire individually.
type TypingTracker struct {
	users map[int64]typingEntry
	order []int64
}

func NewTypingTracker() *TypingTracker {
	return &TypingTracker{users: make(map[int64]typingEntry)}
}

// Set records or clears a user's typing state as of now.
func (t *TypingTracker) Set(userID int64, nickname string, isTyping bool, now time.Time) {
	if !isTyping {
		t.remove(userID)
		return
	}
	if _, ok := t.users[userID]; !ok {
		t.order = append(t.order, userID)
	}
	t.users[userID] = typingEntry{nickname: nickname, until: now.Add(TypingExpiry)}
}

// Clear drops all typing state. Called on room switch so a label never
// leaks into another room.
func (t *TypingTracker) Clear() {
	t.users = make(map[int64]typingEntry)
	t.order = nil
}

// Active returns the nicknames still typing as of now, oldest signal
// first. Expired entries are pruned as a side effect.
func (t *TypingTracker) Active(now time.Time) []string {
	var names []string
	var expired []int64
	for _, id := range t.order {
		e, ok := t.users[id]
		if !ok {
			continue
		}
		if now.After(e.until) {
			expired = append(expired, id)
			continue
		}
		names = append(names, e.nickname)
	}
	for _, id := range expired {
		t.remove(id)
	}
	return names
}

// Label renders the indicator line: one name, two names, or a count.
// Empty when nobody is typing.
func (t *TypingTracker) Label(now time.Time) string {
	names := t.Active(now)
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0] + " is typing..."
	case 2:
		return names[0] + ", " + names[1] + " are typing..."
	default:
		return fmt.Sprintf("%d people are typing...", len(names))
	}
}

func (t *TypingTracker) remove(userID int64) {
	delete(t.users, userID)
	for i, id := range t.order {
		if id == userID {
			t.order = append(t.order[:i], t.order[i+1:]...)
			return
		}
	}
}
