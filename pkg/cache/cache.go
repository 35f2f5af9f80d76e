// Package cache is the opportunistic local store backing the client when
// the API is unreachable: the last room list, recent messages per room,
// unsent drafts, and the theme preference. It is a fallback, not a
// source of truth — entries can go stale and readers must tolerate that.
package cache

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/pebble/v2"
	"github.com/rs/zerolog/log"

	"github.com/huddlehq/huddle/pkg/domain"
)

const roomsKey = "rooms"
const themeKey = "prefs/theme"

// Store is a pebble-backed key-value cache. A nil Store is valid and
// ignores all operations, so callers can run cache-less.
type Store struct {
	db *pebble.DB
	mu sync.Mutex
}

// Theme is the persisted appearance preference.
type Theme struct {
	Mode       string `json:"mode"` // "dark" or "light"
	Color      string `json:"color"`
	Background string `json:"background"`
}

// Open opens (or creates) the cache at dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cache.Open: %w", err)
	}
	db, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("cache.Open: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying store.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveRooms replaces the cached room list snapshot. The room list is
// wholly owned by the periodic reload, so the snapshot is replaced as a
// unit rather than merged.
func (s *Store) SaveRooms(rooms []domain.Room) error {
	if s == nil || s.db == nil {
		return nil
	}
	val, err := json.Marshal(rooms)
	if err != nil {
		return fmt.Errorf("cache.SaveRooms: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Set([]byte(roomsKey), val, pebble.NoSync)
}

// LoadRooms returns the cached room list, or nil when absent.
func (s *Store) LoadRooms() ([]domain.Room, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	val, closer, err := s.db.Get([]byte(roomsKey))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache.LoadRooms: %w", err)
	}
	defer closer.Close() //nolint:errcheck
	var rooms []domain.Room
	if err := json.Unmarshal(val, &rooms); err != nil {
		return nil, fmt.Errorf("cache.LoadRooms: %w", err)
	}
	return rooms, nil
}

// SaveMessages upserts messages into the per-room cache. Keys embed the
// message id big-endian so iteration order equals id order.
func (s *Store) SaveMessages(roomID int64, msgs []domain.Message) error {
	if s == nil || s.db == nil || len(msgs) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := s.db.NewBatch()
	defer batch.Close() //nolint:errcheck
	for _, m := range msgs {
		val, err := json.Marshal(m)
		if err != nil {
			log.Debug().Err(err).Int64("message_id", m.ID).Msg("cache: skip unmarshalable message")
			continue
		}
		if err := batch.Set(messageKey(roomID, m.ID), val, nil); err != nil {
			return fmt.Errorf("cache.SaveMessages: %w", err)
		}
	}
	return batch.Commit(pebble.NoSync)
}

// RecentMessages returns up to limit cached messages for a room in
// ascending id order (the most recent ones).
func (s *Store) RecentMessages(roomID int64, limit int) ([]domain.Message, error) {
	if s == nil || s.db == nil || limit <= 0 {
		return nil, nil
	}
	lo, hi := roomBounds(roomID)
	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
	if err != nil {
		return nil, fmt.Errorf("cache.RecentMessages: %w", err)
	}
	defer it.Close() //nolint:errcheck

	// Walk backwards from the newest key, then reverse.
	out := make([]domain.Message, 0, limit)
	for ok := it.Last(); ok && len(out) < limit; ok = it.Prev() {
		var m domain.Message
		if err := json.Unmarshal(it.Value(), &m); err != nil {
			continue
		}
		out = append(out, m)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// DeleteMessage removes a single cached message (delete is removal, not
// tombstoning).
func (s *Store) DeleteMessage(roomID, msgID int64) error {
	if s == nil || s.db == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Delete(messageKey(roomID, msgID), pebble.NoSync)
}

// SaveDraft stores the unsent input for a room. Empty text clears it.
func (s *Store) SaveDraft(roomID int64, text string) error {
	if s == nil || s.db == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := draftKey(roomID)
	if text == "" {
		return s.db.Delete(key, pebble.NoSync)
	}
	return s.db.Set(key, []byte(text), pebble.NoSync)
}

// LoadDraft returns the stored draft for a room, or "".
func (s *Store) LoadDraft(roomID int64) (string, error) {
	if s == nil || s.db == nil {
		return "", nil
	}
	val, closer, err := s.db.Get(draftKey(roomID))
	if err == pebble.ErrNotFound {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("cache.LoadDraft: %w", err)
	}
	defer closer.Close() //nolint:errcheck
	return string(val), nil
}

// SaveTheme persists the theme preference blob.
func (s *Store) SaveTheme(t Theme) error {
	if s == nil || s.db == nil {
		return nil
	}
	val, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("cache.SaveTheme: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Set([]byte(themeKey), val, pebble.NoSync)
}

// LoadTheme returns the stored theme, or the zero Theme when absent.
func (s *Store) LoadTheme() (Theme, error) {
	var t Theme
	if s == nil || s.db == nil {
		return t, nil
	}
	val, closer, err := s.db.Get([]byte(themeKey))
	if err == pebble.ErrNotFound {
		return t, nil
	}
	if err != nil {
		return t, fmt.Errorf("cache.LoadTheme: %w", err)
	}
	defer closer.Close() //nolint:errcheck
	if err := json.Unmarshal(val, &t); err != nil {
		return Theme{}, fmt.Errorf("cache.LoadTheme: %w", err)
	}
	return t, nil
}

func messageKey(roomID, msgID int64) []byte {
	key := make([]byte, 4+8+1+8)
	copy(key, "msg/")
	binary.BigEndian.PutUint64(key[4:], uint64(roomID))
	key[12] = '/'
	binary.BigEndian.PutUint64(key[13:], uint64(msgID))
	return key
}

// roomBounds returns the iteration bounds covering all message keys for
// a room.
func roomBounds(roomID int64) (lo, hi []byte) {
	lo = messageKey(roomID, 0)
	hi = make([]byte, len(lo))
	copy(hi, lo)
	for i := 13; i < len(hi); i++ {
		hi[i] = 0xff
	}
	return lo, hi
}

func draftKey(roomID int64) []byte {
	key := make([]byte, 6+8)
	copy(key, "draft/")
	binary.BigEndian.PutUint64(key[6:], uint64(roomID))
	return key
}
