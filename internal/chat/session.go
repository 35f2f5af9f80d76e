// Package chat owns the client-side session state: the open room and
// its key, the rendered message list, the resync cursor, older-message
// pagination, typing aggregation, and read bookkeeping. All of it lives
// in one Session struct owned by the UI loop — there are no package
// globals and no concurrent writers. Realtime handlers hand their
// payloads to the UI loop, which calls the Apply methods here.
package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/huddlehq/huddle/pkg/cache"
	"github.com/huddlehq/huddle/pkg/client"
	"github.com/huddlehq/huddle/pkg/domain"
	"github.com/huddlehq/huddle/pkg/e2e"
	"github.com/huddlehq/huddle/pkg/realtime"
)

// PageSize is the older-message page size. A page shorter than this is
// proof of exhaustion.
const PageSize = 30

// MaxMessageLen mirrors the server-side content limit.
const MaxMessageLen = 10000

// Validation errors surfaced inline, before any network round trip.
var (
	ErrEmptyMessage   = fmt.Errorf("message is empty")
	ErrMessageTooLong = fmt.Errorf("message exceeds %d characters", MaxMessageLen)
	ErrNoRoom         = fmt.Errorf("no room is open")
	ErrNoRoomKey      = fmt.Errorf("room has no encryption key")
)

// Session is the coordinator for one signed-in chat session. It is not
// goroutine-safe: every method must be called from the UI loop.
type Session struct {
	api   *client.Client
	ch    *realtime.Channel
	store *cache.Store

	user domain.User

	room    *domain.Room
	roomKey string

	// Rendered message state for the open room, ascending id order.
	messages []domain.Message

	// Older-page cursor state.
	oldestID     int64
	exhausted    bool
	loadingOlder bool

	// generation guards against stale room-open responses: a response
	// captured under an older generation is discarded.
	generation uint64

	typing *TypingTracker

	// pending batches incoming new_message events between UI frames.
	pending []domain.Message

	// readSent records message ids already reported read this session.
	readSent map[int64]bool
}

// NewSession creates a session for the given signed-in user.
func NewSession(api *client.Client, ch *realtime.Channel, store *cache.Store, user domain.User) *Session {
	return &Session{
		api:      api,
		ch:       ch,
		store:    store,
		user:     user,
		typing:   NewTypingTracker(),
		readSent: make(map[int64]bool),
	}
}

// User returns the signed-in user.
func (s *Session) User() domain.User { return s.user }

// API exposes the REST client for calls the session does not wrap.
func (s *Session) API() *client.Client { return s.api }

// Room returns the open room, or nil.
func (s *Session) Room() *domain.Room { return s.room }

// Messages returns the rendered message list for the open room.
func (s *Session) Messages() []domain.Message { return s.messages }

// Typing returns the typing tracker for the open room.
func (s *Session) Typing() *TypingTracker { return s.typing }

// Connected reports whether the realtime channel is usable for emits.
func (s *Session) Connected() bool {
	return s.ch != nil && s.ch.State() == realtime.StateConnected
}

// --- room lifecycle ---

// OpenRoom switches the session to a room and returns the request
// generation the caller must pass back to FinishOpen. Outstanding
// typing timers are cleared so labels cannot leak across rooms, and
// the previous room is left on the channel.
func (s *Session) OpenRoom(room domain.Room) uint64 {
	if s.room != nil && s.room.ID != room.ID && s.ch != nil {
		if err := s.ch.LeaveRoom(s.room.ID); err != nil {
			log.Debug().Err(err).Int64("room_id", s.room.ID).Msg("chat: leave_room emit failed")
		}
	}

	s.generation++
	r := room
	s.room = &r
	s.roomKey = room.EncryptionKey
	s.messages = nil
	s.pending = nil
	s.oldestID = 0
	s.exhausted = false
	s.loadingOlder = false
	s.typing.Clear()

	if s.ch != nil {
		if err := s.ch.JoinRoom(room.ID); err != nil {
			log.Debug().Err(err).Int64("room_id", room.ID).Msg("chat: join_room emit failed")
		}
	}
	return s.generation
}

// FinishOpen applies the initial message load for a room-open request.
// A response from a superseded generation is discarded and the method
// returns false.
func (s *Session) FinishOpen(generation uint64, msgs []domain.Message) bool {
	if generation != s.generation || s.room == nil {
		return false
	}
	s.messages = msgs
	if len(msgs) > 0 {
		s.oldestID = msgs[0].ID
	}
	s.exhausted = len(msgs) < PageSize
	s.cacheMessages(msgs)
	return true
}

// Generation returns the current room-open generation.
func (s *Session) Generation() uint64 { return s.generation }

// --- resync ---

// MaxID returns the highest rendered message id — the resync cursor.
func (s *Session) MaxID() int64 {
	if len(s.messages) == 0 {
		return 0
	}
	return s.messages[len(s.messages)-1].ID
}

// Resync splices the post-reconnect message list into the rendered
// state: only messages with id strictly above the cursor are appended,
// in server order. Applying the same list twice appends nothing, so a
// doubled reconnect event cannot duplicate messages. The appended
// messages are returned for incremental rendering.
func (s *Session) Resync(msgs []domain.Message) []domain.Message {
	cursor := s.MaxID()
	var appended []domain.Message
	for _, m := range msgs {
		if m.ID > cursor {
			appended = append(appended, m)
		}
	}
	s.messages = append(s.messages, appended...)
	s.cacheMessages(appended)
	return appended
}

// --- incoming events ---

// QueueIncoming buffers a new_message event. Bursts are coalesced and
// applied once per UI frame by FlushIncoming.
func (s *Session) QueueIncoming(m domain.Message) {
	s.pending = append(s.pending, m)
}

// FlushIncoming applies all buffered messages for the open room and
// returns the ones that were appended. Messages for other rooms and
// duplicates are dropped.
func (s *Session) FlushIncoming() []domain.Message {
	if len(s.pending) == 0 {
		return nil
	}
	batch := s.pending
	s.pending = nil

	var appended []domain.Message
	for _, m := range batch {
		if s.room == nil || m.RoomID != s.room.ID {
			continue
		}
		if m.ID <= s.MaxID() {
			continue
		}
		s.messages = append(s.messages, m)
		appended = append(appended, m)
		// A sender's own echo stops their typing label immediately.
		s.typing.Set(m.SenderID, m.SenderName, false, timeNow())
	}
	s.cacheMessages(appended)
	return appended
}

// ApplyEdit patches a message on receipt of the edit broadcast. The
// local DOM-equivalent is only touched here, never at emit time.
func (s *Session) ApplyEdit(ev domain.MessageEditedEvent) bool {
	if s.room == nil || ev.RoomID != s.room.ID {
		return false
	}
	for i := range s.messages {
		if s.messages[i].ID == ev.MessageID {
			s.messages[i].Content = ev.Content
			s.messages[i].Encrypted = ev.Encrypted
			s.cacheMessages(s.messages[i : i+1])
			return true
		}
	}
	return false
}

// ApplyDelete removes a message on receipt of the delete broadcast.
// Deletion is removal, not tombstoning.
func (s *Session) ApplyDelete(ev domain.MessageDeletedEvent) bool {
	if s.room == nil || ev.RoomID != s.room.ID {
		return false
	}
	for i := range s.messages {
		if s.messages[i].ID == ev.MessageID {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			if err := s.store.DeleteMessage(ev.RoomID, ev.MessageID); err != nil {
				log.Debug().Err(err).Msg("chat: cache delete failed")
			}
			return true
		}
	}
	return false
}

// ApplyReactions replaces a message's reaction set from the broadcast.
func (s *Session) ApplyReactions(ev domain.ReactionUpdatedEvent) bool {
	if s.room == nil || ev.RoomID != s.room.ID {
		return false
	}
	for i := range s.messages {
		if s.messages[i].ID == ev.MessageID {
			s.messages[i].Reactions = ev.Reactions
			return true
		}
	}
	return false
}

// ApplyProfileUpdate renames a sender across the rendered messages when
// that user changes their nickname. Returns how many messages changed.
func (s *Session) ApplyProfileUpdate(ev domain.ProfileUpdatedEvent) int {
	if ev.Nickname == "" {
		return 0
	}
	changed := 0
	for i := range s.messages {
		if s.messages[i].SenderID == ev.UserID && s.messages[i].SenderName != ev.Nickname {
			s.messages[i].SenderName = ev.Nickname
			changed++
		}
	}
	return changed
}

// ApplyReadUpdate takes the server's authoritative unread count for a
// message.
func (s *Session) ApplyReadUpdate(ev domain.ReadUpdatedEvent) bool {
	if s.room == nil || ev.RoomID != s.room.ID {
		return false
	}
	for i := range s.messages {
		if s.messages[i].ID == ev.MessageID {
			s.messages[i].UnreadCount = ev.UnreadCount
			return true
		}
	}
	return false
}

// ApplyTyping records a user_typing event for the open room. Events
// for other rooms and for the local user are ignored.
func (s *Session) ApplyTyping(ev domain.UserTypingEvent) {
	if s.room == nil || ev.RoomID != s.room.ID || ev.UserID == s.user.ID {
		return
	}
	s.typing.Set(ev.UserID, ev.Nickname, ev.IsTyping, timeNow())
}

// --- pagination ---

// PageOlderArgs returns the cursor for the next older page and marks
// the page in flight. ok is false while a page is loading, after
// exhaustion, or when nothing is rendered yet.
func (s *Session) PageOlderArgs() (beforeID int64, generation uint64, ok bool) {
	if s.room == nil || s.loadingOlder || s.exhausted || s.oldestID == 0 {
		return 0, 0, false
	}
	s.loadingOlder = true
	return s.oldestID, s.generation, true
}

// FinishPageOlder prepends an older page. A short page proves
// exhaustion and stops further paging. Stale generations are dropped.
func (s *Session) FinishPageOlder(generation uint64, msgs []domain.Message) bool {
	s.loadingOlder = false
	if generation != s.generation || s.room == nil {
		return false
	}
	if len(msgs) == 0 {
		s.exhausted = true
		return true
	}
	s.messages = append(append([]domain.Message{}, msgs...), s.messages...)
	s.oldestID = msgs[0].ID
	if len(msgs) < PageSize {
		s.exhausted = true
	}
	s.cacheMessages(msgs)
	return true
}

// Exhausted reports whether all older messages have been loaded.
func (s *Session) Exhausted() bool { return s.exhausted }

// --- outbound operations ---

// SendMessage validates, encrypts, and emits a text message. The
// rendered copy arrives back through the realtime channel; nothing is
// inserted locally.
func (s *Session) SendMessage(text string, replyTo *int64) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	if len([]rune(text)) > MaxMessageLen {
		return ErrMessageTooLong
	}
	if s.room == nil {
		return ErrNoRoom
	}
	if s.roomKey == "" {
		return ErrNoRoomKey
	}
	payload := domain.SendMessagePayload{
		RoomID:    s.room.ID,
		Content:   e2e.Encrypt(text, s.roomKey),
		Type:      domain.MessageText,
		Encrypted: true,
		ReplyTo:   replyTo,
	}
	if err := s.ch.SendMessage(payload); err != nil {
		return fmt.Errorf("chat.SendMessage: %w", err)
	}
	return nil
}

// SendFileMessage emits a file or image message referencing a completed
// upload.
func (s *Session) SendFileMessage(msgType, fileName, uploadToken string) error {
	if s.room == nil {
		return ErrNoRoom
	}
	payload := domain.SendMessagePayload{
		RoomID:      s.room.ID,
		Content:     fileName,
		Type:        msgType,
		Encrypted:   false,
		UploadToken: uploadToken,
	}
	if err := s.ch.SendMessage(payload); err != nil {
		return fmt.Errorf("chat.SendFileMessage: %w", err)
	}
	return nil
}

// EditMessage re-encrypts new content with the room key and emits the
// edit. The rendered message changes only when the broadcast arrives,
// and a disconnected client cannot edit at all.
func (s *Session) EditMessage(messageID int64, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	if s.room == nil {
		return ErrNoRoom
	}
	if s.roomKey == "" {
		return ErrNoRoomKey
	}
	payload := domain.EditMessagePayload{
		MessageID: messageID,
		RoomID:    s.room.ID,
		Content:   e2e.Encrypt(text, s.roomKey),
		Encrypted: true,
	}
	if err := s.ch.EditMessage(payload); err != nil {
		return fmt.Errorf("chat.EditMessage: %w", err)
	}
	return nil
}

// DeleteMessage emits a delete. Local removal happens on the broadcast.
func (s *Session) DeleteMessage(messageID int64) error {
	if s.room == nil {
		return ErrNoRoom
	}
	payload := domain.DeleteMessagePayload{MessageID: messageID, RoomID: s.room.ID}
	if err := s.ch.DeleteMessage(payload); err != nil {
		return fmt.Errorf("chat.DeleteMessage: %w", err)
	}
	return nil
}

// NotifyTyping signals the open room that the local user started or
// stopped typing. Best effort: a dropped signal only delays the
// indicator on the other side.
func (s *Session) NotifyTyping(isTyping bool) {
	if s.room == nil {
		return
	}
	if err := s.ch.Typing(s.room.ID, isTyping); err != nil {
		log.Debug().Err(err).Msg("chat: typing emit failed")
	}
}

// ToggleReaction adds or removes the local user's reaction to a
// message. The rendered set changes when the broadcast arrives.
func (s *Session) ToggleReaction(messageID int64, emoji string) error {
	if err := s.ch.ToggleReaction(messageID, emoji); err != nil {
		return fmt.Errorf("chat.ToggleReaction: %w", err)
	}
	return nil
}

// Rejoin re-emits join_room for the open room. Called after a
// reconnect, when the server has a fresh socket with no room state.
func (s *Session) Rejoin() {
	if s.room == nil || s.ch == nil {
		return
	}
	if err := s.ch.JoinRoom(s.room.ID); err != nil {
		log.Debug().Err(err).Int64("room_id", s.room.ID).Msg("chat: rejoin emit failed")
	}
}

// MarkRead reports a message read, once per message per session.
func (s *Session) MarkRead(messageID int64) {
	if s.room == nil || s.readSent[messageID] {
		return
	}
	if err := s.ch.MessageRead(s.room.ID, messageID); err != nil {
		log.Debug().Err(err).Int64("message_id", messageID).Msg("chat: message_read emit failed")
		return
	}
	s.readSent[messageID] = true
}

// --- fetching with offline fallback ---

// FetchRooms loads the room list from the API, falling back to the
// local cache when the call fails. fromCache tells the caller the list
// may be stale.
func (s *Session) FetchRooms(ctx context.Context) (rooms []domain.Room, fromCache bool, err error) {
	rooms, err = s.api.ListRooms(ctx)
	if err == nil {
		domain.SortRooms(rooms)
		if cerr := s.store.SaveRooms(rooms); cerr != nil {
			log.Debug().Err(cerr).Msg("chat: room cache write failed")
		}
		return rooms, false, nil
	}

	log.Warn().Err(err).Msg("chat: room list fetch failed, trying cache")
	cached, cerr := s.store.LoadRooms()
	if cerr != nil || cached == nil {
		return nil, false, err
	}
	return cached, true, nil
}

// FetchMessages loads a room's newest messages from the API, falling
// back to the local cache when the call fails.
func (s *Session) FetchMessages(ctx context.Context, roomID int64) (msgs []domain.Message, fromCache bool, err error) {
	msgs, err = s.api.GetMessages(ctx, roomID, 0, PageSize)
	if err == nil {
		return msgs, false, nil
	}

	log.Warn().Err(err).Int64("room_id", roomID).Msg("chat: message fetch failed, trying cache")
	cached, cerr := s.store.RecentMessages(roomID, PageSize)
	if cerr != nil || len(cached) == 0 {
		return nil, false, err
	}
	return cached, true, nil
}

// --- display ---

// DisplayText decrypts a message body with the open room's key for
// rendering. Undecryptable bodies are flagged so the view can style
// them instead of printing raw ciphertext.
func (s *Session) DisplayText(m domain.Message) (text string, undecryptable bool) {
	if !m.Encrypted {
		return m.Content, false
	}
	res := e2e.Decrypt(m.Content, s.roomKey)
	return res.Text, res.State == e2e.StateUndecryptable
}

// Draft returns the cached unsent input for a room.
func (s *Session) Draft(roomID int64) string {
	d, err := s.store.LoadDraft(roomID)
	if err != nil {
		log.Debug().Err(err).Msg("chat: draft load failed")
		return ""
	}
	return d
}

// SaveDraft stores unsent input for a room. Best effort.
func (s *Session) SaveDraft(roomID int64, text string) {
	if err := s.store.SaveDraft(roomID, text); err != nil {
		log.Debug().Err(err).Msg("chat: draft save failed")
	}
}

func (s *Session) cacheMessages(msgs []domain.Message) {
	if len(msgs) == 0 || s.room == nil {
		return
	}
	if err := s.store.SaveMessages(s.room.ID, msgs); err != nil {
		log.Debug().Err(err).Msg("chat: message cache write failed")
	}
}
