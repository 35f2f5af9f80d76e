package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/huddlehq/huddle/pkg/domain"
	"github.com/huddlehq/huddle/pkg/e2e"
	"github.com/huddlehq/huddle/pkg/realtime"
)

func testSession() *Session {
	return NewSession(nil, realtime.New("ws://127.0.0.1:1/socket", "t"), nil, domain.User{ID: 1, Username: "me"})
}

func msg(id, roomID int64) domain.Message {
	return domain.Message{ID: id, RoomID: roomID, SenderID: 99, Content: "m", MessageType: domain.MessageText}
}

func openTestRoom(s *Session, roomID int64, msgs ...domain.Message) uint64 {
	gen := s.OpenRoom(domain.Room{ID: roomID, Type: domain.RoomGroup, Name: "general", EncryptionKey: "k1"})
	s.FinishOpen(gen, msgs)
	return gen
}

func TestResyncAppendsOnlyUnseen(t *testing.T) {
	s := testSession()
	openTestRoom(s, 7, msg(10, 7), msg(11, 7), msg(12, 7))

	// Server resends an overlapping window after reconnect.
	resync := []domain.Message{msg(11, 7), msg(12, 7), msg(13, 7), msg(14, 7)}
	appended := s.Resync(resync)

	if len(appended) != 2 {
		t.Fatalf("appended %d messages, want 2", len(appended))
	}
	got := s.Messages()
	wantIDs := []int64{10, 11, 12, 13, 14}
	if len(got) != len(wantIDs) {
		t.Fatalf("rendered %d messages, want %d", len(got), len(wantIDs))
	}
	for i, id := range wantIDs {
		if got[i].ID != id {
			t.Errorf("message[%d].ID = %d, want %d", i, got[i].ID, id)
		}
	}
}

func TestResyncIsIdempotent(t *testing.T) {
	s := testSession()
	openTestRoom(s, 7, msg(10, 7))

	resync := []domain.Message{msg(10, 7), msg(11, 7)}
	s.Resync(resync)
	if appended := s.Resync(resync); len(appended) != 0 {
		t.Fatalf("second resync appended %d messages, want 0", len(appended))
	}
	if n := len(s.Messages()); n != 2 {
		t.Fatalf("rendered %d messages, want 2", n)
	}
}

func TestFlushIncomingBatchesAndDedupes(t *testing.T) {
	s := testSession()
	openTestRoom(s, 7, msg(10, 7))

	s.QueueIncoming(msg(11, 7))
	s.QueueIncoming(msg(11, 7)) // duplicate delivery
	s.QueueIncoming(msg(12, 7))
	s.QueueIncoming(msg(5, 8)) // other room

	appended := s.FlushIncoming()
	if len(appended) != 2 {
		t.Fatalf("flush appended %d messages, want 2", len(appended))
	}
	if s.MaxID() != 12 {
		t.Errorf("MaxID = %d, want 12", s.MaxID())
	}
	if got := s.FlushIncoming(); got != nil {
		t.Errorf("empty flush returned %d messages", len(got))
	}
}

func TestRoomSwitchDiscardsStaleResponse(t *testing.T) {
	s := testSession()
	gen1 := s.OpenRoom(domain.Room{ID: 1, Name: "a"})
	gen2 := s.OpenRoom(domain.Room{ID: 2, Name: "b"})

	// The slow response for room 1 lands after room 2 was opened.
	if s.FinishOpen(gen1, []domain.Message{msg(1, 1)}) {
		t.Fatal("stale FinishOpen was applied")
	}
	if len(s.Messages()) != 0 {
		t.Fatal("stale messages rendered into the wrong room")
	}
	if !s.FinishOpen(gen2, []domain.Message{msg(1, 2)}) {
		t.Fatal("current FinishOpen was rejected")
	}
}

func TestPageOlderCursorAndExhaustion(t *testing.T) {
	s := testSession()

	full := make([]domain.Message, PageSize)
	for i := range full {
		full[i] = msg(int64(100+i), 7)
	}
	openTestRoom(s, 7, full...)

	before, gen, ok := s.PageOlderArgs()
	if !ok || before != 100 {
		t.Fatalf("PageOlderArgs = (%d, %v), want (100, true)", before, ok)
	}

	// Concurrent second request is refused while the first is in flight.
	if _, _, ok := s.PageOlderArgs(); ok {
		t.Fatal("overlapping page request was allowed")
	}

	older := []domain.Message{msg(95, 7), msg(96, 7), msg(97, 7)}
	if !s.FinishPageOlder(gen, older) {
		t.Fatal("page was rejected")
	}
	if got := s.Messages()[0].ID; got != 95 {
		t.Errorf("oldest rendered id = %d, want 95", got)
	}
	// Short page proves there is nothing further back.
	if !s.Exhausted() {
		t.Error("short page did not mark history exhausted")
	}
	if _, _, ok := s.PageOlderArgs(); ok {
		t.Error("paging continued past exhaustion")
	}
}

func TestPageOlderEmptyPageExhausts(t *testing.T) {
	s := testSession()
	openTestRoom(s, 7, makePage(7, 100, PageSize)...)

	_, gen, ok := s.PageOlderArgs()
	if !ok {
		t.Fatal("PageOlderArgs refused")
	}
	if !s.FinishPageOlder(gen, nil) {
		t.Fatal("empty page was rejected")
	}
	if !s.Exhausted() {
		t.Error("empty page did not mark history exhausted")
	}
}

func makePage(roomID, startID int64, n int) []domain.Message {
	out := make([]domain.Message, n)
	for i := range out {
		out[i] = msg(startID+int64(i), roomID)
	}
	return out
}

func TestTypingExpiryAndLabels(t *testing.T) {
	tr := NewTypingTracker()
	now := time.Now()

	tr.Set(2, "alice", true, now)
	if got := tr.Label(now); got != "alice is typing..." {
		t.Errorf("one typist label = %q", got)
	}

	tr.Set(3, "bob", true, now.Add(time.Second))
	if got := tr.Label(now.Add(time.Second)); got != "alice, bob are typing..." {
		t.Errorf("two typist label = %q", got)
	}

	tr.Set(4, "carol", true, now.Add(time.Second))
	if got := tr.Label(now.Add(time.Second)); got != "3 people are typing..." {
		t.Errorf("three typist label = %q", got)
	}

	// alice's signal expires first; bob and carol were refreshed later.
	at := now.Add(TypingExpiry + time.Millisecond)
	if got := tr.Label(at); got != "bob, carol are typing..." {
		t.Errorf("post-expiry label = %q", got)
	}

	at = now.Add(time.Second + TypingExpiry + time.Millisecond)
	if got := tr.Label(at); got != "" {
		t.Errorf("label after all expiries = %q, want empty", got)
	}
}

func TestTypingPrunesExpiredWithoutSkippingSurvivors(t *testing.T) {
	tr := NewTypingTracker()
	now := time.Now()

	// The oldest signal expires while two fresher ones are live; pruning
	// the head must not skip or double-count the survivors.
	tr.Set(2, "alice", true, now)
	tr.Set(3, "bob", true, now.Add(time.Second))
	tr.Set(4, "carol", true, now.Add(time.Second))

	at := now.Add(TypingExpiry + time.Millisecond)
	got := tr.Active(at)
	want := []string{"bob", "carol"}
	if len(got) != len(want) {
		t.Fatalf("Active() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Active() = %v, want %v", got, want)
		}
	}
}

func TestTypingClearedOnRoomSwitch(t *testing.T) {
	s := testSession()
	openTestRoom(s, 7)
	s.ApplyTyping(domain.UserTypingEvent{RoomID: 7, UserID: 2, Nickname: "alice", IsTyping: true})
	if s.Typing().Label(time.Now()) == "" {
		t.Fatal("typing signal was not recorded")
	}

	s.OpenRoom(domain.Room{ID: 8, Name: "other"})
	if got := s.Typing().Label(time.Now()); got != "" {
		t.Errorf("typing label leaked across rooms: %q", got)
	}
}

func TestTypingIgnoresSelfAndOtherRooms(t *testing.T) {
	s := testSession()
	openTestRoom(s, 7)
	s.ApplyTyping(domain.UserTypingEvent{RoomID: 7, UserID: 1, Nickname: "me", IsTyping: true})
	s.ApplyTyping(domain.UserTypingEvent{RoomID: 9, UserID: 2, Nickname: "alice", IsTyping: true})
	if got := s.Typing().Label(time.Now()); got != "" {
		t.Errorf("label = %q, want empty", got)
	}
}

func TestSendMessageValidation(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(s *Session)
		text    string
		wantErr error
	}{
		{"empty text", func(s *Session) { openTestRoom(s, 7) }, "   ", ErrEmptyMessage},
		{"no room open", func(s *Session) {}, "hi", ErrNoRoom},
		{"room without key", func(s *Session) {
			gen := s.OpenRoom(domain.Room{ID: 7, Name: "general"})
			s.FinishOpen(gen, nil)
		}, "hi", ErrNoRoomKey},
		{"too long", func(s *Session) { openTestRoom(s, 7) }, strings.Repeat("x", MaxMessageLen+1), ErrMessageTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testSession()
			tt.setup(s)
			if err := s.SendMessage(tt.text, nil); !errors.Is(err, tt.wantErr) {
				t.Errorf("SendMessage() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestMutationsRequireConnection(t *testing.T) {
	s := testSession()
	openTestRoom(s, 7, msg(10, 7))

	if err := s.SendMessage("hi", nil); !errors.Is(err, realtime.ErrNotConnected) {
		t.Errorf("SendMessage while offline = %v, want ErrNotConnected", err)
	}
	if err := s.EditMessage(10, "hi"); !errors.Is(err, realtime.ErrNotConnected) {
		t.Errorf("EditMessage while offline = %v, want ErrNotConnected", err)
	}
	if err := s.DeleteMessage(10); !errors.Is(err, realtime.ErrNotConnected) {
		t.Errorf("DeleteMessage while offline = %v, want ErrNotConnected", err)
	}
}

func TestEditAndDeleteApplyOnBroadcastOnly(t *testing.T) {
	s := testSession()
	openTestRoom(s, 7, msg(10, 7), msg(11, 7))

	if !s.ApplyEdit(domain.MessageEditedEvent{RoomID: 7, MessageID: 10, Content: "edited", Encrypted: false}) {
		t.Fatal("edit broadcast was not applied")
	}
	if got := s.Messages()[0].Content; got != "edited" {
		t.Errorf("edited content = %q", got)
	}

	if !s.ApplyDelete(domain.MessageDeletedEvent{RoomID: 7, MessageID: 10}) {
		t.Fatal("delete broadcast was not applied")
	}
	if got := s.Messages(); len(got) != 1 || got[0].ID != 11 {
		t.Fatalf("after delete, rendered = %v", got)
	}

	// Broadcasts for other rooms leave the rendered state alone.
	if s.ApplyDelete(domain.MessageDeletedEvent{RoomID: 9, MessageID: 11}) {
		t.Error("delete for another room was applied")
	}
}

func TestDisplayTextDecryptsWithRoomKey(t *testing.T) {
	s := testSession()
	openTestRoom(s, 7)

	cipher := e2e.Encrypt("hello", "k1")
	text, bad := s.DisplayText(domain.Message{RoomID: 7, Content: cipher, Encrypted: true})
	if bad || text != "hello" {
		t.Errorf("DisplayText = (%q, %v), want (hello, false)", text, bad)
	}

	wrong := e2e.Encrypt("hello", "other-key")
	_, bad = s.DisplayText(domain.Message{RoomID: 7, Content: wrong, Encrypted: true})
	if !bad {
		t.Error("wrong-key ciphertext was not flagged undecryptable")
	}
}

// TestSendMessageOverChannel walks the full outbound path: the session
// encrypts with the room key, the channel frames the emit, and the body
// on the wire decrypts back to the original text.
func TestSendMessageOverChannel(t *testing.T) {
	upgrader := websocket.Upgrader{}
	frames := make(chan []byte, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		// Opening the room emits join_room first; keep reading until the
		// send shows up.
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var env struct {
				Event string `json:"event"`
			}
			if json.Unmarshal(data, &env) == nil && env.Event == domain.EmitSendMessage {
				frames <- data
				return
			}
		}
	}))
	defer srv.Close()

	ch := realtime.New("ws"+strings.TrimPrefix(srv.URL, "http")+"/socket", "tok")
	if err := ch.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer ch.Close()

	s := NewSession(nil, ch, nil, domain.User{ID: 1, Username: "me"})
	openTestRoom(s, 7)

	if err := s.SendMessage("hello", nil); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}

	var raw []byte
	select {
	case raw = <-frames:
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received")
	}

	var ev struct {
		Event string                    `json:"event"`
		Data  domain.SendMessagePayload `json:"data"`
	}
	if err := json.Unmarshal(raw, &ev); err != nil {
		t.Fatalf("frame did not parse: %v", err)
	}
	if ev.Event != domain.EmitSendMessage {
		t.Errorf("event = %q, want %q", ev.Event, domain.EmitSendMessage)
	}
	if !ev.Data.Encrypted {
		t.Error("payload not marked encrypted")
	}
	if !strings.HasPrefix(ev.Data.Content, e2e.CiphertextMarker) {
		t.Errorf("content %q does not carry the ciphertext marker", ev.Data.Content)
	}
	if res := e2e.Decrypt(ev.Data.Content, "k1"); res.Text != "hello" || res.State != e2e.StateDecrypted {
		t.Errorf("wire body decrypted to (%q, %v)", res.Text, res.State)
	}
}
