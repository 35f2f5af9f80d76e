package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/huddlehq/huddle/pkg/client"
	"github.com/huddlehq/huddle/pkg/domain"
	"github.com/huddlehq/huddle/pkg/realtime"
)

func testApp(hasAuth bool) App {
	c := client.New("http://127.0.0.1:1", "")
	ch := realtime.New("ws://127.0.0.1:1/socket", "")
	return NewApp(c, ch, nil, "test", hasAuth, nil)
}

func TestAppStartsAtLoginWithoutAuth(t *testing.T) {
	a := testApp(false)
	m, _ := a.Update(tea.WindowSizeMsg{Width: 100, Height: 30})

	out := m.View()
	if !strings.Contains(out, "sign in") {
		t.Error("login form not shown on first run")
	}
	if !strings.Contains(out, "huddle") {
		t.Error("title bar missing")
	}
}

func TestStatusLineTransitions(t *testing.T) {
	a := testApp(true)
	a.view = viewRooms

	a.connState = realtime.StateReconnecting
	if !strings.Contains(a.statusLine(), "reconnecting") {
		t.Error("reconnecting state not surfaced")
	}

	a.connState = realtime.StateDisconnected
	if !strings.Contains(a.statusLine(), "offline") {
		t.Error("disconnected state not surfaced")
	}

	// Freshly connected: visible, then auto-hides.
	a.connState = realtime.StateConnected
	a.connChangedAt = time.Now()
	if !strings.Contains(a.statusLine(), "connected") {
		t.Error("connected state not shown right after the transition")
	}
	a.connChangedAt = time.Now().Add(-statusLinger - time.Second)
	if a.statusLine() != "" {
		t.Error("connected indicator did not auto-hide")
	}
}

func TestPushToastSkipsOpenAndMutedRooms(t *testing.T) {
	a := testApp(true)
	updated, _ := a.Update(sessionCheckedMsg{user: &domain.User{ID: 1, Username: "me"}})
	a = updated.(App)
	a.rooms, _ = a.rooms.Update(roomsLoadedMsg{rooms: []domain.Room{
		{ID: 1, Type: domain.RoomGroup, Name: "general"},
		{ID: 3, Type: domain.RoomGroup, Name: "noisy", Muted: true},
	}})

	if !a.shouldToast(domain.PushPayload{Title: "general", Tag: "room-1"}) {
		t.Error("toast suppressed for a normal room")
	}
	if a.shouldToast(domain.PushPayload{Title: "noisy", Tag: "room-3"}) {
		t.Error("toast shown for a muted room")
	}
}

func TestRealtimeEventBridging(t *testing.T) {
	a := testApp(true)
	updated, _ := a.Update(sessionCheckedMsg{user: &domain.User{ID: 1, Username: "me"}})
	a = updated.(App)

	room := domain.Room{ID: 7, Type: domain.RoomGroup, Name: "general", EncryptionKey: "k1"}
	updated, _ = a.Update(openRoomMsg{room: room})
	a = updated.(App)
	a.session.FinishOpen(a.session.Generation(), nil)

	updated, _ = a.Update(rtNewMessageMsg{msg: domain.Message{
		ID: 1, RoomID: 7, SenderID: 2, SenderName: "alice",
		Content: "hi", MessageType: domain.MessageText, CreatedAt: time.Now(),
	}})
	a = updated.(App)
	updated, _ = a.Update(frameTickMsg(time.Now()))
	a = updated.(App)

	if len(a.session.Messages()) != 1 {
		t.Fatalf("rendered %d messages after bridge+flush, want 1", len(a.session.Messages()))
	}

	updated, _ = a.Update(rtMessageEditedMsg{ev: domain.MessageEditedEvent{
		RoomID: 7, MessageID: 1, Content: "hi edited",
	}})
	a = updated.(App)
	if a.session.Messages()[0].Content != "hi edited" {
		t.Error("edit event not applied")
	}

	updated, _ = a.Update(rtMessageDeletedMsg{ev: domain.MessageDeletedEvent{RoomID: 7, MessageID: 1}})
	a = updated.(App)
	if len(a.session.Messages()) != 0 {
		t.Error("delete event not applied")
	}
}

func TestProfileUpdateRenamesSenders(t *testing.T) {
	a := testApp(true)
	updated, _ := a.Update(sessionCheckedMsg{user: &domain.User{ID: 1, Username: "me"}})
	a = updated.(App)

	room := domain.Room{ID: 7, Type: domain.RoomGroup, Name: "general", EncryptionKey: "k1"}
	updated, _ = a.Update(openRoomMsg{room: room})
	a = updated.(App)
	a.session.FinishOpen(a.session.Generation(), []domain.Message{
		{ID: 1, RoomID: 7, SenderID: 2, SenderName: "alice", Content: "hi", MessageType: domain.MessageText},
		{ID: 2, RoomID: 7, SenderID: 3, SenderName: "bob", Content: "yo", MessageType: domain.MessageText},
	})

	updated, _ = a.Update(rtProfileUpdatedMsg{ev: domain.ProfileUpdatedEvent{UserID: 2, Nickname: "alicia"}})
	a = updated.(App)

	msgs := a.session.Messages()
	if msgs[0].SenderName != "alicia" {
		t.Errorf("sender name = %q, want %q", msgs[0].SenderName, "alicia")
	}
	if msgs[1].SenderName != "bob" {
		t.Errorf("other sender renamed to %q", msgs[1].SenderName)
	}
}
