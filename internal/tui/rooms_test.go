package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/huddlehq/huddle/pkg/domain"
)

func testRooms() []domain.Room {
	return []domain.Room{
		{ID: 1, Type: domain.RoomGroup, Name: "general", Pinned: true, UnreadCount: 3},
		{ID: 2, Type: domain.RoomDirect, Partner: &domain.User{ID: 9, Username: "alice", Online: true}},
		{ID: 3, Type: domain.RoomGroup, Name: "announcements", Muted: true, UnreadCount: 5},
	}
}

func loadedRooms(t *testing.T) roomsModel {
	t.Helper()
	m := newRoomsModel(testChatSession(t, nil))
	m, _ = m.Update(roomsLoadedMsg{rooms: testRooms()})
	m, _ = m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return m
}

func TestRoomListRendering(t *testing.T) {
	m := loadedRooms(t)
	out := m.View()

	if !strings.Contains(out, "general") || !strings.Contains(out, "alice") {
		t.Error("room names missing")
	}
	if !strings.Contains(out, "★") {
		t.Error("pin marker missing")
	}
	if !strings.Contains(out, " 3 ") {
		t.Error("unread badge missing")
	}
	if !strings.Contains(out, "muted") {
		t.Error("muted label missing")
	}
	// Muted rooms suppress their unread badge.
	if strings.Contains(out, " 5 ") {
		t.Error("muted room showed an unread badge")
	}
}

func TestRoomFilter(t *testing.T) {
	m := loadedRooms(t)

	m, _ = m.Update(key("/"))
	for _, r := range "ali" {
		m, _ = m.Update(key(string(r)))
	}
	m, _ = m.Update(key("enter"))

	vis := m.visible()
	if len(vis) != 1 || vis[0].ID != 2 {
		t.Fatalf("filter matched %d rooms, want just alice", len(vis))
	}

	m, _ = m.Update(key("esc"))
	if len(m.visible()) != 3 {
		t.Error("esc did not clear the filter")
	}
}

func TestRoomOpenEmitsMessage(t *testing.T) {
	m := loadedRooms(t)
	m.cursor = 1

	_, cmd := m.Update(key("enter"))
	if cmd == nil {
		t.Fatal("enter produced no command")
	}
	open, ok := cmd().(openRoomMsg)
	if !ok {
		t.Fatalf("command produced %T, want openRoomMsg", cmd())
	}
	if open.room.ID != 2 {
		t.Errorf("opened room %d, want 2", open.room.ID)
	}
}

func TestBumpUnread(t *testing.T) {
	m := loadedRooms(t)

	m.bumpUnread(domain.Message{ID: 100, RoomID: 1, CreatedAt: time.Now()})
	if m.rooms[0].UnreadCount != 4 {
		t.Errorf("unread = %d, want 4", m.rooms[0].UnreadCount)
	}

	// Unknown room is a no-op.
	m.bumpUnread(domain.Message{ID: 101, RoomID: 99})
}

func TestUserStatusFlipsPresenceDot(t *testing.T) {
	m := loadedRooms(t)

	m.applyUserStatus(domain.UserStatusEvent{UserID: 9, Online: false})
	if m.rooms[1].Partner.Online {
		t.Error("partner still online after status event")
	}
}

func TestMutedByTag(t *testing.T) {
	m := loadedRooms(t)

	if !m.mutedByTag("room-3") {
		t.Error("muted room not recognized by tag")
	}
	if m.mutedByTag("room-1") {
		t.Error("unmuted room reported muted")
	}
}
