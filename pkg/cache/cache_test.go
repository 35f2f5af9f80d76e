package cache

import (
	"testing"
	"time"

	"github.com/huddlehq/huddle/pkg/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return s
}

func TestRoomsRoundTrip(t *testing.T) {
	s := openTestStore(t)

	rooms := []domain.Room{
		{ID: 1, Type: domain.RoomGroup, Name: "platform-team", Pinned: true},
		{ID: 2, Type: domain.RoomDirect, Partner: &domain.User{Username: "mlee"}},
	}
	if err := s.SaveRooms(rooms); err != nil {
		t.Fatalf("SaveRooms: %v", err)
	}

	got, err := s.LoadRooms()
	if err != nil {
		t.Fatalf("LoadRooms: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d rooms, want 2", len(got))
	}
	if got[0].Name != "platform-team" || !got[0].Pinned {
		t.Errorf("got[0] = %+v, want platform-team pinned", got[0])
	}
	if got[1].Partner == nil || got[1].Partner.Username != "mlee" {
		t.Errorf("got[1].Partner = %+v, want mlee", got[1].Partner)
	}
}

func TestLoadRoomsEmpty(t *testing.T) {
	s := openTestStore(t)
	rooms, err := s.LoadRooms()
	if err != nil {
		t.Fatalf("LoadRooms: %v", err)
	}
	if rooms != nil {
		t.Errorf("expected nil rooms from empty cache, got %v", rooms)
	}
}

func TestRecentMessagesOrderAndLimit(t *testing.T) {
	s := openTestStore(t)

	var msgs []domain.Message
	for i := int64(1); i <= 10; i++ {
		msgs = append(msgs, domain.Message{
			ID: i, RoomID: 7, Content: "m", CreatedAt: time.Now(),
		})
	}
	// Write out of order; key encoding must restore id order.
	if err := s.SaveMessages(7, []domain.Message{msgs[4], msgs[9], msgs[0]}); err != nil {
		t.Fatalf("SaveMessages: %v", err)
	}
	if err := s.SaveMessages(7, msgs); err != nil {
		t.Fatalf("SaveMessages: %v", err)
	}

	got, err := s.RecentMessages(7, 4)
	if err != nil {
		t.Fatalf("RecentMessages: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("got %d messages, want 4", len(got))
	}
	wantIDs := []int64{7, 8, 9, 10}
	for i, want := range wantIDs {
		if got[i].ID != want {
			t.Errorf("got[%d].ID = %d, want %d", i, got[i].ID, want)
		}
	}
}

func TestMessagesIsolatedPerRoom(t *testing.T) {
	s := openTestStore(t)

	if err := s.SaveMessages(1, []domain.Message{{ID: 5, RoomID: 1}}); err != nil {
		t.Fatalf("SaveMessages: %v", err)
	}
	if err := s.SaveMessages(2, []domain.Message{{ID: 6, RoomID: 2}}); err != nil {
		t.Fatalf("SaveMessages: %v", err)
	}

	got, err := s.RecentMessages(1, 10)
	if err != nil {
		t.Fatalf("RecentMessages: %v", err)
	}
	if len(got) != 1 || got[0].RoomID != 1 {
		t.Errorf("room 1 cache leaked other rooms: %+v", got)
	}
}

func TestDeleteMessage(t *testing.T) {
	s := openTestStore(t)

	if err := s.SaveMessages(3, []domain.Message{{ID: 1, RoomID: 3}, {ID: 2, RoomID: 3}}); err != nil {
		t.Fatalf("SaveMessages: %v", err)
	}
	if err := s.DeleteMessage(3, 1); err != nil {
		t.Fatalf("DeleteMessage: %v", err)
	}

	got, err := s.RecentMessages(3, 10)
	if err != nil {
		t.Fatalf("RecentMessages: %v", err)
	}
	if len(got) != 1 || got[0].ID != 2 {
		t.Errorf("after delete got %+v, want only message 2", got)
	}
}

func TestDraftRoundTripAndClear(t *testing.T) {
	s := openTestStore(t)

	if err := s.SaveDraft(9, "half-typed reply"); err != nil {
		t.Fatalf("SaveDraft: %v", err)
	}
	got, err := s.LoadDraft(9)
	if err != nil {
		t.Fatalf("LoadDraft: %v", err)
	}
	if got != "half-typed reply" {
		t.Errorf("LoadDraft = %q, want %q", got, "half-typed reply")
	}

	if err := s.SaveDraft(9, ""); err != nil {
		t.Fatalf("SaveDraft clear: %v", err)
	}
	got, err = s.LoadDraft(9)
	if err != nil {
		t.Fatalf("LoadDraft after clear: %v", err)
	}
	if got != "" {
		t.Errorf("draft not cleared, got %q", got)
	}
}

func TestThemeRoundTrip(t *testing.T) {
	s := openTestStore(t)

	theme, err := s.LoadTheme()
	if err != nil {
		t.Fatalf("LoadTheme: %v", err)
	}
	if theme != (Theme{}) {
		t.Errorf("expected zero theme from empty cache, got %+v", theme)
	}

	want := Theme{Mode: "dark", Color: "green", Background: "plain"}
	if err := s.SaveTheme(want); err != nil {
		t.Fatalf("SaveTheme: %v", err)
	}
	theme, err = s.LoadTheme()
	if err != nil {
		t.Fatalf("LoadTheme: %v", err)
	}
	if theme != want {
		t.Errorf("LoadTheme = %+v, want %+v", theme, want)
	}
}

func TestNilStoreIsInert(t *testing.T) {
	var s *Store
	if err := s.SaveRooms([]domain.Room{{ID: 1}}); err != nil {
		t.Errorf("nil SaveRooms: %v", err)
	}
	if msgs, err := s.RecentMessages(1, 10); err != nil || msgs != nil {
		t.Errorf("nil RecentMessages = %v, %v", msgs, err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("nil Close: %v", err)
	}
}
