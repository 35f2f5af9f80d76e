package domain

import (
	"sort"
	"strconv"
	"time"
)

// Room types.
const (
	RoomDirect = "direct"
	RoomGroup  = "group"
)

// Room is a conversation channel — a 1:1 direct room or a named group.
// The room-scoped EncryptionKey is issued by the service at membership
// time and used as-is for message body encryption.
type Room struct {
	ID              int64     `json:"id"`
	Type            string    `json:"type"`
	Name            string    `json:"name,omitempty"`
	Partner         *User     `json:"partner,omitempty"` // set for direct rooms
	Pinned          bool      `json:"pinned"`
	Muted           bool      `json:"muted"`
	EncryptionKey   string    `json:"encryption_key,omitempty"`
	UnreadCount     int       `json:"unread_count"`
	LastMessageTime time.Time `json:"last_message_time"`
}

// DisplayName returns the label shown in the room list: the group name,
// or the partner's nickname for direct rooms.
func (r Room) DisplayName() string {
	if r.Type == RoomDirect && r.Partner != nil {
		if r.Partner.Nickname != "" {
			return r.Partner.Nickname
		}
		return r.Partner.Username
	}
	if r.Name != "" {
		return r.Name
	}
	return "unnamed room"
}

// IsDirect returns true for 1:1 rooms.
func (r Room) IsDirect() bool {
	return r.Type == RoomDirect
}

// TagString returns the notification tag the server stamps on push
// payloads for this room, used to collapse and filter notifications.
func (r Room) TagString() string {
	return "room-" + strconv.FormatInt(r.ID, 10)
}

// SortRooms orders rooms for the list view: pinned first, then by most
// recent activity. The sort is in place and stable.
func SortRooms(rooms []Room) {
	sort.SliceStable(rooms, func(i, j int) bool {
		if rooms[i].Pinned != rooms[j].Pinned {
			return rooms[i].Pinned
		}
		return rooms[i].LastMessageTime.After(rooms[j].LastMessageTime)
	})
}
