package domain

import "time"

// Message types accepted by the service.
const (
	MessageText   = "text"
	MessageImage  = "image"
	MessageFile   = "file"
	MessageSystem = "system"
)

// Message is a single chat message in a room.
// IDs are server-assigned and monotonic within a room, so id ordering
// equals delivery ordering.
type Message struct {
	ID          int64      `json:"id"`
	RoomID      int64      `json:"room_id"`
	SenderID    int64      `json:"sender_id"`
	SenderName  string     `json:"sender_name"`
	Content     string     `json:"content"`
	MessageType string     `json:"message_type"`
	Encrypted   bool       `json:"encrypted"`
	ReplyTo     *int64     `json:"reply_to,omitempty"`
	FilePath    string     `json:"file_path,omitempty"`
	FileName    string     `json:"file_name,omitempty"`
	Reactions   []Reaction `json:"reactions,omitempty"`
	UnreadCount int        `json:"unread_count"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Reaction is an emoji with the set of users who applied it.
type Reaction struct {
	Emoji   string  `json:"emoji"`
	UserIDs []int64 `json:"user_ids"`
}

var validMessageTypes = map[string]bool{
	MessageText:   true,
	MessageImage:  true,
	MessageFile:   true,
	MessageSystem: true,
}

// ValidMessageType returns true for one of the four known message types.
func ValidMessageType(t string) bool {
	return validMessageTypes[t]
}

// IsSystem returns true for server-generated system messages
// (joins, leaves, renames).
func (m Message) IsSystem() bool {
	return m.MessageType == MessageSystem
}

// HasFile returns true when the message carries an uploaded attachment.
func (m Message) HasFile() bool {
	return (m.MessageType == MessageImage || m.MessageType == MessageFile) && m.FilePath != ""
}

// ReactedBy returns true if userID has applied emoji to the message.
func (m Message) ReactedBy(emoji string, userID int64) bool {
	for _, r := range m.Reactions {
		if r.Emoji != emoji {
			continue
		}
		for _, id := range r.UserIDs {
			if id == userID {
				return true
			}
		}
	}
	return false
}

// ReactionEmojis is the quick-pick reaction palette.
var ReactionEmojis = []string{"👍", "❤️", "😂", "😮", "😢", "😡"}
