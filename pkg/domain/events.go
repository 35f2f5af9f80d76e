package domain

// Realtime events consumed from the server.
const (
	EvNewMessage         = "new_message"
	EvMessageDeleted     = "message_deleted"
	EvMessageEdited      = "message_edited"
	EvReadUpdated        = "read_updated"
	EvUserTyping         = "user_typing"
	EvUserStatus         = "user_status"
	EvRoomUpdated        = "room_updated"
	EvRoomNameUpdated    = "room_name_updated"
	EvRoomMembersUpdated = "room_members_updated"
	EvProfileUpdated     = "user_profile_updated"
	EvReactionUpdated    = "reaction_updated"
	EvPinUpdated         = "pin_updated"
	EvPollCreated        = "poll_created"
	EvPollUpdated        = "poll_updated"
	EvAdminUpdated       = "admin_updated"
	EvPush               = "push"
	EvError              = "error"
)

// Realtime events emitted by the client.
const (
	EmitJoinRoom       = "join_room"
	EmitLeaveRoom      = "leave_room"
	EmitSendMessage    = "send_message"
	EmitEditMessage    = "edit_message"
	EmitDeleteMessage  = "delete_message"
	EmitTyping         = "typing"
	EmitMessageRead    = "message_read"
	EmitToggleReaction = "toggle_reaction"
	EmitProfileUpdated = "profile_updated"
)

// SendMessagePayload is the body of a send_message emit. The message
// appears locally only when the server echoes it back as new_message —
// there is no optimistic local copy.
type SendMessagePayload struct {
	RoomID      int64  `json:"room_id"`
	Content     string `json:"content"`
	Type        string `json:"type"`
	Encrypted   bool   `json:"encrypted"`
	ReplyTo     *int64 `json:"reply_to,omitempty"`
	UploadToken string `json:"upload_token,omitempty"`
}

// EditMessagePayload is the body of an edit_message emit.
type EditMessagePayload struct {
	MessageID int64  `json:"message_id"`
	RoomID    int64  `json:"room_id"`
	Content   string `json:"content"`
	Encrypted bool   `json:"encrypted"`
}

// DeleteMessagePayload is the body of a delete_message emit.
type DeleteMessagePayload struct {
	MessageID int64 `json:"message_id"`
	RoomID    int64 `json:"room_id"`
}

// TypingPayload is the body of a typing emit.
type TypingPayload struct {
	RoomID   int64 `json:"room_id"`
	IsTyping bool  `json:"is_typing"`
}

// MessageReadPayload is the body of a message_read emit.
type MessageReadPayload struct {
	RoomID    int64 `json:"room_id"`
	MessageID int64 `json:"message_id"`
}

// ReactionPayload is the body of a toggle_reaction emit. The server
// treats toggle as add-or-remove, so the client needs no separate add.
type ReactionPayload struct {
	MessageID int64  `json:"message_id"`
	Emoji     string `json:"emoji"`
}

// UserTypingEvent is the payload of a user_typing event from the server.
type UserTypingEvent struct {
	RoomID   int64  `json:"room_id"`
	UserID   int64  `json:"user_id"`
	Nickname string `json:"nickname"`
	IsTyping bool   `json:"is_typing"`
}

// MessageDeletedEvent is the payload of a message_deleted event.
type MessageDeletedEvent struct {
	RoomID    int64 `json:"room_id"`
	MessageID int64 `json:"message_id"`
}

// MessageEditedEvent is the payload of a message_edited event.
type MessageEditedEvent struct {
	RoomID    int64  `json:"room_id"`
	MessageID int64  `json:"message_id"`
	Content   string `json:"content"`
	Encrypted bool   `json:"encrypted"`
}

// ReadUpdatedEvent is the payload of a read_updated event. The server is
// the source of truth for read receipts; clients only render the count.
type ReadUpdatedEvent struct {
	RoomID      int64 `json:"room_id"`
	MessageID   int64 `json:"message_id"`
	UserID      int64 `json:"user_id"`
	UnreadCount int   `json:"unread_count"`
}

// UserStatusEvent is the payload of a user_status event.
type UserStatusEvent struct {
	UserID int64 `json:"user_id"`
	Online bool  `json:"online"`
}

// ProfileUpdatedEvent is the payload of a user_profile_updated event.
// Sender names shown in open rooms and the rooms list go stale when a
// member renames themselves, so clients refresh on it.
type ProfileUpdatedEvent struct {
	UserID        int64  `json:"user_id"`
	Nickname      string `json:"nickname"`
	StatusMessage string `json:"status_message"`
	ProfileImage  string `json:"profile_image"`
}

// PinUpdatedEvent is the payload of a pin_updated event, fired when a
// message is pinned or unpinned in a room.
type PinUpdatedEvent struct {
	RoomID int64 `json:"room_id"`
}

// PollEvent is the payload of poll_created and poll_updated events.
type PollEvent struct {
	RoomID int64 `json:"room_id"`
	PollID int64 `json:"poll_id"`
}

// AdminUpdatedEvent is the payload of an admin_updated event.
type AdminUpdatedEvent struct {
	RoomID  int64 `json:"room_id"`
	UserID  int64 `json:"user_id"`
	IsAdmin bool  `json:"is_admin"`
}

// ReactionUpdatedEvent is the payload of a reaction_updated event,
// carrying the full replacement reaction set for a message.
type ReactionUpdatedEvent struct {
	RoomID    int64      `json:"room_id"`
	MessageID int64      `json:"message_id"`
	Reactions []Reaction `json:"reactions"`
}
