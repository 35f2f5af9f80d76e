package realtime

import "github.com/huddlehq/huddle/pkg/domain"

// Typed emit helpers for the client-to-server events. All of them fail
// with ErrNotConnected while the transport is down.

type roomRef struct {
	RoomID int64 `json:"room_id"`
}

// JoinRoom subscribes to a room's broadcasts.
func (c *Channel) JoinRoom(roomID int64) error {
	return c.Emit(domain.EmitJoinRoom, roomRef{RoomID: roomID})
}

// LeaveRoom unsubscribes from a room's broadcasts.
func (c *Channel) LeaveRoom(roomID int64) error {
	return c.Emit(domain.EmitLeaveRoom, roomRef{RoomID: roomID})
}

// SendMessage emits a new message. The sent message renders only when
// the server echoes it back as new_message.
func (c *Channel) SendMessage(p domain.SendMessagePayload) error {
	return c.Emit(domain.EmitSendMessage, p)
}

// EditMessage emits an edit for an existing message.
func (c *Channel) EditMessage(p domain.EditMessagePayload) error {
	return c.Emit(domain.EmitEditMessage, p)
}

// DeleteMessage emits a delete for an existing message.
func (c *Channel) DeleteMessage(p domain.DeleteMessagePayload) error {
	return c.Emit(domain.EmitDeleteMessage, p)
}

// Typing reports the local user's typing state for a room.
func (c *Channel) Typing(roomID int64, isTyping bool) error {
	return c.Emit(domain.EmitTyping, domain.TypingPayload{RoomID: roomID, IsTyping: isTyping})
}

// MessageRead reports that a message has been read.
func (c *Channel) MessageRead(roomID, messageID int64) error {
	return c.Emit(domain.EmitMessageRead, domain.MessageReadPayload{RoomID: roomID, MessageID: messageID})
}

// ToggleReaction toggles an emoji reaction on a message.
func (c *Channel) ToggleReaction(messageID int64, emoji string) error {
	return c.Emit(domain.EmitToggleReaction, domain.ReactionPayload{MessageID: messageID, Emoji: emoji})
}

// ProfileUpdated notifies other clients that the profile changed.
func (c *Channel) ProfileUpdated() error {
	return c.Emit(domain.EmitProfileUpdated, struct{}{})
}
