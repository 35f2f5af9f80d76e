package tui

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog/log"

	"github.com/huddlehq/huddle/internal/chat"
	"github.com/huddlehq/huddle/pkg/cache"
	"github.com/huddlehq/huddle/pkg/client"
	"github.com/huddlehq/huddle/pkg/domain"
	"github.com/huddlehq/huddle/pkg/realtime"
)

type view int

const (
	viewLogin view = iota
	viewRooms
	viewChat
	viewProfile
)

// frameInterval drives batched message application, typing label
// refresh, and toast/status expiry.
const frameInterval = 250 * time.Millisecond

// statusLinger is how long the "connected" line stays visible after a
// reconnect before auto-hiding.
const statusLinger = 2 * time.Second

// toastLinger is how long a push toast stays visible.
const toastLinger = 4 * time.Second

type frameTickMsg time.Time

func frameTickCmd() tea.Cmd {
	return tea.Tick(frameInterval, func(t time.Time) tea.Msg {
		return frameTickMsg(t)
	})
}

// Realtime events, decoded off the socket and re-delivered on the UI
// goroutine through the app's event channel.
type (
	rtNewMessageMsg      struct{ msg domain.Message }
	rtMessageEditedMsg   struct{ ev domain.MessageEditedEvent }
	rtMessageDeletedMsg  struct{ ev domain.MessageDeletedEvent }
	rtTypingMsg          struct{ ev domain.UserTypingEvent }
	rtReadUpdatedMsg     struct{ ev domain.ReadUpdatedEvent }
	rtReactionUpdatedMsg struct{ ev domain.ReactionUpdatedEvent }
	rtUserStatusMsg      struct{ ev domain.UserStatusEvent }
	rtProfileUpdatedMsg  struct{ ev domain.ProfileUpdatedEvent }
	rtPinUpdatedMsg      struct{ ev domain.PinUpdatedEvent }
	rtPollMsg            struct{ ev domain.PollEvent }
	rtAdminUpdatedMsg    struct{ ev domain.AdminUpdatedEvent }
	rtRoomsChangedMsg    struct{}
	rtPushMsg            struct{ push domain.PushPayload }
	connStateMsg         struct{ from, to realtime.State }
)

// sessionCheckedMsg carries the result of the startup token check.
type sessionCheckedMsg struct {
	user *domain.User
	err  error
}

// channelConnectedMsg carries the result of the initial socket dial.
type channelConnectedMsg struct{ err error }

// SaveAuthFunc persists a fresh login so the next run can skip the
// login form.
type SaveAuthFunc func(res *client.LoginResult) error

// App is the root Bubbletea model.
type App struct {
	client  *client.Client
	channel *realtime.Channel
	store   *cache.Store
	version string

	saveAuth SaveAuthFunc

	// events bridges realtime handler goroutines to the UI loop.
	events chan tea.Msg

	session *chat.Session

	view    view
	login   loginModel
	rooms   roomsModel
	chatv   chatModel
	profile profileModel

	// Connection status line state.
	connState     realtime.State
	connChangedAt time.Time

	// Transient push toast.
	toast        string
	toastExpires time.Time

	width  int
	height int
}

// NewApp wires the root model. hasAuth selects the starting view: with
// a stored token the app verifies it in the background, without one it
// goes straight to the login form.
func NewApp(c *client.Client, ch *realtime.Channel, store *cache.Store, version string, hasAuth bool, saveAuth SaveAuthFunc) App {
	a := App{
		client:    c,
		channel:   ch,
		store:     store,
		version:   version,
		saveAuth:  saveAuth,
		events:    make(chan tea.Msg, 256),
		login:     newLoginModel(c),
		view:      viewLogin,
		connState: realtime.StateDisconnected,
	}
	if hasAuth {
		a.view = viewRooms
	}
	a.registerHandlers()
	if t, err := store.LoadTheme(); err == nil {
		ApplyTheme(t)
	}
	return a
}

// registerHandlers decodes realtime payloads and forwards them to the
// UI loop. Handlers run on the socket reader goroutine, so they never
// touch model state directly.
func (a *App) registerHandlers() {
	ch := a.channel
	decode := func(name string, raw json.RawMessage, v any) bool {
		if err := json.Unmarshal(raw, v); err != nil {
			log.Warn().Err(err).Str("event", name).Msg("tui: bad event payload")
			return false
		}
		return true
	}
	push := func(m tea.Msg) {
		select {
		case a.events <- m:
		default:
			log.Warn().Msg("tui: event queue full, dropping event")
		}
	}

	ch.Handle(domain.EvNewMessage, func(raw json.RawMessage) {
		var m domain.Message
		if decode(domain.EvNewMessage, raw, &m) {
			push(rtNewMessageMsg{msg: m})
		}
	})
	ch.Handle(domain.EvMessageEdited, func(raw json.RawMessage) {
		var ev domain.MessageEditedEvent
		if decode(domain.EvMessageEdited, raw, &ev) {
			push(rtMessageEditedMsg{ev: ev})
		}
	})
	ch.Handle(domain.EvMessageDeleted, func(raw json.RawMessage) {
		var ev domain.MessageDeletedEvent
		if decode(domain.EvMessageDeleted, raw, &ev) {
			push(rtMessageDeletedMsg{ev: ev})
		}
	})
	ch.Handle(domain.EvUserTyping, func(raw json.RawMessage) {
		var ev domain.UserTypingEvent
		if decode(domain.EvUserTyping, raw, &ev) {
			push(rtTypingMsg{ev: ev})
		}
	})
	ch.Handle(domain.EvReadUpdated, func(raw json.RawMessage) {
		var ev domain.ReadUpdatedEvent
		if decode(domain.EvReadUpdated, raw, &ev) {
			push(rtReadUpdatedMsg{ev: ev})
		}
	})
	ch.Handle(domain.EvReactionUpdated, func(raw json.RawMessage) {
		var ev domain.ReactionUpdatedEvent
		if decode(domain.EvReactionUpdated, raw, &ev) {
			push(rtReactionUpdatedMsg{ev: ev})
		}
	})
	ch.Handle(domain.EvUserStatus, func(raw json.RawMessage) {
		var ev domain.UserStatusEvent
		if decode(domain.EvUserStatus, raw, &ev) {
			push(rtUserStatusMsg{ev: ev})
		}
	})
	ch.Handle(domain.EvProfileUpdated, func(raw json.RawMessage) {
		var ev domain.ProfileUpdatedEvent
		if decode(domain.EvProfileUpdated, raw, &ev) {
			push(rtProfileUpdatedMsg{ev: ev})
		}
	})
	ch.Handle(domain.EvPinUpdated, func(raw json.RawMessage) {
		var ev domain.PinUpdatedEvent
		if decode(domain.EvPinUpdated, raw, &ev) {
			push(rtPinUpdatedMsg{ev: ev})
		}
	})
	for _, name := range []string{domain.EvPollCreated, domain.EvPollUpdated} {
		ch.Handle(name, func(raw json.RawMessage) {
			var ev domain.PollEvent
			if decode(name, raw, &ev) {
				push(rtPollMsg{ev: ev})
			}
		})
	}
	ch.Handle(domain.EvAdminUpdated, func(raw json.RawMessage) {
		var ev domain.AdminUpdatedEvent
		if decode(domain.EvAdminUpdated, raw, &ev) {
			push(rtAdminUpdatedMsg{ev: ev})
		}
	})
	ch.Handle(domain.EvPush, func(raw json.RawMessage) {
		var p domain.PushPayload
		if decode(domain.EvPush, raw, &p) {
			push(rtPushMsg{push: p})
		}
	})
	// Room metadata churn all funnels into a single list refresh.
	for _, name := range []string{domain.EvRoomUpdated, domain.EvRoomNameUpdated, domain.EvRoomMembersUpdated} {
		ch.Handle(name, func(json.RawMessage) {
			push(rtRoomsChangedMsg{})
		})
	}

	ch.OnStateChange(func(from, to realtime.State) {
		push(connStateMsg{from: from, to: to})
	})
}

// waitEvent delivers the next bridged realtime event to Update.
func (a App) waitEvent() tea.Cmd {
	events := a.events
	return func() tea.Msg {
		return <-events
	}
}

func (a App) checkSession() tea.Cmd {
	c := a.client
	return func() tea.Msg {
		res, err := c.Session(context.Background())
		if err != nil {
			return sessionCheckedMsg{err: err}
		}
		return sessionCheckedMsg{user: &res.User}
	}
}

func (a App) connectChannel() tea.Cmd {
	ch := a.channel
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return channelConnectedMsg{err: ch.Connect(ctx)}
	}
}

func (a App) Init() tea.Cmd {
	cmds := []tea.Cmd{frameTickCmd(), a.waitEvent()}
	if a.view == viewLogin {
		cmds = append(cmds, a.login.Init())
	} else {
		cmds = append(cmds, a.checkSession())
	}
	return tea.Batch(cmds...)
}

// startSession builds the per-user state after authentication and kicks
// off the socket dial and room list load.
func (a *App) startSession(user domain.User) tea.Cmd {
	a.session = chat.NewSession(a.client, a.channel, a.store, user)
	a.rooms = newRoomsModel(a.session)
	a.chatv = newChatModel(a.session)
	a.profile = newProfileModel(a.client, a.store, user)
	a.view = viewRooms
	return tea.Batch(a.connectChannel(), a.rooms.load())
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		// Chrome: title(1) + status/typing(1) + help(1)
		body := tea.WindowSizeMsg{Width: msg.Width, Height: msg.Height - 3}
		a.login, _ = a.login.Update(body)
		a.rooms, _ = a.rooms.Update(body)
		a.chatv, _ = a.chatv.Update(body)
		a.profile, _ = a.profile.Update(body)
		return a, nil

	case frameTickMsg:
		var cmd tea.Cmd
		if a.session != nil {
			a.chatv, cmd = a.chatv.Update(msg)
		}
		if a.toast != "" && time.Now().After(a.toastExpires) {
			a.toast = ""
		}
		return a, tea.Batch(frameTickCmd(), cmd)

	case sessionCheckedMsg:
		if msg.err != nil {
			if client.IsAuthError(msg.err) {
				a.view = viewLogin
				return a, a.login.Init()
			}
			// Transient failure: proceed offline, the cache covers us.
			log.Warn().Err(msg.err).Msg("tui: session check failed, starting offline")
			return a, a.startSession(domain.User{})
		}
		return a, a.startSession(*msg.user)

	case loginDoneMsg:
		if msg.err != nil {
			var cmd tea.Cmd
			a.login, cmd = a.login.Update(msg)
			return a, cmd
		}
		a.client.SetToken(msg.res.Token)
		a.client.SetCSRFToken(msg.res.CSRFToken)
		if a.saveAuth != nil {
			if err := a.saveAuth(msg.res); err != nil {
				log.Warn().Err(err).Msg("tui: could not persist login")
			}
		}
		return a, a.startSession(msg.res.User)

	case channelConnectedMsg:
		if msg.err != nil {
			log.Warn().Err(msg.err).Msg("tui: socket dial failed")
			a.connState = realtime.StateDisconnected
			a.connChangedAt = time.Now()
		}
		return a, a.waitEvent()

	case connStateMsg:
		a.connState = msg.to
		a.connChangedAt = time.Now()
		var cmd tea.Cmd
		// A reconnect may have missed messages: rejoin and resync the
		// open room.
		if msg.to == realtime.StateConnected && a.session != nil && a.session.Room() != nil {
			cmd = a.chatv.resync()
		}
		return a, tea.Batch(a.waitEvent(), cmd)

	case rtNewMessageMsg:
		if a.session != nil {
			a.session.QueueIncoming(msg.msg)
			a.rooms.bumpUnread(msg.msg)
		}
		return a, a.waitEvent()

	case rtMessageEditedMsg:
		if a.session != nil {
			a.session.ApplyEdit(msg.ev)
		}
		return a, a.waitEvent()

	case rtMessageDeletedMsg:
		if a.session != nil {
			a.session.ApplyDelete(msg.ev)
			a.chatv.clampCursor()
		}
		return a, a.waitEvent()

	case rtTypingMsg:
		if a.session != nil {
			a.session.ApplyTyping(msg.ev)
		}
		return a, a.waitEvent()

	case rtReadUpdatedMsg:
		if a.session != nil {
			a.session.ApplyReadUpdate(msg.ev)
		}
		return a, a.waitEvent()

	case rtReactionUpdatedMsg:
		if a.session != nil {
			a.session.ApplyReactions(msg.ev)
		}
		return a, a.waitEvent()

	case rtUserStatusMsg:
		a.rooms.applyUserStatus(msg.ev)
		return a, a.waitEvent()

	case rtProfileUpdatedMsg:
		// A member renamed themselves: patch rendered sender names and
		// refresh the list so direct-room titles follow.
		var cmd tea.Cmd
		if a.session != nil {
			a.session.ApplyProfileUpdate(msg.ev)
			cmd = a.rooms.load()
		}
		return a, tea.Batch(a.waitEvent(), cmd)

	case rtPinUpdatedMsg:
		// Pinned announcements changed: refetch the open room's state.
		var cmd tea.Cmd
		if a.session != nil {
			if r := a.session.Room(); r != nil && r.ID == msg.ev.RoomID {
				cmd = a.chatv.resync()
			}
		}
		return a, tea.Batch(a.waitEvent(), cmd)

	case rtPollMsg:
		// Polls surface as room content; a resync picks them up.
		var cmd tea.Cmd
		if a.session != nil {
			if r := a.session.Room(); r != nil && r.ID == msg.ev.RoomID {
				cmd = a.chatv.resync()
			}
		}
		return a, tea.Batch(a.waitEvent(), cmd)

	case rtAdminUpdatedMsg:
		// Our own rights changed somewhere: the room list carries what
		// we may act on, so reload it.
		var cmd tea.Cmd
		if a.session != nil && msg.ev.UserID == a.session.User().ID {
			cmd = a.rooms.load()
		}
		return a, tea.Batch(a.waitEvent(), cmd)

	case rtRoomsChangedMsg:
		var cmd tea.Cmd
		if a.session != nil {
			cmd = a.rooms.load()
		}
		return a, tea.Batch(a.waitEvent(), cmd)

	case rtPushMsg:
		if a.shouldToast(msg.push) {
			a.toast = msg.push.Title
			if msg.push.Body != "" {
				a.toast += ": " + truncStr(msg.push.Body, 60)
			}
			a.toastExpires = time.Now().Add(toastLinger)
		}
		return a, a.waitEvent()

	case openRoomMsg:
		a.view = viewChat
		var cmd tea.Cmd
		a.chatv, cmd = a.chatv.open(msg.room)
		return a, cmd

	case profileSavedMsg:
		// Tell other clients so their rendered names refresh live.
		if msg.err == nil {
			if err := a.channel.ProfileUpdated(); err != nil {
				log.Debug().Err(err).Msg("tui: profile_updated emit failed")
			}
		}
		var cmd tea.Cmd
		a.profile, cmd = a.profile.Update(msg)
		return a, cmd

	case leaveChatMsg:
		a.view = viewRooms
		return a, a.rooms.load()

	case tea.KeyMsg:
		if !a.isEditing() {
			switch msg.String() {
			case "ctrl+c":
				return a, tea.Quit
			case "q":
				if a.view == viewRooms {
					return a, tea.Quit
				}
			case "P":
				if a.view != viewProfile && a.view != viewLogin {
					a.view = viewProfile
					return a, a.profile.Init()
				}
			case "esc":
				if a.view == viewProfile {
					a.view = viewRooms
					return a, nil
				}
			}
		} else if msg.String() == "ctrl+c" {
			return a, tea.Quit
		}
	}

	var cmd tea.Cmd
	switch a.view {
	case viewLogin:
		a.login, cmd = a.login.Update(msg)
	case viewRooms:
		a.rooms, cmd = a.rooms.Update(msg)
	case viewChat:
		a.chatv, cmd = a.chatv.Update(msg)
	case viewProfile:
		a.profile, cmd = a.profile.Update(msg)
	}
	return a, cmd
}

// shouldToast filters push notifications: nothing for the open room,
// nothing for muted rooms.
func (a App) shouldToast(p domain.PushPayload) bool {
	if a.session == nil {
		return false
	}
	if r := a.session.Room(); r != nil && a.view == viewChat && p.Tag == r.TagString() {
		return false
	}
	return !a.rooms.mutedByTag(p.Tag)
}

func (a App) isEditing() bool {
	switch a.view {
	case viewLogin:
		return true
	case viewChat:
		return a.chatv.inputFocused()
	case viewRooms:
		return a.rooms.editing()
	case viewProfile:
		return a.profile.editing
	}
	return false
}

// statusLine renders the connection indicator. It is empty when the
// channel has been healthy for a while, styled by severity otherwise.
func (a App) statusLine() string {
	switch a.connState {
	case realtime.StateConnected:
		if time.Since(a.connChangedAt) < statusLinger {
			return statusOKStyle.Render("● connected")
		}
		return ""
	case realtime.StateConnecting:
		return statusWarnStyle.Render("○ connecting...")
	case realtime.StateReconnecting:
		return statusWarnStyle.Render("○ reconnecting...")
	default:
		if a.view == viewLogin {
			return ""
		}
		return statusErrStyle.Render("✕ offline")
	}
}

func (a App) View() string {
	title := accentBoldStyle.Render("huddle")
	if a.session != nil && a.session.User().Username != "" {
		title += "  " + metaStyle.Render("@"+a.session.User().DisplayName())
	}
	if a.toast != "" {
		title += "  " + toastStyle.Render(a.toast)
	}

	var body, help string
	switch a.view {
	case viewLogin:
		body = a.login.View()
		help = " " + helpEntry("tab", "next field") + "  " + helpEntry("enter", "submit") + "  " + helpEntry("ctrl+r", "register") + "  " + helpEntry("ctrl+c", "quit")
	case viewRooms:
		body = a.rooms.View()
		help = " " + a.rooms.helpKeys()
	case viewChat:
		body = a.chatv.View()
		help = " " + a.chatv.helpKeys()
	case viewProfile:
		body = a.profile.View()
		help = " " + a.profile.helpKeys()
	}

	status := a.statusLine()
	if a.view == viewChat {
		if typing := a.chatv.typingLine(); typing != "" {
			if status != "" {
				status += "  "
			}
			status += dimStyle.Render(typing)
		}
	}

	// Chrome budget: title(1) + status(1) + help(1)
	body = strings.TrimRight(truncateToHeight(body, a.height-3), "\n")
	return title + "\n" + body + "\n " + status + "\n" + help
}
