package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/huddlehq/huddle/internal/chat"
	"github.com/huddlehq/huddle/pkg/domain"
)

// openRoomMsg asks the App to switch to the chat view.
type openRoomMsg struct {
	room domain.Room
}

// roomsLoadedMsg carries a refreshed room list.
type roomsLoadedMsg struct {
	rooms     []domain.Room
	fromCache bool
	err       error
}

// roomActionMsg carries the result of a pin/mute/rename/create call.
type roomActionMsg struct {
	err error
}

type roomsMode int

const (
	roomsNav roomsMode = iota
	roomsFilter
	roomsRename
	roomsCreate
)

// roomsModel is the room list view.
type roomsModel struct {
	session *chat.Session

	rooms  []domain.Room
	cursor int

	mode   roomsMode
	input  string // filter / rename / create buffer
	filter string

	status string
	stale  bool // list came from the offline cache
	width  int
	height int
}

func newRoomsModel(s *chat.Session) roomsModel {
	return roomsModel{session: s}
}

func (m roomsModel) load() tea.Cmd {
	s := m.session
	if s == nil {
		return nil
	}
	return func() tea.Msg {
		rooms, fromCache, err := s.FetchRooms(context.Background())
		return roomsLoadedMsg{rooms: rooms, fromCache: fromCache, err: err}
	}
}

func (m roomsModel) editing() bool {
	return m.mode != roomsNav
}

// bumpUnread increments a room's unread counter when a message arrives
// for a room that is not open.
func (m *roomsModel) bumpUnread(msg domain.Message) {
	if m.session != nil {
		if r := m.session.Room(); r != nil && r.ID == msg.RoomID {
			return
		}
	}
	for i := range m.rooms {
		if m.rooms[i].ID == msg.RoomID {
			m.rooms[i].UnreadCount++
			m.rooms[i].LastMessageTime = msg.CreatedAt
			return
		}
	}
}

// applyUserStatus flips the online dot on direct-room partners.
func (m *roomsModel) applyUserStatus(ev domain.UserStatusEvent) {
	for i := range m.rooms {
		if p := m.rooms[i].Partner; p != nil && p.ID == ev.UserID {
			p.Online = ev.Online
		}
	}
}

// mutedByTag reports whether the room carrying the given push tag is
// muted.
func (m roomsModel) mutedByTag(tag string) bool {
	for _, r := range m.rooms {
		if r.TagString() == tag {
			return r.Muted
		}
	}
	return false
}

// visible returns the rooms matching the active filter.
func (m roomsModel) visible() []domain.Room {
	if m.filter == "" {
		return m.rooms
	}
	q := strings.ToLower(m.filter)
	var out []domain.Room
	for _, r := range m.rooms {
		if strings.Contains(strings.ToLower(r.DisplayName()), q) {
			out = append(out, r)
		}
	}
	return out
}

func (m roomsModel) selected() (domain.Room, bool) {
	rooms := m.visible()
	if m.cursor < 0 || m.cursor >= len(rooms) {
		return domain.Room{}, false
	}
	return rooms[m.cursor], true
}

func (m roomsModel) Update(msg tea.Msg) (roomsModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case roomsLoadedMsg:
		if msg.err != nil {
			m.status = "could not load rooms: " + msg.err.Error()
			return m, nil
		}
		m.rooms = msg.rooms
		m.stale = msg.fromCache
		m.status = ""
		if m.cursor >= len(m.rooms) {
			m.cursor = len(m.rooms) - 1
		}
		if m.cursor < 0 {
			m.cursor = 0
		}
		return m, nil

	case roomActionMsg:
		if msg.err != nil {
			m.status = msg.err.Error()
			return m, nil
		}
		return m, m.load()

	case tea.KeyMsg:
		if m.mode != roomsNav {
			return m.updateEditing(msg)
		}
		return m.updateNav(msg)
	}
	return m, nil
}

func (m roomsModel) updateNav(msg tea.KeyMsg) (roomsModel, tea.Cmd) {
	switch msg.String() {
	case "j", "down":
		if m.cursor < len(m.visible())-1 {
			m.cursor++
		}
	case "k", "up":
		if m.cursor > 0 {
			m.cursor--
		}
	case "g":
		m.cursor = 0
	case "G":
		m.cursor = len(m.visible()) - 1
		if m.cursor < 0 {
			m.cursor = 0
		}
	case "enter":
		if r, ok := m.selected(); ok {
			return m, func() tea.Msg { return openRoomMsg{room: r} }
		}
	case "p":
		if r, ok := m.selected(); ok {
			return m, m.setPinned(r.ID, !r.Pinned)
		}
	case "m":
		if r, ok := m.selected(); ok {
			return m, m.setMuted(r.ID, !r.Muted)
		}
	case "R":
		if r, ok := m.selected(); ok && !r.IsDirect() {
			m.mode = roomsRename
			m.input = r.Name
		}
	case "n":
		m.mode = roomsCreate
		m.input = ""
	case "/":
		m.mode = roomsFilter
		m.input = m.filter
	case "r":
		return m, m.load()
	case "esc":
		if m.filter != "" {
			m.filter = ""
			m.cursor = 0
		}
	}
	return m, nil
}

func (m roomsModel) updateEditing(msg tea.KeyMsg) (roomsModel, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.mode = roomsNav
		m.input = ""
		return m, nil
	case "enter":
		text := strings.TrimSpace(m.input)
		mode := m.mode
		m.mode = roomsNav
		m.input = ""
		switch mode {
		case roomsFilter:
			m.filter = text
			m.cursor = 0
			return m, nil
		case roomsRename:
			if r, ok := m.selected(); ok && text != "" {
				return m, m.rename(r.ID, text)
			}
			return m, nil
		case roomsCreate:
			if text != "" {
				return m, m.create(text)
			}
			return m, nil
		}
		return m, nil
	default:
		m.input = editRune(m.input, msg.String())
		if m.mode == roomsFilter {
			m.filter = m.input
			m.cursor = 0
		}
		return m, nil
	}
}

func (m roomsModel) setPinned(roomID int64, pinned bool) tea.Cmd {
	c := m.session
	return func() tea.Msg {
		err := c.API().PinRoom(context.Background(), roomID, pinned)
		return roomActionMsg{err: err}
	}
}

func (m roomsModel) setMuted(roomID int64, muted bool) tea.Cmd {
	c := m.session
	return func() tea.Msg {
		err := c.API().MuteRoom(context.Background(), roomID, muted)
		return roomActionMsg{err: err}
	}
}

func (m roomsModel) rename(roomID int64, name string) tea.Cmd {
	c := m.session
	return func() tea.Msg {
		err := c.API().RenameRoom(context.Background(), roomID, name)
		return roomActionMsg{err: err}
	}
}

func (m roomsModel) create(name string) tea.Cmd {
	c := m.session
	return func() tea.Msg {
		_, err := c.API().CreateRoom(context.Background(), domain.RoomGroup, name, nil)
		return roomActionMsg{err: err}
	}
}

func (m roomsModel) helpKeys() string {
	if m.mode != roomsNav {
		return helpEntry("enter", "apply") + "  " + helpEntry("esc", "cancel")
	}
	return helpEntry("j/k", "nav") + "  " + helpEntry("enter", "open") + "  " +
		helpEntry("/", "filter") + "  " + helpEntry("p", "pin") + "  " +
		helpEntry("m", "mute") + "  " + helpEntry("n", "new") + "  " +
		helpEntry("P", "profile") + "  " + helpEntry("q", "quit")
}

func (m roomsModel) View() string {
	var b strings.Builder
	rooms := m.visible()

	header := " " + selectedStyle.Render("rooms")
	if m.stale {
		header += "  " + statusWarnStyle.Render("(offline copy)")
	}
	if m.filter != "" {
		header += "  " + accentStyle.Render("/"+m.filter)
	}
	b.WriteString(header + "\n\n")

	if len(rooms) == 0 {
		b.WriteString(" " + dimStyle.Render("no rooms yet — press n to create one") + "\n")
	}

	for i, r := range rooms {
		b.WriteString(m.renderRoom(r, i == m.cursor && m.mode == roomsNav) + "\n")
	}

	switch m.mode {
	case roomsFilter:
		b.WriteString("\n " + accentStyle.Render("filter: ") + chatComposingStyle.Render(m.input) + accentStyle.Render("█") + "\n")
	case roomsRename:
		b.WriteString("\n " + accentStyle.Render("rename: ") + chatComposingStyle.Render(m.input) + accentStyle.Render("█") + "\n")
	case roomsCreate:
		b.WriteString("\n " + accentStyle.Render("new room: ") + chatComposingStyle.Render(m.input) + accentStyle.Render("█") + "\n")
	}

	if m.status != "" {
		b.WriteString("\n " + errorStyle.Render(m.status) + "\n")
	}
	return b.String()
}

func (m roomsModel) renderRoom(r domain.Room, selected bool) string {
	marker := "  "
	if selected {
		marker = accentStyle.Render("▸ ")
	}

	var dot string
	if r.IsDirect() && r.Partner != nil {
		if r.Partner.Online {
			dot = onlineDotStyle.Render("●") + " "
		} else {
			dot = offlineDotStyle.Render("○") + " "
		}
	}

	name := r.DisplayName()
	nameStyle := normalStyle
	if r.Muted {
		nameStyle = mutedRoomStyle
	}
	if selected {
		nameStyle = selectedStyle
	}

	line := " " + marker + dot + nameStyle.Render(truncStr(name, 32))
	if r.Pinned {
		line += " " + pinStyle.Render("★")
	}
	if r.Muted {
		line += " " + metaStyle.Render("muted")
	}
	if r.UnreadCount > 0 && !r.Muted {
		line += "  " + unreadBadgeStyle.Render(fmt.Sprintf(" %d ", r.UnreadCount))
	}
	if !r.LastMessageTime.IsZero() {
		line += "  " + metaStyle.Render(formatLastSeen(r.LastMessageTime))
	}
	return line
}
