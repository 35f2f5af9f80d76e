package tui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/huddlehq/huddle/internal/browser"
	"github.com/huddlehq/huddle/internal/chat"
	"github.com/huddlehq/huddle/pkg/domain"
)

// mentionRe matches @word patterns in message text.
var mentionRe = regexp.MustCompile(`@(\w+)`)

// typingThrottle is the minimum gap between typing emits while the user
// keeps typing.
const typingThrottle = 2 * time.Second

// leaveChatMsg asks the App to return to the room list.
type leaveChatMsg struct{}

// chatMessagesMsg carries the initial message load for a room.
type chatMessagesMsg struct {
	gen       uint64
	msgs      []domain.Message
	fromCache bool
	err       error
}

// olderPageMsg carries one older-history page.
type olderPageMsg struct {
	gen  uint64
	msgs []domain.Message
	err  error
}

// resyncMsg carries the newest window after a reconnect.
type resyncMsg struct {
	gen  uint64
	msgs []domain.Message
	err  error
}

// uploadDoneMsg carries the result of a file upload.
type uploadDoneMsg struct {
	fileName string
	result   *domain.UploadResult
	err      error
}

type chatMode int

const (
	chatInput chatMode = iota
	chatNav
	chatReactPick
	chatAttach
)

// chatModel is the open-room view: message log, composer, reply and
// edit state, reaction picker.
type chatModel struct {
	session *chat.Session

	mode  chatMode
	input string

	// Reply / edit state. editingID == 0 means composing a new message.
	replyTo   *int64
	editingID int64

	// Delete needs a second keypress on the same message.
	confirmDeleteID int64

	cursor       int // selected message index in nav mode
	stale        bool
	status       string
	loading      bool
	lastTypeEmit time.Time

	width  int
	height int
}

func newChatModel(s *chat.Session) chatModel {
	return chatModel{session: s, mode: chatInput}
}

// inputFocused reports whether keystrokes belong to the composer.
func (m chatModel) inputFocused() bool {
	return m.mode == chatInput || m.mode == chatAttach
}

// open switches the view to a room and starts the initial load.
func (m chatModel) open(room domain.Room) (chatModel, tea.Cmd) {
	// Preserve the half-typed message of the room we are leaving.
	if prev := m.session.Room(); prev != nil && m.editingID == 0 {
		m.session.SaveDraft(prev.ID, m.input)
	}

	gen := m.session.OpenRoom(room)
	m.mode = chatInput
	m.input = m.session.Draft(room.ID)
	m.replyTo = nil
	m.editingID = 0
	m.confirmDeleteID = 0
	m.cursor = 0
	m.status = ""
	m.loading = true
	m.stale = false

	s := m.session
	return m, func() tea.Msg {
		msgs, fromCache, err := s.FetchMessages(context.Background(), room.ID)
		return chatMessagesMsg{gen: gen, msgs: msgs, fromCache: fromCache, err: err}
	}
}

// resync refetches the newest window after a reconnect and splices in
// anything missed while offline.
func (m chatModel) resync() tea.Cmd {
	s := m.session
	room := s.Room()
	if room == nil {
		return nil
	}
	s.Rejoin()
	gen := s.Generation()
	roomID := room.ID
	return func() tea.Msg {
		msgs, err := s.API().GetMessages(context.Background(), roomID, 0, chat.PageSize)
		return resyncMsg{gen: gen, msgs: msgs, err: err}
	}
}

func (m chatModel) loadOlder() tea.Cmd {
	beforeID, gen, ok := m.session.PageOlderArgs()
	if !ok {
		return nil
	}
	s := m.session
	roomID := s.Room().ID
	return func() tea.Msg {
		msgs, err := s.API().GetMessages(context.Background(), roomID, beforeID, chat.PageSize)
		return olderPageMsg{gen: gen, msgs: msgs, err: err}
	}
}

func (m chatModel) upload(path string) tea.Cmd {
	s := m.session
	roomID := s.Room().ID
	return func() tea.Msg {
		f, err := os.Open(path)
		if err != nil {
			return uploadDoneMsg{err: err}
		}
		defer f.Close() //nolint:errcheck
		res, err := s.API().UploadFile(context.Background(), roomID, filepath.Base(path), f)
		return uploadDoneMsg{fileName: filepath.Base(path), result: res, err: err}
	}
}

// clampCursor keeps the selection valid after deletions.
func (m *chatModel) clampCursor() {
	if n := len(m.session.Messages()); m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m chatModel) Update(msg tea.Msg) (chatModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case frameTickMsg:
		appended := m.session.FlushIncoming()
		if len(appended) > 0 {
			// Follow the tail unless the user is browsing history.
			if m.mode != chatNav {
				m.cursor = len(m.session.Messages()) - 1
				m.session.MarkRead(appended[len(appended)-1].ID)
			}
		}
		return m, nil

	case chatMessagesMsg:
		m.loading = false
		if msg.err != nil {
			m.status = "could not load messages: " + msg.err.Error()
			return m, nil
		}
		if m.session.FinishOpen(msg.gen, msg.msgs) {
			m.stale = msg.fromCache
			m.cursor = len(msg.msgs) - 1
			if len(msg.msgs) > 0 && !msg.fromCache {
				m.session.MarkRead(msg.msgs[len(msg.msgs)-1].ID)
			}
		}
		return m, nil

	case olderPageMsg:
		if msg.err != nil {
			m.session.FinishPageOlder(msg.gen, nil)
			m.status = "could not load history: " + msg.err.Error()
			return m, nil
		}
		if m.session.FinishPageOlder(msg.gen, msg.msgs) {
			// Keep the selection on the same message.
			m.cursor += len(msg.msgs)
		}
		return m, nil

	case resyncMsg:
		if msg.err != nil || msg.gen != m.session.Generation() {
			return m, nil
		}
		if appended := m.session.Resync(msg.msgs); len(appended) > 0 && m.mode != chatNav {
			m.cursor = len(m.session.Messages()) - 1
		}
		return m, nil

	case uploadDoneMsg:
		if msg.err != nil {
			m.status = "upload failed: " + msg.err.Error()
			return m, nil
		}
		if msg.result.ScanStatus == "infected" {
			m.status = "upload rejected: file failed the malware scan"
			return m, nil
		}
		msgType := domain.MessageFile
		switch strings.ToLower(filepath.Ext(msg.fileName)) {
		case ".png", ".jpg", ".jpeg", ".gif", ".webp":
			msgType = domain.MessageImage
		}
		if err := m.session.SendFileMessage(msgType, msg.fileName, msg.result.UploadToken); err != nil {
			m.status = err.Error()
		} else {
			m.status = ""
		}
		return m, nil

	case tea.KeyMsg:
		m.status = ""
		switch m.mode {
		case chatInput:
			return m.updateInput(msg)
		case chatNav:
			return m.updateNav(msg)
		case chatReactPick:
			return m.updateReactPick(msg)
		case chatAttach:
			return m.updateAttach(msg)
		}
	}
	return m, nil
}

func (m chatModel) updateInput(msg tea.KeyMsg) (chatModel, tea.Cmd) {
	switch msg.String() {
	case "esc":
		if m.editingID != 0 {
			m.editingID = 0
			m.input = m.session.Draft(m.roomID())
			return m, nil
		}
		if m.replyTo != nil {
			m.replyTo = nil
			return m, nil
		}
		m.mode = chatNav
		m.clampCursor()
		return m, nil

	case "shift+enter", "alt+enter":
		m.input = editRune(m.input, "\n")
		return m, nil

	case "enter":
		text := strings.TrimSpace(m.input)
		if text == "" {
			return m, nil
		}
		var err error
		if m.editingID != 0 {
			err = m.session.EditMessage(m.editingID, text)
		} else {
			err = m.session.SendMessage(text, m.replyTo)
		}
		if err != nil {
			m.status = err.Error()
			return m, nil
		}
		m.input = ""
		m.replyTo = nil
		m.editingID = 0
		m.session.SaveDraft(m.roomID(), "")
		m.session.NotifyTyping(false)
		m.lastTypeEmit = time.Time{}
		return m, nil

	case "ctrl+a":
		m.mode = chatAttach
		m.input, m.status = "", ""
		return m, nil

	default:
		before := m.input
		m.input = editRune(m.input, msg.String())
		if m.input != before {
			m.session.SaveDraft(m.roomID(), m.input)
			if m.editingID == 0 && time.Since(m.lastTypeEmit) > typingThrottle {
				m.session.NotifyTyping(true)
				m.lastTypeEmit = time.Now()
			}
		}
		return m, nil
	}
}

func (m chatModel) updateNav(msg tea.KeyMsg) (chatModel, tea.Cmd) {
	msgs := m.session.Messages()
	selected, haveSel := m.selectedMessage()

	switch msg.String() {
	case "q", "esc":
		m.session.SaveDraft(m.roomID(), m.input)
		return m, func() tea.Msg { return leaveChatMsg{} }

	case "i", "enter":
		m.mode = chatInput
		return m, nil

	case "j", "down":
		if m.cursor < len(msgs)-1 {
			m.cursor++
		}
	case "k", "up":
		if m.cursor > 0 {
			m.cursor--
		} else {
			// Already at the top: pull another page of history.
			return m, m.loadOlder()
		}
	case "G":
		m.cursor = len(msgs) - 1
		if m.cursor < 0 {
			m.cursor = 0
		}
	case "u":
		return m, m.loadOlder()

	case "r":
		if haveSel && !selected.IsSystem() {
			id := selected.ID
			m.replyTo = &id
			m.mode = chatInput
		}
	case "e":
		if haveSel && selected.SenderID == m.session.User().ID && selected.MessageType == domain.MessageText {
			text, bad := m.session.DisplayText(selected)
			if bad {
				m.status = "cannot edit: message key unavailable"
				return m, nil
			}
			m.editingID = selected.ID
			m.input = text
			m.mode = chatInput
		}
	case "d":
		if haveSel && selected.SenderID == m.session.User().ID {
			if m.confirmDeleteID == selected.ID {
				m.confirmDeleteID = 0
				if err := m.session.DeleteMessage(selected.ID); err != nil {
					m.status = err.Error()
				}
			} else {
				m.confirmDeleteID = selected.ID
				m.status = "press d again to delete"
			}
			return m, nil
		}
	case "t":
		if haveSel && !selected.IsSystem() {
			m.mode = chatReactPick
		}
	case "y":
		if haveSel {
			text, _ := m.session.DisplayText(selected)
			if err := clipboard.WriteAll(text); err != nil {
				m.status = "clipboard unavailable"
			} else {
				m.status = "copied"
			}
		}
	case "o":
		if haveSel && selected.HasFile() {
			url := m.session.API().BaseURL() + selected.FilePath
			if err := browser.Open(url); err != nil {
				m.status = "could not open attachment"
			}
		}
	}
	if msg.String() != "d" {
		m.confirmDeleteID = 0
	}
	return m, nil
}

func (m chatModel) updateReactPick(msg tea.KeyMsg) (chatModel, tea.Cmd) {
	key := msg.String()
	if key == "esc" {
		m.mode = chatNav
		return m, nil
	}
	if len(key) == 1 && key[0] >= '1' && key[0] <= '9' {
		idx := int(key[0] - '1')
		if selected, ok := m.selectedMessage(); ok && idx < len(domain.ReactionEmojis) {
			if err := m.session.ToggleReaction(selected.ID, domain.ReactionEmojis[idx]); err != nil {
				m.status = err.Error()
			}
		}
		m.mode = chatNav
	}
	return m, nil
}

func (m chatModel) updateAttach(msg tea.KeyMsg) (chatModel, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.mode = chatInput
		m.input = m.session.Draft(m.roomID())
		return m, nil
	case "enter":
		path := strings.TrimSpace(m.input)
		m.mode = chatInput
		m.input = m.session.Draft(m.roomID())
		if path == "" {
			return m, nil
		}
		m.status = "uploading " + filepath.Base(path) + "..."
		return m, m.upload(path)
	default:
		m.input = editRune(m.input, msg.String())
		return m, nil
	}
}

func (m chatModel) roomID() int64 {
	if r := m.session.Room(); r != nil {
		return r.ID
	}
	return 0
}

func (m chatModel) selectedMessage() (domain.Message, bool) {
	msgs := m.session.Messages()
	if m.cursor < 0 || m.cursor >= len(msgs) {
		return domain.Message{}, false
	}
	return msgs[m.cursor], true
}

// typingLine renders the indicator for the app's status row.
func (m chatModel) typingLine() string {
	return m.session.Typing().Label(time.Now())
}

func (m chatModel) helpKeys() string {
	switch m.mode {
	case chatInput:
		return helpEntry("enter", "send") + "  " + helpEntry("ctrl+a", "attach") + "  " + helpEntry("esc", "browse")
	case chatReactPick:
		return helpEntry("1-6", "react") + "  " + helpEntry("esc", "cancel")
	case chatAttach:
		return helpEntry("enter", "upload") + "  " + helpEntry("esc", "cancel")
	default:
		return helpEntry("j/k", "nav") + "  " + helpEntry("r", "reply") + "  " + helpEntry("e", "edit") + "  " +
			helpEntry("d", "delete") + "  " + helpEntry("t", "react") + "  " + helpEntry("y", "copy") + "  " +
			helpEntry("o", "open") + "  " + helpEntry("i", "type") + "  " + helpEntry("esc", "rooms")
	}
}

func (m chatModel) View() string {
	room := m.session.Room()
	if room == nil {
		return "\n " + dimStyle.Render("no room open")
	}

	var b strings.Builder

	header := " " + selectedStyle.Render(room.DisplayName())
	if room.IsDirect() && room.Partner != nil {
		if room.Partner.Online {
			header += " " + onlineDotStyle.Render("●")
		} else if ls := room.Partner.LastSeenAt; ls != nil && !ls.IsZero() {
			header += "  " + metaStyle.Render("seen "+formatLastSeen(*ls))
		}
	}
	if m.stale {
		header += "  " + statusWarnStyle.Render("(offline copy)")
	}
	b.WriteString(header + "\n")

	// Chrome inside the body: header(1) + input(1+newlines) + optional
	// context lines.
	chrome := 2 + strings.Count(m.input, "\n")
	if m.replyTo != nil || m.editingID != 0 {
		chrome++
	}
	if m.status != "" {
		chrome++
	}
	if m.mode == chatReactPick {
		chrome++
	}
	viewportHeight := m.height - chrome
	if viewportHeight < 2 {
		viewportHeight = 2
	}

	msgs := m.session.Messages()
	switch {
	case m.loading && len(msgs) == 0:
		padLines(viewportHeight-1, &b)
		b.WriteString(" " + dimStyle.Render("loading...") + "\n")
	case len(msgs) == 0:
		padLines(viewportHeight-1, &b)
		b.WriteString(" " + dimStyle.Render("no messages yet") + "\n")
	default:
		b.WriteString(m.renderMessages(msgs, viewportHeight))
	}

	// Reply / edit context line above the input.
	if m.editingID != 0 {
		b.WriteString(" " + accentStyle.Render("editing message") + " " + metaStyle.Render("(esc to cancel)") + "\n")
	} else if m.replyTo != nil {
		if quoted, ok := m.messageByID(*m.replyTo); ok {
			text, _ := m.session.DisplayText(quoted)
			b.WriteString(" " + replyQuoteStyle.Render("↪ replying to "+quoted.SenderName+": "+truncStr(text, 50)) + "\n")
		}
	}

	if m.mode == chatReactPick {
		b.WriteString(" " + m.renderReactPicker() + "\n")
	}

	b.WriteString(m.renderInput())
	if m.status != "" {
		b.WriteString("\n " + dimStyle.Render(m.status))
	}
	return b.String()
}

func (m chatModel) messageByID(id int64) (domain.Message, bool) {
	for _, msg := range m.session.Messages() {
		if msg.ID == id {
			return msg, true
		}
	}
	return domain.Message{}, false
}

func (m chatModel) renderReactPicker() string {
	var parts []string
	for i, e := range domain.ReactionEmojis {
		parts = append(parts, accentStyle.Render(fmt.Sprintf("%d", i+1))+" "+e)
	}
	return strings.Join(parts, "  ")
}

func (m chatModel) renderInput() string {
	prompt := accentStyle.Render("> ")
	if m.mode == chatAttach {
		return " " + accentStyle.Render("file: ") + chatComposingStyle.Render(m.input) + accentStyle.Render("█")
	}
	if m.mode != chatInput {
		if m.input == "" {
			return " " + chatSepStyle.Render("> ") + inputPlaceholderStyle.Render("press i to type")
		}
		return " " + chatSepStyle.Render("> ") + dimStyle.Render(m.input)
	}
	if m.input == "" {
		return " " + prompt + accentStyle.Render("█")
	}
	return " " + prompt + chatComposingStyle.Render(m.input) + accentStyle.Render("█")
}

// renderMessages renders the log clipped to viewportHeight lines,
// keeping the selected message visible.
func (m chatModel) renderMessages(msgs []domain.Message, viewportHeight int) string {
	var allLines []string
	cursorLine := 0
	for i, msg := range msgs {
		if i == m.cursor {
			cursorLine = len(allLines)
		}
		rendered := m.renderMessage(msg, i == m.cursor && m.mode != chatInput)
		allLines = append(allLines, strings.Split(rendered, "\n")...)
	}

	total := len(allLines)
	// Window ends at the bottom by default; scroll up just enough to
	// keep the cursor line visible.
	end := total
	start := end - viewportHeight
	if start < 0 {
		start = 0
	}
	if cursorLine < start {
		start = cursorLine
		end = start + viewportHeight
		if end > total {
			end = total
		}
	}

	visible := allLines[start:end]
	var b strings.Builder
	for i := len(visible); i < viewportHeight; i++ {
		b.WriteByte('\n')
	}
	for _, line := range visible {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

// renderMessage renders one message, possibly multi-line for wrapped
// bodies, reply quotes, and reaction rows.
func (m chatModel) renderMessage(msg domain.Message, selected bool) string {
	if msg.IsSystem() {
		return " " + chatSysStyle.Render("— "+msg.Content+" —")
	}

	marker := " "
	if selected {
		marker = accentStyle.Render("▸")
	}

	timeStr := fmt.Sprintf("%8s", formatChatTime(msg.CreatedAt))
	timePart := metaStyle.Render(timeStr)
	sep := chatSepStyle.Render(" · ")

	self := msg.SenderID == m.session.User().ID
	var namePart string
	if self {
		namePart = chatSelfNameStyle.Render(msg.SenderName)
	} else {
		namePart = chatNameStyle.Render(msg.SenderName)
	}

	prefixWidth := 1 + 8 + 2 + lipgloss.Width(namePart) + 3
	bodyWidth := m.width - prefixWidth
	if bodyWidth < 20 {
		bodyWidth = 20
	}

	var lines []string

	// Quoted parent above replies.
	if msg.ReplyTo != nil {
		if parent, ok := m.messageByID(*msg.ReplyTo); ok {
			text, _ := m.session.DisplayText(parent)
			lines = append(lines, strings.Repeat(" ", prefixWidth)+replyQuoteStyle.Render("↪ "+parent.SenderName+": "+truncStr(text, 40)))
		}
	}

	body := m.renderBody(msg, self, bodyWidth)
	bodyLines := strings.Split(body, "\n")
	first := marker + timePart + "  " + namePart + sep + bodyLines[0]
	lines = append(lines, first)
	indent := strings.Repeat(" ", prefixWidth)
	for _, l := range bodyLines[1:] {
		lines = append(lines, indent+l)
	}

	if len(msg.Reactions) > 0 {
		var parts []string
		for _, r := range msg.Reactions {
			p := fmt.Sprintf("%s %d", r.Emoji, len(r.UserIDs))
			if msg.ReactedBy(r.Emoji, m.session.User().ID) {
				p = accentStyle.Render(p)
			} else {
				p = dimStyle.Render(p)
			}
			parts = append(parts, p)
		}
		lines = append(lines, indent+strings.Join(parts, "  "))
	}

	if msg.UnreadCount > 0 && self {
		lines[len(lines)-1] += "  " + metaStyle.Render(fmt.Sprintf("%d unread", msg.UnreadCount))
	}
	return strings.Join(lines, "\n")
}

// renderBody decrypts and styles the message content.
func (m chatModel) renderBody(msg domain.Message, self bool, bodyWidth int) string {
	if msg.HasFile() {
		icon := "📎"
		if msg.MessageType == domain.MessageImage {
			icon = "🖼"
		}
		return fileStyle.Render(icon+" "+msg.FileName) + " " + metaStyle.Render("(o to open)")
	}

	text, undecryptable := m.session.DisplayText(msg)
	if undecryptable {
		return undecryptableStyle.Render("[encrypted message — key unavailable]")
	}

	style := chatTextStyle
	if self {
		style = chatComposingStyle
	}
	wrapped := hardWrap(lipgloss.NewStyle().Width(bodyWidth).Render(text), bodyWidth)
	lines := strings.Split(wrapped, "\n")
	for i, l := range lines {
		lines[i] = style.Render(highlightMentions(l, m.session.User().Username))
	}
	return strings.Join(lines, "\n")
}

// highlightMentions styles @mentions, with extra weight on mentions of
// the local user.
func highlightMentions(body, myName string) string {
	return mentionRe.ReplaceAllStringFunc(body, func(match string) string {
		if strings.EqualFold(match[1:], myName) {
			return mentionSelfStyle.Render(match)
		}
		return mentionStyle.Render(match)
	})
}
