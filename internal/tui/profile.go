package tui

import (
	"context"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog/log"

	"github.com/huddlehq/huddle/pkg/cache"
	"github.com/huddlehq/huddle/pkg/client"
	"github.com/huddlehq/huddle/pkg/domain"
)

// profileLoadedMsg carries the freshly fetched profile.
type profileLoadedMsg struct {
	user *domain.User
	err  error
}

// profileSavedMsg carries the result of an update.
type profileSavedMsg struct {
	err error
}

type profileField int

const (
	profNickname profileField = iota
	profStatus
)

// profileModel renders and edits the local user's profile, and owns the
// theme picker.
type profileModel struct {
	client *client.Client
	store  *cache.Store

	user     domain.User
	field    profileField
	editing  bool
	nickname string
	status   string

	themeIdx int
	errText  string
	saved    bool
	width    int
	height   int
}

func newProfileModel(c *client.Client, store *cache.Store, user domain.User) profileModel {
	m := profileModel{client: c, store: store, user: user}
	if t, err := store.LoadTheme(); err == nil {
		for i, p := range accentPalette {
			if p.Name == t.Color {
				m.themeIdx = i
			}
		}
	}
	return m
}

func (m profileModel) Init() tea.Cmd {
	c := m.client
	return func() tea.Msg {
		user, err := c.GetProfile(context.Background())
		return profileLoadedMsg{user: user, err: err}
	}
}

func (m profileModel) save() tea.Cmd {
	c := m.client
	nickname := strings.TrimSpace(m.nickname)
	status := strings.TrimSpace(m.status)
	return func() tea.Msg {
		return profileSavedMsg{err: c.UpdateProfile(context.Background(), nickname, status)}
	}
}

func (m profileModel) Update(msg tea.Msg) (profileModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case profileLoadedMsg:
		if msg.err != nil {
			m.errText = msg.err.Error()
			return m, nil
		}
		m.user = *msg.user
		m.nickname = msg.user.Nickname
		m.status = msg.user.StatusMessage
		m.errText = ""
		return m, nil

	case profileSavedMsg:
		if msg.err != nil {
			m.errText = msg.err.Error()
			return m, nil
		}
		m.saved = true
		m.user.Nickname = strings.TrimSpace(m.nickname)
		m.user.StatusMessage = strings.TrimSpace(m.status)
		return m, nil

	case tea.KeyMsg:
		if m.editing {
			return m.updateEditing(msg)
		}
		switch msg.String() {
		case "e":
			m.editing = true
			m.field = profNickname
			m.saved = false
			return m, nil
		case "c":
			m.themeIdx = (m.themeIdx + 1) % len(accentPalette)
			theme := cache.Theme{Mode: "dark", Color: accentPalette[m.themeIdx].Name}
			ApplyTheme(theme)
			if err := m.store.SaveTheme(theme); err != nil {
				log.Debug().Err(err).Msg("tui: theme save failed")
			}
			return m, nil
		}
	}
	return m, nil
}

func (m profileModel) updateEditing(msg tea.KeyMsg) (profileModel, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.editing = false
		m.nickname = m.user.Nickname
		m.status = m.user.StatusMessage
		return m, nil
	case "tab", "down", "up", "shift+tab":
		if m.field == profNickname {
			m.field = profStatus
		} else {
			m.field = profNickname
		}
		return m, nil
	case "enter":
		m.editing = false
		return m, m.save()
	default:
		if m.field == profNickname {
			m.nickname = editRune(m.nickname, msg.String())
		} else {
			m.status = editRune(m.status, msg.String())
		}
		return m, nil
	}
}

func (m profileModel) helpKeys() string {
	if m.editing {
		return helpEntry("tab", "field") + "  " + helpEntry("enter", "save") + "  " + helpEntry("esc", "cancel")
	}
	return helpEntry("e", "edit") + "  " + helpEntry("c", "theme color") + "  " + helpEntry("esc", "back")
}

func (m profileModel) View() string {
	var b strings.Builder
	b.WriteString("\n  " + selectedStyle.Render("profile") + "\n\n")
	b.WriteString("  " + dimStyle.Render("username") + "  " + normalStyle.Render(m.user.Username) + "\n")

	renderField := func(label, value string, active bool) string {
		labelR := dimStyle.Render(label)
		cursor := ""
		if active {
			labelR = accentStyle.Render(label)
			cursor = accentStyle.Render("█")
		}
		return "  " + labelR + "  " + chatComposingStyle.Render(value) + cursor
	}

	b.WriteString(renderField("nickname", m.nickname, m.editing && m.field == profNickname) + "\n")
	b.WriteString(renderField("status  ", m.status, m.editing && m.field == profStatus) + "\n\n")

	theme := accentPalette[m.themeIdx]
	b.WriteString("  " + dimStyle.Render("theme   ") + "  " + accentStyle.Render(theme.Name) + "\n\n")

	switch {
	case m.errText != "":
		b.WriteString("  " + errorStyle.Render(m.errText) + "\n")
	case m.saved:
		b.WriteString("  " + statusOKStyle.Render("saved") + "\n")
	}
	return b.String()
}
