package tui

import (
	"context"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/huddlehq/huddle/pkg/client"
)

// loginDoneMsg carries the result of a login or register attempt.
type loginDoneMsg struct {
	res *client.LoginResult
	err error
}

type loginField int

const (
	fieldUsername loginField = iota
	fieldPassword
	fieldNickname // register mode only
)

// loginModel is the credential form shown before a session exists.
type loginModel struct {
	client *client.Client

	registering bool
	field       loginField
	username    string
	password    string
	nickname    string

	submitting bool
	errText    string
	width      int
	height     int
}

func newLoginModel(c *client.Client) loginModel {
	return loginModel{client: c}
}

func (m loginModel) Init() tea.Cmd {
	return nil
}

func (m loginModel) submit() tea.Cmd {
	c := m.client
	username := strings.TrimSpace(m.username)
	password := m.password
	nickname := strings.TrimSpace(m.nickname)
	registering := m.registering
	return func() tea.Msg {
		ctx := context.Background()
		if registering {
			res, err := c.Register(ctx, username, password, nickname)
			return loginDoneMsg{res: res, err: err}
		}
		res, err := c.Login(ctx, username, password)
		return loginDoneMsg{res: res, err: err}
	}
}

func (m loginModel) Update(msg tea.Msg) (loginModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case loginDoneMsg:
		// Success is handled by the App; only failures come back here.
		m.submitting = false
		if msg.err != nil {
			if client.IsStatus(msg.err, 401) {
				m.errText = "wrong username or password"
			} else if client.IsStatus(msg.err, 409) {
				m.errText = "username already taken"
			} else {
				m.errText = msg.err.Error()
			}
		}
		return m, nil

	case tea.KeyMsg:
		if m.submitting {
			return m, nil
		}
		switch msg.String() {
		case "tab", "down":
			m.field = m.nextField(1)
			return m, nil
		case "shift+tab", "up":
			m.field = m.nextField(-1)
			return m, nil
		case "ctrl+r":
			m.registering = !m.registering
			m.field = fieldUsername
			m.errText = ""
			return m, nil
		case "enter":
			if strings.TrimSpace(m.username) == "" || m.password == "" {
				m.errText = "username and password are required"
				return m, nil
			}
			m.submitting = true
			m.errText = ""
			return m, m.submit()
		default:
			switch m.field {
			case fieldUsername:
				m.username = editRune(m.username, msg.String())
			case fieldPassword:
				m.password = editRune(m.password, msg.String())
			case fieldNickname:
				m.nickname = editRune(m.nickname, msg.String())
			}
			return m, nil
		}
	}
	return m, nil
}

func (m loginModel) nextField(dir int) loginField {
	last := fieldPassword
	if m.registering {
		last = fieldNickname
	}
	f := int(m.field) + dir
	if f < 0 {
		f = int(last)
	}
	if f > int(last) {
		f = 0
	}
	return loginField(f)
}

func (m loginModel) renderField(label, value string, active, mask bool) string {
	if mask {
		value = strings.Repeat("*", len([]rune(value)))
	}
	cursor := ""
	labelR := dimStyle.Render(label)
	if active {
		labelR = accentStyle.Render(label)
		cursor = accentStyle.Render("█")
	}
	return "  " + labelR + "  " + chatComposingStyle.Render(value) + cursor
}

func (m loginModel) View() string {
	var b strings.Builder

	mode := "sign in"
	if m.registering {
		mode = "create account"
	}
	b.WriteString("\n  " + selectedStyle.Render(mode) + "\n\n")
	b.WriteString(m.renderField("username", m.username, m.field == fieldUsername, false) + "\n")
	b.WriteString(m.renderField("password", m.password, m.field == fieldPassword, true) + "\n")
	if m.registering {
		b.WriteString(m.renderField("nickname", m.nickname, m.field == fieldNickname, false) + "\n")
	}
	b.WriteByte('\n')

	switch {
	case m.submitting:
		b.WriteString("  " + dimStyle.Render("signing in...") + "\n")
	case m.errText != "":
		b.WriteString("  " + errorStyle.Render(m.errText) + "\n")
	}
	return b.String()
}
