package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/huddlehq/huddle/pkg/cache"
)

// accentPalette maps the user-selectable theme colors to their hex
// values. Order matters: the profile view cycles through it.
var accentPalette = []struct {
	Name string
	Hex  string
}{
	{"indigo", "#818cf8"},
	{"emerald", "#34d399"},
	{"amber", "#fbbf24"},
	{"rose", "#fb7185"},
	{"cyan", "#22d3ee"},
}

var (
	// Base palette — dark slate neutrals.
	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#8890a0"))

	metaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#505868"))

	normalStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#c0c4d0"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#e4e4ec")).
			Bold(true)

	// Accent styles. Rebuilt by ApplyTheme when the user picks a color.
	accentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#818cf8"))

	accentBoldStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#818cf8")).
			Bold(true)

	// Help bar
	helpKeyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#8890a0"))

	helpLabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#505868"))

	// Input
	inputPlaceholderStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#343c4a"))

	chatComposingStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#e4e4ec"))

	// Chat message styles
	chatTextStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#a8b0c0"))

	chatSelfNameStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#e4e4ec")).
				Bold(true)

	chatNameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#8ca8d8")).
			Bold(true)

	chatSepStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#404858"))

	chatSysStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#404858"))

	// Undecryptable ciphertext placeholder
	undecryptableStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#706040")).
				Italic(true)

	// Mentions
	mentionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#818cf8")).
			Bold(true)

	mentionSelfStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#c7d2fe")).
				Bold(true)

	// Reply preview quoted above a message
	replyQuoteStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#606878")).
			Italic(true)

	// File attachments
	fileStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#60a0e0"))

	// Room list
	unreadBadgeStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#0a0a10")).
				Background(lipgloss.Color("#818cf8")).
				Bold(true)

	pinStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#d4a844"))

	mutedRoomStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#505868"))

	onlineDotStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#34d399"))

	offlineDotStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#404858"))

	// Connection status line
	statusOKStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#34d399"))

	statusWarnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#fbbf24"))

	statusErrStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#f87171"))

	// Transient toast (push-style notification)
	toastStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#e4e4ec")).
			Background(lipgloss.Color("#1e1e2a")).
			Padding(0, 1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#f87171"))
)

// ApplyTheme rebuilds the accent styles from a persisted theme. Unknown
// colors keep the default indigo.
func ApplyTheme(t cache.Theme) {
	for _, p := range accentPalette {
		if p.Name == t.Color {
			accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(p.Hex))
			accentBoldStyle = accentStyle.Bold(true)
			mentionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(p.Hex)).Bold(true)
			unreadBadgeStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#0a0a10")).
				Background(lipgloss.Color(p.Hex)).
				Bold(true)
			return
		}
	}
}

// helpEntry renders a single "key label" pair for help bars.
func helpEntry(key, label string) string {
	return helpKeyStyle.Render(key) + " " + helpLabelStyle.Render(label)
}
