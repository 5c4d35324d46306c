package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/matheus3301/shiftsync/internal/status"
	"github.com/matheus3301/shiftsync/internal/tui/ui"
	"github.com/rivo/tview"
)

// StatusBar is the one-line footer: profile, connectivity, cycle state,
// outbox backlog and the current flash message.
type StatusBar struct {
	*tview.TextView
	theme    *ui.Theme
	profile  string
	snapshot status.Snapshot
	queued   int
	failed   int
	hints    []string
	flash    string
	flashErr bool
	now      func() time.Time
}

// NewStatusBar creates a new status bar.
func NewStatusBar(theme *ui.Theme) *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)

	return &StatusBar{TextView: tv, theme: theme, now: time.Now}
}

// SetProfile updates the profile name display.
func (sb *StatusBar) SetProfile(name string) {
	sb.profile = name
	sb.render()
}

// SetSnapshot updates connectivity and sync indicators.
func (sb *StatusBar) SetSnapshot(s status.Snapshot) {
	sb.snapshot = s
	sb.render()
}

// SetOutbox updates the backlog counters.
func (sb *StatusBar) SetOutbox(queued, failed int) {
	sb.queued, sb.failed = queued, failed
	sb.render()
}

// SetHints sets the key hints shown on the right.
func (sb *StatusBar) SetHints(hints []string) {
	sb.hints = hints
	sb.render()
}

// SetFlash sets a temporary message.
func (sb *StatusBar) SetFlash(msg string, isErr bool) {
	sb.flash, sb.flashErr = msg, isErr
	sb.render()
}

func (sb *StatusBar) render() {
	sb.Clear()
	_, _ = fmt.Fprint(sb, sb.line())
}

func (sb *StatusBar) line() string {
	net := fmt.Sprintf("[%s]offline[-]", ui.Tag(sb.theme.OfflineColor))
	if sb.snapshot.Online {
		net = fmt.Sprintf("[%s]online[-]", ui.Tag(sb.theme.OnlineColor))
	}

	state := string(sb.snapshot.State)
	if state == "" {
		state = string(status.Idle)
	}
	if sb.snapshot.Syncing {
		state = fmt.Sprintf("[%s]~ %s[-]", ui.Tag(sb.theme.OnlineColor), state)
	}

	line := fmt.Sprintf(" [::b]%s[-:-:-] | %s | %s | %s",
		tview.Escape(sb.profile), net, state, sb.now().Format("15:04"))

	if sb.queued > 0 || sb.failed > 0 {
		line += fmt.Sprintf(" | [%s]%d queued[-]", ui.Tag(sb.theme.PendingColor), sb.queued)
		if sb.failed > 0 {
			line += fmt.Sprintf(" [%s]%d failed[-]", ui.Tag(sb.theme.FlashErrColor), sb.failed)
		}
	}

	if sb.flash != "" {
		color := sb.theme.FlashInfoColor
		if sb.flashErr {
			color = sb.theme.FlashErrColor
		}
		line += fmt.Sprintf(" | [%s]%s[-]", ui.Tag(color), tview.Escape(sb.flash))
	}
	if len(sb.hints) > 0 {
		line += " | [::d]" + strings.Join(sb.hints, " ") + "[-:-:-]"
	}
	return line
}
