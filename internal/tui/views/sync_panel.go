package views

import (
	"fmt"
	"time"

	"github.com/matheus3301/shiftsync/internal/status"
	"github.com/matheus3301/shiftsync/internal/tui/ui"
	"github.com/rivo/tview"
)

// SyncPanel shows the counters of the last finished cycle.
type SyncPanel struct {
	*tview.TextView
	theme *ui.Theme
}

// NewSyncPanel creates a new sync panel.
func NewSyncPanel(theme *ui.Theme) *SyncPanel {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetWordWrap(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTitle(" Last sync ")
	tv.SetTitleColor(theme.TitleColor)
	tv.SetBorderPadding(0, 0, 1, 1)

	return &SyncPanel{TextView: tv, theme: theme}
}

// Update renders r, or a placeholder before the first cycle.
func (sp *SyncPanel) Update(r *status.Result) {
	sp.Clear()
	_, _ = fmt.Fprint(sp, sp.text(r))
}

func (sp *SyncPanel) text(r *status.Result) string {
	if r == nil {
		return "[::d]no sync yet[-:-:-]"
	}

	label := fmt.Sprintf("[%s]ok[-]", ui.Tag(sp.theme.OnlineColor))
	if !r.Success {
		label = fmt.Sprintf("[%s]failed[-]", ui.Tag(sp.theme.FlashErrColor))
	}
	fg := ui.Tag(sp.theme.FgColor)
	num := ui.Tag(sp.theme.CounterColor)
	row := func(name string, v int) string {
		return fmt.Sprintf("[%s::b]%s[-:-:-] [%s]%d[-]\n", fg, name, num, v)
	}

	s := fmt.Sprintf("[%s::b]Result[-:-:-]   %s  [::d]%s (%s)[-:-:-]\n",
		fg, label, r.FinishedAt.Local().Format("15:04:05"), r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	s += row("Msgs up  ", r.MessagesUploaded)
	s += row("Msgs down", r.MessagesDownloaded)
	s += row("Teams up ", r.TeamsUploaded)
	s += row("Teams dn ", r.TeamsDownloaded)
	s += row("Rooms dn ", r.ChatRoomsDownloaded)
	s += row("Pending  ", r.Pending)
	s += row("Failed   ", r.Failed)
	if r.Error != "" {
		s += fmt.Sprintf("[%s]%s[-]", ui.Tag(sp.theme.FlashErrColor), tview.Escape(r.Error))
	}
	return s
}
