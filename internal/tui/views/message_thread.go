package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/shiftsync/internal/api"
	"github.com/matheus3301/shiftsync/internal/tui/ui"
	"github.com/rivo/tview"
)

// MessageThread displays messages and a composer for a single room.
type MessageThread struct {
	*tview.Flex
	theme    *ui.Theme
	messages *tview.TextView
	composer *tview.InputField
	userID   string
	onSend   func(text string)
}

// NewMessageThread creates a new message thread view. Messages sent by userID
// are labelled "You".
func NewMessageThread(theme *ui.Theme, userID string) *MessageThread {
	messages := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	messages.SetBorder(true)
	messages.SetBorderColor(theme.BorderColor)
	messages.SetBackgroundColor(theme.BgColor)
	messages.SetTextColor(theme.FgColor)
	messages.SetTitle(" Messages ")
	messages.SetTitleColor(theme.TitleColor)

	composer := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)
	composer.SetBorder(true)
	composer.SetBorderColor(theme.BorderColor)
	composer.SetBackgroundColor(theme.BgColor)
	composer.SetFieldBackgroundColor(theme.BgColor)
	composer.SetFieldTextColor(theme.FgColor)
	composer.SetLabelColor(theme.MenuKeyColor)
	composer.SetTitle(" Compose (i to focus) ")
	composer.SetTitleColor(theme.TitleColor)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(messages, 0, 1, true).
		AddItem(composer, 3, 0, false)

	mt := &MessageThread{
		Flex:     flex,
		theme:    theme,
		messages: messages,
		composer: composer,
		userID:   userID,
	}

	composer.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter && mt.onSend != nil {
			text := strings.TrimSpace(composer.GetText())
			if text != "" {
				mt.onSend(text)
				composer.SetText("")
			}
		}
	})

	return mt
}

// SetRoom updates the title.
func (mt *MessageThread) SetRoom(roomID string) {
	mt.messages.SetTitle(fmt.Sprintf(" %s ", tview.Escape(roomID)))
}

// SetOnSend sets the callback when a message is sent.
func (mt *MessageThread) SetOnSend(fn func(text string)) {
	mt.onSend = fn
}

// Update refreshes the message view. msgs arrive newest first.
func (mt *MessageThread) Update(msgs []api.MessageView) {
	mt.messages.Clear()
	_, _ = fmt.Fprint(mt.messages, mt.render(msgs))
	mt.messages.ScrollToEnd()
}

func (mt *MessageThread) render(msgs []api.MessageView) string {
	var b strings.Builder
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		sender := m.SenderID
		if sender == mt.userID {
			sender = "You"
		}

		marker := ""
		if m.SyncState != "synced" {
			marker = fmt.Sprintf(" [%s](%s)[-]", ui.Tag(mt.theme.PendingColor), m.SyncState)
		}

		fmt.Fprintf(&b, "[::b]%s[-:-:-] [::d]%s[-:-:-]%s\n%s\n\n",
			tview.Escape(sanitizeForTerminal(sender)),
			formatTimestamp(m.CreatedTime()),
			marker,
			tview.Escape(sanitizeForTerminal(m.Body)))
	}
	return b.String()
}

func formatTimestamp(t time.Time) string {
	t = t.Local()
	now := time.Now()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("Jan 2 15:04")
}

// Messages returns the messages text view (for focus management).
func (mt *MessageThread) Messages() *tview.TextView {
	return mt.messages
}

// Composer returns the composer input field (for focus management).
func (mt *MessageThread) Composer() *tview.InputField {
	return mt.composer
}
