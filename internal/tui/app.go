package tui

import (
	"context"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/shiftsync/internal/tui/keys"
	"github.com/matheus3301/shiftsync/internal/tui/model"
	"github.com/matheus3301/shiftsync/internal/tui/ui"
	"github.com/matheus3301/shiftsync/internal/tui/views"
	"github.com/rivo/tview"
)

const viewThread = "thread"

// App is the main TUI application shell.
type App struct {
	app       *tview.Application
	vm        *model.ViewModel
	registry  *keys.Registry
	theme     *ui.Theme
	statusBar *views.StatusBar
	syncPanel *views.SyncPanel
	thread    *views.MessageThread
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewApp creates the TUI for one room, posting as userID.
func NewApp(d model.Daemon, profileName, roomID, userID string) *App {
	ctx, cancel := context.WithCancel(context.Background())
	theme := ui.DefaultTheme()

	a := &App{
		app:       tview.NewApplication(),
		vm:        model.NewViewModel(d, roomID, userID),
		registry:  keys.NewRegistry(),
		theme:     theme,
		statusBar: views.NewStatusBar(theme),
		syncPanel: views.NewSyncPanel(theme),
		thread:    views.NewMessageThread(theme, userID),
		ctx:       ctx,
		cancel:    cancel,
	}

	a.statusBar.SetProfile(profileName)
	a.thread.SetRoom(roomID)
	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()

	return a
}

// background runs fn off the UI goroutine.
func (a *App) background(fn func(ctx context.Context)) func() {
	return func() { go fn(a.ctx) }
}

func (a *App) setupBindings() {
	a.registry.AddView(viewThread, &keys.Action{
		Rune: 'i', Key: tcell.KeyRune,
		Description: "i:compose", Visible: true,
		Handler: func() { a.app.SetFocus(a.thread.Composer()) },
	})
	a.registry.AddGlobal(&keys.Action{
		Rune: 's', Key: tcell.KeyRune,
		Description: "s:sync", Visible: true,
		Handler: a.background(a.vm.SyncNow),
	})
	a.registry.AddGlobal(&keys.Action{
		Rune: 'o', Key: tcell.KeyRune,
		Description: "o:online?", Visible: true,
		Handler: a.background(a.vm.CheckOnline),
	})
	a.registry.AddGlobal(&keys.Action{
		Rune: 'r', Key: tcell.KeyRune,
		Description: "r:retry failed", Visible: true,
		Handler: a.background(a.vm.RetryFailed),
	})
	a.registry.AddGlobal(&keys.Action{
		Rune: 'q', Key: tcell.KeyRune,
		Description: "q:quit", Visible: true,
		Handler: a.Stop,
	})
	a.statusBar.SetHints(a.registry.Hints(viewThread))
}

func (a *App) setupCallbacks() {
	a.thread.SetOnSend(func(text string) {
		go func() {
			if err := a.vm.SendText(a.ctx, text); err != nil {
				a.vm.Flash.Error("send failed: "+err.Error(), 5*time.Second)
			}
			a.refresh()
		}()
	})
}

func (a *App) setupLayout() {
	body := tview.NewFlex().
		AddItem(a.thread, 0, 1, true).
		AddItem(a.syncPanel, 32, 0, false)

	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(body, 0, 1, true).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(root, true)
	a.app.SetFocus(a.thread.Messages())

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		// Let the composer handle all keys except Esc.
		if _, ok := a.app.GetFocus().(*tview.InputField); ok {
			if event.Key() == tcell.KeyEscape {
				a.app.SetFocus(a.thread.Messages())
				return nil
			}
			return event
		}

		if a.registry.HandleEvent(viewThread, event) {
			return nil
		}
		return event
	})
}

// refresh redraws every widget from the view model.
func (a *App) refresh() {
	a.app.QueueUpdateDraw(func() {
		snap := a.vm.Snapshot()
		ob := a.vm.Outbox()
		msg, level := a.vm.Flash.Get()

		a.statusBar.SetSnapshot(snap)
		a.statusBar.SetOutbox(ob.Queued, ob.Failed)
		a.statusBar.SetFlash(msg, level == model.Err)
		a.syncPanel.Update(snap.LastResult)
		a.thread.Update(a.vm.Messages())
	})
}

// Run starts the TUI application.
func (a *App) Run() error {
	go func() {
		a.vm.Reload(a.ctx)
		a.refresh()
	}()
	go a.vm.Watch(a.ctx)
	go a.refreshLoop()

	return a.app.Run()
}

func (a *App) refreshLoop() {
	// The ticker expires flash messages and advances the clock.
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-a.vm.RefreshCh():
			a.refresh()
		case <-ticker.C:
			a.refresh()
		case <-a.ctx.Done():
			return
		}
	}
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
