package keys

import (
	"reflect"
	"testing"

	"github.com/gdamore/tcell/v2"
)

func TestRegistryDispatchOrder(t *testing.T) {
	r := NewRegistry()
	var fired []string
	r.AddGlobal(&Action{Key: tcell.KeyRune, Rune: 'q', Description: "q:quit", Visible: true,
		Handler: func() { fired = append(fired, "global-q") }})
	r.AddGlobal(&Action{Key: tcell.KeyCtrlR, Description: "hidden",
		Handler: func() { fired = append(fired, "ctrl-r") }})
	r.AddView("thread", &Action{Key: tcell.KeyRune, Rune: 'q', Description: "q:close", Visible: true,
		Handler: func() { fired = append(fired, "view-q") }})

	if !r.HandleEvent("thread", tcell.NewEventKey(tcell.KeyRune, 'q', tcell.ModNone)) {
		t.Fatal("q not handled in thread")
	}
	if !r.HandleEvent("other", tcell.NewEventKey(tcell.KeyRune, 'q', tcell.ModNone)) {
		t.Fatal("q not handled globally")
	}
	if !r.HandleEvent("thread", tcell.NewEventKey(tcell.KeyCtrlR, 0, tcell.ModCtrl)) {
		t.Fatal("ctrl-r not handled")
	}
	if r.HandleEvent("thread", tcell.NewEventKey(tcell.KeyRune, 'x', tcell.ModNone)) {
		t.Fatal("x should not match")
	}

	if want := []string{"view-q", "global-q", "ctrl-r"}; !reflect.DeepEqual(fired, want) {
		t.Fatalf("fired = %v, want %v", fired, want)
	}
	if got, want := r.Hints("thread"), []string{"q:close", "q:quit"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Hints = %v, want %v", got, want)
	}
}
