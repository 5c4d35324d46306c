package status

import (
	"testing"
	"time"

	"github.com/matheus3301/shiftsync/internal/bus"
)

func TestResultSealed(t *testing.T) {
	failed := Result{Success: false}.Sealed()
	if failed.Error == "" {
		t.Error("failed result without error after Sealed")
	}
	ok := Result{Success: true, Error: "stale"}.Sealed()
	if ok.Error != "" {
		t.Errorf("successful result kept error %q", ok.Error)
	}
	off := OfflineResult(time.Now())
	if off.Success || off.Error != ErrOffline || off.Transferred() {
		t.Errorf("offline result = %+v", off)
	}
}

func TestTrackerSetOnlineReportsChange(t *testing.T) {
	tr := NewTracker(bus.New(), nil)

	if tr.Online() {
		t.Fatal("tracker should start offline")
	}
	if !tr.SetOnline(true) {
		t.Error("offline -> online not reported as change")
	}
	if tr.SetOnline(true) {
		t.Error("online -> online reported as change")
	}
	if !tr.Online() {
		t.Error("Online() = false after SetOnline(true)")
	}
}

func TestTrackerLastResultIsCopy(t *testing.T) {
	tr := NewTracker(bus.New(), nil)
	if tr.LastResult() != nil {
		t.Fatal("LastResult should be nil before any cycle")
	}

	tr.Publish(Result{Success: true, MessagesUploaded: 3})
	got := tr.LastResult()
	got.MessagesUploaded = 99

	if tr.LastResult().MessagesUploaded != 3 {
		t.Error("caller mutated the published result")
	}
}

func TestTrackerSubscribe(t *testing.T) {
	b := bus.New()
	m := NewMachine(b)
	tr := NewTracker(b, m)
	ch, unsub := tr.Subscribe(8)
	defer unsub()

	tr.SetSyncing(true)

	select {
	case snap := <-ch:
		if !snap.Syncing {
			t.Errorf("snapshot syncing = false, want true")
		}
		if snap.State != Idle {
			t.Errorf("snapshot state = %s, want IDLE", snap.State)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for snapshot")
	}

	tr.Publish(Result{Success: false, Error: ErrOffline})
	select {
	case snap := <-ch:
		if snap.LastResult == nil || snap.LastResult.Error != ErrOffline {
			t.Errorf("snapshot result = %+v", snap.LastResult)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for snapshot")
	}
}

func TestTrackerUnsubscribeClosesChannel(t *testing.T) {
	tr := NewTracker(bus.New(), nil)
	ch, unsub := tr.Subscribe(1)
	unsub()
	unsub()

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after unsubscribe")
	}
}
