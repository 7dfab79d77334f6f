package sync

import (
	"context"
	gosync "sync"
	"testing"
	"time"

	"github.com/conorfennell/attendance/internal/storage"
)

type pushCall struct {
	files   []string
	message string
}

type fakeNotifier struct {
	mu    gosync.Mutex
	calls []pushCall
	ok    bool
	msg   string
	block chan struct{}
}

func (f *fakeNotifier) Push(ctx context.Context, files []string, message string) (bool, string) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, pushCall{files: files, message: message})
	return f.ok, f.msg
}

func (f *fakeNotifier) Calls() []pushCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]pushCall(nil), f.calls...)
}

func change(table storage.Table, path string) storage.Change {
	msg := map[storage.Table]string{
		storage.TableUsers:      "Users updated",
		storage.TableSchedule:   "Schedule updated",
		storage.TableAttendance: "Attendance updated",
	}[table]
	return storage.Change{Table: table, Path: path, Message: msg}
}

func TestDispatcherCoalescesQueuedChanges(t *testing.T) {
	n := &fakeNotifier{ok: true}
	d := NewDispatcher(n, Options{QueueSize: 8})

	d.Notify(change(storage.TableSchedule, "schedule.csv"))
	d.Notify(change(storage.TableAttendance, "attendance.csv"))
	d.Notify(change(storage.TableAttendance, "attendance.csv"))

	ctx, cancel := context.WithCancel(context.Background())
	go d.Run(ctx)
	cancel()
	<-d.Done()

	calls := n.Calls()
	if len(calls) != 1 {
		t.Fatalf("Expected one coalesced push, got %+v", calls)
	}
	if len(calls[0].files) != 2 || calls[0].files[0] != "schedule.csv" || calls[0].files[1] != "attendance.csv" {
		t.Errorf("Expected both files once, got %v", calls[0].files)
	}
	if calls[0].message != "Schedule updated; Attendance updated" {
		t.Errorf("Unexpected commit message '%s'", calls[0].message)
	}
	if len(d.Warnings()) != 0 {
		t.Errorf("Expected no warnings, got %+v", d.Warnings())
	}
}

func TestDispatcherRecordsWarnings(t *testing.T) {
	n := &fakeNotifier{ok: false, msg: "missing credentials (repo URL / token)"}
	d := NewDispatcher(n, Options{MaxWarnings: 2})
	d.now = func() time.Time { return time.Date(2025, 10, 1, 9, 0, 0, 0, time.UTC) }

	ctx, cancel := context.WithCancel(context.Background())
	go d.Run(ctx)

	for i := 0; i < 3; i++ {
		d.Notify(change(storage.TableUsers, "users.csv"))
		deadline := time.Now().Add(5 * time.Second)
		for len(n.Calls()) < i+1 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
	}
	cancel()
	<-d.Done()

	if len(n.Calls()) != 3 {
		t.Fatalf("Expected 3 pushes, got %d", len(n.Calls()))
	}
	warnings := d.Warnings()
	if len(warnings) != 2 {
		t.Fatalf("Expected the warning buffer to keep 2 entries, got %d", len(warnings))
	}
	if warnings[0].Message != n.msg || warnings[0].Files[0] != "users.csv" {
		t.Errorf("Unexpected warning %+v", warnings[0])
	}
}

func TestDispatcherNotifyNeverBlocks(t *testing.T) {
	n := &fakeNotifier{ok: true}
	d := NewDispatcher(n, Options{QueueSize: 1})

	done := make(chan struct{})
	go func() {
		d.Notify(change(storage.TableUsers, "users.csv"))
		d.Notify(change(storage.TableSchedule, "schedule.csv"))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Notify blocked on a full queue")
	}

	warnings := d.Warnings()
	if len(warnings) != 1 || warnings[0].Files[0] != "schedule.csv" {
		t.Errorf("Expected the dropped change to be reported, got %+v", warnings)
	}
}

func TestDispatcherAsStoreListener(t *testing.T) {
	n := &fakeNotifier{ok: true, block: make(chan struct{})}
	d := NewDispatcher(n, Options{})
	store, err := storage.OpenCSV(t.TempDir(), storage.WithChangeFunc(d.Notify))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go d.Run(ctx)

	saved := make(chan error, 1)
	go func() { saved <- store.SaveUsers(context.Background(), nil) }()
	select {
	case err := <-saved:
		if err != nil {
			t.Fatalf("SaveUsers returned an unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Save waited for the sync push")
	}

	close(n.block)
	cancel()
	<-d.Done()
	if calls := n.Calls(); len(calls) != 1 || calls[0].message != "Users updated" {
		t.Errorf("Expected one users push, got %+v", calls)
	}
}
