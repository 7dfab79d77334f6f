package sync

import (
	"context"
	"log/slog"
	"strings"
	gosync "sync"
	"time"

	"github.com/conorfennell/attendance/internal/storage"
)

// Notifier pushes changed files to a remote. It reports the outcome instead of
// returning an error; a false ok is advisory only.
type Notifier interface {
	Push(ctx context.Context, files []string, message string) (ok bool, msg string)
}

// Warning records a sync that did not reach the remote. The local write it
// followed has already succeeded.
type Warning struct {
	At      time.Time
	Files   []string
	Message string
}

// Options tunes a Dispatcher.
type Options struct {
	QueueSize   int
	Timeout     time.Duration
	MaxWarnings int
}

// Dispatcher turns store change events into background pushes.
type Dispatcher struct {
	notifier Notifier
	opts     Options
	queue    chan storage.Change
	done     chan struct{}
	now      func() time.Time

	mu       gosync.Mutex
	warnings []Warning
}

// NewDispatcher returns a Dispatcher that hands changes to n. Call Run to start it.
func NewDispatcher(n Notifier, opts Options) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 16
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxWarnings <= 0 {
		opts.MaxWarnings = 10
	}
	return &Dispatcher{
		notifier: n,
		opts:     opts,
		queue:    make(chan storage.Change, opts.QueueSize),
		done:     make(chan struct{}),
		now:      time.Now,
	}
}

// Notify queues a change without blocking. When the queue is full the change
// is dropped and a warning is recorded.
func (d *Dispatcher) Notify(c storage.Change) {
	select {
	case d.queue <- c:
	default:
		d.warn([]string{c.Path}, "sync queue full, change not pushed: "+c.Message)
	}
}

// Run pushes queued changes until ctx is cancelled, then flushes whatever is
// still queued and returns.
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.done)
	slog.Info("Sync dispatcher started")
	for {
		select {
		case <-ctx.Done():
			d.flush()
			slog.Info("Sync dispatcher stopped")
			return
		case c := <-d.queue:
			d.push(ctx, d.collect(c))
		}
	}
}

// Done is closed once Run has returned.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

// Warnings returns the most recent failed syncs, oldest first.
func (d *Dispatcher) Warnings() []Warning {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Warning(nil), d.warnings...)
}

func (d *Dispatcher) flush() {
	for {
		select {
		case c := <-d.queue:
			d.push(context.Background(), d.collect(c))
		default:
			return
		}
	}
}

// batch is several changes pushed as one commit.
type batch struct {
	files    []string
	messages []string
}

// collect merges first with every change already waiting in the queue.
func (d *Dispatcher) collect(first storage.Change) batch {
	var b batch
	seenFiles := make(map[string]bool)
	seenMsgs := make(map[string]bool)
	add := func(c storage.Change) {
		if !seenFiles[c.Path] {
			seenFiles[c.Path] = true
			b.files = append(b.files, c.Path)
		}
		if !seenMsgs[c.Message] {
			seenMsgs[c.Message] = true
			b.messages = append(b.messages, c.Message)
		}
	}

	add(first)
	for {
		select {
		case c := <-d.queue:
			add(c)
		default:
			return b
		}
	}
}

func (d *Dispatcher) push(ctx context.Context, b batch) {
	ctx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()

	message := strings.Join(b.messages, "; ")
	ok, msg := d.notifier.Push(ctx, b.files, message)
	if !ok {
		d.warn(b.files, msg)
		return
	}
	slog.Info("Sync push complete", "files", b.files, "message", message)
}

func (d *Dispatcher) warn(files []string, msg string) {
	slog.Warn("Sync push failed", "files", files, "reason", msg)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.warnings = append(d.warnings, Warning{At: d.now(), Files: files, Message: msg})
	if over := len(d.warnings) - d.opts.MaxWarnings; over > 0 {
		d.warnings = append([]Warning(nil), d.warnings[over:]...)
	}
}
