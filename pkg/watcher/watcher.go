// Package watcher observes a plugin root directory and reports changes per
// top-level plugin directory.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Event reports a change somewhere below one top-level directory of the root
type Event struct {
	// Name is the top-level directory name
	Name string
	// Dir is the absolute path of the top-level directory
	Dir string
	// Path is the last changed path
	Path string
	// Op accumulates the fsnotify operations seen for Dir
	Op fsnotify.Op
}

// Options configures a Watcher
type Options struct {
	// Debounce coalesces events of the same directory. Zero delivers every event.
	Debounce time.Duration
	Logger   *logrus.Logger
}

// Watcher watches a directory tree recursively
type Watcher struct {
	root     string
	fs       *fsnotify.Watcher
	debounce time.Duration
	log      *logrus.Logger
}

// New starts watching root and every non-hidden directory below it
func New(root string, opts Options) (*Watcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", root, err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	log := opts.Logger
	if log == nil {
		log = logrus.New()
	}

	w := &Watcher{
		root:     abs,
		fs:       fw,
		debounce: opts.Debounce,
		log:      log,
	}

	if err := w.addTree(abs); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", abs, err)
	}

	return w, nil
}

// Root returns the watched directory
func (w *Watcher) Root() string {
	return w.root
}

// Close stops the underlying watcher; Run returns afterwards
func (w *Watcher) Close() error {
	return w.fs.Close()
}

// Run delivers events to handle until ctx is done or the watcher is closed.
// handle is called from the Run goroutine, one event at a time.
func (w *Watcher) Run(ctx context.Context, handle func(Event)) error {
	d := newDebouncer(w.debounce)
	defer d.stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.track(ev)

			e, ok := w.toEvent(ev)
			if !ok {
				continue
			}
			if w.debounce <= 0 {
				handle(e)
				continue
			}
			d.schedule(ctx, e)

		case f := <-d.ready:
			if e, ok := d.take(f); ok {
				handle(e)
			}

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.log.WithError(err).Warn("plugin watcher error")
		}
	}
}

// debouncer holds at most one pending event per top-level directory.
// It is owned by the Run goroutine; only timers touch ready.
type debouncer struct {
	delay   time.Duration
	pending map[string]*pendingEvent
	ready   chan firing
	seq     uint64
}

type pendingEvent struct {
	event Event
	gen   uint64
	timer *time.Timer
}

// firing is sent by a timer. A timer stopped too late still fires, so gen
// tells its firing apart from the one of the entry that replaced it.
type firing struct {
	name string
	gen  uint64
}

func newDebouncer(delay time.Duration) *debouncer {
	return &debouncer{
		delay:   delay,
		pending: make(map[string]*pendingEvent),
		ready:   make(chan firing),
	}
}

// schedule restarts the debounce timer of e's directory
func (d *debouncer) schedule(ctx context.Context, e Event) {
	if p, ok := d.pending[e.Name]; ok {
		p.timer.Stop()
		e.Op |= p.event.Op
	}

	d.seq++
	f := firing{name: e.Name, gen: d.seq}
	p := &pendingEvent{event: e, gen: f.gen}
	p.timer = time.AfterFunc(d.delay, func() {
		select {
		case d.ready <- f:
		case <-ctx.Done():
		}
	})
	d.pending[e.Name] = p
}

// take removes and returns the pending event f fired for. Firings of
// replaced or already delivered entries report false.
func (d *debouncer) take(f firing) (Event, bool) {
	p, ok := d.pending[f.name]
	if !ok || p.gen != f.gen {
		return Event{}, false
	}
	delete(d.pending, f.name)
	return p.event, true
}

func (d *debouncer) stop() {
	for _, p := range d.pending {
		p.timer.Stop()
	}
}

// track adds watches for new directories so the tree stays covered
func (w *Watcher) track(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) {
		return
	}
	info, err := os.Stat(ev.Name)
	if err != nil || !info.IsDir() {
		return
	}
	if err := w.addTree(ev.Name); err != nil {
		w.log.WithError(err).Warnf("failed to watch new directory %s", ev.Name)
	}
}

// toEvent maps a raw event to its top-level directory
func (w *Watcher) toEvent(ev fsnotify.Event) (Event, bool) {
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return Event{}, false
	}

	name := strings.SplitN(filepath.ToSlash(rel), "/", 2)[0]
	if hidden(name) {
		return Event{}, false
	}

	return Event{
		Name: name,
		Dir:  filepath.Join(w.root, name),
		Path: ev.Name,
		Op:   ev.Op,
	}, true
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Directories can vanish while walking
			if path != dir && os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && hidden(d.Name()) {
			return filepath.SkipDir
		}
		return w.fs.Add(path)
	})
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
