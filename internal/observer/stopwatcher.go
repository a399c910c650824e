package observer

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// StopRequestAll is passed to the callback when a stop-all file appears
const StopRequestAll = 0

// StopCallback is called when a stop file appears. issue is the targeted
// issue number, or StopRequestAll for a blanket stop.
type StopCallback func(issue int)

// StopWatcher watches a control directory for stop files. Dropping a file
// named "stop-<issue>" cancels that issue's run; "stop-all" cancels every
// run. The file is removed after it is acted on.
type StopWatcher struct {
	dir      string
	watcher  *fsnotify.Watcher
	callback StopCallback

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewStopWatcher creates a watcher on the given control directory, creating
// the directory if needed.
func NewStopWatcher(dir string, callback StopCallback) (*StopWatcher, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	return &StopWatcher{
		dir:      dir,
		watcher:  watcher,
		callback: callback,
	}, nil
}

// Start begins watching. Stop files that already exist at start are honored
// too, so a stop requested while the process was down is not lost.
func (sw *StopWatcher) Start(ctx context.Context) {
	sw.mu.Lock()
	ctx, sw.cancel = context.WithCancel(ctx)
	sw.mu.Unlock()

	if entries, err := os.ReadDir(sw.dir); err == nil {
		for _, e := range entries {
			sw.handle(filepath.Join(sw.dir, e.Name()))
		}
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-sw.watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
					sw.handle(event.Name)
				}
			case err, ok := <-sw.watcher.Errors:
				if !ok {
					return
				}
				log.Printf("observer: stop watcher: %v", err)
			}
		}
	}()
}

// Stop stops watching
func (sw *StopWatcher) Stop() {
	sw.mu.Lock()
	if sw.cancel != nil {
		sw.cancel()
	}
	sw.mu.Unlock()
	sw.watcher.Close()
}

func (sw *StopWatcher) handle(path string) {
	name := filepath.Base(path)

	var issue int
	switch {
	case name == "stop-all":
		issue = StopRequestAll
	case strings.HasPrefix(name, "stop-"):
		n, err := strconv.Atoi(strings.TrimPrefix(name, "stop-"))
		if err != nil {
			return
		}
		issue = n
	default:
		return
	}

	os.Remove(path)
	log.Printf("observer: stop requested for issue %d", issue)
	sw.callback(issue)
}
