package policy

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceWindow coalesces editor write bursts into one reload.
const debounceWindow = 200 * time.Millisecond

// Reloader watches a policy file and swaps the store on change. An
// invalid document is rejected and the active version stays untouched.
type Reloader struct {
	watcher *fsnotify.Watcher
	store   *Store
	path    string

	// OnSwap, if set, is called with the new version after a successful
	// swap. Used by servers to log reloads.
	OnSwap func(version int, hash string)
}

// NewReloader creates a file watcher for the given policy path.
func NewReloader(store *Store, path string) (*Reloader, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("watch policy file: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %q: %w", path, err)
	}
	return &Reloader{watcher: watcher, store: store, path: path}, nil
}

// Run watches for file changes and reloads policy. Blocks until ctx is
// cancelled.
func (r *Reloader) Run(ctx context.Context) error {
	defer r.watcher.Close()

	var timer *time.Timer
	fire := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-r.watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounceWindow, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})

		case <-fire:
			r.reload()

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "policy reloader: %v\n", err)
		}
	}
}

func (r *Reloader) reload() {
	set, err := LoadFile(r.path)
	if err != nil {
		// Reject bad config, keep serving the active version.
		fmt.Fprintf(os.Stderr, "policy reload rejected: %v\n", err)
		return
	}
	v := r.store.Swap(set)
	if r.OnSwap != nil {
		r.OnSwap(v, set.Hash)
	}
}
