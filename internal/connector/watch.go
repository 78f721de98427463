package connector

import (
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/inkpipe/inkpipe/internal/domain"
	"github.com/inkpipe/inkpipe/internal/observability"
)

// Watcher wakes the poll loop early when a PDF lands in a watched local
// folder. It is purely an optimization: the poll interval still governs the
// loop, the watcher just shortens the wait after a drop.
type Watcher struct {
	fw     *fsnotify.Watcher
	wake   chan struct{}
	done   chan struct{}
	logger *observability.Logger
}

// NewWatcher starts watching the folder for created or modified PDFs.
// Events are debounced so a burst of writes produces a single wake.
func NewWatcher(folder string, debounce time.Duration, logger *observability.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, domain.IOError("create filesystem watcher", err)
	}
	if err := fw.Add(folder); err != nil {
		fw.Close()
		return nil, domain.IOError("watch local folder", err)
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	w := &Watcher{
		fw:     fw,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: logger.WithComponent("connector.watch"),
	}
	go w.loop(debounce)
	return w, nil
}

// Wake returns the channel signaled after new PDF activity.
func (w *Watcher) Wake() <-chan struct{} {
	return w.wake
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fw.Close()
}

func (w *Watcher) loop(debounce time.Duration) {
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Rename) {
				continue
			}
			if !strings.HasSuffix(strings.ToLower(event.Name), ".pdf") {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
				fire = timer.C
			} else {
				timer.Reset(debounce)
			}
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("filesystem watcher error")
		case <-fire:
			timer = nil
			fire = nil
			select {
			case w.wake <- struct{}{}:
			default:
			}
		}
	}
}
