// Package spool ingests messages dropped as files into a directory.
package spool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/mailblog/internal/apperr"
)

// Subdirectories a processed file is moved to.
const (
	DoneDir   = "done"
	FailedDir = "failed"
)

const settle = 200 * time.Millisecond

// Handler processes one message.
type Handler func(ctx context.Context, r io.Reader) error

// EventCallback is called after each processed file with the handler's
// result. name is the file name inside the spool directory.
type EventCallback func(name string, err error)

// Watch processes the files already in dir, then every file that appears
// there, until ctx is cancelled. Files are handled one at a time in name
// order. Hidden files are ignored so writers can create ".tmp" names and
// rename them into place.
//
// A handled file moves to done/. A file whose handler failed moves to
// failed/, unless the failure is temporary (a store error), in which case it
// stays and is retried on the next scan.
func Watch(ctx context.Context, dir string, h Handler, logger *slog.Logger, cb EventCallback) error {
	for _, sub := range []string{DoneDir, FailedDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return fmt.Errorf("spool: %w", err)
		}
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("spool: %w", err)
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return fmt.Errorf("spool: watch %s: %w", dir, err)
	}
	logger.Info("spool: started", slog.String("dir", dir))

	scan(ctx, dir, h, logger, cb)

	// Writers emit several events per file; scan once things settle.
	var timer *time.Timer
	var timerCh <-chan time.Time
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(settle)
			timerCh = timer.C
		} else {
			timer.Reset(settle)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("spool: stopped")
			return nil

		case <-timerCh:
			scan(ctx, dir, h, logger, cb)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) != 0 && !hidden(filepath.Base(ev.Name)) {
				schedule()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("spool: watcher error", slog.String("error", watchErr.Error()))
		}
	}
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// scan handles every regular file currently in dir.
func scan(ctx context.Context, dir string, h Handler, logger *slog.Logger, cb EventCallback) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.Warn("spool: read dir failed", slog.String("error", err.Error()))
		return
	}
	for _, e := range entries {
		if ctx.Err() != nil {
			return
		}
		if !e.Type().IsRegular() || hidden(e.Name()) {
			continue
		}
		res, err := processFile(ctx, dir, e.Name(), h)
		if err != nil {
			logger.Warn("spool: file skipped", slog.String("file", e.Name()), slog.String("error", err.Error()))
			continue
		}
		if res.err != nil {
			logger.Error("spool: message failed",
				slog.String("file", e.Name()),
				slog.String("kind", apperr.Kind(res.err)),
				slog.String("moved_to", res.dest),
				slog.String("error", res.err.Error()))
		} else {
			logger.Debug("spool: message processed", slog.String("file", e.Name()))
		}
		if cb != nil {
			cb(e.Name(), res.err)
		}
	}
}

// outcome is what happened to one spool file.
type outcome struct {
	err  error  // handler result
	dest string // subdirectory the file moved to, "" if it stayed
}

// processFile runs h on one file and moves it according to the result. The
// returned error is a problem with the file itself, not with the message.
func processFile(ctx context.Context, dir, name string, h Handler) (outcome, error) {
	src := filepath.Join(dir, name)
	f, err := os.Open(src)
	if err != nil {
		return outcome{}, err
	}
	res := outcome{err: h(ctx, f)}
	_ = f.Close()

	switch {
	case res.err == nil:
		res.dest = DoneDir
	case errors.Is(res.err, apperr.ErrStore):
		return res, nil
	default:
		res.dest = FailedDir
	}
	if err := os.Rename(src, filepath.Join(dir, res.dest, name)); err != nil {
		res.dest = ""
		return res, err
	}
	return res, nil
}
