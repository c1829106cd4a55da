// Package frames supplies the most recent screen capture to the live
// session.
package frames

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/soyeahso/iris/internal/domain"
	"github.com/soyeahso/iris/internal/logging"
)

// FileSource polls an image file written by an external screenshot tool
// and keeps the newest contents. Older captures are simply replaced.
type FileSource struct {
	path     string
	interval time.Duration
	log      *logging.Logger

	mu      sync.RWMutex
	frame   domain.Frame
	ok      bool
	modTime time.Time
	size    int64
}

// NewFileSource creates a source for path polled every interval.
func NewFileSource(path string, interval time.Duration, log *logging.Logger) *FileSource {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &FileSource{path: path, interval: interval, log: log.Sub("frames")}
}

// Run polls until ctx is cancelled.
func (s *FileSource) Run(ctx context.Context) {
	s.Poll()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Poll()
		}
	}
}

// Poll reloads the file if it changed since the last poll. It reports
// whether a new frame was loaded.
func (s *FileSource) Poll() bool {
	info, err := os.Stat(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Debug().Err(err).Msg("stat failed")
		}
		return false
	}

	s.mu.RLock()
	unchanged := s.ok && info.ModTime().Equal(s.modTime) && info.Size() == s.size
	s.mu.RUnlock()
	if unchanged || info.Size() == 0 {
		return false
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		s.log.Warn().Err(err).Str("path", s.path).Msg("reading frame")
		return false
	}

	s.mu.Lock()
	s.frame = domain.Frame{Data: data, MimeType: mimeType(s.path), CapturedAt: info.ModTime()}
	s.ok = true
	s.modTime = info.ModTime()
	s.size = info.Size()
	s.mu.Unlock()
	return true
}

// LatestFrame returns a copy of the newest frame.
func (s *FileSource) LatestFrame() (domain.Frame, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.ok {
		return domain.Frame{}, false
	}
	f := s.frame
	f.Data = append([]byte(nil), s.frame.Data...)
	return f, true
}

func mimeType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
