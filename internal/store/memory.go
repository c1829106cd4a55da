package store

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/soyeahso/iris/internal/domain"
)

// MemoryLog is a Log that lives only as long as the process.
type MemoryLog struct {
	mu       sync.RWMutex
	sessions []domain.Session
	msgs     []domain.Message
	now      func() time.Time
}

// NewMemoryLog creates an empty in-memory log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{now: time.Now}
}

func (l *MemoryLog) BeginSession(_ context.Context, s domain.Session) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s.StartedAt.IsZero() {
		s.StartedAt = l.now()
	}
	if i := l.sessionIndex(s.ID); i >= 0 {
		l.sessions[i].Model = s.Model
		return nil
	}
	l.sessions = append(l.sessions, s)
	return nil
}

func (l *MemoryLog) EndSession(_ context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i := l.sessionIndex(id); i >= 0 {
		l.sessions[i].EndedAt = l.now()
	}
	return nil
}

func (l *MemoryLog) Append(_ context.Context, msg domain.Message) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if msg.Timestamp.IsZero() {
		msg.Timestamp = l.now()
	}
	if l.sessionIndex(msg.SessionID) < 0 {
		l.sessions = append(l.sessions, domain.Session{ID: msg.SessionID, StartedAt: msg.Timestamp})
	}
	l.msgs = append(l.msgs, msg)
	return nil
}

func (l *MemoryLog) Recent(_ context.Context, n int) ([]domain.Message, error) {
	if n <= 0 {
		n = 20
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	start := max(len(l.msgs)-n, 0)
	return slices.Clone(l.msgs[start:]), nil
}

func (l *MemoryLog) LastAssistant(context.Context) (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for i := len(l.msgs) - 1; i >= 0; i-- {
		if l.msgs[i].Role == domain.RoleAssistant {
			return l.msgs[i].Content, nil
		}
	}
	return "", nil
}

func (l *MemoryLog) Sessions(_ context.Context, n int) ([]domain.Session, error) {
	if n <= 0 {
		n = 20
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := slices.Clone(l.sessions)
	slices.Reverse(out)
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}

// Search returns messages containing every word of query, newest first.
func (l *MemoryLog) Search(_ context.Context, query string, n int) ([]domain.Message, error) {
	words := strings.Fields(strings.ToLower(query))
	if len(words) == 0 {
		return nil, nil
	}
	if n <= 0 {
		n = 20
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []domain.Message
	for i := len(l.msgs) - 1; i >= 0 && len(out) < n; i-- {
		content := strings.ToLower(l.msgs[i].Content)
		if containsAll(content, words) {
			out = append(out, l.msgs[i])
		}
	}
	return out, nil
}

func containsAll(s string, words []string) bool {
	for _, w := range words {
		if !strings.Contains(s, w) {
			return false
		}
	}
	return true
}

func (l *MemoryLog) sessionIndex(id string) int {
	for i, s := range l.sessions {
		if s.ID == id {
			return i
		}
	}
	return -1
}
