package store

import (
	"fmt"
	"io"

	"github.com/soyeahso/iris/internal/logging"
)

// OpenLog opens the conversation log for backend ("sqlite" or "memory").
// The closer is never nil.
func OpenLog(backend, path string, log *logging.Logger) (Log, io.Closer, error) {
	switch backend {
	case "", "sqlite":
		db, err := Open(path, log)
		if err != nil {
			return nil, nil, err
		}
		return NewSQLiteLog(db), db, nil
	case "memory":
		return NewMemoryLog(), nopCloser{}, nil
	}
	return nil, nil, fmt.Errorf("unknown store backend %q", backend)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
