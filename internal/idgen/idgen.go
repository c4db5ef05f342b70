package idgen

import (
	"os"

	"github.com/google/uuid"
)

// NewFunc returns a new globally unique identifier as string.
var NewFunc = func() string { return uuid.New().String() }

func New() string { return NewFunc() }

// WorkerID returns an identifier for a worker loop instance: host name plus a
// short random suffix.
func WorkerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	id := New()
	if len(id) > 8 {
		id = id[:8]
	}
	return host + "-" + id
}
