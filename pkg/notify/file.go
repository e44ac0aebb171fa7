package notify

import (
	"context"
	"encoding/json"
	"os"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/osprey/pkg/model"
)

// File appends alerts as JSON lines to a local file.
type File struct {
	mu   sync.Mutex
	path string
}

// NewFile creates a file channel writing to the given path
func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) Name() string {
	return "file"
}

func (f *File) Send(ctx context.Context, alert *model.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fd, err := os.OpenFile(f.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return goerr.Wrap(err, "failed to open alert file", goerr.V("path", f.path))
	}
	defer fd.Close()

	line, err := json.Marshal(alert)
	if err != nil {
		return goerr.Wrap(err, "failed to encode alert")
	}
	line = append(line, '\n')

	if _, err := fd.Write(line); err != nil {
		return goerr.Wrap(err, "failed to append alert", goerr.V("path", f.path))
	}
	return nil
}
