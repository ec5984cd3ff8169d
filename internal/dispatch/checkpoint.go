package dispatch

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Checkpoint persists the poll watermark so a restart does not replay
// notifications already handled. The file holds one RFC 3339 timestamp.
type Checkpoint struct {
	path string
}

func NewCheckpoint(path string) *Checkpoint {
	return &Checkpoint{path: path}
}

// Load returns the stored watermark. A missing file is a cold start and
// yields the zero time, which lists everything unread.
func (c *Checkpoint) Load() (time.Time, error) {
	b, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("checkpoint load: %w", err)
	}
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(string(b)))
	if err != nil {
		return time.Time{}, fmt.Errorf("checkpoint parse: %w", err)
	}
	return t, nil
}

// Save writes the watermark atomically (write-then-rename).
func (c *Checkpoint) Save(t time.Time) error {
	tmp := c.path + ".tmp"
	data := t.UTC().Format(time.RFC3339) + "\n"
	if err := os.WriteFile(tmp, []byte(data), 0o600); err != nil {
		return fmt.Errorf("checkpoint save: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("checkpoint save: %w", err)
	}
	return nil
}
