package filelist

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
)

// ErrIndexOutOfRange is matched by every IndexError.
var ErrIndexOutOfRange = errors.New("index out of range")

// audioExtensions lists the input formats accepted by the separator.
var audioExtensions = map[string]struct{}{
	".wav":  {},
	".mp3":  {},
	".flac": {},
}

// IndexError reports a removal position outside the collection.
type IndexError struct {
	Position int
	Len      int
}

// Error formats the offending position and current length.
func (e *IndexError) Error() string {
	return fmt.Sprintf("position %d out of range [0, %d)", e.Position, e.Len)
}

// Unwrap exposes ErrIndexOutOfRange for errors.Is.
func (e *IndexError) Unwrap() error {
	return ErrIndexOutOfRange
}

// Collection is an ordered, duplicate-free list of audio file paths.
type Collection struct {
	mu      sync.RWMutex
	entries []string
	seen    map[string]struct{}
}

// NewCollection creates an empty collection.
func NewCollection() *Collection {
	return &Collection{seen: make(map[string]struct{})}
}

// IsAudioFile reports whether path carries a supported audio extension.
func IsAudioFile(path string) bool {
	_, ok := audioExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Append adds audio paths not already present, in input order, and
// returns how many were added.
func (c *Collection) Append(paths ...string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	added := 0
	for _, path := range paths {
		if !IsAudioFile(path) {
			continue
		}
		if _, dup := c.seen[path]; dup {
			continue
		}
		c.seen[path] = struct{}{}
		c.entries = append(c.entries, path)
		added++
	}
	return added
}

// RemoveAt removes the entries at the given zero-based positions.
// Nothing is removed when any position is out of range.
func (c *Collection) RemoveAt(positions ...int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	unique := make(map[int]struct{}, len(positions))
	for _, pos := range positions {
		if pos < 0 || pos >= len(c.entries) {
			return &IndexError{Position: pos, Len: len(c.entries)}
		}
		unique[pos] = struct{}{}
	}

	ordered := make([]int, 0, len(unique))
	for pos := range unique {
		ordered = append(ordered, pos)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(ordered)))

	for _, pos := range ordered {
		delete(c.seen, c.entries[pos])
		c.entries = append(c.entries[:pos], c.entries[pos+1:]...)
	}
	return nil
}

// List returns a snapshot of the entries in insertion order.
func (c *Collection) List() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.entries...)
}

// Len returns the number of entries.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
