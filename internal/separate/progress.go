package separate

import (
	"bufio"
	"bytes"
	"io"
	"regexp"
	"strconv"
)

// percentPattern matches a tqdm bar line, optionally prefixed by its
// description: "Processing:  40%|####      | 4/10".
var percentPattern = regexp.MustCompile(`^(?:[^%|]*:)?\s*(\d{1,3})%\|`)

// parsePercent extracts the percentage of a progress bar line. Other lines
// that merely mention a percentage are not progress.
func parsePercent(line string) (int, bool) {
	match := percentPattern.FindStringSubmatch(line)
	if match == nil {
		return 0, false
	}
	percent, err := strconv.Atoi(match[1])
	if err != nil {
		return 0, false
	}
	return percent, true
}

// progressTracker drops consecutive repeats of the same percentage.
// Progress bars redraw the same value many times per second.
type progressTracker struct {
	last int
	seen bool
}

// observe reports whether percent differs from the previous value.
func (t *progressTracker) observe(percent int) bool {
	if t.seen && percent == t.last {
		return false
	}
	t.last = percent
	t.seen = true
	return true
}

// splitLines is a bufio.SplitFunc that ends a token on \n or \r.
func splitLines(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// scanLines calls onLine for every line of r and drains r when scanning stops early,
// so the writing process never blocks on a full pipe.
func scanLines(r io.Reader, onLine func(string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	scanner.Split(splitLines)
	for scanner.Scan() {
		onLine(scanner.Text())
	}
	err := scanner.Err()
	if err != nil {
		_, _ = io.Copy(io.Discard, r)
	}
	return err
}
