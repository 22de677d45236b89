package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

const maxLineBytes = 1024 * 1024

// DefaultPoll is the follow-mode polling interval.
const DefaultPoll = 250 * time.Millisecond

// Options control Tail.
type Options struct {
	// Lines is how many trailing lines to print first; zero starts at the end.
	Lines     int
	Follow    bool
	Poll      time.Duration
	Component string
}

// Tail writes the last lines of path to emit and, when following, every line
// appended afterwards until ctx ends. A missing file yields no lines; when
// following, Tail waits for it to appear.
func Tail(ctx context.Context, path string, opts Options, emit func(string) error) error {
	match := ComponentFilter(opts.Component)
	send := func(lines []string) error {
		for _, line := range lines {
			if !match(line) {
				continue
			}
			if err := emit(line); err != nil {
				return err
			}
		}
		return nil
	}

	lines, offset, err := Last(path, opts.Lines)
	if err != nil {
		return err
	}
	if err := send(lines); err != nil {
		return err
	}
	if !opts.Follow {
		return nil
	}

	poll := opts.Poll
	if poll <= 0 {
		poll = DefaultPoll
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		lines, offset, err = ReadFrom(path, offset)
		if err != nil {
			return err
		}
		if err := send(lines); err != nil {
			return err
		}
	}
}

// Last returns up to limit trailing lines of path and the offset of its end.
func Last(path string, limit int) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, 0, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return nil, 0, fmt.Errorf("log path %q is a directory", path)
	}
	if limit <= 0 {
		return nil, info.Size(), nil
	}

	ring := make([]string, limit)
	count, next := 0, 0
	scanner := newScanner(file)
	for scanner.Scan() {
		ring[next] = scanner.Text()
		next = (next + 1) % limit
		if count < limit {
			count++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("read log file: %w", err)
	}
	offset, err := file.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, 0, fmt.Errorf("determine log offset: %w", err)
	}

	lines := make([]string, count)
	start := 0
	if count == limit {
		start = next
	}
	for i := 0; i < count; i++ {
		lines[i] = ring[(start+i)%limit]
	}
	return lines, offset, nil
}

// ReadFrom returns the complete lines written after offset and the offset
// following the last of them. A file shorter than offset was truncated and is
// read from the start.
func ReadFrom(path string, offset int64) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, offset, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, offset, fmt.Errorf("stat log file: %w", err)
	}
	if info.Size() < offset {
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, offset, fmt.Errorf("seek log file: %w", err)
	}

	reader := bufio.NewReaderSize(file, 64*1024)
	var lines []string
	for {
		line, err := reader.ReadString('\n')
		if errors.Is(err, io.EOF) {
			// A partial line stays unread until its newline arrives.
			return lines, offset, nil
		}
		if err != nil {
			return lines, offset, fmt.Errorf("read log file: %w", err)
		}
		offset += int64(len(line))
		lines = append(lines, strings.TrimRight(line, "\r\n"))
	}
}

// ComponentFilter matches lines logged by component in the console format
// ("LEVEL component: message") or the JSON format ("component":"name").
// An empty component matches every line.
func ComponentFilter(component string) func(string) bool {
	component = strings.TrimSpace(component)
	if component == "" {
		return func(string) bool { return true }
	}
	consoleMark := " " + component + ": "
	jsonMark := `"component":"` + component + `"`
	return func(line string) bool {
		return strings.Contains(line, consoleMark) || strings.Contains(line, jsonMark)
	}
}

func newScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return scanner
}
