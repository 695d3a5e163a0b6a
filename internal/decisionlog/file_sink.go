package decisionlog

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	filePrefix = "decisions-"
	fileSuffix = ".jsonl"
)

// FileSink appends entries as JSON lines to one file per UTC day.
type FileSink struct {
	dir string

	mu     sync.Mutex
	day    string
	file   *os.File
	closed bool
}

func NewFileSink(dir string) (*FileSink, error) {
	if dir == "" {
		return nil, fmt.Errorf("missing decision log dir")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FileSink{dir: dir}, nil
}

func (s *FileSink) Dir() string { return s.dir }

// FileName returns the name of the file holding entries for day.
func FileName(day string) string {
	return filePrefix + day + fileSuffix
}

func (s *FileSink) Append(_ context.Context, e Entry) error {
	line, err := json.Marshal(e)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := s.rotate(e.Day()); err != nil {
		return err
	}
	_, err = s.file.Write(line)
	return err
}

func (s *FileSink) rotate(day string) error {
	if s.file != nil && s.day == day {
		return nil
	}
	if s.file != nil {
		if err := s.file.Close(); err != nil {
			return err
		}
		s.file = nil
	}
	f, err := os.OpenFile(filepath.Join(s.dir, FileName(day)), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	s.file = f
	s.day = day
	return nil
}

// Recent reads day files newest first.
func (s *FileSink) Recent(_ context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	days, err := s.days()
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, limit)
	for i := len(days) - 1; i >= 0 && len(out) < limit; i-- {
		entries, err := readDay(filepath.Join(s.dir, FileName(days[i])))
		if err != nil {
			return nil, err
		}
		for j := len(entries) - 1; j >= 0 && len(out) < limit; j-- {
			out = append(out, entries[j])
		}
	}
	return out, nil
}

// Prune removes whole day files strictly older than the cutoff's day.
func (s *FileSink) Prune(_ context.Context, cutoff time.Time) (int64, error) {
	cutoffDay := cutoff.UTC().Format(DayLayout)

	s.mu.Lock()
	defer s.mu.Unlock()

	days, err := s.days()
	if err != nil {
		return 0, err
	}
	var pruned int64
	for _, day := range days {
		if day >= cutoffDay {
			break
		}
		path := filepath.Join(s.dir, FileName(day))
		n, err := countLines(path)
		if err != nil {
			return pruned, err
		}
		if day == s.day && s.file != nil {
			_ = s.file.Close()
			s.file = nil
			s.day = ""
		}
		if err := os.Remove(path); err != nil {
			return pruned, err
		}
		pruned += n
	}
	return pruned, nil
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// days lists the days present in the directory, oldest first.
func (s *FileSink) days() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		day := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix)
		if _, err := time.Parse(DayLayout, day); err != nil {
			continue
		}
		out = append(out, day)
	}
	sort.Strings(out)
	return out, nil
}

func readDay(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out []Entry
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		out = append(out, e)
	}
	return out, scanner.Err()
}

func countLines(path string) (int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return int64(bytes.Count(data, []byte{'\n'})), nil
}
