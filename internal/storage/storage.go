// Package storage writes JSON lines to a daily log file, compressing the
// previous day's file on rotation.
package storage

import (
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const dateLayout = "2006-01-02"

// ErrStopped is returned by writes after Stop
var ErrStopped = errors.New("storage stopped")

// Storage handles writing records to daily files
type Storage struct {
	outputDir string
	prefix    string
	file      *os.File
	date      string
	stopped   bool
	mu        sync.Mutex
	stopChan  chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
	now       func() time.Time
	log       zerolog.Logger
}

// Option configures a Storage
type Option func(*Storage)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Storage) { s.now = now }
}

// WithLogger sets the logger used by the rotation timer
func WithLogger(log zerolog.Logger) Option {
	return func(s *Storage) { s.log = log }
}

// New creates a new Storage writing <prefix>_<date>.jsonl files into outputDir
func New(outputDir, prefix string, opts ...Option) *Storage {
	s := &Storage{
		outputDir: outputDir,
		prefix:    prefix,
		stopChan:  make(chan struct{}),
		now:       time.Now,
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens today's file and starts the rotation timer
func (s *Storage) Start() error {
	if err := os.MkdirAll(s.outputDir, 0o750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	s.mu.Lock()
	err := s.rotateFile()
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.wg.Add(1)
	go s.rotationTimer()

	return nil
}

// Stop closes the current file and stops the rotation timer
func (s *Storage) Stop() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	if s.file != nil {
		err := s.file.Close()
		s.file = nil
		return err
	}
	return nil
}

// WriteMessage writes one line to the current file, rotating first when the
// UTC date has changed since the file was opened.
func (s *Storage) WriteMessage(message []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}
	if s.file == nil {
		if err := s.rotateFile(); err != nil {
			return err
		}
	} else if s.date != s.today() {
		if err := s.rotateAndCompressLocked(); err != nil {
			return err
		}
	}

	// Check if message already ends with newline
	if len(message) > 0 && message[len(message)-1] == '\n' {
		_, err := s.file.Write(message)
		return err
	}

	_, err := s.file.Write(append(message, '\n'))
	return err
}

// WriteJSON marshals v and writes it as one line
func (s *Storage) WriteJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	return s.WriteMessage(data)
}

// CurrentPath returns the path of the open file, or "" when none is open
func (s *Storage) CurrentPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return ""
	}
	return s.path(s.date)
}

func (s *Storage) today() string {
	return s.now().UTC().Format(dateLayout)
}

func (s *Storage) path(date string) string {
	return filepath.Join(s.outputDir, fmt.Sprintf("%s_%s.jsonl", s.prefix, date))
}

// rotationTimer handles daily rotation at midnight UTC
func (s *Storage) rotationTimer() {
	defer s.wg.Done()

	for {
		now := s.now().UTC()
		nextMidnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
		timer := time.NewTimer(nextMidnight.Sub(now))

		select {
		case <-timer.C:
			if err := s.rotateAndCompress(); err != nil {
				s.log.Error().Err(err).Str("prefix", s.prefix).Msg("Error during rotation")
			}
		case <-s.stopChan:
			timer.Stop()
			return
		}
	}
}

// rotateAndCompress closes the current file, compresses it if it belongs to
// an earlier day and opens today's file.
func (s *Storage) rotateAndCompress() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rotateAndCompressLocked()
}

func (s *Storage) rotateAndCompressLocked() error {
	prevDate := s.date
	if s.file != nil {
		if err := s.file.Close(); err != nil {
			s.log.Warn().Err(err).Msg("Failed to close log file")
		}
		s.file = nil
	}

	if prevDate != "" && prevDate != s.today() {
		prevPath := s.path(prevDate)
		if _, err := os.Stat(prevPath); err == nil {
			if err := s.compressFile(prevPath); err != nil {
				return fmt.Errorf("failed to compress file: %w", err)
			}
		}
	}

	return s.rotateFile()
}

// validatePath rejects paths outside the output directory
func (s *Storage) validatePath(path string) error {
	base, err := filepath.Abs(s.outputDir)
	if err != nil {
		return fmt.Errorf("failed to resolve output directory: %w", err)
	}
	target, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	if target != base && !strings.HasPrefix(target, base+string(filepath.Separator)) {
		return fmt.Errorf("path %s is outside output directory", path)
	}
	return nil
}

// compressFile gzips a file next to itself and removes the original
func (s *Storage) compressFile(path string) error {
	if err := s.validatePath(path); err != nil {
		return err
	}

	//nolint:gosec // path is validated against the output directory
	source, err := os.Open(path)
	if err != nil {
		return err
	}
	defer source.Close()

	//nolint:gosec // path is validated against the output directory
	target, err := os.Create(path + ".gz")
	if err != nil {
		return err
	}
	defer target.Close()

	gzipWriter := gzip.NewWriter(target)
	if _, err := io.Copy(gzipWriter, source); err != nil {
		gzipWriter.Close()
		return fmt.Errorf("failed to copy contents: %w", err)
	}

	// Close the gzip writer to ensure all data is written
	if err := gzipWriter.Close(); err != nil {
		return err
	}

	return os.Remove(path)
}

// rotateFile opens the file for today's date. Caller holds s.mu.
func (s *Storage) rotateFile() error {
	date := s.today()
	path := s.path(date)
	if err := s.validatePath(path); err != nil {
		return err
	}

	//nolint:gosec // path is validated against the output directory
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	s.file = file
	s.date = date
	return nil
}
