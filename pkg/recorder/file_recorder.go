package recorder

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// FileRecorder appends events to a newline-delimited JSON journal with
// optional compression
type FileRecorder struct {
	file            *os.File
	writer          io.Writer
	bufWriter       *bufio.Writer
	path            string
	compressionType CompressionType
	eventCount      int
	flushEvery      int
}

// FileRecorderOptions contains options for creating a file recorder
type FileRecorderOptions struct {
	CompressionType CompressionType
	// FlushEvery flushes the compressor after this many events; zero flushes
	// only on Close
	FlushEvery int
}

// DefaultFileRecorderOptions returns default options for file recorder
func DefaultFileRecorderOptions() FileRecorderOptions {
	return FileRecorderOptions{
		CompressionType: DefaultCompression,
		FlushEvery:      256,
	}
}

// NewFileRecorder creates a new file recorder with default options
func NewFileRecorder(path string) (*FileRecorder, error) {
	return NewFileRecorderWithOptions(path, DefaultFileRecorderOptions())
}

// NewFileRecorderWithOptions creates a new file recorder with the given options
func NewFileRecorderWithOptions(path string, options FileRecorderOptions) (*FileRecorder, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}

	bufWriter := bufio.NewWriter(f)
	return &FileRecorder{
		file:            f,
		writer:          NewCompressedWriter(bufWriter, options.CompressionType),
		bufWriter:       bufWriter,
		path:            path,
		compressionType: options.CompressionType,
		flushEvery:      options.FlushEvery,
	}, nil
}

// RecordEvent writes an event as one JSON line
func (fr *FileRecorder) RecordEvent(e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if _, err := fr.writer.Write(data); err != nil {
		return err
	}

	fr.eventCount++
	if fr.flushEvery > 0 && fr.eventCount%fr.flushEvery == 0 {
		return fr.flush()
	}
	return nil
}

func (fr *FileRecorder) flush() error {
	if err := FlushCompressedWriter(fr.writer); err != nil {
		return err
	}
	return fr.bufWriter.Flush()
}

// Count returns the number of events written by this recorder
func (fr *FileRecorder) Count() int {
	return fr.eventCount
}

// Path returns the journal path
func (fr *FileRecorder) Path() string {
	return fr.path
}

// GetEvents reads back every event in the journal file
func (fr *FileRecorder) GetEvents() []Event {
	// end the current compressed frame so the file decodes to the last event
	CloseCompressedWriter(fr.writer, fr.compressionType)
	fr.bufWriter.Flush()
	defer func() {
		fr.writer = NewCompressedWriter(fr.bufWriter, fr.compressionType)
	}()

	events, err := ReadJournal(fr.path, fr.compressionType)
	if err != nil {
		return nil
	}
	return events
}

// Clear truncates the journal
func (fr *FileRecorder) Clear() {
	CloseCompressedWriter(fr.writer, fr.compressionType)
	fr.bufWriter.Flush()
	fr.file.Close()
	os.Truncate(fr.path, 0)

	f, err := os.OpenFile(fr.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err == nil {
		fr.file = f
		fr.bufWriter = bufio.NewWriter(f)
		fr.writer = NewCompressedWriter(fr.bufWriter, fr.compressionType)
		fr.eventCount = 0
	}
}

// Close flushes and closes the file
func (fr *FileRecorder) Close() error {
	if err := CloseCompressedWriter(fr.writer, fr.compressionType); err != nil {
		return err
	}
	if err := fr.bufWriter.Flush(); err != nil {
		return err
	}
	return fr.file.Close()
}

// ReadJournal decodes a journal file written by FileRecorder
func ReadJournal(path string, compressionType CompressionType) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader, err := NewCompressedReader(f, compressionType)
	if err != nil {
		return nil, err
	}
	defer CloseCompressedReader(reader)

	var events []Event
	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		var event Event
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			return events, fmt.Errorf("decoding journal event %d: %w", len(events), err)
		}
		events = append(events, event)
	}
	return events, scanner.Err()
}
