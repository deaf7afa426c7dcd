package replay

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/willibrandon/replaybot/pkg/recorder"
)

// File extensions understood by Load and Save.
const (
	ExtOSR        = ".osr"
	ExtFrameLog   = ".frames"
	ExtCompressed = ".zst"
)

// WriteFrameLog writes one JSON frame per line.
func WriteFrameLog(w io.Writer, frames []Frame, compression recorder.CompressionType) error {
	cw := recorder.NewCompressedWriter(w, compression)
	enc := json.NewEncoder(cw)
	for _, f := range frames {
		if err := enc.Encode(f); err != nil {
			return err
		}
	}
	return recorder.CloseCompressedWriter(cw, compression)
}

// ReadFrameLog reads frames written by WriteFrameLog.
func ReadFrameLog(r io.Reader, compression recorder.CompressionType) ([]Frame, error) {
	cr, err := recorder.NewCompressedReader(r, compression)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoad, err)
	}
	defer recorder.CloseCompressedReader(cr)

	var frames []Frame
	scanner := bufio.NewScanner(cr)
	line := 0
	for scanner.Scan() {
		line++
		if len(strings.TrimSpace(scanner.Text())) == 0 {
			continue
		}
		var f Frame
		if err := json.Unmarshal(scanner.Bytes(), &f); err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrLoad, line, err)
		}
		frames = append(frames, f)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoad, err)
	}
	return frames, nil
}

func compressionFor(path string) recorder.CompressionType {
	if strings.EqualFold(filepath.Ext(path), ExtCompressed) {
		return recorder.ZstdCompression
	}
	return recorder.NoCompression
}

// Load reads a recording from path, choosing the format by extension:
// .osr, .frames or .frames.zst.
func Load(path string) ([]Frame, error) {
	if strings.EqualFold(filepath.Ext(path), ExtOSR) {
		_, frames, err := LoadOSR(path)
		return frames, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoad, err)
	}
	defer f.Close()
	return ReadFrameLog(f, compressionFor(path))
}

// LoadOSR reads an .osr file with its header.
func LoadOSR(path string) (Header, []Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, nil, fmt.Errorf("%w: %w", ErrLoad, err)
	}
	defer f.Close()
	return DecodeOSR(f)
}

// LoadTimeline loads path and builds a Timeline from it.
func LoadTimeline(path string) (*Timeline, error) {
	frames, err := Load(path)
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("%w: %s has no frames", ErrLoad, path)
	}
	tl, err := NewTimeline(frames)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoad, err)
	}
	return tl, nil
}

// Save writes frames to path in the format its extension names.
func Save(path string, frames []Frame) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if strings.EqualFold(filepath.Ext(path), ExtOSR) {
		err = EncodeOSR(f, Header{}, frames)
	} else {
		err = WriteFrameLog(f, frames, compressionFor(path))
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}
