package replay

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/ulikunitz/xz/lzma"

	"github.com/willibrandon/replaybot/pkg/playfield"
)

// seedFrameDelta marks the trailing frame that carries the RNG seed.
const seedFrameDelta = -12345

// Header is the metadata stored in front of the frames of an .osr file.
type Header struct {
	GameMode    uint8
	Version     int32
	BeatmapHash string
	Player      string
	ReplayHash  string
	Count300    uint16
	Count100    uint16
	Count50     uint16
	CountGeki   uint16
	CountKatu   uint16
	CountMiss   uint16
	Score       int32
	MaxCombo    uint16
	Perfect     bool
	Mods        int32
	LifeBar     string
	Timestamp   int64
	OnlineID    int64
	// Seed is the RNG seed from the trailing seed frame, if present.
	Seed int64
}

// DecodeOSR reads an osu! replay. Frame times are made absolute, frames with a
// negative delta and the seed frame are dropped, and the result is sorted by
// time.
func DecodeOSR(r io.Reader) (Header, []Frame, error) {
	var h Header
	d := &osrDecoder{r: bufio.NewReader(r)}

	h.GameMode = d.u8()
	h.Version = d.i32()
	h.BeatmapHash = d.str()
	h.Player = d.str()
	h.ReplayHash = d.str()
	h.Count300 = d.u16()
	h.Count100 = d.u16()
	h.Count50 = d.u16()
	h.CountGeki = d.u16()
	h.CountKatu = d.u16()
	h.CountMiss = d.u16()
	h.Score = d.i32()
	h.MaxCombo = d.u16()
	h.Perfect = d.u8() != 0
	h.Mods = d.i32()
	h.LifeBar = d.str()
	h.Timestamp = d.i64()
	n := d.i32()
	if d.err != nil {
		return h, nil, fmt.Errorf("%w: header: %w", ErrLoad, d.err)
	}
	if n < 0 {
		return h, nil, fmt.Errorf("%w: negative frame data length %d", ErrLoad, n)
	}

	compressed := make([]byte, n)
	if _, err := io.ReadFull(d.r, compressed); err != nil {
		return h, nil, fmt.Errorf("%w: frame data: %w", ErrLoad, err)
	}
	// the online id is absent in very old replays
	if id := d.i64(); d.err == nil {
		h.OnlineID = id
	}

	zr, err := lzma.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return h, nil, fmt.Errorf("%w: lzma: %w", ErrLoad, err)
	}
	raw, err := io.ReadAll(zr)
	if err != nil {
		return h, nil, fmt.Errorf("%w: lzma: %w", ErrLoad, err)
	}

	frames, seed, err := parseFrameData(string(raw))
	if err != nil {
		return h, nil, err
	}
	h.Seed = seed
	return h, frames, nil
}

func parseFrameData(s string) ([]Frame, int64, error) {
	var (
		frames []Frame
		seed   int64
		now    int64
	)
	for i, entry := range strings.Split(s, ",") {
		if strings.TrimSpace(entry) == "" {
			continue
		}
		fields := strings.Split(entry, "|")
		if len(fields) != 4 {
			return nil, 0, fmt.Errorf("%w: frame %d: want 4 fields, got %d", ErrLoad, i, len(fields))
		}
		delta, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: frame %d time: %w", ErrLoad, i, err)
		}
		if delta == seedFrameDelta {
			seed, _ = strconv.ParseInt(fields[3], 10, 64)
			continue
		}
		x, err := strconv.ParseFloat(fields[1], 32)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: frame %d x: %w", ErrLoad, i, err)
		}
		y, err := strconv.ParseFloat(fields[2], 32)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: frame %d y: %w", ErrLoad, i, err)
		}
		keys, err := strconv.ParseUint(fields[3], 10, 32)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: frame %d keys: %w", ErrLoad, i, err)
		}

		now += delta
		if delta < 0 {
			continue
		}
		frames = append(frames, Frame{
			Time:     int32(now),
			Position: playfield.Vec2{X: float32(x), Y: float32(y)},
			Keys:     Keys(keys) & (M1 | M2 | K1 | K2 | Smoke),
		})
	}
	sort.SliceStable(frames, func(i, j int) bool { return frames[i].Time < frames[j].Time })
	return frames, seed, nil
}

type osrDecoder struct {
	r   *bufio.Reader
	err error
}

func (d *osrDecoder) read(v any) {
	if d.err != nil {
		return
	}
	d.err = binary.Read(d.r, binary.LittleEndian, v)
}

func (d *osrDecoder) u8() uint8 {
	var v uint8
	d.read(&v)
	return v
}

func (d *osrDecoder) u16() uint16 {
	var v uint16
	d.read(&v)
	return v
}

func (d *osrDecoder) i32() int32 {
	var v int32
	d.read(&v)
	return v
}

func (d *osrDecoder) i64() int64 {
	var v int64
	d.read(&v)
	return v
}

// str reads a 0x00 (absent) or 0x0b + ULEB128 length + UTF-8 string.
func (d *osrDecoder) str() string {
	switch marker := d.u8(); {
	case d.err != nil:
		return ""
	case marker == 0x00:
		return ""
	case marker != 0x0b:
		d.err = fmt.Errorf("bad string marker %#02x", marker)
		return ""
	}
	n, err := binary.ReadUvarint(d.r)
	if err != nil {
		d.err = err
		return ""
	}
	if n > 1<<20 {
		d.err = errors.New("string too long")
		return ""
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		d.err = err
		return ""
	}
	return string(buf)
}

// EncodeOSR writes h and frames in the .osr layout. Frame times are stored as
// deltas; a seed frame is appended when h.Seed is set.
func EncodeOSR(w io.Writer, h Header, frames []Frame) error {
	var data strings.Builder
	var prev int32
	for _, f := range frames {
		fmt.Fprintf(&data, "%d|%s|%s|%d,",
			f.Time-prev,
			strconv.FormatFloat(float64(f.Position.X), 'f', -1, 32),
			strconv.FormatFloat(float64(f.Position.Y), 'f', -1, 32),
			uint8(f.Keys))
		prev = f.Time
	}
	if h.Seed != 0 {
		fmt.Fprintf(&data, "%d|0|0|%d,", seedFrameDelta, h.Seed)
	}

	var compressed bytes.Buffer
	zw, err := lzma.NewWriter(&compressed)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(zw, data.String()); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}

	e := &osrEncoder{w: bufio.NewWriter(w)}
	e.put(h.GameMode)
	e.put(h.Version)
	e.str(h.BeatmapHash)
	e.str(h.Player)
	e.str(h.ReplayHash)
	e.put(h.Count300)
	e.put(h.Count100)
	e.put(h.Count50)
	e.put(h.CountGeki)
	e.put(h.CountKatu)
	e.put(h.CountMiss)
	e.put(h.Score)
	e.put(h.MaxCombo)
	e.put(h.Perfect)
	e.put(h.Mods)
	e.str(h.LifeBar)
	e.put(h.Timestamp)
	e.put(int32(compressed.Len()))
	e.raw(compressed.Bytes())
	e.put(h.OnlineID)
	if e.err != nil {
		return e.err
	}
	return e.w.Flush()
}

type osrEncoder struct {
	w   *bufio.Writer
	err error
}

func (e *osrEncoder) put(v any) {
	if e.err != nil {
		return
	}
	e.err = binary.Write(e.w, binary.LittleEndian, v)
}

func (e *osrEncoder) raw(b []byte) {
	if e.err != nil {
		return
	}
	_, e.err = e.w.Write(b)
}

func (e *osrEncoder) str(s string) {
	if s == "" {
		e.put(uint8(0x00))
		return
	}
	e.put(uint8(0x0b))
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], uint64(len(s)))
	e.raw(buf[:n])
	e.raw([]byte(s))
}
