package recorder

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressedWriter(t *testing.T) {
	var buf bytes.Buffer
	writer := NewCompressedWriter(&buf, ZstdCompression)

	testData := []byte("This is test data for the compressed writer.")
	n, err := writer.Write(testData)
	require.NoError(t, err)
	assert.Equal(t, len(testData), n)
	require.NoError(t, CloseCompressedWriter(writer, ZstdCompression))
	assert.NotEqual(t, testData, buf.Bytes())

	reader, err := NewCompressedReader(bytes.NewReader(buf.Bytes()), ZstdCompression)
	require.NoError(t, err)
	defer CloseCompressedReader(reader)

	decompressed, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, testData, decompressed)
}

func TestConcatenatedFrames(t *testing.T) {
	var buf bytes.Buffer
	for _, part := range []string{"first,", "second"} {
		w := NewCompressedWriter(&buf, ZstdCompression)
		_, err := io.WriteString(w, part)
		require.NoError(t, err)
		require.NoError(t, CloseCompressedWriter(w, ZstdCompression))
	}

	reader, err := NewCompressedReader(&buf, ZstdCompression)
	require.NoError(t, err)
	defer CloseCompressedReader(reader)

	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, "first,second", string(data))
}

func TestNoCompressionPassesThrough(t *testing.T) {
	var buf bytes.Buffer
	w := NewCompressedWriter(&buf, NoCompression)
	assert.Same(t, &buf, w)
	require.NoError(t, CloseCompressedWriter(w, NoCompression))

	r, err := NewCompressedReader(&buf, NoCompression)
	require.NoError(t, err)
	assert.Same(t, &buf, r)
}

func TestParseCompression(t *testing.T) {
	for in, want := range map[string]CompressionType{
		"":     ZstdCompression,
		"zstd": ZstdCompression,
		"ZSTD": ZstdCompression,
		"none": NoCompression,
		"off":  NoCompression,
	} {
		got, err := ParseCompression(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseCompression("gzip")
	assert.Error(t, err)
}
