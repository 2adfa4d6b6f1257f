package engine

import (
	"bytes"
	"testing"
	"testing/iotest"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pattern returns n deterministic, non-repeating-looking bytes.
func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*31 + i/251)
	}
	return b
}

func writeFile(t *testing.T, fs afero.Fs, path string, data []byte) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, path, data, 0o644))
}

func TestDetectResumeOffset_ZeroByteSource(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/src", nil)
	writeFile(t, fs, "/dst", []byte("stale"))

	h := &recordingHandle{}
	offset, err := DetectResumeOffset(fs, "/src", "/dst", DefaultBufferSize, h)
	require.NoError(t, err)
	assert.Equal(t, int64(0), offset)
	assert.Equal(t, int64(0), h.length())
}

func TestDetectResumeOffset_MatchingPrefix(t *testing.T) {
	const size = 10_000_000
	const prefix = 4_000_000

	fs := afero.NewMemMapFs()
	src := pattern(size)
	dst := append([]byte(nil), src...)
	dst[prefix] ^= 0xFF
	writeFile(t, fs, "/src", src)
	writeFile(t, fs, "/dst", dst)

	h := &recordingHandle{}
	offset, err := DetectResumeOffset(fs, "/src", "/dst", DefaultBufferSize, h)
	require.NoError(t, err)
	assert.Equal(t, int64(prefix), offset)
	assert.Equal(t, int64(size), h.length())
	assert.Equal(t, int64(prefix), h.position())
}

func TestDetectResumeOffset_ShorterDestination(t *testing.T) {
	fs := afero.NewMemMapFs()
	src := pattern(5000)
	writeFile(t, fs, "/src", src)
	writeFile(t, fs, "/dst", src[:1234])

	offset, err := DetectResumeOffset(fs, "/src", "/dst", 64, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1234), offset)
}

func TestDetectResumeOffset_LongerDestination(t *testing.T) {
	fs := afero.NewMemMapFs()
	src := pattern(300)
	writeFile(t, fs, "/src", src)
	writeFile(t, fs, "/dst", append(append([]byte(nil), src...), "tail"...))

	offset, err := DetectResumeOffset(fs, "/src", "/dst", 64, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(300), offset)
}

func TestDetectResumeOffset_StopsAtFirstDivergence(t *testing.T) {
	fs := afero.NewMemMapFs()
	// Bytes after the mismatch agree again; they must not count.
	writeFile(t, fs, "/src", []byte("aaaaXaaaaaaaa"))
	writeFile(t, fs, "/dst", []byte("aaaaYaaaaaaaa"))

	offset, err := DetectResumeOffset(fs, "/src", "/dst", 4, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(4), offset)
}

func TestDetectResumeOffset_MissingDestination(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/src", []byte("data"))

	_, err := DetectResumeOffset(fs, "/src", "/nope", 16, nil)
	require.Error(t, err)
}

func TestComparePrefix_ShortReads(t *testing.T) {
	a := iotest.OneByteReader(bytes.NewReader([]byte("hello world")))
	b := iotest.HalfReader(bytes.NewReader([]byte("hello wOrld")))

	h := &recordingHandle{}
	n, err := comparePrefix(a, b, 11, make([]byte, 4), make([]byte, 4), h)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.Equal(t, int64(7), h.position())
}

func TestComparePrefix_NeverExceedsLimit(t *testing.T) {
	cases := []struct {
		name string
		a, b []byte
		want int64
	}{
		{"identical", pattern(100), pattern(100), 100},
		{"first byte differs", []byte("xbc"), []byte("abc"), 0},
		{"last byte differs", []byte("abcd"), []byte("abce"), 3},
		{"chunk boundary", []byte("0123456789"), []byte("01234567X9"), 8},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			limit := int64(min(len(tc.a), len(tc.b)))
			n, err := comparePrefix(
				iotest.HalfReader(bytes.NewReader(tc.a)),
				bytes.NewReader(tc.b),
				limit, make([]byte, 4), make([]byte, 4), &recordingHandle{})
			require.NoError(t, err)
			assert.Equal(t, tc.want, n)
			assert.LessOrEqual(t, n, limit)
			assert.Equal(t, tc.a[:n], tc.b[:n])
		})
	}
}
