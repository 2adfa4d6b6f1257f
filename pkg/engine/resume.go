package engine

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/afero"

	"GusMove/pkg/progress"
)

// DetectResumeOffset returns how many leading bytes of dst already equal
// src. Both files are read in chunks of bufSize/2 and the scan stops at the
// first differing byte, so the result is the exact common prefix length and
// never exceeds min(size(src), size(dst)).
//
// h receives the comparison progress: length is the smaller file size and
// the position advances by bytes compared.
func DetectResumeOffset(fs afero.Fs, src, dst string, bufSize int, h progress.Handle) (int64, error) {
	if h == nil {
		h = progress.Nop().NewJob(0)
	}
	chunk := bufSize / 2
	if chunk < 1 {
		chunk = 1
	}

	srcFile, err := fs.Open(src)
	if err != nil {
		return 0, fmt.Errorf("failed to open source: %w", err)
	}
	defer srcFile.Close()
	srcInfo, err := srcFile.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat source: %w", err)
	}

	dstFile, err := fs.Open(dst)
	if err != nil {
		return 0, fmt.Errorf("failed to open dest: %w", err)
	}
	defer dstFile.Close()
	dstInfo, err := dstFile.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat dest: %w", err)
	}

	minSize := min(srcInfo.Size(), dstInfo.Size())
	h.SetLength(minSize)
	h.SetPosition(0)
	if minSize == 0 {
		return 0, nil
	}

	srcBuf := bufPool.get(chunk)
	defer bufPool.put(srcBuf)
	dstBuf := bufPool.get(chunk)
	defer bufPool.put(dstBuf)

	return comparePrefix(srcFile, dstFile, minSize, srcBuf, dstBuf, h)
}

// comparePrefix reads a and b side by side until limit bytes matched or the
// first mismatch. Reads may come back short; the shorter side is topped up
// with io.ReadFull before comparing so both buffers cover the same range.
func comparePrefix(a, b io.Reader, limit int64, aBuf, bBuf []byte, h progress.Handle) (int64, error) {
	var matched int64
	for matched < limit {
		want := min(int64(len(aBuf)), limit-matched)

		na, err := a.Read(aBuf[:want])
		if err != nil && err != io.EOF {
			return matched, fmt.Errorf("failed to read source: %w", err)
		}
		nb, err := b.Read(bBuf[:want])
		if err != nil && err != io.EOF {
			return matched, fmt.Errorf("failed to read dest: %w", err)
		}
		if na == 0 && nb == 0 {
			return matched, nil
		}

		switch {
		case na < nb:
			if _, err := io.ReadFull(a, aBuf[na:nb]); err != nil {
				if isEOF(err) {
					return matched, nil
				}
				return matched, fmt.Errorf("failed to read source: %w", err)
			}
		case nb < na:
			if _, err := io.ReadFull(b, bBuf[nb:na]); err != nil {
				if isEOF(err) {
					return matched, nil
				}
				return matched, fmt.Errorf("failed to read dest: %w", err)
			}
		}
		n := max(na, nb)

		if !bytes.Equal(aBuf[:n], bBuf[:n]) {
			i := firstDiff(aBuf[:n], bBuf[:n])
			h.Advance(int64(i))
			return matched + int64(i), nil
		}
		matched += int64(n)
		h.Advance(int64(n))
	}
	return matched, nil
}

func firstDiff(a, b []byte) int {
	for i := range a {
		if a[i] != b[i] {
			return i
		}
	}
	return len(a)
}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
