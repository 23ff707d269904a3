package stream

import (
	"errors"
	"io"
	"iter"
	"strings"
	"unicode/utf8"
)

const defaultReadSize = 4096

// Decoder turns a byte stream into text fragments. A multi-byte sequence cut
// by a read boundary is held back until the bytes completing it arrive; only
// a sequence still incomplete at end of stream is replaced with U+FFFD.
type Decoder struct {
	r       io.Reader
	buf     []byte
	pending []byte
	err     error
}

func NewDecoder(r io.Reader) *Decoder {
	return NewDecoderSize(r, defaultReadSize)
}

// NewDecoderSize creates a Decoder reading at most size bytes per read.
func NewDecoderSize(r io.Reader, size int) *Decoder {
	if size <= 0 {
		size = defaultReadSize
	}
	return &Decoder{r: r, buf: make([]byte, size)}
}

// Next returns the next non-empty fragment. It returns io.EOF once the stream
// is exhausted, or the reader's error after any buffered text is drained.
func (d *Decoder) Next() (string, error) {
	for d.err == nil {
		n, err := d.r.Read(d.buf)
		if err != nil {
			d.err = err
		}
		if n == 0 {
			continue
		}
		d.pending = append(d.pending, d.buf[:n]...)
		if cut := completePrefix(d.pending); cut > 0 {
			text := string(d.pending[:cut])
			d.pending = append(d.pending[:0], d.pending[cut:]...)
			return text, nil
		}
	}

	if len(d.pending) > 0 {
		text := strings.ToValidUTF8(string(d.pending), string(utf8.RuneError))
		d.pending = nil
		return text, nil
	}
	return "", d.err
}

// All yields fragments until the stream ends. A reader error other than
// io.EOF is yielded once as the final element.
func (d *Decoder) All() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for {
			text, err := d.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(text, err) || err != nil {
				return
			}
		}
	}
}

// completePrefix returns the length of the longest prefix of b that does not
// end inside an incomplete UTF-8 sequence.
func completePrefix(b []byte) int {
	end := len(b)
	for i := end - 1; i >= 0 && i >= end-utf8.UTFMax; i-- {
		if !utf8.RuneStart(b[i]) {
			continue
		}
		if utf8.FullRune(b[i:end]) {
			return end
		}
		return i
	}
	return end
}
