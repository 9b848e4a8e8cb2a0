// Package lzss implements the 4096-byte sliding-window LZSS variant used to
// compress CodecA block planes (spec.md §4.1). It has no third-party
// equivalent: this is a bespoke, engine-specific bitstream, not a
// general-purpose compression format compress/flate or klauspost/compress
// could drive - the window-indexed match encoding and its literal/match bit
// order are exact, fixed behavior this package reproduces byte for byte.
package lzss

import (
	"github.com/krkrport/mnemonic/pkg/errs"
)

const (
	windowSize = 4096
	minMatch   = 3
	maxMatch   = 18
)

// Decode expands input to exactly outputSize bytes. It returns a
// TruncatedInput error if the bitstream runs out before outputSize bytes
// have been produced.
func Decode(input []byte, outputSize int) ([]byte, error) {
	if outputSize == 0 {
		return []byte{}, nil
	}

	out := make([]byte, 0, outputSize)
	window := make([]byte, windowSize)
	writePos := 0

	r := &reader{buf: input}

	for len(out) < outputSize {
		flags, ok := r.readByte()
		if !ok {
			return nil, truncated()
		}

		for bit := 0; bit < 8 && len(out) < outputSize; bit++ {
			isMatch := flags&(1<<uint(bit)) != 0

			if !isMatch {
				b, ok := r.readByte()
				if !ok {
					return nil, truncated()
				}
				out = append(out, b)
				window[writePos] = b
				writePos = (writePos + 1) % windowSize
				continue
			}

			lo, ok := r.readByte()
			if !ok {
				return nil, truncated()
			}
			hi, ok := r.readByte()
			if !ok {
				return nil, truncated()
			}

			offset := int(lo) | (int(hi&0x0F) << 8)
			length := int((hi>>4)&0x0F) + minMatch
			if length == maxMatch {
				ext, ok := r.readByte()
				if !ok {
					return nil, truncated()
				}
				length = maxMatch + int(ext)
			}

			for i := 0; i < length && len(out) < outputSize; i++ {
				b := window[offset]
				out = append(out, b)
				window[writePos] = b
				offset = (offset + 1) % windowSize
				writePos = (writePos + 1) % windowSize
			}
		}
	}

	return out, nil
}

func truncated() error {
	return errs.New(errs.TruncatedInput, "lzss", "bitstream ended before output_size was reached")
}

// reader is a tiny cursor over the compressed bytes; kept separate from
// Decode's loop so the bit-group/flag-byte bookkeeping above reads linearly.
type reader struct {
	buf []byte
	pos int
}

func (r *reader) readByte() (byte, bool) {
	if r.pos >= len(r.buf) {
		return 0, false
	}
	b := r.buf[r.pos]
	r.pos++
	return b, true
}
