// Package tlg implements the from-scratch decoder for CodecA (spec.md
// §4.2), the engine's proprietary lossless image format. Only the TLG5
// variant is implemented; TLG6 is detected and rejected with NotImplemented
// per the open question in spec.md §9 rather than silently mis-decoded.
package tlg

import (
	"encoding/binary"

	"github.com/krkrport/mnemonic/pkg/errs"
	"github.com/krkrport/mnemonic/pkg/lzss"
)

const headerSize = 24

var (
	magicTLG5 = []byte("TLG5.0\x00raw\x1A")
	magicTLG6 = []byte("TLG6.0\x00raw\x1A")
)

// Image is a decoded pixel buffer: row-major, interleaved RGB or RGBA.
type Image struct {
	Width, Height int
	Channels      int // 3 (RGB) or 4 (RGBA)
	Pixels        []byte
}

// HasAlpha reports whether the image carries an alpha channel.
func (img *Image) HasAlpha() bool { return img.Channels == 4 }

// Decode parses a TLG5 CodecA image. It fails with InvalidMagic if the
// input doesn't start with a recognized TLG magic, NotImplemented if it is
// the TLG6 variant, InvalidHeader on a malformed or zero-sized header, and
// TruncatedInput if the body runs out before all blocks are read.
func Decode(input []byte) (*Image, error) {
	if len(input) < headerSize {
		return nil, errs.New(errs.InvalidMagic, "tlg", "input shorter than header")
	}

	switch {
	case matches(input, magicTLG5):
		// fall through to full decode below
	case matches(input, magicTLG6):
		return nil, errs.New(errs.NotImplementedKind, "tlg", "TLG6 variant is not implemented")
	default:
		return nil, errs.New(errs.InvalidMagic, "tlg", "unrecognized magic prefix")
	}

	colorDepth := input[11]
	channels := 4
	if colorDepth == 24 {
		channels = 3
	}
	width := int(binary.LittleEndian.Uint32(input[12:16]))
	height := int(binary.LittleEndian.Uint32(input[16:20]))
	blockHeight := int(binary.LittleEndian.Uint32(input[20:24]))

	if width <= 0 || height <= 0 || blockHeight <= 0 {
		return nil, errs.New(errs.InvalidHeader, "tlg", "zero or negative dimension")
	}

	numBlocks := (height + blockHeight - 1) / blockHeight

	planes := make([][]byte, channels)
	for c := range planes {
		planes[c] = make([]byte, width*height)
	}

	body := input[headerSize:]
	cursor := 0

	readByte := func() (byte, error) {
		if cursor >= len(body) {
			return 0, errs.New(errs.TruncatedInput, "tlg", "body ended before all blocks were read")
		}
		b := body[cursor]
		cursor++
		return b, nil
	}
	readU32 := func() (uint32, error) {
		if cursor+4 > len(body) {
			return 0, errs.New(errs.TruncatedInput, "tlg", "body ended before a block size could be read")
		}
		v := binary.LittleEndian.Uint32(body[cursor : cursor+4])
		cursor += 4
		return v, nil
	}

	for b := 0; b < numBlocks; b++ {
		startRow := b * blockHeight
		rowsInBlock := blockHeight
		if startRow+rowsInBlock > height {
			rowsInBlock = height - startRow
		}

		for c := 0; c < channels; c++ {
			mark, err := readByte()
			if err != nil {
				return nil, err
			}
			if mark != 0 {
				return nil, errs.New(errs.InvalidHeader, "tlg", "non-zero block mark is not supported")
			}

			size, err := readU32()
			if err != nil {
				return nil, err
			}
			if cursor+int(size) > len(body) {
				return nil, errs.New(errs.TruncatedInput, "tlg", "block payload shorter than declared size")
			}
			compressed := body[cursor : cursor+int(size)]
			cursor += int(size)

			decompressed, err := lzss.Decode(compressed, width*rowsInBlock)
			if err != nil {
				return nil, err
			}

			reverseDeltaBlock(planes[c], decompressed, width, startRow, rowsInBlock)
		}
	}

	return &Image{Width: width, Height: height, Channels: channels, Pixels: assemble(planes, width, height, channels)}, nil
}

func matches(input, magic []byte) bool {
	if len(input) < len(magic) {
		return false
	}
	for i, m := range magic {
		if input[i] != m {
			return false
		}
	}
	return true
}

// reverseDeltaBlock reverses the per-row delta coding for one block's worth
// of one channel's samples, writing the absolute values into plane at the
// rows [startRow, startRow+rowsInBlock).
func reverseDeltaBlock(plane, decompressed []byte, width, startRow, rowsInBlock int) {
	for r := 0; r < rowsInBlock; r++ {
		globalY := startRow + r
		decOffset := r * width
		planeOffset := globalY * width

		for x := 0; x < width; x++ {
			delta := decompressed[decOffset+x]
			var sample byte
			switch {
			case x == 0 && globalY == 0:
				sample = delta
			case x == 0:
				sample = plane[planeOffset-width] + delta
			default:
				sample = plane[planeOffset+x-1] + delta
			}
			plane[planeOffset+x] = sample
		}
	}
}

// assemble reorders BGR(A) planes into an interleaved RGB(A) pixel buffer.
func assemble(planes [][]byte, width, height, channels int) []byte {
	pixels := make([]byte, width*height*channels)
	for p := 0; p < width*height; p++ {
		base := p * channels
		pixels[base+0] = planes[2][p] // R
		pixels[base+1] = planes[1][p] // G
		pixels[base+2] = planes[0][p] // B
		if channels == 4 {
			pixels[base+3] = planes[3][p] // A
		}
	}
	return pixels
}
