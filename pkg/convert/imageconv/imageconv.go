// Package imageconv implements the image converter (spec.md §4.7): decode
// CodecA (.tlg) via pkg/tlg, or standard .bmp/.jpg/.jpeg/.png via the host
// image libraries, and re-encode to a standard Android-friendly format
// (PNG or WebP, chosen by the destination path's extension).
package imageconv

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/HugoSmits86/nativewebp"
	xbmp "golang.org/x/image/bmp"

	"github.com/krkrport/mnemonic/pkg/convert"
	"github.com/krkrport/mnemonic/pkg/errs"
	"github.com/krkrport/mnemonic/pkg/tlg"
)

var sourceExtensions = []string{".tlg", ".bmp", ".jpg", ".jpeg", ".png"}

// Converter decodes image assets and re-encodes them to the format named by
// the destination path's extension (.png or .webp).
type Converter struct{}

func New() *Converter { return &Converter{} }

func (c *Converter) SupportedExtensions() []string { return sourceExtensions }

func (c *Converter) CanConvert(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, s := range sourceExtensions {
		if ext == s {
			return true
		}
	}
	return false
}

func (c *Converter) Convert(src, dst string) (convert.Result, error) {
	raw, err := os.ReadFile(src)
	if err != nil {
		return convert.Result{}, err
	}
	before := int64(len(raw))

	img, err := decodeSource(src, raw)
	if err != nil {
		return convert.Result{}, err
	}

	var buf bytes.Buffer
	switch strings.ToLower(filepath.Ext(dst)) {
	case ".webp":
		if err := nativewebp.Encode(&buf, img, nil); err != nil {
			return convert.Result{}, errs.New(errs.ConversionFailed, src, "webp encode failed: "+err.Error())
		}
	case ".png", "":
		if err := png.Encode(&buf, img); err != nil {
			return convert.Result{}, errs.New(errs.ConversionFailed, src, "png encode failed: "+err.Error())
		}
	default:
		return convert.Result{}, errs.New(errs.UnsupportedInput, dst, "unsupported image target extension")
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return convert.Result{}, err
	}
	if err := os.WriteFile(dst, buf.Bytes(), 0o644); err != nil {
		return convert.Result{}, err
	}

	return convert.Result{
		SourcePath:  src,
		DestPath:    dst,
		Status:      convert.StatusSuccess,
		BytesBefore: before,
		BytesAfter:  int64(buf.Len()),
	}, nil
}

// decodeSource dispatches on extension: .tlg goes through the bespoke
// CodecA decoder, everything else through a standard library or
// golang.org/x/image decoder.
func decodeSource(path string, raw []byte) (image.Image, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tlg":
		decoded, err := tlg.Decode(raw)
		if err != nil {
			return nil, err
		}
		return toImage(decoded), nil
	case ".bmp":
		img, err := xbmp.Decode(bytes.NewReader(raw))
		if err != nil {
			return nil, errs.New(errs.InvalidHeader, path, "bmp decode failed: "+err.Error())
		}
		return img, nil
	case ".jpg", ".jpeg":
		img, err := jpeg.Decode(bytes.NewReader(raw))
		if err != nil {
			return nil, errs.New(errs.InvalidHeader, path, "jpeg decode failed: "+err.Error())
		}
		return img, nil
	case ".png":
		img, err := png.Decode(bytes.NewReader(raw))
		if err != nil {
			return nil, errs.New(errs.InvalidHeader, path, "png decode failed: "+err.Error())
		}
		return img, nil
	default:
		return nil, errs.New(errs.UnsupportedInput, path, "unrecognized image source extension")
	}
}

// toImage adapts a decoded pkg/tlg.Image into the standard library's
// image.Image so it can feed either encoder.
func toImage(decoded *tlg.Image) image.Image {
	bounds := image.Rect(0, 0, decoded.Width, decoded.Height)
	if decoded.HasAlpha() {
		img := image.NewNRGBA(bounds)
		for y := 0; y < decoded.Height; y++ {
			for x := 0; x < decoded.Width; x++ {
				i := (y*decoded.Width + x) * 4
				o := img.PixOffset(x, y)
				img.Pix[o+0] = decoded.Pixels[i+0] // R
				img.Pix[o+1] = decoded.Pixels[i+1] // G
				img.Pix[o+2] = decoded.Pixels[i+2] // B
				img.Pix[o+3] = decoded.Pixels[i+3] // A
			}
		}
		return img
	}

	img := image.NewRGBA(bounds)
	for y := 0; y < decoded.Height; y++ {
		for x := 0; x < decoded.Width; x++ {
			i := (y*decoded.Width + x) * 3
			o := img.PixOffset(x, y)
			img.Pix[o+0] = decoded.Pixels[i+0] // R
			img.Pix[o+1] = decoded.Pixels[i+1] // G
			img.Pix[o+2] = decoded.Pixels[i+2] // B
			img.Pix[o+3] = 0xFF
		}
	}
	return img
}
