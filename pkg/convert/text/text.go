// Package text implements the text transcoder converter (spec.md §4.7):
// detects a source encoding heuristically, normalizes its name, and
// transcodes to a configured target encoding.
package text

import (
	"bytes"
	"os"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/encoding/unicode"

	"github.com/krkrport/mnemonic/pkg/convert"
	"github.com/krkrport/mnemonic/pkg/errs"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Name is a normalized target/detected encoding name.
type Name string

const (
	ShiftJIS Name = "shift_jis"
	EUCJP    Name = "euc-jp"
	UTF8     Name = "utf-8"
	GB2312   Name = "gb2312"
	Big5     Name = "big5"
	CP949    Name = "cp949"
)

var aliases = map[string]Name{
	"shift_jis": ShiftJIS, "sjis": ShiftJIS, "shiftjis": ShiftJIS,
	"euc_jp": EUCJP, "eucjp": EUCJP, "euc-jp": EUCJP,
	"utf8": UTF8, "utf-8": UTF8, "utf-8-sig": UTF8, "ascii": UTF8,
	"gb2312": GB2312, "big5": Big5, "cp949": CP949,
}

// Normalize maps a raw encoding name to its canonical Name per the alias
// table in spec.md §4.7.
func Normalize(raw string) Name {
	if n, ok := aliases[raw]; ok {
		return n
	}
	return Name(raw)
}

func codec(n Name) (encoding.Encoding, bool) {
	switch n {
	case ShiftJIS:
		return japanese.ShiftJIS, true
	case EUCJP:
		return japanese.EUCJP, true
	case UTF8:
		return unicode.UTF8, true
	case GB2312:
		return simplifiedchinese.GB18030, true
	case Big5:
		return traditionalchinese.Big5, true
	case CP949:
		return korean.EUCKR, true
	default:
		return nil, false
	}
}

// Converter transcodes text assets to Target, a member of
// {shift_jis, euc-jp, utf-8, gb2312, big5, cp949}.
type Converter struct {
	Target Name
}

func New(target Name) *Converter { return &Converter{Target: target} }

func (c *Converter) SupportedExtensions() []string { return []string{".ks", ".tjs"} }

func (c *Converter) CanConvert(path string) bool {
	return IsTextFile(path)
}

// IsTextFile returns false when the file contains any NUL byte or cannot be
// read; an empty file is treated as text.
func IsTextFile(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return !bytes.ContainsRune(data, 0)
}

func (c *Converter) Convert(src, dst string) (convert.Result, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		return convert.Result{}, err
	}
	before := int64(len(data))

	detected := Detect(data)
	hasBOM := bytes.HasPrefix(data, utf8BOM)

	if detected == c.Target && !hasBOM {
		return convert.Result{SourcePath: src, Status: convert.StatusSkipped, Message: "already " + string(c.Target), BytesBefore: before, BytesAfter: before}, nil
	}

	body := bytes.TrimPrefix(data, utf8BOM)

	srcCodec, ok := codec(detected)
	if !ok {
		return convert.Result{}, errs.New(errs.UnsupportedInput, src, "unrecognized source encoding "+string(detected))
	}
	decoded, err := srcCodec.NewDecoder().Bytes(body)
	if err != nil {
		return convert.Result{}, errs.New(errs.UnsupportedInput, src, "decode failed: "+err.Error())
	}

	dstCodec, ok := codec(c.Target)
	if !ok {
		return convert.Result{}, errs.New(errs.UnsupportedInput, src, "unrecognized target encoding "+string(c.Target))
	}
	encoded, err := dstCodec.NewEncoder().Bytes(decoded)
	if err != nil {
		return convert.Result{}, errs.New(errs.UnsupportedInput, src, "encode failed: "+err.Error())
	}

	if err := os.WriteFile(dst, encoded, 0o644); err != nil {
		return convert.Result{}, err
	}

	return convert.Result{
		SourcePath:  src,
		DestPath:    dst,
		Status:      convert.StatusSuccess,
		BytesBefore: before,
		BytesAfter:  int64(len(encoded)),
	}, nil
}

// Detect applies a cheap heuristic: a UTF-8 BOM or already-valid UTF-8
// content is reported as utf-8; otherwise a lead-byte count picks between
// shift_jis and euc-jp only, with ties going to shift_jis (the most common
// source encoding for this domain's assets).
func Detect(data []byte) Name {
	if bytes.HasPrefix(data, utf8BOM) {
		return UTF8
	}
	if utf8.Valid(data) {
		return UTF8
	}

	sjisLeadRuns, eucjpLeadRuns := 0, 0
	for i := 0; i < len(data)-1; i++ {
		b := data[i]
		switch {
		case (b >= 0x81 && b <= 0x9F) || (b >= 0xE0 && b <= 0xFC):
			sjisLeadRuns++
		case b == 0x8E || (b >= 0xA1 && b <= 0xFE):
			eucjpLeadRuns++
		}
	}
	if sjisLeadRuns >= eucjpLeadRuns {
		return ShiftJIS
	}
	return EUCJP
}
