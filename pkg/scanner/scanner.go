// Package scanner locates embedded Archive containers inside an executable
// image by magic-byte search (spec.md §4.4), since a Windows EXE wrapper
// stores one or more Archive streams appended or interleaved with its PE
// sections rather than referencing them by a directory entry.
package scanner

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/krkrport/mnemonic/pkg/errs"
)

var archiveMagic = []byte("XP3\r\n \n\x1A\x8BG\x01")

// Occurrence is one located Archive stream: its absolute offset in the
// scanned file and an estimated byte length (the gap to the next
// occurrence, or to end-of-file for the last one).
type Occurrence struct {
	Offset        int64
	EstimatedSize int64
}

// Scan searches data for every occurrence of the Archive magic and returns
// them in ascending offset order with estimated sizes filled in. No
// occurrences is a valid, non-error result.
func Scan(data []byte) []Occurrence {
	var offsets []int64
	for search := data; ; {
		idx := bytes.Index(search, archiveMagic)
		if idx < 0 {
			break
		}
		absolute := int64(len(data) - len(search) + idx)
		offsets = append(offsets, absolute)
		search = search[idx+1:]
	}

	occurrences := make([]Occurrence, len(offsets))
	for i, off := range offsets {
		var size int64
		if i+1 < len(offsets) {
			size = offsets[i+1] - off
		} else {
			size = int64(len(data)) - off
		}
		occurrences[i] = Occurrence{Offset: off, EstimatedSize: size}
	}
	return occurrences
}

// ScanFile reads path and scans its full content.
func ScanFile(path string) ([]Occurrence, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.New(errs.InputNotFound, path, err.Error())
	}
	return Scan(data), nil
}

// ExtractAll writes one file per occurrence under dest, named
// "<stem>_<i>.xp3", containing the verbatim byte slice for that occurrence.
func ExtractAll(path, dest string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.New(errs.InputNotFound, path, err.Error())
	}
	occurrences := Scan(data)

	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return nil, err
	}

	written := make([]string, 0, len(occurrences))
	for i, occ := range occurrences {
		end := occ.Offset + occ.EstimatedSize
		if end > int64(len(data)) {
			end = int64(len(data))
		}
		outPath := filepath.Join(dest, fmt.Sprintf("%s_%d.xp3", stem, i))
		if err := os.WriteFile(outPath, data[occ.Offset:end], 0o644); err != nil {
			return nil, err
		}
		written = append(written, outPath)
	}
	return written, nil
}
