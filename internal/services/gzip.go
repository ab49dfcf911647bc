package services

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
)

// gzip header flags
const (
	flagHCRC    = 0x02
	flagExtra   = 0x04
	flagName    = 0x08
	flagComment = 0x10
)

const (
	gzipHeaderLen  = 10
	gzipTrailerLen = 8
)

var errTruncatedGzip = errors.New("truncated gzip stream")

// IsGzip reports whether data starts with the gzip magic bytes.
func IsGzip(data []byte) bool {
	return len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b
}

// Gunzip decodes a single gzip member.
//
// The header is skipped by hand, including the optional extra, name, comment and
// header CRC fields, and the 8 byte trailer is excluded from the DEFLATE input.
func Gunzip(data []byte) ([]byte, error) {
	if !IsGzip(data) || len(data) < gzipHeaderLen {
		return nil, errTruncatedGzip
	}

	flags := data[3]
	offset := gzipHeaderLen

	if flags&flagExtra != 0 {
		if len(data) < offset+2 {
			return nil, errTruncatedGzip
		}
		extraLen := int(data[offset]) | int(data[offset+1])<<8
		offset += 2 + extraLen
	}
	if flags&flagName != 0 {
		offset = skipCString(data, offset)
	}
	if flags&flagComment != 0 {
		offset = skipCString(data, offset)
	}
	if flags&flagHCRC != 0 {
		offset += 2
	}

	if len(data) < offset+gzipTrailerLen {
		return nil, errTruncatedGzip
	}

	r := flate.NewReader(bytes.NewReader(data[offset : len(data)-gzipTrailerLen]))
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("inflate: %w", err)
	}
	return out, nil
}

// skipCString returns the offset just past the NUL terminating the string at offset.
func skipCString(data []byte, offset int) int {
	for offset < len(data) && data[offset] != 0 {
		offset++
	}
	return offset + 1
}
