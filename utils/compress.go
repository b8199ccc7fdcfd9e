package utils

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"io"
)

// MaybeDecompress transparently decompresses a response body. Gzip is
// detected by its magic bytes; otherwise a zlib and then a raw-deflate decode
// are attempted. Payloads matching none of these are returned as-is.
func MaybeDecompress(data []byte) []byte {
	if len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b {
		if out, err := gunzip(data); err == nil {
			return out
		}
	}

	if r, err := zlib.NewReader(bytes.NewReader(data)); err == nil {
		if out, err := io.ReadAll(r); err == nil {
			r.Close()
			return out
		}
		r.Close()
	}

	fr := flate.NewReader(bytes.NewReader(data))
	if out, err := io.ReadAll(fr); err == nil && len(out) > 0 {
		fr.Close()
		return out
	}
	fr.Close()

	return data
}

func gunzip(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
