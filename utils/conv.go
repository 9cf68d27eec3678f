package utils

import (
	"bytes"
	"unicode/utf8"

	"github.com/maxportland/metalman/config"

	"golang.org/x/text/transform"
)

// BytesToString decodes a possibly nil-terminated byte string. Valid utf8
// passes through untouched, anything else goes through the configured
// legacy charmap (see config.SetEncoding).
func BytesToString(bs []byte) string {
	n := bytes.IndexByte(bs, 0)
	if n < 0 {
		n = len(bs)
	}
	bs = bs[:n]

	if utf8.Valid(bs) {
		return string(bs)
	}

	s, _, err := transform.Bytes(config.GetEncoding().NewDecoder(), bs)
	if err != nil {
		return string(bs)
	}
	return string(s)
}

func BytesStringLength(bs []byte) int {
	if l := bytes.IndexByte(bs, 0); l == -1 {
		return len(bs)
	} else {
		return l
	}
}
