package source

import "bytes"

// nsStringMarker is the typedstream byte sequence that precedes a plain
// UTF-8 string payload inside a macOS Messages `attributedBody` BLOB.
var nsStringMarker = []byte("NSString\x01\x94\x84\x01+")

// DecodeAttributedBody extracts the plain-text body from a typedstream
// BLOB. The marker is followed by a length prefix in one of three forms:
// a single byte (< 0x81), or 0x81 followed by one length byte, or 0x82
// followed by a two-byte big-endian length. Returns ("", false) if the
// marker is absent or the blob is empty.
func DecodeAttributedBody(blob []byte) (string, bool) {
	if len(blob) == 0 {
		return "", false
	}
	idx := bytes.Index(blob, nsStringMarker)
	if idx == -1 {
		return "", false
	}
	pos := idx + len(nsStringMarker)
	if pos >= len(blob) {
		return "", false
	}

	var length int
	switch {
	case blob[pos] == 0x81:
		if pos+1 >= len(blob) {
			return "", false
		}
		length = int(blob[pos+1])
		pos += 2
	case blob[pos] == 0x82:
		if pos+2 >= len(blob) {
			return "", false
		}
		length = int(blob[pos+1])<<8 | int(blob[pos+2])
		pos += 3
	default:
		length = int(blob[pos])
		pos++
	}

	if length <= 0 || pos+length > len(blob) {
		return "", false
	}
	return string(blob[pos : pos+length]), true
}
