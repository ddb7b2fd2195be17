package source

import "testing"

func buildBlob(prefix []byte, lengthBytes []byte, payload string) []byte {
	b := append([]byte{}, prefix...)
	b = append(b, nsStringMarker...)
	b = append(b, lengthBytes...)
	b = append(b, []byte(payload)...)
	return b
}

func TestDecodeAttributedBodyShortLength(t *testing.T) {
	payload := "hello there"
	blob := buildBlob(nil, []byte{0x7F}, payload)
	// 0x7F < 0x81: direct length byte only valid if it equals len(payload);
	// use a length matching the payload for this fixture.
	blob = buildBlob(nil, []byte{byte(len(payload))}, payload)

	got, ok := DecodeAttributedBody(blob)
	if !ok || got != payload {
		t.Fatalf("got (%q, %v), want (%q, true)", got, ok, payload)
	}
}

func TestDecodeAttributedBody0x81Prefix(t *testing.T) {
	payload := "a message long enough to need the 0x81 prefix form right here"
	blob := buildBlob(nil, []byte{0x81, byte(len(payload))}, payload)

	got, ok := DecodeAttributedBody(blob)
	if !ok || got != payload {
		t.Fatalf("got (%q, %v), want (%q, true)", got, ok, payload)
	}
}

func TestDecodeAttributedBody0x82Prefix(t *testing.T) {
	payload := "payload"
	n := len(payload)
	blob := buildBlob(nil, []byte{0x82, byte(n >> 8), byte(n & 0xFF)}, payload)

	got, ok := DecodeAttributedBody(blob)
	if !ok || got != payload {
		t.Fatalf("got (%q, %v), want (%q, true)", got, ok, payload)
	}
}

func TestDecodeAttributedBodyEmptyBlob(t *testing.T) {
	if _, ok := DecodeAttributedBody(nil); ok {
		t.Fatal("expected empty blob to report not-found")
	}
}

func TestDecodeAttributedBodyNoMarker(t *testing.T) {
	if _, ok := DecodeAttributedBody([]byte("no marker here")); ok {
		t.Fatal("expected missing marker to report not-found")
	}
}
