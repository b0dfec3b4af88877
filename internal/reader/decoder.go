// Package reader is the tag-reader transport: a TCP listener that accepts
// the reader's connection and a decoder for its binary frames.
//
// Each received chunk is one frame. The chunk is rendered as upper-case hex;
// it must begin with the configured marker, and the tag ID is the fixed-width
// run of hex characters that follows it.
package reader

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const (
	// DefaultMarker is the frame prefix emitted by the reader for a tag event.
	DefaultMarker = "1100EE00"
	// DefaultTagHexLength is the tag ID width in hex characters (96-bit EPC).
	DefaultTagHexLength = 24
	// MaxChunk is the largest frame read from the connection at once.
	MaxChunk = 1024
)

var (
	// ErrNoMarker is returned for frames that do not start with the marker.
	ErrNoMarker = errors.New("frame does not start with marker")
	// ErrShortFrame is returned when the tag ID is truncated.
	ErrShortFrame = errors.New("frame too short for tag id")
	// ErrDisconnected is returned when the reader closes its connection.
	ErrDisconnected = errors.New("tag reader disconnected")
)

// Decoder extracts tag IDs from raw frames.
type Decoder struct {
	marker string
	tagLen int
}

// NewDecoder validates marker (hex) and tagLen.
func NewDecoder(marker string, tagLen int) (*Decoder, error) {
	marker = strings.ToUpper(strings.TrimSpace(marker))
	if marker == "" {
		return nil, fmt.Errorf("marker is required")
	}
	if _, err := hex.DecodeString(marker); err != nil {
		return nil, fmt.Errorf("marker %q is not hex: %w", marker, err)
	}
	if tagLen <= 0 {
		return nil, fmt.Errorf("tag length must be positive, got %d", tagLen)
	}
	return &Decoder{marker: marker, tagLen: tagLen}, nil
}

// Marker returns the upper-case hex marker.
func (d *Decoder) Marker() string { return d.marker }

// TagLength returns the tag ID width in hex characters.
func (d *Decoder) TagLength() int { return d.tagLen }

// Decode returns the tag ID carried by chunk.
func (d *Decoder) Decode(chunk []byte) (string, error) {
	encoded := strings.ToUpper(hex.EncodeToString(chunk))
	if !strings.HasPrefix(encoded, d.marker) {
		return "", fmt.Errorf("%w: %s", ErrNoMarker, preview(encoded))
	}
	end := len(d.marker) + d.tagLen
	if len(encoded) < end {
		return "", fmt.Errorf("%w: have %d hex chars, need %d", ErrShortFrame, len(encoded), end)
	}
	return encoded[len(d.marker):end], nil
}

// DecodeHex decodes a frame given as hex text. Whitespace is ignored.
func (d *Decoder) DecodeHex(s string) (string, error) {
	s = strings.Join(strings.Fields(s), "")
	raw, err := hex.DecodeString(s)
	if err != nil {
		return "", fmt.Errorf("invalid hex: %w", err)
	}
	return d.Decode(raw)
}

func preview(encoded string) string {
	if len(encoded) > 16 {
		return encoded[:16] + "..."
	}
	return encoded
}
