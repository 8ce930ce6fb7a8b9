// Package wire implements the framing layer: the unified frame header,
// pooled reference-counted payload buffers, and the per-session receive
// ring. Everything on the wire is little-endian.
//
// A frame is an 8-byte header followed by payload:
//
//	offset 0: uint32 length    (total frame bytes, header included)
//	offset 4: uint32 packet id
//	offset 8: payload          (length - 8 bytes)
package wire

import "encoding/binary"

const (
	// HeaderSize is the fixed unified header length in bytes.
	HeaderSize = 8

	// MinFrameSize is the smallest legal frame: a bare header.
	MinFrameSize = HeaderSize

	// MaxFrameSize is the protocol sanity bound on the length field.
	MaxFrameSize = 4 << 20

	// MaxPayloadLen is the payload capacity of a pooled packet buffer.
	MaxPayloadLen = 8000

	// MaxSendMsg is the most packets a single gathered send may carry.
	MaxSendMsg = 100
)

// Header is the decoded unified frame header.
type Header struct {
	Length   uint32
	PacketID uint32
}

// ParseHeader decodes the header from the first HeaderSize bytes of src.
func ParseHeader(src []byte) Header {
	return Header{
		Length:   binary.LittleEndian.Uint32(src[0:4]),
		PacketID: binary.LittleEndian.Uint32(src[4:8]),
	}
}

// PutHeader encodes h into the first HeaderSize bytes of dst.
func PutHeader(dst []byte, h Header) {
	binary.LittleEndian.PutUint32(dst[0:4], h.Length)
	binary.LittleEndian.PutUint32(dst[4:8], h.PacketID)
}

// Validate checks the length field against the protocol bounds and the
// pooled payload capacity. A violation is a protocol error: the session
// that produced it must be disconnected.
func (h Header) Validate() error {
	switch {
	case h.Length < MinFrameSize:
		return ErrFrameTooSmall
	case h.Length > MaxFrameSize:
		return ErrFrameTooLarge
	case h.Length-HeaderSize > MaxPayloadLen:
		return ErrPayloadOverflow
	}
	return nil
}
