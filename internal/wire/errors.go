package wire

import "errors"

var (
	// ErrFrameTooSmall reports a length field below the header size.
	ErrFrameTooSmall = errors.New("wire: frame length below header size")

	// ErrFrameTooLarge reports a length field above MaxFrameSize.
	ErrFrameTooLarge = errors.New("wire: frame length exceeds protocol maximum")

	// ErrPayloadOverflow reports a payload that does not fit a pooled packet.
	ErrPayloadOverflow = errors.New("wire: payload exceeds packet capacity")

	// ErrShortBuffer reports a read past the packet's written payload.
	ErrShortBuffer = errors.New("wire: read past end of payload")

	// ErrNoSpace reports an append past the packet's capacity.
	ErrNoSpace = errors.New("wire: append past packet capacity")

	// ErrRingFull reports a commit or enqueue that does not fit the ring.
	ErrRingFull = errors.New("wire: ring buffer full")

	// ErrRingShort reports a peek or dequeue larger than the buffered bytes.
	ErrRingShort = errors.New("wire: ring buffer underflow")
)
