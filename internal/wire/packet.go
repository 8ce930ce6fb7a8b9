package wire

import (
	"encoding/binary"
	"sync"

	"code.hybscloud.com/atomix"
)

// Packet is a pooled frame buffer: the unified header region followed by
// up to MaxPayloadLen payload bytes in one contiguous allocation, so a
// stamped packet can be handed to a gathered send without copying.
//
// Packets are reference counted. A packet queued to several peers is
// retained once per enqueue and released once per send completion; the
// final release returns it to the pool. The pool is sync.Pool, so free
// lists are per-P and the hot path stays contention-free.
type Packet struct {
	buf []byte
	rd  int // payload read offset (absolute within buf)
	wr  int // payload write offset (absolute within buf)
	id  uint32

	refs atomix.Int32
}

var packetPool = sync.Pool{
	New: func() any {
		return &Packet{buf: make([]byte, HeaderSize+MaxPayloadLen)}
	},
}

// NewPacket returns a reset packet with a reference count of one.
func NewPacket() *Packet {
	p := packetPool.Get().(*Packet)
	p.Reset()
	p.refs.Store(1)
	return p
}

// Reset rewinds the payload cursors and clears the stamped id.
func (p *Packet) Reset() {
	p.rd = HeaderSize
	p.wr = HeaderSize
	p.id = 0
}

// Retain adds a reference. Call once per additional queue the packet
// enters.
func (p *Packet) Retain() {
	p.refs.Add(1)
}

// Release drops a reference and returns the packet to the pool when the
// count reaches zero. The caller must not touch the packet afterwards.
func (p *Packet) Release() {
	if p.refs.Add(-1) == 0 {
		packetPool.Put(p)
	}
}

// PayloadLen returns the number of written payload bytes.
func (p *Packet) PayloadLen() int { return p.wr - HeaderSize }

// Remaining returns the free payload capacity.
func (p *Packet) Remaining() int { return len(p.buf) - p.wr }

// Unread returns the number of payload bytes not yet consumed by reads.
func (p *Packet) Unread() int { return p.wr - p.rd }

// PacketID returns the stamped or parsed packet identifier.
func (p *Packet) PacketID() uint32 { return p.id }

// SetPacketID records the identifier without stamping the header.
func (p *Packet) SetPacketID(id uint32) { p.id = id }

// AppendBytes copies src into the payload.
func (p *Packet) AppendBytes(src []byte) error {
	if len(src) > p.Remaining() {
		return ErrNoSpace
	}
	copy(p.buf[p.wr:], src)
	p.wr += len(src)
	return nil
}

// AppendSpan extends the payload by n bytes and returns the span for the
// caller to fill, typically from a ring-buffer dequeue.
func (p *Packet) AppendSpan(n int) ([]byte, error) {
	if n > p.Remaining() {
		return nil, ErrNoSpace
	}
	span := p.buf[p.wr : p.wr+n]
	p.wr += n
	return span, nil
}

// AppendUint16 writes v little-endian.
func (p *Packet) AppendUint16(v uint16) error {
	if p.Remaining() < 2 {
		return ErrNoSpace
	}
	binary.LittleEndian.PutUint16(p.buf[p.wr:], v)
	p.wr += 2
	return nil
}

// AppendUint32 writes v little-endian.
func (p *Packet) AppendUint32(v uint32) error {
	if p.Remaining() < 4 {
		return ErrNoSpace
	}
	binary.LittleEndian.PutUint32(p.buf[p.wr:], v)
	p.wr += 4
	return nil
}

// AppendUint64 writes v little-endian.
func (p *Packet) AppendUint64(v uint64) error {
	if p.Remaining() < 8 {
		return ErrNoSpace
	}
	binary.LittleEndian.PutUint64(p.buf[p.wr:], v)
	p.wr += 8
	return nil
}

// ReadBytes copies len(dst) payload bytes into dst and advances the read
// cursor.
func (p *Packet) ReadBytes(dst []byte) error {
	if len(dst) > p.Unread() {
		return ErrShortBuffer
	}
	copy(dst, p.buf[p.rd:])
	p.rd += len(dst)
	return nil
}

// ReadUint16 consumes a little-endian uint16.
func (p *Packet) ReadUint16() (uint16, error) {
	if p.Unread() < 2 {
		return 0, ErrShortBuffer
	}
	v := binary.LittleEndian.Uint16(p.buf[p.rd:])
	p.rd += 2
	return v, nil
}

// ReadUint32 consumes a little-endian uint32.
func (p *Packet) ReadUint32() (uint32, error) {
	if p.Unread() < 4 {
		return 0, ErrShortBuffer
	}
	v := binary.LittleEndian.Uint32(p.buf[p.rd:])
	p.rd += 4
	return v, nil
}

// ReadUint64 consumes a little-endian uint64.
func (p *Packet) ReadUint64() (uint64, error) {
	if p.Unread() < 8 {
		return 0, ErrShortBuffer
	}
	v := binary.LittleEndian.Uint64(p.buf[p.rd:])
	p.rd += 8
	return v, nil
}

// Payload returns the written payload region. The slice aliases the
// packet; it is valid until the final Release.
func (p *Packet) Payload() []byte {
	return p.buf[HeaderSize:p.wr]
}

// Stamp writes the unified header for the current payload and records id.
// Call once, after the payload is complete and before the packet is sent.
func (p *Packet) Stamp(id uint32) {
	p.id = id
	PutHeader(p.buf, Header{Length: uint32(p.wr), PacketID: id})
}

// Frame returns the full wire frame (header plus payload). Only valid
// after Stamp.
func (p *Packet) Frame() []byte {
	return p.buf[:p.wr]
}
