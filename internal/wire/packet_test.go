package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeaderValidate(t *testing.T) {
	cases := []struct {
		name   string
		length uint32
		want   error
	}{
		{"bare header", HeaderSize, nil},
		{"normal", 16, nil},
		{"max payload", HeaderSize + MaxPayloadLen, nil},
		{"below header", 7, ErrFrameTooSmall},
		{"zero", 0, ErrFrameTooSmall},
		{"over protocol max", MaxFrameSize + 1, ErrFrameTooLarge},
		{"oversize scenario", 5_000_000, ErrFrameTooLarge},
		{"over packet capacity", HeaderSize + MaxPayloadLen + 1, ErrPayloadOverflow},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := Header{Length: tc.length, PacketID: 1}
			require.ErrorIs(t, h.Validate(), tc.want)
		})
	}
}

func TestHeaderCodec(t *testing.T) {
	buf := make([]byte, HeaderSize)
	PutHeader(buf, Header{Length: 16, PacketID: 1})

	// Bit-exact little-endian layout.
	require.Equal(t, []byte{16, 0, 0, 0, 1, 0, 0, 0}, buf)
	require.Equal(t, Header{Length: 16, PacketID: 1}, ParseHeader(buf))
}

func TestPacketAppendReadLaws(t *testing.T) {
	p := NewPacket()
	defer p.Release()

	payload := []byte("hello!!!")
	require.NoError(t, p.AppendBytes(payload))
	require.NoError(t, p.AppendUint32(0xdeadbeef))
	require.NoError(t, p.AppendUint64(42))
	require.Equal(t, len(payload)+12, p.PayloadLen())

	got := make([]byte, len(payload))
	require.NoError(t, p.ReadBytes(got))
	require.True(t, bytes.Equal(got, payload))

	u32, err := p.ReadUint32()
	require.NoError(t, err)
	require.Equal(t, uint32(0xdeadbeef), u32)

	u64, err := p.ReadUint64()
	require.NoError(t, err)
	require.Equal(t, uint64(42), u64)

	require.Equal(t, 0, p.Unread())
	_, err = p.ReadUint16()
	require.ErrorIs(t, err, ErrShortBuffer)
}

func TestPacketCapacity(t *testing.T) {
	p := NewPacket()
	defer p.Release()

	require.Equal(t, MaxPayloadLen, p.Remaining())
	_, err := p.AppendSpan(MaxPayloadLen)
	require.NoError(t, err)
	require.ErrorIs(t, p.AppendBytes([]byte{1}), ErrNoSpace)
}

func TestPacketStampFrame(t *testing.T) {
	p := NewPacket()
	defer p.Release()

	require.NoError(t, p.AppendBytes([]byte("hello!!!")))
	p.Stamp(1)

	frame := p.Frame()
	require.Equal(t, 16, len(frame))
	h := ParseHeader(frame)
	require.Equal(t, uint32(16), h.Length)
	require.Equal(t, uint32(1), h.PacketID)
	require.Equal(t, uint32(1), p.PacketID())
	require.Equal(t, []byte("hello!!!"), frame[HeaderSize:])
}

func TestPacketRefCount(t *testing.T) {
	p := NewPacket()
	require.NoError(t, p.AppendBytes([]byte("shared")))

	// Queued to two peers: one reference each, plus the producer's.
	p.Retain()
	p.Retain()

	p.Release() // producer
	p.Release() // first completion
	// Still one reference outstanding; the payload must be intact.
	require.Equal(t, []byte("shared"), p.Payload())
	p.Release() // final completion returns it to the pool
}
