package protocol

// Encoder is a binary encoder that appends data to an internal buffer.
// It is designed for efficient encoding without allocations in the hot path.
type Encoder struct {
	buf []byte
}

// NewEncoderWithCap creates a new encoder with the specified initial capacity.
func NewEncoderWithCap(cap int) *Encoder {
	return &Encoder{
		buf: make([]byte, 0, cap),
	}
}

// Bytes returns the encoded bytes. The returned slice is valid until
// the next Write call.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// WriteByte appends a single byte.
// Note: This intentionally doesn't return error (unlike io.ByteWriter)
// because our buffer is unbounded and can always append.
func (e *Encoder) WriteByte(b byte) {
	e.buf = append(e.buf, b)
}

// WriteBytes appends raw bytes.
func (e *Encoder) WriteBytes(b []byte) {
	e.buf = append(e.buf, b...)
}

// WriteUint16 appends a uint16 in big-endian byte order.
func (e *Encoder) WriteUint16(v uint16) {
	e.buf = append(e.buf, byte(v>>8), byte(v))
}

// WriteUint64 appends a uint64 in big-endian byte order.
func (e *Encoder) WriteUint64(v uint64) {
	e.buf = append(e.buf,
		byte(v>>56), byte(v>>48), byte(v>>40), byte(v>>32),
		byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// WriteLength appends the 7-bit, 16-bit or 64-bit length header for a
// payload of n bytes, OR-ing maskBit into the second header byte.
func (e *Encoder) WriteLength(n int, maskBit byte) {
	switch {
	case n <= MaxShortLength:
		e.WriteByte(maskBit | byte(n))
	case n < 1<<16:
		e.WriteByte(maskBit | lengthMarker16)
		e.WriteUint16(uint16(n))
	default:
		e.WriteByte(maskBit | lengthMarker64)
		e.WriteUint64(uint64(n))
	}
}
