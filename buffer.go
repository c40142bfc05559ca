package goreact

import "encoding/binary"

// Buffer is the append-only byte buffer of spec §3, used as both the
// input and output buffer inside a Connection. It is an owned []byte, not
// a bytes.Buffer: bytes.Buffer's Truncate(n) keeps the first n bytes and
// discards the rest, which is the inverse of ErasePrefix — the teacher's
// own event_loop.go write() calls sendBuffer.Truncate(n) where it means
// to discard the n bytes it just wrote, a latent corruption bug this type
// does not reproduce (see DESIGN.md).
type Buffer struct {
	buf []byte
}

// Append copies p onto the end of the buffer.
func (b *Buffer) Append(p []byte) {
	b.buf = append(b.buf, p...)
}

// FrameHeader encodes n, the length of an about-to-be-sent payload, as the
// 4-byte host-endian header spec's framing uses (the Open Question in
// spec §9, resolved as host-endian to match the source's raw memory copy
// of a truncated size_t). Exported so Connection.doSend can writev the
// header and payload straight to the socket without buffering them first.
func FrameHeader(n int) [4]byte {
	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(n))
	return hdr
}

// AppendFramed prepends a 4-byte length header to p and appends header+
// payload.
func (b *Buffer) AppendFramed(p []byte) {
	hdr := FrameHeader(len(p))
	b.buf = append(b.buf, hdr[:]...)
	b.buf = append(b.buf, p...)
}

// ErasePrefix discards the first n bytes, preserving the rest in place.
// Appending x and then erasing len(x) bytes is a no-op (spec §8 law).
func (b *Buffer) ErasePrefix(n int) {
	if n <= 0 {
		return
	}
	if n >= len(b.buf) {
		b.buf = b.buf[:0]
		return
	}
	copy(b.buf, b.buf[n:])
	b.buf = b.buf[:len(b.buf)-n]
}

// Clear empties the buffer without releasing its backing array.
func (b *Buffer) Clear() { b.buf = b.buf[:0] }

// Len returns the number of buffered bytes.
func (b *Buffer) Len() int { return len(b.buf) }

// Bytes returns the buffered bytes. The returned slice aliases the
// buffer's backing array and is invalidated by the next Append/ErasePrefix.
func (b *Buffer) Bytes() []byte { return b.buf }

// PeekUint32 decodes a 4-byte host-endian length header at the front of
// the buffer, mirroring the framing the bundled reference client (out of
// scope here, spec §1) would need to parse AppendFramed's output.
func PeekUint32(p []byte) uint32 {
	return binary.LittleEndian.Uint32(p)
}
