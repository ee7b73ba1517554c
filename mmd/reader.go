package mmd

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

type textEncoding int

const (
	encodingShiftJIS textEncoding = iota
	encodingUTF16LE
	encodingUTF8
)

// indexKind selects the signedness of 1 and 2 byte indices.
type indexKind int

const (
	indexSigned indexKind = iota
	indexVertex
)

// index width 3 is accepted as an alias of 4.
const indexWidthSentinel4 = 3

// reads larger than this are grown while reading.
const readChunk = 1 << 16

// binaryReader is a forward-only little-endian reader.
// The first failure is kept in err; later reads return zero values.
type binaryReader struct {
	r   io.Reader
	off int64
	err error
	enc textEncoding

	record    string
	index     int
	fieldName string

	buf [8]byte
}

func newBinaryReader(r io.Reader) *binaryReader {
	return &binaryReader{r: r, index: -1}
}

// at sets the record context reported with errors.
func (p *binaryReader) at(record string, index int) {
	p.record = record
	p.index = index
	p.fieldName = ""
}

// field names the field read next. It lasts until the next field or at call.
func (p *binaryReader) field(name string) {
	p.fieldName = name
}

func (p *binaryReader) fail(off int64, field string, err error) {
	if p.err == nil {
		if field == "" {
			field = p.fieldName
		}
		p.err = &DecodeError{Offset: off, Record: p.record, Index: p.index, Field: field, Err: err}
	}
}

func ioErr(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return ErrUnexpectedEOD
	}
	return err
}

func (p *binaryReader) fill(b []byte, field string) bool {
	if p.err != nil {
		return false
	}
	if _, err := io.ReadFull(p.r, b); err != nil {
		p.fail(p.off, field, ioErr(err))
		return false
	}
	p.off += int64(len(b))
	return true
}

func (p *binaryReader) readBytes(n int, field string) []byte {
	if p.err != nil {
		return nil
	}
	if n < 0 {
		p.fail(p.off, field, fmt.Errorf("%w: %d", ErrInvalidLength, n))
		return nil
	}
	if n <= readChunk {
		b := make([]byte, n)
		if !p.fill(b, field) {
			return nil
		}
		return b
	}
	var buf bytes.Buffer
	if _, err := io.CopyN(&buf, p.r, int64(n)); err != nil {
		p.fail(p.off, field, ioErr(err))
		return nil
	}
	p.off += int64(n)
	return buf.Bytes()
}

func (p *binaryReader) skip(n int) {
	if p.err != nil {
		return
	}
	if n < 0 {
		p.fail(p.off, "", fmt.Errorf("%w: %d", ErrInvalidLength, n))
		return
	}
	if _, err := io.CopyN(io.Discard, p.r, int64(n)); err != nil {
		p.fail(p.off, "", ioErr(err))
		return
	}
	p.off += int64(n)
}

// skipUint16 discards n 16-bit words.
func (p *binaryReader) skipUint16(n int) {
	p.skip(n * 2)
}

func (p *binaryReader) readUint8() uint8 {
	if !p.fill(p.buf[:1], "") {
		return 0
	}
	return p.buf[0]
}

func (p *binaryReader) readInt8() int8 {
	return int8(p.readUint8())
}

func (p *binaryReader) readUint16() uint16 {
	if !p.fill(p.buf[:2], "") {
		return 0
	}
	return binary.LittleEndian.Uint16(p.buf[:2])
}

func (p *binaryReader) readInt16() int16 {
	return int16(p.readUint16())
}

func (p *binaryReader) readUint32() uint32 {
	if !p.fill(p.buf[:4], "") {
		return 0
	}
	return binary.LittleEndian.Uint32(p.buf[:4])
}

func (p *binaryReader) readInt32() int32 {
	return int32(p.readUint32())
}

// readInt reads a signed 32-bit value as int.
func (p *binaryReader) readInt() int {
	return int(p.readInt32())
}

// readCount reads an unsigned 32-bit element count.
func (p *binaryReader) readCount() int {
	p.field("count")
	n := int(p.readUint32())
	p.field("")
	return n
}

// tryReadCount is readCount for optional trailing sections: a stream that ends
// exactly before the count reports ok=false without an error.
func (p *binaryReader) tryReadCount() (int, bool) {
	if p.err != nil {
		return 0, false
	}
	n, err := io.ReadFull(p.r, p.buf[:4])
	if err == io.EOF && n == 0 {
		return 0, false
	}
	if err != nil {
		p.fail(p.off, "count", ioErr(err))
		return 0, false
	}
	p.off += 4
	return int(binary.LittleEndian.Uint32(p.buf[:4])), true
}

func (p *binaryReader) readFloat() float32 {
	if !p.fill(p.buf[:4], "") {
		return 0
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(p.buf[:4]))
}

func (p *binaryReader) readFloats(n int) []float32 {
	v := make([]float32, 0, capHint(n))
	for i := 0; i < n && p.err == nil; i++ {
		v = append(v, p.readFloat())
	}
	return v
}

func (p *binaryReader) readVector2() Vector2 {
	return Vector2{X: p.readFloat(), Y: p.readFloat()}
}

func (p *binaryReader) readVector3() Vector3 {
	return Vector3{X: p.readFloat(), Y: p.readFloat(), Z: p.readFloat()}
}

func (p *binaryReader) readVector4() Vector4 {
	return Vector4{X: p.readFloat(), Y: p.readFloat(), Z: p.readFloat(), W: p.readFloat()}
}

func (p *binaryReader) readQuaternion() Quaternion {
	return Quaternion{X: p.readFloat(), Y: p.readFloat(), Z: p.readFloat(), W: p.readFloat()}
}

func (p *binaryReader) readColor3() Color3 {
	return Color3{R: p.readFloat(), G: p.readFloat(), B: p.readFloat()}
}

func (p *binaryReader) readColor4() Color4 {
	return Color4{R: p.readFloat(), G: p.readFloat(), B: p.readFloat(), A: p.readFloat()}
}

// readIndex reads an index of the given width. Widths 1 and 2 are unsigned for
// vertex indices and signed otherwise; width 4 is always signed.
func (p *binaryReader) readIndex(width byte, kind indexKind) int {
	if p.err != nil {
		return -1
	}
	switch width {
	case 1:
		if kind == indexVertex {
			return int(p.readUint8())
		}
		return int(p.readInt8())
	case 2:
		if kind == indexVertex {
			return int(p.readUint16())
		}
		return int(p.readInt16())
	case indexWidthSentinel4, 4:
		return int(p.readInt32())
	}
	p.fail(p.off, "index", fmt.Errorf("%w: %d", ErrInvalidIndexWidth, width))
	return -1
}

// readFixedString reads an n byte Shift_JIS field cut at the first NUL.
func (p *binaryReader) readFixedString(n int) string {
	b := p.readBytes(n, "")
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return decodeText(japanese.ShiftJIS, b)
}

// readText reads a length-prefixed string in the active encoding.
func (p *binaryReader) readText() string {
	n := p.readInt()
	b := p.readBytes(n, "")
	if p.err != nil {
		return ""
	}
	switch p.enc {
	case encodingUTF16LE:
		return decodeText(unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM), b)
	case encodingUTF8:
		return string(b)
	}
	return decodeText(japanese.ShiftJIS, b)
}

// setEncoding switches the encoding used by readText.
func (p *binaryReader) setEncoding(enc textEncoding) {
	p.enc = enc
}

func decodeText(enc encoding.Encoding, b []byte) string {
	if len(b) == 0 {
		return ""
	}
	s, _, err := transform.Bytes(enc.NewDecoder(), b)
	if err != nil {
		return string(b)
	}
	return string(s)
}

// capHint bounds slice preallocation by a count read from the stream.
func capHint(n int) int {
	if n > 4096 {
		return 4096
	}
	if n < 0 {
		return 0
	}
	return n
}
