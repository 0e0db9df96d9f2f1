// Package wire implements the primitive encodings used by packed archive headers:
// length-prefixed strings and little-endian 32-bit integers.
package wire

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
)

// MaxHeaderLen bounds the length of header strings read from untrusted input.
const MaxHeaderLen = 256

var (
	// ErrShort is returned when the input ends inside an encoded value.
	ErrShort = errors.New("wire: unexpected end of data")

	// ErrTooLong is returned when a length prefix exceeds the caller's limit.
	ErrTooLong = errors.New("wire: string too long")

	// ErrMalformed is returned when a length prefix is not a valid varint.
	ErrMalformed = errors.New("wire: malformed length prefix")
)

// StringSize returns the number of bytes WriteString emits for s.
func StringSize(s string) int {
	var tmp [binary.MaxVarintLen64]byte
	return binary.PutUvarint(tmp[:], uint64(len(s))) + len(s)
}

// WriteString writes s prefixed with its byte length as a 7-bit varint.
func WriteString(w io.Writer, s string) error {
	buf := make([]byte, 0, StringSize(s))
	buf = binary.AppendUvarint(buf, uint64(len(s)))
	buf = append(buf, s...)
	_, err := w.Write(buf)
	return err
}

// ReadString reads a length-prefixed string of at most maxLen bytes.
//
// The reader is consumed one byte at a time while decoding the prefix so no
// bytes past the string are read.
func ReadString(r io.Reader, maxLen int) (string, error) {
	br := &byteReader{r: r}
	n, err := binary.ReadUvarint(br)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return "", ErrShort
		}
		if br.err == nil {
			return "", ErrMalformed
		}
		return "", err
	}
	if n > uint64(maxLen) {
		return "", ErrTooLong
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return "", ErrShort
		}
		return "", err
	}
	return string(buf), nil
}

// WriteInt32 writes v as four little-endian bytes.
func WriteInt32(w io.Writer, v int32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(v)) //nolint:gosec // two's complement round trip
	_, err := w.Write(buf[:])
	return err
}

// ReadInt32 reads four little-endian bytes as a signed integer.
func ReadInt32(r io.Reader) (int32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, ErrShort
		}
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(buf[:])), nil //nolint:gosec // two's complement round trip
}

// CheckInt32 reports whether n fits in the int32 length field.
func CheckInt32(n int) bool {
	return n >= 0 && n <= math.MaxInt32
}

// byteReader adapts r to io.ByteReader and remembers the last read error,
// which separates I/O failures from an invalid prefix.
type byteReader struct {
	r   io.Reader
	err error
}

func (b *byteReader) ReadByte() (byte, error) {
	if br, ok := b.r.(io.ByteReader); ok {
		c, err := br.ReadByte()
		b.err = err
		return c, err
	}
	var one [1]byte
	for {
		n, err := b.r.Read(one[:])
		if n == 1 {
			return one[0], nil
		}
		if err != nil {
			b.err = err
			return 0, err
		}
	}
}
