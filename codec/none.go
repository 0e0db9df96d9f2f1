package codec

import "io"

// None stores bytes unchanged.
type None struct{}

// NewNone returns the identity codec.
func NewNone() None { return None{} }

// Name implements Codec.
func (None) Name() string { return "none" }

// NewWriter implements Codec.
func (None) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return nopWriteCloser{w}, nil
}

// NewReader implements Codec.
func (None) NewReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(r), nil
}
