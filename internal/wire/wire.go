// Package wire encodes and decodes the newline-delimited UTF-8 text
// frames exchanged with a Trimmer-compatible server.
//
// No escaping is performed anywhere in the protocol: frame content must
// never contain the delimiter.  CheckFrame reports such content so
// callers can reject it before it reaches the socket.
package wire

import (
	"bufio"
	"errors"
	"io"
	"strings"
	"unicode/utf8"
)

// Delimiter terminates every frame on the wire.
const Delimiter = '\n'

// ErrEmbeddedDelimiter is returned by CheckFrame for text that would
// be split into several frames.
var ErrEmbeddedDelimiter = errors.New("frame contains a newline")

// Encode converts text to its byte representation.
func Encode(text string) []byte {
	return []byte(text)
}

// Decode converts bytes to text.  Invalid UTF-8 sequences are replaced
// with U+FFFD rather than reported.
func Decode(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return strings.ToValidUTF8(string(b), "�")
}

// Frame encodes text and appends the delimiter.
func Frame(text string) []byte {
	out := make([]byte, 0, len(text)+1)
	out = append(out, text...)
	return append(out, Delimiter)
}

// CheckFrame reports whether text can be sent as a single frame.
func CheckFrame(text string) error {
	if strings.ContainsRune(text, Delimiter) {
		return ErrEmbeddedDelimiter
	}
	return nil
}

// IsBlank reports whether a frame holds only whitespace.  A blank frame
// from the server closes the session.
func IsBlank(frame string) bool {
	return strings.TrimSpace(frame) == ""
}

// Trim removes a trailing "\n" or "\r\n" from a raw line.
func Trim(line string) string {
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r")
}

// Reader splits a byte stream into frames.
type Reader struct {
	r *bufio.Reader
}

// NewReader wraps r in a frame reader.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// ReadFrame returns the next frame without its delimiter.
//
// When the stream ends in the middle of a frame the partial frame is
// returned together with the error, so the caller can still process it.
func (fr *Reader) ReadFrame() (string, error) {
	line, err := fr.r.ReadString(Delimiter)
	return Decode([]byte(Trim(line))), err
}
