// Package deck classifies presentation payloads by magic bytes.
package deck

import (
	"bytes"
	"io"
	"os"
)

// Kind identifies the container format of a presentation payload.
type Kind string

const (
	KindZip     Kind = "zip"     // OOXML (.pptx) decks are zip containers
	KindOLE     Kind = "ole"     // legacy binary office container
	KindUnknown Kind = "unknown"
)

var magics = []struct {
	prefix []byte
	kind   Kind
}{
	{[]byte{0x50, 0x4b, 0x03, 0x04}, KindZip},
	{[]byte{0x50, 0x4b, 0x05, 0x06}, KindZip}, // empty archive
	{[]byte{0x50, 0x4b, 0x07, 0x08}, KindZip}, // spanned archive
	{[]byte{0xd0, 0xcf, 0x11, 0xe0, 0xa1, 0xb1, 0x1a, 0xe1}, KindOLE},
}

// Detect classifies the payload by its leading bytes.
func Detect(head []byte) Kind {
	for _, m := range magics {
		if bytes.HasPrefix(head, m.prefix) {
			return m.kind
		}
	}
	return KindUnknown
}

// DetectFile classifies the file at path by reading its header.
func DetectFile(path string) (Kind, error) {
	f, err := os.Open(path)
	if err != nil {
		return KindUnknown, err
	}
	defer f.Close()

	head := make([]byte, 8)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return KindUnknown, err
	}
	return Detect(head[:n]), nil
}
