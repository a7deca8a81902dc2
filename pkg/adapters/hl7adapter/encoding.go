package hl7adapter

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

const (
	EncodingUTF8        = "utf-8"
	EncodingWindows1252 = "windows-1252"
	EncodingLatin1      = "iso-8859-1"

	sniffSize = 64 * 1024
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Tried in order when the input is not UTF-8. Latin-1 maps every byte and
// always succeeds.
var fallbackEncodings = []struct {
	name string
	enc  encoding.Encoding
}{
	{EncodingWindows1252, charmap.Windows1252},
	{EncodingLatin1, charmap.ISO8859_1},
}

// Decode converts data to a UTF-8 string and reports the encoding used.
func Decode(data []byte) (string, string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return string(data), EncodingUTF8, nil
	}
	for _, fb := range fallbackEncodings {
		out, err := fb.enc.NewDecoder().Bytes(data)
		if err == nil && !bytes.ContainsRune(out, utf8.RuneError) {
			return string(out), fb.name, nil
		}
	}
	return "", "", fmt.Errorf("could not decode input with any supported encoding")
}

// NewReader wraps r so that it yields UTF-8. The encoding is chosen from the
// first block of input; a leading byte order mark is dropped.
func NewReader(r io.Reader) (io.Reader, string, error) {
	br := bufio.NewReaderSize(r, sniffSize)
	head, err := br.Peek(sniffSize)
	complete := err == io.EOF
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, "", err
	}
	if bytes.HasPrefix(head, utf8BOM) {
		if _, err := br.Discard(len(utf8BOM)); err != nil {
			return nil, "", err
		}
		head = head[len(utf8BOM):]
	}
	if validPrefix(head, complete) {
		return br, EncodingUTF8, nil
	}
	for _, fb := range fallbackEncodings {
		out, err := fb.enc.NewDecoder().Bytes(head)
		if err == nil && !bytes.ContainsRune(out, utf8.RuneError) {
			return transform.NewReader(br, fb.enc.NewDecoder()), fb.name, nil
		}
	}
	return nil, "", fmt.Errorf("could not decode input with any supported encoding")
}

// validPrefix reports whether b is UTF-8, ignoring a rune cut off at the end
// of an incomplete block.
func validPrefix(b []byte, complete bool) bool {
	if !complete {
		for i := 1; i <= utf8.UTFMax && i <= len(b); i++ {
			if utf8.RuneStart(b[len(b)-i]) {
				if !utf8.FullRune(b[len(b)-i:]) {
					b = b[:len(b)-i]
				}
				break
			}
		}
	}
	return utf8.Valid(b)
}
