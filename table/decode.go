package table

import (
	"unicode/utf8"

	"github.com/teranos/tabula/errors"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/simplifiedchinese"
)

// ErrUnsupportedEncoding is returned when no decoder accepts the bytes.
var ErrUnsupportedEncoding = errors.Sentinel("unsupported text encoding, use UTF-8 or GBK", errors.ErrInput)

// decoder is one decoding strategy, tried in order.
type decoder struct {
	name   string
	decode func([]byte) (string, bool)
}

var decoders = []decoder{
	{name: "utf-8", decode: decodeUTF8},
	{name: "gbk", decode: decodeWith(simplifiedchinese.GBK)},
	{name: "gb18030", decode: decodeWith(simplifiedchinese.GB18030)},
}

// Decode turns uploaded bytes into text, trying UTF-8 first and then the
// Chinese legacy encodings. It returns the text and the encoding used.
func Decode(data []byte) (string, string, error) {
	for _, d := range decoders {
		if text, ok := d.decode(data); ok {
			return text, d.name, nil
		}
	}
	return "", "", ErrUnsupportedEncoding
}

func decodeUTF8(data []byte) (string, bool) {
	if !utf8.Valid(data) {
		return "", false
	}
	return string(data), true
}

func decodeWith(enc encoding.Encoding) func([]byte) (string, bool) {
	return func(data []byte) (string, bool) {
		out, err := enc.NewDecoder().Bytes(data)
		if err != nil || !utf8.Valid(out) {
			return "", false
		}
		// x/text substitutes U+FFFD for invalid sequences instead of failing
		for _, r := range string(out) {
			if r == utf8.RuneError {
				return "", false
			}
		}
		return string(out), true
	}
}
