package response

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

// Charset is a named text encoding used for bodies.
type Charset struct {
	Name     string
	Encoding encoding.Encoding
}

// UTF8 is the default charset.
var UTF8 = Charset{Name: "utf-8", Encoding: unicode.UTF8}

// LookupCharset resolves a WHATWG encoding label such as "utf-8",
// "windows-1251" or "koi8-r". An empty label yields UTF8.
func LookupCharset(label string) (Charset, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return UTF8, nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return Charset{}, fmt.Errorf("unknown encoding %q: %w", label, err)
	}
	name, err := htmlindex.Name(enc)
	if err != nil {
		name = strings.ToLower(label)
	}
	return Charset{Name: name, Encoding: enc}, nil
}

// Encode converts s from UTF-8 to the charset. Characters the charset
// cannot represent are replaced.
func (c Charset) Encode(s string) []byte {
	if c.Encoding == nil || c.Encoding == unicode.UTF8 {
		return []byte(s)
	}
	out, err := encoding.ReplaceUnsupported(c.Encoding.NewEncoder()).Bytes([]byte(s))
	if err != nil {
		return []byte(s)
	}
	return out
}
