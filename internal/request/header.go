package request

import (
	"regexp"
	"strings"
)

// Field is a single header line as received.
type Field struct {
	Name  string
	Value string
}

// Header is an ordered header list. Lookups ignore case; the original
// casing of each name is preserved for iteration.
type Header []Field

// headerLine matches "Name: value" lines in a raw header block.
var headerLine = regexp.MustCompile(`(?m)^([\w-]+):[ \t]*(.*?)\r?$`)

// ParseHeader extracts the header fields of a raw header block. The request
// line and any line that is not "Name: value" are skipped. A repeated name
// is folded into the first occurrence, values joined by ", ".
func ParseHeader(block string) Header {
	var h Header
	for _, m := range headerLine.FindAllStringSubmatch(block, -1) {
		h.Add(m[1], strings.TrimSpace(m[2]))
	}
	return h
}

// Add appends a field, or folds the value into an existing field with the
// same name.
func (h *Header) Add(name, value string) {
	for i := range *h {
		if strings.EqualFold((*h)[i].Name, name) {
			if (*h)[i].Value == "" {
				(*h)[i].Value = value
			} else if value != "" {
				(*h)[i].Value += ", " + value
			}
			return
		}
	}
	*h = append(*h, Field{Name: name, Value: value})
}

// Set replaces the value of name, keeping the position of an existing field.
func (h *Header) Set(name, value string) {
	for i := range *h {
		if strings.EqualFold((*h)[i].Name, name) {
			(*h)[i].Value = value
			return
		}
	}
	*h = append(*h, Field{Name: name, Value: value})
}

// Del removes name.
func (h *Header) Del(name string) {
	out := (*h)[:0]
	for _, f := range *h {
		if !strings.EqualFold(f.Name, name) {
			out = append(out, f)
		}
	}
	*h = out
}

// Get returns the value of name, or "" if absent.
func (h Header) Get(name string) string {
	v, _ := h.Lookup(name)
	return v
}

// Lookup returns the value of name and whether it is present.
func (h Header) Lookup(name string) (string, bool) {
	for _, f := range h {
		if strings.EqualFold(f.Name, name) {
			return f.Value, true
		}
	}
	return "", false
}

// Has reports whether name is present.
func (h Header) Has(name string) bool {
	_, ok := h.Lookup(name)
	return ok
}

// Clone returns an independent copy.
func (h Header) Clone() Header {
	if h == nil {
		return nil
	}
	out := make(Header, len(h))
	copy(out, h)
	return out
}

// Map flattens the header for logging.
func (h Header) Map() map[string]string {
	m := make(map[string]string, len(h))
	for _, f := range h {
		m[f.Name] = f.Value
	}
	return m
}
