package headers

import (
	"fmt"
	"io"
	"strings"
)

// Headers is an ordered set of header fields. Names are matched
// case-insensitively but keep the spelling they were first set with, and
// fields are written in insertion order.
type Headers struct {
	names  []string
	values map[string]string
}

// NewHeaders returns an empty header set.
func NewHeaders() Headers {
	return Headers{values: make(map[string]string)}
}

func key(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Get returns the value for name, or "" when absent.
func (h Headers) Get(name string) string {
	return h.values[key(name)]
}

// Has reports whether name is present.
func (h Headers) Has(name string) bool {
	_, ok := h.values[key(name)]
	return ok
}

// Set adds name, appending to an existing value with ", " the way repeated
// request headers combine.
func (h *Headers) Set(name, value string) {
	k := key(name)
	if h.values == nil {
		h.values = make(map[string]string)
	}
	if old, ok := h.values[k]; ok {
		h.values[k] = old + ", " + value
		return
	}
	h.names = append(h.names, strings.TrimSpace(name))
	h.values[k] = value
}

// Override replaces the value for name, keeping its original position.
func (h *Headers) Override(name, value string) {
	k := key(name)
	if h.values == nil {
		h.values = make(map[string]string)
	}
	if _, ok := h.values[k]; !ok {
		h.names = append(h.names, strings.TrimSpace(name))
	}
	h.values[k] = value
}

// Len returns the number of distinct fields.
func (h Headers) Len() int {
	return len(h.names)
}

// Names returns field names in insertion order.
func (h Headers) Names() []string {
	out := make([]string, len(h.names))
	copy(out, h.names)
	return out
}

// ParseLine splits a "Name: value" header line. ok is false when the line
// carries no colon or an empty name.
func ParseLine(line string) (name, value string, ok bool) {
	i := strings.IndexByte(line, ':')
	if i <= 0 {
		return "", "", false
	}
	name = strings.TrimSpace(line[:i])
	if name == "" || strings.ContainsAny(name, " \t") {
		return "", "", false
	}
	return name, strings.TrimSpace(line[i+1:]), true
}

// WriteTo writes every field as "Name: value\r\n" in insertion order. It does
// not write the blank line that ends a header block.
func (h Headers) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for _, name := range h.names {
		n, err := fmt.Fprintf(w, "%s: %s\r\n", name, h.values[key(name)])
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
