// Package header holds case-insensitive header containers for requests and
// responses, plus the known-header registry used to validate them.
package header

import (
	"maps"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Headers maps lowercase field names to their values. Repeated fields carry
// comma-separated concatenation in a single value. Insertion order is
// irrelevant; serialisation order is unspecified.
type Headers struct {
	underlying map[string]string
}

func NewHeaders() Headers {
	return Headers{underlying: make(map[string]string)}
}

// Get returns the value of the named header, or "" if it isn't set.
func (h *Headers) Get(name string) string {
	return h.underlying[strings.ToLower(name)]
}

// Has reports whether the named header is set.
func (h *Headers) Has(name string) bool {
	_, ok := h.underlying[strings.ToLower(name)]
	return ok
}

// Set puts a header, replacing the existing one if it exists. Names are
// stored lowercase.
func (h *Headers) Set(name, value string) {
	h.underlying[strings.ToLower(name)] = value
}

// Append appends to the value of an existing header, separated by a comma,
// or sets it if absent.
func (h *Headers) Append(name, value string) {
	name = strings.ToLower(name)
	if prev, ok := h.underlying[name]; ok {
		h.underlying[name] = prev + ", " + value
		return
	}
	h.underlying[name] = value
}

// Del removes a header if it exists.
func (h *Headers) Del(name string) {
	delete(h.underlying, strings.ToLower(name))
}

// SetLine parses a raw `Name: value` field line and sets it, replacing any
// existing value.
func (h *Headers) SetLine(line string) error {
	name, value, err := splitLine(line)
	if err != nil {
		return err
	}
	h.Set(name, value)
	return nil
}

// AppendLine parses a raw `Name: value` field line and appends it, joining
// repeated fields with a comma.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-5.3-1
func (h *Headers) AppendLine(line string) error {
	name, value, err := splitLine(line)
	if err != nil {
		return err
	}
	h.Append(name, value)
	return nil
}

func splitLine(line string) (name, value string, err error) {
	name, value, found := strings.Cut(line, ":")
	if !found {
		return "", "", errors.Errorf("colon seperator not found on header: %q", line)
	}
	return strings.TrimSpace(name), strings.TrimSpace(value), nil
}

// Len returns the number of distinct header names.
func (h *Headers) Len() int { return len(h.underlying) }

// Names returns all set header names, sorted, for deterministic iteration.
func (h *Headers) Names() []string {
	names := make([]string, 0, len(h.underlying))
	for name := range h.underlying {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Text renders the headers in wire format, one `name: value` line per field,
// each terminated by CRLF.
func (h *Headers) Text() string {
	var b strings.Builder
	b.Grow(len(h.underlying) * 32)
	for name, value := range h.underlying {
		b.WriteString(name)
		b.WriteString(": ")
		b.WriteString(value)
		b.WriteString("\r\n")
	}
	return b.String()
}

// Equal reports whether both header sets carry exactly the same fields.
func (h *Headers) Equal(o *Headers) bool {
	return maps.Equal(h.underlying, o.underlying)
}

// Clone returns an independent copy.
func (h *Headers) Clone() Headers {
	return Headers{underlying: maps.Clone(h.underlying)}
}
