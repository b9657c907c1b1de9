package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ID is a numeric record identifier. The upstream API is loose about
// encoding and sends ids both as JSON numbers and as numeric strings.
type ID int64

// UnmarshalJSON accepts a number, a numeric string, or null.
func (id *ID) UnmarshalJSON(data []byte) error {
	n, err := decodeFlexInt(data)
	if err != nil {
		return fmt.Errorf("decode id: %w", err)
	}
	*id = ID(n)
	return nil
}

// String returns the decimal form of the id.
func (id ID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// ParseID parses a decimal id, as found in URL paths and query strings.
func ParseID(s string) (ID, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse id %q: %w", s, err)
	}
	return ID(n), nil
}

// Flag is a boolean that travels as 1/0 on the wire.
type Flag bool

// MarshalJSON encodes the flag as 1 or 0.
func (f Flag) MarshalJSON() ([]byte, error) {
	if f {
		return []byte("1"), nil
	}
	return []byte("0"), nil
}

// UnmarshalJSON accepts booleans, numbers and numeric strings.
func (f *Flag) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	switch string(trimmed) {
	case "true":
		*f = true
		return nil
	case "false", "null":
		*f = false
		return nil
	}
	n, err := decodeFlexInt(trimmed)
	if err != nil {
		return fmt.Errorf("decode flag: %w", err)
	}
	*f = n != 0
	return nil
}

// decodeFlexInt reads an integer that may be quoted, fractional or null.
func decodeFlexInt(data []byte) (int64, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return 0, nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return 0, err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return 0, nil
		}
		trimmed = []byte(s)
	}
	if n, err := strconv.ParseInt(string(trimmed), 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(string(trimmed), 64)
	if err != nil {
		return 0, err
	}
	return int64(f), nil
}
