// Package codec encodes domain values into the fixed-width forms used by the
// ledger's range-scan indexes.
//
// A mismatch with the ledger's own packing does not fail; it silently selects
// the wrong rows. Every encoder here is pinned by known values in the tests.
package codec

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidName is returned for strings that are not valid account names.
var ErrInvalidName = errors.New("invalid name")

const (
	nameAlphabet  = ".12345abcdefghijklmnopqrstuvwxyz"
	maxNameLength = 13
)

func symbol(c byte) (uint64, bool) {
	switch {
	case c >= 'a' && c <= 'z':
		return uint64(c-'a') + 6, true
	case c >= '1' && c <= '5':
		return uint64(c-'1') + 1, true
	case c == '.':
		return 0, true
	}
	return 0, false
}

// StringToName packs an account name into its 64-bit form.
// The first 12 symbols take 5 bits each, most significant first; the 13th takes
// the remaining low 4 bits, so it is limited to ".12345abcdefghij".
func StringToName(s string) (uint64, error) {
	if len(s) > maxNameLength {
		return 0, fmt.Errorf("%w: %q is longer than %d characters", ErrInvalidName, s, maxNameLength)
	}
	var value uint64
	for i := 0; i < len(s); i++ {
		c, ok := symbol(s[i])
		if !ok {
			return 0, fmt.Errorf("%w: %q contains %q", ErrInvalidName, s, s[i])
		}
		if i < maxNameLength-1 {
			value |= (c & 0x1f) << (64 - 5*(i+1))
			continue
		}
		if c > 0x0f {
			return 0, fmt.Errorf("%w: %q has an out of range 13th character", ErrInvalidName, s)
		}
		value |= c
	}
	return value, nil
}

// NameToString unpacks a 64-bit name. Trailing dots are trimmed.
func NameToString(value uint64) string {
	var out [maxNameLength]byte
	tmp := value
	for i := 0; i < maxNameLength; i++ {
		var c uint64
		if i == 0 {
			c = tmp & 0x0f
			tmp >>= 4
		} else {
			c = tmp & 0x1f
			tmp >>= 5
		}
		out[maxNameLength-1-i] = nameAlphabet[c]
	}
	return strings.TrimRight(string(out[:]), ".")
}

// IsName reports whether s is a non-empty, well-formed account name.
func IsName(s string) bool {
	if s == "" {
		return false
	}
	_, err := StringToName(s)
	return err == nil
}

// NameToHex returns the ledger's wire serialization of a name: the packed
// value as 8 little-endian bytes, hex encoded.
func NameToHex(s string) (string, error) {
	value, err := StringToName(s)
	if err != nil {
		return "", err
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], value)
	return hex.EncodeToString(buf[:]), nil
}

// Uint64ToHex returns v as 8 big-endian bytes, hex encoded.
func Uint64ToHex(v uint64) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return hex.EncodeToString(buf[:])
}
