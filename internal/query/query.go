// Package query turns domain lookups into generic table range-scan requests.
package query

import (
	"fmt"
	"strconv"

	"github.com/decentium/decentium-go/internal/codec"
)

// Index key types understood by the node.
const (
	KeyTypeName = "name"
	KeyTypeI64  = "i64"
	KeyTypeI128 = "i128"
)

// Bound encodings for integer keys.
const (
	EncodeDec = "dec"
	EncodeHex = "hex"
)

const maxUint64Hex = "ffffffffffffffff"

// TableQuery is a range-scan request against an account-scoped table.
// Field tags follow the node's get_table_rows request shape.
type TableQuery struct {
	Code          string `json:"code"`
	Scope         string `json:"scope"`
	Table         string `json:"table"`
	KeyType       string `json:"key_type,omitempty"`
	IndexPosition string `json:"index_position,omitempty"`
	EncodeType    string `json:"encode_type,omitempty"`
	LowerBound    string `json:"lower_bound,omitempty"`
	UpperBound    string `json:"upper_bound,omitempty"`
	Limit         int    `json:"limit,omitempty"`
	Reverse       bool   `json:"reverse,omitempty"`
}

func validateNames(names ...string) error {
	for _, n := range names {
		if !codec.IsName(n) {
			return fmt.Errorf("%w: %q", codec.ErrInvalidName, n)
		}
	}
	return nil
}

// BlogByAuthor looks up a single blog row by its author key.
func BlogByAuthor(contract, author string) (TableQuery, error) {
	if err := validateNames(contract, author); err != nil {
		return TableQuery{}, err
	}
	return TableQuery{
		Code:          contract,
		Scope:         contract,
		Table:         "blogs",
		KeyType:       KeyTypeName,
		IndexPosition: "0",
		LowerBound:    author,
		UpperBound:    author,
		Limit:         1,
	}, nil
}

// PostBySlug looks up a single post row in an author's scope by slug.
func PostBySlug(contract, author, slug string) (TableQuery, error) {
	if err := validateNames(contract, author, slug); err != nil {
		return TableQuery{}, err
	}
	return TableQuery{
		Code:          contract,
		Scope:         author,
		Table:         "posts",
		KeyType:       KeyTypeName,
		IndexPosition: "1",
		LowerBound:    slug,
		UpperBound:    slug,
		Limit:         1,
	}, nil
}

// PostsByTime scans an author's posts newest first. A non-nil cursor bounds the
// upper edge of the scan. One row more than limit is requested so the caller
// can tell whether another page exists.
func PostsByTime(contract, author string, cursor *uint64, limit int) (TableQuery, error) {
	if err := validateNames(contract, author); err != nil {
		return TableQuery{}, err
	}
	q := TableQuery{
		Code:          contract,
		Scope:         author,
		Table:         "posts",
		KeyType:       KeyTypeI64,
		IndexPosition: "2",
		EncodeType:    EncodeDec,
		Limit:         limit + 1,
		Reverse:       true,
	}
	if cursor != nil {
		q.LowerBound = "0"
		q.UpperBound = strconv.FormatUint(*cursor, 10)
	}
	return q, nil
}

// Trending scans the trending table highest score first.
//
// Without a category the plain score index is used. With a category the scan
// runs over the 128-bit (category, score) index. The bounds are written in the
// node's byte layout for 128-bit keys, which puts the score in the first 8
// bytes and the category in the last 8 even though category is the high half
// of the key.
//
// A zero from is treated like a nil one and starts at the top.
func Trending(contract string, from *uint64, category string, limit int) (TableQuery, error) {
	if err := validateNames(contract); err != nil {
		return TableQuery{}, err
	}
	if from != nil && *from == 0 {
		from = nil
	}
	q := TableQuery{
		Code:          contract,
		Scope:         contract,
		Table:         "trending",
		KeyType:       KeyTypeI64,
		IndexPosition: "2",
		EncodeType:    EncodeHex,
		Limit:         limit + 1,
		Reverse:       true,
	}
	if category == "" {
		if from != nil {
			q.LowerBound = "0"
			q.UpperBound = strconv.FormatUint(*from, 10)
		}
		return q, nil
	}

	categoryHex, err := codec.NameToHex(category)
	if err != nil {
		return TableQuery{}, err
	}
	upperHex := maxUint64Hex
	if from != nil {
		upperHex = codec.Uint64ToHex(*from)
	}
	q.KeyType = KeyTypeI128
	q.IndexPosition = "3"
	q.LowerBound = "0x0000000000000000" + categoryHex
	q.UpperBound = "0x" + upperHex + categoryHex
	return q, nil
}

// Page splits the limit+1 rows of a paginated scan into the rows to return and
// the boundary row that seeds the next cursor. next is nil on the last page.
func Page[T any](rows []T, limit int) (page []T, next *T) {
	if len(rows) > limit {
		return rows[:limit], &rows[limit]
	}
	return rows, nil
}
