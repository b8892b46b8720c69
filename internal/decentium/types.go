package decentium

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// timestampLayout is the node's rendering of time_point_sec.
const timestampLayout = "2006-01-02T15:04:05"

// Uint64 accepts both JSON numbers and the quoted form the node uses for
// values outside the 32-bit range.
type Uint64 uint64

func (u *Uint64) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" {
		return nil
	}
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = unquoted
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid uint64 %s: %w", b, err)
	}
	*u = Uint64(v)
	return nil
}

// TxRef points at a transaction through a reference block number that may be
// a few blocks off.
type TxRef struct {
	BlockNum      uint32 `json:"block_num"`
	TransactionID string `json:"transaction_id"`
}

// Endorsements tallies a post's endorsements.
type Endorsements struct {
	Count  Uint64 `json:"count"`
	Amount Uint64 `json:"amount"`
}

// PostRef is the on-chain record of a post. The content itself lives in the
// referenced transaction.
type PostRef struct {
	Permlink     Permlink          `json:"permlink"`
	Timestamp    string            `json:"timestamp"`
	Category     string            `json:"category"`
	Options      uint8             `json:"options"`
	Tx           TxRef             `json:"tx"`
	EditTx       *TxRef            `json:"edit_tx"`
	Endorsements Endorsements      `json:"endorsements"`
	Extensions   []json.RawMessage `json:"extensions"`
}

// Time parses the post timestamp as UTC.
func (r PostRef) Time() (time.Time, error) {
	return time.ParseInLocation(timestampLayout, r.Timestamp, time.UTC)
}

// BlogRow is a row of the blogs table.
type BlogRow struct {
	Author  string `json:"author"`
	Profile *TxRef `json:"profile"`
}

// PostRow is a row of an author's posts table.
type PostRow struct {
	Ref PostRef `json:"ref"`
}

// TrendingRow is a row of the trending table.
type TrendingRow struct {
	ID    Uint64  `json:"id"`
	Score Uint64  `json:"score"`
	Ref   PostRef `json:"ref"`
}

// PostMetadata is the optional metadata of a post action.
type PostMetadata struct {
	Summary *string `json:"summary"`
	Image   *string `json:"image"`
}

// ActionPost is the payload of the contract's post action. Doc is the
// document tree, left for a renderer to interpret.
type ActionPost struct {
	Author   string          `json:"author"`
	Title    string          `json:"title"`
	Doc      json.RawMessage `json:"doc"`
	Metadata *PostMetadata   `json:"metadata"`
}

// ActionProfile is the payload of the contract's profile action.
type ActionProfile struct {
	Author string  `json:"author"`
	Name   *string `json:"name"`
	Bio    *string `json:"bio"`
	Image  *string `json:"image"`
}

// PostsPage is one page of an author's posts, newest first. Next is the
// cursor for the following page, empty on the last one.
type PostsPage struct {
	Posts []PostRef `json:"posts"`
	Next  string    `json:"next,omitempty"`
}

// TrendingOptions selects a trending feed page.
type TrendingOptions struct {
	// From is the highest score to include. Nil starts at the top.
	From     *uint64
	Category string
	// Limit defaults to DefaultLimit.
	Limit int
}

// TrendingPage is one page of a trending feed. Next is the score to pass as
// From for the following page, nil on the last one.
type TrendingPage struct {
	Posts []PostRef `json:"posts"`
	Next  *uint64   `json:"next,omitempty"`
}
