package models

import (
	"encoding/json"
	"fmt"
)

// Block represents a ledger block as seen by the data access layer.
// A block is immutable once fetched; its identity is the block number.
type Block struct {
	Number       uint32        `json:"block_num"`
	Transactions []Transaction `json:"transactions"`
}

// Transaction represents a ledger transaction.
// A transaction the node did not materialize (e.g. pruned) has a valid ID and no actions.
type Transaction struct {
	ID      string   `json:"id"`
	Actions []Action `json:"actions"`
}

// PermissionLevel is a single (actor, permission) authorization.
type PermissionLevel struct {
	Actor      string `json:"actor"`
	Permission string `json:"permission"`
}

// Action is a contract call carried by a transaction.
type Action struct {
	Account       string
	Name          string
	Authorization []PermissionLevel
	Data          ActionData
}

// ActionData is either DecodedData or RawData.
type ActionData interface {
	isActionData()
}

// DecodedData is a structured action payload.
type DecodedData map[string]any

// RawData is a binary action payload the node failed to decode.
type RawData []byte

func (DecodedData) isActionData() {}
func (RawData) isActionData()     {}

// Transaction returns the transaction with the given id, if the block contains it.
func (b *Block) Transaction(id string) (*Transaction, bool) {
	for i := range b.Transactions {
		if b.Transactions[i].ID == id {
			return &b.Transactions[i], true
		}
	}
	return nil, false
}

// Decoded returns the structured payload, or false if the action still carries raw bytes.
func (a *Action) Decoded() (DecodedData, bool) {
	switch d := a.Data.(type) {
	case DecodedData:
		return d, true
	case RawData:
		return nil, false
	default:
		return nil, false
	}
}

// Decode unmarshals the structured payload into v.
func (a *Action) Decode(v any) error {
	data, ok := a.Decoded()
	if !ok {
		return fmt.Errorf("action %s::%s has undecoded data", a.Account, a.Name)
	}
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal action data: %w", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("failed to unmarshal action data: %w", err)
	}
	return nil
}

// MarshalJSON renders the action in the node's JSON shape.
func (a Action) MarshalJSON() ([]byte, error) {
	var data any
	switch d := a.Data.(type) {
	case DecodedData:
		data = d
	case RawData:
		data = fmt.Sprintf("%x", []byte(d))
	}
	return json.Marshal(struct {
		Account       string            `json:"account"`
		Name          string            `json:"name"`
		Authorization []PermissionLevel `json:"authorization"`
		Data          any               `json:"data"`
	}{a.Account, a.Name, a.Authorization, data})
}
