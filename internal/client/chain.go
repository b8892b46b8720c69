package client

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/decentium/decentium-go/internal/abi"
	"github.com/decentium/decentium-go/internal/models"
	"github.com/decentium/decentium-go/internal/query"
)

// TableRows is a get_table_rows response. Rows are left undecoded so the
// caller can pick the row type.
type TableRows struct {
	Rows []json.RawMessage `json:"rows"`
	More bool              `json:"more"`
}

// DecodeRows unmarshals every row into T.
func DecodeRows[T any](rows []json.RawMessage) ([]T, error) {
	out := make([]T, 0, len(rows))
	for i, raw := range rows {
		var row T
		if err := json.Unmarshal(raw, &row); err != nil {
			return nil, fmt.Errorf("failed to unmarshal row %d: %w", i, err)
		}
		out = append(out, row)
	}
	return out, nil
}

// GetTableRows runs a range scan. Rows are requested as JSON.
func (c *Client) GetTableRows(ctx context.Context, q query.TableQuery) (*TableRows, error) {
	req := struct {
		query.TableQuery
		JSON bool `json:"json"`
	}{q, true}

	b, err := c.call(ctx, "get_table_rows", pathGetTableRows, req)
	if err != nil {
		return nil, err
	}
	var rows TableRows
	if err := json.Unmarshal(b, &rows); err != nil {
		return nil, fmt.Errorf("failed to unmarshal get_table_rows response: %w", err)
	}
	return &rows, nil
}

// GetABI fetches the schema of account. It returns nil without error when the
// account has none.
func (c *Client) GetABI(ctx context.Context, account string) (*abi.ABI, error) {
	b, err := c.call(ctx, "get_abi", pathGetABI, map[string]string{"account_name": account})
	if err != nil {
		return nil, err
	}
	var resp struct {
		AccountName string   `json:"account_name"`
		ABI         *abi.ABI `json:"abi"`
	}
	if err := json.Unmarshal(b, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal get_abi response: %w", err)
	}
	return resp.ABI, nil
}

var _ abi.SchemaFetcher = (*Client)(nil)

type rawBlock struct {
	BlockNum     uint32 `json:"block_num"`
	Transactions []struct {
		// Trx is a transaction id when the node did not materialize the body,
		// otherwise the packed transaction with its id.
		Trx json.RawMessage `json:"trx"`
	} `json:"transactions"`
}

type rawTrx struct {
	ID          string `json:"id"`
	Transaction struct {
		Actions []rawAction `json:"actions"`
	} `json:"transaction"`
}

type rawAction struct {
	Account       string                   `json:"account"`
	Name          string                   `json:"name"`
	Authorization []models.PermissionLevel `json:"authorization"`
	Data          json.RawMessage          `json:"data"`
}

// GetBlock fetches a block. Actions of accounts outside the whitelist are
// dropped, payloads the node could not decode are returned as models.RawData,
// and payloads that are neither an object nor hex become empty data.
func (c *Client) GetBlock(ctx context.Context, num uint32) (*models.Block, error) {
	b, err := c.call(ctx, "get_block", pathGetBlock, blockNumParam(num))
	if err != nil {
		return nil, err
	}
	var raw rawBlock
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal block %d: %w", num, err)
	}

	block := &models.Block{
		Number:       num,
		Transactions: make([]models.Transaction, 0, len(raw.Transactions)),
	}
	for i, t := range raw.Transactions {
		tx, err := c.parseTransaction(t.Trx)
		if err != nil {
			return nil, fmt.Errorf("block %d transaction %d: %w", num, i, err)
		}
		block.Transactions = append(block.Transactions, tx)
	}
	return block, nil
}

func (c *Client) parseTransaction(trx json.RawMessage) (models.Transaction, error) {
	var id string
	if err := json.Unmarshal(trx, &id); err == nil {
		return models.Transaction{ID: id, Actions: []models.Action{}}, nil
	}

	var body rawTrx
	if err := json.Unmarshal(trx, &body); err != nil {
		return models.Transaction{}, fmt.Errorf("failed to unmarshal transaction: %w", err)
	}
	tx := models.Transaction{ID: body.ID, Actions: make([]models.Action, 0, len(body.Transaction.Actions))}
	for _, ra := range body.Transaction.Actions {
		if !c.allowed(ra.Account) {
			continue
		}
		data, err := parseActionData(ra.Data)
		if err != nil {
			c.logger.Warn("Malformed action data", "tx", body.ID, "account", ra.Account, "action", ra.Name, "error", err)
			data = models.DecodedData{}
		}
		tx.Actions = append(tx.Actions, models.Action{
			Account:       ra.Account,
			Name:          ra.Name,
			Authorization: ra.Authorization,
			Data:          data,
		})
	}
	return tx, nil
}

func (c *Client) allowed(account string) bool {
	if c.whitelist == nil {
		return true
	}
	_, ok := c.whitelist[account]
	return ok
}

// parseActionData keeps objects as decoded data and turns hex strings into raw bytes.
func parseActionData(data json.RawMessage) (models.ActionData, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return models.DecodedData{}, nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		raw, err := hex.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("invalid hex action data: %w", err)
		}
		return models.RawData(raw), nil
	}
	var decoded models.DecodedData
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("failed to unmarshal action data: %w", err)
	}
	return decoded, nil
}
