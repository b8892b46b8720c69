package output

import (
	"context"
	"encoding/json"

	"github.com/decentium/decentium-go/internal/models"
)

type OutputHandler interface {
	// WriteBlock writes every action of every transaction of the block to the output.
	// Writing the same block again replaces its previous records.
	WriteBlock(ctx context.Context, block *models.Block) error

	// GetLatestBlock returns the highest block number written, or zero if none.
	GetLatestBlock(ctx context.Context) (uint32, error)

	// GetMissingBlockIds returns the block numbers missing below the latest written block.
	GetMissingBlockIds(ctx context.Context) ([]uint32, error)

	// Close closes the output handler.
	Close() error
}

// ActionRecord is one action flattened with its position in the chain.
type ActionRecord struct {
	BlockNum      uint32                   `json:"block_num"`
	TransactionID string                   `json:"transaction_id"`
	ActionIndex   int                      `json:"action_index"`
	Account       string                   `json:"account"`
	Name          string                   `json:"name"`
	Authorization []models.PermissionLevel `json:"authorization"`
	Data          json.RawMessage          `json:"data"`
}

// Records flattens a block into action records. Transactions without
// actions produce none.
func Records(block *models.Block) ([]ActionRecord, error) {
	var out []ActionRecord
	for _, tx := range block.Transactions {
		for i, a := range tx.Actions {
			b, err := json.Marshal(a)
			if err != nil {
				return nil, err
			}
			var rendered struct {
				Data json.RawMessage `json:"data"`
			}
			if err := json.Unmarshal(b, &rendered); err != nil {
				return nil, err
			}
			auth := a.Authorization
			if auth == nil {
				auth = []models.PermissionLevel{}
			}
			out = append(out, ActionRecord{
				BlockNum:      block.Number,
				TransactionID: tx.ID,
				ActionIndex:   i,
				Account:       a.Account,
				Name:          a.Name,
				Authorization: auth,
				Data:          rendered.Data,
			})
		}
	}
	return out, nil
}
