package abi

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/decentium/decentium-go/internal/metrics"
	"github.com/decentium/decentium-go/internal/models"
)

// SchemaFetcher loads the ABI of an account. It returns a nil ABI and a nil
// error when the account has no schema.
type SchemaFetcher interface {
	GetABI(ctx context.Context, account string) (*ABI, error)
}

// Fallback decode outcomes, used as metric labels.
const (
	resultDecoded       = "decoded"
	resultUnresolvable  = "unresolvable"
	resultUnknownAction = "unknown_action"
	resultFetchError    = "fetch_error"
	resultDecodeError   = "decode_error"
)

// Decoder turns raw action payloads into structured data.
//
// A payload that cannot be decoded becomes an empty object so the surrounding
// block is still usable. Only node failures while fetching a schema surface.
type Decoder struct {
	fetcher SchemaFetcher
	schemas *SchemaCache
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewDecoder creates a decoder. A nil schemas gets a fresh cache.
func NewDecoder(fetcher SchemaFetcher, schemas *SchemaCache, m *metrics.Metrics, logger *slog.Logger) *Decoder {
	if schemas == nil {
		schemas = NewSchemaCache()
	}
	if m == nil {
		m = metrics.New(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Decoder{
		fetcher: fetcher,
		schemas: schemas,
		metrics: m,
		logger:  logger.With("component", "action-decoder"),
	}
}

// Schemas returns the decoder's schema cache.
func (d *Decoder) Schemas() *SchemaCache {
	return d.schemas
}

// DecodeBlock replaces every raw action payload in block with decoded data.
// It stops at the first schema fetch failure; the block is then partially
// decoded and must be discarded.
func (d *Decoder) DecodeBlock(ctx context.Context, block *models.Block) error {
	for i := range block.Transactions {
		actions := block.Transactions[i].Actions
		for j := range actions {
			raw, ok := actions[j].Data.(models.RawData)
			if !ok {
				continue
			}
			data, err := d.DecodeAction(ctx, actions[j].Account, actions[j].Name, raw)
			if err != nil {
				return err
			}
			actions[j].Data = data
		}
	}
	return nil
}

// DecodeAction decodes raw as the payload of account's action name. A missing
// schema, an unknown action or a malformed payload yield empty data; only a
// failure to fetch the schema is returned as an error.
func (d *Decoder) DecodeAction(ctx context.Context, account, name string, raw []byte) (models.DecodedData, error) {
	contract, result, err := d.contract(ctx, account)
	if err != nil {
		d.metrics.ABIFallbacks.WithLabelValues(resultFetchError).Inc()
		return nil, fmt.Errorf("failed to fetch contract schema of %s: %w", account, err)
	}
	if contract == nil {
		d.metrics.ABIFallbacks.WithLabelValues(result).Inc()
		return models.DecodedData{}, nil
	}

	if _, ok := contract.ActionType(name); !ok {
		d.logger.Debug("Action not in contract schema", "account", account, "action", name)
		d.metrics.ABIFallbacks.WithLabelValues(resultUnknownAction).Inc()
		return models.DecodedData{}, nil
	}

	data, err := contract.DecodeAction(name, raw)
	if err != nil {
		d.logger.Warn("Failed to decode action data", "account", account, "action", name, "error", err)
		d.metrics.ABIFallbacks.WithLabelValues(resultDecodeError).Inc()
		return models.DecodedData{}, nil
	}
	d.metrics.ABIFallbacks.WithLabelValues(resultDecoded).Inc()
	return data, nil
}

// contract returns the account's schema, fetching it on first use. A nil
// contract without error comes with the metric label explaining why. Fetch
// errors are not cached.
func (d *Decoder) contract(ctx context.Context, account string) (*Contract, string, error) {
	if contract, known := d.schemas.Lookup(account); known {
		if contract == nil {
			return nil, resultUnresolvable, nil
		}
		return contract, "", nil
	}

	abiDef, err := d.fetcher.GetABI(ctx, account)
	if err != nil {
		return nil, resultFetchError, err
	}
	if abiDef == nil {
		d.logger.Debug("Account has no contract schema", "account", account)
		d.schemas.MarkUnresolvable(account)
		return nil, resultUnresolvable, nil
	}

	contract, err := NewContract(abiDef)
	if err != nil {
		d.logger.Warn("Invalid contract schema", "account", account, "error", err)
		d.schemas.MarkUnresolvable(account)
		return nil, resultUnresolvable, nil
	}
	d.schemas.Store(account, contract)
	return contract, "", nil
}
