package provider

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/decentium/decentium-go/internal/models"
)

// ErrNotFound is returned when a transaction is not in the reference block or
// any of its probed neighbours.
var ErrNotFound = errors.New("transaction not found")

// probeOffsets are tried, in order, around the reference block when the
// transaction is not in it.
var probeOffsets = []int64{1, -1, 2, -2}

// GetTransaction locates txID starting from approxBlock, a reference block
// number that may be off by up to two blocks. Every block fetched on the way
// is cached and indexed.
func (p *Provider) GetTransaction(ctx context.Context, txID string, approxBlock uint32) (*models.Transaction, error) {
	if num, ok := p.index.Lookup(txID); ok {
		if block, ok := p.blocks.Get(num); ok {
			if tx, ok := block.Transaction(txID); ok {
				return tx, nil
			}
		}
		// The block left the cache between the two lookups. The indexed
		// number is still the best reference.
		p.logger.Debug("Indexed block no longer cached", "tx", txID, "block", num)
		approxBlock = num
	}

	if approxBlock >= 1 {
		if tx, err := p.findIn(ctx, txID, approxBlock); err != nil || tx != nil {
			return tx, err
		}
	}
	for _, offset := range probeOffsets {
		candidate := int64(approxBlock) + offset
		if candidate < 1 || candidate > math.MaxUint32 {
			continue
		}
		tx, err := p.findIn(ctx, txID, uint32(candidate))
		if err != nil || tx != nil {
			if tx != nil {
				p.logger.Debug("Transaction found off reference block", "tx", txID, "reference", approxBlock, "block", candidate)
			}
			return tx, err
		}
	}
	return nil, fmt.Errorf("%w: %s near block %d", ErrNotFound, txID, approxBlock)
}

func (p *Provider) findIn(ctx context.Context, txID string, num uint32) (*models.Transaction, error) {
	block, err := p.GetBlock(ctx, num)
	if err != nil {
		return nil, err
	}
	tx, _ := block.Transaction(txID)
	return tx, nil
}
