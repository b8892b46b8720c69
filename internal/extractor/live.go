package extractor

import (
	"context"
	"fmt"
	"time"

	"github.com/decentium/decentium-go/internal/config"
	"github.com/decentium/decentium-go/internal/output"
)

// DefaultBlockTime is the polling interval used when none is configured.
const DefaultBlockTime = 500 * time.Millisecond

// ExtractLiveBlocks follows the chain head from start until ctx is done.
func ExtractLiveBlocks(ctx context.Context, source BlockSource, start uint32, outputHandler output.OutputHandler, cfg config.ExtractConfig) error {
	if start == 0 {
		start = 1
	}
	blockTime := cfg.BlockTime
	if blockTime <= 0 {
		blockTime = DefaultBlockTime
	}

	currentHeight := start - 1
	for {
		latestHeight, err := source.HeadBlock(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to get latest block height: %w", err)
		}

		if latestHeight > currentHeight {
			if err := ExtractBlocks(ctx, source, currentHeight+1, latestHeight, outputHandler, cfg); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("failed to process blocks: %w", err)
			}
			currentHeight = latestHeight
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(blockTime):
		}
	}
}
