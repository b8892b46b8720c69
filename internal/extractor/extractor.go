package extractor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/decentium/decentium-go/internal/config"
	"github.com/decentium/decentium-go/internal/output"
)

// Extract runs a scan. A zero start resumes after the latest block already
// written, or begins at the node's earliest block. A zero stop means the
// current head. With cfg.Live the scan keeps following the head afterwards.
func Extract(ctx context.Context, source BlockSource, start, stop uint32, outputHandler output.OutputHandler, cfg config.ExtractConfig) error {
	if cfg.FillGaps {
		if err := ProcessMissingBlocks(ctx, source, outputHandler); err != nil {
			return err
		}
	}

	if start == 0 {
		var err error
		if start, err = resumeHeight(ctx, source, outputHandler); err != nil {
			return err
		}
	}

	if cfg.Live {
		return ExtractLiveBlocks(ctx, source, start, outputHandler, cfg)
	}

	if stop == 0 {
		head, err := source.HeadBlock(ctx)
		if err != nil {
			return fmt.Errorf("failed to get latest block height: %w", err)
		}
		stop = head
	}
	if start > stop {
		slog.Info("Nothing to extract", "start", start, "stop", stop)
		return nil
	}
	return ExtractBlocks(ctx, source, start, stop, outputHandler, cfg)
}

func resumeHeight(ctx context.Context, source BlockSource, outputHandler output.OutputHandler) (uint32, error) {
	latest, err := outputHandler.GetLatestBlock(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest written block: %w", err)
	}
	if latest > 0 {
		slog.Info("Resuming extraction", "after", latest)
		return latest + 1, nil
	}
	earliest, err := source.EarliestBlock(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get earliest block height: %w", err)
	}
	return earliest, nil
}
