// Package extractor walks block ranges and writes their actions to an output.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"

	"github.com/decentium/decentium-go/internal/config"
	"github.com/decentium/decentium-go/internal/models"
	"github.com/decentium/decentium-go/internal/output"
)

// BlockSource is the chain surface the extractor reads from.
type BlockSource interface {
	GetBlock(ctx context.Context, num uint32) (*models.Block, error)
	HeadBlock(ctx context.Context) (uint32, error)
	EarliestBlock(ctx context.Context) (uint32, error)
}

// ExtractBlocks writes blocks start through stop, inclusive.
func ExtractBlocks(ctx context.Context, source BlockSource, start, stop uint32, outputHandler output.OutputHandler, cfg config.ExtractConfig) error {
	if start > stop {
		return fmt.Errorf("invalid block range [%d, %d]", start, stop)
	}
	displayProgress := start != stop
	if displayProgress {
		slog.Info("Extracting blocks", "range", fmt.Sprintf("[%d, %d]", start, stop))
	} else {
		slog.Info("Extracting block", "height", start)
	}
	var bar *progressbar.ProgressBar
	if displayProgress {
		bar = progressbar.NewOptions64(
			int64(stop-start)+1,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionSetDescription("Processing blocks..."),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "=",
				SaucerHead:    ">",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
		)
		if err := bar.RenderBlank(); err != nil {
			return fmt.Errorf("failed to render progress bar: %w", err)
		}
	}

	if err := processBlocks(ctx, source, start, stop, outputHandler, cfg, bar); err != nil {
		return fmt.Errorf("failed to process blocks: %w", err)
	}

	if bar != nil {
		if err := bar.Finish(); err != nil {
			return fmt.Errorf("failed to finish progress bar: %w", err)
		}
	}
	return nil
}

// ProcessMissingBlocks re-extracts the gaps reported by the output.
func ProcessMissingBlocks(ctx context.Context, source BlockSource, outputHandler output.OutputHandler) error {
	missingBlockIds, err := outputHandler.GetMissingBlockIds(ctx)
	if err != nil {
		return fmt.Errorf("failed to get missing block IDs: %w", err)
	}

	if len(missingBlockIds) > 0 {
		slog.Warn("Missing blocks detected", "count", len(missingBlockIds))
		for _, blockID := range missingBlockIds {
			if err := processSingleBlock(ctx, source, blockID, outputHandler); err != nil {
				return fmt.Errorf("failed to process missing block %d: %w", blockID, err)
			}
		}
	}
	return nil
}

// processBlocks fetches blocks in parallel, at most cfg.MaxConcurrency at a time.
func processBlocks(ctx context.Context, source BlockSource, start, stop uint32, outputHandler output.OutputHandler, cfg config.ExtractConfig, bar *progressbar.ProgressBar) error {
	concurrency := cfg.MaxConcurrency
	if concurrency == 0 {
		concurrency = 1
	}
	eg, egCtx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, concurrency)

loop:
	for height := uint64(start); height <= uint64(stop); height++ {
		blockHeight := uint32(height)
		if egCtx.Err() != nil {
			break
		}
		select {
		case <-egCtx.Done():
			break loop
		case sem <- struct{}{}:
		}

		eg.Go(func() error {
			defer func() { <-sem }()

			if err := processSingleBlock(egCtx, source, blockHeight, outputHandler); err != nil {
				if !errors.Is(err, context.Canceled) {
					slog.Error("Block processing error", "height", blockHeight, "error", err)
				}
				return fmt.Errorf("failed to process block %d: %w", blockHeight, err)
			}

			if bar != nil {
				if err := bar.Add(1); err != nil {
					slog.Warn("Failed to update progress bar", "error", err)
				}
			}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return fmt.Errorf("error while fetching blocks: %w", err)
	}
	if err := ctx.Err(); err != nil {
		slog.Info("Processing cancelled")
		return err
	}
	return nil
}

// processSingleBlock fetches one decoded block and hands it to the output.
// Request retries happen in the gateway.
func processSingleBlock(ctx context.Context, source BlockSource, blockHeight uint32, outputHandler output.OutputHandler) error {
	block, err := source.GetBlock(ctx, blockHeight)
	if err != nil {
		return fmt.Errorf("failed to get block: %w", err)
	}
	if err := outputHandler.WriteBlock(ctx, block); err != nil {
		return fmt.Errorf("failed to write block: %w", err)
	}
	return nil
}
