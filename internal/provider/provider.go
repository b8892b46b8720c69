// Package provider is the block pipeline behind the domain client: it fetches
// blocks through the gateway, decodes leftover raw payloads, caches and
// indexes the result, and locates transactions from approximate block numbers.
package provider

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/decentium/decentium-go/internal/abi"
	"github.com/decentium/decentium-go/internal/cache"
	"github.com/decentium/decentium-go/internal/client"
	"github.com/decentium/decentium-go/internal/metrics"
	"github.com/decentium/decentium-go/internal/models"
	"github.com/decentium/decentium-go/internal/query"
)

// Gateway is the node surface the provider needs.
type Gateway interface {
	GetInfo(ctx context.Context) (*client.Info, error)
	GetBlock(ctx context.Context, num uint32) (*models.Block, error)
	GetTableRows(ctx context.Context, q query.TableQuery) (*client.TableRows, error)
}

var _ Gateway = (*client.Client)(nil)

// Provider serves blocks, transactions and table rows.
type Provider struct {
	gateway Gateway
	decoder *abi.Decoder
	blocks  *cache.BlockCache
	index   *cache.TxIndex
	logger  *slog.Logger
}

// New wires a provider. The transaction index observes the block cache, so
// both stay consistent under eviction.
func New(gateway Gateway, decoder *abi.Decoder, cfg cache.Config, m *metrics.Metrics, logger *slog.Logger) (*Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	index := cache.NewTxIndex()
	blocks, err := cache.NewBlockCache(cfg, index, m, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create block cache: %w", err)
	}
	return &Provider{
		gateway: gateway,
		decoder: decoder,
		blocks:  blocks,
		index:   index,
		logger:  logger.With("component", "data-provider"),
	}, nil
}

// Cache returns the provider's block cache.
func (p *Provider) Cache() *cache.BlockCache {
	return p.blocks
}

// Index returns the provider's transaction index.
func (p *Provider) Index() *cache.TxIndex {
	return p.index
}

// Cached returns a block only if it is already in memory.
func (p *Provider) Cached(num uint32) (*models.Block, bool) {
	return p.blocks.Get(num)
}

// GetBlock returns block num from the cache, or fetches, decodes and caches it.
// Concurrent misses on the same number may each hit the node; the last Put wins.
func (p *Provider) GetBlock(ctx context.Context, num uint32) (*models.Block, error) {
	if block, ok := p.blocks.Get(num); ok {
		return block, nil
	}
	block, err := p.gateway.GetBlock(ctx, num)
	if err != nil {
		return nil, err
	}
	// A block is only cached fully decoded.
	if err := p.decoder.DecodeBlock(ctx, block); err != nil {
		return nil, fmt.Errorf("failed to decode block %d: %w", num, err)
	}
	p.blocks.Put(block)
	p.logger.Debug("Block cached", "block", num, "transactions", len(block.Transactions))
	return block, nil
}

// GetTableRows runs a range scan.
func (p *Provider) GetTableRows(ctx context.Context, q query.TableQuery) (*client.TableRows, error) {
	return p.gateway.GetTableRows(ctx, q)
}

// HeadBlock returns the node's current head block number.
func (p *Provider) HeadBlock(ctx context.Context) (uint32, error) {
	info, err := p.gateway.GetInfo(ctx)
	if err != nil {
		return 0, err
	}
	return info.HeadBlockNum, nil
}

// EarliestBlock returns the lowest block the node can serve. Nodes that do
// not report it are assumed to hold the full history.
func (p *Provider) EarliestBlock(ctx context.Context) (uint32, error) {
	info, err := p.gateway.GetInfo(ctx)
	if err != nil {
		return 0, err
	}
	if info.EarliestAvailableBlockNum == 0 {
		return 1, nil
	}
	return info.EarliestAvailableBlockNum, nil
}
