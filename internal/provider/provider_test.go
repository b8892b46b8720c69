package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/decentium/decentium-go/internal/abi"
	"github.com/decentium/decentium-go/internal/cache"
	"github.com/decentium/decentium-go/internal/client"
	"github.com/decentium/decentium-go/internal/models"
	"github.com/decentium/decentium-go/internal/query"
)

// fakeNode serves synthetic blocks: block n holds transactions "tx-n-0" and
// "tx-n-1" unless overridden.
type fakeNode struct {
	mu        sync.Mutex
	overrides map[uint32]*models.Block
	calls     map[uint32]int
	failing   bool
	broken    map[uint32]bool
	earliest  uint32
}

func newFakeNode() *fakeNode {
	return &fakeNode{overrides: map[uint32]*models.Block{}, calls: map[uint32]int{}, broken: map[uint32]bool{}}
}

func (n *fakeNode) GetInfo(context.Context) (*client.Info, error) {
	return &client.Info{HeadBlockNum: 1000, EarliestAvailableBlockNum: n.earliest}, nil
}

func (n *fakeNode) GetBlock(_ context.Context, num uint32) (*models.Block, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls[num]++
	if n.failing {
		return nil, errors.New("node unavailable")
	}
	if n.broken[num] {
		return nil, fmt.Errorf("unknown block %d", num)
	}
	if b, ok := n.overrides[num]; ok {
		// The pipeline decodes in place, hand out a copy.
		cp := *b
		cp.Transactions = make([]models.Transaction, len(b.Transactions))
		for i, tx := range b.Transactions {
			cp.Transactions[i] = models.Transaction{ID: tx.ID, Actions: append([]models.Action(nil), tx.Actions...)}
		}
		return &cp, nil
	}
	return &models.Block{
		Number: num,
		Transactions: []models.Transaction{
			{ID: fmt.Sprintf("tx-%d-0", num), Actions: []models.Action{}},
			{ID: fmt.Sprintf("tx-%d-1", num), Actions: []models.Action{}},
		},
	}, nil
}

func (n *fakeNode) GetTableRows(context.Context, query.TableQuery) (*client.TableRows, error) {
	return &client.TableRows{}, nil
}

func (n *fakeNode) callCount(num uint32) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[num]
}

func (n *fakeNode) totalCalls() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for _, c := range n.calls {
		total += c
	}
	return total
}

type noSchemas struct{}

func (noSchemas) GetABI(context.Context, string) (*abi.ABI, error) { return nil, nil }

func newTestProvider(t *testing.T, node *fakeNode, cfg cache.Config) *Provider {
	t.Helper()
	p, err := New(node, abi.NewDecoder(noSchemas{}, nil, nil, nil), cfg, nil, nil)
	require.NoError(t, err)
	return p
}

func TestGetBlockServedFromCache(t *testing.T) {
	node := newFakeNode()
	p := newTestProvider(t, node, cache.Config{})

	first, err := p.GetBlock(context.Background(), 42)
	require.NoError(t, err)
	second, err := p.GetBlock(context.Background(), 42)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, node.callCount(42))

	cached, ok := p.Cached(42)
	require.True(t, ok)
	assert.Same(t, first, cached)
	_, ok = p.Cached(43)
	assert.False(t, ok)
}

func TestGetBlockDecodesRawData(t *testing.T) {
	node := newFakeNode()
	node.overrides[7] = &models.Block{
		Number: 7,
		Transactions: []models.Transaction{{
			ID: "mixed",
			Actions: []models.Action{
				{Account: "noschema", Name: "doit", Data: models.RawData{0x01, 0x02}},
				{Account: "decentiumorg", Name: "post", Data: models.DecodedData{"title": "Hello World"}},
			},
		}},
	}
	p := newTestProvider(t, node, cache.Config{})

	block, err := p.GetBlock(context.Background(), 7)
	require.NoError(t, err)

	actions := block.Transactions[0].Actions
	assert.Equal(t, models.DecodedData{}, actions[0].Data)
	assert.Equal(t, models.DecodedData{"title": "Hello World"}, actions[1].Data)
}

func TestGetBlockPropagatesTransportError(t *testing.T) {
	node := newFakeNode()
	node.failing = true
	p := newTestProvider(t, node, cache.Config{})

	_, err := p.GetBlock(context.Background(), 1)
	assert.EqualError(t, err, "node unavailable")
	assert.Zero(t, p.Cache().Len())
}

// flakySchemas fails its first `failures` fetches, then serves an endorse{v:uint8} schema.
type flakySchemas struct {
	mu       sync.Mutex
	failures int
	calls    int
}

func (f *flakySchemas) GetABI(context.Context, string) (*abi.ABI, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return nil, context.DeadlineExceeded
	}
	return &abi.ABI{
		Structs: []abi.StructDef{{Name: "endorse", Fields: []abi.FieldDef{{Name: "v", Type: "uint8"}}}},
		Actions: []abi.ActionDef{{Name: "endorse", Type: "endorse"}},
	}, nil
}

func TestGetBlockSchemaFetchErrorNotCached(t *testing.T) {
	node := newFakeNode()
	node.overrides[7] = &models.Block{
		Number: 7,
		Transactions: []models.Transaction{{
			ID:      "endorsement",
			Actions: []models.Action{{Account: "decentiumorg", Name: "endorse", Data: models.RawData{0x05}}},
		}},
	}
	schemas := &flakySchemas{failures: 1}
	p, err := New(node, abi.NewDecoder(schemas, nil, nil, nil), cache.Config{}, nil, nil)
	require.NoError(t, err)

	_, err = p.GetBlock(context.Background(), 7)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	_, ok := p.Cached(7)
	assert.False(t, ok, "partially decoded block must not be cached")
	_, ok = p.Index().Lookup("endorsement")
	assert.False(t, ok)

	block, err := p.GetBlock(context.Background(), 7)
	require.NoError(t, err)
	data, ok := block.Transactions[0].Actions[0].Decoded()
	require.True(t, ok)
	assert.EqualValues(t, 5, data["v"])
	assert.Equal(t, 2, node.callCount(7))
	assert.Equal(t, 2, schemas.calls)
}

func TestGetTransactionDriftTolerance(t *testing.T) {
	const actual = uint32(100)
	txID := "tx-100-1"

	cases := []struct {
		name      string
		reference uint32
		wantErr   error
	}{
		{name: "exact block", reference: actual},
		{name: "one after", reference: actual + 1},
		{name: "one before", reference: actual - 1},
		{name: "two before", reference: actual - 2},
		{name: "two after", reference: actual + 2},
		{name: "three before", reference: actual - 3, wantErr: ErrNotFound},
		{name: "three after", reference: actual + 3, wantErr: ErrNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			node := newFakeNode()
			// Only the real block carries the transaction.
			for n := actual - 6; n <= actual+6; n++ {
				if n != actual {
					node.overrides[n] = &models.Block{Number: n, Transactions: []models.Transaction{{ID: fmt.Sprintf("other-%d", n)}}}
				}
			}
			p := newTestProvider(t, node, cache.Config{})

			tx, err := p.GetTransaction(context.Background(), txID, tc.reference)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				assert.Contains(t, err.Error(), txID)
				assert.Equal(t, 5, node.totalCalls())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, txID, tx.ID)

			num, ok := p.Index().Lookup(txID)
			require.True(t, ok)
			assert.Equal(t, actual, num)
		})
	}
}

func TestGetTransactionProbeOrder(t *testing.T) {
	node := newFakeNode()
	p := newTestProvider(t, node, cache.Config{})

	// tx-51-0 is in 51, which is the first probe after 50.
	_, err := p.GetTransaction(context.Background(), "tx-51-0", 50)
	require.NoError(t, err)
	assert.Equal(t, 1, node.callCount(50))
	assert.Equal(t, 1, node.callCount(51))
	assert.Zero(t, node.callCount(49))
}

func TestGetTransactionStopsAtFailingCandidate(t *testing.T) {
	node := newFakeNode()
	node.broken[101] = true
	p := newTestProvider(t, node, cache.Config{})

	// tx-98-0 lives two blocks below the reference, after the failing +1 probe.
	_, err := p.GetTransaction(context.Background(), "tx-98-0", 100)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.EqualError(t, err, "unknown block 101")
	assert.Equal(t, 1, node.callCount(100))
	assert.Equal(t, 1, node.callCount(101))
	assert.Zero(t, node.callCount(99))
	assert.Zero(t, node.callCount(98))

	// A failing block beyond the match is never reached.
	tx, err := p.GetTransaction(context.Background(), "tx-100-1", 100)
	require.NoError(t, err)
	assert.Equal(t, "tx-100-1", tx.ID)
}

func TestGetTransactionSkipsBlocksBelowOne(t *testing.T) {
	node := newFakeNode()
	p := newTestProvider(t, node, cache.Config{})

	_, err := p.GetTransaction(context.Background(), "missing", 1)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, node.callCount(0))
	assert.Equal(t, 1, node.callCount(1))
	assert.Equal(t, 1, node.callCount(2))
	assert.Equal(t, 1, node.callCount(3))
	assert.Equal(t, 3, node.totalCalls())
}

func TestGetTransactionUsesIndex(t *testing.T) {
	node := newFakeNode()
	p := newTestProvider(t, node, cache.Config{})

	_, err := p.GetBlock(context.Background(), 10)
	require.NoError(t, err)

	// A wildly wrong reference still resolves from the index without fetching.
	tx, err := p.GetTransaction(context.Background(), "tx-10-0", 5000)
	require.NoError(t, err)
	assert.Equal(t, "tx-10-0", tx.ID)
	assert.Equal(t, 1, node.totalCalls())
}

func TestGetTransactionAfterCapacityEviction(t *testing.T) {
	node := newFakeNode()
	p := newTestProvider(t, node, cache.Config{MaxBlocks: 2})

	_, err := p.GetTransaction(context.Background(), "tx-1-0", 1)
	require.NoError(t, err)
	_, err = p.GetBlock(context.Background(), 2)
	require.NoError(t, err)
	_, err = p.GetBlock(context.Background(), 3)
	require.NoError(t, err)

	_, ok := p.Index().Lookup("tx-1-0")
	assert.False(t, ok, "evicted block must leave the index")
	assertIndexContained(t, p)

	_, err = p.GetTransaction(context.Background(), "tx-1-0", 1)
	require.NoError(t, err)
	assert.Equal(t, 2, node.callCount(1), "evicted block is fetched again")
}

func TestGetTransactionAfterAgePrune(t *testing.T) {
	node := newFakeNode()
	p := newTestProvider(t, node, cache.Config{})

	_, err := p.GetTransaction(context.Background(), "tx-60151692-0", 60151692)
	require.NoError(t, err)
	_, err = p.GetTransaction(context.Background(), "tx-60151692-0", 60151692)
	require.NoError(t, err)
	assert.Equal(t, 1, node.callCount(60151692))

	p.Cache().SetMaxAge(time.Nanosecond)
	time.Sleep(time.Millisecond)
	assert.Equal(t, 1, p.Cache().Prune())
	assert.Zero(t, p.Index().Len())

	node.mu.Lock()
	node.failing = true
	node.mu.Unlock()
	_, err = p.GetTransaction(context.Background(), "tx-60151692-0", 60151692)
	assert.EqualError(t, err, "node unavailable")
}

func TestConcurrentResolutionKeepsIndexContained(t *testing.T) {
	node := newFakeNode()
	p := newTestProvider(t, node, cache.Config{MaxBlocks: 8})

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				num := uint32(1 + (w*7+i*3)%40)
				_, err := p.GetTransaction(context.Background(), fmt.Sprintf("tx-%d-1", num), num)
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()

	assert.LessOrEqual(t, p.Cache().Len(), 8)
	assertIndexContained(t, p)
}

// assertIndexContained checks that every indexed transaction is in a cached block.
func assertIndexContained(t *testing.T, p *Provider) {
	t.Helper()
	for num := uint32(0); num <= 64; num++ {
		for i := 0; i < 2; i++ {
			id := fmt.Sprintf("tx-%d-%d", num, i)
			indexed, ok := p.Index().Lookup(id)
			if !ok {
				continue
			}
			block, ok := p.Cached(indexed)
			if assert.True(t, ok, "index points at uncached block %d", indexed) {
				_, found := block.Transaction(id)
				assert.True(t, found)
			}
		}
	}
}

func TestChainBounds(t *testing.T) {
	cases := []struct {
		name     string
		earliest uint32
		want     uint32
	}{
		{"full history", 0, 1},
		{"pruned node", 28566001, 28566001},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			node := newFakeNode()
			node.earliest = tc.earliest
			p := newTestProvider(t, node, cache.Config{})

			earliest, err := p.EarliestBlock(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tc.want, earliest)

			head, err := p.HeadBlock(context.Background())
			require.NoError(t, err)
			assert.Equal(t, uint32(1000), head)
		})
	}
}
