package cache

import (
	"sync"

	"github.com/decentium/decentium-go/internal/models"
)

// Compile-time check that TxIndex can observe a BlockCache
var _ Observer = (*TxIndex)(nil)

// TxIndex maps transaction ids to the number of the cached block holding them.
type TxIndex struct {
	mu      sync.RWMutex
	entries map[string]uint32
}

// NewTxIndex creates an empty index.
func NewTxIndex() *TxIndex {
	return &TxIndex{entries: make(map[string]uint32)}
}

// Record indexes every transaction of block. A later block claiming the same
// id wins.
func (x *TxIndex) Record(block *models.Block) {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, tx := range block.Transactions {
		x.entries[tx.ID] = block.Number
	}
}

// Forget drops every entry pointing at blockNumber.
func (x *TxIndex) Forget(blockNumber uint32) {
	x.mu.Lock()
	defer x.mu.Unlock()
	for id, number := range x.entries {
		if number == blockNumber {
			delete(x.entries, id)
		}
	}
}

// Lookup returns the block number indexed for txID.
func (x *TxIndex) Lookup(txID string) (uint32, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	number, ok := x.entries[txID]
	return number, ok
}

// Len returns the number of indexed transactions.
func (x *TxIndex) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

// BlockStored implements Observer.
func (x *TxIndex) BlockStored(block *models.Block) {
	x.Record(block)
}

// BlockEvicted implements Observer.
func (x *TxIndex) BlockEvicted(block *models.Block) {
	x.Forget(block.Number)
}
