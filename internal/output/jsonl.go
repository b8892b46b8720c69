package output

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/decentium/decentium-go/internal/models"
)

var _ OutputHandler = (*JSONLinesHandler)(nil)

// JSONLinesHandler writes one JSON action record per line. Block bookkeeping
// is kept in memory for the life of the handler.
type JSONLinesHandler struct {
	mu      sync.Mutex
	w       io.Writer
	enc     *json.Encoder
	written map[uint32]struct{}
	latest  uint32
}

// NewJSONLinesHandler writes to w. If w is an io.Closer, Close closes it.
func NewJSONLinesHandler(w io.Writer) *JSONLinesHandler {
	return &JSONLinesHandler{
		w:       w,
		enc:     json.NewEncoder(w),
		written: make(map[uint32]struct{}),
	}
}

func (h *JSONLinesHandler) WriteBlock(_ context.Context, block *models.Block) error {
	records, err := Records(block)
	if err != nil {
		return fmt.Errorf("failed to flatten block %d: %w", block.Number, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range records {
		if err := h.enc.Encode(r); err != nil {
			return fmt.Errorf("failed to write action record: %w", err)
		}
	}
	h.written[block.Number] = struct{}{}
	if block.Number > h.latest {
		h.latest = block.Number
	}
	return nil
}

func (h *JSONLinesHandler) GetLatestBlock(context.Context) (uint32, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.latest, nil
}

// GetMissingBlockIds reports gaps between the lowest and highest block written.
func (h *JSONLinesHandler) GetMissingBlockIds(context.Context) ([]uint32, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.written) == 0 {
		return nil, nil
	}
	lowest := h.latest
	for n := range h.written {
		if n < lowest {
			lowest = n
		}
	}
	var missing []uint32
	for n := lowest; n < h.latest; n++ {
		if _, ok := h.written[n]; !ok {
			missing = append(missing, n)
		}
	}
	return missing, nil
}

func (h *JSONLinesHandler) Close() error {
	if c, ok := h.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
