package notebook

import (
	"context"
	"sort"
	"sync"
)

// MemoryBlockRepository is an in-memory BlockRepository. It is safe for
// concurrent use and returns copies, so callers can mutate results freely.
type MemoryBlockRepository struct {
	mu     sync.RWMutex
	blocks map[string]*Block
}

func NewMemoryBlockRepository() *MemoryBlockRepository {
	return &MemoryBlockRepository{blocks: map[string]*Block{}}
}

func (r *MemoryBlockRepository) GetBlock(ctx context.Context, id string) (*Block, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	block, ok := r.blocks[id]
	if !ok {
		return nil, ErrBlockNotFound
	}
	return block.Copy(), nil
}

func (r *MemoryBlockRepository) PutBlock(ctx context.Context, block *Block) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blocks[block.ID] = block.Copy()
	return nil
}

func (r *MemoryBlockRepository) DeleteBlock(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.blocks[id]; !ok {
		return ErrBlockNotFound
	}
	delete(r.blocks, id)
	return nil
}

func (r *MemoryBlockRepository) ListBlocks(ctx context.Context, projectID string) ([]*Block, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*Block
	for _, block := range r.blocks {
		if block.ProjectID == projectID {
			result = append(result, block.Copy())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Ordinal != result[j].Ordinal {
			return result[i].Ordinal < result[j].Ordinal
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}
