package notebook

import (
	"context"
	"errors"
)

// ErrBlockNotFound is returned when a block ID does not exist.
var ErrBlockNotFound = errors.New("block not found")

// BlockRepository persists blocks. The graph engine owns dependency and
// ordering semantics; the repository only stores what it is handed.
type BlockRepository interface {

	// GetBlock returns the block with the given ID, or ErrBlockNotFound.
	GetBlock(ctx context.Context, id string) (*Block, error)

	// PutBlock inserts or replaces a block.
	PutBlock(ctx context.Context, block *Block) error

	// DeleteBlock removes a block. Deleting a missing block returns
	// ErrBlockNotFound.
	DeleteBlock(ctx context.Context, id string) error

	// ListBlocks returns all blocks in a project ordered by ordinal.
	ListBlocks(ctx context.Context, projectID string) ([]*Block, error)
}
