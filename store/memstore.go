package store

import "github.com/pkg/errors"

// MemStore is an in-memory BlockStore, the fast test double used by the
// btree package's unit tests in place of a FileStore — the same role
// dacapoday-smol/bptree/mock.go's deterministic generators play for that
// repo's tests, adapted here to a block-addressed store rather than a
// page-content generator.
type MemStore struct {
	blockSize uint32
	blocks    [][]byte

	numAllocs   uint64
	numDeallocs uint64
}

// NewMemStore allocates numBlocks zero-filled blocks of blockSize bytes.
func NewMemStore(blockSize, numBlocks uint32) *MemStore {
	blocks := make([][]byte, numBlocks)
	for i := range blocks {
		blocks[i] = make([]byte, blockSize)
	}
	return &MemStore{
		blockSize: blockSize,
		blocks:    blocks,
	}
}

func (ms *MemStore) BlockSize() uint32 { return ms.blockSize }
func (ms *MemStore) NumBlocks() uint32 { return uint32(len(ms.blocks)) }

func (ms *MemStore) Read(n uint32, buf []byte) error {
	if n >= uint32(len(ms.blocks)) {
		return errors.Errorf("block %d out of range (numBlocks=%d)", n, len(ms.blocks))
	}
	if uint32(len(buf)) != ms.blockSize {
		return errors.Errorf("read buffer is %d bytes, want %d", len(buf), ms.blockSize)
	}
	copy(buf, ms.blocks[n])
	return nil
}

func (ms *MemStore) Write(n uint32, buf []byte) error {
	if n >= uint32(len(ms.blocks)) {
		return errors.Errorf("block %d out of range (numBlocks=%d)", n, len(ms.blocks))
	}
	if uint32(len(buf)) != ms.blockSize {
		return errors.Errorf("write buffer is %d bytes, want %d", len(buf), ms.blockSize)
	}
	copy(ms.blocks[n], buf)
	return nil
}

func (ms *MemStore) NotifyAllocate(n uint32)   { ms.numAllocs++ }
func (ms *MemStore) NotifyDeallocate(n uint32) { ms.numDeallocs++ }
