// Package btree implements the disk-backed B-tree index engine: block
// layout, traversal, key/value placement, and split propagation across
// root, interior, and leaf levels, built on top of an external
// store.BlockStore.
package btree

import (
	"log"
	"os"

	"github.com/mstenberg/blocktree/store"
	"github.com/pkg/errors"
)

// superblockIndex is fixed: spec.md §6 requires Attach to be called with
// initial_block == 0, so there is no parameter for it — block 0 is always
// the superblock, and the root always lives at block 1.
const superblockIndex uint32 = 0

// DisplayMode selects a traversal format for Index.Display.
type DisplayMode int

const (
	// Depth prints one structural line per node, depth-first.
	Depth DisplayMode = iota
	// DepthDot prints the same traversal as a Graphviz digraph.
	DepthDot
	// SortedKeyVal prints only leaves, in ascending key order.
	SortedKeyVal
)

// Index is the attached B-tree: global parameters cached from the
// superblock, plus the store beneath it. It holds no locks and assumes
// exclusive access to the store for the lifetime of the attachment
// (spec.md §5).
type Index struct {
	store store.BlockStore

	keySize   uint32
	valueSize uint32
	blockSize uint32

	rootBlock    uint32
	freelistHead uint32

	logger *log.Logger
}

// Attach formats the store (when create is true: superblock, root, and a
// full freelist) or reads an existing superblock into memory (when create
// is false). keySize and valueSize are only consulted when create is
// true; otherwise they are read back from the persisted superblock.
func Attach(bs store.BlockStore, keySize, valueSize uint32, create bool) (*Index, error) {
	ix := &Index{
		store:     bs,
		keySize:   keySize,
		valueSize: valueSize,
		blockSize: bs.BlockSize(),
		logger:    log.New(os.Stderr, "btree: ", log.LstdFlags),
	}

	if create {
		if err := ix.format(); err != nil {
			return nil, errors.Wrap(err, "format store")
		}
	}

	sb, err := ix.readNode(superblockIndex)
	if err != nil {
		return nil, errors.Wrap(err, "read superblock")
	}
	if sb.kind() != kindSuperblock {
		return nil, errors.Wrapf(ErrInsane, "block %d is not a superblock (kind=%s)", superblockIndex, sb.kind())
	}

	ix.keySize = sb.keySize()
	ix.valueSize = sb.valueSize()
	ix.blockSize = sb.blockSize()
	ix.rootBlock = sb.rootBlock()
	ix.freelistHead = sb.freelistHead()

	ix.logger.Printf("attached: root=%d freelistHead=%d keySize=%d valueSize=%d", ix.rootBlock, ix.freelistHead, ix.keySize, ix.valueSize)
	return ix, nil
}

// format writes a fresh superblock at block 0, an empty root at block 1,
// and chains every remaining block into the freelist in ascending order —
// exactly original_source/btree.cc's Attach(create=true) loop.
func (ix *Index) format() error {
	numBlocks := ix.store.NumBlocks()
	if numBlocks < 2 {
		return errors.Errorf("store has %d blocks, need at least 2 (superblock + root)", numBlocks)
	}

	sb := newNode(ix.blockSize)
	sb.initHeader(kindSuperblock, ix.keySize, ix.valueSize, ix.blockSize)
	sb.setRootBlock(superblockIndex + 1)
	if numBlocks > 2 {
		sb.setFreelistHead(superblockIndex + 2)
	} else {
		sb.setFreelistHead(0)
	}
	ix.store.NotifyAllocate(superblockIndex)
	if err := ix.writeNode(superblockIndex, sb); err != nil {
		return err
	}

	root := newNode(ix.blockSize)
	root.initHeader(kindRoot, ix.keySize, ix.valueSize, ix.blockSize)
	root.setRootBlock(superblockIndex + 1)
	root.setFreelistHead(sb.freelistHead())
	ix.store.NotifyAllocate(superblockIndex + 1)
	if err := ix.writeNode(superblockIndex+1, root); err != nil {
		return err
	}

	for i := superblockIndex + 2; i < numBlocks; i++ {
		free := newNode(ix.blockSize)
		free.initHeader(kindUnallocated, ix.keySize, ix.valueSize, ix.blockSize)
		free.setRootBlock(superblockIndex + 1)
		next := uint32(0)
		if i+1 != numBlocks {
			next = i + 1
		}
		free.setFreelistHead(next)
		if err := ix.writeNode(i, free); err != nil {
			return err
		}
	}

	return nil
}

// Detach serializes the superblock; all other engine state is
// block-resident and already durable via each operation's writes.
func (ix *Index) Detach() error {
	sb, err := ix.readNode(superblockIndex)
	if err != nil {
		return errors.Wrap(err, "read superblock")
	}
	sb.setRootBlock(ix.rootBlock)
	sb.setFreelistHead(ix.freelistHead)
	if err := ix.writeNode(superblockIndex, sb); err != nil {
		return errors.Wrap(err, "write superblock")
	}
	ix.logger.Printf("detached: root=%d freelistHead=%d", ix.rootBlock, ix.freelistHead)
	return nil
}

func (ix *Index) readNode(n uint32) (*node, error) {
	buf := make([]byte, ix.blockSize)
	if err := ix.store.Read(n, buf); err != nil {
		return nil, errors.Wrapf(err, "read block %d", n)
	}
	return wrapNode(buf), nil
}

func (ix *Index) writeNode(n uint32, nd *node) error {
	if err := ix.store.Write(n, nd.bytes()); err != nil {
		return errors.Wrapf(err, "write block %d", n)
	}
	return nil
}

// Delete is deliberately unimplemented (spec.md §6, a non-goal).
func (ix *Index) Delete(key []byte) error {
	return errors.Wrapf(ErrUnimplemented, "delete")
}

// SanityCheck is deliberately unimplemented (spec.md §6).
func (ix *Index) SanityCheck() error {
	return errors.Wrapf(ErrUnimplemented, "sanity check")
}
