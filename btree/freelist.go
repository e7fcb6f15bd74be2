package btree

import "github.com/pkg/errors"

// allocate pops a block off the freelist, updates and persists the
// superblock's head, and returns the block number. The caller is
// responsible for writing a typed node to the returned block before any
// other reader can observe it (spec.md §4.2).
func (ix *Index) allocate() (uint32, error) {
	n := ix.freelistHead
	if n == 0 {
		return 0, ErrNoSpace
	}

	free, err := ix.readNode(n)
	if err != nil {
		return 0, errors.Wrapf(err, "allocate: read block %d", n)
	}
	if free.kind() != kindUnallocated {
		return 0, errors.Wrapf(ErrInsane, "allocate: block %d is %s, not UNALLOCATED", n, free.kind())
	}

	ix.freelistHead = free.freelistHead()

	if err := ix.persistFreelistHead(); err != nil {
		return 0, err
	}

	ix.store.NotifyAllocate(n)
	ix.logger.Printf("allocate: block=%d newFreelistHead=%d", n, ix.freelistHead)
	return n, nil
}

// deallocate returns block n to the head of the freelist.
func (ix *Index) deallocate(n uint32) error {
	nd, err := ix.readNode(n)
	if err != nil {
		return errors.Wrapf(err, "deallocate: read block %d", n)
	}
	if nd.kind() == kindUnallocated {
		return errors.Wrapf(ErrInsane, "deallocate: block %d is already UNALLOCATED", n)
	}

	nd.setKind(kindUnallocated)
	nd.setFreelistHead(ix.freelistHead)
	if err := ix.writeNode(n, nd); err != nil {
		return errors.Wrapf(err, "deallocate: write block %d", n)
	}

	ix.freelistHead = n
	if err := ix.persistFreelistHead(); err != nil {
		return err
	}

	ix.store.NotifyDeallocate(n)
	ix.logger.Printf("deallocate: block=%d newFreelistHead=%d", n, ix.freelistHead)
	return nil
}

// allocateNode allocates a fresh block and stamps it with a freshly
// initialized header of the given kind, writing it back so the block is
// never observed uninitialized.
func (ix *Index) allocateNode(kind nodeKind) (uint32, *node, error) {
	n, err := ix.allocate()
	if err != nil {
		return 0, nil, err
	}

	nd := newNode(ix.blockSize)
	nd.initHeader(kind, ix.keySize, ix.valueSize, ix.blockSize)
	nd.setRootBlock(ix.rootBlock)
	nd.setFreelistHead(ix.freelistHead)
	if err := ix.writeNode(n, nd); err != nil {
		return 0, nil, errors.Wrapf(err, "allocateNode: initialize block %d", n)
	}

	return n, nd, nil
}

// persistFreelistHead serializes the superblock's freelist head, the only
// field that changes across allocate/deallocate.
func (ix *Index) persistFreelistHead() error {
	sb, err := ix.readNode(superblockIndex)
	if err != nil {
		return errors.Wrap(err, "persist freelist head: read superblock")
	}
	sb.setFreelistHead(ix.freelistHead)
	if err := ix.writeNode(superblockIndex, sb); err != nil {
		return errors.Wrap(err, "persist freelist head: write superblock")
	}
	return nil
}
