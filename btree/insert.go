package btree

import "github.com/pkg/errors"

// splitResult is what a recursive insert returns to its caller when the
// node it just wrote to split: the promoted separator key and the new
// sibling's block number (spec.md §4.4.1). A nil result means the insert
// completed with no structural change and nothing more is required of the
// caller.
type splitResult struct {
	key     []byte
	sibling uint32
}

// Insert adds key/value to the tree, propagating splits upward. A
// duplicate key is rejected with ErrConflict by the leaf that already
// holds it; descent through ROOT/INTERIOR nodes does not compare
// separators for equality (spec.md §4.4).
func (ix *Index) Insert(key, value []byte) error {
	if err := ix.checkKeySize(key); err != nil {
		return err
	}
	if uint32(len(value)) != ix.valueSize {
		return errors.Wrapf(ErrBufferRange, "insert: value is %d bytes, want %d", len(value), ix.valueSize)
	}
	_, err := ix.insertDescend(ix.rootBlock, key, value)
	return err
}

// insertDescend implements spec.md §4.4.1's recursive descent. ROOT is
// handled specially: a child split returned from below never propagates
// past the root, because there is no node above it to receive it — a full
// root instead triggers splitRoot (spec.md §4.4.4), which is terminal.
func (ix *Index) insertDescend(blockNum uint32, key, value []byte) (*splitResult, error) {
	nd, err := ix.readNode(blockNum)
	if err != nil {
		return nil, err
	}

	switch nd.kind() {
	case kindRoot:
		if nd.numKeys() == 0 {
			ptr0, err := nd.getPtr(0)
			if err != nil {
				return nil, err
			}
			if rootNeedsMaterialization(ix.rootBlock, ptr0) {
				leafBlock, _, err := ix.allocateNode(kindLeaf)
				if err != nil {
					return nil, err
				}
				if err := nd.setPtr(0, leafBlock); err != nil {
					return nil, err
				}
				if err := ix.writeNode(blockNum, nd); err != nil {
					return nil, err
				}
				ptr0 = leafBlock
				ix.logger.Printf("materialized first leaf: block=%d", leafBlock)
			}

			childSplit, err := ix.insertDescend(ptr0, key, value)
			if err != nil {
				return nil, err
			}
			if childSplit == nil {
				return nil, nil
			}
			return nil, ix.insertKeyPtrIntoRoot(blockNum, nd, childSplit.key, childSplit.sibling)
		}

		ptr, err := findChildPtr(nd, key)
		if err != nil {
			return nil, err
		}
		childSplit, err := ix.insertDescend(ptr, key, value)
		if err != nil {
			return nil, err
		}
		if childSplit == nil {
			return nil, nil
		}
		return nil, ix.insertKeyPtrIntoRoot(blockNum, nd, childSplit.key, childSplit.sibling)

	case kindInterior:
		ptr, err := findChildPtr(nd, key)
		if err != nil {
			return nil, err
		}
		childSplit, err := ix.insertDescend(ptr, key, value)
		if err != nil {
			return nil, err
		}
		if childSplit == nil {
			return nil, nil
		}
		return ix.insertKeyPtrInterior(blockNum, nd, childSplit.key, childSplit.sibling)

	case kindLeaf:
		return ix.insertLeaf(blockNum, nd, key, value)

	default:
		return nil, errors.Wrapf(ErrInsane, "insertDescend: block %d has kind %s", blockNum, nd.kind())
	}
}

// splitHalf returns spec.md §4.4.2's deterministic split midpoint,
// ⌈(capacity+1)/2⌉, for a node whose slot capacity is given.
func splitHalf(capacity uint32) uint32 {
	n := capacity + 1
	return (n + 1) / 2
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// --- leaf insert (spec.md §4.4.2) ---

func (ix *Index) insertLeaf(blockNum uint32, nd *node, key, value []byte) (*splitResult, error) {
	capacity := nd.leafSlots()
	if nd.numKeys() < capacity {
		return nil, ix.insertLeafInPlace(blockNum, nd, key, value)
	}
	return ix.splitLeaf(blockNum, nd, key, value)
}

func (ix *Index) insertLeafInPlace(blockNum uint32, nd *node, key, value []byte) error {
	n := nd.numKeys()
	pos := n
	for i := uint32(0); i < n; i++ {
		testKey, err := nd.getKey(i)
		if err != nil {
			return err
		}
		if keyEqual(testKey, key) {
			return ErrConflict
		}
		if keyLess(key, testKey) {
			pos = i
			break
		}
	}

	nd.setNumKeys(n + 1)
	for i := n; i > pos; i-- {
		kv, err := nd.getKeyVal(i - 1)
		if err != nil {
			return err
		}
		if err := nd.setKeyVal(i, kv); err != nil {
			return err
		}
	}
	if err := nd.setKey(pos, key); err != nil {
		return err
	}
	if err := nd.setVal(pos, value); err != nil {
		return err
	}
	return ix.writeNode(blockNum, nd)
}

func (ix *Index) splitLeaf(blockNum uint32, nd *node, key, value []byte) (*splitResult, error) {
	capacity := nd.leafSlots()
	merged := make([]keyval, 0, capacity+1)
	inserted := false

	for i := uint32(0); i < nd.numKeys(); i++ {
		kv, err := nd.getKeyVal(i)
		if err != nil {
			return nil, err
		}
		if !inserted {
			if keyEqual(kv.key, key) {
				return nil, ErrConflict
			}
			if keyLess(key, kv.key) {
				merged = append(merged, keyval{key: cloneBytes(key), val: cloneBytes(value)})
				inserted = true
			}
		}
		merged = append(merged, kv)
	}
	if !inserted {
		merged = append(merged, keyval{key: cloneBytes(key), val: cloneBytes(value)})
	}

	half := splitHalf(capacity)

	siblingBlock, sibling, err := ix.allocateNode(kindLeaf)
	if err != nil {
		return nil, err
	}

	nd.setNumKeys(half)
	for i := uint32(0); i < half; i++ {
		if err := nd.setKeyVal(i, merged[i]); err != nil {
			return nil, err
		}
	}

	rest := merged[half:]
	sibling.setNumKeys(uint32(len(rest)))
	for i, kv := range rest {
		if err := sibling.setKeyVal(uint32(i), kv); err != nil {
			return nil, err
		}
	}

	if err := ix.writeNode(blockNum, nd); err != nil {
		return nil, err
	}
	if err := ix.writeNode(siblingBlock, sibling); err != nil {
		return nil, err
	}

	ix.logger.Printf("split leaf: original=%d sibling=%d half=%d", blockNum, siblingBlock, half)
	return &splitResult{key: cloneBytes(rest[0].key), sibling: siblingBlock}, nil
}

// --- interior (key, ptr) insert (spec.md §4.4.3) ---

// interiorPair is an existing separator key paired with the pointer to
// its right (the "right-pointer" spec.md §4.4.3 distributes alongside it
// during a split).
type interiorPair struct {
	key      []byte
	rightPtr uint32
}

// mergeInteriorPairs builds the sorted capacity+1 array spec.md §4.4.3 and
// §4.4.4 both describe: the node's existing (key, right-pointer) pairs
// with the new (sep, sibling) pair merged in by key order. Used by both
// ordinary interior splits and root splits, since a root with keys has
// exactly the same interior layout.
func mergeInteriorPairs(nd *node, sep []byte, sibling uint32) ([]interiorPair, error) {
	n := nd.numKeys()
	merged := make([]interiorPair, 0, n+1)
	inserted := false

	for i := uint32(0); i < n; i++ {
		k, err := nd.getInteriorKey(i)
		if err != nil {
			return nil, err
		}
		rp, err := nd.getPtr(i + 1)
		if err != nil {
			return nil, err
		}
		if !inserted {
			if keyEqual(k, sep) {
				return nil, ErrConflict
			}
			if keyLess(sep, k) {
				merged = append(merged, interiorPair{key: cloneBytes(sep), rightPtr: sibling})
				inserted = true
			}
		}
		merged = append(merged, interiorPair{key: cloneBytes(k), rightPtr: rp})
	}
	if !inserted {
		merged = append(merged, interiorPair{key: cloneBytes(sep), rightPtr: sibling})
	}

	return merged, nil
}

// insertKeyPtrInPlace inserts a (sep, sibling) pair into nd without
// splitting: both the ordinary interior case and the root's in-place case
// (spec.md §4.4.3, the non-split branch) share this shift-and-write.
func (ix *Index) insertKeyPtrInPlace(blockNum uint32, nd *node, sep []byte, sibling uint32) error {
	n := nd.numKeys()
	pos := n
	for i := uint32(0); i < n; i++ {
		k, err := nd.getInteriorKey(i)
		if err != nil {
			return err
		}
		if keyEqual(k, sep) {
			return ErrConflict
		}
		if keyLess(sep, k) {
			pos = i
			break
		}
	}

	nd.setNumKeys(n + 1)
	for i := n; i > pos; i-- {
		k, err := nd.getInteriorKey(i - 1)
		if err != nil {
			return err
		}
		if err := nd.setInteriorKey(i, k); err != nil {
			return err
		}
		p, err := nd.getPtr(i)
		if err != nil {
			return err
		}
		if err := nd.setPtr(i+1, p); err != nil {
			return err
		}
	}

	if err := nd.setInteriorKey(pos, sep); err != nil {
		return err
	}
	if err := nd.setPtr(pos+1, sibling); err != nil {
		return err
	}
	return ix.writeNode(blockNum, nd)
}

// insertKeyPtrInterior is spec.md §4.4.3 for an ordinary INTERIOR node:
// in place when there's room, otherwise split and propagate the
// promotion upward.
func (ix *Index) insertKeyPtrInterior(blockNum uint32, nd *node, sep []byte, sibling uint32) (*splitResult, error) {
	if nd.numKeys() < nd.interiorSlots() {
		if err := ix.insertKeyPtrInPlace(blockNum, nd, sep, sibling); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return ix.splitInterior(blockNum, nd, sep, sibling)
}

// insertKeyPtrIntoRoot is the same operation for the ROOT node: in place
// when there's room, otherwise the height-increasing root split
// (spec.md §4.4.4) rather than a propagated sibling, since the root has
// no parent to propagate to.
func (ix *Index) insertKeyPtrIntoRoot(blockNum uint32, nd *node, sep []byte, sibling uint32) error {
	if nd.numKeys() < nd.interiorSlots() {
		return ix.insertKeyPtrInPlace(blockNum, nd, sep, sibling)
	}
	return ix.splitRoot(blockNum, nd, sep, sibling)
}

func (ix *Index) splitInterior(blockNum uint32, nd *node, sep []byte, sibling uint32) (*splitResult, error) {
	capacity := nd.interiorSlots()
	merged, err := mergeInteriorPairs(nd, sep, sibling)
	if err != nil {
		return nil, err
	}
	half := splitHalf(capacity)

	siblingBlock, siblingNode, err := ix.allocateNode(kindInterior)
	if err != nil {
		return nil, err
	}

	nd.setNumKeys(half)
	for i := uint32(0); i < half; i++ {
		if err := nd.setInteriorKey(i, merged[i].key); err != nil {
			return nil, err
		}
		if err := nd.setPtr(i+1, merged[i].rightPtr); err != nil {
			return nil, err
		}
	}

	promoted := merged[half]
	if err := siblingNode.setPtr(0, promoted.rightPtr); err != nil {
		return nil, err
	}
	rest := merged[half+1:]
	siblingNode.setNumKeys(uint32(len(rest)))
	for i, pr := range rest {
		if err := siblingNode.setInteriorKey(uint32(i), pr.key); err != nil {
			return nil, err
		}
		if err := siblingNode.setPtr(uint32(i+1), pr.rightPtr); err != nil {
			return nil, err
		}
	}

	if err := ix.writeNode(blockNum, nd); err != nil {
		return nil, err
	}
	if err := ix.writeNode(siblingBlock, siblingNode); err != nil {
		return nil, err
	}

	ix.logger.Printf("split interior: original=%d sibling=%d half=%d", blockNum, siblingBlock, half)
	return &splitResult{key: promoted.key, sibling: siblingBlock}, nil
}

// splitRoot is spec.md §4.4.4, the only height-increasing step: the root's
// block number never changes, so its current contents are distributed
// into two freshly allocated INTERIOR children and the root is rewritten
// to a single separator pointing at them.
func (ix *Index) splitRoot(blockNum uint32, nd *node, sep []byte, sibling uint32) error {
	capacity := nd.interiorSlots()
	merged, err := mergeInteriorPairs(nd, sep, sibling)
	if err != nil {
		return err
	}
	half := splitHalf(capacity)

	leftBlock, left, err := ix.allocateNode(kindInterior)
	if err != nil {
		return err
	}
	rightBlock, right, err := ix.allocateNode(kindInterior)
	if err != nil {
		return err
	}

	leftmostPtr, err := nd.getPtr(0)
	if err != nil {
		return err
	}
	if err := left.setPtr(0, leftmostPtr); err != nil {
		return err
	}
	left.setNumKeys(half)
	for i := uint32(0); i < half; i++ {
		if err := left.setInteriorKey(i, merged[i].key); err != nil {
			return err
		}
		if err := left.setPtr(i+1, merged[i].rightPtr); err != nil {
			return err
		}
	}

	promoted := merged[half]
	if err := right.setPtr(0, promoted.rightPtr); err != nil {
		return err
	}
	rest := merged[half+1:]
	right.setNumKeys(uint32(len(rest)))
	for i, pr := range rest {
		if err := right.setInteriorKey(uint32(i), pr.key); err != nil {
			return err
		}
		if err := right.setPtr(uint32(i+1), pr.rightPtr); err != nil {
			return err
		}
	}

	if err := ix.writeNode(leftBlock, left); err != nil {
		return err
	}
	if err := ix.writeNode(rightBlock, right); err != nil {
		return err
	}

	nd.setNumKeys(1)
	if err := nd.setInteriorKey(0, promoted.key); err != nil {
		return err
	}
	if err := nd.setPtr(0, leftBlock); err != nil {
		return err
	}
	if err := nd.setPtr(1, rightBlock); err != nil {
		return err
	}

	ix.logger.Printf("split root: left=%d right=%d half=%d", leftBlock, rightBlock, half)
	return ix.writeNode(blockNum, nd)
}
