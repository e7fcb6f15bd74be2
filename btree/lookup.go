package btree

import "github.com/pkg/errors"

// rootNeedsMaterialization reports whether the root's first pointer still
// refers to the lazy-materialization sentinel from spec.md §4.4.1 step 1:
// a root with zero keys whose ptr0 does not point at rootBlock+1 has never
// had its first leaf allocated. Kept behind one helper, as SPEC_FULL.md
// notes, since spec.md §9 flags this sentinel as fragile.
func rootNeedsMaterialization(rootBlock, ptr0 uint32) bool {
	return ptr0 != rootBlock+1
}

// Lookup returns the value associated with key, or ErrNotFound.
func (ix *Index) Lookup(key []byte) ([]byte, error) {
	if err := ix.checkKeySize(key); err != nil {
		return nil, err
	}
	return ix.lookupOrUpdate(ix.rootBlock, key, nil, false)
}

// Update overwrites the value associated with an existing key in place.
// It performs no split and no allocation (spec.md §4.3).
func (ix *Index) Update(key, value []byte) error {
	if err := ix.checkKeySize(key); err != nil {
		return err
	}
	if uint32(len(value)) != ix.valueSize {
		return errors.Wrapf(ErrBufferRange, "update: value is %d bytes, want %d", len(value), ix.valueSize)
	}
	_, err := ix.lookupOrUpdate(ix.rootBlock, key, value, true)
	return err
}

func (ix *Index) checkKeySize(key []byte) error {
	if uint32(len(key)) != ix.keySize {
		return errors.Wrapf(ErrBufferRange, "key is %d bytes, want %d", len(key), ix.keySize)
	}
	return nil
}

// lookupOrUpdate is the shared recursive descent behind Lookup and Update
// (spec.md §4.3). When isUpdate is true the operation is an update: the
// matching leaf slot is overwritten in place with newValue and reserialized.
func (ix *Index) lookupOrUpdate(blockNum uint32, key, newValue []byte, isUpdate bool) ([]byte, error) {
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
				return nil, ErrNotFound
			}
			return ix.lookupOrUpdate(ptr0, key, newValue, isUpdate)
		}
		return ix.descendInterior(nd, key, newValue, isUpdate)

	case kindInterior:
		return ix.descendInterior(nd, key, newValue, isUpdate)

	case kindLeaf:
		for i := uint32(0); i < nd.numKeys(); i++ {
			testKey, err := nd.getKey(i)
			if err != nil {
				return nil, err
			}
			if !keyEqual(testKey, key) {
				continue
			}
			if isUpdate {
				if err := nd.setVal(i, newValue); err != nil {
					return nil, err
				}
				return nil, ix.writeNode(blockNum, nd)
			}
			val, err := nd.getVal(i)
			if err != nil {
				return nil, err
			}
			out := make([]byte, len(val))
			copy(out, val)
			return out, nil
		}
		return nil, ErrNotFound

	default:
		return nil, errors.Wrapf(ErrInsane, "lookupOrUpdate: block %d has kind %s", blockNum, nd.kind())
	}
}

// descendInterior implements the shared ROOT/INTERIOR scan of spec.md
// §4.3, via the same child-selection rule insert descent uses.
func (ix *Index) descendInterior(nd *node, key, newValue []byte, isUpdate bool) ([]byte, error) {
	if nd.numKeys() == 0 {
		return nil, ErrNotFound
	}
	ptr, err := findChildPtr(nd, key)
	if err != nil {
		return nil, err
	}
	return ix.lookupOrUpdate(ptr, key, newValue, isUpdate)
}
