package btree

import "bytes"

// keyLess and keyEqual are the engine's sole comparison primitives
// (spec.md §4.1): strict total ordering on the opaque key bytes, using
// only < and ==. Tie-breaking never matters because duplicate insertion
// always fails with ErrConflict.
func keyLess(a, b []byte) bool {
	return bytes.Compare(a, b) < 0
}

func keyEqual(a, b []byte) bool {
	return bytes.Equal(a, b)
}

// findChildPtr implements the ROOT/INTERIOR child-selection rule shared by
// lookup, update, and insert descent (spec.md §4.3, §4.4.1): recurse into
// the pointer immediately to the left of the first separator key greater
// than the search key, or the rightmost pointer if no such key exists.
// Using one rule for both lookup and insert descent keeps duplicate
// detection correct regardless of which side of a promoted separator a
// matching key ends up on.
func findChildPtr(nd *node, key []byte) (uint32, error) {
	for i := uint32(0); i < nd.numKeys(); i++ {
		testKey, err := nd.getInteriorKey(i)
		if err != nil {
			return 0, err
		}
		if keyLess(key, testKey) {
			return nd.getPtr(i)
		}
	}
	return nd.getPtr(nd.numKeys())
}
