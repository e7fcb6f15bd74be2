package btree

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/mstenberg/blocktree/store"
	"github.com/stretchr/testify/require"
)

// Scenario parameters throughout this file are chosen so that
// leaf_slots == interior_slots == 3, the same capacities spec.md §8's
// scenarios assume. With header_size=25 and ptr_size=4, key_size=2 and
// value_size=4 at block_size=48 give both capacities the value 3
// simultaneously.
const (
	testKeySize   = 2
	testValueSize = 4
	testBlockSize = 48
	testNumBlocks = 100
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	ms := store.NewMemStore(testBlockSize, testNumBlocks)
	ix, err := Attach(ms, testKeySize, testValueSize, true)
	require.NoError(t, err)
	require.EqualValues(t, 3, leafSlotsFor(ix.blockSize, ix.keySize, ix.valueSize))
	require.EqualValues(t, 3, interiorSlotsFor(ix.blockSize, ix.keySize))
	return ix
}

func k(s string) []byte { return []byte(s) }
func v(s string) []byte { return []byte(s) }

func insertScenario2(t *testing.T, ix *Index) {
	t.Helper()
	require.NoError(t, ix.Insert(k("ab"), v("0001")))
	require.NoError(t, ix.Insert(k("cd"), v("0002")))
	require.NoError(t, ix.Insert(k("ef"), v("0003")))
}

func sortedLine(key, val string) string {
	return "(" + hex.EncodeToString([]byte(key)) + "," + hex.EncodeToString([]byte(val)) + ")\n"
}

// --- scenarios (spec.md §8) ---

func TestScenario1_EmptyLookup(t *testing.T) {
	ix := newTestIndex(t)
	_, err := ix.Lookup(k("ab"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestScenario2_InsertThenLookup(t *testing.T) {
	ix := newTestIndex(t)
	insertScenario2(t, ix)

	val, err := ix.Lookup(k("cd"))
	require.NoError(t, err)
	require.Equal(t, v("0002"), val)

	var buf bytes.Buffer
	require.NoError(t, ix.Display(&buf, SortedKeyVal))
	want := sortedLine("ab", "0001") + sortedLine("cd", "0002") + sortedLine("ef", "0003")
	require.Equal(t, want, buf.String())
}

func TestScenario3_Duplicate(t *testing.T) {
	ix := newTestIndex(t)
	insertScenario2(t, ix)

	err := ix.Insert(k("cd"), v("0099"))
	require.ErrorIs(t, err, ErrConflict)

	val, err := ix.Lookup(k("cd"))
	require.NoError(t, err)
	require.Equal(t, v("0002"), val)
}

func TestScenario4_LeafSplit(t *testing.T) {
	ix := newTestIndex(t)
	insertScenario2(t, ix)
	require.NoError(t, ix.Insert(k("gh"), v("0004")))

	root, err := ix.readNode(ix.rootBlock)
	require.NoError(t, err)
	require.Equal(t, uint32(1), root.numKeys())

	sep, err := root.getInteriorKey(0)
	require.NoError(t, err)
	require.Equal(t, k("ef"), sep)

	leftPtr, err := root.getPtr(0)
	require.NoError(t, err)
	rightPtr, err := root.getPtr(1)
	require.NoError(t, err)

	left, err := ix.readNode(leftPtr)
	require.NoError(t, err)
	right, err := ix.readNode(rightPtr)
	require.NoError(t, err)

	require.Equal(t, uint32(2), left.numKeys())
	lk0, _ := left.getKey(0)
	lk1, _ := left.getKey(1)
	require.Equal(t, k("ab"), lk0)
	require.Equal(t, k("cd"), lk1)

	require.Equal(t, uint32(2), right.numKeys())
	rk0, _ := right.getKey(0)
	rk1, _ := right.getKey(1)
	require.Equal(t, k("ef"), rk0)
	require.Equal(t, k("gh"), rk1)
}

func TestScenario5_RootPromotion(t *testing.T) {
	ix := newTestIndex(t)
	keys := []string{"aa", "bb", "cc", "dd", "ee", "ff", "gg", "hh", "ii", "jj"}
	for i, key := range keys {
		require.NoError(t, ix.Insert(k(key), v(padValue(i))))
	}

	root, err := ix.readNode(ix.rootBlock)
	require.NoError(t, err)
	require.Equal(t, kindRoot, root.kind())
	require.Equal(t, uint32(1), root.numKeys())

	ptr0, err := root.getPtr(0)
	require.NoError(t, err)
	child0, err := ix.readNode(ptr0)
	require.NoError(t, err)
	require.Equal(t, kindInterior, child0.kind())

	depths := leafDepths(t, ix)
	require.NotEmpty(t, depths)
	for _, d := range depths {
		require.Equal(t, depths[0], d)
	}
	require.Equal(t, 2, depths[0])

	checkTreeInvariants(t, ix, ix.rootBlock, nil, nil)
}

func TestScenario6_Update(t *testing.T) {
	ix := newTestIndex(t)
	insertScenario2(t, ix)

	require.NoError(t, ix.Update(k("ab"), v("ZZZZ")))
	val, err := ix.Lookup(k("ab"))
	require.NoError(t, err)
	require.Equal(t, v("ZZZZ"), val)

	root, err := ix.readNode(ix.rootBlock)
	require.NoError(t, err)
	require.Equal(t, uint32(0), root.numKeys())
}

func padValue(i int) string {
	digits := "0123456789"
	return "v0" + string(digits[i]) + "!"
}

// --- invariants (spec.md §8) ---

func TestInvariant_RootBlockNeverChanges(t *testing.T) {
	ix := newTestIndex(t)
	require.Equal(t, superblockIndex+1, ix.rootBlock)

	for _, key := range []string{"aa", "bb", "cc", "dd", "ee", "ff", "gg", "hh"} {
		require.NoError(t, ix.Insert(k(key), v("xxxx")))
		require.Equal(t, superblockIndex+1, ix.rootBlock)
	}
}

func TestInvariant_BlockOwnershipPartition(t *testing.T) {
	ix := newTestIndex(t)
	for i, key := range []string{"aa", "bb", "cc", "dd", "ee", "ff", "gg", "hh", "ii", "jj"} {
		require.NoError(t, ix.Insert(k(key), v(padValue(i))))
	}

	reachable := reachableBlocks(t, ix)
	free := freelistBlocks(t, ix)

	for n := uint32(0); n < testNumBlocks; n++ {
		_, inReachable := reachable[n]
		_, inFree := free[n]
		isSuperblock := n == superblockIndex
		count := 0
		if inReachable {
			count++
		}
		if inFree {
			count++
		}
		if isSuperblock {
			count++
		}
		require.Equal(t, 1, count, "block %d must be in exactly one of {superblock, reachable, freelist}", n)
	}
}

func TestLaw_ConflictLeavesTreeUnchanged(t *testing.T) {
	ix := newTestIndex(t)
	insertScenario2(t, ix)

	before := snapshotBlocks(t, ix)
	require.ErrorIs(t, ix.Insert(k("cd"), v("9999")), ErrConflict)
	after := snapshotBlocks(t, ix)

	require.Equal(t, before, after)
}

func TestLaw_SplitPromotionDeterministic(t *testing.T) {
	// cap+1 = 4 distinct keys into an empty index causes exactly one
	// leaf split; separator is the first key of the right half, at 0-based
	// index ceil(4/2)=2 of the sorted keys.
	ix := newTestIndex(t)
	for i, key := range []string{"aa", "bb", "cc", "dd"} {
		require.NoError(t, ix.Insert(k(key), v(padValue(i))))
	}

	root, err := ix.readNode(ix.rootBlock)
	require.NoError(t, err)
	require.Equal(t, uint32(1), root.numKeys())
	sep, err := root.getInteriorKey(0)
	require.NoError(t, err)
	require.Equal(t, k("cc"), sep)
}

func TestNoSpace(t *testing.T) {
	ms := store.NewMemStore(testBlockSize, 2) // only superblock + root, no free blocks
	ix, err := Attach(ms, testKeySize, testValueSize, true)
	require.NoError(t, err)

	err = ix.Insert(k("ab"), v("0001"))
	require.ErrorIs(t, err, ErrNoSpace)
}

// --- test helpers walking the raw tree structure ---

func leafDepths(t *testing.T, ix *Index) []int {
	t.Helper()
	var depths []int
	var walk func(blockNum uint32, depth int)
	walk = func(blockNum uint32, depth int) {
		nd, err := ix.readNode(blockNum)
		require.NoError(t, err)
		switch nd.kind() {
		case kindLeaf:
			depths = append(depths, depth)
		case kindRoot, kindInterior:
			if nd.kind() == kindRoot && nd.numKeys() == 0 {
				return
			}
			for i := uint32(0); i <= nd.numKeys(); i++ {
				ptr, err := nd.getPtr(i)
				require.NoError(t, err)
				walk(ptr, depth+1)
			}
		}
	}
	walk(ix.rootBlock, 0)
	return depths
}

func reachableBlocks(t *testing.T, ix *Index) map[uint32]bool {
	t.Helper()
	seen := map[uint32]bool{}
	var walk func(blockNum uint32)
	walk = func(blockNum uint32) {
		if seen[blockNum] {
			return
		}
		seen[blockNum] = true
		nd, err := ix.readNode(blockNum)
		require.NoError(t, err)
		if nd.kind() != kindRoot && nd.kind() != kindInterior {
			return
		}
		if nd.kind() == kindRoot && nd.numKeys() == 0 {
			ptr0, err := nd.getPtr(0)
			require.NoError(t, err)
			if rootNeedsMaterialization(ix.rootBlock, ptr0) {
				return
			}
		}
		for i := uint32(0); i <= nd.numKeys(); i++ {
			ptr, err := nd.getPtr(i)
			require.NoError(t, err)
			walk(ptr)
		}
	}
	walk(ix.rootBlock)
	return seen
}

func freelistBlocks(t *testing.T, ix *Index) map[uint32]bool {
	t.Helper()
	seen := map[uint32]bool{}
	n := ix.freelistHead
	for n != 0 {
		require.False(t, seen[n], "freelist cycle at block %d", n)
		seen[n] = true
		nd, err := ix.readNode(n)
		require.NoError(t, err)
		require.Equal(t, kindUnallocated, nd.kind())
		n = nd.freelistHead()
	}
	return seen
}

func snapshotBlocks(t *testing.T, ix *Index) [][]byte {
	t.Helper()
	out := make([][]byte, testNumBlocks)
	for i := uint32(0); i < testNumBlocks; i++ {
		nd, err := ix.readNode(i)
		require.NoError(t, err)
		out[i] = append([]byte(nil), nd.bytes()...)
	}
	return out
}

// checkTreeInvariants recursively verifies spec.md §8 invariants 1, 2, and
// 4 over the subtree rooted at blockNum: strictly increasing keys, every
// leaf key within [lower, upper), and capacity bounds.
func checkTreeInvariants(t *testing.T, ix *Index, blockNum uint32, lower, upper []byte) {
	t.Helper()
	nd, err := ix.readNode(blockNum)
	require.NoError(t, err)

	switch nd.kind() {
	case kindLeaf:
		require.LessOrEqual(t, nd.numKeys(), nd.leafSlots())
		var prev []byte
		for i := uint32(0); i < nd.numKeys(); i++ {
			key, err := nd.getKey(i)
			require.NoError(t, err)
			if prev != nil {
				require.True(t, keyLess(prev, key), "leaf keys not strictly increasing")
			}
			if lower != nil {
				require.False(t, keyLess(key, lower), "leaf key below lower bound")
			}
			if upper != nil {
				require.True(t, keyLess(key, upper), "leaf key not below upper bound")
			}
			prev = key
		}

	case kindRoot, kindInterior:
		require.LessOrEqual(t, nd.numKeys(), nd.interiorSlots())
		if nd.kind() == kindRoot && nd.numKeys() == 0 {
			return
		}
		n := nd.numKeys()
		var prevKey []byte
		for i := uint32(0); i < n; i++ {
			key, err := nd.getInteriorKey(i)
			require.NoError(t, err)
			if prevKey != nil {
				require.True(t, keyLess(prevKey, key), "interior keys not strictly increasing")
			}
			prevKey = key
		}
		for i := uint32(0); i <= n; i++ {
			ptr, err := nd.getPtr(i)
			require.NoError(t, err)
			lo, hi := lower, upper
			if i > 0 {
				key, err := nd.getInteriorKey(i - 1)
				require.NoError(t, err)
				lo = key
			}
			if i < n {
				key, err := nd.getInteriorKey(i)
				require.NoError(t, err)
				hi = key
			}
			checkTreeInvariants(t, ix, ptr, lo, hi)
		}
	}
}
