package btree

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// nodeKind identifies the logical contents of a block, the generalization
// of the teacher's pageKind enum (pageKindUnallocated/Header/Leaf/Internal
// in page.go) to all five kinds spec.md names. kindUnallocated is the zero
// value so a freshly zero-filled block reads as unallocated by default.
type nodeKind uint8

const (
	kindUnallocated nodeKind = iota
	kindSuperblock
	kindRoot
	kindInterior
	kindLeaf
)

func (k nodeKind) String() string {
	switch k {
	case kindUnallocated:
		return "UNALLOCATED"
	case kindSuperblock:
		return "SUPERBLOCK"
	case kindRoot:
		return "ROOT"
	case kindInterior:
		return "INTERIOR"
	case kindLeaf:
		return "LEAF"
	default:
		return "UNKNOWN"
	}
}

// Header byte layout, little-endian throughout (the same endianness the
// teacher's leaf_page.go uses for its cell lengths and counters):
//
//	offset  0: kind          (1 byte)
//	offset  1: keySize       (4 bytes)
//	offset  5: valueSize     (4 bytes)
//	offset  9: blockSize     (4 bytes)
//	offset 13: numKeys       (4 bytes)
//	offset 17: rootBlock     (4 bytes)
//	offset 21: freelistHead  (4 bytes)
const (
	headerSize = 25
	ptrSize    = 4

	offKind         = 0
	offKeySize      = 1
	offValueSize    = 5
	offBlockSize    = 9
	offNumKeys      = 13
	offRootBlock    = 17
	offFreelistHead = 21
)

// node is a typed, bounds-checked view over a fixed-size block buffer. It
// never resizes the underlying buffer and never allocates a new one;
// numKeys is the sole authority for logical length, exactly as spec.md
// §4.1 requires. This replaces the teacher's leafPage/internalPage pair
// (which only understood variable-length, scanned cells) with a single
// type covering all five node kinds via arithmetic slot addressing, since
// this engine's keys and values are fixed-width.
type node struct {
	data []byte
}

func newNode(blockSize uint32) *node {
	return &node{data: make([]byte, blockSize)}
}

func wrapNode(data []byte) *node {
	return &node{data: data}
}

func (n *node) bytes() []byte { return n.data }

func (n *node) kind() nodeKind { return nodeKind(n.data[offKind]) }
func (n *node) setKind(k nodeKind) { n.data[offKind] = byte(k) }

func (n *node) keySize() uint32   { return binary.LittleEndian.Uint32(n.data[offKeySize:]) }
func (n *node) setKeySize(v uint32) { binary.LittleEndian.PutUint32(n.data[offKeySize:], v) }

func (n *node) valueSize() uint32   { return binary.LittleEndian.Uint32(n.data[offValueSize:]) }
func (n *node) setValueSize(v uint32) { binary.LittleEndian.PutUint32(n.data[offValueSize:], v) }

func (n *node) blockSize() uint32   { return binary.LittleEndian.Uint32(n.data[offBlockSize:]) }
func (n *node) setBlockSize(v uint32) { binary.LittleEndian.PutUint32(n.data[offBlockSize:], v) }

func (n *node) numKeys() uint32   { return binary.LittleEndian.Uint32(n.data[offNumKeys:]) }
func (n *node) setNumKeys(v uint32) { binary.LittleEndian.PutUint32(n.data[offNumKeys:], v) }

func (n *node) rootBlock() uint32   { return binary.LittleEndian.Uint32(n.data[offRootBlock:]) }
func (n *node) setRootBlock(v uint32) { binary.LittleEndian.PutUint32(n.data[offRootBlock:], v) }

func (n *node) freelistHead() uint32 { return binary.LittleEndian.Uint32(n.data[offFreelistHead:]) }
func (n *node) setFreelistHead(v uint32) {
	binary.LittleEndian.PutUint32(n.data[offFreelistHead:], v)
}

// initHeader stamps a fresh header of the given kind with the given key/
// value/block sizes (so every node in an attached tree agrees on those
// store-wide constants, as spec.md §3 requires), zero keys, and zeroed
// root/freelist fields, which callers set afterwards.
func (n *node) initHeader(kind nodeKind, keySize, valueSize, blockSize uint32) {
	n.setKind(kind)
	n.setKeySize(keySize)
	n.setValueSize(valueSize)
	n.setBlockSize(blockSize)
	n.setNumKeys(0)
	n.setRootBlock(0)
	n.setFreelistHead(0)
}

// leafSlots returns leaf_slots per spec.md §3: the maximum numKeys for a
// LEAF node given this node's key/value/block sizes.
func (n *node) leafSlots() uint32 {
	return leafSlotsFor(n.blockSize(), n.keySize(), n.valueSize())
}

func leafSlotsFor(blockSize, keySize, valueSize uint32) uint32 {
	return (blockSize - headerSize) / (keySize + valueSize)
}

// interiorSlots returns interior_slots per spec.md §3: the maximum numKeys
// for a ROOT/INTERIOR node given this node's key/block sizes.
func (n *node) interiorSlots() uint32 {
	return interiorSlotsFor(n.blockSize(), n.keySize())
}

func interiorSlotsFor(blockSize, keySize uint32) uint32 {
	return (blockSize - headerSize - ptrSize) / (keySize + ptrSize)
}

// --- leaf accessors ---

func (n *node) leafSlotOffset(i uint32) uint32 {
	return headerSize + i*(n.keySize()+n.valueSize())
}

func (n *node) getKey(i uint32) ([]byte, error) {
	if i >= n.numKeys() {
		return nil, errors.Wrapf(ErrBufferRange, "getKey(%d): numKeys=%d", i, n.numKeys())
	}
	off := n.leafSlotOffset(i)
	return n.data[off : off+n.keySize()], nil
}

func (n *node) setKey(i uint32, key []byte) error {
	if i >= n.numKeys() {
		return errors.Wrapf(ErrBufferRange, "setKey(%d): numKeys=%d", i, n.numKeys())
	}
	if uint32(len(key)) != n.keySize() {
		return errors.Wrapf(ErrBufferRange, "setKey(%d): key is %d bytes, want %d", i, len(key), n.keySize())
	}
	off := n.leafSlotOffset(i)
	copy(n.data[off:off+n.keySize()], key)
	return nil
}

func (n *node) getVal(i uint32) ([]byte, error) {
	if i >= n.numKeys() {
		return nil, errors.Wrapf(ErrBufferRange, "getVal(%d): numKeys=%d", i, n.numKeys())
	}
	off := n.leafSlotOffset(i) + n.keySize()
	return n.data[off : off+n.valueSize()], nil
}

func (n *node) setVal(i uint32, val []byte) error {
	if i >= n.numKeys() {
		return errors.Wrapf(ErrBufferRange, "setVal(%d): numKeys=%d", i, n.numKeys())
	}
	if uint32(len(val)) != n.valueSize() {
		return errors.Wrapf(ErrBufferRange, "setVal(%d): value is %d bytes, want %d", i, len(val), n.valueSize())
	}
	off := n.leafSlotOffset(i) + n.keySize()
	copy(n.data[off:off+n.valueSize()], val)
	return nil
}

// keyval is a plain key/value pair, ordinary value semantics per spec.md
// §9 (no placement-construction reassignment as in the original source).
type keyval struct {
	key []byte
	val []byte
}

func (n *node) getKeyVal(i uint32) (keyval, error) {
	key, err := n.getKey(i)
	if err != nil {
		return keyval{}, err
	}
	val, err := n.getVal(i)
	if err != nil {
		return keyval{}, err
	}
	kv := keyval{key: make([]byte, len(key)), val: make([]byte, len(val))}
	copy(kv.key, key)
	copy(kv.val, val)
	return kv, nil
}

func (n *node) setKeyVal(i uint32, kv keyval) error {
	if err := n.setKey(i, kv.key); err != nil {
		return err
	}
	return n.setVal(i, kv.val)
}

// --- interior/root accessors ---

func (n *node) interiorPtrOffset(i uint32) uint32 {
	return headerSize + i*(ptrSize+n.keySize())
}

func (n *node) interiorKeyOffset(i uint32) uint32 {
	return n.interiorPtrOffset(i) + ptrSize
}

func (n *node) getPtr(i uint32) (uint32, error) {
	if i > n.numKeys() {
		return 0, errors.Wrapf(ErrBufferRange, "getPtr(%d): numKeys=%d", i, n.numKeys())
	}
	off := n.interiorPtrOffset(i)
	return binary.LittleEndian.Uint32(n.data[off:]), nil
}

func (n *node) setPtr(i uint32, ptr uint32) error {
	if i > n.numKeys() {
		return errors.Wrapf(ErrBufferRange, "setPtr(%d): numKeys=%d", i, n.numKeys())
	}
	off := n.interiorPtrOffset(i)
	binary.LittleEndian.PutUint32(n.data[off:], ptr)
	return nil
}

func (n *node) getInteriorKey(i uint32) ([]byte, error) {
	if i >= n.numKeys() {
		return nil, errors.Wrapf(ErrBufferRange, "getInteriorKey(%d): numKeys=%d", i, n.numKeys())
	}
	off := n.interiorKeyOffset(i)
	return n.data[off : off+n.keySize()], nil
}

func (n *node) setInteriorKey(i uint32, key []byte) error {
	if i >= n.numKeys() {
		return errors.Wrapf(ErrBufferRange, "setInteriorKey(%d): numKeys=%d", i, n.numKeys())
	}
	if uint32(len(key)) != n.keySize() {
		return errors.Wrapf(ErrBufferRange, "setInteriorKey(%d): key is %d bytes, want %d", i, len(key), n.keySize())
	}
	off := n.interiorKeyOffset(i)
	copy(n.data[off:off+n.keySize()], key)
	return nil
}
