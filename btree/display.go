package btree

import (
	"encoding/hex"
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// Display writes a traversal of the tree to w in the requested mode
// (spec.md §4.5): Depth and DepthDot both walk every node top-down,
// SortedKeyVal walks leaves only, left to right, emitting nothing for
// ROOT/INTERIOR nodes.
func (ix *Index) Display(w io.Writer, mode DisplayMode) error {
	if mode == DepthDot {
		fmt.Fprintln(w, "digraph tree {")
	}
	if err := ix.displayNode(w, ix.rootBlock, mode); err != nil {
		return err
	}
	if mode == DepthDot {
		fmt.Fprintln(w, "}")
	}
	return nil
}

// displayNode prints one node and then recurses on its children
// (original_source/btree_display.cc's DisplayInternal). An empty,
// never-materialized root (spec.md §4.4.1 step 1) has no real child to
// descend into, so it is printed alone rather than followed into the
// lazy-materialization sentinel.
func (ix *Index) displayNode(w io.Writer, blockNum uint32, mode DisplayMode) error {
	nd, err := ix.readNode(blockNum)
	if err != nil {
		return err
	}

	if err := printNode(w, blockNum, nd, mode); err != nil {
		return err
	}

	switch nd.kind() {
	case kindRoot, kindInterior:
		if nd.kind() == kindRoot && nd.numKeys() == 0 {
			ptr0, err := nd.getPtr(0)
			if err != nil {
				return err
			}
			if rootNeedsMaterialization(ix.rootBlock, ptr0) {
				return nil
			}
		}
		for i := uint32(0); i <= nd.numKeys(); i++ {
			ptr, err := nd.getPtr(i)
			if err != nil {
				return err
			}
			if mode == DepthDot {
				fmt.Fprintf(w, "%d -> %d;\n", blockNum, ptr)
			}
			if err := ix.displayNode(w, ptr, mode); err != nil {
				return err
			}
		}
		return nil

	case kindLeaf:
		return nil

	default:
		return errors.Wrapf(ErrInsane, "displayNode: block %d has kind %s", blockNum, nd.kind())
	}
}

// printNode renders a single node's line, mirroring
// original_source/btree_display.cc's PrintNode across all three modes.
func printNode(w io.Writer, blockNum uint32, nd *node, mode DisplayMode) error {
	switch mode {
	case DepthDot:
		fmt.Fprintf(w, "%d [ label=\"%d: ", blockNum, blockNum)
	case Depth:
		fmt.Fprintf(w, "%d: ", blockNum)
	}

	switch nd.kind() {
	case kindRoot, kindInterior:
		if mode != SortedKeyVal {
			if mode != DepthDot {
				fmt.Fprint(w, "Interior: ")
			}
			for i := uint32(0); i <= nd.numKeys(); i++ {
				ptr, err := nd.getPtr(i)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "*%d ", ptr)
				if i == nd.numKeys() {
					break
				}
				key, err := nd.getInteriorKey(i)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s ", hex.EncodeToString(key))
			}
		}

	case kindLeaf:
		if mode != DepthDot && mode != SortedKeyVal {
			fmt.Fprint(w, "Leaf: ")
		}
		for i := uint32(0); i < nd.numKeys(); i++ {
			if mode == SortedKeyVal {
				fmt.Fprint(w, "(")
			}
			key, err := nd.getKey(i)
			if err != nil {
				return err
			}
			fmt.Fprint(w, hex.EncodeToString(key))
			if mode == SortedKeyVal {
				fmt.Fprint(w, ",")
			} else {
				fmt.Fprint(w, " ")
			}
			val, err := nd.getVal(i)
			if err != nil {
				return err
			}
			fmt.Fprint(w, hex.EncodeToString(val))
			if mode == SortedKeyVal {
				fmt.Fprint(w, ")\n")
			} else {
				fmt.Fprint(w, " ")
			}
		}

	default:
		if mode == DepthDot {
			fmt.Fprintf(w, "Unknown(%s)", nd.kind())
		} else {
			fmt.Fprintf(w, "Unsupported Node Type %s", nd.kind())
		}
	}

	if mode == DepthDot {
		fmt.Fprint(w, "\" ];")
	}
	if mode != SortedKeyVal {
		fmt.Fprintln(w)
	}
	return nil
}
