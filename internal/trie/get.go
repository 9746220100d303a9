package trie

import (
	"github.com/paprikadb/paprika/internal/nibble"
	"github.com/paprikadb/paprika/internal/page"
	"github.com/paprikadb/paprika/internal/slotted"
)

// TryGet looks up key starting at root, descending iteratively: local
// map first at every node, then either the overflow page (leaf mode)
// or the matching child (fan-out mode).
func TryGet(batch ReadBatch, root page.Address, key nibble.Path) ([]byte, bool) {
	addr := root
	curKey := key

	for addr != page.Null {
		node := Node{Page: batch.GetPage(addr)}

		if v, ok := node.Local().TryGet(curKey); ok {
			return v, true
		}

		if node.Mode() == ModeLeaf {
			overflow := node.OverflowAddr()
			if overflow == page.Null {
				return nil, false
			}
			op := batch.GetPage(overflow)
			return slotted.New(op.Payload()).TryGet(curKey)
		}

		if curKey.Len() == 0 {
			return nil, false
		}
		addr = node.Bucket(curKey.Get(0))
		curKey = curKey.SliceFrom(1)
	}
	return nil, false
}
