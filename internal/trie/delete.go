package trie

import (
	"github.com/paprikadb/paprika/internal/nibble"
	"github.com/paprikadb/paprika/internal/page"
	"github.com/paprikadb/paprika/internal/slotted"
)

// DeleteByPrefix removes every entry whose key starts with prefix,
// recursing into each child that may hold a match: the child for
// prefix's first nibble if prefix is non-empty, or every child if
// prefix is empty (a full subtree wipe). *root is updated in place if
// the root page itself needed a copy-on-write.
func DeleteByPrefix(batch Batch, root *page.Address, prefix nibble.Path) {
	if *root == page.Null {
		return
	}
	deleteByPrefixRec(batch, varSlot(root), prefix)
}

func deleteByPrefixRec(batch Batch, slot addrSlot, prefix nibble.Path) {
	p, _ := ensureWritable(batch, slot)
	node := Node{Page: p}

	if node.Mode() == ModeLeaf {
		deleteLocalByPrefix(node.Local(), prefix)
		if node.OverflowAddr() != page.Null {
			op, _ := ensureWritable(batch, node.overflowSlot())
			deleteLocalByPrefix(slotted.New(op.Payload()), prefix)
		}
		return
	}

	if prefix.Len() == 0 {
		for i := 0; i < bucketCount; i++ {
			if node.Bucket(byte(i)) != page.Null {
				deleteByPrefixRec(batch, node.bucketSlot(byte(i)), prefix)
			}
		}
	} else {
		nib := prefix.Get(0)
		if node.Bucket(nib) != page.Null {
			deleteByPrefixRec(batch, node.bucketSlot(nib), prefix.SliceFrom(1))
		}
	}

	deleteLocalByPrefix(node.Local(), prefix)
}

func deleteLocalByPrefix(arr slotted.Array, prefix nibble.Path) {
	var toDelete []nibble.Path
	arr.EnumerateAll(func(k nibble.Path, v []byte) bool {
		if k.Len() >= prefix.Len() && k.SliceTo(prefix.Len()).Equals(prefix) {
			buf := append([]byte(nil), k.Bytes()...)
			toDelete = append(toDelete, nibble.FromBytes(buf, 0, k.Len()))
		}
		return true
	})
	for _, k := range toDelete {
		arr.Delete(k)
	}
}
