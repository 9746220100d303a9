package trie

import (
	"github.com/paprikadb/paprika/internal/nibble"
	"github.com/paprikadb/paprika/internal/page"
	"github.com/paprikadb/paprika/internal/slotted"
)

// Set writes (key, value) rooted at *root, iteratively descending and
// restructuring as needed. An empty value deletes. *root is updated
// in place; it changes whenever the root page itself needed a
// copy-on-write, or a brand new root is allocated for an empty trie.
func Set(batch Batch, root *page.Address, key nibble.Path, value []byte) {
	if *root == page.Null {
		_, addr := batch.NewPage(page.TypeBottom, 0, uint8(ModeLeaf))
		*root = addr
	}

	curSlot := varSlot(root)
	curKey := key

	for {
		p, addr := ensureWritable(batch, curSlot)
		node := Node{Page: p}

		if node.Mode() == ModeFanout {
			if done := setFanoutStep(batch, node, addr, &curSlot, &curKey, value); done {
				return
			}
			continue
		}
		if done := setLeafStep(batch, node, addr, &curSlot, &curKey, value); done {
			return
		}
	}
}

// setFanoutStep performs one iteration of the fan-out algorithm,
// mutating curSlot/curKey to descend or retry in place. It returns
// true once the write (or delete) is complete.
func setFanoutStep(batch Batch, node Node, addr page.Address, curSlot *addrSlot, curKey *nibble.Path, value []byte) bool {
	if len(value) == 0 {
		node.Local().Delete(*curKey)
		if curKey.Len() == 0 {
			return true
		}
		child := node.Bucket(curKey.Get(0))
		if child == page.Null {
			return true
		}
		*curSlot = node.bucketSlot(curKey.Get(0))
		*curKey = curKey.SliceFrom(1)
		return false
	}

	if curKey.Len() > 0 {
		nib := curKey.Get(0)
		child := node.Bucket(nib)
		if child != page.Null && batch.IsWritable(child) {
			*curSlot = node.bucketSlot(nib)
			*curKey = curKey.SliceFrom(1)
			return false
		}
	}

	if node.Local().TrySet(*curKey, value) {
		return true
	}

	flushDown(batch, node)
	return false
}

// flushDown implements "select a nibble to push down" (fan-out set
// step 4) plus the flush itself (step 4's body): it never changes
// curKey/curSlot, so the caller always retries from the top of Set's
// loop at the same node afterward.
func flushDown(batch Batch, node Node) {
	var stats [16]uint16
	node.Local().GatherCountStatsFirstNibble(&stats)

	nib := byte(0)
	chosen := false
	for i := 15; i >= 0; i-- {
		if node.Bucket(byte(i)) != page.Null && stats[i] > 0 {
			nib = byte(i)
			chosen = true
			break
		}
	}
	if !chosen {
		best := uint16(0)
		for i := 0; i < 16; i++ {
			if stats[i] > best {
				best = stats[i]
				nib = byte(i)
			}
		}
	}

	childAddr := node.Bucket(nib)
	if childAddr == page.Null {
		_, childAddr = batch.NewPage(page.TypeBottom, node.Level()+1, uint8(ModeLeaf))
		node.SetBucket(nib, childAddr)
	}

	var entries []kv
	node.Local().EnumerateNibble(nib, func(k nibble.Path, v []byte) bool {
		entries = append(entries, copyKV(k, v))
		return true
	})

	for _, e := range entries {
		a := childAddr
		Set(batch, &a, e.key.SliceFrom(1), e.value)
		childAddr = a
		node.Local().Delete(e.key)
	}
	node.SetBucket(nib, childAddr)
}

// setLeafStep performs one iteration of the leaf-mode algorithm.
func setLeafStep(batch Batch, node Node, addr page.Address, curSlot *addrSlot, curKey *nibble.Path, value []byte) bool {
	if len(value) == 0 {
		node.Local().Delete(*curKey)
		overflow := node.OverflowAddr()
		if overflow == page.Null {
			return true
		}
		op, _ := ensureWritable(batch, node.overflowSlot())
		slotted.New(op.Payload()).Delete(*curKey)
		return true
	}

	if node.Local().TrySet(*curKey, value) {
		return true
	}

	ensureOverflowAndMove(batch, node)
	if node.Local().TrySet(*curKey, value) {
		return true
	}

	convertLeafToFanout(batch, node, addr)
	return false
}

func ensureOverflowAndMove(batch Batch, node Node) {
	var op page.Page
	if node.OverflowAddr() == page.Null {
		var overflowAddr page.Address
		op, overflowAddr = batch.NewPage(page.TypeLeafOverflow, node.Level()+1, 0)
		node.SetOverflowAddr(overflowAddr)
	} else {
		op, _ = ensureWritable(batch, node.overflowSlot())
	}
	overflow := slotted.New(op.Payload())
	node.Local().MoveNonEmptyKeysTo(overflow, true)
}

// convertLeafToFanout implements leaf-mode set step 5: promote this
// leaf page into a fan-out page once even the overflow page can't
// absorb the new entry.
func convertLeafToFanout(batch Batch, node Node, addr page.Address) {
	var localEntries []kv
	node.Local().EnumerateAll(func(k nibble.Path, v []byte) bool {
		localEntries = append(localEntries, copyKV(k, v))
		return true
	})

	overflowAddr := node.OverflowAddr()
	var overflowEntries []kv
	if overflowAddr != page.Null {
		op, newOverflowAddr := ensureWritable(batch, node.overflowSlot())
		overflowAddr = newOverflowAddr
		overflow := slotted.New(op.Payload())

		// local is authoritative: drop any overflow copy shadowed by a
		// more recent local write before it's captured below.
		for _, e := range localEntries {
			overflow.Delete(e.key)
		}
		overflow.EnumerateAll(func(k nibble.Path, v []byte) bool {
			overflowEntries = append(overflowEntries, copyKV(k, v))
			return true
		})
		batch.RegisterForReuse(overflowAddr)
	}

	level := node.Level()
	node.Clear()
	node.setMode(ModeFanout)

	all := append(localEntries, overflowEntries...)
	var stats [16]uint16
	for _, e := range all {
		if e.key.Len() > 0 {
			stats[e.key.Get(0)]++
		}
	}
	nib := byte(0)
	best := uint16(0)
	for i := 0; i < 16; i++ {
		if stats[i] > best {
			best = stats[i]
			nib = byte(i)
		}
	}

	_, childAddr := batch.NewPage(page.TypeBottom, level+1, uint8(ModeLeaf))
	node.SetBucket(nib, childAddr)

	for _, e := range all {
		a := addr
		Set(batch, &a, e.key, e.value)
	}
}
