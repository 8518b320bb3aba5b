package exchange

import "github.com/google/btree"

const indexDegree = 32

// openIndex is the ordered secondary index of open proposal ids.
type openIndex struct {
	tree *btree.BTreeG[uint64]
}

func newOpenIndex() *openIndex {
	return &openIndex{
		tree: btree.NewG(indexDegree, func(a, b uint64) bool { return a < b }),
	}
}

func (ix *openIndex) insert(id uint64) { ix.tree.ReplaceOrInsert(id) }

func (ix *openIndex) remove(id uint64) { ix.tree.Delete(id) }

func (ix *openIndex) len() int { return ix.tree.Len() }

// after returns up to limit ids strictly greater than afterID, ascending.
func (ix *openIndex) after(afterID uint64, limit int) []uint64 {
	var out []uint64
	ix.tree.AscendGreaterOrEqual(afterID+1, func(id uint64) bool {
		if limit > 0 && len(out) >= limit {
			return false
		}
		out = append(out, id)
		return true
	})
	return out
}

// each visits every open id in ascending order.
func (ix *openIndex) each(fn func(id uint64)) {
	ix.tree.Ascend(func(id uint64) bool {
		fn(id)
		return true
	})
}
