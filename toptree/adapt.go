package toptree

// Adapt applies spec §4.3's post-merge pass: after the global merge, any
// leaf whose summarized count exceeds
// totNumPart/(topNodeFactor*overDecomp*ntask), or whose cost exceeds the
// analogous cost quota totCost/(topNodeFactor*overDecomp*ntask), is split
// further, distributing the leaf's count/cost uniformly across the 8 new
// daughters (openNode's remainder-to-first-child rule). This is an
// absolute quota, not a relative-to-parent rule — it catches imbalance
// that only becomes visible once every rank's contribution has been
// summed and the global totals (totNumPart, totCost) are known, and it
// applies uniformly regardless of how any one ancestor happened to be
// divided.
//
// Adapt must run after Summarize has populated every leaf's Count/Cost and
// RollUp has propagated sums to ancestors. It iterates to a fixed point:
// newly created daughters are themselves checked against the same quota,
// since a deeply skewed node can require descending more than one level
// before every leaf falls under quota.
func (t *Tree) Adapt(totNumPart int64, totCost float64, overDecomp, ntask int, topNodeFactor float64) error {
	if overDecomp < 1 {
		overDecomp = 1
	}
	if ntask < 1 {
		ntask = 1
	}
	if topNodeFactor <= 0 {
		topNodeFactor = 1
	}
	denom := topNodeFactor * float64(overDecomp) * float64(ntask)
	countQuota := float64(totNumPart) / denom
	costQuota := totCost / denom
	if err := t.adaptNode(t.Root(), countQuota, costQuota); err != nil {
		return err
	}
	t.AssignLeafOrdinals()
	return nil
}

func (t *Tree) adaptNode(idx int32, countQuota, costQuota float64) error {
	node := &t.Nodes[idx]
	if !node.IsLeaf() {
		for d := int32(0); d < 8; d++ {
			if err := t.adaptNode(node.FirstDaughter+d, countQuota, costQuota); err != nil {
				return err
			}
		}
		return nil
	}

	if node.Size < 8 {
		return nil
	}
	overloaded := float64(node.Count) > countQuota || node.Cost > costQuota
	if !overloaded {
		return nil
	}

	if err := t.openNode(idx); err != nil {
		return err
	}
	node = &t.Nodes[idx]
	for d := int32(0); d < 8; d++ {
		if err := t.adaptNode(node.FirstDaughter+d, countQuota, costQuota); err != nil {
			return err
		}
	}
	return nil
}
