package search

import (
	"context"
	"sort"

	"github.com/roach88/filingindex/internal/model"
	"github.com/roach88/filingindex/internal/store"
)

// IndustryTree is one industry classification held as an arena: nodes
// refer to their children by index, and walks use an explicit stack.
type IndustryTree struct {
	nodes    []model.Industry
	children [][]int
	byCode   map[int][]int
	roots    []int
}

// NewIndustryTree indexes industries of one classification. Nodes whose
// parent is absent are treated as roots.
func NewIndustryTree(industries []model.Industry) *IndustryTree {
	t := &IndustryTree{
		nodes:    append([]model.Industry(nil), industries...),
		children: make([][]int, len(industries)),
		byCode:   make(map[int][]int),
	}
	sort.SliceStable(t.nodes, func(i, j int) bool { return t.nodes[i].ID < t.nodes[j].ID })

	byID := make(map[int64]int, len(t.nodes))
	for i, n := range t.nodes {
		byID[n.ID] = i
		t.byCode[n.Code] = append(t.byCode[n.Code], i)
	}
	for i, n := range t.nodes {
		if p, ok := byID[n.ParentID]; ok && n.ParentID != 0 && p != i {
			t.children[p] = append(t.children[p], i)
		} else {
			t.roots = append(t.roots, i)
		}
	}
	return t
}

// LoadIndustryTree reads a classification from the store.
func LoadIndustryTree(ctx context.Context, st *store.Store, classification string) (*IndustryTree, error) {
	industries, err := st.Industries(ctx, classification)
	if err != nil {
		return nil, err
	}
	return NewIndustryTree(industries), nil
}

// Len returns the number of nodes.
func (t *IndustryTree) Len() int { return len(t.nodes) }

// Descendants returns the nodes with the given codes and all their
// descendants, depth first in id order. A node reachable from several
// given codes appears once. With no codes, every top-level node is a
// start. Unknown codes are ignored.
func (t *IndustryTree) Descendants(codes []int) []model.Industry {
	var starts []int
	if len(codes) == 0 {
		starts = t.roots
	} else {
		for _, c := range codes {
			starts = append(starts, t.byCode[c]...)
		}
		sort.Ints(starts)
	}

	seen := make([]bool, len(t.nodes))
	var out []model.Industry
	for _, start := range starts {
		stack := []int{start}
		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if seen[i] {
				continue
			}
			seen[i] = true
			out = append(out, t.nodes[i])
			kids := t.children[i]
			for k := len(kids) - 1; k >= 0; k-- {
				stack = append(stack, kids[k])
			}
		}
	}
	return out
}

// Codes returns the distinct industry codes of Descendants(codes),
// ascending.
func (t *IndustryTree) Codes(codes []int) []int {
	set := map[int]bool{}
	for _, n := range t.Descendants(codes) {
		set[n.Code] = true
	}
	out := make([]int, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Ints(out)
	return out
}
