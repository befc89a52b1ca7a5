package strangeness

// V0CascadeIndex is a one-to-many association from a V0 identity to the
// cascade inputs that declare it as their V0 daughter. Built once per event
// so cascade construction never rescans the full cascade collection:
// construction is O(C), lookup O(k) in the number of associated cascades.
type V0CascadeIndex struct {
	byV0 map[int64][]CascadeInput
}

// BuildV0CascadeIndex indexes the cascade inputs by declared parent V0,
// preserving input order within each V0 key.
func BuildV0CascadeIndex(cascades []CascadeInput) *V0CascadeIndex {
	idx := &V0CascadeIndex{byV0: make(map[int64][]CascadeInput, len(cascades))}
	for _, c := range cascades {
		idx.byV0[c.V0ID] = append(idx.byV0[c.V0ID], c)
	}
	return idx
}

// CandidatesFor returns the cascade inputs declaring v0ID as parent, in
// input order. A V0 with no associated cascades yields an empty slice,
// never an error.
func (idx *V0CascadeIndex) CandidatesFor(v0ID int64) []CascadeInput {
	return idx.byV0[v0ID]
}

// Len returns the total number of indexed cascade inputs.
func (idx *V0CascadeIndex) Len() int {
	n := 0
	for _, v := range idx.byV0 {
		n += len(v)
	}
	return n
}
