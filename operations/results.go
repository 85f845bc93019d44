package operations

// Result is the outcome of one submitted operation. For successful creates,
// AssignedID carries the server-assigned identifier that replaces the
// temporary one the operation was submitted with.
type Result struct {
	OpID       string
	Type       Kind
	EntityType string
	EntityID   string
	AssignedID string
	Success    bool
	Detail     string
}

// Results is the per-operation outcome list of one committed session, in
// submission order.
type Results []Result

// Failed returns the subset of results that the server rejected.
func (rs Results) Failed() Results {
	var out Results

	for _, r := range rs {
		if !r.Success {
			out = append(out, r)
		}
	}

	return out
}

// Succeeded returns the subset of results that the server applied.
func (rs Results) Succeeded() Results {
	var out Results

	for _, r := range rs {
		if r.Success {
			out = append(out, r)
		}
	}

	return out
}

// AllSucceeded reports whether every operation was applied. True for an
// empty result list.
func (rs Results) AllSucceeded() bool {
	for _, r := range rs {
		if !r.Success {
			return false
		}
	}

	return true
}

// ByOpID looks up the result for one operation.
func (rs Results) ByOpID(opID string) (Result, bool) {
	for _, r := range rs {
		if r.OpID == opID {
			return r, true
		}
	}

	return Result{}, false
}
