package analysis

import (
	"cmp"
	"slices"
)

// step is a Step plus the tool it used, if any.
type step struct {
	Step
	tool string
}

// compareSteps orders steps by timestamp with missing timestamps last, then
// by input line.
func compareSteps(a, b Step) int {
	switch {
	case a.Timestamp != nil && b.Timestamp != nil:
		if c := a.Timestamp.Compare(*b.Timestamp); c != 0 {
			return c
		}
	case a.Timestamp != nil:
		return -1
	case b.Timestamp != nil:
		return 1
	}
	return cmp.Compare(a.Line, b.Line)
}

// transitionKey names the pair of actors in a transition.
func transitionKey(from, to string) string {
	return from + "->" + to
}

// flowFromSteps orders steps and counts consecutive actor pairs and tool uses.
// steps is sorted in place.
func flowFromSteps(steps []step) Flow {
	f := emptyFlow()
	if len(steps) == 0 {
		return f
	}

	slices.SortStableFunc(steps, func(a, b step) int {
		return compareSteps(a.Step, b.Step)
	})

	for i, s := range steps {
		if s.tool != "" {
			f.Tools[s.tool]++
		}
		if i > 0 {
			f.Transitions[transitionKey(steps[i-1].Actor, s.Actor)]++
		}
	}

	first, last := steps[0].Step, steps[len(steps)-1].Step
	f.First, f.Last = &first, &last
	return f
}

// mergeFlows folds partial flows of one group into a single flow. Parts are
// ordered by their first step; when a part starts after the previous one
// ended, the transition between them is counted too. Overlapping parts are
// summed without a bridging transition.
func mergeFlows(parts []Flow) Flow {
	out := emptyFlow()

	parts = slices.Clone(parts)
	slices.SortStableFunc(parts, func(a, b Flow) int {
		switch {
		case a.First == nil && b.First == nil:
			return 0
		case a.First == nil:
			return 1
		case b.First == nil:
			return -1
		}
		return compareSteps(*a.First, *b.First)
	})

	for _, p := range parts {
		for k, v := range p.Transitions {
			out.Transitions[k] += v
		}
		for k, v := range p.Tools {
			out.Tools[k] += v
		}
		if p.First == nil {
			continue
		}

		if out.Last != nil && compareSteps(*out.Last, *p.First) < 0 {
			out.Transitions[transitionKey(out.Last.Actor, p.First.Actor)]++
		}
		if out.First == nil || compareSteps(*p.First, *out.First) < 0 {
			first := *p.First
			out.First = &first
		}
		if out.Last == nil || compareSteps(*p.Last, *out.Last) > 0 {
			last := *p.Last
			out.Last = &last
		}
	}

	return out
}

func emptyFlow() Flow {
	return Flow{
		Transitions: map[string]int{},
		Tools:       map[string]int{},
	}
}
