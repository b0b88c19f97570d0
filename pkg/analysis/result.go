package analysis

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/papercomputeco/tally/pkg/record"
)

// result derives the order-dependent statistics and assembles the Result.
func (b *builder) result() *Result {
	res := &Result{
		Summary: Summary{
			TotalMessages:       b.total,
			ValidMessages:       b.valid,
			InvalidMessages:     b.invalid,
			ParseErrors:         b.parseErrors,
			ValidationErrors:    b.validationErrors,
			TimestampWarnings:   b.timestampWarnings,
			UniqueSessions:      len(b.sessions),
			UniqueConversations: len(b.conversations),
			MessageTypes:        maps.Clone(b.messageTypes),
			Models:              map[string]int{},
			FirstTimestamp:      b.first,
			LastTimestamp:       b.last,
		},
		Sessions:      make(map[string]SessionStats, len(b.sessions)),
		Conversations: make(map[string]ConversationStats, len(b.conversations)),
		Clusters:      map[int][]string{},
		Tools:         make(map[string]ToolStats, len(b.tools)),
		Tokens:        b.tokenStats(),
		Costs:         b.costStats(),
		Temporal:      b.temporal(),
	}

	for model, mc := range b.modelCosts {
		res.Summary.Models[model] = mc.MessageCount
	}

	for id, acc := range b.sessions {
		res.Sessions[id] = acc.finish()
	}

	for id, acc := range b.conversations {
		c := acc.finish()
		res.Conversations[id] = c
		res.Clusters[c.Cluster] = append(res.Clusters[c.Cluster], id)
	}
	for k := range res.Clusters {
		slices.Sort(res.Clusters[k])
	}

	for name, acc := range b.tools {
		res.Tools[name] = acc.finish()
	}

	res.DurationBuckets = durationBuckets(res.Sessions)
	res.CostBuckets = costBuckets(res.Sessions)

	return res
}

func (acc *sessionAcc) finish() SessionStats {
	s := acc.stats
	s.Conversations = sortedKeys(acc.conversations)

	parts := slices.Clone(acc.flows)
	if len(acc.steps) > 0 {
		parts = append(parts, flowFromSteps(acc.steps))
	}
	s.Flow = mergeFlows(parts)

	s.Duration, s.ToolsPerMinute, s.AssistantPerMinute, s.InteractionRatio = nil, nil, nil, nil
	if s.Start != nil && s.End != nil {
		d := s.End.Sub(*s.Start)
		s.Duration = &d
		minutes := d.Minutes()
		s.ToolsPerMinute = ratio(float64(s.ToolUsages), minutes)
		s.AssistantPerMinute = ratio(float64(s.AssistantMessages), minutes)
	}
	s.InteractionRatio = ratio(float64(s.AssistantMessages), float64(s.UserMessages))

	return s
}

func (acc *conversationAcc) finish() ConversationStats {
	c := acc.stats
	c.Sessions = sortedKeys(acc.sessions)

	parts := slices.Clone(acc.flows)
	if len(acc.steps) > 0 {
		parts = append(parts, flowFromSteps(acc.steps))
	}
	c.Flow = mergeFlows(parts)

	// Baseline clustering: a conversation's bucket is its distinct tool count.
	c.DistinctTools = len(c.Flow.Tools)
	c.Cluster = c.DistinctTools

	return c
}

func (acc *toolAcc) finish() ToolStats {
	t := acc.stats
	t.Sessions = sortedKeys(acc.sessions)
	t.DistinctSessions = len(t.Sessions)
	t.SuccessRate = ratio(float64(t.Successes), float64(t.Usage))
	t.AvgUsesPerSession = ratio(float64(t.Usage), float64(t.DistinctSessions))
	return t
}

func (b *builder) tokenStats() TokenStats {
	return TokenStats{
		Total:        b.tokenTotal,
		Average:      ratio(float64(b.tokenTotal), float64(b.tokenCount)),
		Max:          b.tokenMax,
		Min:          b.tokenMin,
		MessageCount: b.tokenCount,
	}
}

func (b *builder) costStats() CostStats {
	cs := CostStats{
		Total:             b.costTotal,
		Estimated:         b.costEstimated,
		ByModel:           make(map[string]ModelCost, len(b.modelCosts)),
		BySession:         maps.Clone(b.sessionCosts),
		ExpensiveSessions: []SessionCost{},
		Recommendations:   []Recommendation{},
	}

	var modelTotal float64
	for model, mc := range b.modelCosts {
		m := *mc
		m.Average = ratio(m.Cost, float64(m.MessageCount))
		cs.ByModel[model] = m
		cs.MessageCount += m.MessageCount
		modelTotal += m.Cost
	}
	cs.Average = ratio(modelTotal, float64(cs.MessageCount))

	for id, cost := range b.sessionCosts {
		cs.ExpensiveSessions = append(cs.ExpensiveSessions, SessionCost{SessionID: id, Cost: cost})
	}
	slices.SortFunc(cs.ExpensiveSessions, func(a, b SessionCost) int {
		if c := cmp.Compare(b.Cost, a.Cost); c != 0 {
			return c
		}
		return cmp.Compare(a.SessionID, b.SessionID)
	})
	if len(cs.ExpensiveSessions) > expensiveSessionLimit {
		cs.ExpensiveSessions = cs.ExpensiveSessions[:expensiveSessionLimit]
	}

	if cs.Average != nil && *cs.Average > 0 {
		global := *cs.Average
		for _, m := range cs.ByModel {
			if m.Average == nil || *m.Average <= recommendationFactor*global {
				continue
			}
			cs.Recommendations = append(cs.Recommendations, Recommendation{
				Model:         m.Model,
				Average:       *m.Average,
				GlobalAverage: global,
				Ratio:         *m.Average / global,
				Message: fmt.Sprintf("%s averages $%.4f per message, %.1fx the overall $%.4f; consider a cheaper model for routine work",
					m.Model, *m.Average, *m.Average/global, global),
			})
		}
		slices.SortFunc(cs.Recommendations, func(a, b Recommendation) int {
			if c := cmp.Compare(b.Ratio, a.Ratio); c != 0 {
				return c
			}
			return cmp.Compare(a.Model, b.Model)
		})
	}

	return cs
}

func (b *builder) temporal() []HourBucket {
	out := make([]HourBucket, 0, len(b.hours))
	for _, hour := range slices.Sorted(maps.Keys(b.hours)) {
		out = append(out, HourBucket{Hour: hour, Count: b.hours[hour]})
	}
	return out
}

// durationBuckets groups sessions by length. Sessions without timestamps are
// left out.
func durationBuckets(sessions map[string]SessionStats) []Bucket {
	labels := []string{"<1m", "1-5m", "5-15m", "15-30m", "30-60m", ">1h"}
	counts := map[string]int{}
	for _, s := range sessions {
		if s.Duration == nil {
			continue
		}
		minutes := s.Duration.Minutes()
		switch {
		case minutes < 1:
			counts["<1m"]++
		case minutes < 5:
			counts["1-5m"]++
		case minutes < 15:
			counts["5-15m"]++
		case minutes < 30:
			counts["15-30m"]++
		case minutes < 60:
			counts["30-60m"]++
		default:
			counts[">1h"]++
		}
	}
	return buckets(labels, counts)
}

func costBuckets(sessions map[string]SessionStats) []Bucket {
	labels := []string{"<$0.01", "$0.01-0.10", "$0.10-0.50", "$0.50-1.00", "$1.00-5.00", ">$5.00"}
	counts := map[string]int{}
	for _, s := range sessions {
		switch cost := s.Cost; {
		case cost < 0.01:
			counts["<$0.01"]++
		case cost < 0.10:
			counts["$0.01-0.10"]++
		case cost < 0.50:
			counts["$0.10-0.50"]++
		case cost < 1.00:
			counts["$0.50-1.00"]++
		case cost < 5.00:
			counts["$1.00-5.00"]++
		default:
			counts[">$5.00"]++
		}
	}
	return buckets(labels, counts)
}

func buckets(labels []string, counts map[string]int) []Bucket {
	out := make([]Bucket, len(labels))
	for i, label := range labels {
		out[i] = Bucket{Label: label, Count: counts[label]}
	}
	return out
}

func sortedKeys(set map[string]struct{}) []string {
	return slices.Sorted(maps.Keys(set))
}

// SessionIDs returns the session ids in res, sorted.
func (res *Result) SessionIDs() []string {
	return slices.Sorted(maps.Keys(res.Sessions))
}

// ToolNames returns tool names ordered by usage, most used first.
func (res *Result) ToolNames() []string {
	names := slices.Collect(maps.Keys(res.Tools))
	slices.SortFunc(names, func(a, b string) int {
		if c := cmp.Compare(res.Tools[b].Usage, res.Tools[a].Usage); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	return names
}

// Span is the time between the first and last valid record, zero when
// unknown.
func (s Summary) Span() time.Duration {
	if s.FirstTimestamp == nil || s.LastTimestamp == nil {
		return 0
	}
	return s.LastTimestamp.Sub(*s.FirstTimestamp)
}

// Count returns how many valid records have message type t.
func (s Summary) Count(t record.MessageType) int {
	return s.MessageTypes[t]
}
