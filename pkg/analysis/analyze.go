// Package analysis computes grouped and derived statistics over classified
// records. Analyze is a pure function of its input; Merge combines results
// computed over disjoint parts of a record stream.
package analysis

import (
	"errors"
	"time"

	"github.com/papercomputeco/tally/pkg/record"
)

const (
	// expensiveSessionLimit caps CostStats.ExpensiveSessions.
	expensiveSessionLimit = 10

	// recommendationFactor is how far above the global average cost per
	// message a model has to be before it is flagged.
	recommendationFactor = 1.5

	hourLayout = "2006-01-02T15"
)

type options struct {
	pricing PricingTable
}

// Option configures Analyze.
type Option func(*options)

// WithPricing estimates the cost of assistant records that carry a model and
// a token count but no cost. The token count is priced as output tokens.
func WithPricing(pricing PricingTable) Option {
	return func(o *options) {
		o.pricing = pricing
	}
}

// Analyze computes a Result over records. Invalid records only count towards
// the totals in Summary. The same input always yields a deep-equal Result,
// and an empty input yields zeroed totals with empty, non-nil groupings.
func Analyze(records []record.Record, opts ...Option) *Result {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	b := newBuilder()
	for _, r := range records {
		b.add(r, o)
	}
	return b.result()
}

// builder accumulates the order-independent parts of a Result. Both Analyze
// and Merge feed it; result derives everything else.
type builder struct {
	total             int
	valid             int
	invalid           int
	parseErrors       int
	validationErrors  int
	timestampWarnings int
	messageTypes      map[record.MessageType]int
	first             *time.Time
	last              *time.Time

	sessions      map[string]*sessionAcc
	conversations map[string]*conversationAcc
	tools         map[string]*toolAcc
	hours         map[string]int

	tokenTotal int64
	tokenMax   int64
	tokenMin   int64
	tokenCount int

	costTotal     float64
	costEstimated int
	modelCosts    map[string]*ModelCost
	sessionCosts  map[string]float64
}

type sessionAcc struct {
	stats         SessionStats
	conversations map[string]struct{}
	steps         []step
	flows         []Flow
}

type conversationAcc struct {
	stats    ConversationStats
	sessions map[string]struct{}
	steps    []step
	flows    []Flow
}

type toolAcc struct {
	stats    ToolStats
	sessions map[string]struct{}
}

func newBuilder() *builder {
	return &builder{
		messageTypes:  map[record.MessageType]int{},
		sessions:      map[string]*sessionAcc{},
		conversations: map[string]*conversationAcc{},
		tools:         map[string]*toolAcc{},
		hours:         map[string]int{},
		modelCosts:    map[string]*ModelCost{},
		sessionCosts:  map[string]float64{},
	}
}

func (b *builder) add(r record.Record, o *options) {
	b.total++
	for _, w := range r.Warnings {
		if w.Field == record.FieldTimestamp {
			b.timestampWarnings++
		}
	}

	if !r.Valid {
		b.invalid++
		switch {
		case r.IsParseFailure():
			b.parseErrors++
		case errors.Is(r.Err, record.ErrValidation):
			b.validationErrors++
		}
		return
	}

	b.valid++
	b.messageTypes[r.Type]++
	b.first = minTime(b.first, r.Timestamp)
	b.last = maxTime(b.last, r.Timestamp)

	if r.Timestamp != nil {
		b.hours[r.Timestamp.UTC().Format(hourLayout)]++
	}

	cost, estimated := costOf(r, o.pricing)
	if estimated {
		b.costEstimated++
	}

	b.addSession(r, cost)
	b.addConversation(r)
	b.addTool(r)
	b.addTokens(r)
	b.addCost(r, cost)
}

func (b *builder) session(id string) *sessionAcc {
	acc, ok := b.sessions[id]
	if !ok {
		acc = &sessionAcc{
			stats:         SessionStats{ID: id},
			conversations: map[string]struct{}{},
		}
		b.sessions[id] = acc
	}
	return acc
}

func (b *builder) conversation(id string) *conversationAcc {
	acc, ok := b.conversations[id]
	if !ok {
		acc = &conversationAcc{
			stats:    ConversationStats{ID: id},
			sessions: map[string]struct{}{},
		}
		b.conversations[id] = acc
	}
	return acc
}

func (b *builder) tool(name string) *toolAcc {
	acc, ok := b.tools[name]
	if !ok {
		acc = &toolAcc{
			stats:    ToolStats{Name: name},
			sessions: map[string]struct{}{},
		}
		b.tools[name] = acc
	}
	return acc
}

func (b *builder) addSession(r record.Record, cost *float64) {
	acc := b.session(r.SessionID)
	s := &acc.stats

	s.MessageCount++
	switch r.Type {
	case record.TypeUser:
		s.UserMessages++
	case record.TypeAssistant:
		s.AssistantMessages++
	case record.TypeSystem:
		s.SystemMessages++
	case record.TypeToolUsage:
		s.ToolUsages++
	case record.TypeSummary:
		s.Summaries++
	}

	s.Start = minTime(s.Start, r.Timestamp)
	s.End = maxTime(s.End, r.Timestamp)
	if r.TokenCount != nil {
		s.Tokens += *r.TokenCount
	}
	if cost != nil {
		s.Cost += *cost
	}
	acc.conversations[r.ConversationID] = struct{}{}
	acc.steps = append(acc.steps, stepOf(r))
}

func (b *builder) addConversation(r record.Record) {
	acc := b.conversation(r.ConversationID)
	c := &acc.stats

	c.MessageCount++
	c.Start = minTime(c.Start, r.Timestamp)
	c.End = maxTime(c.End, r.Timestamp)
	acc.sessions[r.SessionID] = struct{}{}
	acc.steps = append(acc.steps, stepOf(r))
}

func (b *builder) addTool(r record.Record) {
	if r.Type != record.TypeToolUsage {
		return
	}
	acc := b.tool(r.ToolName)
	t := &acc.stats

	t.Usage++
	if r.HasToolOutput() {
		t.Successes++
	}
	t.FirstUsed = minTime(t.FirstUsed, r.Timestamp)
	t.LastUsed = maxTime(t.LastUsed, r.Timestamp)
	acc.sessions[r.SessionID] = struct{}{}
}

func (b *builder) addTokens(r record.Record) {
	if r.TokenCount == nil {
		return
	}
	n := *r.TokenCount
	if b.tokenCount == 0 {
		b.tokenMax, b.tokenMin = n, n
	} else {
		b.tokenMax = max(b.tokenMax, n)
		b.tokenMin = min(b.tokenMin, n)
	}
	b.tokenTotal += n
	b.tokenCount++
}

func (b *builder) addCost(r record.Record, cost *float64) {
	if cost != nil {
		b.costTotal += *cost
		b.sessionCosts[r.SessionID] += *cost
	}
	if r.Model == "" {
		return
	}
	mc, ok := b.modelCosts[r.Model]
	if !ok {
		mc = &ModelCost{Model: r.Model}
		b.modelCosts[r.Model] = mc
	}
	mc.MessageCount++
	if cost != nil {
		mc.Cost += *cost
	}
}

// costOf returns the cost of r, estimating it from pricing when the record
// has none. estimated reports whether the pricing table was used.
func costOf(r record.Record, pricing PricingTable) (cost *float64, estimated bool) {
	if r.Cost != nil {
		return r.Cost, false
	}
	if pricing == nil || r.Type != record.TypeAssistant || r.Model == "" || r.TokenCount == nil {
		return nil, false
	}
	price, ok := PricingForModel(pricing, r.Model)
	if !ok {
		return nil, false
	}
	_, _, total := CostForTokens(price, 0, *r.TokenCount)
	return &total, true
}

func stepOf(r record.Record) step {
	s := step{Step: Step{Actor: r.Actor(), Timestamp: r.Timestamp, Line: r.Line}}
	if r.Type == record.TypeToolUsage {
		s.tool = r.ToolName
	}
	return s
}

func minTime(cur, t *time.Time) *time.Time {
	if t == nil {
		return cur
	}
	if cur == nil || t.Before(*cur) {
		v := *t
		return &v
	}
	return cur
}

func maxTime(cur, t *time.Time) *time.Time {
	if t == nil {
		return cur
	}
	if cur == nil || t.After(*cur) {
		v := *t
		return &v
	}
	return cur
}

// ratio returns num/den, or nil when den is zero.
func ratio(num, den float64) *float64 {
	if den == 0 {
		return nil
	}
	v := num / den
	return &v
}
