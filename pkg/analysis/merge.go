package analysis

// Merge combines results computed over disjoint parts of one record stream.
// Counts, sums, extremes, histograms and the per-session and per-tool sets
// are merged directly; averages, rates, the expensive-session ranking and
// recommendations are then recomputed from the merged values rather than
// concatenated. Nil results are skipped; Merge of nothing equals
// Analyze(nil).
//
// Flow transitions that span two parts are recovered when the parts do not
// overlap in time, which holds for batches cut from a chronological log.
func Merge(results ...*Result) *Result {
	b := newBuilder()
	for _, res := range results {
		if res != nil {
			b.absorb(res)
		}
	}
	return b.result()
}

func (b *builder) absorb(res *Result) {
	sum := res.Summary
	b.total += sum.TotalMessages
	b.valid += sum.ValidMessages
	b.invalid += sum.InvalidMessages
	b.parseErrors += sum.ParseErrors
	b.validationErrors += sum.ValidationErrors
	b.timestampWarnings += sum.TimestampWarnings
	for t, n := range sum.MessageTypes {
		b.messageTypes[t] += n
	}
	b.first = minTime(b.first, sum.FirstTimestamp)
	b.last = maxTime(b.last, sum.LastTimestamp)

	for id, s := range res.Sessions {
		acc := b.session(id)
		acc.stats.MessageCount += s.MessageCount
		acc.stats.UserMessages += s.UserMessages
		acc.stats.AssistantMessages += s.AssistantMessages
		acc.stats.SystemMessages += s.SystemMessages
		acc.stats.ToolUsages += s.ToolUsages
		acc.stats.Summaries += s.Summaries
		acc.stats.Start = minTime(acc.stats.Start, s.Start)
		acc.stats.End = maxTime(acc.stats.End, s.End)
		acc.stats.Tokens += s.Tokens
		acc.stats.Cost += s.Cost
		for _, c := range s.Conversations {
			acc.conversations[c] = struct{}{}
		}
		acc.flows = append(acc.flows, s.Flow)
	}

	for id, c := range res.Conversations {
		acc := b.conversation(id)
		acc.stats.MessageCount += c.MessageCount
		acc.stats.Start = minTime(acc.stats.Start, c.Start)
		acc.stats.End = maxTime(acc.stats.End, c.End)
		for _, s := range c.Sessions {
			acc.sessions[s] = struct{}{}
		}
		acc.flows = append(acc.flows, c.Flow)
	}

	for name, t := range res.Tools {
		acc := b.tool(name)
		acc.stats.Usage += t.Usage
		acc.stats.Successes += t.Successes
		acc.stats.FirstUsed = minTime(acc.stats.FirstUsed, t.FirstUsed)
		acc.stats.LastUsed = maxTime(acc.stats.LastUsed, t.LastUsed)
		for _, s := range t.Sessions {
			acc.sessions[s] = struct{}{}
		}
	}

	for _, h := range res.Temporal {
		b.hours[h.Hour] += h.Count
	}

	tok := res.Tokens
	if tok.MessageCount > 0 {
		if b.tokenCount == 0 {
			b.tokenMax, b.tokenMin = tok.Max, tok.Min
		} else {
			b.tokenMax = max(b.tokenMax, tok.Max)
			b.tokenMin = min(b.tokenMin, tok.Min)
		}
		b.tokenTotal += tok.Total
		b.tokenCount += tok.MessageCount
	}

	b.costTotal += res.Costs.Total
	b.costEstimated += res.Costs.Estimated
	for model, m := range res.Costs.ByModel {
		mc, ok := b.modelCosts[model]
		if !ok {
			mc = &ModelCost{Model: model}
			b.modelCosts[model] = mc
		}
		mc.Cost += m.Cost
		mc.MessageCount += m.MessageCount
	}
	for id, cost := range res.Costs.BySession {
		b.sessionCosts[id] += cost
	}
}

// Clone returns a deep copy of res that shares no maps or slices with it.
func (res *Result) Clone() *Result {
	if res == nil {
		return nil
	}
	return Merge(res)
}
