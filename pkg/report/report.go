// Package report renders an analysis.Result as a markdown document.
package report

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/x/ansi"

	"github.com/papercomputeco/tally/pkg/analysis"
	"github.com/papercomputeco/tally/pkg/record"
)

const (
	defaultTitle        = "Interaction log analysis"
	defaultSessionLimit = 20
	defaultToolLimit    = 20
	defaultCellWidth    = 40
)

type options struct {
	title        string
	source       string
	sessionLimit int
	toolLimit    int
	cellWidth    int
}

// Option configures a report.
type Option func(*options)

func WithTitle(title string) Option {
	return func(o *options) { o.title = title }
}

// WithSource names the log the result was computed from.
func WithSource(path string) Option {
	return func(o *options) { o.source = path }
}

// WithSessionLimit caps the session table; zero or less shows every session.
func WithSessionLimit(n int) Option {
	return func(o *options) { o.sessionLimit = n }
}

func WithToolLimit(n int) Option {
	return func(o *options) { o.toolLimit = n }
}

// WithCellWidth truncates identifiers in table cells to n terminal cells.
func WithCellWidth(n int) Option {
	return func(o *options) { o.cellWidth = n }
}

// Markdown renders every section of res.
func Markdown(res *analysis.Result, opts ...Option) string {
	o := options{
		title:        defaultTitle,
		sessionLimit: defaultSessionLimit,
		toolLimit:    defaultToolLimit,
		cellWidth:    defaultCellWidth,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if res == nil {
		res = analysis.Analyze(nil)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", o.title)
	if o.source != "" {
		fmt.Fprintf(&b, "Source: `%s`\n\n", o.source)
	}

	writeSummary(&b, res.Summary)
	writeSessions(&b, res, o)
	writeTools(&b, res, o)
	writeTokens(&b, res.Tokens)
	writeCosts(&b, res.Costs, o)
	writeTemporal(&b, res.Temporal)
	writeBuckets(&b, "Session durations", res.DurationBuckets)
	writeBuckets(&b, "Session costs", res.CostBuckets)

	return b.String()
}

// Summary renders only the summary section, for short tool responses.
func Summary(res *analysis.Result) string {
	var b strings.Builder
	writeSummary(&b, res.Summary)
	return b.String()
}

// Session renders one session's statistics.
func Session(s analysis.SessionStats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Session %s\n\n", escape(s.ID))
	b.WriteString("| Metric | Value |\n|---|---:|\n")
	row(&b, "Messages", s.MessageCount)
	row(&b, "User / assistant / system", fmt.Sprintf("%d / %d / %d", s.UserMessages, s.AssistantMessages, s.SystemMessages))
	row(&b, "Tool usages", s.ToolUsages)
	row(&b, "Summaries", s.Summaries)
	row(&b, "Start", timestamp(s.Start))
	row(&b, "End", timestamp(s.End))
	row(&b, "Duration", duration(s.Duration))
	row(&b, "Tools per minute", rate(s.ToolsPerMinute))
	row(&b, "Assistant messages per minute", rate(s.AssistantPerMinute))
	row(&b, "Assistant to user ratio", rate(s.InteractionRatio))
	row(&b, "Tokens", s.Tokens)
	row(&b, "Cost", money(s.Cost))
	row(&b, "Conversations", strings.Join(s.Conversations, ", "))
	b.WriteString("\n")

	if len(s.Flow.Transitions) > 0 {
		b.WriteString("| Transition | Count |\n|---|---:|\n")
		for _, k := range sortedByCount(s.Flow.Transitions) {
			fmt.Fprintf(&b, "| %s | %d |\n", escape(k), s.Flow.Transitions[k])
		}
		b.WriteString("\n")
	}
	return b.String()
}

func writeSummary(b *strings.Builder, s analysis.Summary) {
	b.WriteString("## Summary\n\n")
	b.WriteString("| Metric | Value |\n|---|---:|\n")
	row(b, "Total messages", s.TotalMessages)
	row(b, "Valid messages", s.ValidMessages)
	row(b, "Invalid messages", s.InvalidMessages)
	row(b, "Parse errors", s.ParseErrors)
	row(b, "Validation errors", s.ValidationErrors)
	row(b, "Timestamp warnings", s.TimestampWarnings)
	row(b, "Sessions", s.UniqueSessions)
	row(b, "Conversations", s.UniqueConversations)
	row(b, "First message", timestamp(s.FirstTimestamp))
	row(b, "Last message", timestamp(s.LastTimestamp))
	if span := s.Span(); span > 0 {
		row(b, "Span", span.Round(time.Second).String())
	}
	b.WriteString("\n")

	if len(s.MessageTypes) == 0 {
		return
	}
	b.WriteString("| Message type | Count |\n|---|---:|\n")
	for _, t := range []record.MessageType{
		record.TypeUser, record.TypeAssistant, record.TypeSystem, record.TypeToolUsage, record.TypeSummary,
	} {
		if n := s.Count(t); n > 0 {
			fmt.Fprintf(b, "| %s | %d |\n", t, n)
		}
	}
	b.WriteString("\n")
}

func writeSessions(b *strings.Builder, res *analysis.Result, o options) {
	if len(res.Sessions) == 0 {
		return
	}
	sessions := make([]analysis.SessionStats, 0, len(res.Sessions))
	for _, s := range res.Sessions {
		sessions = append(sessions, s)
	}
	slices.SortFunc(sessions, func(a, b analysis.SessionStats) int {
		if c := cmp.Compare(b.MessageCount, a.MessageCount); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	b.WriteString("## Sessions\n\n")
	b.WriteString("| Session | Messages | Tools | Duration | Tools/min | Asst/User | Tokens | Cost |\n")
	b.WriteString("|---|---:|---:|---:|---:|---:|---:|---:|\n")
	for i, s := range sessions {
		if o.sessionLimit > 0 && i == o.sessionLimit {
			fmt.Fprintf(b, "\n_%d more sessions not shown._\n", len(sessions)-i)
			break
		}
		fmt.Fprintf(b, "| %s | %d | %d | %s | %s | %s | %d | %s |\n",
			cell(s.ID, o.cellWidth), s.MessageCount, s.ToolUsages, duration(s.Duration),
			rate(s.ToolsPerMinute), rate(s.InteractionRatio), s.Tokens, money(s.Cost))
	}
	b.WriteString("\n")

	if len(res.Clusters) > 0 {
		b.WriteString("### Conversation clusters\n\n")
		b.WriteString("| Distinct tools | Conversations |\n|---:|---:|\n")
		keys := make([]int, 0, len(res.Clusters))
		for k := range res.Clusters {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			fmt.Fprintf(b, "| %d | %d |\n", k, len(res.Clusters[k]))
		}
		b.WriteString("\n")
	}
}

func writeTools(b *strings.Builder, res *analysis.Result, o options) {
	if len(res.Tools) == 0 {
		return
	}
	b.WriteString("## Tools\n\n")
	b.WriteString("| Tool | Uses | Success rate | Sessions | Uses/session |\n")
	b.WriteString("|---|---:|---:|---:|---:|\n")
	for i, name := range res.ToolNames() {
		if o.toolLimit > 0 && i == o.toolLimit {
			break
		}
		t := res.Tools[name]
		fmt.Fprintf(b, "| %s | %d | %s | %d | %s |\n",
			cell(name, o.cellWidth), t.Usage, percent(t.SuccessRate), t.DistinctSessions, rate(t.AvgUsesPerSession))
	}
	b.WriteString("\n")
}

func writeTokens(b *strings.Builder, t analysis.TokenStats) {
	if t.MessageCount == 0 {
		return
	}
	b.WriteString("## Tokens\n\n")
	b.WriteString("| Metric | Value |\n|---|---:|\n")
	row(b, "Total", t.Total)
	row(b, "Messages with counts", t.MessageCount)
	row(b, "Average", rate(t.Average))
	row(b, "Min", t.Min)
	row(b, "Max", t.Max)
	b.WriteString("\n")
}

func writeCosts(b *strings.Builder, c analysis.CostStats, o options) {
	if c.MessageCount == 0 && c.Total == 0 {
		return
	}
	b.WriteString("## Costs\n\n")
	b.WriteString("| Metric | Value |\n|---|---:|\n")
	row(b, "Total", money(c.Total))
	if c.Estimated > 0 {
		row(b, "Messages priced from tokens", c.Estimated)
	}
	if c.Average != nil {
		row(b, "Average per model message", money(*c.Average))
	}
	b.WriteString("\n")

	if len(c.ByModel) > 0 {
		b.WriteString("| Model | Messages | Cost | Average |\n|---|---:|---:|---:|\n")
		models := make([]analysis.ModelCost, 0, len(c.ByModel))
		for _, m := range c.ByModel {
			models = append(models, m)
		}
		slices.SortFunc(models, func(a, b analysis.ModelCost) int {
			if r := cmp.Compare(b.Cost, a.Cost); r != 0 {
				return r
			}
			return cmp.Compare(a.Model, b.Model)
		})
		for _, m := range models {
			avg := "n/a"
			if m.Average != nil {
				avg = money(*m.Average)
			}
			fmt.Fprintf(b, "| %s | %d | %s | %s |\n", cell(m.Model, o.cellWidth), m.MessageCount, money(m.Cost), avg)
		}
		b.WriteString("\n")
	}

	if len(c.ExpensiveSessions) > 0 {
		b.WriteString("### Most expensive sessions\n\n| Session | Cost |\n|---|---:|\n")
		for _, s := range c.ExpensiveSessions {
			fmt.Fprintf(b, "| %s | %s |\n", cell(s.SessionID, o.cellWidth), money(s.Cost))
		}
		b.WriteString("\n")
	}

	if len(c.Recommendations) > 0 {
		b.WriteString("### Recommendations\n\n")
		for _, r := range c.Recommendations {
			fmt.Fprintf(b, "- %s\n", r.Message)
		}
		b.WriteString("\n")
	}
}

func writeTemporal(b *strings.Builder, hours []analysis.HourBucket) {
	if len(hours) == 0 {
		return
	}
	b.WriteString("## Activity by hour\n\n| Hour (UTC) | Messages |\n|---|---:|\n")
	for _, h := range hours {
		fmt.Fprintf(b, "| %s | %d |\n", h.Hour, h.Count)
	}
	b.WriteString("\n")
}

func writeBuckets(b *strings.Builder, title string, buckets []analysis.Bucket) {
	total := 0
	for _, bk := range buckets {
		total += bk.Count
	}
	if total == 0 {
		return
	}
	fmt.Fprintf(b, "## %s\n\n| Range | Sessions |\n|---|---:|\n", title)
	for _, bk := range buckets {
		fmt.Fprintf(b, "| %s | %d |\n", escape(bk.Label), bk.Count)
	}
	b.WriteString("\n")
}

func row(b *strings.Builder, label string, value any) {
	fmt.Fprintf(b, "| %s | %v |\n", label, value)
}

// cell truncates to width cells and escapes table delimiters.
func cell(s string, width int) string {
	if width > 0 && ansi.StringWidth(s) > width {
		s = ansi.Truncate(s, width, "…")
	}
	return escape(s)
}

func escape(s string) string {
	return strings.NewReplacer("|", `\|`, "<", `\<`, ">", `\>`).Replace(s)
}

func timestamp(t *time.Time) string {
	if t == nil {
		return "n/a"
	}
	return t.UTC().Format(time.RFC3339)
}

func duration(d *time.Duration) string {
	if d == nil {
		return "n/a"
	}
	return d.Round(time.Second).String()
}

func rate(f *float64) string {
	if f == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", *f)
}

func percent(f *float64) string {
	if f == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.1f%%", *f*100)
}

func money(f float64) string {
	return fmt.Sprintf("$%.4f", f)
}

func sortedByCount(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b string) int {
		if c := cmp.Compare(m[b], m[a]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	return keys
}
