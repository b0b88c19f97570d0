package watchcmder

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	bubbletea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"

	"github.com/papercomputeco/tally/pkg/analysis"
	"github.com/papercomputeco/tally/pkg/record"
	"github.com/papercomputeco/tally/pkg/stream"
)

func init() {
	// Force TrueColor profile to fix lipgloss color detection issue
	// See: https://github.com/charmbracelet/lipgloss/issues/439
	renderer := lipgloss.NewRenderer(os.Stdout, termenv.WithProfile(termenv.TrueColor))
	renderer.SetColorProfile(termenv.TrueColor)
	lipgloss.SetDefaultRenderer(renderer)
}

type watchTab int

const (
	tabOverview watchTab = iota
	tabTools
	tabSessions
)

var tabNames = []string{"overview", "tools", "sessions"}

const (
	defaultWidth = 80
	barWidth     = 24
	listLimit    = 12
	hourLimit    = 12
)

var (
	watchTitleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	watchMutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	watchAccentStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("215"))
	watchSectionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	watchDividerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("237"))
	watchMetricLabel  = lipgloss.NewStyle().Foreground(lipgloss.Color("246")).Bold(true)
	watchMetricValue  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	watchTabActive    = lipgloss.NewStyle().Foreground(lipgloss.Color("235")).Background(lipgloss.Color("214")).Bold(true).Padding(0, 1)
	watchTabInactive  = lipgloss.NewStyle().Foreground(lipgloss.Color("246")).Padding(0, 1)
	watchWarnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	watchFailStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

type watchKeyMap struct {
	Next key.Binding
	Prev key.Binding
	Quit key.Binding
}

func (k watchKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Next, k.Prev, k.Quit}
}

func (k watchKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Next, k.Prev, k.Quit}}
}

func defaultKeyMap() watchKeyMap {
	return watchKeyMap{
		Next: key.NewBinding(key.WithKeys("tab", "l", "right"), key.WithHelp("tab", "next view")),
		Prev: key.NewBinding(key.WithKeys("shift+tab", "h", "left"), key.WithHelp("shift+tab", "previous view")),
		Quit: key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

type batchMsg stream.Batch

type endedMsg struct {
	err error
}

// resultSource is what the dashboard renders: a local rollup or a remote
// server's mirror of one.
type resultSource interface {
	Latest() *analysis.Result
	Stats() stream.RollupStats
}

type watchModel struct {
	path      string
	rollup    resultSource
	updates   <-chan stream.Batch
	errc      <-chan error
	batchSize uint
	follow    bool

	result  *analysis.Result
	stats   stream.RollupStats
	last    *stream.Batch
	ended   bool
	err     error
	tab     watchTab
	width   int
	height  int
	spinner spinner.Model
	keys    watchKeyMap
	help    help.Model
	now     func() time.Time
}

func runWatchTUI(ctx context.Context, model watchModel) (watchModel, error) {
	program := bubbletea.NewProgram(model,
		bubbletea.WithContext(ctx),
		bubbletea.WithAltScreen(),
	)
	final, err := program.Run()
	if errors.Is(err, bubbletea.ErrProgramKilled) && ctx.Err() != nil {
		err = nil
	}
	if m, ok := final.(watchModel); ok {
		return m, err
	}
	return model, err
}

func newWatchModel(path string, rollup resultSource, updates <-chan stream.Batch, errc <-chan error, batchSize uint, follow bool) watchModel {
	return watchModel{
		path:      path,
		rollup:    rollup,
		updates:   updates,
		errc:      errc,
		batchSize: batchSize,
		follow:    follow,
		result:    analysis.Analyze(nil),
		spinner:   spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(watchAccentStyle)),
		keys:      defaultKeyMap(),
		help:      help.New(),
		now:       time.Now,
	}
}

func (m watchModel) Init() bubbletea.Cmd {
	return bubbletea.Batch(m.spinner.Tick, waitForBatch(m.updates, m.errc))
}

// waitForBatch blocks until the next batch or the end of the stream. The
// ingest error, if any, arrives once the updates channel has closed.
func waitForBatch(updates <-chan stream.Batch, errc <-chan error) bubbletea.Cmd {
	return func() bubbletea.Msg {
		b, ok := <-updates
		if !ok {
			var err error
			if errc != nil {
				err = <-errc
			}
			return endedMsg{err: err}
		}
		return batchMsg(b)
	}
}

func (m watchModel) Update(msg bubbletea.Msg) (bubbletea.Model, bubbletea.Cmd) {
	switch msg := msg.(type) {
	case bubbletea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case batchMsg:
		b := stream.Batch(msg)
		if !b.Tick {
			m.result = m.rollup.Latest()
		}
		m.stats = m.rollup.Stats()
		m.last = &b
		return m, waitForBatch(m.updates, m.errc)
	case endedMsg:
		m.ended = true
		m.result = m.rollup.Latest()
		m.stats = m.rollup.Stats()
		if msg.err != nil {
			m.err = msg.err
			return m, bubbletea.Quit
		}
		return m, nil
	case spinner.TickMsg:
		if m.ended {
			return m, nil
		}
		var cmd bubbletea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case bubbletea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, bubbletea.Quit
		case key.Matches(msg, m.keys.Next):
			m.tab = (m.tab + 1) % watchTab(len(tabNames))
		case key.Matches(msg, m.keys.Prev):
			m.tab = (m.tab + watchTab(len(tabNames)) - 1) % watchTab(len(tabNames))
		}
		return m, nil
	}

	return m, nil
}

func (m watchModel) View() string {
	lines := []string{
		renderHeaderLine(m.width, watchTitleStyle.Render("tally watch"), m.viewStatus()),
		renderRule(m.width),
		"",
		m.viewMetrics(),
		"",
		m.viewTabs(),
		"",
	}

	switch m.tab {
	case tabTools:
		lines = append(lines, m.viewTools())
	case tabSessions:
		lines = append(lines, m.viewSessions())
	default:
		lines = append(lines, m.viewOverview())
	}

	lines = append(lines, "", m.help.View(m.keys))
	return strings.Join(lines, "\n")
}

func (m watchModel) viewStatus() string {
	parts := []string{ansi.Truncate(m.path, max(m.lineWidth()/3, 12), "…")}

	switch {
	case m.ended:
		parts = append(parts, watchMutedStyle.Render("input ended"))
	case m.follow:
		parts = append(parts, m.spinner.View()+" following")
	default:
		parts = append(parts, m.spinner.View()+" reading")
	}

	if m.stats.Batches > 0 {
		if m.batchSize > 0 {
			parts = append(parts, fmt.Sprintf("%d batches of %d", m.stats.Batches, m.batchSize))
		} else {
			parts = append(parts, fmt.Sprintf("%d batches", m.stats.Batches))
		}
		if !m.stats.Updated.IsZero() {
			parts = append(parts, "updated "+formatAgo(m.now().Sub(m.stats.Updated)))
		}
	} else {
		parts = append(parts, "waiting for the first batch")
	}

	return watchMutedStyle.Render(strings.Join(parts, " · "))
}

func (m watchModel) viewMetrics() string {
	res := m.result
	s := res.Summary

	headers := []string{"RECORDS", "SESSIONS", "TOOL USES", "TOKENS", "COST", "INVALID"}
	values := []string{
		strconv.Itoa(s.TotalMessages),
		strconv.Itoa(s.UniqueSessions),
		strconv.Itoa(s.Count(record.TypeToolUsage)),
		formatTokens(res.Tokens.Total),
		formatCost(res.Costs.Total),
		strconv.Itoa(s.InvalidMessages),
	}
	details := []string{
		fmt.Sprintf("%d valid", s.ValidMessages),
		fmt.Sprintf("%d conversations", s.UniqueConversations),
		fmt.Sprintf("%d tools", len(res.Tools)),
		formatAverage(res.Tokens.Average) + " avg",
		formatAverageCost(res.Costs.Average) + " avg",
		fmt.Sprintf("%d parse %d field", s.ParseErrors, s.ValidationErrors),
	}

	lines := []string{
		renderMetricRow(m.width, headers, watchMetricLabel),
		renderMetricRow(m.width, values, watchMetricValue),
		renderMetricRow(m.width, details, watchMutedStyle),
	}
	if s.InvalidMessages > 0 {
		lines = append(lines, watchWarnStyle.Render(fmt.Sprintf("%d of %d lines were rejected", s.InvalidMessages, s.TotalMessages)))
	}
	return strings.Join(lines, "\n")
}

func (m watchModel) viewTabs() string {
	parts := make([]string, len(tabNames))
	for i, name := range tabNames {
		if watchTab(i) == m.tab {
			parts[i] = watchTabActive.Render(name)
		} else {
			parts[i] = watchTabInactive.Render(name)
		}
	}
	return strings.Join(parts, " ")
}

func (m watchModel) viewOverview() string {
	res := m.result
	lines := []string{watchSectionStyle.Render("messages by type"), renderRule(m.width)}

	types := []record.MessageType{record.TypeUser, record.TypeAssistant, record.TypeSystem, record.TypeToolUsage, record.TypeSummary}
	ceiling := 0
	for _, t := range types {
		ceiling = max(ceiling, res.Summary.Count(t))
	}
	for _, t := range types {
		n := res.Summary.Count(t)
		lines = append(lines, fmt.Sprintf("%-18s %s %d", t, watchAccentStyle.Render(renderBar(float64(n), float64(ceiling), barWidth)), n))
	}

	lines = append(lines, "", watchSectionStyle.Render("activity by hour (UTC)"), renderRule(m.width))
	hours := res.Temporal
	if len(hours) == 0 {
		lines = append(lines, watchMutedStyle.Render("no timestamps yet"))
	} else {
		hours = hours[max(len(hours)-hourLimit, 0):]
		peak := 0
		for _, h := range hours {
			peak = max(peak, h.Count)
		}
		for _, h := range hours {
			lines = append(lines, fmt.Sprintf("%-18s %s %d", h.Hour, watchAccentStyle.Render(renderBar(float64(h.Count), float64(peak), barWidth)), h.Count))
		}
	}

	if len(res.Costs.Recommendations) > 0 {
		lines = append(lines, "", watchSectionStyle.Render("recommendations"), renderRule(m.width))
		for _, r := range res.Costs.Recommendations {
			lines = append(lines, watchWarnStyle.Render(ansi.Truncate(r.Message, m.lineWidth(), "…")))
		}
	}

	return strings.Join(lines, "\n")
}

func (m watchModel) viewTools() string {
	res := m.result
	lines := []string{watchSectionStyle.Render("tools"), renderRule(m.width)}

	names := res.ToolNames()
	if len(names) == 0 {
		return strings.Join(append(lines, watchMutedStyle.Render("no tool usage yet")), "\n")
	}

	peak := res.Tools[names[0]].Usage
	for _, name := range names[:min(len(names), listLimit)] {
		t := res.Tools[name]
		success := watchMutedStyle.Render("n/a")
		if t.SuccessRate != nil {
			style := watchMetricValue
			if *t.SuccessRate < 0.5 {
				style = watchFailStyle
			}
			success = style.Render(formatPercent(*t.SuccessRate))
		}
		lines = append(lines, fmt.Sprintf("%s %s %4d  %s  %d sessions",
			fitCell(name, 20),
			watchAccentStyle.Render(renderBar(float64(t.Usage), float64(peak), barWidth)),
			t.Usage, success, t.DistinctSessions))
	}
	if len(names) > listLimit {
		lines = append(lines, watchMutedStyle.Render(fmt.Sprintf("%d more", len(names)-listLimit)))
	}

	return strings.Join(lines, "\n")
}

func (m watchModel) viewSessions() string {
	res := m.result
	lines := []string{watchSectionStyle.Render("sessions"), renderRule(m.width)}

	sessions := slices.SortedFunc(maps.Values(res.Sessions), func(a, b analysis.SessionStats) int {
		if c := cmp.Compare(b.MessageCount, a.MessageCount); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if len(sessions) == 0 {
		return strings.Join(append(lines, watchMutedStyle.Render("no sessions yet")), "\n")
	}

	lines = append(lines, watchMetricLabel.Render(fmt.Sprintf("%s %8s %8s %8s %10s", fitCell("SESSION", 24), "MSGS", "TOOLS", "TIME", "COST")))
	for _, s := range sessions[:min(len(sessions), listLimit)] {
		elapsed := "-"
		if s.Duration != nil {
			elapsed = formatDuration(*s.Duration)
		}
		lines = append(lines, fmt.Sprintf("%s %8d %8d %8s %10s",
			fitCell(s.ID, 24), s.MessageCount, s.ToolUsages, elapsed, formatCost(s.Cost)))
	}
	if len(sessions) > listLimit {
		lines = append(lines, watchMutedStyle.Render(fmt.Sprintf("%d more", len(sessions)-listLimit)))
	}

	return strings.Join(lines, "\n")
}

func (m watchModel) lineWidth() int {
	if m.width <= 0 {
		return defaultWidth
	}
	return m.width
}

func formatCost(value float64) string {
	return fmt.Sprintf("$%.3f", value)
}

func formatAverageCost(value *float64) string {
	if value == nil {
		return "-"
	}
	return fmt.Sprintf("$%.4f", *value)
}

func formatAverage(value *float64) string {
	if value == nil {
		return "-"
	}
	return formatTokens(int64(*value))
}

func formatTokens(value int64) string {
	if value >= 1_000_000 {
		return fmt.Sprintf("%.1fM", float64(value)/1_000_000.0)
	}
	if value >= 1_000 {
		return fmt.Sprintf("%.1fK", float64(value)/1_000.0)
	}
	return strconv.FormatInt(value, 10)
}

func formatDuration(value time.Duration) string {
	if value <= 0 {
		return "0s"
	}

	minutes := int(value.Minutes())
	seconds := int(value.Seconds()) % 60
	hours := minutes / 60
	minutes %= 60
	if hours > 0 {
		return fmt.Sprintf("%dh%dm", hours, minutes)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}

func formatAgo(value time.Duration) string {
	if value < time.Second {
		return "just now"
	}
	return formatDuration(value) + " ago"
}

func formatPercent(value float64) string {
	return fmt.Sprintf("%.0f%%", value*100)
}

func renderBar(value, ceiling float64, width int) string {
	if ceiling <= 0 {
		return strings.Repeat("░", width)
	}
	ratio := value / ceiling
	filled := min(max(int(ratio*float64(width)), 0), width)
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func renderHeaderLine(width int, left, right string) string {
	lineWidth := width
	if lineWidth <= 0 {
		lineWidth = defaultWidth
	}
	leftWidth := lipgloss.Width(left)
	rightWidth := lipgloss.Width(right)
	if leftWidth+rightWidth+1 >= lineWidth {
		return strings.TrimSpace(left + " " + right)
	}
	return left + strings.Repeat(" ", lineWidth-leftWidth-rightWidth) + right
}

func renderRule(width int) string {
	if width <= 0 {
		width = defaultWidth
	}
	return watchDividerStyle.Render(strings.Repeat("─", width))
}

func renderMetricRow(width int, items []string, style lipgloss.Style) string {
	if len(items) == 0 {
		return ""
	}
	if width <= 0 {
		width = defaultWidth
	}
	cols := len(items)
	colWidth := max((width-(cols-1)*2)/cols, 12)
	parts := make([]string, 0, len(items))
	for _, item := range items {
		parts = append(parts, style.Render(fitCell(item, colWidth)))
	}
	return strings.Join(parts, "  ")
}

// fitCell truncates or pads value to exactly width cells.
func fitCell(value string, width int) string {
	if width <= 0 {
		return value
	}
	value = ansi.Truncate(value, width, "…")
	return value + strings.Repeat(" ", max(width-ansi.StringWidth(value), 0))
}
