package analyzecmder

import (
	"fmt"
	"io"
	"time"

	"github.com/papercomputeco/tally/pkg/analysis"
	"github.com/papercomputeco/tally/pkg/cliui"
	"github.com/papercomputeco/tally/pkg/record"
	"github.com/papercomputeco/tally/pkg/utils"
)

const topTools = 5

func writeText(w io.Writer, res *analysis.Result, path string) {
	s := res.Summary

	fmt.Fprintf(w, "\n  %s %s\n\n", cliui.HeaderStyle.Render("tally"), cliui.DimStyle.Render(path))

	lines := []string{
		cliui.Field("Records", s.TotalMessages),
		cliui.Field("Valid", s.ValidMessages),
		cliui.Field("Invalid", fmt.Sprintf("%d (%d parse, %d validation)", s.InvalidMessages, s.ParseErrors, s.ValidationErrors)),
		cliui.Field("Sessions", s.UniqueSessions),
		cliui.Field("Conversations", s.UniqueConversations),
		cliui.Field("User / assistant", fmt.Sprintf("%d / %d", s.Count(record.TypeUser), s.Count(record.TypeAssistant))),
		cliui.Field("Tool uses", s.Count(record.TypeToolUsage)),
		cliui.Field("Tokens", res.Tokens.Total),
		cliui.Field("Cost", fmt.Sprintf("$%.4f", res.Costs.Total)),
	}
	if span := s.Span(); span > 0 {
		lines = append(lines, cliui.Field("Span", cliui.FormatDuration(span.Round(time.Second))))
	}
	for _, line := range lines {
		fmt.Fprintf(w, "  %s\n", line)
	}

	if names := res.ToolNames(); len(names) > 0 {
		fmt.Fprintf(w, "\n  %s\n", cliui.HeaderStyle.Render("Top tools"))
		for _, name := range names[:min(len(names), topTools)] {
			t := res.Tools[name]
			fmt.Fprintf(w, "  %s\n", cliui.Field(utils.Truncate(name, 20), fmt.Sprintf("%d uses in %d sessions", t.Usage, t.DistinctSessions)))
		}
	}

	if len(res.Costs.Recommendations) > 0 {
		fmt.Fprintf(w, "\n  %s\n", cliui.HeaderStyle.Render("Recommendations"))
		for _, r := range res.Costs.Recommendations {
			fmt.Fprintf(w, "  %s\n", cliui.DimStyle.Render(r.Message))
		}
	}

	fmt.Fprintln(w)
}
