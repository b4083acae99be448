package narrative

import (
	"fmt"
	"strings"

	"github.com/malbeclabs/calldash/api/analytics"
)

// BuildPrompt renders the day metrics, top objections and call sample into the
// analysis prompt. The sample carries no names or contact details.
func BuildPrompt(day analytics.DayReport, sample []analytics.SampleRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, `You are a sales coach reviewing one day of outbound calls made by voice agents.

Date: %s
Calls: %d
Contacted: %d
Booked: %d
Conversion rate: %s%%
Average call duration: %.0f seconds
`, day.Date, day.Calls, day.Contacted, day.Booked, day.ConversionRate, day.AvgDuration)

	if len(day.Objections) > 0 {
		b.WriteString("\nMost common objections:\n")
		for _, o := range day.Objections {
			fmt.Fprintf(&b, "- %s: %d\n", o.Label, o.Count)
		}
	}

	fmt.Fprintf(&b, "\nSample of %d calls:\n", len(sample))
	for i, s := range sample {
		fmt.Fprintf(&b, "\n### Call %d\nOutcome: %s\nStatus: %s\nDuration: %.0fs\nAttempts: %d\n",
			i+1, s.Outcome, s.Status, s.Duration, s.Attempts)
		if s.Transcript != "" {
			fmt.Fprintf(&b, "Transcript:\n%s\n", s.Transcript)
		}
	}

	b.WriteString(`
Write a concise report in markdown with these sections:
## Summary
## What worked
## Objections and how to handle them
## Recommendations for tomorrow
`)
	return b.String()
}
