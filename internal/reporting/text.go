package reporting

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/FairForge/loginramp/internal/loadtest"
)

type palette struct {
	good, warn, bad, bold *color.Color
}

func newPalette(enabled bool) palette {
	p := palette{
		good: color.New(color.FgGreen),
		warn: color.New(color.FgYellow),
		bad:  color.New(color.FgRed),
		bold: color.New(color.Bold),
	}
	for _, c := range []*color.Color{p.good, p.warn, p.bad, p.bold} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

func (p palette) rate(rate float64, cfg loadtest.RunConfig) *color.Color {
	switch {
	case rate >= cfg.RateThreshold:
		return p.good
	case rate >= cfg.PoorRate:
		return p.warn
	default:
		return p.bad
	}
}

// WriteText writes the human-readable summary of run.
func (g *Generator) WriteText(w io.Writer, run *loadtest.TestRun) error {
	p := newPalette(g.Color)
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s\n", p.bold.Sprint("Login ramp"), run.ID)
	fmt.Fprintf(&b, "Target:       %s", run.Config.Target.Endpoint)
	if run.Config.Target.Account != "" {
		fmt.Fprintf(&b, " (account %s)", run.Config.Target.Account)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Started:      %s\n", run.StartTime.Format(time.RFC3339))
	fmt.Fprintf(&b, "Duration:     %s\n", run.Duration().Round(time.Millisecond))
	fmt.Fprintf(&b, "Stop reason:  %s\n", run.StopReason)
	fmt.Fprintf(&b, "Sessions:     %d across %d levels\n\n", run.TotalSessions(), len(run.Levels))

	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "LEVEL\tOK\tRATE\tAVG\tP95\tMAX\tWALL\t")
	for _, l := range run.Levels {
		fmt.Fprintf(tw, "%d\t%d/%d\t%s\t%s\t%s\t%s\t%s\t",
			l.Concurrency,
			l.SuccessCount, l.Concurrency,
			p.rate(l.SuccessRate, run.Config).Sprintf("%.1f%%", l.SuccessRate),
			fmtDuration(l.AverageResponseTime),
			fmtDuration(l.P95ResponseTime),
			fmtDuration(l.MaxResponseTime),
			fmtDuration(l.TotalWallTime))
		fmt.Fprintf(tw, "  %s\n", errorSummary(l))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	b.WriteString("\n")

	if cp := run.CriticalPoint; cp != nil {
		fmt.Fprintf(&b, "%s concurrency %d (%.1f%% success, avg %s) [%s]\n",
			p.bold.Sprint("Critical point:"),
			cp.Concurrency, cp.SuccessRate, fmtDuration(cp.AverageResponseTime), cp.Kind)
	} else {
		fmt.Fprintf(&b, "%s none detected\n", p.bold.Sprint("Critical point:"))
	}
	fmt.Fprintf(&b, "Max stable concurrency (>= %.0f%%): %d\n",
		run.Config.RateThreshold, run.MaxStableConcurrency(run.Config.RateThreshold))

	_, err := io.WriteString(w, b.String())
	return err
}

func errorSummary(l loadtest.LevelResult) string {
	if l.Synthesized {
		return "level failed: " + l.LevelError
	}
	var parts []string
	for _, kind := range loadtest.ErrorKinds() {
		if n := l.ErrorHistogram[kind]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", kind, n))
		}
	}
	return strings.Join(parts, " ")
}

func fmtDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}
