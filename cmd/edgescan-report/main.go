// Command edgescan-report prints per-strategy performance from the position
// ledger: today, the trailing week, or all time.
package main

import (
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"

	"github.com/brendanplayford/edgescan/pkg/ledger"
	"github.com/brendanplayford/edgescan/pkg/perf"
)

func main() {
	var (
		dataDir   = flag.String("data", "data", "engine data directory")
		span      = flag.String("period", "all", "report period: day, week, or all")
		simulated = flag.Bool("simulated", false, "include dry-run results")
	)
	flag.Parse()

	led, err := ledger.Open(*dataDir, nil, ledger.Config{}, zerolog.Nop())
	if err != nil {
		fmt.Fprintf(os.Stderr, "open ledger: %v\n", err)
		os.Exit(1)
	}

	var period perf.Period
	now := time.Now()
	switch *span {
	case "day":
		period = perf.Day(now, time.Local)
	case "week":
		period = perf.Period{From: now.AddDate(0, 0, -7)}
	case "all":
	default:
		fmt.Fprintf(os.Stderr, "unknown period %q (want day, week, or all)\n", *span)
		os.Exit(2)
	}

	report := perf.Summarize(led.Positions(), period)
	printReport(report, *simulated)
}

func printReport(r perf.Report, includeSimulated bool) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STRATEGY\tMODE\tOPEN\tCLOSED\tFAILED\tWIN RATE\tSTAKED\tPNL\tAVG")

	printed := 0
	for _, s := range r.Strategies {
		if s.Simulated && !includeSimulated {
			continue
		}
		mode := "real"
		if s.Simulated {
			mode = "dry-run"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%.1f%%\t$%s\t$%s\t$%s\n",
			s.Strategy, mode, s.Open, s.Closed, s.Failed,
			s.WinRate*100, s.TotalStaked.StringFixed(2),
			s.TotalPnL.StringFixed(2), s.AvgPnL.StringFixed(2))
		printed++
	}
	w.Flush()

	if printed == 0 {
		fmt.Println("no positions in period")
		return
	}

	fmt.Printf("\nreal total: $%s\n", r.Totals(false).StringFixed(2))
	if includeSimulated {
		fmt.Printf("dry-run total: $%s\n", r.Totals(true).StringFixed(2))
	}
}
