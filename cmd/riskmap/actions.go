package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/Mindburn-Labs/riskmap/pkg/programs"
	"github.com/Mindburn-Labs/riskmap/pkg/sources"
)

func runActionsCmd(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("actions", stderr)
	var (
		pageURL, keywords, out, at, tz, dir string
		sentences                           int
		rps                                 float64
	)
	fs.StringVar(&pageURL, "url", programs.DefaultActionsURL, "Recent actions page URL")
	fs.StringVar(&keywords, "keywords", strings.Join(programs.DefaultKeywords, ","), "Comma separated title keywords")
	fs.IntVar(&sentences, "sentences", 2, "Sentences kept per summary")
	fs.StringVar(&out, "out", "-", "Report path for a single run (- for stdout)")
	fs.StringVar(&at, "at", "", "Run daily at these HH:MM times (e.g. 09:00,13:00,19:00) instead of once")
	fs.StringVar(&tz, "tz", "Local", "Time zone of --at")
	fs.StringVar(&dir, "dir", ".", "Directory for scheduled reports")
	fs.Float64Var(&rps, "rps", 2, "Maximum action page requests per second")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if rps <= 0 || sentences <= 0 {
		fmt.Fprintln(stderr, "Error: --rps and --sentences must be positive")
		return 2
	}

	m := &programs.Monitor{
		Harvester: programs.Harvester{
			Fetcher: sources.NewHTTPFetcher(),
			Limiter: rate.NewLimiter(rate.Limit(rps), 1),
		},
		URL:       pageURL,
		Keywords:  strings.Split(keywords, ","),
		Sentences: sentences,
	}

	if at == "" {
		var buf bytes.Buffer
		n, err := summarizeActions(context.Background(), m, time.Now(), &buf)
		if err == nil {
			err = writeOutput(out, stdout, buf.Bytes())
		}
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		if out != "-" {
			fmt.Fprintf(stdout, "%d matching actions written to %s\n", n, out)
		}
		return 0
	}

	times, err := programs.ParseClocks(at)
	if err != nil {
		fmt.Fprintf(stderr, "Error: --at: %v\n", err)
		return 2
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		fmt.Fprintf(stderr, "Error: --tz: %v\n", err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	fmt.Fprintf(stdout, "Scheduler started: daily at %s (%s)\n", at, loc)
	_ = programs.Schedule(ctx, times, loc, func(ctx context.Context) {
		now := time.Now().In(loc)
		path := filepath.Join(dir, programs.ReportName(now))
		var buf bytes.Buffer
		n, err := summarizeActions(ctx, m, now, &buf)
		if err == nil {
			err = writeOutput(path, stdout, buf.Bytes())
		}
		if err != nil {
			slog.Error("recent actions run failed", "error", err)
			return
		}
		fmt.Fprintf(stdout, "%d matching actions written to %s\n", n, path)
	})
	return 0
}

func summarizeActions(ctx context.Context, m *programs.Monitor, at time.Time, w io.Writer) (int, error) {
	actions, err := m.Run(ctx)
	if err != nil {
		return 0, err
	}
	return len(actions), programs.WriteReport(w, at, actions)
}
