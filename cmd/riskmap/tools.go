package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"golang.org/x/time/rate"

	"github.com/Mindburn-Labs/riskmap/pkg/api"
	"github.com/Mindburn-Labs/riskmap/pkg/choropleth"
	"github.com/Mindburn-Labs/riskmap/pkg/config"
	"github.com/Mindburn-Labs/riskmap/pkg/geoid"
	"github.com/Mindburn-Labs/riskmap/pkg/jurisdiction"
	"github.com/Mindburn-Labs/riskmap/pkg/mapservice"
	"github.com/Mindburn-Labs/riskmap/pkg/programs"
	"github.com/Mindburn-Labs/riskmap/pkg/resolver"
	"github.com/Mindburn-Labs/riskmap/pkg/riskdata"
	"github.com/Mindburn-Labs/riskmap/pkg/sources"
	"github.com/Mindburn-Labs/riskmap/pkg/style"
)

// dataFetcher reads risk, shapes and metrics sources. A failed data load is
// reported at once rather than retried.
func dataFetcher(s3Region, s3Endpoint string) *sources.Mux {
	mux := sources.NewMux(sources.NewHTTPFetcher(sources.WithRetries(0, 0)))
	mux.Handle("s3", sources.NewS3Fetcher(sources.S3Config{Region: s3Region, Endpoint: s3Endpoint}))
	mux.Handle("gs", sources.NewGCSFetcher())
	return mux
}

// fetchInput reads a local path or any URI the server could load.
func fetchInput(ctx context.Context, uri string) ([]byte, error) {
	return dataFetcher(os.Getenv("S3_REGION"), os.Getenv("S3_ENDPOINT")).Fetch(ctx, uri)
}

// writeOutput writes data to path, or to stdout for "" and "-".
func writeOutput(path string, stdout io.Writer, data []byte) error {
	if path == "" || path == "-" {
		_, err := stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func selectionFlags(fs *flag.FlagSet) (j, sub *string) {
	j = fs.String("jurisdiction", string(jurisdiction.US), "Jurisdiction code (US, EU, UK)")
	sub = fs.String("subcategory", resolver.All, "Subcategory name or \"all\"")
	return j, sub
}

func parseSelection(j, sub string) (resolver.Selection, error) {
	code, err := jurisdiction.Parse(j)
	if err != nil {
		return resolver.Selection{}, err
	}
	return resolver.Selection{Jurisdiction: code, Subcategory: sub}.Normalize(), nil
}

func runResolveCmd(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("resolve", stderr)
	var (
		riskPath   string
		code       string
		jsonOutput bool
	)
	fs.StringVar(&riskPath, "risk", "", "Risk data file or URI (REQUIRED)")
	fs.StringVar(&code, "code", "", "Country code (REQUIRED)")
	fs.BoolVar(&jsonOutput, "json", false, "Output the view as JSON")
	j, sub := selectionFlags(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if riskPath == "" || code == "" {
		fmt.Fprintln(stderr, "Error: --risk and --code are required")
		fs.Usage()
		return 2
	}
	sel, err := parseSelection(*j, *sub)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	data, err := fetchInput(context.Background(), riskPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	ds, err := riskdata.Parse(data, riskdata.Options{})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	view := resolver.New(ds, nil).Resolve(code, sel)
	if jsonOutput {
		out, _ := json.MarshalIndent(view, "", "  ")
		fmt.Fprintln(stdout, string(out))
		return 0
	}

	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Country:\t%s\n", view.Code)
	fmt.Fprintf(tw, "Selection:\t%s / %s\n", view.Jurisdiction, view.Subcategory)
	if !view.HasData {
		fmt.Fprintf(tw, "Data:\tnone\n")
	}
	fmt.Fprintf(tw, "Score:\t%g\n", view.Score)
	fmt.Fprintf(tw, "Risk:\t%s\n", view.Risk)
	fmt.Fprintf(tw, "EO / Det / Lic / Reg:\t%d / %d / %d / %d\n", view.EO, view.Det, view.Lic, view.Reg)
	if view.URL != "" {
		fmt.Fprintf(tw, "URL:\t%s\n", view.URL)
	}
	for _, d := range view.Details {
		fmt.Fprintf(tw, "Detail:\t%s %s %s\n", d.Type, d.Reference, d.Description)
	}
	_ = tw.Flush()
	return 0
}

// profileMapper loads an optional single profile file.
func profileMapper(path string) (*style.Mapper, error) {
	if path == "" {
		return style.NewMapper(), nil
	}
	p, err := config.LoadStyleProfile(path)
	if err != nil {
		return nil, err
	}
	return style.FromProfile(p)
}

func runRenderCmd(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("render", stderr)
	var shapes, risk, metrics, profile, out string
	fs.StringVar(&shapes, "shapes", "", "Country shapes GeoJSON file or URI (REQUIRED)")
	fs.StringVar(&risk, "risk", "", "Risk data file or URI (REQUIRED)")
	fs.StringVar(&metrics, "metrics", "", "Program metrics CSV file or URI")
	fs.StringVar(&profile, "profile", "", "Style profile YAML file")
	fs.StringVar(&out, "out", "-", "Output path (- for stdout)")
	j, sub := selectionFlags(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if shapes == "" || risk == "" {
		fmt.Fprintln(stderr, "Error: --shapes and --risk are required")
		fs.Usage()
		return 2
	}
	sel, err := parseSelection(*j, *sub)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	m, err := profileMapper(profile)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	ctx := context.Background()
	loc := sources.Locations{Shapes: shapes, Risk: risk, Metrics: metrics}
	bundle, err := sources.LoadAll(ctx, sources.FetcherFunc(fetchInput), loc)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	st, err := mapservice.New(mapservice.Options{Locations: loc}).Build(bundle)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	fc := choropleth.Render(st.Shapes, st.Normalizer, st.Resolver, m, sel)
	data, err := json.Marshal(fc)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if err := writeOutput(out, stdout, data); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if out != "-" && out != "" {
		s := fc.Metadata.Summary
		fmt.Fprintf(stdout, "Wrote %s: %d features, %d with data, %d without, %d unidentified\n",
			out, s.Total, s.WithData, s.NoData, s.Unknown)
		for _, level := range s.LevelNames() {
			fmt.Fprintf(stdout, "  %-10s %d\n", level, s.Levels[level])
		}
	}
	return 0
}

func runLegendCmd(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("legend", stderr)
	var profile string
	var jsonOutput bool
	fs.StringVar(&profile, "profile", "", "Style profile YAML file")
	fs.BoolVar(&jsonOutput, "json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	m, err := profileMapper(profile)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	entries := m.Legend()
	if jsonOutput {
		out, _ := json.MarshalIndent(entries, "", "  ")
		fmt.Fprintln(stdout, string(out))
		return 0
	}
	fmt.Fprintf(stdout, "Policy: %s\n", m.Policy)
	for _, e := range entries {
		fmt.Fprintf(stdout, "  %-18s %s\n", e.Label, e.Color)
	}
	return 0
}

func runHarvestCmd(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("harvest", stderr)
	var index, out string
	var rps float64
	fs.StringVar(&index, "index", programs.DefaultIndexURL, "Sanctions program index URL")
	fs.StringVar(&out, "out", "-", "Output CSV path (- for stdout)")
	fs.Float64Var(&rps, "rps", 2, "Maximum program page requests per second")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if rps <= 0 {
		fmt.Fprintln(stderr, "Error: --rps must be positive")
		return 2
	}

	h := &programs.Harvester{
		Fetcher:  sources.NewHTTPFetcher(),
		IndexURL: index,
		Limiter:  rate.NewLimiter(rate.Limit(rps), 1),
	}
	rows, err := h.Harvest(context.Background())
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	var buf bytes.Buffer
	if err := programs.WriteCSV(&buf, rows); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if err := writeOutput(out, stdout, buf.Bytes()); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if out != "-" {
		fmt.Fprintf(stdout, "Metrics for %d programs written to %s\n", len(rows), out)
	}
	return 0
}

func runMergeCmd(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("merge", stderr)
	var risk, metrics, shapes, out string
	fs.StringVar(&risk, "risk", "", "Risk data file or URI (REQUIRED)")
	fs.StringVar(&metrics, "metrics", "", "Program metrics CSV (REQUIRED)")
	fs.StringVar(&shapes, "shapes", "", "Country shapes, to match programs by country name")
	fs.StringVar(&out, "out", "-", "Output path (- for stdout)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if risk == "" || metrics == "" {
		fmt.Fprintln(stderr, "Error: --risk and --metrics are required")
		fs.Usage()
		return 2
	}

	ctx := context.Background()
	riskData, err := fetchInput(ctx, risk)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	metricsData, err := fetchInput(ctx, metrics)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	rows, err := riskdata.ParseMetrics(bytes.NewReader(metricsData))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	var names geoid.NameIndex
	if shapes != "" {
		shapeData, err := fetchInput(ctx, shapes)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		fc, err := choropleth.ParseShapes(shapeData)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		names = geoid.New().IndexFeatures(fc.Properties())
	}
	ds, err := riskdata.Parse(riskData, riskdata.Options{Names: names})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	res, err := riskdata.JoinMetrics(ds, rows, riskdata.JoinOptions{Names: names})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	data, err := json.MarshalIndent(res.Dataset, "", "  ")
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if err := writeOutput(out, stdout, append(data, '\n')); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	for _, p := range res.Unmatched {
		fmt.Fprintf(stderr, "Warning: no country for program %q\n", p)
	}
	if out != "-" {
		fmt.Fprintf(stdout, "Merged metrics into %d countries, wrote %s\n", len(res.Matched), out)
	}
	return 0
}

func runHashPasswordCmd(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := newFlagSet("hash-password", stderr)
	var password string
	fs.StringVar(&password, "password", "", "Password to hash (read from stdin when empty)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if password == "" {
		line, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil && err != io.EOF {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		password = strings.TrimRight(line, "\r\n")
	}
	if password == "" {
		fmt.Fprintln(stderr, "Error: empty password")
		return 2
	}
	hash, err := api.HashPassword(password)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, hash)
	return 0
}
