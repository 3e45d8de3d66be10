// Package programs harvests per-program counters from the OFAC sanctions
// program pages and writes them in the metrics CSV layout.
package programs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/time/rate"

	"github.com/Mindburn-Labs/riskmap/pkg/observability"
	"github.com/Mindburn-Labs/riskmap/pkg/riskdata"
	"github.com/Mindburn-Labs/riskmap/pkg/sources"
)

const (
	// DefaultIndexURL lists every sanctions program.
	DefaultIndexURL = "https://ofac.treasury.gov/sanctions-programs-and-country-information"
	// ProgramPath is the path segment shared by program page links.
	ProgramPath = "/sanctions-programs-and-country-information/"
)

var (
	eoPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)E\.O\.\s*\d+`),
		regexp.MustCompile(`(?i)Executive Order\s*\d+`),
	}
	determinationRe  = regexp.MustCompile(`(?i)\bDetermination\b`)
	generalLicenseRe = regexp.MustCompile(`(?i)General License`)
)

// Metrics are the counters of one program page.
type Metrics struct {
	EO  int
	Det int
	Lic int
}

// CountMetrics counts executive order references, determinations and
// general licenses in a page. Executive orders count each distinct matched
// reference once; the others count every occurrence.
func CountMetrics(page string) Metrics {
	seen := make(map[string]struct{})
	for _, re := range eoPatterns {
		for _, m := range re.FindAllString(page, -1) {
			seen[m] = struct{}{}
		}
	}
	return Metrics{
		EO:  len(seen),
		Det: len(determinationRe.FindAllStringIndex(page, -1)),
		Lic: len(generalLicenseRe.FindAllStringIndex(page, -1)),
	}
}

// Program is one link of the index page.
type Program struct {
	Name string
	URL  string
}

// Harvester walks the program index.
type Harvester struct {
	Fetcher  sources.Fetcher
	IndexURL string
	// Limiter paces page fetches when set.
	Limiter   *rate.Limiter
	Telemetry *observability.Provider
	Logger    *slog.Logger
}

func (h *Harvester) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default().With("component", "programs")
}

func (h *Harvester) indexURL() string {
	if h.IndexURL != "" {
		return h.IndexURL
	}
	return DefaultIndexURL
}

// ListPrograms returns the programs linked from the index page, sorted by
// name. A name linked twice keeps its last link.
func (h *Harvester) ListPrograms(ctx context.Context) ([]Program, error) {
	index := h.indexURL()
	base, err := url.Parse(index)
	if err != nil {
		return nil, fmt.Errorf("index url: %w", err)
	}
	page, err := h.Fetcher.Fetch(ctx, index)
	if err != nil {
		return nil, fmt.Errorf("fetch index: %w", err)
	}
	links, err := extractLinks(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse index: %w", err)
	}

	byName := make(map[string]string)
	for _, l := range links {
		if l.text == "" || !strings.Contains(l.href, ProgramPath) {
			continue
		}
		ref, err := url.Parse(l.href)
		if err != nil {
			continue
		}
		byName[l.text] = base.ResolveReference(ref).String()
	}

	out := make([]Program, 0, len(byName))
	for name, u := range byName {
		out = append(out, Program{Name: name, URL: u})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Harvest counts the metrics of every program. A page that cannot be
// fetched yields a row with blank counts.
func (h *Harvester) Harvest(ctx context.Context) (rows []riskdata.MetricsRow, err error) {
	ctx, done := h.Telemetry.TrackOperation(ctx, "programs.harvest")
	defer func() { done(err) }()

	progs, err := h.ListPrograms(ctx)
	if err != nil {
		return nil, err
	}
	log := h.logger()
	log.InfoContext(ctx, "programs listed", "count", len(progs))

	rows = make([]riskdata.MetricsRow, 0, len(progs))
	for _, p := range progs {
		if h.Limiter != nil {
			if err := h.Limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		row := riskdata.MetricsRow{Program: p.Name, URL: p.URL}
		page, err := h.Fetcher.Fetch(ctx, p.URL)
		switch {
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case err != nil:
			log.WarnContext(ctx, "program page fetch failed", "program", p.Name, "url", p.URL, "error", err)
		default:
			m := CountMetrics(string(page))
			row.EO, row.Det, row.Lic = riskdata.Ptr(m.EO), riskdata.Ptr(m.Det), riskdata.Ptr(m.Lic)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// WriteCSV writes rows in the layout read by riskdata.ParseMetrics.
func WriteCSV(w io.Writer, rows []riskdata.MetricsRow) error {
	return riskdata.WriteMetrics(w, rows)
}

type link struct {
	href string
	text string
}

func extractLinks(r io.Reader) ([]link, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}
	var out []link
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, a := range n.Attr {
				if a.Key == "href" {
					out = append(out, link{href: a.Val, text: strings.Join(strings.Fields(textOf(n)), " ")})
					break
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out, nil
}

func textOf(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(textOf(c))
	}
	return sb.String()
}
