package programs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// DefaultActionsURL lists recent enforcement and designation actions.
const DefaultActionsURL = "https://ofac.treasury.gov/recent-actions"

// DefaultKeywords select the action titles worth summarizing.
var DefaultKeywords = []string{
	"settlement",
	"designations",
	"designation",
	"issuance",
	"removal",
	"executive order",
	"determination",
	"revocation",
	"publication",
}

const (
	actionsListClass = "view-recent-actions"
	actionBodyClass  = "field--name-body"
	// NoContent stands in for an action page without a readable body.
	NoContent = "No content to summarize"
)

var sentenceEnd = regexp.MustCompile(`[.!?]\s+`)

// Action is one recent action whose title matched a keyword.
type Action struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Summary string `json:"summary"`
}

// Monitor summarizes the recent-actions page. It shares the Harvester's
// fetcher, limiter, telemetry and logger.
type Monitor struct {
	Harvester
	// URL defaults to DefaultActionsURL.
	URL string
	// Keywords default to DefaultKeywords; matching is case-insensitive.
	Keywords []string
	// Sentences kept per summary; defaults to 2.
	Sentences int
}

func (m *Monitor) actionsURL() string {
	if m.URL != "" {
		return m.URL
	}
	return DefaultActionsURL
}

func (m *Monitor) matches(title string) bool {
	keywords := m.Keywords
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}
	lower := strings.ToLower(title)
	for _, kw := range keywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" && strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// ListActions returns the titled links of the actions list whose title
// contains a keyword, in page order. Summaries are left empty.
func (m *Monitor) ListActions(ctx context.Context) ([]Action, error) {
	page := m.actionsURL()
	base, err := url.Parse(page)
	if err != nil {
		return nil, fmt.Errorf("actions url: %w", err)
	}
	data, err := m.Fetcher.Fetch(ctx, page)
	if err != nil {
		return nil, fmt.Errorf("fetch actions: %w", err)
	}
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse actions: %w", err)
	}

	var out []Action
	for _, list := range findAll(doc, func(n *html.Node) bool { return isElement(n, "div") && hasClass(n, actionsListClass) }) {
		for _, h3 := range findAll(list, func(n *html.Node) bool { return isElement(n, "h3") }) {
			for _, a := range findAll(h3, func(n *html.Node) bool { return isElement(n, "a") }) {
				href, ok := attr(a, "href")
				title := strings.Join(strings.Fields(textOf(a)), " ")
				if !ok || !m.matches(title) {
					continue
				}
				ref, err := url.Parse(href)
				if err != nil {
					continue
				}
				out = append(out, Action{Title: title, URL: base.ResolveReference(ref).String()})
			}
		}
	}
	return out, nil
}

// Run lists the matching actions and summarizes each body. An action page
// that cannot be fetched keeps an empty summary and is logged.
func (m *Monitor) Run(ctx context.Context) (actions []Action, err error) {
	ctx, done := m.Telemetry.TrackOperation(ctx, "programs.actions")
	defer func() { done(err) }()

	actions, err = m.ListActions(ctx)
	if err != nil {
		return nil, err
	}
	log := m.logger()
	log.InfoContext(ctx, "recent actions matched", "count", len(actions))

	sentences := m.Sentences
	if sentences <= 0 {
		sentences = 2
	}
	for i := range actions {
		if m.Limiter != nil {
			if err := m.Limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		page, err := m.Fetcher.Fetch(ctx, actions[i].URL)
		switch {
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case err != nil:
			log.WarnContext(ctx, "action page fetch failed", "title", actions[i].Title, "url", actions[i].URL, "error", err)
		default:
			actions[i].Summary = Lead(bodyText(page), sentences)
		}
	}
	return actions, nil
}

// Lead returns the first n sentences of text. Sentences end at '.', '!' or
// '?' followed by white space.
func Lead(text string, n int) string {
	text = strings.TrimSpace(text)
	if text == "" || n <= 0 {
		return ""
	}
	var parts []string
	start := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(text, -1) {
		parts = append(parts, text[start:loc[0]+1])
		start = loc[1]
		if len(parts) == n {
			return strings.Join(parts, " ")
		}
	}
	parts = append(parts, text[start:])
	return strings.TrimSpace(strings.Join(parts, " "))
}

// WriteReport writes the plain-text summary of one run.
func WriteReport(w io.Writer, at time.Time, actions []Action) error {
	if _, err := fmt.Fprintf(w, "Summary run at %s\nFound %d matches:\n\n", at.Format(time.RFC3339), len(actions)); err != nil {
		return err
	}
	for _, a := range actions {
		summary := a.Summary
		if summary == "" {
			summary = NoContent
		}
		if _, err := fmt.Fprintf(w, "> %s\nURL: %s\n%s\n\n", a.Title, a.URL, summary); err != nil {
			return err
		}
	}
	return nil
}

// ReportName is the file name of the report written at t.
func ReportName(t time.Time) string {
	return "recent_actions_summary_" + t.Format("2006-01-02_1504") + ".txt"
}

// Clock is a time of day.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClocks parses a comma separated list of HH:MM times, sorted.
func ParseClocks(s string) ([]Clock, error) {
	var out []Clock
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		h, mm, ok := strings.Cut(field, ":")
		hour, errH := strconv.Atoi(h)
		minute, errM := strconv.Atoi(mm)
		if !ok || errH != nil || errM != nil || hour < 0 || hour > 23 || minute < 0 || minute > 59 {
			return nil, fmt.Errorf("invalid time of day %q (want HH:MM)", field)
		}
		out = append(out, Clock{Hour: hour, Minute: minute})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no times of day in %q", s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Hour*60+out[i].Minute < out[j].Hour*60+out[j].Minute
	})
	return out, nil
}

// NextRun returns the first of the daily times strictly after now, in
// now's location.
func NextRun(now time.Time, times []Clock) time.Time {
	var next time.Time
	for day := 0; day <= 1 && next.IsZero(); day++ {
		y, mo, d := now.AddDate(0, 0, day).Date()
		for _, c := range times {
			t := time.Date(y, mo, d, c.Hour, c.Minute, 0, 0, now.Location())
			if t.After(now) {
				next = t
				break
			}
		}
	}
	return next
}

// Schedule calls job at each of the daily times until ctx is done, and
// returns ctx.Err().
func Schedule(ctx context.Context, times []Clock, loc *time.Location, job func(context.Context)) error {
	if len(times) == 0 {
		return fmt.Errorf("schedule: no times of day")
	}
	if loc == nil {
		loc = time.Local
	}
	for {
		wait := time.Until(NextRun(time.Now().In(loc), times))
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			job(ctx)
		}
	}
}

func bodyText(page []byte) string {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return ""
	}
	bodies := findAll(doc, func(n *html.Node) bool { return isElement(n, "div") && hasClass(n, actionBodyClass) })
	if len(bodies) == 0 {
		return ""
	}
	return strings.Join(strings.Fields(spacedText(bodies[0])), " ")
}

// spacedText joins text nodes with a space so adjacent block elements do
// not run together.
func spacedText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var parts []string
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if s := strings.TrimSpace(spacedText(c)); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// findAll returns the descendants of n matching pred, in document order.
// Matches are not searched further.
func findAll(n *html.Node, pred func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if pred(c) {
			out = append(out, c)
			continue
		}
		out = append(out, findAll(c, pred)...)
	}
	return out
}

func isElement(n *html.Node, tag string) bool {
	return n.Type == html.ElementNode && n.Data == tag
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func hasClass(n *html.Node, class string) bool {
	v, ok := attr(n, "class")
	if !ok {
		return false
	}
	for _, c := range strings.Fields(v) {
		if c == class {
			return true
		}
	}
	return false
}
