package riskdata

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Metrics file column headers.
const (
	ColumnProgram = "Program Name"
	ColumnURL     = "URL"
	ColumnEO      = "EO_Count"
	ColumnDet     = "Determination_Count"
	ColumnLic     = "License_Count"
)

// MetricsHeader is the column order written by the program harvester.
var MetricsHeader = []string{ColumnProgram, ColumnURL, ColumnEO, ColumnDet, ColumnLic}

// MetricsRow is one sanctions program line of the metrics file. Blank
// counts stay nil.
type MetricsRow struct {
	Program string
	URL     string
	EO      *int
	Det     *int
	Lic     *int
}

// Country returns the country token of the program name.
func (r MetricsRow) Country() string { return CountryToken(r.Program) }

// CountryToken extracts the country part of a program name: the text before
// the first '-', trimmed. "Afghanistan-Related Sanctions" yields
// "Afghanistan".
func CountryToken(program string) string {
	head, _, _ := strings.Cut(program, "-")
	return strings.TrimSpace(head)
}

// ParseMetrics reads a program metrics CSV. Columns are located by header
// name; only the program name column is required.
func ParseMetrics(r io.Reader) ([]MetricsRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("metrics csv: missing header")
		}
		return nil, fmt.Errorf("metrics csv: read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		cols[strings.ToLower(h)] = i
	}
	programCol, ok := cols[strings.ToLower(ColumnProgram)]
	if !ok {
		return nil, fmt.Errorf("metrics csv: missing %q column", ColumnProgram)
	}

	cell := func(rec []string, name string) string {
		i, ok := cols[strings.ToLower(name)]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var rows []MetricsRow
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("metrics csv: %w", err)
		}
		if programCol >= len(rec) {
			continue
		}
		program := strings.TrimSpace(rec[programCol])
		if program == "" {
			continue
		}
		rows = append(rows, MetricsRow{
			Program: program,
			URL:     cell(rec, ColumnURL),
			EO:      parseCount(cell(rec, ColumnEO)),
			Det:     parseCount(cell(rec, ColumnDet)),
			Lic:     parseCount(cell(rec, ColumnLic)),
		})
	}
	return rows, nil
}

// WriteMetrics writes rows in the metrics CSV layout.
func WriteMetrics(w io.Writer, rows []MetricsRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(MetricsHeader); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write([]string{r.Program, r.URL, formatCount(r.EO), formatCount(r.Det), formatCount(r.Lic)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func parseCount(s string) *int {
	if s == "" {
		return nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return &n
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	n := int(math.Round(f))
	return &n
}

func formatCount(n *int) string {
	if n == nil {
		return ""
	}
	return strconv.Itoa(*n)
}
