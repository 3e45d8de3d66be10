package riskdata

import (
	"log/slog"
	"sort"

	"github.com/Mindburn-Labs/riskmap/pkg/geoid"
	"github.com/Mindburn-Labs/riskmap/pkg/jurisdiction"
)

// ProgramIndex maps canonical country codes to the name of the sanctions
// program whose metrics describe them.
type ProgramIndex map[string]string

// DefaultProgramIndex assigns OFAC programs to the countries they target.
// Multi-country programs appear once per country.
func DefaultProgramIndex() ProgramIndex {
	return ProgramIndex{
		"AFG": "Afghanistan-Related Sanctions",
		"ALB": "Balkans-Related Sanctions",
		"BIH": "Balkans-Related Sanctions",
		"MNE": "Balkans-Related Sanctions",
		"SRB": "Balkans-Related Sanctions",
		"BLR": "Belarus Sanctions",
		"MMR": "Burma-Related Sanctions",
		"CAF": "Central African Republic Sanctions",
		"CHN": "Chinese Military Companies Sanctions",
		"CUB": "Cuba Sanctions",
		"COD": "Democratic Republic of the Congo-Related Sanctions",
		"ETH": "Ethiopia-Related Sanctions",
		"IRN": "Iran Sanctions",
		// No Iraq-specific program is published; counter terrorism stands in.
		"IRQ": "Counter Terrorism Sanctions",
		"LBY": "Libya-Related Sanctions",
		"NIC": "Nicaragua-related Sanctions",
		"PRK": "North Korea Sanctions",
		"SOM": "Somalia Sanctions",
		"SSD": "South Sudan-Related Sanctions",
		"SDN": "Sudan and Darfur Sanctions",
		"UKR": "Ukraine-/Russia-related Sanctions",
		"RUS": "Ukraine-/Russia-related Sanctions",
		"VEN": "Venezuela-Related Sanctions",
		"YEM": "Yemen-related Sanctions",
	}
}

// JoinOptions controls JoinMetrics.
type JoinOptions struct {
	// Jurisdiction receiving the counters. Defaults to US.
	Jurisdiction jurisdiction.Code
	// Programs maps codes to program names. Defaults to DefaultProgramIndex.
	Programs ProgramIndex
	// Names resolves program country tokens for codes absent from Programs.
	Names  geoid.NameIndex
	Logger *slog.Logger
}

// JoinResult reports what JoinMetrics matched.
type JoinResult struct {
	Dataset   *Dataset
	Matched   []string // codes that received metrics, sorted
	Unmatched []string // programs no code matched, sorted
}

// JoinMetrics returns a copy of ds whose jurisdiction records carry the
// counters and URL of the matching metrics row. Rows are matched through the
// program index first, then by country token through the name index. Counts
// that are blank in the row leave the record's value untouched. ds itself is
// not modified.
func JoinMetrics(ds *Dataset, rows []MetricsRow, opts JoinOptions) (*JoinResult, error) {
	if opts.Jurisdiction == "" {
		opts.Jurisdiction = jurisdiction.US
	}
	if opts.Programs == nil {
		opts.Programs = DefaultProgramIndex()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default().With("component", "riskdata")
	}

	byProgram := make(map[string]MetricsRow, len(rows))
	for _, r := range rows {
		if _, dup := byProgram[r.Program]; !dup {
			byProgram[r.Program] = r
		}
	}

	assign := make(map[string]MetricsRow)
	used := make(map[string]bool)
	for code, program := range opts.Programs {
		if r, ok := byProgram[program]; ok {
			assign[code] = r
			used[program] = true
		}
	}
	if opts.Names != nil {
		for _, r := range rows {
			code, ok := opts.Names.Lookup(r.Country())
			if !ok {
				continue
			}
			if _, taken := assign[code]; taken {
				continue
			}
			assign[code] = r
			used[r.Program] = true
		}
	}

	out := ds.clone()
	matched := make([]string, 0, len(assign))
	for code, row := range assign {
		rec, ok := out.records[code]
		if !ok {
			rec = &Record{Code: code, Jurisdictions: make(map[jurisdiction.Code]*JurisdictionRecord)}
			out.records[code] = rec
		}
		jr, ok := rec.Jurisdictions[opts.Jurisdiction]
		if !ok {
			jr = &JurisdictionRecord{}
			rec.Jurisdictions[opts.Jurisdiction] = jr
		}
		applyRow(&jr.Fields, row)
		matched = append(matched, code)
	}
	sort.Strings(matched)

	var unmatched []string
	for program := range byProgram {
		if !used[program] {
			unmatched = append(unmatched, program)
		}
	}
	sort.Strings(unmatched)

	hash, err := out.computeHash()
	if err != nil {
		return nil, err
	}
	out.hash = hash

	opts.Logger.Info("metrics joined",
		"jurisdiction", opts.Jurisdiction,
		"matched", len(matched),
		"unmatched_programs", len(unmatched),
	)
	return &JoinResult{Dataset: out, Matched: matched, Unmatched: unmatched}, nil
}

func applyRow(f *Fields, row MetricsRow) {
	if row.EO != nil {
		f.EO = copyPtr(row.EO)
	}
	if row.Det != nil {
		f.Det = copyPtr(row.Det)
	}
	if row.Lic != nil {
		f.Lic = copyPtr(row.Lic)
	}
	if row.URL != "" {
		u := row.URL
		f.URL = &u
	}
}
