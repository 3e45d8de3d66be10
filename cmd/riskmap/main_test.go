package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Mindburn-Labs/riskmap/pkg/riskdata"
)

const (
	shapesDoc = `{"type":"FeatureCollection","features":[
 {"type":"Feature","properties":{"ISO_A3":"IRN","ADMIN":"Iran"},"geometry":null},
 {"type":"Feature","properties":{"ISO_A3":"CUB","ADMIN":"Cuba"},"geometry":null},
 {"type":"Feature","properties":{"ISO_A3":"-99","ADMIN":"Nowhere"},"geometry":null}
]}`
	riskDoc    = `{"IRN":{"US":{"score":90,"risk":"high","eo":3,"Terrorism":{"score":50,"risk":"medium"}}}}`
	metricsDoc = "Program Name,URL,EO_Count,Determination_Count,License_Count\n" +
		"Cuba Sanctions,https://ofac.example/cuba,4,1,12\n" +
		"Atlantis Sanctions,https://ofac.example/atlantis,1,1,1\n"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func run(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := Run(append([]string{"riskmap"}, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_Dispatch(t *testing.T) {
	served := 0
	orig := startServer
	startServer = func(io.Writer, io.Writer) int { served++; return 0 }
	defer func() { startServer = orig }()

	code, _, _ := run()
	assert.Equal(t, 0, code)
	code, _, _ = run("serve")
	assert.Equal(t, 0, code)
	assert.Equal(t, 2, served)

	code, out, _ := run("help")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "resolve")

	code, out, _ = run("version")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "riskmap "+version)

	code, _, errOut := run("frobnicate")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "Unknown command: frobnicate")
}

func TestResolveCmd(t *testing.T) {
	dir := t.TempDir()
	risk := writeFile(t, dir, "risk.json", riskDoc)

	code, out, errOut := run("resolve", "--risk", risk, "--code", "irn", "--subcategory", "Terrorism", "--json")
	require.Equal(t, 0, code, errOut)
	var view map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, 50.0, view["score"])
	assert.Equal(t, 3.0, view["eo"])

	code, out, _ = run("resolve", "--risk", risk, "--code", "FRA")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "none")
	assert.Contains(t, out, "N/A")

	code, _, _ = run("resolve", "--risk", risk)
	assert.Equal(t, 2, code)
	code, _, _ = run("resolve", "--risk", risk, "--code", "IRN", "--jurisdiction", "XX")
	assert.Equal(t, 2, code)
	code, _, _ = run("resolve", "--risk", filepath.Join(dir, "missing.json"), "--code", "IRN")
	assert.Equal(t, 1, code)
	code, _, _ = run("resolve", "--bogus")
	assert.Equal(t, 2, code)
}

func TestRenderCmd(t *testing.T) {
	dir := t.TempDir()
	shapes := writeFile(t, dir, "shapes.json", shapesDoc)
	risk := writeFile(t, dir, "risk.json", riskDoc)
	metrics := writeFile(t, dir, "metrics.csv", metricsDoc)
	out := filepath.Join(dir, "map.json")

	code, stdout, errOut := run("render", "--shapes", shapes, "--risk", risk, "--metrics", metrics, "--out", out)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, stdout, "3 features")
	assert.Contains(t, stdout, "1 unidentified")

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var fc struct {
		Features []struct {
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(data, &fc))
	require.Len(t, fc.Features, 3)
	cuba := fc.Features[1].Properties["risk"].(map[string]any)
	assert.Equal(t, 4.0, cuba["eo"])
	assert.Equal(t, false, cuba["hasData"], "counters alone are not a rating")

	code, _, _ = run("render", "--shapes", shapes)
	assert.Equal(t, 2, code)
}

func TestLegendCmd(t *testing.T) {
	code, out, _ := run("legend")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "continuous")
	assert.Contains(t, out, "No data")

	dir := t.TempDir()
	profile := writeFile(t, dir, "style_levels.yaml", `
policy: categorical
levels:
  - {name: high, color: "#d7191c"}
  - {name: low, color: "#1a9641"}
`)
	code, out, errOut := run("legend", "--profile", profile, "--json")
	require.Equal(t, 0, code, errOut)
	var entries []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 3)
	assert.Equal(t, "high", entries[0]["label"])
	assert.Equal(t, "rgb(215,25,28)", entries[0]["color"])

	code, _, _ = run("legend", "--profile", filepath.Join(dir, "nope.yaml"))
	assert.Equal(t, 1, code)
}

func TestMergeCmd(t *testing.T) {
	dir := t.TempDir()
	risk := writeFile(t, dir, "risk.json", riskDoc)
	metrics := writeFile(t, dir, "metrics.csv", metricsDoc)
	out := filepath.Join(dir, "merged.json")

	code, stdout, errOut := run("merge", "--risk", risk, "--metrics", metrics, "--out", out)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, stdout, "1 countries")
	assert.Contains(t, errOut, "Atlantis Sanctions")

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	ds, err := riskdata.Parse(data, riskdata.Options{})
	require.NoError(t, err)
	jr, ok := ds.Jurisdiction("CUB", "US")
	require.True(t, ok)
	require.NotNil(t, jr.Fields.Lic)
	assert.Equal(t, 12, *jr.Fields.Lic)
	require.NotNil(t, jr.Fields.URL)
	assert.Equal(t, "https://ofac.example/cuba", *jr.Fields.URL)

	code, _, _ = run("merge", "--risk", risk)
	assert.Equal(t, 2, code)
}

func TestHarvestCmd(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/sanctions-programs-and-country-information", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<a href="/sanctions-programs-and-country-information/cuba">Cuba Sanctions</a>`)
	})
	mux.HandleFunc("/sanctions-programs-and-country-information/cuba", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `E.O. 12854. General License. General License.`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	code, out, errOut := run("harvest", "--index", srv.URL+"/sanctions-programs-and-country-information", "--rps", "100")
	require.Equal(t, 0, code, errOut)
	rows, err := riskdata.ParseMetrics(strings.NewReader(out))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Cuba Sanctions", rows[0].Program)
	assert.Equal(t, 2, *rows[0].Lic)

	code, _, _ = run("harvest", "--rps", "0")
	assert.Equal(t, 2, code)
}

func TestActionsCmd(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/recent-actions", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<div class="view-recent-actions">
<h3><a href="/recent-actions/1">Russia-related Designations</a></h3>
<h3><a href="/recent-actions/2">Holiday Hours</a></h3></div>`)
	})
	mux.HandleFunc("/recent-actions/1", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<div class="field--name-body">Five entities were designated. Two vessels were identified. More.</div>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	code, out, errOut := run("actions", "--url", srv.URL+"/recent-actions", "--rps", "100")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "Found 1 matches:")
	assert.Contains(t, out, "> Russia-related Designations\nURL: "+srv.URL+"/recent-actions/1\n")
	assert.Contains(t, out, "Five entities were designated. Two vessels were identified.\n")
	assert.NotContains(t, out, "Holiday")

	path := filepath.Join(t.TempDir(), "report.txt")
	code, out, errOut = run("actions", "--url", srv.URL+"/recent-actions", "--keywords", "holiday", "--out", path)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "1 matching actions written to")
	report, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(report), "> Holiday Hours")

	code, _, _ = run("actions", "--at", "25:00")
	assert.Equal(t, 2, code)
	code, _, _ = run("actions", "--sentences", "0")
	assert.Equal(t, 2, code)
}

func TestDataFetcher_NoRetry(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := dataFetcher("", "").Fetch(context.Background(), srv.URL+"/risk.json")
	assert.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())

	code, _, _ := run("resolve", "--risk", srv.URL+"/risk.json", "--code", "IRN")
	assert.Equal(t, 1, code)
	assert.Equal(t, int32(2), hits.Load())
}

func TestHashPasswordCmd(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := runHashPasswordCmd(nil, strings.NewReader("hunter2\n"), &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	hash := strings.TrimSpace(stdout.String())
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("hunter2")))

	stdout.Reset()
	code = runHashPasswordCmd([]string{"--password", "pw"}, strings.NewReader(""), &stdout, &stderr)
	require.Equal(t, 0, code)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(strings.TrimSpace(stdout.String())), []byte("pw")))

	code = runHashPasswordCmd(nil, strings.NewReader(""), &stdout, &stderr)
	assert.Equal(t, 2, code)
}

func TestLoadStyles(t *testing.T) {
	c, err := loadStyles("")
	require.NoError(t, err)
	assert.Equal(t, []string{"default"}, c.Names())

	dir := t.TempDir()
	writeFile(t, dir, "style_print.yaml", "policy: buckets\n")
	writeFile(t, dir, "style_dark.yaml", "name: night\nramp: {low: \"#000000\", high: \"#ff0000\"}\n")
	c, err = loadStyles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"default", "night", "print"}, c.Names())

	c, err = loadStyles(filepath.Join(dir, "style_print.yaml"))
	require.NoError(t, err)
	_, ok := c.Get("PRINT")
	assert.True(t, ok)

	_, err = loadStyles(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestLoadRegistry(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "j.yaml", `
- code: ch
  name: Switzerland
  regulator: SECO
  url_template: https://seco.example/{code_lower}
`)
	reg, err := loadRegistry(path)
	require.NoError(t, err)
	j, err := reg.Parse("CH")
	require.NoError(t, err)
	assert.Equal(t, "CH", string(j))
	_, err = reg.Parse("US")
	assert.NoError(t, err, "built-ins stay registered")
}
