package riskdata

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/riskmap/pkg/geoid"
	"github.com/Mindburn-Labs/riskmap/pkg/jurisdiction"
)

const nestedFixture = `{
  "_meta": {"version": "1.2.0", "source": "analyst-desk"},
  "IRN": {
    "US": {
      "score": 95, "risk": "high", "eo": 12, "det": 3, "lic": 4,
      "url": "https://example.test/iran",
      "Oil": {"score": 99, "details": [{"type": "EO", "reference": "E.O. 13846", "targets": ["NIOC", "NITC"]}]},
      "Shipping": {"eo": 2}
    },
    "EU": {"score": 80, "risk": "high", "reg": 7},
    "gb": {"risk": "medium"}
  },
  "cub": {"US": {"score": 70, "risk": "medium"}}
}`

func TestParse_Nested(t *testing.T) {
	ds, err := Parse([]byte(nestedFixture), Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"CUB", "IRN"}, ds.Codes())
	assert.Equal(t, 2, ds.Len())
	assert.Equal(t, "1.2.0", ds.Version().String())
	assert.Equal(t, "analyst-desk", ds.Meta().Source)

	us, ok := ds.Jurisdiction("IRN", jurisdiction.US)
	require.True(t, ok)
	assert.Equal(t, 95.0, *us.Score)
	assert.Equal(t, "high", *us.Risk)
	assert.Equal(t, 12, *us.EO)
	assert.Equal(t, "https://example.test/iran", *us.URL)
	assert.Nil(t, us.Reg)
	assert.Nil(t, us.Details)

	oil, ok := us.Subcategory("Oil")
	require.True(t, ok)
	assert.Equal(t, 99.0, *oil.Score)
	require.Len(t, oil.Details, 1)
	assert.Equal(t, "NIOC, NITC", oil.Details[0].Targets)
	assert.Equal(t, "E.O. 13846", oil.Details[0].Reference)

	uk, ok := ds.Jurisdiction("IRN", jurisdiction.UK)
	require.True(t, ok, "gb key maps to UK")
	assert.Equal(t, "medium", *uk.Risk)

	assert.Equal(t, []string{"Oil", "Shipping"}, ds.Subcategories(jurisdiction.US))
	assert.Empty(t, ds.Subcategories(jurisdiction.EU))
}

func TestParse_LegacyFlatLayout(t *testing.T) {
	ds, err := Parse([]byte(`{"AFG": {"riskScore": 80, "eo_count": 5, "det_count": 1, "license_count": 2, "ofac_url": "https://ofac.test/afg"}}`), Options{})
	require.NoError(t, err)

	jr, ok := ds.Jurisdiction("AFG", jurisdiction.US)
	require.True(t, ok)
	assert.Equal(t, 80.0, *jr.Score)
	assert.Equal(t, 5, *jr.EO)
	assert.Equal(t, 1, *jr.Det)
	assert.Equal(t, 2, *jr.Lic)
	assert.Equal(t, "https://ofac.test/afg", *jr.URL)

	ds, err = Parse([]byte(`{"AFG": {"score": 10}}`), Options{DefaultJurisdiction: jurisdiction.EU})
	require.NoError(t, err)
	_, ok = ds.Jurisdiction("AFG", jurisdiction.EU)
	assert.True(t, ok)
}

func TestParse_MixedLayoutWarns(t *testing.T) {
	ds, err := Parse([]byte(`{"SYR": {"score": 50, "US": {"score": 90}}}`), Options{})
	require.NoError(t, err)

	jr, ok := ds.Jurisdiction("SYR", jurisdiction.US)
	require.True(t, ok)
	assert.Equal(t, 90.0, *jr.Score)
	require.Len(t, ds.Warnings(), 1)
	assert.Contains(t, ds.Warnings()[0], "top-level fields ignored")
}

func TestParse_NullsAreAbsent(t *testing.T) {
	ds, err := Parse([]byte(`{"VEN": {"US": {"score": null, "risk": "", "eo": null, "details": []}}}`), Options{})
	require.NoError(t, err)

	jr, _ := ds.Jurisdiction("VEN", jurisdiction.US)
	assert.Nil(t, jr.Score)
	assert.Nil(t, jr.Risk)
	assert.Nil(t, jr.EO)
	assert.NotNil(t, jr.Details, "empty details are present")
	assert.Empty(t, jr.Details)
	assert.False(t, jr.HasRating())
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{"IRN":`},
		{"array", `[1,2]`},
		{"score string", `{"IRN": {"US": {"score": "high"}}}`},
		{"negative count", `{"IRN": {"US": {"eo": -1}}}`},
		{"record not object", `{"IRN": 5}`},
		{"bad version", `{"_meta": {"version": "one"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data), Options{})
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidDataset), err.Error())
		})
	}
}

func TestParse_SkipsBadKeys(t *testing.T) {
	ds, err := Parse([]byte(`{"-99": {"score": 1}, "USA": {"score": 2}, "usa": {"score": 3}}`), Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"USA"}, ds.Codes())

	jr, _ := ds.Jurisdiction("USA", jurisdiction.US)
	assert.Equal(t, 2.0, *jr.Score, "first key in sorted order wins")
	assert.Len(t, ds.Warnings(), 2)
}

func TestParse_NameKeys(t *testing.T) {
	names := geoid.NameIndex{}
	names.Add("Afghanistan", "AFG")
	names.Add("Cuba", "CUB")
	data := []byte(`{"Afghanistan": {"riskScore": 90}, "cuba": {"score": 70}, "Atlantis": {"score": 10}, "IRN": {"score": 95}}`)

	ds, err := Parse(data, Options{Names: names})
	require.NoError(t, err)
	assert.Equal(t, []string{"AFG", "ATLANTIS", "CUB", "IRN"}, ds.Codes())
	jr, ok := ds.Jurisdiction("AFG", jurisdiction.US)
	require.True(t, ok)
	assert.Equal(t, 90.0, *jr.Score)
	require.Len(t, ds.Warnings(), 1)
	assert.Contains(t, ds.Warnings()[0], "Atlantis")

	plain, err := Parse(data, Options{})
	require.NoError(t, err)
	assert.Len(t, plain.Warnings(), 3, "every name key is reported without an index")
}

func TestHash_StableAcrossLayouts(t *testing.T) {
	a, err := Parse([]byte(`{"AFG": {"riskScore": 80, "eo_count": 5}}`), Options{})
	require.NoError(t, err)
	b, err := Parse([]byte(`{ "afg" : { "US": { "eo": 5, "score": 80 } } }`), Options{})
	require.NoError(t, err)
	c, err := Parse([]byte(`{"AFG": {"US": {"score": 81, "eo": 5}}}`), Options{})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(a.Hash(), "sha256:"))
	assert.Equal(t, a.Hash(), b.Hash())
	assert.NotEqual(t, a.Hash(), c.Hash())
}

func TestMarshalJSON_RoundTrip(t *testing.T) {
	ds, err := Parse([]byte(nestedFixture), Options{})
	require.NoError(t, err)

	raw, err := ds.MarshalJSON()
	require.NoError(t, err)
	again, err := Parse(raw, Options{})
	require.NoError(t, err)
	assert.Equal(t, ds.Hash(), again.Hash())
}

func TestNew(t *testing.T) {
	ds, err := New(Meta{Version: "2.0.0"}, &Record{
		Code: "prk",
		Jurisdictions: map[jurisdiction.Code]*JurisdictionRecord{
			jurisdiction.US: {Fields: Fields{Score: Ptr(100.0)}},
		},
	})
	require.NoError(t, err)
	_, ok := ds.Lookup("PRK")
	assert.True(t, ok)

	_, err = New(Meta{}, &Record{Code: ""})
	assert.Error(t, err)

	assert.Equal(t, 0, Empty().Len())
}

func TestParseMetrics(t *testing.T) {
	csv := "\ufeffProgram Name,URL,EO_Count,Determination_Count,License_Count\n" +
		"Afghanistan-Related Sanctions,https://ofac.test/afg,3,1,5\n" +
		"Cuba Sanctions,https://ofac.test/cub,,,\n" +
		",https://ofac.test/blank,1,1,1\n" +
		"Iran Sanctions,https://ofac.test/irn,12.0,x,2\n"

	rows, err := ParseMetrics(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "Afghanistan", rows[0].Country())
	assert.Equal(t, 3, *rows[0].EO)
	assert.Equal(t, 1, *rows[0].Det)
	assert.Equal(t, 5, *rows[0].Lic)

	assert.Nil(t, rows[1].EO)
	assert.Equal(t, "Cuba Sanctions", rows[1].Country())

	assert.Equal(t, 12, *rows[2].EO)
	assert.Nil(t, rows[2].Det)
}

func TestParseMetrics_Errors(t *testing.T) {
	_, err := ParseMetrics(strings.NewReader(""))
	assert.Error(t, err)
	_, err = ParseMetrics(strings.NewReader("Name,URL\nx,y\n"))
	assert.Error(t, err)
}

func TestWriteMetrics_ReadBack(t *testing.T) {
	rows := []MetricsRow{
		{Program: "Belarus Sanctions", URL: "https://ofac.test/blr", EO: Ptr(4), Det: Ptr(0)},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteMetrics(&buf, rows))
	assert.True(t, strings.HasPrefix(buf.String(), "Program Name,URL,EO_Count,Determination_Count,License_Count\n"))

	got, err := ParseMetrics(&buf)
	require.NoError(t, err)
	assert.Equal(t, rows, got)
}

func TestCountryToken(t *testing.T) {
	assert.Equal(t, "Afghanistan", CountryToken("Afghanistan-Related Sanctions"))
	assert.Equal(t, "Ukraine", CountryToken("Ukraine-/Russia-related Sanctions"))
	assert.Equal(t, "Iran Sanctions", CountryToken(" Iran Sanctions "))
	assert.Equal(t, "", CountryToken("-Related"))
}

func TestJoinMetrics(t *testing.T) {
	ds, err := Parse([]byte(`{"AFG": {"US": {"score": 80, "eo": 1, "lic": 9}}, "LBY": {"EU": {"score": 40}}}`), Options{})
	require.NoError(t, err)

	rows := []MetricsRow{
		{Program: "Afghanistan-Related Sanctions", URL: "https://ofac.test/afg", EO: Ptr(3), Det: Ptr(2)},
		{Program: "Libya-Related Sanctions", EO: Ptr(6)},
		{Program: "Mali-Related Sanctions", EO: Ptr(1)},
		{Program: "Magnitsky Sanctions", EO: Ptr(2)},
	}
	names := make(geoid.NameIndex)
	names.Add("Mali", "MLI")

	res, err := JoinMetrics(ds, rows, JoinOptions{Names: names})
	require.NoError(t, err)
	assert.Equal(t, []string{"AFG", "LBY", "MLI"}, res.Matched)
	assert.Equal(t, []string{"Magnitsky Sanctions"}, res.Unmatched)

	afg, _ := res.Dataset.Jurisdiction("AFG", jurisdiction.US)
	assert.Equal(t, 3, *afg.EO)
	assert.Equal(t, 2, *afg.Det)
	assert.Equal(t, 9, *afg.Lic, "blank counts keep the record value")
	assert.Equal(t, "https://ofac.test/afg", *afg.URL)
	assert.Equal(t, 80.0, *afg.Score)

	lby, ok := res.Dataset.Jurisdiction("LBY", jurisdiction.US)
	require.True(t, ok)
	assert.False(t, lby.HasRating(), "counters alone do not rate a country")

	orig, _ := ds.Jurisdiction("AFG", jurisdiction.US)
	assert.Equal(t, 1, *orig.EO, "input dataset is untouched")
	_, ok = ds.Jurisdiction("LBY", jurisdiction.US)
	assert.False(t, ok)
	assert.NotEqual(t, ds.Hash(), res.Dataset.Hash())
}
