package geocode

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	geojson "github.com/paulmach/go.geojson"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/cap-alert-ingest/internal/cap"
	"github.com/couchcryptid/cap-alert-ingest/internal/observability"
)

const squareFeature = `{"type":"Feature","properties":{},"geometry":{"type":"Polygon",
"coordinates":[[[8.0,50.0],[9.0,50.0],[9.0,51.0],[8.0,51.0],[8.0,50.0]]]}}`

const multiFeature = `{"type":"Feature","properties":{},"geometry":{"type":"MultiPolygon",
"coordinates":[
 [[[1.0,1.0],[2.0,1.0],[2.0,2.0],[1.0,1.0]]],
 [[[5.0,5.0],[6.0,5.0],[5.0,5.0]]]
]}}`

const pointFeature = `{"type":"Feature","properties":{},"geometry":{"type":"Point","coordinates":[1.0,2.0]}}`

func testFS(t *testing.T) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	files := map[string]string{
		"geo/WARNCELLID/108111000.geojson":               squareFeature,
		"geo/EMMA_ID/FR001.geojson":                      multiFeature,
		"geo/POINTS/p1.geojson":                          pointFeature,
		"geo/CPEAS Geographic Code/012300000000.geojson": squareFeature,
		"geo/BROKEN/x.geojson":                           `{"type":`,
	}
	for name, body := range files {
		require.NoError(t, afero.WriteFile(fs, name, []byte(body), 0o644))
	}
	return fs
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), nil))
}

func alertWithArea(area string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<alert xmlns="urn:oasis:names:tc:emergency:cap:1.2">
  <identifier>id-1</identifier><sender>s</sender><sent>2026-10-19T10:00:00+00:00</sent>
  <status>Actual</status><msgType>Alert</msgType><scope>Public</scope>
  <info><event>Storm</event><urgency>Immediate</urgency><severity>Severe</severity><certainty>Observed</certainty>
    <area><areaDesc>Somewhere</areaDesc>` + area + `</area>
  </info>
</alert>`
}

func TestFSDataset_Lookup(t *testing.T) {
	ds := NewFSDataset(testFS(t), "geo")

	f, err := ds.Lookup("WARNCELLID", "108111000")
	require.NoError(t, err)
	assert.True(t, f.Geometry.IsPolygon())

	_, err = ds.Lookup("WARNCELLID", "999")
	assert.ErrorIs(t, err, ErrUnknownCode)

	_, err = ds.Lookup("BROKEN", "x")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnknownCode)
}

func TestFSDataset_RejectsTraversal(t *testing.T) {
	ds := NewFSDataset(testFS(t), "geo")

	for _, tc := range [][2]string{
		{"..", "secret"},
		{"WARNCELLID", "../EMMA_ID/FR001"},
		{`WARN\CELL`, "1"},
		{"", "1"},
	} {
		_, err := ds.Lookup(tc[0], tc[1])
		assert.ErrorIs(t, err, ErrUnknownCode, "%q/%q", tc[0], tc[1])
	}
}

type countingDataset struct {
	calls int
	inner Dataset
}

func (c *countingDataset) Lookup(scheme, code string) (*geojson.Feature, error) {
	c.calls++
	return c.inner.Lookup(scheme, code)
}

func TestCachedDataset_CachesHitsAndMisses(t *testing.T) {
	inner := &countingDataset{inner: NewFSDataset(testFS(t), "geo")}
	metrics := observability.NewMetricsForTesting()
	ds := NewCachedDataset(inner, 10, metrics)

	for range 3 {
		_, err := ds.Lookup("WARNCELLID", "108111000")
		require.NoError(t, err)
		_, err = ds.Lookup("WARNCELLID", "nope")
		assert.ErrorIs(t, err, ErrUnknownCode)
	}

	assert.Equal(t, 2, inner.calls)
	assert.InDelta(t, 4, testutil.ToFloat64(metrics.GeocodeCache.WithLabelValues("hit")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.GeocodeCache.WithLabelValues("miss")), 0)
}

type failingDataset struct{ calls int }

func (f *failingDataset) Lookup(string, string) (*geojson.Feature, error) {
	f.calls++
	return nil, errors.New("disk on fire")
}

func TestCachedDataset_DoesNotCacheReadErrors(t *testing.T) {
	inner := &failingDataset{}
	ds := NewCachedDataset(inner, 10, nil)

	_, err := ds.Lookup("A", "1")
	require.Error(t, err)
	_, err = ds.Lookup("A", "1")
	require.Error(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestFeaturePolygons(t *testing.T) {
	square, err := geojson.UnmarshalFeature([]byte(squareFeature))
	require.NoError(t, err)
	polys, ok := FeaturePolygons(square)
	require.True(t, ok)
	assert.Equal(t, []string{"50.0000,8.0000 50.0000,9.0000 51.0000,9.0000 51.0000,8.0000 50.0000,8.0000"}, polys)

	multi, err := geojson.UnmarshalFeature([]byte(multiFeature))
	require.NoError(t, err)
	polys, ok = FeaturePolygons(multi)
	require.True(t, ok)
	assert.Len(t, polys, 1, "three-point ring is dropped")

	point, err := geojson.UnmarshalFeature([]byte(pointFeature))
	require.NoError(t, err)
	_, ok = FeaturePolygons(point)
	assert.False(t, ok)

	_, ok = FeaturePolygons(nil)
	assert.False(t, ok)
}

func TestParentCodes(t *testing.T) {
	assert.Equal(t, []string{"012345000000", "012300000000", "010000000000"}, ParentCodes("012345678901"))
	assert.Equal(t, []string{"012300000000", "010000000000"}, ParentCodes("012345000000"))
	assert.Equal(t, []string{"010000000000"}, ParentCodes("012300000000"))
	assert.Empty(t, ParentCodes("1"))
}

func TestExpand_InjectsPolygons(t *testing.T) {
	metrics := observability.NewMetricsForTesting()
	e := NewExpander(NewFSDataset(testFS(t), "geo"), discardLogger(), metrics)
	msg, err := cap.Parse([]byte(alertWithArea(
		`<geocode><valueName>WARNCELLID</valueName><value>108111000</value></geocode>`)))
	require.NoError(t, err)

	tr := NewTracker("de-dwd")
	assert.True(t, e.Expand(msg, tr))
	assert.True(t, msg.Modified)
	assert.Empty(t, tr.Warnings())

	areas := msg.Areas()
	require.Len(t, areas, 1)
	require.Len(t, areas[0].Polygons(), 1)
	assert.True(t, strings.HasPrefix(areas[0].Polygons()[0], "50.0000,8.0000"))

	// The injected polygon precedes the geocode.
	out := string(msg.Bytes())
	assert.Less(t, strings.Index(out, "<polygon>"), strings.Index(out, "<geocode>"))
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.GeocodeLookups.WithLabelValues("hit")), 0)
}

func TestExpand_SkipsAreasWithInlineGeometry(t *testing.T) {
	e := NewExpander(NewFSDataset(testFS(t), "geo"), discardLogger(), nil)
	msg, err := cap.Parse([]byte(alertWithArea(
		`<circle>50,8 10</circle><geocode><valueName>WARNCELLID</valueName><value>108111000</value></geocode>`)))
	require.NoError(t, err)

	assert.False(t, e.Expand(msg, NewTracker("x")))
	assert.False(t, msg.Modified)
	assert.Empty(t, msg.Areas()[0].Polygons())
}

func TestExpand_CPEASFallback(t *testing.T) {
	metrics := observability.NewMetricsForTesting()
	e := NewExpander(NewFSDataset(testFS(t), "geo"), discardLogger(), metrics)
	msg, err := cap.Parse([]byte(alertWithArea(
		`<geocode><valueName>CPEAS Geographic Code</valueName><value>012345678901</value></geocode>`)))
	require.NoError(t, err)

	tr := NewTracker("ca-naad")
	assert.True(t, e.Expand(msg, tr))
	assert.Len(t, msg.Areas()[0].Polygons(), 1)
	assert.Zero(t, tr.Failures())
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.GeocodeLookups.WithLabelValues("fallback")), 0)
}

func TestExpand_UnknownCodesWarnOnce(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	e := NewExpander(NewFSDataset(testFS(t), "geo"), logger, nil)
	tr := NewTracker("de-dwd")

	for _, code := range []string{"1", "2"} {
		msg, err := cap.Parse([]byte(alertWithArea(
			`<geocode><valueName>WARNCELLID</valueName><value>` + code + `</value></geocode>`)))
		require.NoError(t, err)
		assert.False(t, e.Expand(msg, tr))
	}

	assert.Equal(t, 2, tr.Failures())
	assert.Equal(t, []string{"Unknown geometry code: WARNCELLID: 1"}, tr.Warnings())
	assert.Equal(t, 1, strings.Count(buf.String(), "level=ERROR"))
	assert.Contains(t, buf.String(), "source_id=de-dwd")
}

func TestExpand_UnhandledGeometryContributesNothing(t *testing.T) {
	e := NewExpander(NewFSDataset(testFS(t), "geo"), discardLogger(), nil)
	msg, err := cap.Parse([]byte(alertWithArea(
		`<geocode><valueName>POINTS</valueName><value>p1</value></geocode>`)))
	require.NoError(t, err)

	tr := NewTracker("x")
	assert.False(t, e.Expand(msg, tr))
	assert.Empty(t, tr.Warnings())
}

func TestExpand_IgnoresEmptyGeocode(t *testing.T) {
	e := NewExpander(NewFSDataset(testFS(t), "geo"), discardLogger(), nil)
	msg, err := cap.Parse([]byte(alertWithArea(
		`<geocode><valueName>WARNCELLID</valueName><value></value></geocode>`)))
	require.NoError(t, err)

	tr := NewTracker("x")
	assert.False(t, e.Expand(msg, tr))
	assert.Zero(t, tr.Failures())
}
