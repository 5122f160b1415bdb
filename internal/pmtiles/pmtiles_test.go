package pmtiles

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lights() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for i, p := range []orb.Point{{-0.1276, 51.5072}, {-0.1270, 51.5075}} {
		f := geojson.NewFeature(p)
		f.Properties["unitid"] = []string{"SL1", "SL2"}[i]
		fc.Append(f)
	}
	return fc
}

func TestZxyToID(t *testing.T) {
	assert.Equal(t, uint64(0), ZxyToID(0, 0, 0))
	assert.Equal(t, uint64(1), ZxyToID(1, 0, 0))
	assert.Equal(t, uint64(2), ZxyToID(1, 0, 1))
	assert.Equal(t, uint64(3), ZxyToID(1, 1, 1))
	assert.Equal(t, uint64(4), ZxyToID(1, 1, 0))
	assert.Equal(t, uint64(5), ZxyToID(2, 0, 0))
}

func TestEntriesRoundTrip(t *testing.T) {
	entries := []EntryV3{
		{TileID: 5, Offset: 0, Length: 10, RunLength: 1},
		{TileID: 6, Offset: 10, Length: 20, RunLength: 2},
		{TileID: 20, Offset: 100, Length: 5, RunLength: 0},
	}
	for _, c := range []Compression{NoCompression, Gzip} {
		b, err := SerializeEntries(entries, c)
		require.NoError(t, err)
		got, err := DeserializeEntries(b, c)
		require.NoError(t, err)
		assert.Equal(t, entries, got)
	}
	_, err := SerializeEntries(entries, Zstd)
	assert.ErrorIs(t, err, ErrCompression)
}

func TestFindTile(t *testing.T) {
	entries := []EntryV3{
		{TileID: 5, Length: 1, RunLength: 1},
		{TileID: 6, Length: 1, RunLength: 3},
		{TileID: 20, Length: 1, RunLength: 0},
	}
	_, ok := FindTile(entries, 4)
	assert.False(t, ok)

	e, ok := FindTile(entries, 8)
	require.True(t, ok)
	assert.Equal(t, uint64(6), e.TileID, "inside a run")

	_, ok = FindTile(entries, 9)
	assert.False(t, ok)

	e, ok = FindTile(entries, 400)
	require.True(t, ok)
	assert.Zero(t, e.RunLength, "leaf pointer")
}

func TestPackAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lights.pmtiles")
	var buf bytes.Buffer
	require.NoError(t, Pack(&buf, lights(), PackOptions{Layer: "lights", MinZoom: 14, MaxZoom: 16}))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	rd, err := Open(path)
	require.NoError(t, err)
	defer rd.Close()

	h := rd.Header()
	assert.Equal(t, uint8(14), h.MinZoom)
	assert.Equal(t, uint8(16), h.MaxZoom)
	assert.Equal(t, Mvt, h.TileType)

	md, err := rd.Metadata()
	require.NoError(t, err)
	assert.Equal(t, "lights", md["name"])

	tile := maptile.At(orb.Point{-0.1276, 51.5072}, 16)
	data, err := rd.Tile(16, tile.X, tile.Y)
	require.NoError(t, err)

	layers, err := mvt.UnmarshalGzipped(data)
	require.NoError(t, err)
	require.Len(t, layers, 1)
	assert.Equal(t, "lights", layers[0].Name)
	layers.ProjectToWGS84(tile)
	var ids []any
	for _, f := range layers[0].Features {
		ids = append(ids, f.Properties["unitid"])
	}
	assert.Contains(t, ids, "SL1")

	_, err = rd.Tile(16, tile.X+50, tile.Y)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = rd.Tile(10, 0, 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPackRejectsBadInput(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, Pack(&buf, lights(), PackOptions{MaxZoom: 10}))
	assert.Error(t, Pack(&buf, lights(), PackOptions{Layer: "x", MinZoom: 5, MaxZoom: 2}))
	assert.Error(t, Pack(&buf, geojson.NewFeatureCollection(), PackOptions{Layer: "x", MaxZoom: 2}))
}

func TestHeaderRejectsGarbage(t *testing.T) {
	_, err := NewReader(bytes.NewReader(make([]byte, HeaderV3LenBytes)))
	assert.ErrorContains(t, err, "magic")
}
