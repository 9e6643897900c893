package world

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMaps(t *testing.T) *MapSet {
	t.Helper()
	m, err := ParseTileMapYAML([]byte(`
id: 1
name: test
rows:
  - "....."
  - ".#..."
  - "....."
`))
	require.NoError(t, err)
	return NewMapSet(m)
}

func TestNextPosition(t *testing.T) {
	maps := testMaps(t)
	start := Position{Map: 1, X: 0, Y: 0}

	tests := []struct {
		name string
		from Position
		dir  Direction
		want Position
	}{
		{"east free", start, East, Position{Map: 1, X: 1, Y: 0}},
		{"south free", start, South, Position{Map: 1, X: 0, Y: 1}},
		{"north out of bounds", start, North, start},
		{"west out of bounds", start, West, start},
		{"into blocked tile", Position{Map: 1, X: 1, Y: 0}, South, Position{Map: 1, X: 1, Y: 0}},
		{"east edge", Position{Map: 1, X: 4, Y: 2}, East, Position{Map: 1, X: 4, Y: 2}},
		{"south edge", Position{Map: 1, X: 4, Y: 2}, South, Position{Map: 1, X: 4, Y: 2}},
		{"unknown map", Position{Map: 9, X: 1, Y: 1}, East, Position{Map: 9, X: 1, Y: 1}},
		{"invalid direction", start, Direction(7), start},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NextPosition(maps, tc.from, tc.dir))
		})
	}
}

func TestBlockedMoveIsIdempotent(t *testing.T) {
	maps := testMaps(t)
	from := Position{Map: 1, X: 0, Y: 1}
	first := NextPosition(maps, from, East)
	second := NextPosition(maps, first, East)
	assert.Equal(t, from, first)
	assert.Equal(t, first, second)
}

func TestDirection(t *testing.T) {
	for _, d := range Directions {
		dx, dy := d.Offset()
		ox, oy := d.Opposite().Offset()
		assert.Equal(t, 0, dx+ox)
		assert.Equal(t, 0, dy+oy)
		parsed, err := ParseDirection(d.String())
		require.NoError(t, err)
		assert.Equal(t, d, parsed)
	}
	assert.False(t, Direction(4).Valid())
	_, err := ParseDirection("up-left")
	assert.Error(t, err)
}

func TestStepToward(t *testing.T) {
	p := Position{Map: 1, X: 5, Y: 5}
	assert.Equal(t, Position{Map: 1, X: 6, Y: 5}, p.StepToward(Position{Map: 1, X: 8, Y: 2}))
	assert.Equal(t, Position{Map: 1, X: 5, Y: 4}, p.StepToward(Position{Map: 1, X: 5, Y: 2}))
	assert.Equal(t, p, p.StepToward(p))
	assert.Equal(t, p, p.StepToward(Position{Map: 2, X: 0, Y: 0}))
}

func TestTranslateCheckedStaysInRange(t *testing.T) {
	p := Position{Map: 1, X: 0, Y: 5}
	got, ok := p.TranslateChecked(-1, 0)
	assert.False(t, ok)
	assert.Equal(t, p, got)

	got, ok = Position{Map: 1, X: 65535, Y: 0}.TranslateChecked(1, 0)
	assert.False(t, ok)
	assert.Equal(t, uint16(65535), got.X)

	got, ok = p.TranslateChecked(1, -5)
	require.True(t, ok)
	assert.Equal(t, Position{Map: 1, X: 1, Y: 0}, got)
}

func TestTileMapYAMLRoundTrip(t *testing.T) {
	maps := testMaps(t)
	m, ok := maps.Get(1)
	require.True(t, ok)

	data, err := m.EncodeYAML()
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "map1.yaml"), data, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip"), 0644))

	loaded, err := LoadMapDir(dir)
	require.NoError(t, err)
	assert.Equal(t, []uint16{1}, loaded.IDs())
	assert.True(t, loaded.TileBlocked(1, 1, 1))
	assert.False(t, loaded.TileBlocked(1, 0, 0))
}

func TestParseTileMapErrors(t *testing.T) {
	_, err := ParseTileMapYAML([]byte("id: 1\nrows: []\n"))
	assert.Error(t, err)
	_, err = ParseTileMapYAML([]byte("id: 1\nrows: ['..', '...']\n"))
	assert.Error(t, err)
	_, err = ParseTileMapYAML([]byte("id: 1\nrows: ['.x']\n"))
	assert.Error(t, err)
}

func TestAreaIndex(t *testing.T) {
	ai := NewAreaIndex(3)
	ai.Upsert(1, Position{Map: 1, X: 10, Y: 10})
	ai.Upsert(2, Position{Map: 1, X: 12, Y: 13})
	ai.Upsert(3, Position{Map: 1, X: 14, Y: 10})
	ai.Upsert(4, Position{Map: 2, X: 10, Y: 10})

	assert.Equal(t, []EntityID{2}, ai.Nearby(Position{Map: 1, X: 10, Y: 10}, 1))

	// Перемещение через границу ячейки
	ai.Upsert(3, Position{Map: 1, X: 13, Y: 10})
	assert.Equal(t, []EntityID{2, 3}, ai.Nearby(Position{Map: 1, X: 10, Y: 10}, 1))

	ai.Remove(2)
	ai.Remove(42)
	assert.Equal(t, []EntityID{3}, ai.Nearby(Position{Map: 1, X: 10, Y: 10}, 1))
	assert.Equal(t, 3, ai.Len())

	pos, ok := ai.Position(4)
	require.True(t, ok)
	assert.Equal(t, uint16(2), pos.Map)
	assert.True(t, ai.InArea(Position{Map: 1, X: 0, Y: 0}, Position{Map: 1, X: 3, Y: 3}))
	assert.False(t, ai.InArea(Position{Map: 1, X: 0, Y: 0}, Position{Map: 2, X: 0, Y: 0}))
}

func TestGenerateTileMapDeterministic(t *testing.T) {
	opts := DefaultGenOptions(42)
	opts.Clear = []Position{{Map: 3, X: 5, Y: 5}}

	a, err := GenerateTileMap(3, 40, 30, opts)
	require.NoError(t, err)
	b, err := GenerateTileMap(3, 40, 30, opts)
	require.NoError(t, err)

	assert.Equal(t, a.BlockedMask(), b.BlockedMask())
	assert.False(t, a.Blocked(5, 5))
	assert.True(t, a.Blocked(0, 0))
	assert.True(t, a.Blocked(39, 29))

	_, err = GenerateTileMap(3, 0, 10, opts)
	assert.Error(t, err)
}
