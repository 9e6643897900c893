package world

import (
	"fmt"

	"github.com/aquilax/go-perlin"
)

// GenOptions параметры генерации карты шумом Перлина
type GenOptions struct {
	Seed      int64
	Scale     float64    // шаг выборки шума на тайл
	Threshold float64    // тайлы с шумом выше порога непроходимы (0..1)
	Walls     bool       // обнести карту стеной
	Clear     []Position // тайлы, которые всегда проходимы (спавн)
}

// DefaultGenOptions возвращает настройки, дающие редкие островки препятствий
func DefaultGenOptions(seed int64) GenOptions {
	return GenOptions{Seed: seed, Scale: 0.1, Threshold: 0.68, Walls: true}
}

// GenerateTileMap строит карту: тайл непроходим, если шум (0..1) выше порога
func GenerateTileMap(id, width, height uint16, opts GenOptions) (*TileMap, error) {
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("карта %d: пустой размер %dx%d", id, width, height)
	}
	if opts.Scale <= 0 {
		opts.Scale = 0.1
	}

	// alpha 2, beta 2, 3 октавы
	noise := perlin.NewPerlin(2.0, 2.0, 3, opts.Seed)
	m := NewTileMap(id, width, height)
	for y := 0; y < int(height); y++ {
		for x := 0; x < int(width); x++ {
			v := (noise.Noise2D(float64(x)*opts.Scale, float64(y)*opts.Scale) + 1.0) / 2.0
			border := x == 0 || y == 0 || x == int(width)-1 || y == int(height)-1
			m.SetBlocked(x, y, v > opts.Threshold || (opts.Walls && border))
		}
	}
	for _, p := range opts.Clear {
		if p.Map == id {
			m.SetBlocked(int(p.X), int(p.Y), false)
		}
	}
	return m, nil
}
