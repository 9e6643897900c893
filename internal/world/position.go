package world

import (
	"fmt"
	"math"
)

// Position тайловая позиция сущности: карта и координаты на ней.
type Position struct {
	Map uint16 `json:"map" bson:"map"`
	X   uint16 `json:"x" bson:"x"`
	Y   uint16 `json:"y" bson:"y"`
}

func (p Position) String() string {
	return fmt.Sprintf("%d:(%d,%d)", p.Map, p.X, p.Y)
}

// Chebyshev возвращает расстояние в шагах "по королю" или -1 для разных карт
func (p Position) Chebyshev(other Position) int {
	if p.Map != other.Map {
		return -1
	}
	dx := absInt(int(p.X) - int(other.X))
	dy := absInt(int(p.Y) - int(other.Y))
	if dx > dy {
		return dx
	}
	return dy
}

// Delta возвращает разницу other - p по осям
func (p Position) Delta(other Position) (int, int) {
	return int(other.X) - int(p.X), int(other.Y) - int(p.Y)
}

// StepToward сдвигает позицию на один тайл к target: сначала по X, затем по Y.
// Для другой карты или совпадающей позиции возвращает p без изменений.
func (p Position) StepToward(target Position) Position {
	if p.Map != target.Map || p == target {
		return p
	}
	dx, dy := p.Delta(target)
	switch {
	case dx > 0:
		p.X++
	case dx < 0:
		p.X--
	case dy > 0:
		p.Y++
	case dy < 0:
		p.Y--
	}
	return p
}

// Translate сдвигает позицию на (dx, dy) без проверки границ.
// Вызывающий отвечает за то, чтобы результат оставался в пределах карты.
func (p Position) Translate(dx, dy int) Position {
	p.X = uint16(int(p.X) + dx)
	p.Y = uint16(int(p.Y) + dy)
	return p
}

// TranslateChecked сдвигает позицию, если результат помещается в u16.
// Иначе возвращает p и false.
func (p Position) TranslateChecked(dx, dy int) (Position, bool) {
	x, y := int(p.X)+dx, int(p.Y)+dy
	if x < 0 || y < 0 || x > math.MaxUint16 || y > math.MaxUint16 {
		return p, false
	}
	p.X, p.Y = uint16(x), uint16(y)
	return p, true
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
