package world

import (
	"fmt"
	"strings"
)

// Direction направление шага по тайловой сетке. Значения фиксированы протоколом.
type Direction uint8

const (
	North Direction = iota
	South
	East
	West
)

// Heading направление, в которое смотрит персонаж. Совпадает с Direction.
type Heading = Direction

// Directions перечисляет все направления в порядке wire-значений
var Directions = [...]Direction{North, South, East, West}

// Valid проверяет, что значение пришло из допустимого диапазона
func (d Direction) Valid() bool {
	return d <= West
}

// Offset возвращает смещение (dx, dy) одного шага. Y растёт на юг.
func (d Direction) Offset() (int, int) {
	switch d {
	case North:
		return 0, -1
	case South:
		return 0, 1
	case East:
		return 1, 0
	case West:
		return -1, 0
	default:
		return 0, 0
	}
}

// Opposite возвращает противоположное направление
func (d Direction) Opposite() Direction {
	switch d {
	case North:
		return South
	case South:
		return North
	case East:
		return West
	default:
		return East
	}
}

func (d Direction) String() string {
	switch d {
	case North:
		return "north"
	case South:
		return "south"
	case East:
		return "east"
	case West:
		return "west"
	default:
		return fmt.Sprintf("direction(%d)", uint8(d))
	}
}

// ParseDirection разбирает имя направления (north/n/up ...)
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "north", "n", "up":
		return North, nil
	case "south", "s", "down":
		return South, nil
	case "east", "e", "right":
		return East, nil
	case "west", "w", "left":
		return West, nil
	}
	return 0, fmt.Errorf("неизвестное направление %q", s)
}
