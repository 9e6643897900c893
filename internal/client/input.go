package client

import "github.com/annel0/tile-movement/internal/world"

// InputStack упорядоченное множество зажатых направлений.
// Первым идёт последнее нажатое и ещё не отпущенное.
type InputStack struct {
	held []world.Direction
}

// Press помещает направление в начало, если его ещё нет
func (s *InputStack) Press(d world.Direction) {
	for _, h := range s.held {
		if h == d {
			return
		}
	}
	s.held = append([]world.Direction{d}, s.held...)
}

// Release убирает направление, где бы оно ни находилось
func (s *InputStack) Release(d world.Direction) {
	for i, h := range s.held {
		if h == d {
			s.held = append(s.held[:i], s.held[i+1:]...)
			return
		}
	}
}

// Front возвращает актуальное направление
func (s *InputStack) Front() (world.Direction, bool) {
	if len(s.held) == 0 {
		return 0, false
	}
	return s.held[0], true
}

// Held возвращает копию стека (первый элемент: актуальный)
func (s *InputStack) Held() []world.Direction {
	out := make([]world.Direction, len(s.held))
	copy(out, s.held)
	return out
}

// Clear отпускает все направления (например, при потере фокуса)
func (s *InputStack) Clear() {
	s.held = s.held[:0]
}
