package client

import (
	"time"

	"github.com/annel0/tile-movement/internal/world"
)

// MotionState состояние интерполяции тела
type MotionState int

const (
	Idle MotionState = iota
	Moving
)

func (s MotionState) String() string {
	if s == Moving {
		return "moving"
	}
	return "idle"
}

// Offset смещение отрисовки относительно логической позиции, в тайлах
type Offset struct {
	X, Y float64
}

// IsZero проверяет, что смещения нет
func (o Offset) IsZero() bool {
	return o.X == 0 && o.Y == 0
}

// Remaining возвращает оставшийся путь интерполяции в тайлах (по Чебышёву)
func (o Offset) Remaining() float64 {
	x, y := absF(o.X), absF(o.Y)
	if x > y {
		return x
	}
	return y
}

// approach приближает обе оси к нулю на budget тайлов и возвращает остаток бюджета
func (o *Offset) approach(budget float64) float64 {
	used := o.Remaining()
	if used > budget {
		used = budget
	}
	o.X = towardZero(o.X, used)
	o.Y = towardZero(o.Y, used)
	return budget - used
}

// Body логическое и визуальное состояние персонажа на клиенте.
//
// Position: тайл, к которому идёт (или на котором стоит) персонаж; рисуется он
// в Position+Offset. Waypoints: тайлы, ожидающие интерполяции после текущего.
type Body struct {
	Position  world.Position
	Offset    Offset
	Waypoints []world.Position
	Heading   world.Heading
}

// NewBody создаёт неподвижное тело на позиции
func NewBody(pos world.Position, heading world.Heading) *Body {
	return &Body{Position: pos, Heading: heading}
}

// State возвращает Idle или Moving
func (b *Body) State() MotionState {
	if b.Offset.IsZero() && len(b.Waypoints) == 0 {
		return Idle
	}
	return Moving
}

// Tip возвращает последнюю запланированную позицию (логическую "голову" пути)
func (b *Body) Tip() world.Position {
	if n := len(b.Waypoints); n > 0 {
		return b.Waypoints[n-1]
	}
	return b.Position
}

// MoveTo планирует переход в target: сразу, если тело стоит, иначе в очередь
func (b *Body) MoveTo(target world.Position) {
	if b.State() == Idle {
		b.begin(target)
		return
	}
	b.Waypoints = append(b.Waypoints, target)
}

// begin начинает шаг: логическая позиция меняется сразу, смещение компенсирует
// отрисовку. Несмежные цели и смена карты: телепорт без интерполяции.
func (b *Body) begin(target world.Position) {
	d := b.Position.Chebyshev(target)
	if d < 0 || d > 1 {
		b.Position = target
		b.Offset = Offset{}
		return
	}
	dx, dy := b.Position.Delta(target)
	b.faceDelta(dx, dy)
	b.Position = target
	b.Offset.X -= float64(dx)
	b.Offset.Y -= float64(dy)
}

func (b *Body) faceDelta(dx, dy int) {
	switch {
	case dx > 0:
		b.Heading = world.East
	case dx < 0:
		b.Heading = world.West
	case dy > 0:
		b.Heading = world.South
	case dy < 0:
		b.Heading = world.North
	}
}

// Update продвигает интерполяцию: один тайл за step
func (b *Body) Update(dt, step time.Duration) {
	budget := 1.0
	if step > 0 {
		budget = float64(dt) / float64(step)
	} else {
		budget = float64(len(b.Waypoints)+1) + b.Offset.Remaining()
	}

	for budget > 0 {
		if b.Offset.IsZero() {
			if len(b.Waypoints) == 0 {
				return
			}
			next := b.Waypoints[0]
			b.Waypoints = b.Waypoints[1:]
			b.begin(next)
			continue
		}
		budget = b.Offset.approach(budget)
	}
}

// NextTarget возвращает указатель на ближайшую ещё не достигнутую точку пути
// или nil, если тело стоит.
func (b *Body) NextTarget() *world.Position {
	if !b.Offset.IsZero() {
		return &b.Position
	}
	if len(b.Waypoints) > 0 {
		return &b.Waypoints[0]
	}
	return nil
}

// Nudge сдвигает путь на один тайл к target (сначала X, затем Y).
// В движении смещение компенсирует сдвиг и коррекция растягивается на
// следующие кадры; стоящее тело перешагивает на тайл. Состояние Idle/Moving
// не меняется. Смена карты обрабатывается как Snap.
func (b *Body) Nudge(target world.Position) {
	if b.Position.Map != target.Map {
		b.Snap(target)
		return
	}
	stepped := b.Position.StepToward(target)
	dx, dy := b.Position.Delta(stepped)
	if dx == 0 && dy == 0 {
		return
	}
	b.shift(dx, dy)
	for i := range b.Waypoints {
		if b.Waypoints[i].Map != target.Map {
			continue
		}
		// точка у края координат остаётся на месте
		if moved, ok := b.Waypoints[i].TranslateChecked(dx, dy); ok {
			b.Waypoints[i] = moved
		}
	}
}

// Settle делает target концом пути. Очередь заменяется одной точкой target,
// стоящее или идущее без очереди тело сдвигается как в Nudge, но сразу на
// всю разницу. Состояние Idle/Moving сохраняется; далёкие цели: Snap.
func (b *Body) Settle(target world.Position) {
	if len(b.Waypoints) > 0 {
		b.Waypoints = append(b.Waypoints[:0], target)
		return
	}
	d := b.Position.Chebyshev(target)
	if d < 0 || d > 2 {
		b.Snap(target)
		return
	}
	dx, dy := b.Position.Delta(target)
	b.shift(dx, dy)
}

func (b *Body) shift(dx, dy int) {
	b.Position = b.Position.Translate(dx, dy)
	if b.Offset.IsZero() {
		return
	}
	b.Offset.X -= float64(dx)
	b.Offset.Y -= float64(dy)
}

// Snap жёстко ставит тело в позицию
func (b *Body) Snap(target world.Position) {
	b.Position = target
	b.Offset = Offset{}
	b.Waypoints = nil
}

func towardZero(v, amount float64) float64 {
	if absF(v) <= amount {
		return 0
	}
	if v > 0 {
		return v - amount
	}
	return v + amount
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
