package client

import (
	"time"

	"github.com/annel0/tile-movement/internal/protocol"
	"github.com/annel0/tile-movement/internal/world"
)

// DefaultFinishThreshold остаток интерполяции (в тайлах), при котором шаг
// считается только что завершённым и можно планировать следующий.
const DefaultFinishThreshold = 0.15

// Predictor мгновенно двигает своего персонажа и порождает MoveRequest.
// Работает в одном потоке кадра и никогда не ждёт ответа сервера.
type Predictor struct {
	maps   world.MapProvider
	body   *Body
	input  InputStack
	ledger *Ledger

	seq             uint8
	lastMove        time.Time
	interval        time.Duration
	finishThreshold float64
}

// NewPredictor создаёт предсказатель для тела body
func NewPredictor(maps world.MapProvider, body *Body, ledger *Ledger) *Predictor {
	return &Predictor{
		maps:            maps,
		body:            body,
		ledger:          ledger,
		interval:        protocol.MoveInterval,
		finishThreshold: DefaultFinishThreshold,
	}
}

// SetInterval меняет интервал шага (должен совпадать с серверным)
func (p *Predictor) SetInterval(d time.Duration) {
	p.interval = d
}

// KeyPress нажатие клавиши направления
func (p *Predictor) KeyPress(d world.Direction) {
	p.input.Press(d)
}

// KeyRelease отпускание клавиши. Уже отправленные запросы не отменяются.
func (p *Predictor) KeyRelease(d world.Direction) {
	p.input.Release(d)
}

// Input возвращает стек зажатых направлений
func (p *Predictor) Input() *InputStack {
	return &p.input
}

// NextSeq возвращает номер, который получит следующий запрос
func (p *Predictor) NextSeq() uint8 {
	return p.seq
}

// ready проверяет, что тело не в середине шага (или только что его закончило)
func (p *Predictor) ready() bool {
	return len(p.body.Waypoints) == 0 && p.body.Offset.Remaining() <= p.finishThreshold
}

// CooldownElapsed проверяет локальный кулдаун: интервал минус RTT.
func (p *Predictor) CooldownElapsed(now time.Time, rtt time.Duration) bool {
	if p.lastMove.IsZero() {
		return true
	}
	return now.Sub(p.lastMove) >= p.interval-rtt
}

// TryStartMove пытается начать шаг в актуальном направлении.
// При успехе позиция тела уже изменена, предсказание записано в журнал,
// а возвращённый запрос нужно отправить серверу.
func (p *Predictor) TryStartMove(now time.Time, rtt time.Duration) (*protocol.MoveRequest, bool) {
	dir, ok := p.input.Front()
	if !ok || p.ledger.Full() || !p.ready() || !p.CooldownElapsed(now, rtt) {
		return nil, false
	}

	from := p.body.Tip()
	predicted := world.NextPosition(p.maps, from, dir)
	p.body.Heading = dir
	if predicted != from {
		p.body.MoveTo(predicted)
	}

	req := &protocol.MoveRequest{ID: p.seq, Direction: dir}
	p.ledger.Push(Prediction{Seq: p.seq, Predicted: predicted, SentAt: now})
	p.seq++
	p.lastMove = now
	return req, true
}
