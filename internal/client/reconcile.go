package client

import (
	"time"

	"github.com/annel0/tile-movement/internal/protocol"
	"github.com/annel0/tile-movement/internal/world"
)

// ReconcileResult итог обработки одного MoveResponse
type ReconcileResult struct {
	Matched      bool // в журнале была запись с этим номером
	Mispredicted bool // предсказание разошлось с сервером
	Discarded    int  // удалено записей, включая совпавшую
	Settled      bool // путь сведён к авторитетной позиции после опустошения журнала
}

// ReconcileStats накопленная статистика сверки
type ReconcileStats struct {
	Responses     uint64
	Mispredicted  uint64
	Nudges        uint64
	Merges        uint64
	Settles       uint64
	Resyncs       uint64
	StaleDropped  uint64
	ExpiredTotals uint64
}

// Reconciler сводит оптимистичное состояние клиента к авторитетному
type Reconciler struct {
	ledger *Ledger
	body   *Body
	stats  ReconcileStats
}

// NewReconciler создаёт движок сверки для тела и журнала предсказателя
func NewReconciler(ledger *Ledger, body *Body) *Reconciler {
	return &Reconciler{ledger: ledger, body: body}
}

// Stats возвращает копию статистики
func (r *Reconciler) Stats() ReconcileStats {
	return r.stats
}

// ApplyMoveResponse обрабатывает авторитетный ответ на MoveRequest.
//
// Записи старше RequestID считаются устаревшими и удаляются без коррекции,
// запись с RequestID удаляется и при расхождении корректирует тело, более
// новые записи не трогаются. Сравнение номеров идёт по кольцу u8.
func (r *Reconciler) ApplyMoveResponse(resp *protocol.MoveResponse) ReconcileResult {
	r.stats.Responses++

	matched, found, removed := r.ledger.Settle(resp.RequestID)
	res := ReconcileResult{Matched: found, Discarded: removed}
	if found {
		r.stats.StaleDropped += uint64(removed - 1)
	} else {
		r.stats.StaleDropped += uint64(removed)
	}

	if found && matched.Predicted != resp.Position {
		res.Mispredicted = true
		r.stats.Mispredicted++
		r.correct(resp.Position)
	}

	// Без ожидающих предсказаний ответ сервера: полная правда о позиции
	if r.ledger.Len() == 0 && r.body.Tip() != resp.Position {
		r.body.Settle(resp.Position)
		r.stats.Settles++
		res.Settled = true
	}
	return res
}

// correct применяет корректирующий сдвиг к телу
func (r *Reconciler) correct(authoritative world.Position) {
	if next := r.body.NextTarget(); next != nil && *next == authoritative {
		*next = authoritative
		r.stats.Merges++
		return
	}
	r.body.Nudge(authoritative)
	r.stats.Nudges++
}

// Resync жёстко применяет позицию из UserPosition: журнал очищается
func (r *Reconciler) Resync(pos world.Position) {
	r.ledger.Clear()
	r.body.Snap(pos)
	r.stats.Resyncs++
}

// Expire выбрасывает предсказания без ответа дольше timeout.
// Ненулевой результат означает, что позицию надо перезапросить у сервера.
func (r *Reconciler) Expire(now time.Time, timeout time.Duration) int {
	n := r.ledger.Expire(now, timeout)
	r.stats.ExpiredTotals += uint64(n)
	return n
}
