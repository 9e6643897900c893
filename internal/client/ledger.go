package client

import (
	"time"

	"github.com/annel0/tile-movement/internal/protocol"
	"github.com/annel0/tile-movement/internal/world"
)

// MaxPendingPredictions ограничивает число неподтверждённых предсказаний.
// Держит разницу номеров заметно меньше половины кольца u8.
const MaxPendingPredictions = 32

// Prediction запись журнала предсказаний
type Prediction struct {
	Seq       uint8
	Predicted world.Position
	SentAt    time.Time
}

// Ledger журнал предсказаний в порядке отправки (старые первыми)
type Ledger struct {
	entries []Prediction
}

// Len возвращает число ожидающих подтверждения записей
func (l *Ledger) Len() int {
	return len(l.entries)
}

// Full сообщает, что новые предсказания делать нельзя
func (l *Ledger) Full() bool {
	return len(l.entries) >= MaxPendingPredictions
}

// Entries возвращает копию записей
func (l *Ledger) Entries() []Prediction {
	out := make([]Prediction, len(l.entries))
	copy(out, l.entries)
	return out
}

// Push добавляет запись. Номер с уже ожидающей записью заменяет её,
// чтобы на каждый seq приходилось не более одной записи.
func (l *Ledger) Push(p Prediction) {
	for i := range l.entries {
		if l.entries[i].Seq == p.Seq {
			l.entries = append(l.entries[:i], l.entries[i+1:]...)
			break
		}
	}
	l.entries = append(l.entries, p)
}

// Settle удаляет все записи с seq не новее requestID.
// Возвращает запись с seq == requestID, если она была.
func (l *Ledger) Settle(requestID uint8) (matched Prediction, found bool, removed int) {
	kept := l.entries[:0]
	for _, e := range l.entries {
		switch protocol.SeqCompare(e.Seq, requestID) {
		case -1:
			removed++
		case 0:
			matched, found = e, true
			removed++
		default:
			kept = append(kept, e)
		}
	}
	l.entries = kept
	return matched, found, removed
}

// Expire удаляет записи, ожидающие ответа дольше timeout
func (l *Ledger) Expire(now time.Time, timeout time.Duration) int {
	kept := l.entries[:0]
	expired := 0
	for _, e := range l.entries {
		if now.Sub(e.SentAt) >= timeout {
			expired++
			continue
		}
		kept = append(kept, e)
	}
	l.entries = kept
	return expired
}

// Clear удаляет все записи
func (l *Ledger) Clear() {
	l.entries = l.entries[:0]
}
