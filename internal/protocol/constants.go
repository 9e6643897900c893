package protocol

import "time"

// Фиксированные константы протокола движения
const (
	// MoveInterval минимальный интервал между двумя авторитетными шагами сущности
	MoveInterval = 200 * time.Millisecond
	// SequenceSpace размер пространства номеров MoveRequest (u8, с переполнением)
	SequenceSpace = 256
)

// SeqCompare сравнивает номера последовательности по кольцу u8.
// Возвращает -1, если a старше b, 0 при равенстве и 1, если a новее b.
// Корректно, пока разница между номерами меньше SequenceSpace/2.
func SeqCompare(a, b uint8) int {
	d := int8(a - b)
	switch {
	case d < 0:
		return -1
	case d > 0:
		return 1
	default:
		return 0
	}
}
