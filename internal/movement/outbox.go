package movement

import (
	"github.com/annel0/tile-movement/internal/protocol"
	"github.com/annel0/tile-movement/internal/world"
)

// Outbox доставляет пакеты сущностям. Реализация не должна блокировать
// планировщик: медленные получатели теряют пакеты, а не тормозят тик.
type Outbox interface {
	Unicast(to world.EntityID, pkt protocol.ServerPacket)
	Broadcast(to []world.EntityID, pkt protocol.ServerPacket)
}

// OutboxFunc адаптер функции к Outbox (удобно в тестах и утилитах)
type OutboxFunc func(to world.EntityID, pkt protocol.ServerPacket)

func (f OutboxFunc) Unicast(to world.EntityID, pkt protocol.ServerPacket) {
	f(to, pkt)
}

func (f OutboxFunc) Broadcast(to []world.EntityID, pkt protocol.ServerPacket) {
	for _, id := range to {
		f(id, pkt)
	}
}
