package eventbus

import (
	"context"

	"github.com/annel0/tile-movement/internal/logging"
	"github.com/annel0/tile-movement/internal/protocol/events"
)

// StartLoggingListener подписывается на все события и пишет их в лог.
// Функция неблокирующая.
func StartLoggingListener(bus EventBus) (Subscription, error) {
	sub, err := bus.Subscribe(context.Background(), Filter{}, func(ctx context.Context, ev *Envelope) {
		logging.Debug("[EventBus] %s %s src=%s %s", ev.ID, ev.EventType, ev.Source, Describe(ev))
	})
	if err != nil {
		return nil, err
	}
	logging.Info("🪵 LoggingListener: подписка на все события активирована")
	return sub, nil
}

// Describe расшифровывает известные полезные нагрузки для лога
func Describe(ev *Envelope) string {
	switch events.EventType(ev.EventType) {
	case events.EventCharacterMoved:
		var m events.CharacterMoved
		if err := m.Unmarshal(ev.Payload); err != nil {
			return "payload=invalid"
		}
		return m.String()
	case events.EventCharacterLogin, events.EventCharacterLogout:
		var s events.CharacterSession
		if err := s.Unmarshal(ev.Payload); err != nil {
			return "payload=invalid"
		}
		return s.String()
	}
	return "payload=opaque"
}
