// Package events содержит полезные нагрузки событий шины в формате protobuf wire.
//
// Схема (для потребителей на других языках):
//
//	message CharacterMoved { uint32 entity_id = 1; uint32 request_id = 2;
//	  Position from = 3; Position to = 4; bool blocked = 5; }
//	message CharacterSession { uint32 entity_id = 1; string name = 2; Position position = 3; }
//	message Position { uint32 map = 1; uint32 x = 2; uint32 y = 3; }
package events

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/annel0/tile-movement/internal/world"
)

// EventType тип события в Envelope.EventType
type EventType string

const (
	EventCharacterLogin  EventType = "character.login"
	EventCharacterLogout EventType = "character.logout"
	EventCharacterMoved  EventType = "character.moved"
)

var errBadPayload = errors.New("bad event payload")

// CharacterMoved авторитетный шаг, применённый планировщиком
type CharacterMoved struct {
	EntityID  world.EntityID
	RequestID uint8
	From      world.Position
	To        world.Position
	Blocked   bool
}

// CharacterSession вход или выход персонажа
type CharacterSession struct {
	EntityID world.EntityID
	Name     string
	Position world.Position
}

func appendPosition(b []byte, num protowire.Number, p world.Position) []byte {
	var inner []byte
	inner = protowire.AppendTag(inner, 1, protowire.VarintType)
	inner = protowire.AppendVarint(inner, uint64(p.Map))
	inner = protowire.AppendTag(inner, 2, protowire.VarintType)
	inner = protowire.AppendVarint(inner, uint64(p.X))
	inner = protowire.AppendTag(inner, 3, protowire.VarintType)
	inner = protowire.AppendVarint(inner, uint64(p.Y))

	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, inner)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

// Marshal кодирует событие
func (e *CharacterMoved) Marshal() []byte {
	var b []byte
	b = appendVarint(b, 1, uint64(e.EntityID))
	b = appendVarint(b, 2, uint64(e.RequestID))
	b = appendPosition(b, 3, e.From)
	b = appendPosition(b, 4, e.To)
	b = appendVarint(b, 5, protowire.EncodeBool(e.Blocked))
	return b
}

// Unmarshal разбирает событие; неизвестные поля пропускаются
func (e *CharacterMoved) Unmarshal(b []byte) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, v uint64, raw []byte) error {
		switch num {
		case 1:
			e.EntityID = world.EntityID(v)
		case 2:
			e.RequestID = uint8(v)
		case 3:
			return unmarshalPosition(raw, &e.From)
		case 4:
			return unmarshalPosition(raw, &e.To)
		case 5:
			e.Blocked = protowire.DecodeBool(v)
		}
		return nil
	})
}

// Marshal кодирует событие
func (e *CharacterSession) Marshal() []byte {
	var b []byte
	b = appendVarint(b, 1, uint64(e.EntityID))
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendString(b, e.Name)
	b = appendPosition(b, 3, e.Position)
	return b
}

// Unmarshal разбирает событие
func (e *CharacterSession) Unmarshal(b []byte) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, v uint64, raw []byte) error {
		switch num {
		case 1:
			e.EntityID = world.EntityID(v)
		case 2:
			e.Name = string(raw)
		case 3:
			return unmarshalPosition(raw, &e.Position)
		}
		return nil
	})
}

func unmarshalPosition(b []byte, p *world.Position) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, v uint64, raw []byte) error {
		switch num {
		case 1:
			p.Map = uint16(v)
		case 2:
			p.X = uint16(v)
		case 3:
			p.Y = uint16(v)
		}
		return nil
	})
}

// walk обходит поля сообщения; для varint передаётся v, для bytes: raw
func walk(b []byte, fn func(num protowire.Number, typ protowire.Type, v uint64, raw []byte) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", errBadPayload, protowire.ParseError(n))
		}
		b = b[n:]

		var (
			v   uint64
			raw []byte
		)
		switch typ {
		case protowire.VarintType:
			v, n = protowire.ConsumeVarint(b)
		case protowire.BytesType:
			raw, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return fmt.Errorf("%w: field %d: %v", errBadPayload, num, protowire.ParseError(n))
		}
		b = b[n:]

		if err := fn(num, typ, v, raw); err != nil {
			return err
		}
	}
	return nil
}

func (e *CharacterMoved) String() string {
	return fmt.Sprintf("entity=%d req=%d %s -> %s blocked=%t", e.EntityID, e.RequestID, e.From, e.To, e.Blocked)
}

func (e *CharacterSession) String() string {
	return fmt.Sprintf("entity=%d name=%q at %s", e.EntityID, e.Name, e.Position)
}
