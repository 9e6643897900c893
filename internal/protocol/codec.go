// Package protocol описывает бинарный протокол клиент-сервер.
//
// Каждый пакет кодируется как family u8, kind u8 и далее поля в порядке
// объявления: целые little-endian без выравнивания, строки как u16 длина +
// UTF-8, позиция как map u16, x u16, y u16, направление как u8.
// Версионирования нет: добавление, удаление или перестановка вариантов
// ломает совместимость.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/annel0/tile-movement/internal/world"
)

// MaxStringLen максимальная длина строки в байтах
const MaxStringLen = 1024

var (
	// ErrMalformed пакет обрезан, содержит лишние байты или недопустимые значения
	ErrMalformed = errors.New("malformed packet")
	// ErrUnknownTag неизвестная комбинация family/kind
	ErrUnknownTag = errors.New("unknown packet tag")
)

// Packet общий контракт всех пакетов протокола
type Packet interface {
	Family() uint8
	Kind() uint8
	encodeFields(w *writer)
	decodeFields(r *reader)
}

// ClientPacket пакет клиент → сервер
type ClientPacket interface {
	Packet
	clientPacket()
}

// ServerPacket пакет сервер → клиент
type ServerPacket interface {
	Packet
	serverPacket()
}

func tagOf(family, kind uint8) uint16 {
	return uint16(family)<<8 | uint16(kind)
}

// EncodeClient кодирует пакет клиента
func EncodeClient(p ClientPacket) ([]byte, error) {
	return encode(p)
}

// EncodeServer кодирует пакет сервера
func EncodeServer(p ServerPacket) ([]byte, error) {
	return encode(p)
}

func encode(p Packet) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("encode: %w: nil packet", ErrMalformed)
	}
	w := &writer{buf: make([]byte, 0, 16)}
	w.u8(p.Family())
	w.u8(p.Kind())
	p.encodeFields(w)
	if w.err != nil {
		return nil, fmt.Errorf("encode %T: %w", p, w.err)
	}
	return w.buf, nil
}

// DecodeClient разбирает пакет клиента. Никогда не паникует на мусорном входе.
func DecodeClient(data []byte) (ClientPacket, error) {
	family, kind, err := header(data)
	if err != nil {
		return nil, err
	}
	factory, ok := clientFactories[tagOf(family, kind)]
	if !ok {
		return nil, fmt.Errorf("client packet %d/%d: %w", family, kind, ErrUnknownTag)
	}
	p := factory()
	if err := decodeBody(p, data); err != nil {
		return nil, err
	}
	return p, nil
}

// DecodeServer разбирает пакет сервера. Никогда не паникует на мусорном входе.
func DecodeServer(data []byte) (ServerPacket, error) {
	family, kind, err := header(data)
	if err != nil {
		return nil, err
	}
	factory, ok := serverFactories[tagOf(family, kind)]
	if !ok {
		return nil, fmt.Errorf("server packet %d/%d: %w", family, kind, ErrUnknownTag)
	}
	p := factory()
	if err := decodeBody(p, data); err != nil {
		return nil, err
	}
	return p, nil
}

func header(data []byte) (uint8, uint8, error) {
	if len(data) < 2 {
		return 0, 0, fmt.Errorf("header: %w: %d bytes", ErrMalformed, len(data))
	}
	return data[0], data[1], nil
}

func decodeBody(p Packet, data []byte) error {
	r := &reader{buf: data, off: 2}
	p.decodeFields(r)
	if r.err != nil {
		return fmt.Errorf("decode %T: %w", p, r.err)
	}
	if r.off != len(r.buf) {
		return fmt.Errorf("decode %T: %w: %d trailing bytes", p, ErrMalformed, len(r.buf)-r.off)
	}
	return nil
}

// writer накапливает байты; первая ошибка "залипает"
type writer struct {
	buf []byte
	err error
}

func (w *writer) u8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *writer) u16(v uint16) {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
}

func (w *writer) u32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

func (w *writer) u64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

func (w *writer) str(s string) {
	if len(s) > MaxStringLen {
		w.fail(fmt.Errorf("%w: string of %d bytes", ErrMalformed, len(s)))
		return
	}
	w.u16(uint16(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *writer) dir(d world.Direction) {
	if !d.Valid() {
		w.fail(fmt.Errorf("%w: direction %d", ErrMalformed, uint8(d)))
		return
	}
	w.u8(uint8(d))
}

func (w *writer) pos(p world.Position) {
	w.u16(p.Map)
	w.u16(p.X)
	w.u16(p.Y)
}

func (w *writer) entity(id world.EntityID) {
	w.u32(uint32(id))
}

func (w *writer) fail(err error) {
	if w.err == nil {
		w.err = err
	}
}

// reader читает поля; после первой ошибки все чтения возвращают нули
type reader struct {
	buf []byte
	off int
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.buf)-r.off < n {
		r.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrMalformed, n, r.off, len(r.buf)-r.off)
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) u16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *reader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *reader) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *reader) str() string {
	n := int(r.u16())
	if r.err != nil {
		return ""
	}
	if n > MaxStringLen {
		r.err = fmt.Errorf("%w: string of %d bytes", ErrMalformed, n)
		return ""
	}
	b := r.take(n)
	if b == nil {
		return ""
	}
	if !utf8.Valid(b) {
		r.err = fmt.Errorf("%w: invalid utf-8", ErrMalformed)
		return ""
	}
	return string(b)
}

func (r *reader) dir() world.Direction {
	v := r.u8()
	if r.err == nil && !world.Direction(v).Valid() {
		r.err = fmt.Errorf("%w: direction %d", ErrMalformed, v)
	}
	return world.Direction(v)
}

func (r *reader) pos() world.Position {
	return world.Position{Map: r.u16(), X: r.u16(), Y: r.u16()}
}

func (r *reader) entity() world.EntityID {
	return world.EntityID(r.u32())
}
