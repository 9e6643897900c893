package protocol

import "github.com/annel0/tile-movement/internal/world"

// Семейства пакетов сервер → клиент
const (
	ServerConnection uint8 = iota
	ServerAccount
	ServerCharacterUpdate
	ServerUserUpdate
	ServerEvent
	ServerObject
	ServerMessage
)

type serverMarker struct{}

func (serverMarker) serverPacket() {}

// ---- Connection ----

type Connected struct {
	serverMarker
	noFields
}

func (*Connected) Family() uint8 { return ServerConnection }
func (*Connected) Kind() uint8   { return 0 }

type Disconnect struct {
	serverMarker
	noFields
}

func (*Disconnect) Family() uint8 { return ServerConnection }
func (*Disconnect) Kind() uint8   { return 1 }

// Pong ответ на RequestPing с тем же Timestamp
type Pong struct {
	serverMarker
	Timestamp uint64
}

func (*Pong) Family() uint8            { return ServerConnection }
func (*Pong) Kind() uint8              { return 2 }
func (p *Pong) encodeFields(w *writer) { w.u64(p.Timestamp) }
func (p *Pong) decodeFields(r *reader) { p.Timestamp = r.u64() }

// ---- Account ----

type AccountCreated struct {
	serverMarker
	EntityID world.EntityID
}

func (*AccountCreated) Family() uint8            { return ServerAccount }
func (*AccountCreated) Kind() uint8              { return 0 }
func (p *AccountCreated) encodeFields(w *writer) { w.entity(p.EntityID) }
func (p *AccountCreated) decodeFields(r *reader) { p.EntityID = r.entity() }

// LoginOk вход выполнен; Position: стартовая авторитетная позиция
type LoginOk struct {
	serverMarker
	EntityID world.EntityID
	Position world.Position
}

func (*LoginOk) Family() uint8 { return ServerAccount }
func (*LoginOk) Kind() uint8   { return 1 }
func (p *LoginOk) encodeFields(w *writer) {
	w.entity(p.EntityID)
	w.pos(p.Position)
}
func (p *LoginOk) decodeFields(r *reader) {
	p.EntityID = r.entity()
	p.Position = r.pos()
}

type LoginFailed struct {
	serverMarker
	Reason string
}

func (*LoginFailed) Family() uint8            { return ServerAccount }
func (*LoginFailed) Kind() uint8              { return 2 }
func (p *LoginFailed) encodeFields(w *writer) { w.str(p.Reason) }
func (p *LoginFailed) decodeFields(r *reader) { p.Reason = r.str() }

type LoggedOut struct {
	serverMarker
	noFields
}

func (*LoggedOut) Family() uint8 { return ServerAccount }
func (*LoggedOut) Kind() uint8   { return 3 }

// ---- CharacterUpdate ----

// CharacterCreate персонаж появился в области наблюдателя
type CharacterCreate struct {
	serverMarker
	EntityID world.EntityID
	Name     string
	Position world.Position
	Heading  world.Heading
}

func (*CharacterCreate) Family() uint8 { return ServerCharacterUpdate }
func (*CharacterCreate) Kind() uint8   { return 0 }
func (p *CharacterCreate) encodeFields(w *writer) {
	w.entity(p.EntityID)
	w.str(p.Name)
	w.pos(p.Position)
	w.dir(p.Heading)
}
func (p *CharacterCreate) decodeFields(r *reader) {
	p.EntityID = r.entity()
	p.Name = r.str()
	p.Position = r.pos()
	p.Heading = r.dir()
}

// CharacterRemove персонаж покинул область наблюдателя
type CharacterRemove struct {
	serverMarker
	EntityID world.EntityID
}

func (*CharacterRemove) Family() uint8            { return ServerCharacterUpdate }
func (*CharacterRemove) Kind() uint8              { return 1 }
func (p *CharacterRemove) encodeFields(w *writer) { w.entity(p.EntityID) }
func (p *CharacterRemove) decodeFields(r *reader) { p.EntityID = r.entity() }

// MoveResponse авторитетный результат MoveRequest с тем же RequestID (только инициатору)
type MoveResponse struct {
	serverMarker
	RequestID uint8
	Position  world.Position
}

func (*MoveResponse) Family() uint8 { return ServerCharacterUpdate }
func (*MoveResponse) Kind() uint8   { return 2 }
func (p *MoveResponse) encodeFields(w *writer) {
	w.u8(p.RequestID)
	w.pos(p.Position)
}
func (p *MoveResponse) decodeFields(r *reader) {
	p.RequestID = r.u8()
	p.Position = r.pos()
}

// CharacterMove авторитетное перемещение другого персонажа (наблюдателям)
type CharacterMove struct {
	serverMarker
	EntityID world.EntityID
	Position world.Position
}

func (*CharacterMove) Family() uint8 { return ServerCharacterUpdate }
func (*CharacterMove) Kind() uint8   { return 3 }
func (p *CharacterMove) encodeFields(w *writer) {
	w.entity(p.EntityID)
	w.pos(p.Position)
}
func (p *CharacterMove) decodeFields(r *reader) {
	p.EntityID = r.entity()
	p.Position = r.pos()
}

type CharacterHeading struct {
	serverMarker
	EntityID  world.EntityID
	Direction world.Direction
}

func (*CharacterHeading) Family() uint8 { return ServerCharacterUpdate }
func (*CharacterHeading) Kind() uint8   { return 4 }
func (p *CharacterHeading) encodeFields(w *writer) {
	w.entity(p.EntityID)
	w.dir(p.Direction)
}
func (p *CharacterHeading) decodeFields(r *reader) {
	p.EntityID = r.entity()
	p.Direction = r.dir()
}

// ---- UserUpdate ----

// UserPosition принудительная синхронизация позиции своего персонажа
type UserPosition struct {
	serverMarker
	Position world.Position
}

func (*UserPosition) Family() uint8            { return ServerUserUpdate }
func (*UserPosition) Kind() uint8              { return 0 }
func (p *UserPosition) encodeFields(w *writer) { w.pos(p.Position) }
func (p *UserPosition) decodeFields(r *reader) { p.Position = r.pos() }

type UserStats struct {
	serverMarker
	HP    uint16
	MaxHP uint16
}

func (*UserStats) Family() uint8 { return ServerUserUpdate }
func (*UserStats) Kind() uint8   { return 1 }
func (p *UserStats) encodeFields(w *writer) {
	w.u16(p.HP)
	w.u16(p.MaxHP)
}
func (p *UserStats) decodeFields(r *reader) {
	p.HP = r.u16()
	p.MaxHP = r.u16()
}

// ---- Event ----

type EventSound struct {
	serverMarker
	Sound    uint16
	Position world.Position
}

func (*EventSound) Family() uint8 { return ServerEvent }
func (*EventSound) Kind() uint8   { return 0 }
func (p *EventSound) encodeFields(w *writer) {
	w.u16(p.Sound)
	w.pos(p.Position)
}
func (p *EventSound) decodeFields(r *reader) {
	p.Sound = r.u16()
	p.Position = r.pos()
}

type EventFx struct {
	serverMarker
	EntityID world.EntityID
	Fx       uint16
}

func (*EventFx) Family() uint8 { return ServerEvent }
func (*EventFx) Kind() uint8   { return 1 }
func (p *EventFx) encodeFields(w *writer) {
	w.entity(p.EntityID)
	w.u16(p.Fx)
}
func (p *EventFx) decodeFields(r *reader) {
	p.EntityID = r.entity()
	p.Fx = r.u16()
}

// ---- Object ----

type ObjectCreate struct {
	serverMarker
	Position world.Position
	Grh      uint32
}

func (*ObjectCreate) Family() uint8 { return ServerObject }
func (*ObjectCreate) Kind() uint8   { return 0 }
func (p *ObjectCreate) encodeFields(w *writer) {
	w.pos(p.Position)
	w.u32(p.Grh)
}
func (p *ObjectCreate) decodeFields(r *reader) {
	p.Position = r.pos()
	p.Grh = r.u32()
}

type ObjectRemove struct {
	serverMarker
	Position world.Position
}

func (*ObjectRemove) Family() uint8            { return ServerObject }
func (*ObjectRemove) Kind() uint8              { return 1 }
func (p *ObjectRemove) encodeFields(w *writer) { w.pos(p.Position) }
func (p *ObjectRemove) decodeFields(r *reader) { p.Position = r.pos() }

// ---- Message ----

type ChatMessage struct {
	serverMarker
	EntityID world.EntityID
	Text     string
}

func (*ChatMessage) Family() uint8 { return ServerMessage }
func (*ChatMessage) Kind() uint8   { return 0 }
func (p *ChatMessage) encodeFields(w *writer) {
	w.entity(p.EntityID)
	w.str(p.Text)
}
func (p *ChatMessage) decodeFields(r *reader) {
	p.EntityID = r.entity()
	p.Text = r.str()
}

type SystemMessage struct {
	serverMarker
	Text string
}

func (*SystemMessage) Family() uint8            { return ServerMessage }
func (*SystemMessage) Kind() uint8              { return 1 }
func (p *SystemMessage) encodeFields(w *writer) { w.str(p.Text) }
func (p *SystemMessage) decodeFields(r *reader) { p.Text = r.str() }

type OnlineCount struct {
	serverMarker
	Count uint16
}

func (*OnlineCount) Family() uint8            { return ServerMessage }
func (*OnlineCount) Kind() uint8              { return 2 }
func (p *OnlineCount) encodeFields(w *writer) { w.u16(p.Count) }
func (p *OnlineCount) decodeFields(r *reader) { p.Count = r.u16() }

var serverFactories = map[uint16]func() ServerPacket{
	tagOf(ServerConnection, 0):      func() ServerPacket { return &Connected{} },
	tagOf(ServerConnection, 1):      func() ServerPacket { return &Disconnect{} },
	tagOf(ServerConnection, 2):      func() ServerPacket { return &Pong{} },
	tagOf(ServerAccount, 0):         func() ServerPacket { return &AccountCreated{} },
	tagOf(ServerAccount, 1):         func() ServerPacket { return &LoginOk{} },
	tagOf(ServerAccount, 2):         func() ServerPacket { return &LoginFailed{} },
	tagOf(ServerAccount, 3):         func() ServerPacket { return &LoggedOut{} },
	tagOf(ServerCharacterUpdate, 0): func() ServerPacket { return &CharacterCreate{} },
	tagOf(ServerCharacterUpdate, 1): func() ServerPacket { return &CharacterRemove{} },
	tagOf(ServerCharacterUpdate, 2): func() ServerPacket { return &MoveResponse{} },
	tagOf(ServerCharacterUpdate, 3): func() ServerPacket { return &CharacterMove{} },
	tagOf(ServerCharacterUpdate, 4): func() ServerPacket { return &CharacterHeading{} },
	tagOf(ServerUserUpdate, 0):      func() ServerPacket { return &UserPosition{} },
	tagOf(ServerUserUpdate, 1):      func() ServerPacket { return &UserStats{} },
	tagOf(ServerEvent, 0):           func() ServerPacket { return &EventSound{} },
	tagOf(ServerEvent, 1):           func() ServerPacket { return &EventFx{} },
	tagOf(ServerObject, 0):          func() ServerPacket { return &ObjectCreate{} },
	tagOf(ServerObject, 1):          func() ServerPacket { return &ObjectRemove{} },
	tagOf(ServerMessage, 0):         func() ServerPacket { return &ChatMessage{} },
	tagOf(ServerMessage, 1):         func() ServerPacket { return &SystemMessage{} },
	tagOf(ServerMessage, 2):         func() ServerPacket { return &OnlineCount{} },
}
