package protocol

import "github.com/annel0/tile-movement/internal/world"

// Семейства пакетов клиент → сервер
const (
	ClientAccount uint8 = iota
	ClientUserAction
	ClientBank
	ClientCommerce
	ClientPet
	ClientRequest
)

// noFields встраивается в пакеты без полей
type noFields struct{}

func (noFields) encodeFields(*writer) {}
func (noFields) decodeFields(*reader) {}

type clientMarker struct{}

func (clientMarker) clientPacket() {}

// ---- Account ----

// AccountLogin вход существующим персонажем
type AccountLogin struct {
	clientMarker
	Name string
}

func (*AccountLogin) Family() uint8            { return ClientAccount }
func (*AccountLogin) Kind() uint8              { return 0 }
func (p *AccountLogin) encodeFields(w *writer) { w.str(p.Name) }
func (p *AccountLogin) decodeFields(r *reader) { p.Name = r.str() }

// AccountCreate создание персонажа
type AccountCreate struct {
	clientMarker
	Name string
}

func (*AccountCreate) Family() uint8            { return ClientAccount }
func (*AccountCreate) Kind() uint8              { return 1 }
func (p *AccountCreate) encodeFields(w *writer) { w.str(p.Name) }
func (p *AccountCreate) decodeFields(r *reader) { p.Name = r.str() }

// AccountLogout выход из игры
type AccountLogout struct {
	clientMarker
	noFields
}

func (*AccountLogout) Family() uint8 { return ClientAccount }
func (*AccountLogout) Kind() uint8   { return 2 }

// ---- UserAction ----

// MoveRequest запрос шага; ID: порядковый номер соединения (u8, с переполнением)
type MoveRequest struct {
	clientMarker
	ID        uint8
	Direction world.Direction
}

func (*MoveRequest) Family() uint8 { return ClientUserAction }
func (*MoveRequest) Kind() uint8   { return 0 }
func (p *MoveRequest) encodeFields(w *writer) {
	w.u8(p.ID)
	w.dir(p.Direction)
}
func (p *MoveRequest) decodeFields(r *reader) {
	p.ID = r.u8()
	p.Direction = r.dir()
}

// Talk реплика в чат области
type Talk struct {
	clientMarker
	Text string
}

func (*Talk) Family() uint8            { return ClientUserAction }
func (*Talk) Kind() uint8              { return 1 }
func (p *Talk) encodeFields(w *writer) { w.str(p.Text) }
func (p *Talk) decodeFields(r *reader) { p.Text = r.str() }

// Attack атака в направлении взгляда
type Attack struct {
	clientMarker
	noFields
}

func (*Attack) Family() uint8 { return ClientUserAction }
func (*Attack) Kind() uint8   { return 2 }

// ChangeHeading поворот на месте
type ChangeHeading struct {
	clientMarker
	Direction world.Direction
}

func (*ChangeHeading) Family() uint8            { return ClientUserAction }
func (*ChangeHeading) Kind() uint8              { return 3 }
func (p *ChangeHeading) encodeFields(w *writer) { w.dir(p.Direction) }
func (p *ChangeHeading) decodeFields(r *reader) { p.Direction = r.dir() }

// PickUp поднять предмет с тайла
type PickUp struct {
	clientMarker
	noFields
}

func (*PickUp) Family() uint8 { return ClientUserAction }
func (*PickUp) Kind() uint8   { return 4 }

// ---- Bank / Commerce ----

// SlotAmount общая пара полей для операций со слотами
type SlotAmount struct {
	Slot   uint8
	Amount uint16
}

func (s *SlotAmount) encodeFields(w *writer) {
	w.u8(s.Slot)
	w.u16(s.Amount)
}

func (s *SlotAmount) decodeFields(r *reader) {
	s.Slot = r.u8()
	s.Amount = r.u16()
}

type BankOpen struct {
	clientMarker
	noFields
}

func (*BankOpen) Family() uint8 { return ClientBank }
func (*BankOpen) Kind() uint8   { return 0 }

type BankDeposit struct {
	clientMarker
	SlotAmount
}

func (*BankDeposit) Family() uint8 { return ClientBank }
func (*BankDeposit) Kind() uint8   { return 1 }

type BankWithdraw struct {
	clientMarker
	SlotAmount
}

func (*BankWithdraw) Family() uint8 { return ClientBank }
func (*BankWithdraw) Kind() uint8   { return 2 }

type BankClose struct {
	clientMarker
	noFields
}

func (*BankClose) Family() uint8 { return ClientBank }
func (*BankClose) Kind() uint8   { return 3 }

type CommerceOpen struct {
	clientMarker
	noFields
}

func (*CommerceOpen) Family() uint8 { return ClientCommerce }
func (*CommerceOpen) Kind() uint8   { return 0 }

type CommerceBuy struct {
	clientMarker
	SlotAmount
}

func (*CommerceBuy) Family() uint8 { return ClientCommerce }
func (*CommerceBuy) Kind() uint8   { return 1 }

type CommerceSell struct {
	clientMarker
	SlotAmount
}

func (*CommerceSell) Family() uint8 { return ClientCommerce }
func (*CommerceSell) Kind() uint8   { return 2 }

type CommerceClose struct {
	clientMarker
	noFields
}

func (*CommerceClose) Family() uint8 { return ClientCommerce }
func (*CommerceClose) Kind() uint8   { return 3 }

// ---- Pet ----

type PetFollow struct {
	clientMarker
	noFields
}

func (*PetFollow) Family() uint8 { return ClientPet }
func (*PetFollow) Kind() uint8   { return 0 }

type PetStay struct {
	clientMarker
	noFields
}

func (*PetStay) Family() uint8 { return ClientPet }
func (*PetStay) Kind() uint8   { return 1 }

type PetRelease struct {
	clientMarker
	noFields
}

func (*PetRelease) Family() uint8 { return ClientPet }
func (*PetRelease) Kind() uint8   { return 2 }

// ---- Request ----

// RequestPositionUpdate просит сервер прислать авторитетную позицию
type RequestPositionUpdate struct {
	clientMarker
	noFields
}

func (*RequestPositionUpdate) Family() uint8 { return ClientRequest }
func (*RequestPositionUpdate) Kind() uint8   { return 0 }

// RequestPing замер RTT; Timestamp возвращается сервером в Pong
type RequestPing struct {
	clientMarker
	Timestamp uint64
}

func (*RequestPing) Family() uint8            { return ClientRequest }
func (*RequestPing) Kind() uint8              { return 1 }
func (p *RequestPing) encodeFields(w *writer) { w.u64(p.Timestamp) }
func (p *RequestPing) decodeFields(r *reader) { p.Timestamp = r.u64() }

// RequestOnline запрос числа игроков онлайн
type RequestOnline struct {
	clientMarker
	noFields
}

func (*RequestOnline) Family() uint8 { return ClientRequest }
func (*RequestOnline) Kind() uint8   { return 2 }

var clientFactories = map[uint16]func() ClientPacket{
	tagOf(ClientAccount, 0):    func() ClientPacket { return &AccountLogin{} },
	tagOf(ClientAccount, 1):    func() ClientPacket { return &AccountCreate{} },
	tagOf(ClientAccount, 2):    func() ClientPacket { return &AccountLogout{} },
	tagOf(ClientUserAction, 0): func() ClientPacket { return &MoveRequest{} },
	tagOf(ClientUserAction, 1): func() ClientPacket { return &Talk{} },
	tagOf(ClientUserAction, 2): func() ClientPacket { return &Attack{} },
	tagOf(ClientUserAction, 3): func() ClientPacket { return &ChangeHeading{} },
	tagOf(ClientUserAction, 4): func() ClientPacket { return &PickUp{} },
	tagOf(ClientBank, 0):       func() ClientPacket { return &BankOpen{} },
	tagOf(ClientBank, 1):       func() ClientPacket { return &BankDeposit{} },
	tagOf(ClientBank, 2):       func() ClientPacket { return &BankWithdraw{} },
	tagOf(ClientBank, 3):       func() ClientPacket { return &BankClose{} },
	tagOf(ClientCommerce, 0):   func() ClientPacket { return &CommerceOpen{} },
	tagOf(ClientCommerce, 1):   func() ClientPacket { return &CommerceBuy{} },
	tagOf(ClientCommerce, 2):   func() ClientPacket { return &CommerceSell{} },
	tagOf(ClientCommerce, 3):   func() ClientPacket { return &CommerceClose{} },
	tagOf(ClientPet, 0):        func() ClientPacket { return &PetFollow{} },
	tagOf(ClientPet, 1):        func() ClientPacket { return &PetStay{} },
	tagOf(ClientPet, 2):        func() ClientPacket { return &PetRelease{} },
	tagOf(ClientRequest, 0):    func() ClientPacket { return &RequestPositionUpdate{} },
	tagOf(ClientRequest, 1):    func() ClientPacket { return &RequestPing{} },
	tagOf(ClientRequest, 2):    func() ClientPacket { return &RequestOnline{} },
}
