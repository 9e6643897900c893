package client

import (
	"sort"
	"time"

	"github.com/annel0/tile-movement/internal/protocol"
	"github.com/annel0/tile-movement/internal/world"
)

// maxRemoteBacklog сколько шагов чужого персонажа можно копить для
// интерполяции; дальше тело догоняет сервер рывком.
const maxRemoteBacklog = 4

// Remote чужой персонаж в области видимости
type Remote struct {
	ID   world.EntityID
	Name string
	Body *Body
}

// View набор чужих персонажей, поддерживаемый пакетами CharacterUpdate
type View struct {
	entities map[world.EntityID]*Remote
}

// NewView создаёт пустой вид
func NewView() *View {
	return &View{entities: make(map[world.EntityID]*Remote)}
}

// Apply применяет пакет к виду. Возвращает false для пакетов, которые
// вид не обрабатывает, и для ссылок на неизвестных персонажей.
func (v *View) Apply(pkt protocol.ServerPacket) bool {
	switch p := pkt.(type) {
	case *protocol.CharacterCreate:
		v.entities[p.EntityID] = &Remote{
			ID:   p.EntityID,
			Name: p.Name,
			Body: NewBody(p.Position, p.Heading),
		}
		return true
	case *protocol.CharacterRemove:
		if _, ok := v.entities[p.EntityID]; !ok {
			return false
		}
		delete(v.entities, p.EntityID)
		return true
	case *protocol.CharacterMove:
		r, ok := v.entities[p.EntityID]
		if !ok {
			return false
		}
		if len(r.Body.Waypoints) >= maxRemoteBacklog {
			r.Body.Snap(p.Position)
			return true
		}
		if r.Body.Tip() != p.Position {
			r.Body.MoveTo(p.Position)
		}
		return true
	case *protocol.CharacterHeading:
		r, ok := v.entities[p.EntityID]
		if !ok {
			return false
		}
		r.Body.Heading = p.Direction
		return true
	}
	return false
}

// Get возвращает персонажа по ID
func (v *View) Get(id world.EntityID) (*Remote, bool) {
	r, ok := v.entities[id]
	return r, ok
}

// Len возвращает число видимых персонажей
func (v *View) Len() int {
	return len(v.entities)
}

// IDs возвращает отсортированные ID видимых персонажей
func (v *View) IDs() []world.EntityID {
	ids := make([]world.EntityID, 0, len(v.entities))
	for id := range v.entities {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Update продвигает интерполяцию всех чужих тел
func (v *View) Update(dt, step time.Duration) {
	for _, r := range v.entities {
		r.Body.Update(dt, step)
	}
}

// Clear забывает всех (смена карты, повторный вход)
func (v *View) Clear() {
	clear(v.entities)
}
