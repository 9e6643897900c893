package world

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// TileMap прямоугольная карта с флагом блокировки на тайл
type TileMap struct {
	ID      uint16
	Name    string
	Width   uint16
	Height  uint16
	blocked []bool
}

// NewTileMap создаёт пустую (полностью проходимую) карту
func NewTileMap(id uint16, width, height uint16) *TileMap {
	return &TileMap{
		ID:      id,
		Width:   width,
		Height:  height,
		blocked: make([]bool, int(width)*int(height)),
	}
}

// Карта по умолчанию: её используют сервер без настроенных карт и клиент без -maps
const (
	DefaultMapID   uint16 = 1
	DefaultMapSize uint16 = 100
)

// DefaultMap возвращает пустую карту по умолчанию
func DefaultMap() *TileMap {
	return NewTileMap(DefaultMapID, DefaultMapSize, DefaultMapSize)
}

// InBounds проверяет, что координаты лежат внутри карты
func (m *TileMap) InBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < int(m.Width) && y < int(m.Height)
}

// Blocked возвращает true для заблокированных тайлов и координат вне карты
func (m *TileMap) Blocked(x, y int) bool {
	if !m.InBounds(x, y) {
		return true
	}
	return m.blocked[y*int(m.Width)+x]
}

// SetBlocked меняет флаг блокировки тайла; вне карты: no-op
func (m *TileMap) SetBlocked(x, y int, blocked bool) {
	if !m.InBounds(x, y) {
		return
	}
	m.blocked[y*int(m.Width)+x] = blocked
}

// BlockedMask возвращает копию маски блокировок (row-major)
func (m *TileMap) BlockedMask() []bool {
	out := make([]bool, len(m.blocked))
	copy(out, m.blocked)
	return out
}

// TileMapFromMask собирает карту из row-major маски
func TileMapFromMask(id, width, height uint16, mask []bool) (*TileMap, error) {
	if len(mask) != int(width)*int(height) {
		return nil, fmt.Errorf("карта %d: маска %d тайлов не соответствует размеру %dx%d", id, len(mask), width, height)
	}
	m := NewTileMap(id, width, height)
	copy(m.blocked, mask)
	return m, nil
}

// mapFile YAML-представление карты: строки из '.' (свободно) и '#' (блок)
type mapFile struct {
	ID   uint16   `yaml:"id"`
	Name string   `yaml:"name"`
	Rows []string `yaml:"rows"`
}

// ParseTileMapYAML разбирает карту из YAML
func ParseTileMapYAML(data []byte) (*TileMap, error) {
	var f mapFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("разбор карты: %w", err)
	}
	if len(f.Rows) == 0 {
		return nil, fmt.Errorf("карта %d: нет строк", f.ID)
	}

	width := len(f.Rows[0])
	if width == 0 || width > 0xFFFF || len(f.Rows) > 0xFFFF {
		return nil, fmt.Errorf("карта %d: недопустимый размер", f.ID)
	}

	m := NewTileMap(f.ID, uint16(width), uint16(len(f.Rows)))
	m.Name = f.Name
	for y, row := range f.Rows {
		if len(row) != width {
			return nil, fmt.Errorf("карта %d: строка %d длиной %d, ожидалось %d", f.ID, y, len(row), width)
		}
		for x, c := range row {
			switch c {
			case '.':
			case '#':
				m.SetBlocked(x, y, true)
			default:
				return nil, fmt.Errorf("карта %d: неизвестный символ %q в (%d,%d)", f.ID, c, x, y)
			}
		}
	}
	return m, nil
}

// EncodeYAML сериализует карту в формат ParseTileMapYAML
func (m *TileMap) EncodeYAML() ([]byte, error) {
	f := mapFile{ID: m.ID, Name: m.Name, Rows: make([]string, m.Height)}
	var sb strings.Builder
	for y := 0; y < int(m.Height); y++ {
		sb.Reset()
		for x := 0; x < int(m.Width); x++ {
			if m.Blocked(x, y) {
				sb.WriteByte('#')
			} else {
				sb.WriteByte('.')
			}
		}
		f.Rows[y] = sb.String()
	}
	return yaml.Marshal(&f)
}

// LoadTileMapFile читает карту из YAML файла
func LoadTileMapFile(path string) (*TileMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("чтение карты %s: %w", path, err)
	}
	return ParseTileMapYAML(data)
}
