package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dgraph-io/badger/v3"
	"github.com/klauspost/compress/zstd"

	"github.com/annel0/tile-movement/internal/world"
)

// mapKeyPrefix ключи карт: "map:" + u16 BE (сортируются по ID)
const mapKeyPrefix = "map:"

// MapStore хранит тайловые карты в BadgerDB в сжатом zstd виде.
// Формат значения до сжатия: width u16, height u16, name (u16 len + bytes),
// затем маска блокировок по биту на тайл (row-major, LSB first).
type MapStore struct {
	db      *badger.DB
	encoder *zstd.Encoder
	decoder *zstd.Decoder

	mu      sync.RWMutex
	isReady bool
}

// NewMapStore открывает хранилище карт в каталоге path
func NewMapStore(path string) (*MapStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // Отключаем логирование BadgerDB
	return openMapStore(opts)
}

// NewInMemoryMapStore создаёт хранилище без диска (тесты, генерация)
func NewInMemoryMapStore() (*MapStore, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	return openMapStore(opts)
}

func openMapStore(opts badger.Options) (*MapStore, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		db.Close()
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return &MapStore{db: db, encoder: enc, decoder: dec, isReady: true}, nil
}

func mapKey(id uint16) []byte {
	key := make([]byte, len(mapKeyPrefix)+2)
	copy(key, mapKeyPrefix)
	binary.BigEndian.PutUint16(key[len(mapKeyPrefix):], id)
	return key
}

// SaveMap сохраняет (или заменяет) карту
func (s *MapStore) SaveMap(m *world.TileMap) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.isReady {
		return errors.New("хранилище карт закрыто")
	}

	raw := encodeTileMap(m)
	value := s.encoder.EncodeAll(raw, make([]byte, 0, len(raw)/4))
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(mapKey(m.ID), value)
	})
	if err != nil {
		return fmt.Errorf("не удалось сохранить карту %d: %w", m.ID, err)
	}
	return nil
}

// LoadMap загружает карту по ID (ErrNotFound, если её нет)
func (s *MapStore) LoadMap(id uint16) (*world.TileMap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.isReady {
		return nil, errors.New("хранилище карт закрыто")
	}

	var m *world.TileMap
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(mapKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("map %d: %w", id, ErrNotFound)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			m, err = s.decodeValue(id, val)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (s *MapStore) decodeValue(id uint16, val []byte) (*world.TileMap, error) {
	raw, err := s.decoder.DecodeAll(val, nil)
	if err != nil {
		return nil, fmt.Errorf("map %d: распаковка: %w", id, err)
	}
	return decodeTileMap(id, raw)
}

// ListMaps возвращает ID всех сохранённых карт по возрастанию
func (s *MapStore) ListMaps() ([]uint16, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []uint16
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(mapKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().Key()
			if len(key) != len(mapKeyPrefix)+2 {
				continue
			}
			ids = append(ids, binary.BigEndian.Uint16(key[len(mapKeyPrefix):]))
		}
		return nil
	})
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, err
}

// DeleteMap удаляет карту
func (s *MapStore) DeleteMap(id uint16) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(mapKey(id))
	})
}

// LoadAll загружает все карты в MapSet
func (s *MapStore) LoadAll() (*world.MapSet, error) {
	ids, err := s.ListMaps()
	if err != nil {
		return nil, err
	}
	set := world.NewMapSet()
	for _, id := range ids {
		m, err := s.LoadMap(id)
		if err != nil {
			return nil, err
		}
		set.Put(m)
	}
	return set, nil
}

// Close закрывает хранилище
func (s *MapStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isReady {
		return nil
	}
	s.isReady = false
	s.encoder.Close()
	s.decoder.Close()
	return s.db.Close()
}

func encodeTileMap(m *world.TileMap) []byte {
	mask := m.BlockedMask()
	buf := make([]byte, 6, 6+len(m.Name)+(len(mask)+7)/8)
	binary.LittleEndian.PutUint16(buf[0:], m.Width)
	binary.LittleEndian.PutUint16(buf[2:], m.Height)
	binary.LittleEndian.PutUint16(buf[4:], uint16(len(m.Name)))
	buf = append(buf, m.Name...)

	bits := make([]byte, (len(mask)+7)/8)
	for i, blocked := range mask {
		if blocked {
			bits[i/8] |= 1 << (i % 8)
		}
	}
	return append(buf, bits...)
}

func decodeTileMap(id uint16, raw []byte) (*world.TileMap, error) {
	if len(raw) < 6 {
		return nil, fmt.Errorf("map %d: повреждённый заголовок", id)
	}
	width := binary.LittleEndian.Uint16(raw[0:])
	height := binary.LittleEndian.Uint16(raw[2:])
	nameLen := int(binary.LittleEndian.Uint16(raw[4:]))
	rest := raw[6:]
	tiles := int(width) * int(height)
	if len(rest) != nameLen+(tiles+7)/8 {
		return nil, fmt.Errorf("map %d: размер данных %d не соответствует %dx%d", id, len(rest), width, height)
	}

	name := string(rest[:nameLen])
	bits := rest[nameLen:]
	mask := make([]bool, tiles)
	for i := range mask {
		mask[i] = bits[i/8]&(1<<(i%8)) != 0
	}
	m, err := world.TileMapFromMask(id, width, height, mask)
	if err != nil {
		return nil, err
	}
	m.Name = name
	return m, nil
}
