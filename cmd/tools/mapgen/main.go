package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/annel0/tile-movement/internal/storage"
	"github.com/annel0/tile-movement/internal/world"
)

func main() {
	var (
		id        = flag.Uint("id", 1, "Map ID")
		name      = flag.String("name", "", "Map name")
		width     = flag.Uint("width", 100, "Map width in tiles")
		height    = flag.Uint("height", 100, "Map height in tiles")
		seed      = flag.Int64("seed", time.Now().UnixNano(), "Noise seed")
		scale     = flag.Float64("scale", 0.1, "Noise sample step per tile")
		threshold = flag.Float64("threshold", 0.68, "Noise threshold for blocked tiles (0..1)")
		walls     = flag.Bool("walls", true, "Surround the map with walls")
		spawnX    = flag.Uint("spawn-x", 50, "Spawn X kept walkable")
		spawnY    = flag.Uint("spawn-y", 50, "Spawn Y kept walkable")
		outDir    = flag.String("out", "", "Directory for the YAML file")
		badger    = flag.String("badger", "", "Badger map store path")
	)
	flag.Parse()

	if *outDir == "" && *badger == "" {
		log.Fatal("❌ Specify -out and/or -badger")
	}
	if *id > 0xFFFF || *width > 0xFFFF || *height > 0xFFFF {
		log.Fatal("❌ id, width and height must fit into uint16")
	}

	opts := world.GenOptions{
		Seed:      *seed,
		Scale:     *scale,
		Threshold: *threshold,
		Walls:     *walls,
		Clear:     []world.Position{{Map: uint16(*id), X: uint16(*spawnX), Y: uint16(*spawnY)}},
	}
	m, err := world.GenerateTileMap(uint16(*id), uint16(*width), uint16(*height), opts)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	m.Name = *name

	if *outDir != "" {
		data, err := m.EncodeYAML()
		if err != nil {
			log.Fatalf("❌ encode: %v", err)
		}
		if err := os.MkdirAll(*outDir, 0o755); err != nil {
			log.Fatalf("❌ %v", err)
		}
		path := filepath.Join(*outDir, fmt.Sprintf("map_%d.yaml", m.ID))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			log.Fatalf("❌ write %s: %v", path, err)
		}
		fmt.Printf("✅ Map %d written to %s\n", m.ID, path)
	}

	if *badger != "" {
		store, err := storage.NewMapStore(*badger)
		if err != nil {
			log.Fatalf("❌ open map store: %v", err)
		}
		defer store.Close()
		if err := store.SaveMap(m); err != nil {
			log.Fatalf("❌ save map: %v", err)
		}
		fmt.Printf("✅ Map %d saved to %s\n", m.ID, *badger)
	}

	blocked := 0
	for _, b := range m.BlockedMask() {
		if b {
			blocked++
		}
	}
	fmt.Printf("   %dx%d, seed %d, %d blocked tiles\n", m.Width, m.Height, *seed, blocked)
}
