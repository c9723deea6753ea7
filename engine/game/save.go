package game

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"

	"github.com/Carmen-Shannon/hexfab/common"
	"github.com/Carmen-Shannon/hexfab/engine/coord"
	"github.com/Carmen-Shannon/hexfab/engine/data"
	"github.com/Carmen-Shannon/hexfab/engine/id"
)

const (
	headerFile = "header.json"
	tilesFile  = "tiles.json"
)

// rawValue is the on-disk form of one data value, tagged by kind. Interned
// IDs are stored as their strings so handles can differ across runs.
type rawValue struct {
	Kind      string           `json:"kind"`
	Bool      bool             `json:"bool,omitempty"`
	Amount    int32            `json:"amount,omitempty"`
	Id        string           `json:"id,omitempty"`
	Coord     *[2]int32        `json:"coord,omitempty"`
	Inventory map[string]int64 `json:"inventory,omitempty"`
	Set       []string         `json:"set,omitempty"`
	// Tiles maps "q,r" keys to tile id strings.
	Tiles map[string]string `json:"tiles,omitempty"`
}

type rawDataMap map[string]rawValue

type mapHeader struct {
	Info MapInfo    `json:"info"`
	Data rawDataMap `json:"data"`
}

type rawTile struct {
	Coord [2]int32   `json:"coord"`
	Id    string     `json:"id"`
	Data  rawDataMap `json:"data"`
}

func dataMapToRaw(in *id.Interner, m data.DataMap) rawDataMap {
	raw := make(rawDataMap, len(m))
	for key, value := range m {
		name := in.Resolve(key)
		if name == "" {
			continue
		}
		switch v := value.(type) {
		case data.Bool:
			raw[name] = rawValue{Kind: "bool", Bool: bool(v)}
		case data.Amount:
			raw[name] = rawValue{Kind: "amount", Amount: int32(v)}
		case data.Id:
			raw[name] = rawValue{Kind: "id", Id: in.Resolve(id.Id(v))}
		case data.Coord:
			c := [2]int32{v.Q, v.R}
			raw[name] = rawValue{Kind: "coord", Coord: &c}
		case data.Inventory:
			inv := make(map[string]int64, len(v))
			for item, amount := range v {
				if s := in.Resolve(item); s != "" && amount != 0 {
					inv[s] = amount
				}
			}
			raw[name] = rawValue{Kind: "inventory", Inventory: inv}
		case data.SetId:
			set := make([]string, 0, len(v))
			for _, x := range v {
				if s := in.Resolve(x); s != "" {
					set = append(set, s)
				}
			}
			raw[name] = rawValue{Kind: "set", Set: set}
		case data.TileMap:
			tiles := make(map[string]string, len(v))
			for c, t := range v {
				if s := in.Resolve(t); s != "" {
					tiles[coord.TileCoord(c).MinimalString()] = s
				}
			}
			raw[name] = rawValue{Kind: "tiles", Tiles: tiles}
		}
	}
	return raw
}

func rawToDataMap(in *id.Interner, raw rawDataMap) data.DataMap {
	m := data.NewDataMap()
	for name, value := range raw {
		key := in.Intern(name)
		switch value.Kind {
		case "bool":
			m.Set(key, data.Bool(value.Bool))
		case "amount":
			m.Set(key, data.Amount(value.Amount))
		case "id":
			m.Set(key, data.Id(in.Intern(value.Id)))
		case "coord":
			if value.Coord != nil {
				m.Set(key, data.Coord(coord.New(value.Coord[0], value.Coord[1])))
			}
		case "inventory":
			inv := data.Inventory{}
			for item, amount := range value.Inventory {
				inv[in.Intern(item)] = amount
			}
			m.Set(key, inv)
		case "set":
			set := data.SetId{}
			for _, s := range value.Set {
				set = set.Insert(in.Intern(s))
			}
			m.Set(key, set)
		case "tiles":
			tiles := data.TileMap{}
			for cs, ts := range value.Tiles {
				c, err := parseCoordKey(cs)
				if err != nil {
					continue
				}
				tiles[c] = in.Intern(ts)
			}
			m.Set(key, tiles)
		}
	}
	return m
}

func parseCoordKey(s string) (coord.TileCoord, error) {
	q, r, ok := strings.Cut(s, ",")
	if !ok {
		return coord.TileCoord{}, fmt.Errorf("bad coord key %q", s)
	}
	qv, err := strconv.ParseInt(q, 10, 32)
	if err != nil {
		return coord.TileCoord{}, err
	}
	rv, err := strconv.ParseInt(r, 10, 32)
	if err != nil {
		return coord.TileCoord{}, err
	}
	return coord.New(int32(qv), int32(rv)), nil
}

func (g *GameSystem) mapDir(name string) string {
	return filepath.Join(g.saveDir, name)
}

// saveMap writes the loaded map's header and tiles files, snapshotting
// each tile's data through its actor.
func (g *GameSystem) saveMap() {
	m := g.gameMap
	dir := g.mapDir(SanitizeMapName(m.Name))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		common.Logger().Error("could not create map directory", "dir", dir, "err", err)
		return
	}

	coords := make([]coord.TileCoord, 0, len(m.Tiles))
	for c := range m.Tiles {
		coords = append(coords, c)
	}
	slices.SortFunc(coords, coord.TileCoord.Compare)

	tiles := make([]rawTile, 0, len(coords))
	for _, c := range coords {
		entry := m.Tiles[c]
		name := g.reg.Interner.Resolve(id.Id(entry.Id))
		if name == "" {
			continue
		}

		tileData, ok := askTile(g, entry.PID, func(ch chan<- data.DataMap) TileMsg {
			return TileGetData{Reply: ch}
		})
		if !ok {
			continue
		}

		tiles = append(tiles, rawTile{
			Coord: [2]int32{c.Q, c.R},
			Id:    name,
			Data:  dataMapToRaw(g.reg.Interner, tileData),
		})
	}

	m.Info.TileCount = uint64(len(tiles))
	m.Info.SaveTime = time.Now().UTC().Unix()

	header := mapHeader{
		Info: m.Info,
		Data: dataMapToRaw(g.reg.Interner, m.MapData),
	}

	if err := writeJSON(filepath.Join(dir, headerFile), header); err != nil {
		common.Logger().Error("could not save map header", "map", m.Name, "err", err)
		return
	}
	if err := writeJSON(filepath.Join(dir, tilesFile), tiles); err != nil {
		common.Logger().Error("could not save map tiles", "map", m.Name, "err", err)
		return
	}

	common.Logger().Info("saved map", "map", m.Name, "tiles", len(tiles))
}

func writeJSON(path string, v any) error {
	buf, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return os.WriteFile(path, buf, 0o644)
}

func (g *GameSystem) handleLoadMap(m LoadMap) {
	last := g.lastCullingBounds
	g.lastCullingBounds = coord.EmptyBounds()

	if g.gameMap != nil {
		commands := g.collectRenderCommands(
			func(coord.TileCoord) bool { return false },
			func(c coord.TileCoord) bool { return last.Contains(c) },
		)
		g.fillMapWithNone(coord.EmptyBounds(), last, commands)
		g.cleanupRenderCommands = commands

		for _, entry := range g.gameMap.Tiles {
			g.engine.Stop(entry.PID)
		}
		g.gameMap = nil
	}
	g.undoSteps.Clear()

	name := SanitizeMapName(m.Name)
	loaded, abort := g.loadMapFromDisk(name)
	if abort {
		g.phase = phaseUnloaded
		replySafe(m.Reply, false)
		return
	}

	g.gameMap = loaded
	g.phase = phaseRunning
	common.Logger().Info("successfully loaded map", "map", name, "tiles", len(loaded.Tiles))
	replySafe(m.Reply, true)
}

// loadMapFromDisk reads a map, spawning its tile entities. Missing files
// yield a fresh empty map; unparsable files abort the load. The per-tile
// data conversion is fanned out over a worker pool before the entities are
// seeded with bulk SetData sends.
func (g *GameSystem) loadMapFromDisk(name string) (*GameMap, bool) {
	dir := g.mapDir(name)

	headerBuf, err := os.ReadFile(filepath.Join(dir, headerFile))
	if errors.Is(err, fs.ErrNotExist) {
		return NewEmptyMap(name), false
	}
	if err != nil {
		common.Logger().Error("could not read map header", "map", name, "err", err)
		return nil, true
	}

	var header mapHeader
	if err := json.Unmarshal(headerBuf, &header); err != nil {
		common.Logger().Error("invalid map header", "map", name, "err", err)
		g.reg.Errors.Push(g.reg.ErrIds.InvalidMapData, name)
		return nil, true
	}

	var rawTiles []rawTile
	tilesBuf, err := os.ReadFile(filepath.Join(dir, tilesFile))
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		common.Logger().Error("could not read map tiles", "map", name, "err", err)
		return nil, true
	default:
		if err := json.Unmarshal(tilesBuf, &rawTiles); err != nil {
			common.Logger().Error("invalid map tiles", "map", name, "err", err)
			g.reg.Errors.Push(g.reg.ErrIds.InvalidMapData, name)
			return nil, true
		}
	}

	m := &GameMap{
		Name:    name,
		Info:    header.Info,
		Tiles:   make(TileMap, len(rawTiles)),
		MapData: rawToDataMap(g.reg.Interner, header.Data),
	}

	// Tile data conversion is independent per tile; fan it out, then seed
	// the entities in order so no mutator can interleave.
	converted := make([]data.DataMap, len(rawTiles))
	if len(rawTiles) > 0 {
		pool := worker.NewDynamicWorkerPool(max(runtime.NumCPU()-1, 1), 256, 1*time.Second)

		var wg sync.WaitGroup
		for i := range rawTiles {
			wg.Add(1)
			idx := i
			pool.SubmitTask(worker.Task{
				ID: idx,
				Do: func() (any, error) {
					defer wg.Done()
					converted[idx] = rawToDataMap(g.reg.Interner, rawTiles[idx].Data)
					return nil, nil
				},
			})
		}
		wg.Wait()
	}

	for i, rt := range rawTiles {
		tileId, ok := g.reg.Interner.Get(rt.Id)
		if !ok {
			common.Logger().Warn("skipping unknown tile", "id", rt.Id)
			continue
		}
		if _, known := g.reg.Tiles[id.TileId(tileId)]; !known {
			common.Logger().Warn("skipping undefined tile", "id", rt.Id)
			continue
		}

		c := coord.New(rt.Coord[0], rt.Coord[1])
		entry := g.spawnTile(c, id.TileId(tileId))
		g.engine.Send(entry.PID, TileSetData{Data: converted[i]}, g.selfPID)
		m.Tiles[c] = entry
	}

	return m, false
}
