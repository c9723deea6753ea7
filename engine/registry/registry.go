// Package registry holds the typed catalogs of every named asset: tile
// definitions, categories, items, tile handler functions, and the reserved
// well-known IDs populated at startup. The registry is read-only after
// startup and shared freely between the simulation and the renderer.
package registry

import (
	"github.com/Carmen-Shannon/hexfab/engine/data"
	"github.com/Carmen-Shannon/hexfab/engine/id"
)

// TileDef describes one placeable tile kind.
type TileDef struct {
	// Category the tile belongs to, or 0. Placing a categorized tile costs
	// one of the category's item unless the definition data marks it as a
	// default tile.
	Category id.Id
	// Data is the definition-level data (such as the default_tile flag). It
	// is read from the definition and is not copied into a placed tile's
	// state.
	Data data.DataMap
	// Function is the handler table driving the tile, or nil for inert
	// tiles.
	Function *TileFunction
}

// CategoryDef groups tiles in build menus and binds the item a placement
// costs.
type CategoryDef struct {
	// Item charged from the player inventory per placement, or 0 for free
	// categories.
	Item id.Id
	// Ord is the menu ordering key.
	Ord int32
}

// ItemDef describes one item kind.
type ItemDef struct {
	// Model drawn for in-world item animations.
	Model id.ModelId
}

// DataIds are the reserved data-map keys.
type DataIds struct {
	PlayerInventory         id.Id
	Direction               id.Id
	Link                    id.Id
	Script                  id.Id
	Capacity                id.Id
	Item                    id.Id
	Buffer                  id.Id
	DefaultTile             id.Id
	UnlockedResearches      id.Id
	ResearchItemsFilled     id.Id
	ResearchPuzzleCompleted id.Id
	Tiles                   id.Id
	NoneTileRenderTag       id.Id
}

// ModelIds are the reserved model handles.
type ModelIds struct {
	// TileNone is the skeleton background tile drawn at culled-in
	// coordinates without a real tile.
	TileNone id.ModelId
	// TileMissing is the fallback model substituted for missing assets.
	TileMissing id.ModelId
}

// ErrIds are the user-visible error message keys.
type ErrIds struct {
	InvalidMapData   id.Id
	UnknownTile      id.Id
	DuplicateMeshRef id.Id
}

// GuiIds are the reserved GUI tree keys handed to the config-UI layer.
type GuiIds struct {
	TileConfig     id.Id
	TileInventory  id.Id
	PlayerMenu     id.Id
	ResearchPuzzle id.Id
}

// Registry is the process-wide asset catalog.
type Registry struct {
	Interner *id.Interner

	Tiles      map[id.TileId]TileDef
	Categories map[id.Id]CategoryDef
	Items      map[id.Id]ItemDef

	// None is the sentinel tile id; placing it removes. Never stored in
	// the tile map.
	None id.TileId
	// Any is the wildcard id used by item filters.
	Any id.Id

	DataIds  DataIds
	ModelIds ModelIds
	ErrIds   ErrIds
	GuiIds   GuiIds

	// Errors queues user-visible error records for the GUI.
	Errors ErrorManager
}

// New creates a registry with the reserved IDs interned and empty catalogs.
func New() *Registry {
	in := id.NewInterner()

	r := &Registry{
		Interner:   in,
		Tiles:      make(map[id.TileId]TileDef),
		Categories: make(map[id.Id]CategoryDef),
		Items:      make(map[id.Id]ItemDef),

		None: id.TileId(in.Intern("hexfab:none")),
		Any:  in.Intern("hexfab:#any"),

		DataIds: DataIds{
			PlayerInventory:         in.Intern("hexfab:data/player_inventory"),
			Direction:               in.Intern("hexfab:data/direction"),
			Link:                    in.Intern("hexfab:data/link"),
			Script:                  in.Intern("hexfab:data/script"),
			Capacity:                in.Intern("hexfab:data/capacity"),
			Item:                    in.Intern("hexfab:data/item"),
			Buffer:                  in.Intern("hexfab:data/buffer"),
			DefaultTile:             in.Intern("hexfab:data/default_tile"),
			UnlockedResearches:      in.Intern("hexfab:data/unlocked_researches"),
			ResearchItemsFilled:     in.Intern("hexfab:data/research_items_filled"),
			ResearchPuzzleCompleted: in.Intern("hexfab:data/research_puzzle_completed"),
			Tiles:                   in.Intern("hexfab:data/tiles"),
			NoneTileRenderTag:       in.Intern("hexfab:render/none_tile"),
		},
		ModelIds: ModelIds{
			TileNone:    id.ModelId(in.Intern("hexfab:model/tile_none")),
			TileMissing: id.ModelId(in.Intern("hexfab:model/tile_missing")),
		},
		ErrIds: ErrIds{
			InvalidMapData:   in.Intern("hexfab:error/invalid_map_data"),
			UnknownTile:      in.Intern("hexfab:error/unknown_tile"),
			DuplicateMeshRef: in.Intern("hexfab:error/duplicate_mesh_ref"),
		},
		GuiIds: GuiIds{
			TileConfig:     in.Intern("hexfab:gui/tile_config"),
			TileInventory:  in.Intern("hexfab:gui/tile_inventory"),
			PlayerMenu:     in.Intern("hexfab:gui/player_menu"),
			ResearchPuzzle: in.Intern("hexfab:gui/research_puzzle"),
		},
	}

	// The none tile is always defined: inert, uncategorized.
	r.Tiles[r.None] = TileDef{}

	return r
}

// TileDef returns the definition for a tile id. Misses are reported, not
// fatal: callers fall back to the missing-asset model.
func (r *Registry) TileDef(t id.TileId) (TileDef, bool) {
	def, ok := r.Tiles[t]
	return def, ok
}

// CategoryItem returns the item charged per placement of the given tile,
// or 0 when the tile is uncategorized, the category is free, or the tile
// definition marks itself as a default tile.
func (r *Registry) CategoryItem(t id.TileId) id.Id {
	def, ok := r.Tiles[t]
	if !ok || def.Category == 0 {
		return 0
	}
	if def.Data.BoolOrDefault(r.DataIds.DefaultTile, false) {
		return 0
	}
	cat, ok := r.Categories[def.Category]
	if !ok {
		return 0
	}
	return cat.Item
}

// Function returns the handler table for a tile id, or nil.
func (r *Registry) Function(t id.TileId) *TileFunction {
	def, ok := r.Tiles[t]
	if !ok {
		return nil
	}
	return def.Function
}
