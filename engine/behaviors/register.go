package behaviors

import (
	"math"

	"github.com/Carmen-Shannon/hexfab/engine/data"
	"github.com/Carmen-Shannon/hexfab/engine/id"
	"github.com/Carmen-Shannon/hexfab/engine/model"
	"github.com/Carmen-Shannon/hexfab/engine/registry"
)

// Register installs the built-in items, categories, tiles and their models
// into the registry and mesh catalog, returning the assigned identifiers.
// The reserved none/missing models are registered here too, so Register
// must run before the first frame.
func Register(reg *registry.Registry, modelMan model.Manager) (Ids, error) {
	in := reg.Interner

	ids := Ids{
		Ore:  in.Intern("hexfab:item/ore"),
		Bar:  in.Intern("hexfab:item/bar"),
		Gear: in.Intern("hexfab:item/gear"),

		Machines: in.Intern("hexfab:category/machines"),

		Producer:  id.TileId(in.Intern("hexfab:tile/producer")),
		Conveyor:  id.TileId(in.Intern("hexfab:tile/conveyor")),
		Storage:   id.TileId(in.Intern("hexfab:tile/storage")),
		Extractor: id.TileId(in.Intern("hexfab:tile/extractor")),
		Void:      id.TileId(in.Intern("hexfab:tile/void")),

		ProducerModel:  id.ModelId(in.Intern("hexfab:model/producer")),
		ConveyorModel:  id.ModelId(in.Intern("hexfab:model/conveyor")),
		StorageModel:   id.ModelId(in.Intern("hexfab:model/storage")),
		ExtractorModel: id.ModelId(in.Intern("hexfab:model/extractor")),
		VoidModel:      id.ModelId(in.Intern("hexfab:model/void")),
		ItemModel:      id.ModelId(in.Intern("hexfab:model/item")),

		DefaultRenderTag: id.RenderId(in.Intern("hexfab:render/default")),
	}

	// Reserved models first: the background tile and the missing-asset
	// fallback.
	if _, err := modelMan.RegisterModel(reg.ModelIds.TileNone, []model.MeshDef{
		hexMesh(0.92, 0.02, [4]float32{0.18, 0.18, 0.2, 1}, true),
	}); err != nil {
		return ids, err
	}
	if _, err := modelMan.RegisterModel(reg.ModelIds.TileMissing, []model.MeshDef{
		hexMesh(0.95, 0.1, [4]float32{0.9, 0.1, 0.9, 1}, true),
	}); err != nil {
		return ids, err
	}

	type tileModel struct {
		modelId id.ModelId
		meshes  []model.MeshDef
	}
	for _, tm := range []tileModel{
		{ids.ProducerModel, []model.MeshDef{hexMesh(0.95, 0.25, [4]float32{0.55, 0.35, 0.2, 1}, true)}},
		{ids.ConveyorModel, []model.MeshDef{hexMesh(0.95, 0.12, [4]float32{0.4, 0.4, 0.45, 1}, true)}},
		{ids.StorageModel, []model.MeshDef{
			hexMesh(0.95, 0.3, [4]float32{0.25, 0.45, 0.3, 1}, true),
			hexMesh(0.6, 0.34, [4]float32{0.5, 0.9, 0.6, 0.5}, false),
		}},
		{ids.ExtractorModel, []model.MeshDef{hexMesh(0.95, 0.2, [4]float32{0.3, 0.35, 0.6, 1}, true)}},
		{ids.VoidModel, []model.MeshDef{hexMesh(0.95, 0.18, [4]float32{0.1, 0.1, 0.1, 1}, true)}},
		{ids.ItemModel, []model.MeshDef{hexMesh(0.25, 0.25, [4]float32{0.85, 0.75, 0.3, 1}, true)}},
	} {
		if _, err := modelMan.RegisterModel(tm.modelId, tm.meshes); err != nil {
			return ids, err
		}
	}

	reg.Items[ids.Ore] = registry.ItemDef{Model: ids.ItemModel}
	reg.Items[ids.Bar] = registry.ItemDef{Model: ids.ItemModel}
	reg.Items[ids.Gear] = registry.ItemDef{Model: ids.ItemModel}

	reg.Categories[ids.Machines] = registry.CategoryDef{Item: ids.Gear, Ord: 0}

	tileDef := func(modelId id.ModelId, fn *registry.TileFunction, defaultTile bool) registry.TileDef {
		d := data.NewDataMap()
		if defaultTile {
			d.Set(reg.DataIds.DefaultTile, data.Bool(true))
		}
		if fn != nil && fn.RenderCommands == nil {
			fn.RenderCommands = trackSelf(modelId, ids.DefaultRenderTag)
		}
		return registry.TileDef{
			Category: ids.Machines,
			Data:     d,
			Function: fn,
		}
	}

	reg.Tiles[ids.Producer] = tileDef(ids.ProducerModel, producerFunction(reg, id.Id(ids.Producer)), false)
	reg.Tiles[ids.Conveyor] = tileDef(ids.ConveyorModel, conveyorFunction(reg, id.Id(ids.Conveyor)), true)
	reg.Tiles[ids.Storage] = tileDef(ids.StorageModel, storageFunction(reg, id.Id(ids.Storage)), false)
	reg.Tiles[ids.Extractor] = tileDef(ids.ExtractorModel, extractorFunction(reg, id.Id(ids.Extractor)), false)
	reg.Tiles[ids.Void] = tileDef(ids.VoidModel, voidFunction(id.Id(ids.Void)), true)

	return ids, nil
}

// hexMesh builds a flat hexagonal prism top: a center-fan cap at the given
// height, radius-scaled, vertex-colored.
func hexMesh(radius, height float32, color [4]float32, opaque bool) model.MeshDef {
	vertices := make([]model.GPUVertex, 0, 7)
	vertices = append(vertices, model.GPUVertex{
		Position: [3]float32{0, 0, height},
		Normal:   [3]float32{0, 0, 1},
		TexCoord: [2]float32{0.5, 0.5},
		Color:    color,
	})

	for i := 0; i < 6; i++ {
		angle := float64(i) * math.Pi / 3
		x := radius * float32(math.Cos(angle))
		y := radius * float32(math.Sin(angle))
		vertices = append(vertices, model.GPUVertex{
			Position: [3]float32{x, y, height},
			Normal:   [3]float32{0, 0, 1},
			TexCoord: [2]float32{0.5 + x/2, 0.5 + y/2},
			Color:    color,
		})
	}

	indices := make([]uint32, 0, 18)
	for i := uint32(0); i < 6; i++ {
		next := i%6 + 1
		indices = append(indices, 0, i+1, next+1)
	}
	// The last triangle wraps back to the first rim vertex.
	indices[len(indices)-1] = 1

	return model.MeshDef{
		Vertices: vertices,
		Indices:  indices,
		Opaque:   opaque,
	}
}
