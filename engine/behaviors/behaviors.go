// Package behaviors provides the built-in tile handler tables: a compiled
// stand-in for the data-driven tile scripts. Each behavior implements the
// handler contract against a tile's data map and emits directives the
// actor runtime dispatches.
package behaviors

import (
	"github.com/Carmen-Shannon/hexfab/engine/coord"
	"github.com/Carmen-Shannon/hexfab/engine/data"
	"github.com/Carmen-Shannon/hexfab/engine/id"
	"github.com/Carmen-Shannon/hexfab/engine/registry"
)

// Ids collects the identifiers the built-in content registers.
type Ids struct {
	// Items
	Ore  id.Id
	Bar  id.Id
	Gear id.Id

	// Categories
	Machines id.Id

	// Tiles
	Producer  id.TileId
	Conveyor  id.TileId
	Storage   id.TileId
	Extractor id.TileId
	Void      id.TileId

	// Models
	ProducerModel  id.ModelId
	ConveyorModel  id.ModelId
	StorageModel   id.ModelId
	ExtractorModel id.ModelId
	VoidModel      id.ModelId
	ItemModel      id.ModelId

	// DefaultRenderTag tags the single tracked model of a built-in tile.
	DefaultRenderTag id.RenderId
}

// trackSelf is the shared render-command handler: track the tile's model
// when it becomes visible, untrack it when it leaves.
func trackSelf(modelId id.ModelId, renderTag id.RenderId) func(*registry.TileState, registry.RenderArgs) []registry.RenderCommand {
	return func(_ *registry.TileState, args registry.RenderArgs) []registry.RenderCommand {
		switch {
		case args.Unloading:
			return []registry.RenderCommand{
				registry.Untrack{RenderId: renderTag, ModelId: modelId},
			}
		case args.Loading:
			return []registry.RenderCommand{
				registry.Track{RenderId: renderTag, ModelId: modelId},
				registry.Transform{
					RenderId:    renderTag,
					ModelId:     modelId,
					ModelMatrix: args.Coord.AsTranslation(),
				},
			}
		}
		return nil
	}
}

// direction reads a tile's output direction, defaulting to the right
// neighbor.
func direction(reg *registry.Registry, st *registry.TileState) coord.TileCoord {
	if v, ok := st.Data.Get(reg.DataIds.Direction).(data.Coord); ok {
		return coord.TileCoord(v)
	}
	return coord.Right
}

// producerFunction emits one configured item toward the tile's direction
// every interval ticks, gated by a counter in the tile scope.
func producerFunction(reg *registry.Registry, fnId id.Id) *registry.TileFunction {
	counter := reg.Interner.Intern("hexfab:scope/producer_counter")

	scope := data.NewDataMap()
	scope.Set(counter, data.Amount(0))

	return &registry.TileFunction{
		Id:           fnId,
		DefaultScope: scope,

		HandleTick: func(st *registry.TileState, args registry.TickArgs) registry.TileResult {
			item := st.Data.IdOrZero(reg.DataIds.Item)
			if item == 0 {
				return nil
			}

			interval := st.Data.AmountOrDefault(reg.DataIds.Capacity, 30)
			count := int32(st.Scope.AmountOrDefault(counter, 0)) + 1
			if count < interval {
				st.Scope.Set(counter, data.Amount(count))
				return nil
			}
			st.Scope.Set(counter, data.Amount(0))

			return registry.MakeTransaction{
				Coord:       args.Coord.Add(direction(reg, st)),
				SourceId:    args.Id,
				SourceCoord: args.Coord,
				Stacks:      []data.ItemStack{{Id: item, Amount: 1}},
			}
		},

		HandleTransactionResult: func(st *registry.TileState, args registry.TransactionResultArgs) {
			st.Data.InventoryMut(reg.DataIds.Buffer).Add(args.Transferred.Id, 0)
		},
	}
}

// conveyorFunction passes every incoming stack on toward the tile's
// direction, becoming the new source.
func conveyorFunction(reg *registry.Registry, fnId id.Id) *registry.TileFunction {
	return &registry.TileFunction{
		Id: fnId,

		HandleTransaction: func(st *registry.TileState, args registry.TransactionArgs) registry.TileTransactionResult {
			target := args.Coord.Add(direction(reg, st))
			if target == args.SourceCoord {
				// Refuse to bounce the stack straight back.
				return nil
			}
			return registry.PassOn{
				Coord:       target,
				Stack:       args.Stack,
				SourceCoord: args.SourceCoord,
				RootCoord:   args.RootCoord,
				RootId:      args.RootId,
			}
		},
	}
}

// storageFunction consumes incoming stacks into the tile inventory up to
// its capacity, answers extract requests from it, and describes a small
// config panel.
func storageFunction(reg *registry.Registry, fnId id.Id) *registry.TileFunction {
	return &registry.TileFunction{
		Id: fnId,

		HandleTransaction: func(st *registry.TileState, args registry.TransactionArgs) registry.TileTransactionResult {
			capacity := data.ItemAmount(st.Data.AmountOrDefault(reg.DataIds.Capacity, 64))
			inv := st.Data.InventoryMut(reg.DataIds.Buffer)
			if inv.Get(args.Stack.Id) >= capacity {
				return nil
			}

			inv.Add(args.Stack.Id, args.Stack.Amount)
			return registry.Consume{
				Consumed:    args.Stack,
				SourceCoord: args.SourceCoord,
				RootCoord:   args.RootCoord,
			}
		},

		HandleExtractRequest: func(st *registry.TileState, args registry.ExtractRequestArgs) registry.TileResult {
			inv := st.Data.InventoryMut(reg.DataIds.Buffer)
			for item := range inv {
				if inv.Take(item, 1) == 1 {
					return registry.MakeTransaction{
						Coord:       args.RequestedFromCoord,
						SourceId:    args.Id,
						SourceCoord: args.Coord,
						Stacks:      []data.ItemStack{{Id: item, Amount: 1}},
					}
				}
			}
			return nil
		},

		TileConfig: func(st *registry.TileState, _ registry.ConfigArgs) *registry.UiUnit {
			capacity := int64(st.Data.AmountOrDefault(reg.DataIds.Capacity, 64))
			root := &registry.UiUnit{
				Kind: registry.UiColumn,
				Key:  reg.GuiIds.TileConfig,
				Children: []registry.UiUnit{
					{Kind: registry.UiLabel, Text: "storage"},
					{Kind: registry.UiAmountSlider, Key: reg.DataIds.Capacity, Value: capacity, Max: 256},
				},
			}
			inv := st.Data.InventoryMut(reg.DataIds.Buffer)
			for item, amount := range inv {
				if amount == 0 {
					continue
				}
				root.Children = append(root.Children, registry.UiUnit{
					Kind:  registry.UiInventorySlot,
					Key:   item,
					Value: amount,
				})
			}
			return root
		},
	}
}

// extractorFunction periodically asks the tile behind it to push items
// forward, removing its link when the source tile disappears.
func extractorFunction(reg *registry.Registry, fnId id.Id) *registry.TileFunction {
	return &registry.TileFunction{
		Id: fnId,

		HandleTick: func(st *registry.TileState, args registry.TickArgs) registry.TileResult {
			// Only poll a few times a second; the random argument spreads
			// extractors across ticks.
			if args.Random%8 != 0 {
				return nil
			}
			from := args.Coord.Add(direction(reg, st).Neg())
			return registry.MakeExtractRequest{
				Coord:              from,
				RequestedFromId:    args.Id,
				RequestedFromCoord: args.Coord,
				OnFail:             registry.OnFailAction{Kind: registry.OnFailRemoveData, Key: reg.DataIds.Link},
			}
		},

		HandleTransaction: func(st *registry.TileState, args registry.TransactionArgs) registry.TileTransactionResult {
			target := args.Coord.Add(direction(reg, st))
			return registry.PassOn{
				Coord:       target,
				Stack:       args.Stack,
				SourceCoord: args.SourceCoord,
				RootCoord:   args.RootCoord,
				RootId:      args.RootId,
			}
		},
	}
}

// voidFunction consumes and destroys everything sent to it.
func voidFunction(fnId id.Id) *registry.TileFunction {
	return &registry.TileFunction{
		Id: fnId,

		HandleTransaction: func(_ *registry.TileState, args registry.TransactionArgs) registry.TileTransactionResult {
			return registry.Consume{
				Consumed:    args.Stack,
				SourceCoord: args.SourceCoord,
				RootCoord:   args.RootCoord,
			}
		},
	}
}
