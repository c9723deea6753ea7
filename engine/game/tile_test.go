package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/hexfab/engine/coord"
	"github.com/Carmen-Shannon/hexfab/engine/data"
	"github.com/Carmen-Shannon/hexfab/engine/id"
	"github.com/Carmen-Shannon/hexfab/engine/registry"
)

// newBareTile builds a tile entity without an actor engine; handler
// invocation paths don't touch it.
func newBareTile(reg *registry.Registry, tileId id.TileId) *TileEntity {
	return &TileEntity{
		reg:   reg,
		id:    tileId,
		coord: coord.New(1, 1),
		state: registry.TileState{Data: data.NewDataMap(), Scope: data.NewDataMap()},
	}
}

func TestHandlerPanicRestoresState(t *testing.T) {
	reg := registry.New()
	key := reg.Interner.Intern("test:counter")

	tileId := id.TileId(reg.Interner.Intern("test:tile/explosive"))
	reg.Tiles[tileId] = registry.TileDef{
		Function: &registry.TileFunction{
			Id: id.Id(tileId),
			HandleTick: func(st *registry.TileState, _ registry.TickArgs) registry.TileResult {
				st.Data.Set(key, data.Amount(99))
				panic("script blew up")
			},
		},
	}

	e := newBareTile(reg, tileId)
	e.state.Data.Set(key, data.Amount(1))

	res := e.callTick(registry.TickArgs{Coord: e.coord, Id: e.id})

	assert.Nil(t, res)
	assert.Equal(t, data.Amount(1), e.state.Data.Get(key), "pre-call data must be restored")
}

func TestHandlerMutationsCommitOnSuccess(t *testing.T) {
	reg := registry.New()
	key := reg.Interner.Intern("test:counter")

	tileId := id.TileId(reg.Interner.Intern("test:tile/counter"))
	reg.Tiles[tileId] = registry.TileDef{
		Function: &registry.TileFunction{
			Id: id.Id(tileId),
			HandleTick: func(st *registry.TileState, _ registry.TickArgs) registry.TileResult {
				st.Data.Set(key, data.Amount(st.Data.AmountOrDefault(key, 0)+1))
				return nil
			},
		},
	}

	e := newBareTile(reg, tileId)
	e.callTick(registry.TickArgs{Coord: e.coord, Id: e.id})
	e.callTick(registry.TickArgs{Coord: e.coord, Id: e.id})

	assert.Equal(t, data.Amount(2), e.state.Data.Get(key))
}

func TestDefaultScopeClonedLazily(t *testing.T) {
	reg := registry.New()
	key := reg.Interner.Intern("test:scope_value")

	defaultScope := data.NewDataMap()
	defaultScope.Set(key, data.Amount(42))

	tileId := id.TileId(reg.Interner.Intern("test:tile/scoped"))
	var seen int32
	reg.Tiles[tileId] = registry.TileDef{
		Function: &registry.TileFunction{
			Id:           id.Id(tileId),
			DefaultScope: defaultScope,
			HandleTick: func(st *registry.TileState, _ registry.TickArgs) registry.TileResult {
				seen = st.Scope.AmountOrDefault(key, -1)
				st.Scope.Set(key, data.Amount(seen+1))
				return nil
			},
		},
	}

	e := newBareTile(reg, tileId)
	e.callTick(registry.TickArgs{})
	assert.Equal(t, int32(42), seen)

	// The scope persists across calls and never writes back to the
	// function's default.
	e.callTick(registry.TickArgs{})
	assert.Equal(t, int32(43), seen)
	assert.Equal(t, data.Amount(42), defaultScope.Get(key))
}

func TestMissingDefinitionPanicsNonExistent(t *testing.T) {
	reg := registry.New()
	e := newBareTile(reg, id.TileId(4242))

	defer func() {
		r := recover()
		require.NotNil(t, r)
		err, ok := r.(error)
		require.True(t, ok)
		c, isNonExistent := IsNonExistent(err)
		assert.True(t, isNonExistent)
		assert.Equal(t, e.coord, c)
	}()
	e.callTick(registry.TickArgs{})
}

func TestReplySafeOnClosedChannel(t *testing.T) {
	ch := make(chan int, 1)
	close(ch)

	assert.NotPanics(t, func() {
		replySafe(ch, 7)
	})
}

func TestReplySafeNilChannel(t *testing.T) {
	assert.NotPanics(t, func() {
		replySafe[int](nil, 7)
	})
}

func TestIsNonExistent(t *testing.T) {
	c, ok := IsNonExistent(ErrNonExistent{Coord: coord.New(3, 4)})
	assert.True(t, ok)
	assert.Equal(t, coord.New(3, 4), c)

	_, ok = IsNonExistent(assert.AnError)
	assert.False(t, ok)
}
