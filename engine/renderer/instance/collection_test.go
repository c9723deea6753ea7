package instance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/hexfab/engine/coord"
	"github.com/Carmen-Shannon/hexfab/engine/id"
	"github.com/Carmen-Shannon/hexfab/engine/model"
)

func instId(mesh model.GlobalMeshId, q, r int32) InstanceId {
	return InstanceId{GlobalMeshId: mesh, RenderId: id.RenderId(1), Coord: coord.New(q, r)}
}

func TestAddLookupRemove(t *testing.T) {
	c := NewInstanceCollection()

	a := instId(0, 0, 0)
	b := instId(0, 1, 0)

	c.Add(a, GpuDrawInstance{Alpha: 1})
	c.Add(b, GpuDrawInstance{Alpha: 0.5})
	require.Equal(t, 2, c.Len())

	got, ok := c.Lookup(b)
	require.True(t, ok)
	assert.Equal(t, float32(0.5), got.Alpha)

	c.MarkRemoval(a)
	c.FlushRemoval()
	c.Flush()

	_, ok = c.Lookup(a)
	assert.False(t, ok)
	got, ok = c.Lookup(b)
	require.True(t, ok)
	assert.Equal(t, float32(0.5), got.Alpha)
	assert.Equal(t, 1, c.Len())
}

func TestDuplicateAddPanics(t *testing.T) {
	c := NewInstanceCollection()
	c.Add(instId(0, 0, 0), GpuDrawInstance{})

	assert.Panics(t, func() {
		c.Add(instId(0, 0, 0), GpuDrawInstance{})
	})
}

func TestFlushGroupsRangesByMesh(t *testing.T) {
	c := NewInstanceCollection()

	// Interleave meshes on purpose; flush must sort and group.
	c.Add(instId(2, 0, 0), GpuDrawInstance{})
	c.Add(instId(0, 0, 0), GpuDrawInstance{})
	c.Add(instId(2, 1, 0), GpuDrawInstance{})
	c.Add(instId(1, 0, 0), GpuDrawInstance{})
	c.Add(instId(2, 0, 1), GpuDrawInstance{})

	c.Flush()

	ranges := c.Ranges()
	require.Len(t, ranges, 3)
	assert.Equal(t, MeshRange{Mesh: 0, Range: InstanceRange{Start: 0, Count: 1}}, ranges[0])
	assert.Equal(t, MeshRange{Mesh: 1, Range: InstanceRange{Start: 1, Count: 1}}, ranges[1])
	assert.Equal(t, MeshRange{Mesh: 2, Range: InstanceRange{Start: 2, Count: 3}}, ranges[2])

	// Ranges cover the buffer contiguously.
	total := uint32(0)
	for _, mr := range ranges {
		assert.Equal(t, total, mr.Range.Start)
		total += mr.Range.Count
	}
	assert.Equal(t, int(total), len(c.Buffer()))
}

func TestFlushRemovalRewritesMovedIndices(t *testing.T) {
	c := NewInstanceCollection()

	ids := []InstanceId{instId(0, 0, 0), instId(0, 1, 0), instId(0, 2, 0), instId(0, 3, 0)}
	for i, instanceId := range ids {
		c.Add(instanceId, GpuDrawInstance{Alpha: float32(i)})
	}
	c.Flush()

	c.MarkRemoval(ids[0])
	c.MarkRemoval(ids[2])
	c.FlushRemoval()
	c.Flush()

	require.Equal(t, 2, c.Len())
	for _, instanceId := range []InstanceId{ids[1], ids[3]} {
		got, ok := c.Lookup(instanceId)
		require.True(t, ok, "%s lost after compaction", instanceId)
		// Alpha encodes the original slot, proving identity survived.
		assert.Contains(t, []float32{1, 3}, got.Alpha)
	}
}

func TestTrackUntrackFlushRoundTrips(t *testing.T) {
	c := NewInstanceCollection()
	c.Flush()
	baseline := len(c.Buffer())

	x := instId(0, 5, 5)
	c.Add(x, GpuDrawInstance{})
	c.MarkRemoval(x)
	c.FlushRemoval()
	c.Flush()

	assert.Equal(t, baseline, len(c.Buffer()))
	assert.Equal(t, 0, c.Len())
	assert.Empty(t, c.Ranges())
}

func TestMarshalLength(t *testing.T) {
	c := NewInstanceCollection()
	c.Add(instId(0, 0, 0), GpuDrawInstance{})
	c.Add(instId(0, 1, 0), GpuDrawInstance{})

	assert.Len(t, c.Marshal(), 64)
}
