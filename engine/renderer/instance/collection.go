package instance

import (
	"encoding/binary"
	"fmt"
	"math"
	"slices"

	"github.com/Carmen-Shannon/hexfab/engine/coord"
	"github.com/Carmen-Shannon/hexfab/engine/id"
	"github.com/Carmen-Shannon/hexfab/engine/model"
)

// InstanceId uniquely identifies one mesh-instance on the GPU: one mesh of
// one model, drawn for one render tag at one coordinate.
type InstanceId struct {
	GlobalMeshId model.GlobalMeshId
	RenderId     id.RenderId
	Coord        coord.TileCoord
}

func (i InstanceId) String() string {
	return fmt.Sprintf("{%s, %d, %d}", i.Coord, i.RenderId, i.GlobalMeshId)
}

// compare orders instance ids by mesh first so the flat buffer groups per
// mesh, then by render id and coordinate for determinism.
func (i InstanceId) compare(o InstanceId) int {
	switch {
	case i.GlobalMeshId != o.GlobalMeshId:
		if i.GlobalMeshId < o.GlobalMeshId {
			return -1
		}
		return 1
	case i.RenderId != o.RenderId:
		if i.RenderId < o.RenderId {
			return -1
		}
		return 1
	}
	return i.Coord.Compare(o.Coord)
}

// GpuDrawInstance is the GPU-aligned per-instance record.
// Size: 32 bytes (std430 aligned).
type GpuDrawInstance struct {
	ColorOffset          [4]float32 // offset  0: additive tint (16 bytes)
	Alpha                float32    // offset 16: instance alpha (4 bytes)
	ModelMatrixIndex     uint32     // offset 20: index into the model matrix buffer (4 bytes)
	WorldMatrixIndex     uint16     // offset 24: index into the world matrix buffer (2 bytes)
	AnimationMatrixIndex uint16     // offset 26: index into the animation matrix buffer (2 bytes)
	_pad                 uint32     // offset 28: padding to 32 bytes
}

// Marshal serializes the instance into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 32-byte buffer ready for GPU upload.
func (g *GpuDrawInstance) Marshal() []byte {
	buf := make([]byte, 32)
	binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(g.ColorOffset[0]))
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(g.ColorOffset[1]))
	binary.LittleEndian.PutUint32(buf[8:12], math.Float32bits(g.ColorOffset[2]))
	binary.LittleEndian.PutUint32(buf[12:16], math.Float32bits(g.ColorOffset[3]))
	binary.LittleEndian.PutUint32(buf[16:20], math.Float32bits(g.Alpha))
	binary.LittleEndian.PutUint32(buf[20:24], g.ModelMatrixIndex)
	binary.LittleEndian.PutUint16(buf[24:26], g.WorldMatrixIndex)
	binary.LittleEndian.PutUint16(buf[26:28], g.AnimationMatrixIndex)
	return buf
}

// InstanceRange is a contiguous (start, count) run of one mesh's instances
// in the flat buffer.
type InstanceRange struct {
	Start uint32
	Count uint32
}

// MeshRange pairs a mesh with its instance range.
type MeshRange struct {
	Mesh  model.GlobalMeshId
	Range InstanceRange
}

// InstanceCollection is a buffer of GPU instances partitioned into
// per-mesh contiguous ranges. Instances are inserted on Track, mutated in
// place on Transform and tint changes, marked on Untrack and compacted in
// bulk by the next flush.
type InstanceCollection struct {
	buffer        []GpuDrawInstance
	ranges        []MeshRange
	indexMap      map[InstanceId]uint32
	shouldRebuild bool
	toRemove      []uint32
}

// NewInstanceCollection creates an empty collection.
func NewInstanceCollection() InstanceCollection {
	return InstanceCollection{
		buffer:   make([]GpuDrawInstance, 0, 256),
		indexMap: make(map[InstanceId]uint32),
	}
}

// Len returns the number of live instances.
func (c *InstanceCollection) Len() int {
	return len(c.indexMap)
}

// Buffer returns the flat instance buffer.
func (c *InstanceCollection) Buffer() []GpuDrawInstance {
	return c.buffer
}

// Ranges returns the per-mesh ranges, sorted by mesh. Valid after Flush.
func (c *InstanceCollection) Ranges() []MeshRange {
	return c.ranges
}

// Lookup returns a mutable reference to an instance, and whether it is
// present.
func (c *InstanceCollection) Lookup(instanceId InstanceId) (*GpuDrawInstance, bool) {
	index, ok := c.indexMap[instanceId]
	if !ok {
		return nil, false
	}
	return &c.buffer[index], true
}

// Add appends a new instance. Adding a duplicate InstanceId is a
// programmer error and panics.
func (c *InstanceCollection) Add(instanceId InstanceId, inst GpuDrawInstance) uint32 {
	if _, exists := c.indexMap[instanceId]; exists {
		panic(fmt.Sprintf("InstanceId should be unique; duplicate InstanceId: %s", instanceId))
	}

	c.buffer = append(c.buffer, inst)
	index := uint32(len(c.buffer) - 1)
	c.indexMap[instanceId] = index
	c.shouldRebuild = true
	return index
}

// MarkRemoval schedules an instance for removal by the next FlushRemoval.
// Unknown ids are ignored.
func (c *InstanceCollection) MarkRemoval(instanceId InstanceId) {
	index, ok := c.indexMap[instanceId]
	if !ok {
		return
	}
	delete(c.indexMap, instanceId)
	c.toRemove = append(c.toRemove, index)
}

// FlushRemoval compacts the buffer by swap-removing every scheduled index
// from the end and rewriting index-map entries that pointed at moved
// instances.
func (c *InstanceCollection) FlushRemoval() {
	if len(c.toRemove) == 0 {
		return
	}
	slices.SortFunc(c.toRemove, func(a, b uint32) int {
		switch {
		case a > b:
			return -1
		case a < b:
			return 1
		}
		return 0
	})

	moved := make(map[uint32]uint32)
	for _, index := range c.toRemove {
		removedIndex := uint32(len(c.buffer) - 1)
		c.buffer[index] = c.buffer[removedIndex]
		c.buffer = c.buffer[:removedIndex]

		if removedIndex != index {
			moved[removedIndex] = index
		}
	}

	for instanceId, index := range c.indexMap {
		resolved := index
		for {
			next, ok := moved[resolved]
			if !ok {
				break
			}
			resolved = next
		}
		if resolved != index {
			c.indexMap[instanceId] = resolved
		}
	}

	c.toRemove = c.toRemove[:0]
	c.shouldRebuild = true
}

// Flush rebuilds the sorted flat layout and the per-mesh ranges if any add
// or removal happened since the last flush.
func (c *InstanceCollection) Flush() {
	if !c.shouldRebuild {
		return
	}

	type flatEntry struct {
		id   InstanceId
		inst GpuDrawInstance
	}
	flat := make([]flatEntry, 0, len(c.indexMap))
	for instanceId, index := range c.indexMap {
		flat = append(flat, flatEntry{id: instanceId, inst: c.buffer[index]})
	}
	slices.SortFunc(flat, func(a, b flatEntry) int {
		return a.id.compare(b.id)
	})

	c.ranges = c.ranges[:0]
	for i := 0; i < len(flat); {
		mesh := flat[i].id.GlobalMeshId
		start := i
		for i < len(flat) && flat[i].id.GlobalMeshId == mesh {
			i++
		}
		c.ranges = append(c.ranges, MeshRange{
			Mesh:  mesh,
			Range: InstanceRange{Start: uint32(start), Count: uint32(i - start)},
		})
	}

	c.buffer = c.buffer[:0]
	for i, entry := range flat {
		c.buffer = append(c.buffer, entry.inst)
		c.indexMap[entry.id] = uint32(i)
	}
	c.shouldRebuild = false
}

// Each calls f for every live instance. Mutation through the pointer is
// allowed.
func (c *InstanceCollection) Each(f func(InstanceId, *GpuDrawInstance)) {
	for instanceId, index := range c.indexMap {
		f(instanceId, &c.buffer[index])
	}
}

// Clear drops everything.
func (c *InstanceCollection) Clear() {
	c.buffer = c.buffer[:0]
	c.ranges = c.ranges[:0]
	clear(c.indexMap)
	c.toRemove = c.toRemove[:0]
	c.shouldRebuild = false
}

// Marshal serializes the instance buffer for GPU upload.
func (c *InstanceCollection) Marshal() []byte {
	buf := make([]byte, 0, len(c.buffer)*32)
	for i := range c.buffer {
		buf = append(buf, c.buffer[i].Marshal()...)
	}
	return buf
}
