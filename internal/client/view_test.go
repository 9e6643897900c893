package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/tile-movement/internal/protocol"
	"github.com/annel0/tile-movement/internal/world"
)

func TestViewTracksRemoteEntities(t *testing.T) {
	v := NewView()
	assert.False(t, v.Apply(&protocol.CharacterMove{EntityID: 7, Position: pos(1, 1)}))

	require.True(t, v.Apply(&protocol.CharacterCreate{EntityID: 7, Name: "bob", Position: pos(3, 3), Heading: world.West}))
	require.True(t, v.Apply(&protocol.CharacterCreate{EntityID: 2, Name: "eve", Position: pos(9, 9), Heading: world.South}))
	assert.Equal(t, []world.EntityID{2, 7}, v.IDs())

	require.True(t, v.Apply(&protocol.CharacterMove{EntityID: 7, Position: pos(3, 4)}))
	require.True(t, v.Apply(&protocol.CharacterMove{EntityID: 7, Position: pos(3, 5)}))
	bob, ok := v.Get(7)
	require.True(t, ok)
	assert.Equal(t, "bob", bob.Name)
	assert.Equal(t, Moving, bob.Body.State())
	assert.Equal(t, pos(3, 5), bob.Body.Tip())

	v.Update(2*step, step)
	assert.Equal(t, pos(3, 5), bob.Body.Position)
	assert.Equal(t, Idle, bob.Body.State())

	require.True(t, v.Apply(&protocol.CharacterHeading{EntityID: 7, Direction: world.East}))
	assert.Equal(t, world.East, bob.Body.Heading)

	require.True(t, v.Apply(&protocol.CharacterRemove{EntityID: 7}))
	assert.False(t, v.Apply(&protocol.CharacterRemove{EntityID: 7}))
	assert.Equal(t, 1, v.Len())

	assert.False(t, v.Apply(&protocol.Pong{}))
	v.Clear()
	assert.Zero(t, v.Len())
}

func TestViewSnapsWhenBacklogGrows(t *testing.T) {
	v := NewView()
	v.Apply(&protocol.CharacterCreate{EntityID: 1, Position: pos(0, 0)})
	last := uint16(maxRemoteBacklog + 1)
	for x := uint16(1); x <= last; x++ {
		v.Apply(&protocol.CharacterMove{EntityID: 1, Position: pos(x, 0)})
	}
	r, _ := v.Get(1)
	assert.Equal(t, pos(last, 0), r.Body.Tip())
	assert.Len(t, r.Body.Waypoints, maxRemoteBacklog)

	v.Apply(&protocol.CharacterMove{EntityID: 1, Position: pos(last+1, 0)})
	assert.Equal(t, Idle, r.Body.State())
	assert.Equal(t, pos(last+1, 0), r.Body.Position)
}
