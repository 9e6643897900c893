package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/tile-movement/internal/world"
)

func TestCharacterMovedPayload(t *testing.T) {
	in := CharacterMoved{
		EntityID:  77,
		RequestID: 255,
		From:      world.Position{Map: 1, X: 4, Y: 4},
		To:        world.Position{Map: 1, X: 5, Y: 4},
	}
	var out CharacterMoved
	require.NoError(t, out.Unmarshal(in.Marshal()))
	assert.Equal(t, in, out)

	in.Blocked = true
	in.To = in.From
	require.NoError(t, out.Unmarshal(in.Marshal()))
	assert.True(t, out.Blocked)
}

func TestCharacterSessionPayload(t *testing.T) {
	in := CharacterSession{EntityID: 3, Name: "ana", Position: world.Position{Map: 2, X: 300, Y: 1}}
	var out CharacterSession
	require.NoError(t, out.Unmarshal(in.Marshal()))
	assert.Equal(t, in, out)
}

func TestUnmarshalGarbage(t *testing.T) {
	var out CharacterMoved
	assert.Error(t, out.Unmarshal([]byte{0x0A, 0x10}))
}
