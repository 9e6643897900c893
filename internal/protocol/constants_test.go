package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeqCompareWraparound(t *testing.T) {
	assert.Equal(t, 0, SeqCompare(5, 5))
	assert.Equal(t, -1, SeqCompare(3, 5))
	assert.Equal(t, 1, SeqCompare(6, 5))

	// 254, 255, 0, 1 отправлены по порядку: каждый следующий новее
	sent := []uint8{254, 255, 0, 1}
	for i := 1; i < len(sent); i++ {
		assert.Equal(t, 1, SeqCompare(sent[i], sent[i-1]), "%d vs %d", sent[i], sent[i-1])
		assert.Equal(t, -1, SeqCompare(sent[i-1], sent[i]))
	}
	assert.Equal(t, 1, SeqCompare(0, 255))
	assert.Equal(t, -1, SeqCompare(250, 3))
}
