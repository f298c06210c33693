package mempool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSizeClass(t *testing.T) {
	tests := []struct {
		name     string
		input    int
		expected int
	}{
		{name: "small size gets minimum", input: 1, expected: 1024},
		{name: "exactly 1024", input: 1024, expected: 1024},
		{name: "just over 1024", input: 1025, expected: 2048},
		{name: "odd number", input: 1500, expected: 2048},
		{name: "plane of a 224 image", input: 224 * 224, expected: 50176},
		{name: "zero size", input: 0, expected: 1024},
		{name: "negative size", input: -1, expected: 1024},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, sizeClass(tt.input))
		})
	}
}

func TestGetPutFloat32(t *testing.T) {
	buf := GetFloat32(300)
	assert.Len(t, buf, 300)
	assert.GreaterOrEqual(t, cap(buf), 1024)
	for i := range buf {
		buf[i] = float32(i)
	}
	PutFloat32(buf)

	again := GetFloat32(300)
	assert.Len(t, again, 300)
	PutFloat32(again)
	PutFloat32(nil)
}

func TestPoolConcurrentUse(t *testing.T) {
	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := range 50 {
				b := GetFloat32(1000 + g*i)
				b[0] = 1
				PutFloat32(b)
			}
		}(g)
	}
	wg.Wait()
}
