package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequenceGenerator_Order(t *testing.T) {
	gen := NewSequenceGenerator("card")

	assert.Equal(t, "card-0001", gen.Generate())
	assert.Equal(t, "card-0002", gen.Next())
	assert.Equal(t, 2, gen.Count())
}

func TestSequenceGenerator_EmptyPrefixDefault(t *testing.T) {
	gen := NewSequenceGenerator("")
	assert.Equal(t, "id-0001", gen.Generate())
}

func TestSequenceGenerator_ThreadSafe(t *testing.T) {
	gen := NewSequenceGenerator("x")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				gen.Generate()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1000, gen.Count())
}
