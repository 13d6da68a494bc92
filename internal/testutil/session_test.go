package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFixedSession_ReturnsSameToken(t *testing.T) {
	gen := NewFixedSession("session-123")

	assert.Equal(t, "session-123", gen.Generate())
	assert.Equal(t, "session-123", gen.Generate())
}

func TestFixedSession_EmptyTokenDefault(t *testing.T) {
	assert.Equal(t, DefaultSession, NewFixedSession("").Generate())
}

func TestFixedSession_ThreadSafe(t *testing.T) {
	gen := NewFixedSession("shared")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				assert.Equal(t, "shared", gen.Generate())
			}
		}()
	}
	wg.Wait()
}
