package vulkan

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockPoolSerializesQueueFamily(t *testing.T) {
	pool := NewVulkanLockPool()
	pool.SetQueueFamily(0)
	pool.SetQueueFamily(0)

	var (
		wg      sync.WaitGroup
		inside  int
		maxSeen int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = pool.SafeQueueCall(0, func() error {
				inside++
				maxSeen = max(maxSeen, inside)
				inside--
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
}

func TestLockPoolUnknownFamily(t *testing.T) {
	pool := NewVulkanLockPool()
	called := false
	err := pool.SafeQueueCall(3, func() error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.False(t, called)
}

func TestLockPoolSafeCallReturnsError(t *testing.T) {
	pool := NewVulkanLockPool()
	boom := errors.New("boom")
	assert.ErrorIs(t, pool.SafeCall(MemoryManagement, func() error { return boom }), boom)
	assert.Error(t, pool.SafeCall(lockGroupCount, func() error { return nil }))
	assert.Equal(t, "descriptor_management", DescriptorManagement.String())
}
