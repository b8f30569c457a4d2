package ble

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/taoyao-code/meccanoid-ctl/internal/link"
)

func TestFirstMatch(t *testing.T) {
	t.Run("命中后忽略后续结果", func(t *testing.T) {
		var got []string
		match := firstMatch(func(d link.Device) bool {
			got = append(got, d.Address)
			return d.Name == "MECCANOID"
		})

		assert.False(t, match(link.Device{Address: "aa", Name: "other"}))
		assert.True(t, match(link.Device{Address: "bb", Name: "MECCANOID"}))
		assert.False(t, match(link.Device{Address: "cc", Name: "MECCANOID"}))
		assert.Equal(t, []string{"aa", "bb"}, got)
	})

	t.Run("并发回调只命中一次", func(t *testing.T) {
		var (
			mu   sync.Mutex
			hits int
			wg   sync.WaitGroup
		)
		match := firstMatch(func(link.Device) bool {
			mu.Lock()
			hits++
			mu.Unlock()
			return true
		})
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				match(link.Device{Address: "dd", Name: "MECCANOID"})
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, hits)
	})
}
