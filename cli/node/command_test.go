package node

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdvertiseAddrFromBindAddr(t *testing.T) {
	t.Run("host", func(t *testing.T) {
		addr, err := advertiseAddrFromBindAddr("10.26.104.14:7000")
		require.NoError(t, err)
		assert.Equal(t, "10.26.104.14:7000", addr)
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := advertiseAddrFromBindAddr("7000")
		assert.Error(t, err)
	})
}
