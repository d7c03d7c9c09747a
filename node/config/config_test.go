package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andydunstall/spread/pkg/config"
)

func defaultConfig(t *testing.T) Config {
	var conf Config
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	conf.RegisterFlags(fs)
	require.NoError(t, fs.Parse(nil))
	return conf
}

func TestConfig_Defaults(t *testing.T) {
	conf := defaultConfig(t)
	assert.NoError(t, conf.Validate())

	assert.Equal(t, ":7000", conf.Peer.BindAddr)
	assert.Equal(t, ":7001", conf.Admin.BindAddr)
	assert.Equal(t, time.Second, conf.Gossip.Frequency)
	assert.Equal(t, 2, conf.Gossip.PollSize)
	assert.Equal(t, "info", conf.Log.Level)
}

func TestConfig_Validate(t *testing.T) {
	t.Run("node id and prefix", func(t *testing.T) {
		conf := defaultConfig(t)
		conf.Node.ID = "foo"
		conf.Node.IDPrefix = "bar"
		assert.Error(t, conf.Validate())
	})

	t.Run("invalid gossip", func(t *testing.T) {
		conf := defaultConfig(t)
		conf.Gossip.Frequency = 0
		assert.Error(t, conf.Validate())
	})

	t.Run("invalid records", func(t *testing.T) {
		conf := defaultConfig(t)
		conf.Records.FalsePositiveRate = 2
		assert.Error(t, conf.Validate())
	})

	t.Run("missing admin bind addr", func(t *testing.T) {
		conf := defaultConfig(t)
		conf.Admin.BindAddr = ""
		assert.Error(t, conf.Validate())
	})

	t.Run("records exceed max message size", func(t *testing.T) {
		conf := defaultConfig(t)
		conf.Records.MaxSize = 2 * 1024 * 1024
		conf.Peer.MaxMessageSize = 1024 * 1024
		assert.Error(t, conf.Validate())
	})

	t.Run("target response size exceeds max message size", func(t *testing.T) {
		conf := defaultConfig(t)
		conf.Gossip.TargetResponseSize = int(conf.Peer.MaxMessageSize)
		assert.Error(t, conf.Validate())
	})

	t.Run("records fit max message size", func(t *testing.T) {
		conf := defaultConfig(t)
		conf.Records.MaxSize = 512 * 1024
		conf.Peer.MaxMessageSize = 1024 * 1024
		assert.NoError(t, conf.Validate())
	})

	t.Run("capacity filter exceeds max message size", func(t *testing.T) {
		conf := defaultConfig(t)
		conf.Records.Capacity = 100_000_000
		assert.Error(t, conf.Validate())
	})
}

func TestConfig_Load(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
node:
  id: node-1
peer:
  bind_addr: 10.26.104.14:7000
  join:
    - 10.26.104.15:7000
    - 10.26.104.16:7000
gossip:
  frequency: 500ms
  poll_size: 3
records:
  capacity: 1000
  eviction: true
`), 0o600))

	conf := defaultConfig(t)
	require.NoError(t, config.Load(path, &conf, false))
	require.NoError(t, conf.Validate())

	assert.Equal(t, "node-1", conf.Node.ID)
	assert.Equal(t, "10.26.104.14:7000", conf.Peer.BindAddr)
	assert.Equal(t, []string{"10.26.104.15:7000", "10.26.104.16:7000"}, conf.Peer.Join)
	assert.Equal(t, 500*time.Millisecond, conf.Gossip.Frequency)
	assert.Equal(t, 3, conf.Gossip.PollSize)
	assert.Equal(t, 1000, conf.Records.Capacity)
	assert.True(t, conf.Records.Eviction)
	// Defaults are kept for fields not in the file.
	assert.Equal(t, ":7001", conf.Admin.BindAddr)
}
