package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConfig struct {
	Foo string        `yaml:"foo"`
	Bar string        `yaml:"bar"`
	Sub fakeSubConfig `yaml:"sub"`
}

type fakeSubConfig struct {
	Car int `yaml:"car"`
}

func writeConfig(t *testing.T, s string) string {
	f, err := os.CreateTemp(t.TempDir(), "spread")
	require.NoError(t, err)
	defer f.Close()

	_, err = f.WriteString(s)
	require.NoError(t, err)
	return f.Name()
}

func TestLoad(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		path := writeConfig(t, `foo: val1
bar: val2
sub:
  car: 5`)

		var conf fakeConfig
		assert.NoError(t, Load(path, &conf, false))

		assert.Equal(t, "val1", conf.Foo)
		assert.Equal(t, "val2", conf.Bar)
		assert.Equal(t, 5, conf.Sub.Car)
	})

	t.Run("expand env", func(t *testing.T) {
		t.Setenv("SPREAD_VAL1", "val1")
		t.Setenv("SPREAD_VAL2", "val2")

		path := writeConfig(t, `foo: $SPREAD_VAL1
bar: ${SPREAD_VAL2}
sub:
  car: ${SPREAD_VAL3:5}`)

		var conf fakeConfig
		assert.NoError(t, Load(path, &conf, true))

		assert.Equal(t, "val1", conf.Foo)
		assert.Equal(t, "val2", conf.Bar)
		assert.Equal(t, 5, conf.Sub.Car)
	})

	t.Run("no expand env", func(t *testing.T) {
		t.Setenv("SPREAD_VAL1", "val1")

		path := writeConfig(t, `foo: $SPREAD_VAL1`)

		var conf fakeConfig
		assert.NoError(t, Load(path, &conf, false))

		assert.Equal(t, "$SPREAD_VAL1", conf.Foo)
	})

	t.Run("unknown key", func(t *testing.T) {
		path := writeConfig(t, `unknown: xyz`)

		var conf fakeConfig
		assert.Error(t, Load(path, &conf, false))
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := writeConfig(t, `invalid yaml...`)

		var conf fakeConfig
		assert.Error(t, Load(path, &conf, false))
	})

	t.Run("not found", func(t *testing.T) {
		var conf fakeConfig
		assert.Error(t, Load("/a/b/c/notfound", &conf, false))
	})
}
