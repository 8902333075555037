package config

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Meesho/BharatMLStack/diskaio/pkg/engine"
)

func TestDefaults(t *testing.T) {
	env, err := LoadFrom(viper.New())
	require.NoError(t, err)
	assert.Equal(t, 2, env.Shards)
	assert.Equal(t, engine.DefaultDepth, env.Depth)
	assert.True(t, env.LockOSThread)
	assert.Equal(t, zerolog.InfoLevel, env.LogLevel)
	assert.Equal(t, "diskaio", env.AppName)

	cfg := env.EngineConfig()
	assert.Equal(t, engine.Config{Shards: 2, Depth: engine.DefaultDepth, LockOSThread: true}, cfg)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("DISKAIO_SHARDS", "4")
	t.Setenv("DISKAIO_DEPTH", "64")
	t.Setenv("DISKAIO_LOCK_OS_THREAD", "false")
	t.Setenv("DISKAIO_LOG_LEVEL", "DEBUG")

	env, err := LoadFrom(viper.New())
	require.NoError(t, err)
	assert.Equal(t, 4, env.Shards)
	assert.Equal(t, 64, env.Depth)
	assert.False(t, env.LockOSThread)
	assert.Equal(t, zerolog.DebugLevel, env.LogLevel)
}

func TestExplicitValuesWinOverEnvironment(t *testing.T) {
	t.Setenv("DISKAIO_SHARDS", "4")
	v := viper.New()
	v.Set(KeyShards, 8)

	env, err := LoadFrom(v)
	require.NoError(t, err)
	assert.Equal(t, 8, env.Shards)
}

func TestValidation(t *testing.T) {
	cases := map[string]map[string]string{
		"zero shards":     {"DISKAIO_SHARDS": "0"},
		"negative depth":  {"DISKAIO_DEPTH": "-1"},
		"huge depth":      {"DISKAIO_DEPTH": "1000000"},
		"bogus log level": {"DISKAIO_LOG_LEVEL": "loud"},
	}
	for name, vars := range cases {
		t.Run(name, func(t *testing.T) {
			for k, val := range vars {
				t.Setenv(k, val)
			}
			_, err := LoadFrom(viper.New())
			assert.Error(t, err)
		})
	}
}
