// Package config loads engine settings from the environment (and any flags
// bound into viper) with defaults and validation.
package config

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/Meesho/BharatMLStack/diskaio/pkg/engine"
)

// viper keys
const (
	KeyShards       = "shards"
	KeyDepth        = "depth"
	KeyLockOSThread = "lock_os_thread"
	KeyLogLevel     = "log_level"
	KeyAppName      = "app_name"
	KeyAppEnv       = "app_env"
)

type Env struct {
	Shards       int
	Depth        int
	LockOSThread bool
	LogLevel     zerolog.Level
	AppName      string
	AppEnv       string
}

// Load reads configuration from the global viper instance.
func Load() (Env, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads configuration from v, binding the DISKAIO_* environment.
func LoadFrom(v *viper.Viper) (Env, error) {
	bindEnvVars(v)
	setDefaults(v)

	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(v.GetString(KeyLogLevel))))
	if err != nil {
		return Env{}, fmt.Errorf("invalid DISKAIO_LOG_LEVEL: %q", v.GetString(KeyLogLevel))
	}

	env := Env{
		Shards:       v.GetInt(KeyShards),
		Depth:        v.GetInt(KeyDepth),
		LockOSThread: v.GetBool(KeyLockOSThread),
		LogLevel:     level,
		AppName:      v.GetString(KeyAppName),
		AppEnv:       v.GetString(KeyAppEnv),
	}
	if env.Shards < 1 {
		return Env{}, fmt.Errorf("invalid DISKAIO_SHARDS: %d", env.Shards)
	}
	if env.Depth < 1 || env.Depth > engine.MaxDepth {
		return Env{}, fmt.Errorf("invalid DISKAIO_DEPTH: %d (want 1..%d)", env.Depth, engine.MaxDepth)
	}
	return env, nil
}

// EngineConfig converts the environment into an engine.Config.
func (e Env) EngineConfig() engine.Config {
	return engine.Config{
		Shards:       e.Shards,
		Depth:        e.Depth,
		LockOSThread: e.LockOSThread,
	}
}

func bindEnvVars(v *viper.Viper) {
	_ = v.BindEnv(KeyShards, "DISKAIO_SHARDS")
	_ = v.BindEnv(KeyDepth, "DISKAIO_DEPTH")
	_ = v.BindEnv(KeyLockOSThread, "DISKAIO_LOCK_OS_THREAD")
	_ = v.BindEnv(KeyLogLevel, "DISKAIO_LOG_LEVEL")
	_ = v.BindEnv(KeyAppName, "APP_NAME")
	_ = v.BindEnv(KeyAppEnv, "APP_ENV")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyShards, 2)
	v.SetDefault(KeyDepth, engine.DefaultDepth)
	v.SetDefault(KeyLockOSThread, true)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyAppName, "diskaio")
}
