package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Engine metric keys
const (
	KEY_SUBMIT_LATENCY   = "diskaio_submit_latency"
	KEY_RETRY_COUNT      = "diskaio_retry_count"
	KEY_REJECT_COUNT     = "diskaio_reject_count"
	KEY_COMPLETION_COUNT = "diskaio_completion_count"
	KEY_INFLIGHT         = "diskaio_inflight"
	KEY_BATCH_SIZE       = "diskaio_batch_size"
)

// Tag keys
const (
	TAG_SHARD_IDX = "shard_idx"
	TAG_OP        = "op"
)

const (
	ENV_METRICS_ENABLED = "DISKAIO_METRICS_ENABLED"
	ENV_SAMPLING_RATE   = "APP_METRIC_SAMPLING_RATE"
	ENV_APP_NAME        = "APP_NAME"
	ENV_APP_ENV         = "APP_ENV"
)

var (
	statsDClient    *statsd.Client
	samplingRate    = 0.1
	telegrafAddress = "localhost:8125"
	appName         = ""
	initialized     = false
	once            sync.Once

	// When false, all Timing/Count/Incr/Gauge calls are no-ops.
	metricsEnabled = false
)

// Init initializes the metrics client from viper. It is a no-op unless
// DISKAIO_METRICS_ENABLED is set.
func Init() {
	if initialized {
		log.Debug().Msgf("Metrics already initialized!")
		return
	}
	once.Do(func() {
		_ = viper.BindEnv(ENV_METRICS_ENABLED)
		_ = viper.BindEnv(ENV_SAMPLING_RATE)
		_ = viper.BindEnv(ENV_APP_NAME)
		_ = viper.BindEnv(ENV_APP_ENV)

		metricsEnabled = viper.GetBool(ENV_METRICS_ENABLED)
		if !metricsEnabled {
			initialized = true
			return
		}
		if viper.IsSet(ENV_SAMPLING_RATE) {
			samplingRate = viper.GetFloat64(ENV_SAMPLING_RATE)
		}
		appName = viper.GetString(ENV_APP_NAME)
		globalTags := getGlobalTags()

		var err error
		statsDClient, err = statsd.New(
			telegrafAddress,
			statsd.WithTags(globalTags),
		)
		if err != nil {
			log.Error().Err(err).Msg("StatsD client initialization failed, metrics disabled")
			metricsEnabled = false
			initialized = true
			return
		}
		log.Info().Msgf("Metrics client initialized with telegraf address - %s, global tags - %v, and "+
			"sampling rate - %f", telegrafAddress, globalTags, samplingRate)
		initialized = true
	})
}

func getGlobalTags() []string {
	env := viper.GetString(ENV_APP_ENV)
	if len(env) == 0 {
		log.Warn().Msg("APP_ENV is not set")
	}
	service := viper.GetString(ENV_APP_NAME)
	if len(service) == 0 {
		log.Warn().Msg("APP_NAME is not set")
	}
	return []string{
		TagAsString(TagEnv, env),
		TagAsString(TagService, service),
	}
}

// Timing sends timing information. No-op when metrics are disabled.
func Timing(name string, value time.Duration, tags []string) {
	if !metricsEnabled {
		return
	}
	if err := statsDClient.Timing(name, value, tags, samplingRate); err != nil {
		log.Warn().Err(err).Msg("Error occurred while doing statsd timing")
	}
}

// Count increases metric counter by value. No-op when metrics are disabled.
func Count(name string, value int64, tags []string) {
	if !metricsEnabled {
		return
	}
	if err := statsDClient.Count(name, value, tags, samplingRate); err != nil {
		log.Warn().Err(err).Msg("Error occurred while doing statsd count")
	}
}

// Incr increases metric counter by 1. No-op when metrics are disabled.
func Incr(name string, tags []string) {
	Count(name, 1, tags)
}

// Gauge sets a gauge value. No-op when metrics are disabled.
func Gauge(name string, value float64, tags []string) {
	if !metricsEnabled {
		return
	}
	if err := statsDClient.Gauge(name, value, tags, samplingRate); err != nil {
		log.Warn().Err(err).Msg("Error occurred while doing statsd gauge")
	}
}

// Enabled reports whether metrics are emitted. Call sites check this before
// building tags to stay allocation free.
func Enabled() bool {
	return metricsEnabled
}

// Close flushes and closes the statsd client.
func Close() error {
	if statsDClient == nil {
		return nil
	}
	return statsDClient.Close()
}

func GetShardTag(shardIdx int) []string {
	return BuildTag(NewTag(TAG_SHARD_IDX, strconv.Itoa(shardIdx)))
}
