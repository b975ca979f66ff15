package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config is the full sor-server configuration
type Config struct {
	Log    LogConfig              `mapstructure:"log"`
	Router RouterConfig           `mapstructure:"router"`
	Scorer ScorerConfig           `mapstructure:"scorer"`
	Stats  StatsConfig            `mapstructure:"stats"`
	Algo   AlgoConfig             `mapstructure:"algo"`
	Nats   NatsConfig             `mapstructure:"nats"`
	Redis  RedisConfig            `mapstructure:"redis"`
	Venues map[string]VenueConfig `mapstructure:"venues"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// RouterConfig bounds the smart order router's venue I/O. A zero poll
// interval disables order polling; fills then arrive only via the feed.
type RouterConfig struct {
	SubmitTimeout   time.Duration `mapstructure:"submit_timeout"`
	CancelTimeout   time.Duration `mapstructure:"cancel_timeout"`
	UpdateQueueSize int           `mapstructure:"update_queue_size"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
}

// ScorerConfig tunes venue scoring and adaptive weighting
type ScorerConfig struct {
	AdaptiveWeights  bool            `mapstructure:"adaptive_weights"`
	RecalcInterval   time.Duration   `mapstructure:"recalc_interval"`
	BaseQuantity     decimal.Decimal `mapstructure:"base_quantity"`
	DefaultSpreadPct float64         `mapstructure:"default_spread_pct"`
	DefaultScore     float64         `mapstructure:"default_score"`
}

// StatsConfig tunes the venue stats store. The decay pass itself runs on
// the scorer's recalc interval.
type StatsConfig struct {
	DecayFactor   float64 `mapstructure:"decay_factor"`
	VolumeEpsilon float64 `mapstructure:"volume_epsilon"`
	SnapshotKey   string  `mapstructure:"snapshot_key"`
}

// AlgoConfig carries defaults for the built-in execution algorithms
type AlgoConfig struct {
	TwapSlices   int             `mapstructure:"twap_slices"`
	TwapInterval time.Duration   `mapstructure:"twap_interval"`
	IcebergClip  decimal.Decimal `mapstructure:"iceberg_clip"`
	EvalInterval time.Duration   `mapstructure:"eval_interval"`
}

type NatsConfig struct {
	URL      string `mapstructure:"url"`
	ClientID string `mapstructure:"client_id"`
}

type RedisConfig struct {
	CacheDSN string `mapstructure:"cache_dsn"`
}

// VenueConfig configures one venue adapter and the symbols it trades
type VenueConfig struct {
	Adapter     string   `mapstructure:"adapter"`
	APIKey      string   `mapstructure:"api_key"`
	SecretKey   string   `mapstructure:"secret_key"`
	TestNet     bool     `mapstructure:"test_net"`
	TakerFeeBps float64  `mapstructure:"taker_fee_bps"`
	Symbols     []string `mapstructure:"symbols"`
}

// Load reads configuration from the given file plus SOR_* environment overrides
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("SOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		decimalDecodeHook(),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("router.submit_timeout", 10*time.Second)
	v.SetDefault("router.cancel_timeout", 10*time.Second)
	v.SetDefault("router.update_queue_size", 1024)
	v.SetDefault("router.poll_interval", 2*time.Second)

	v.SetDefault("scorer.adaptive_weights", true)
	v.SetDefault("scorer.recalc_interval", time.Minute)
	v.SetDefault("scorer.base_quantity", "1")
	v.SetDefault("scorer.default_spread_pct", 0.001)
	v.SetDefault("scorer.default_score", 0.5)

	v.SetDefault("stats.decay_factor", 0.9)
	v.SetDefault("stats.volume_epsilon", 1e-9)
	v.SetDefault("stats.snapshot_key", "sor:venue_stats")

	v.SetDefault("algo.twap_slices", 10)
	v.SetDefault("algo.twap_interval", 30*time.Second)
	v.SetDefault("algo.eval_interval", time.Second)
}

// decimalDecodeHook lets quantities be written as strings or numbers in config
func decimalDecodeHook() mapstructure.DecodeHookFuncType {
	decimalType := reflect.TypeOf(decimal.Decimal{})
	return func(_, to reflect.Type, data interface{}) (interface{}, error) {
		if to != decimalType {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return decimal.NewFromString(v)
		case float64:
			return decimal.NewFromFloat(v), nil
		case int:
			return decimal.NewFromInt(int64(v)), nil
		default:
			return data, nil
		}
	}
}
