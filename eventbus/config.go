package eventbus

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds the `EventBus` viper section, bound the same way the
// teacher's internal/config binds its sections: mapstructure tags,
// SetEnvKeyReplacer + AutomaticEnv for env overrides, defaults set
// before the config file is read so env > file > default precedence
// holds.
type Config struct {
	// SubscriptionClientName names this process's durable queue.
	SubscriptionClientName string `mapstructure:"subscriptionClientName" validate:"required"`

	// RetryCount is maxAttempts for the publish retry pipeline.
	RetryCount int `mapstructure:"retryCount" validate:"required,min=1"`

	HostName    string `mapstructure:"hostName" validate:"required"`
	UserName    string `mapstructure:"userName" validate:"required"`
	Password    string `mapstructure:"password" validate:"required"`
	VirtualHost string `mapstructure:"virtualHost"`
	Port        int    `mapstructure:"port" validate:"required"`

	// PrefetchCount is the consumer QoS prefetch applied to the
	// channel before consuming.
	PrefetchCount int `mapstructure:"prefetchCount"`

	// PublishTimeout bounds each publish attempt's context deadline.
	PublishTimeout time.Duration `mapstructure:"publishTimeout"`

	// ReaperInterval is how often outbox.Reaper sweeps for stuck rows.
	ReaperInterval time.Duration `mapstructure:"reaperInterval"`
	// ReaperStuckAfter is how old (by CreationTime) an InProgress row
	// must be before the reaper moves it to PublishedFailed.
	ReaperStuckAfter time.Duration `mapstructure:"reaperStuckAfter"`
	// ReaperLockTTL is the Redis lock TTL the reaper holds while
	// sweeping, so a crashed reaper doesn't wedge the lock forever.
	ReaperLockTTL time.Duration `mapstructure:"reaperLockTTL"`
}

func setConfigDefaults(v *viper.Viper) {
	v.SetDefault("eventBus.retryCount", defaultMaxAttempts)
	v.SetDefault("eventBus.virtualHost", "/")
	v.SetDefault("eventBus.port", 5672)
	v.SetDefault("eventBus.prefetchCount", 10)
	v.SetDefault("eventBus.publishTimeout", 5*time.Second)
	v.SetDefault("eventBus.reaperInterval", 30*time.Second)
	v.SetDefault("eventBus.reaperStuckAfter", 5*time.Minute)
	v.SetDefault("eventBus.reaperLockTTL", time.Minute)
}

// LoadConfig reads the EventBus section from v (already pointed at a
// config file via SetConfigFile/AddConfigPath by the caller, or left
// unset to rely on defaults and environment alone), applying the same
// env-prefix / key-replacer / precedence rules as the rest of the
// application's configuration, and validates the result.
func LoadConfig(v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	setConfigDefaults(v)

	// No SetEnvPrefix: the "eventBus." section prefix already present in
	// every mapstructure key supplies the namespacing an app-wide prefix
	// would otherwise add, so e.g. eventBus.retryCount resolves from
	// env var EVENTBUS_RETRYCOUNT.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("%w: reading config: %v", ErrConfig, err)
		}
	}

	// Unmarshal (not UnmarshalKey) so every leaf key is resolved on its
	// own, merging Set overrides, env, file and defaults.
	var root struct {
		EventBus Config `mapstructure:"eventBus"`
	}
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("%w: unmarshal: %v", ErrConfig, err)
	}
	cfg := root.EventBus

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var configValidator = validator.New()

func validateConfig(cfg *Config) error {
	if err := configValidator.Struct(cfg); err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}
	return nil
}
