package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/driftlabs/driftroute/pkg/types"
)

// ConfigurationError marks a fatal startup misconfiguration. It is the only
// error class raised before routing begins; nothing mid-routing returns it.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// Config holds all application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Redis      RedisConfig      `yaml:"redis"`
	App        AppConfig        `yaml:"app"`
	Backends   []BackendConfig  `yaml:"backends"`
	Profiler   ProfilerConfig   `yaml:"profiler"`
	Learning   LearningConfig   `yaml:"learning"`
	Reward     RewardConfig     `yaml:"reward"`
	Routing    RoutingConfig    `yaml:"routing"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Host         string   `yaml:"host"`
	Port         int      `yaml:"port"`
	ReadTimeout  Duration `yaml:"read_timeout"`
	WriteTimeout Duration `yaml:"write_timeout"`
	// RateLimitPerMinute throttles each client IP; 0 disables throttling.
	RateLimitPerMinute int `yaml:"rate_limit_per_minute"`
}

// RedisConfig holds the optional response-cache connection settings.
// An empty Host disables the cache entirely.
type RedisConfig struct {
	Host     string   `yaml:"host"`
	Port     int      `yaml:"port"`
	Password string   `yaml:"password"`
	DB       int      `yaml:"db"`
	TTL      Duration `yaml:"ttl"`
}

// AppConfig holds application-level configuration
type AppConfig struct {
	Name     string `yaml:"name"`
	Version  string `yaml:"version"`
	LogLevel string `yaml:"log_level"`
}

// BackendConfig is one entry of the backend registry.
type BackendConfig struct {
	ID               string   `yaml:"id"`
	Kind             string   `yaml:"kind"`
	Endpoint         string   `yaml:"endpoint"`
	CostPerCall      float64  `yaml:"cost_per_call"`
	MaxResponseTime  Duration `yaml:"max_response_time"`
	FailureThreshold int      `yaml:"failure_threshold"`
	CoolDown         Duration `yaml:"cool_down"`
	Capabilities     []string `yaml:"capabilities"`
	// Hybrid backends delegate to two other registered backends.
	LocalDelegate    string `yaml:"local_delegate"`
	ExternalDelegate string `yaml:"external_delegate"`
}

// Descriptor converts the config entry into the read-only runtime descriptor.
func (b BackendConfig) Descriptor() types.BackendDescriptor {
	return types.BackendDescriptor{
		ID:               b.ID,
		Kind:             types.BackendKind(b.Kind),
		Endpoint:         b.Endpoint,
		CostPerCall:      b.CostPerCall,
		MaxResponseTime:  b.MaxResponseTime.Std(),
		FailureThreshold: b.FailureThreshold,
		CoolDown:         b.CoolDown.Std(),
		Capabilities:     b.Capabilities,
	}
}

// ProfilerConfig holds complexity feature weights and level thresholds.
type ProfilerConfig struct {
	Weights    FeatureWeights  `yaml:"weights"`
	Thresholds LevelThresholds `yaml:"thresholds"`
}

// FeatureWeights are the fixed (not learned) weights of the complexity score.
type FeatureWeights struct {
	Length        float64 `yaml:"length"`
	WordCount     float64 `yaml:"word_count"`
	SentenceCount float64 `yaml:"sentence_count"`
	Interrogative float64 `yaml:"interrogative"`
	Emotional     float64 `yaml:"emotional"`
	Decision      float64 `yaml:"decision"`
	Urgency       float64 `yaml:"urgency"`
}

// LevelThresholds are the upper bounds of each complexity level.
type LevelThresholds struct {
	Trivial  float64 `yaml:"trivial"`
	Simple   float64 `yaml:"simple"`
	Moderate float64 `yaml:"moderate"`
	Complex  float64 `yaml:"complex"`
}

// LearningConfig holds Q-learning hyperparameters.
type LearningConfig struct {
	Alpha             float64 `yaml:"alpha"`
	Gamma             float64 `yaml:"gamma"`
	Epsilon           float64 `yaml:"epsilon"`
	EpsilonDecay      float64 `yaml:"epsilon_decay"`
	MinEpsilon        float64 `yaml:"min_epsilon"`
	ReplayCapacity    int     `yaml:"replay_capacity"`
	ReplayBatchSize   int     `yaml:"replay_batch_size"`
	ReplayFrequency   int     `yaml:"replay_frequency"`
	ExplorationPolicy string  `yaml:"exploration_policy"` // epsilon-greedy, ucb, softmax
	UCBConstant       float64 `yaml:"ucb_constant"`
	SoftmaxTau        float64 `yaml:"softmax_tau"`
}

// RewardConfig holds the reward shaping weights. Exact values are meant to
// be tuned experimentally, not treated as a contract.
type RewardConfig struct {
	SuccessBonus     float64  `yaml:"success_bonus"`
	LatencyWeight    float64  `yaml:"latency_weight"`
	ConfidenceWeight float64  `yaml:"confidence_weight"`
	ErrorPenalty     float64  `yaml:"error_penalty"`
	LatencyBudget    Duration `yaml:"latency_budget"`
}

// RoutingConfig holds engine-level settings.
type RoutingConfig struct {
	DefaultDeadline Duration `yaml:"default_deadline"`
	ProbeTimeout    Duration `yaml:"probe_timeout"`
	FreshnessWindow Duration `yaml:"freshness_window"`
	// HealthCheckInterval enables periodic active probing; 0 leaves the
	// monitor purely passive.
	HealthCheckInterval Duration            `yaml:"health_check_interval"`
	SoftErrorRate       float64             `yaml:"soft_error_rate"`
	LatencyAlpha        float64             `yaml:"latency_alpha"`
	ErrorAlpha          float64             `yaml:"error_alpha"`
	EmbeddedBackendID   string              `yaml:"embedded_backend_id"`
	StaticPriorities    map[string][]string `yaml:"static_priorities"` // category -> backend ids
	RecommendTopK       int                 `yaml:"recommend_top_k"`
}

// CheckpointConfig controls learning-state persistence.
type CheckpointConfig struct {
	Dir      string   `yaml:"dir"`
	Interval Duration `yaml:"interval"`
	InMemory bool     `yaml:"in_memory"`
}

// Load reads configuration from a YAML file, applies defaults and env
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &ConfigurationError{Field: "file", Reason: err.Error()}
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, &ConfigurationError{Field: "file", Reason: err.Error()}
		}
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration: an embedded responder plus a
// local and an external inference backend.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  Duration(15 * time.Second),
			WriteTimeout: Duration(15 * time.Second),
		},
		Redis: RedisConfig{
			Port: 6379,
			TTL:  Duration(10 * time.Minute),
		},
		App: AppConfig{
			Name:     "driftroute",
			Version:  "0.1.0",
			LogLevel: "info",
		},
		Backends: []BackendConfig{
			{
				ID:              "embedded-rules",
				Kind:            string(types.KindEmbedded),
				CostPerCall:     0,
				MaxResponseTime: Duration(50 * time.Millisecond),
				// Zero means "never trips": the embedded responder is the
				// emergency path and is exempt from circuit breaking.
				FailureThreshold: 0,
				Capabilities:     []string{"chat", "rules"},
			},
			{
				ID:               "local-llm",
				Kind:             string(types.KindLocal),
				Endpoint:         "http://localhost:11434/api/generate",
				CostPerCall:      0.0001,
				MaxResponseTime:  Duration(10 * time.Second),
				FailureThreshold: 3,
				CoolDown:         Duration(30 * time.Second),
				Capabilities:     []string{"chat", "reasoning"},
			},
			{
				ID:               "external-api",
				Kind:             string(types.KindExternal),
				Endpoint:         "https://api.example.com/v1/generate",
				CostPerCall:      0.002,
				MaxResponseTime:  Duration(15 * time.Second),
				FailureThreshold: 5,
				CoolDown:         Duration(60 * time.Second),
				Capabilities:     []string{"chat", "reasoning", "quality"},
			},
		},
		Profiler: ProfilerConfig{
			Weights: FeatureWeights{
				Length:        0.15,
				WordCount:     0.15,
				SentenceCount: 0.10,
				Interrogative: 0.15,
				Emotional:     0.15,
				Decision:      0.15,
				Urgency:       0.15,
			},
			Thresholds: LevelThresholds{
				Trivial:  0.2,
				Simple:   0.4,
				Moderate: 0.6,
				Complex:  0.8,
			},
		},
		Learning: LearningConfig{
			Alpha:             0.1,
			Gamma:             0.9,
			Epsilon:           0.2,
			EpsilonDecay:      0.995,
			MinEpsilon:        0.02,
			ReplayCapacity:    10000,
			ReplayBatchSize:   32,
			ReplayFrequency:   10,
			ExplorationPolicy: "epsilon-greedy",
			UCBConstant:       1.4,
			SoftmaxTau:        0.5,
		},
		Reward: RewardConfig{
			SuccessBonus:     0.4,
			LatencyWeight:    0.3,
			ConfidenceWeight: 0.3,
			ErrorPenalty:     -1.0,
			LatencyBudget:    Duration(5 * time.Second),
		},
		Routing: RoutingConfig{
			DefaultDeadline:     Duration(30 * time.Second),
			ProbeTimeout:        Duration(2 * time.Second),
			FreshnessWindow:     Duration(5 * time.Minute),
			HealthCheckInterval: Duration(time.Minute),
			SoftErrorRate:       0.3,
			LatencyAlpha:        0.2,
			ErrorAlpha:          0.1,
			EmbeddedBackendID:   "embedded-rules",
			RecommendTopK:       3,
			StaticPriorities: map[string][]string{
				string(types.CategoryQuestion):  {"local-llm", "external-api"},
				string(types.CategoryTask):      {"external-api", "local-llm"},
				string(types.CategoryEmotional): {"local-llm", "external-api"},
				string(types.CategoryDecision):  {"external-api", "local-llm"},
				string(types.CategoryGeneral):   {"local-llm", "external-api"},
			},
		},
		Checkpoint: CheckpointConfig{
			Dir:      "./data/qtable",
			Interval: Duration(5 * time.Minute),
		},
	}
}

// applyEnvOverrides lets deployment environments adjust operational knobs
// without editing the config file.
func applyEnvOverrides(cfg *Config) {
	cfg.Server.Host = getEnv("DRIFTROUTE_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvAsInt("DRIFTROUTE_PORT", cfg.Server.Port)
	cfg.Redis.Host = getEnv("REDIS_HOST", cfg.Redis.Host)
	cfg.Redis.Port = getEnvAsInt("REDIS_PORT", cfg.Redis.Port)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.App.LogLevel = getEnv("LOG_LEVEL", cfg.App.LogLevel)
	cfg.Checkpoint.Dir = getEnv("DRIFTROUTE_CHECKPOINT_DIR", cfg.Checkpoint.Dir)
}

// applyDefaults fills zero values that a partial YAML file may leave behind.
func applyDefaults(cfg *Config) {
	if cfg.Routing.DefaultDeadline == 0 {
		cfg.Routing.DefaultDeadline = Duration(30 * time.Second)
	}
	if cfg.Routing.ProbeTimeout == 0 {
		cfg.Routing.ProbeTimeout = Duration(2 * time.Second)
	}
	if cfg.Routing.FreshnessWindow == 0 {
		cfg.Routing.FreshnessWindow = Duration(5 * time.Minute)
	}
	if cfg.Routing.SoftErrorRate == 0 {
		cfg.Routing.SoftErrorRate = 0.3
	}
	if cfg.Routing.LatencyAlpha == 0 {
		cfg.Routing.LatencyAlpha = 0.2
	}
	if cfg.Routing.ErrorAlpha == 0 {
		cfg.Routing.ErrorAlpha = 0.1
	}
	if cfg.Routing.RecommendTopK == 0 {
		cfg.Routing.RecommendTopK = 3
	}
	if cfg.Learning.ReplayCapacity == 0 {
		cfg.Learning.ReplayCapacity = 10000
	}
	if cfg.Learning.ReplayBatchSize == 0 {
		cfg.Learning.ReplayBatchSize = 32
	}
	if cfg.Learning.ReplayFrequency == 0 {
		cfg.Learning.ReplayFrequency = 10
	}
	if cfg.Learning.ExplorationPolicy == "" {
		cfg.Learning.ExplorationPolicy = "epsilon-greedy"
	}
	if cfg.Reward.LatencyBudget == 0 {
		cfg.Reward.LatencyBudget = Duration(5 * time.Second)
	}
	for i := range cfg.Backends {
		b := &cfg.Backends[i]
		if b.MaxResponseTime == 0 {
			b.MaxResponseTime = Duration(10 * time.Second)
		}
		if b.CoolDown == 0 && b.Kind != string(types.KindEmbedded) {
			b.CoolDown = Duration(30 * time.Second)
		}
	}
}

// Validate checks the registry and thresholds. Any violation is fatal at
// startup; routing never sees an invalid configuration.
func (c *Config) Validate() error {
	if len(c.Backends) == 0 {
		return &ConfigurationError{Field: "backends", Reason: "at least one backend required"}
	}

	seen := make(map[string]bool, len(c.Backends))
	embeddedCount := 0
	for _, b := range c.Backends {
		if b.ID == "" {
			return &ConfigurationError{Field: "backends.id", Reason: "backend id must not be empty"}
		}
		if seen[b.ID] {
			return &ConfigurationError{Field: "backends.id", Reason: fmt.Sprintf("duplicate backend id %q", b.ID)}
		}
		seen[b.ID] = true

		switch types.BackendKind(b.Kind) {
		case types.KindEmbedded:
			embeddedCount++
		case types.KindLocal, types.KindExternal:
			if b.Endpoint == "" {
				return &ConfigurationError{Field: "backends.endpoint", Reason: fmt.Sprintf("backend %q needs an endpoint", b.ID)}
			}
		case types.KindHybrid:
			if b.LocalDelegate == "" || b.ExternalDelegate == "" {
				return &ConfigurationError{Field: "backends.delegates", Reason: fmt.Sprintf("hybrid backend %q needs local and external delegates", b.ID)}
			}
		default:
			return &ConfigurationError{Field: "backends.kind", Reason: fmt.Sprintf("unknown kind %q for backend %q", b.Kind, b.ID)}
		}

		if b.FailureThreshold < 0 {
			return &ConfigurationError{Field: "backends.failure_threshold", Reason: "must not be negative"}
		}
		if b.CostPerCall < 0 {
			return &ConfigurationError{Field: "backends.cost_per_call", Reason: "must not be negative"}
		}
	}

	if embeddedCount == 0 {
		return &ConfigurationError{Field: "backends", Reason: "an embedded backend is required as the emergency path"}
	}
	if c.Routing.EmbeddedBackendID == "" || !seen[c.Routing.EmbeddedBackendID] {
		return &ConfigurationError{Field: "routing.embedded_backend_id", Reason: "must name a registered embedded backend"}
	}
	for _, b := range c.Backends {
		if types.BackendKind(b.Kind) == types.KindHybrid {
			if !seen[b.LocalDelegate] || !seen[b.ExternalDelegate] {
				return &ConfigurationError{Field: "backends.delegates", Reason: fmt.Sprintf("hybrid backend %q references unregistered delegates", b.ID)}
			}
		}
	}

	if c.Learning.Alpha < 0 || c.Learning.Alpha > 1 {
		return &ConfigurationError{Field: "learning.alpha", Reason: "must be in [0,1]"}
	}
	if c.Learning.Gamma < 0 || c.Learning.Gamma >= 1 {
		return &ConfigurationError{Field: "learning.gamma", Reason: "must be in [0,1)"}
	}
	if c.Learning.Epsilon < 0 || c.Learning.Epsilon > 1 {
		return &ConfigurationError{Field: "learning.epsilon", Reason: "must be in [0,1]"}
	}
	if c.Learning.MinEpsilon < 0 || c.Learning.MinEpsilon > c.Learning.Epsilon {
		return &ConfigurationError{Field: "learning.min_epsilon", Reason: "must be in [0, epsilon]"}
	}
	if c.Learning.EpsilonDecay <= 0 || c.Learning.EpsilonDecay > 1 {
		return &ConfigurationError{Field: "learning.epsilon_decay", Reason: "must be in (0,1]"}
	}
	switch c.Learning.ExplorationPolicy {
	case "epsilon-greedy", "ucb", "softmax":
	default:
		return &ConfigurationError{Field: "learning.exploration_policy", Reason: fmt.Sprintf("unknown policy %q", c.Learning.ExplorationPolicy)}
	}

	th := c.Profiler.Thresholds
	if !(th.Trivial > 0 && th.Trivial < th.Simple && th.Simple < th.Moderate && th.Moderate < th.Complex && th.Complex < 1) {
		return &ConfigurationError{Field: "profiler.thresholds", Reason: "must be strictly increasing within (0,1)"}
	}

	for category, ids := range c.Routing.StaticPriorities {
		for _, id := range ids {
			if !seen[id] {
				return &ConfigurationError{Field: "routing.static_priorities", Reason: fmt.Sprintf("category %q references unregistered backend %q", category, id)}
			}
		}
	}

	return nil
}

// GetRedisAddr returns the Redis connection address.
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// GetServerAddr returns the server address.
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// CacheEnabled reports whether the response cache is configured.
func (c *Config) CacheEnabled() bool {
	return c.Redis.Host != ""
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}
