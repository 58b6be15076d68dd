package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the forensics engine.
type Config struct {
	General   GeneralConfig   `yaml:"general"`
	Cycle     CycleConfig     `yaml:"cycle"`
	Smurfing  SmurfingConfig  `yaml:"smurfing"`
	Shell     ShellConfig     `yaml:"shell"`
	Velocity  VelocityConfig  `yaml:"velocity"`
	Anomaly   AnomalyConfig   `yaml:"anomaly"`
	Composer  ComposerConfig  `yaml:"composer"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type GeneralConfig struct {
	InstanceID string `yaml:"instance_id"`
	LogLevel   string `yaml:"log_level"`
	LogFormat  string `yaml:"log_format"` // json|console
}

// CycleConfig tunes the bounded-DFS cycle detector (§4.2).
type CycleConfig struct {
	MinLength          int     `yaml:"min_length"`
	MaxLength          int     `yaml:"max_length"`
	OpBudgetPerNode    int     `yaml:"op_budget_per_node"`
	GlobalCandidateCap int     `yaml:"global_candidate_cap"`
	MaxRingSize        int     `yaml:"max_ring_size"`
	TemporalWindowH    float64 `yaml:"temporal_window_hours"`
	AmountVariancePct  float64 `yaml:"amount_variance_pct"`
	MinFlowRatio       float64 `yaml:"min_flow_ratio"`
	MaxExternalDegree  int     `yaml:"max_external_degree"`
}

// SmurfingConfig tunes the aggregator/disperser sliding-window detector (§4.3).
type SmurfingConfig struct {
	WindowHours       float64 `yaml:"window_hours"`
	MinWindowEdges    int     `yaml:"min_window_edges"`
	MaxAmountCV       float64 `yaml:"max_amount_cv"`
	MaxRetentionRatio float64 `yaml:"max_retention_ratio"`
	MaxHoldingHours   float64 `yaml:"max_holding_hours"`
}

// ShellConfig tunes the passthrough-chain detector (§4.4).
type ShellConfig struct {
	MinCandidateDegree  int     `yaml:"min_candidate_degree"`
	MaxCandidateDegree  int     `yaml:"max_candidate_degree"`
	MinPassthroughRatio float64 `yaml:"min_passthrough_ratio"`
	MaxLifetimeFraction float64 `yaml:"max_lifetime_fraction"`
	MaxChainLength      int     `yaml:"max_chain_length"`
	GlobalStepBudget    int     `yaml:"global_step_budget"`
}

// VelocityConfig tunes the in-then-out turnover detector (§4.5).
type VelocityConfig struct {
	MaxTurnoverMinutes int     `yaml:"max_turnover_minutes"`
	MinOutRatio        float64 `yaml:"min_out_ratio"`
}

// AnomalyConfig tunes the isolation-forest anomaly model (§4.6).
type AnomalyConfig struct {
	NumTrees      int     `yaml:"num_trees"`
	SubsampleSize int     `yaml:"subsample_size"`
	MaxBonus      float64 `yaml:"max_bonus"`
	RandomSeed    int64   `yaml:"random_seed"`
}

// ComposerConfig tunes the §4.7 suspicion composer's thresholds.
type ComposerConfig struct {
	ZeroOutThreshold int `yaml:"zero_out_threshold"`
	ClusterBoost     int `yaml:"cluster_boost"`
}

type MetricsConfig struct {
	PrometheusPort int  `yaml:"prometheus_port"`
	Enabled        bool `yaml:"enabled"`
}

// Default returns a Config with every field set to its built-in default,
// for callers that have no config file to load (e.g. the CLI falling
// back when the configured path doesn't exist).
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads and parses a YAML configuration file, expanding
// ${VAR}-style environment references before unmarshaling, then fills
// in any zero-valued field with its built-in default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.General.InstanceID == "" {
		cfg.General.InstanceID = "sentinel-1"
	}
	if cfg.General.LogLevel == "" {
		cfg.General.LogLevel = "info"
	}
	if cfg.General.LogFormat == "" {
		cfg.General.LogFormat = "json"
	}

	if cfg.Cycle.MinLength == 0 {
		cfg.Cycle.MinLength = 3
	}
	if cfg.Cycle.MaxLength == 0 {
		cfg.Cycle.MaxLength = 5
	}
	if cfg.Cycle.OpBudgetPerNode == 0 {
		cfg.Cycle.OpBudgetPerNode = 5000
	}
	if cfg.Cycle.GlobalCandidateCap == 0 {
		cfg.Cycle.GlobalCandidateCap = 2000
	}
	if cfg.Cycle.MaxRingSize == 0 {
		cfg.Cycle.MaxRingSize = 30
	}
	if cfg.Cycle.TemporalWindowH == 0 {
		cfg.Cycle.TemporalWindowH = 72
	}
	if cfg.Cycle.AmountVariancePct == 0 {
		cfg.Cycle.AmountVariancePct = 0.15
	}
	if cfg.Cycle.MinFlowRatio == 0 {
		cfg.Cycle.MinFlowRatio = 0.70
	}
	if cfg.Cycle.MaxExternalDegree == 0 {
		cfg.Cycle.MaxExternalDegree = 5
	}

	if cfg.Smurfing.WindowHours == 0 {
		cfg.Smurfing.WindowHours = 72
	}
	if cfg.Smurfing.MinWindowEdges == 0 {
		cfg.Smurfing.MinWindowEdges = 10
	}
	if cfg.Smurfing.MaxAmountCV == 0 {
		cfg.Smurfing.MaxAmountCV = 0.40
	}
	if cfg.Smurfing.MaxRetentionRatio == 0 {
		cfg.Smurfing.MaxRetentionRatio = 0.50
	}
	if cfg.Smurfing.MaxHoldingHours == 0 {
		cfg.Smurfing.MaxHoldingHours = 30
	}

	if cfg.Shell.MinCandidateDegree == 0 {
		cfg.Shell.MinCandidateDegree = 2
	}
	if cfg.Shell.MaxCandidateDegree == 0 {
		cfg.Shell.MaxCandidateDegree = 3
	}
	if cfg.Shell.MinPassthroughRatio == 0 {
		cfg.Shell.MinPassthroughRatio = 0.80
	}
	if cfg.Shell.MaxLifetimeFraction == 0 {
		cfg.Shell.MaxLifetimeFraction = 0.30
	}
	if cfg.Shell.MaxChainLength == 0 {
		cfg.Shell.MaxChainLength = 7
	}
	if cfg.Shell.GlobalStepBudget == 0 {
		cfg.Shell.GlobalStepBudget = 20000
	}

	if cfg.Velocity.MaxTurnoverMinutes == 0 {
		cfg.Velocity.MaxTurnoverMinutes = 60
	}
	if cfg.Velocity.MinOutRatio == 0 {
		cfg.Velocity.MinOutRatio = 0.50
	}

	if cfg.Anomaly.NumTrees == 0 {
		cfg.Anomaly.NumTrees = 100
	}
	if cfg.Anomaly.SubsampleSize == 0 {
		cfg.Anomaly.SubsampleSize = 256
	}
	if cfg.Anomaly.MaxBonus == 0 {
		cfg.Anomaly.MaxBonus = 15
	}
	if cfg.Anomaly.RandomSeed == 0 {
		cfg.Anomaly.RandomSeed = 42
	}

	if cfg.Composer.ZeroOutThreshold == 0 {
		cfg.Composer.ZeroOutThreshold = 15
	}
	if cfg.Composer.ClusterBoost == 0 {
		cfg.Composer.ClusterBoost = 8
	}

	if cfg.Metrics.PrometheusPort == 0 {
		cfg.Metrics.PrometheusPort = 9090
	}
}
