package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Hermes      HermesConfig      `yaml:"hermes"`
	Executor    ExecutorConfig    `yaml:"executor"`
	Scaffold    ScaffoldConfig    `yaml:"scaffold"`
	Profiles    ProfilesConfig    `yaml:"profiles"`
	Scoring     ScoringConfig     `yaml:"scoring"`
	Resources   ResourcesConfig   `yaml:"resources"`
	Ticketing   TicketingConfig   `yaml:"ticketing"`
	Dispatch    DispatchConfig    `yaml:"dispatch"`
	Enforcement EnforcementConfig `yaml:"enforcement"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type ServerConfig struct {
	Port        int    `yaml:"port"`
	MetricsPort int    `yaml:"metrics_port"`
	AdminToken  string `yaml:"admin_token"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type HermesConfig struct {
	URL string `yaml:"url"`
}

type ExecutorConfig struct {
	URL       string `yaml:"url"`
	Token     string `yaml:"token"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

type ScaffoldConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

// ProfilesConfig names the three profile tier directories in precedence
// order: project overrides user overrides system.
type ProfilesConfig struct {
	ProjectDir string `yaml:"project_dir"`
	UserDir    string `yaml:"user_dir"`
	SystemDir  string `yaml:"system_dir"`
	CacheSize  int    `yaml:"cache_size"`
	WatchDirs  bool   `yaml:"watch_dirs"`
}

type ScoringConfig struct {
	Weights  ScoringWeights `yaml:"weights"`
	Brackets BracketBounds  `yaml:"brackets"`
}

type ScoringWeights struct {
	Verb         float64 `yaml:"verb"`
	Volume       float64 `yaml:"volume"`
	Scope        float64 `yaml:"scope"`
	Coordination float64 `yaml:"coordination"`
}

// BracketBounds are the inclusive upper bounds of the first four complexity
// brackets. Anything above Complex is expert.
type BracketBounds struct {
	Trivial  int `yaml:"trivial"`
	Simple   int `yaml:"simple"`
	Moderate int `yaml:"moderate"`
	Complex  int `yaml:"complex"`
}

type ResourcesConfig struct {
	DefaultTier string            `yaml:"default_tier"`
	Tiers       []ResourceTierDef `yaml:"tiers"`
}

type ResourceTierDef struct {
	Name            string   `yaml:"name"`
	Models          []string `yaml:"models"`
	MaxOutputTokens int      `yaml:"max_output_tokens"`
}

type TicketingConfig struct {
	AutoOpenItemThreshold int `yaml:"auto_open_item_threshold"`
}

type DispatchConfig struct {
	MaxConcurrent int `yaml:"max_concurrent"`
	QueueDepth    int `yaml:"queue_depth"`
}

type EnforcementConfig struct {
	AllowLists    map[string][]string `yaml:"allow_lists"`
	CategoryGlobs map[string][]string `yaml:"category_globs"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func (c *Config) ExecutorTimeout() time.Duration {
	return time.Duration(c.Executor.TimeoutMs) * time.Millisecond
}

func Load(path string) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:        8700,
			MetricsPort: 8701,
		},
		Hermes: HermesConfig{
			URL: "nats://localhost:4222",
		},
		Executor: ExecutorConfig{
			URL:       "http://localhost:8710",
			TimeoutMs: 120000,
		},
		Scaffold: ScaffoldConfig{
			URL: "http://localhost:8720",
		},
		Profiles: ProfilesConfig{
			ProjectDir: ".foreman/agent-roles",
			UserDir:    expandHome("~/.foreman/agent-roles"),
			SystemDir:  "/etc/foreman/agent-roles",
			CacheSize:  64,
			WatchDirs:  true,
		},
		Scoring: ScoringConfig{
			Weights: ScoringWeights{
				Verb:         0.30,
				Volume:       0.20,
				Scope:        0.25,
				Coordination: 0.25,
			},
			Brackets: BracketBounds{
				Trivial:  20,
				Simple:   40,
				Moderate: 60,
				Complex:  80,
			},
		},
		Resources: ResourcesConfig{
			DefaultTier: "standard",
			Tiers: []ResourceTierDef{
				{Name: "lightweight", Models: []string{"swift-mini"}, MaxOutputTokens: 4096},
				{Name: "standard", Models: []string{"swift-core"}, MaxOutputTokens: 16384},
				{Name: "standard-plus", Models: []string{"swift-core-x"}, MaxOutputTokens: 32768},
				{Name: "advanced", Models: []string{"swift-max"}, MaxOutputTokens: 65536},
			},
		},
		Ticketing: TicketingConfig{
			AutoOpenItemThreshold: 3,
		},
		Dispatch: DispatchConfig{
			MaxConcurrent: 5,
			QueueDepth:    256,
		},
		Enforcement: EnforcementConfig{
			AllowLists: map[string][]string{
				"orchestrator":  {"coordination"},
				"engineer":      {"source_code", "tests", "scaffolding"},
				"qa":            {"tests", "configuration"},
				"research":      {"research"},
				"security":      {"source_code", "configuration", "research"},
				"documentation": {"coordination", "research"},
				"ops":           {"configuration", "scaffolding"},
			},
			CategoryGlobs: map[string][]string{
				"tests":         {"*_test.go", "tests/**", "test/**"},
				"source_code":   {"*.go", "src/**", "internal/**", "cmd/**"},
				"configuration": {"*.yaml", "*.yml", "*.toml", "*.env", "deploy/**", "Dockerfile"},
				"coordination":  {"*.md", "docs/**", "tickets/**"},
				"research":      {"research/**", "notes/**"},
				"scaffolding":   {"templates/**", "scaffold/**"},
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	w := cfg.Scoring.Weights
	sum := w.Verb + w.Volume + w.Scope + w.Coordination
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("scoring weights sum to %.4f, must sum to 1.0", sum)
	}
	b := cfg.Scoring.Brackets
	if !(b.Trivial < b.Simple && b.Simple < b.Moderate && b.Moderate < b.Complex && b.Complex < 100) {
		return fmt.Errorf("bracket bounds must be strictly increasing below 100: %+v", b)
	}
	if cfg.Dispatch.MaxConcurrent < 1 {
		return fmt.Errorf("dispatch.max_concurrent must be >= 1, got %d", cfg.Dispatch.MaxConcurrent)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("FOREMAN_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = n
		}
	}
	if v := os.Getenv("FOREMAN_METRICS_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.MetricsPort = n
		}
	}
	if v := os.Getenv("FOREMAN_ADMIN_TOKEN"); v != "" {
		cfg.Server.AdminToken = v
	}
	if v := os.Getenv("FOREMAN_DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("FOREMAN_HERMES_URL"); v != "" {
		cfg.Hermes.URL = v
	}
	if v := os.Getenv("FOREMAN_EXECUTOR_URL"); v != "" {
		cfg.Executor.URL = v
	}
	if v := os.Getenv("FOREMAN_EXECUTOR_TOKEN"); v != "" {
		cfg.Executor.Token = v
	}
	if v := os.Getenv("FOREMAN_SCAFFOLD_URL"); v != "" {
		cfg.Scaffold.URL = v
	}
	if v := os.Getenv("FOREMAN_PROFILES_PROJECT_DIR"); v != "" {
		cfg.Profiles.ProjectDir = v
	}
	if v := os.Getenv("FOREMAN_PROFILES_USER_DIR"); v != "" {
		cfg.Profiles.UserDir = v
	}
	if v := os.Getenv("FOREMAN_PROFILES_SYSTEM_DIR"); v != "" {
		cfg.Profiles.SystemDir = v
	}
	if v := os.Getenv("FOREMAN_MAX_CONCURRENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Dispatch.MaxConcurrent = n
		}
	}
	if v := os.Getenv("FOREMAN_AUTO_OPEN_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ticketing.AutoOpenItemThreshold = n
		}
	}
	if v := os.Getenv("FOREMAN_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func expandHome(p string) string {
	if len(p) >= 2 && p[:2] == "~/" {
		if home, err := os.UserHomeDir(); err == nil {
			return home + p[1:]
		}
	}
	return p
}
