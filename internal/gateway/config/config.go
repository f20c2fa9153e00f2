package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port     string `yaml:"port"`
	Env      string `yaml:"env"`
	LogLevel string `yaml:"logLevel"`
	// TestMode routes contributions to the in-process simulated host.
	TestMode    bool           `yaml:"testMode"`
	Upstream    UpstreamConfig `yaml:"upstream"`
	GitHub      GitHubConfig   `yaml:"github"`
	Sim         SimConfig      `yaml:"sim"`
	Dataset     DatasetConfig  `yaml:"dataset"`
	DatabaseURL string         `yaml:"databaseUrl"`
	Search      SearchConfig   `yaml:"search"`
	CORS        CORSConfig     `yaml:"cors"`
}

type UpstreamConfig struct {
	Owner         string `yaml:"owner"`
	Repo          string `yaml:"repo"`
	DefaultBranch string `yaml:"defaultBranch"`
}

type GitHubConfig struct {
	APIURL            string        `yaml:"apiUrl"`
	Timeout           time.Duration `yaml:"timeout"`
	UserAgent         string        `yaml:"userAgent"`
	RequestsPerSecond float64       `yaml:"requestsPerSecond"`
	Burst             int           `yaml:"burst"`
}

type SimConfig struct {
	MinDelay time.Duration `yaml:"minDelay"`
	MaxDelay time.Duration `yaml:"maxDelay"`
	// PhasePause holds each non-terminal progress state so the UI can show it.
	PhasePause time.Duration `yaml:"phasePause"`
}

type DatasetConfig struct {
	// Source is one of file, s3 or postgres.
	Source string   `yaml:"source"`
	Dir    string   `yaml:"dir"`
	S3     S3Config `yaml:"s3"`
}

type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	UseSSL    bool   `yaml:"useSSL"`
}

func (c S3Config) CanUseS3() bool {
	return strings.TrimSpace(c.Endpoint) != "" &&
		strings.TrimSpace(c.AccessKey) != "" &&
		strings.TrimSpace(c.SecretKey) != "" &&
		strings.TrimSpace(c.Bucket) != ""
}

type SearchConfig struct {
	CacheSize  int      `yaml:"cacheSize"`
	ExcludeIDs []string `yaml:"excludeIds"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

const (
	SourceFile     = "file"
	SourceS3       = "s3"
	SourcePostgres = "postgres"
)

// Load reads .env, the -port and -config flags, the optional YAML file and
// the environment, in increasing order of precedence for everything but the
// port flag, which wins when given.
func Load() (*Config, error) {
	_ = godotenv.Load()

	port := flag.String("port", "", "server port")
	configPath := flag.String("config", strings.TrimSpace(os.Getenv("CONFIG_FILE")), "optional YAML config file")
	flag.Parse()

	cfg, err := LoadFile(*configPath)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(*port) != "" {
		cfg.Port = normalizePort(*port)
	}
	return cfg, nil
}

// LoadFile builds a Config from defaults, the YAML file at path (skipped
// when empty) and the environment.
func LoadFile(path string) (*Config, error) {
	env := firstNonEmpty(strings.TrimSpace(os.Getenv("APP_ENV")), "local")
	cfg := defaults(env)

	if path = strings.TrimSpace(path); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	cfg.Port = normalizePort(cfg.Port)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaults(env string) Config {
	if strings.EqualFold(env, "local") {
		return localConfig()
	}
	return Config{
		Port:     ":8081",
		Env:      env,
		LogLevel: "info",
		Upstream: UpstreamConfig{Owner: "contactdir", Repo: "directory", DefaultBranch: "main"},
		GitHub:   GitHubConfig{Timeout: 8 * time.Second},
		Sim:      SimConfig{MinDelay: 100 * time.Millisecond, MaxDelay: 200 * time.Millisecond, PhasePause: 300 * time.Millisecond},
		Dataset: DatasetConfig{
			Source: SourceFile,
			Dir:    "data/companies",
			S3:     S3Config{Region: "us-east-1", Prefix: "data/companies", UseSSL: true},
		},
		Search: SearchConfig{CacheSize: 512, ExcludeIDs: []string{"twitter"}},
	}
}

func applyEnv(cfg *Config) error {
	cfg.Port = firstNonEmpty(strings.TrimSpace(os.Getenv("PORT")), cfg.Port)
	cfg.Env = firstNonEmpty(strings.TrimSpace(os.Getenv("APP_ENV")), cfg.Env)
	cfg.LogLevel = firstNonEmpty(strings.TrimSpace(os.Getenv("LOG_LEVEL")), cfg.LogLevel)

	cfg.Upstream.Owner = firstNonEmpty(strings.TrimSpace(os.Getenv("UPSTREAM_OWNER")), cfg.Upstream.Owner)
	cfg.Upstream.Repo = firstNonEmpty(strings.TrimSpace(os.Getenv("UPSTREAM_REPO")), cfg.Upstream.Repo)
	cfg.Upstream.DefaultBranch = firstNonEmpty(strings.TrimSpace(os.Getenv("UPSTREAM_DEFAULT_BRANCH")), cfg.Upstream.DefaultBranch, "main")

	cfg.GitHub.APIURL = firstNonEmpty(strings.TrimSpace(os.Getenv("GITHUB_API_URL")), cfg.GitHub.APIURL)
	cfg.GitHub.UserAgent = firstNonEmpty(strings.TrimSpace(os.Getenv("GITHUB_USER_AGENT")), cfg.GitHub.UserAgent)

	cfg.Dataset.Source = strings.ToLower(firstNonEmpty(strings.TrimSpace(os.Getenv("DATASET_SOURCE")), cfg.Dataset.Source))
	cfg.Dataset.Dir = firstNonEmpty(strings.TrimSpace(os.Getenv("DATASET_DIR")), cfg.Dataset.Dir)
	cfg.Dataset.S3.Endpoint = firstNonEmpty(strings.TrimSpace(os.Getenv("DATASET_S3_ENDPOINT")), cfg.Dataset.S3.Endpoint)
	cfg.Dataset.S3.Region = firstNonEmpty(strings.TrimSpace(os.Getenv("DATASET_S3_REGION")), cfg.Dataset.S3.Region)
	cfg.Dataset.S3.AccessKey = firstNonEmpty(strings.TrimSpace(os.Getenv("DATASET_S3_ACCESS_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_USER")), cfg.Dataset.S3.AccessKey)
	cfg.Dataset.S3.SecretKey = firstNonEmpty(strings.TrimSpace(os.Getenv("DATASET_S3_SECRET_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_PASSWORD")), cfg.Dataset.S3.SecretKey)
	cfg.Dataset.S3.Bucket = firstNonEmpty(strings.TrimSpace(os.Getenv("DATASET_S3_BUCKET")), cfg.Dataset.S3.Bucket)
	cfg.Dataset.S3.Prefix = firstNonEmpty(strings.TrimSpace(os.Getenv("DATASET_S3_PREFIX")), cfg.Dataset.S3.Prefix)
	cfg.DatabaseURL = firstNonEmpty(strings.TrimSpace(os.Getenv("DATABASE_URL")), cfg.DatabaseURL)

	if raw := strings.TrimSpace(os.Getenv("SEARCH_EXCLUDE_IDS")); raw != "" {
		cfg.Search.ExcludeIDs = splitList(raw)
	}
	if raw := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS")); raw != "" {
		cfg.CORS.AllowedOrigins = splitList(raw)
	}

	var err error
	if cfg.TestMode, err = envBool("CONTRIB_TEST_MODE", cfg.TestMode); err != nil {
		return err
	}
	if cfg.Dataset.S3.UseSSL, err = envBool("DATASET_S3_USE_SSL", cfg.Dataset.S3.UseSSL); err != nil {
		return err
	}
	if cfg.GitHub.Timeout, err = envDuration("GITHUB_TIMEOUT", cfg.GitHub.Timeout); err != nil {
		return err
	}
	if cfg.Sim.MinDelay, err = envDuration("SIM_DELAY_MIN", cfg.Sim.MinDelay); err != nil {
		return err
	}
	if cfg.Sim.MaxDelay, err = envDuration("SIM_DELAY_MAX", cfg.Sim.MaxDelay); err != nil {
		return err
	}
	if cfg.Sim.PhasePause, err = envDuration("SIM_PHASE_PAUSE", cfg.Sim.PhasePause); err != nil {
		return err
	}
	if cfg.GitHub.Burst, err = envInt("GITHUB_BURST", cfg.GitHub.Burst); err != nil {
		return err
	}
	if cfg.Search.CacheSize, err = envInt("SEARCH_CACHE_SIZE", cfg.Search.CacheSize); err != nil {
		return err
	}
	if raw := strings.TrimSpace(os.Getenv("GITHUB_RPS")); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("GITHUB_RPS: %w", err)
		}
		cfg.GitHub.RequestsPerSecond = v
	}
	return nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Upstream.Owner) == "" || strings.TrimSpace(c.Upstream.Repo) == "" {
		return fmt.Errorf("upstream owner and repo are required")
	}
	switch c.Dataset.Source {
	case SourceFile:
		if strings.TrimSpace(c.Dataset.Dir) == "" {
			return fmt.Errorf("dataset dir is required for the file source")
		}
	case SourceS3:
		if !c.Dataset.S3.CanUseS3() {
			return fmt.Errorf("dataset s3 source needs endpoint, bucket and credentials")
		}
	case SourcePostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres source")
		}
	default:
		return fmt.Errorf("unknown dataset source %q", c.Dataset.Source)
	}
	if c.Sim.MaxDelay < c.Sim.MinDelay {
		return fmt.Errorf("sim max delay %s is below min delay %s", c.Sim.MaxDelay, c.Sim.MinDelay)
	}
	return nil
}

func (c *Config) IsLocal() bool {
	return strings.EqualFold(strings.TrimSpace(c.Env), "local")
}

func normalizePort(p string) string {
	p = strings.TrimSpace(p)
	if p == "" || strings.Contains(p, ":") {
		return p
	}
	return ":" + p
}

func envBool(key string, fallback bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func envInt(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
