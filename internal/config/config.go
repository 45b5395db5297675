package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Paths locates the logs and state files shared by every pipeline stage.
type Paths struct {
	RawLog                string
	CleanedLog            string
	CheckpointFile        string
	SeenFile              string
	PublishCheckpointFile string
}

// Common contains Elasticsearch parameters shared by the worker and the API.
type Common struct {
	ElasticsearchAddr  string
	ElasticsearchIndex string
}

// Scraper configures the paginated harvest of the source API.
type Scraper struct {
	Paths
	BaseURL           string
	SearchPath        string
	Projects          []string
	Fields            []string
	PageSize          int
	Politeness        time.Duration
	Timeout           time.Duration
	MaxAttempts       int
	Backoff           time.Duration
	MaxBackoff        time.Duration
	RateLimitCooldown time.Duration
}

// Transformer configures the raw -> cleaned pass.
type Transformer struct {
	Paths
	BatchSize     int
	ProgressEvery int
}

// Exporter configures the tabular export and the optional artifact upload.
type Exporter struct {
	Paths
	Output       string
	Format       string
	Bucket       string
	S3Endpoint   string
	S3AccessKey  string
	S3SecretKey  string
	S3Region     string
	S3UseSSL     bool
	UploadPrefix string
}

// Publisher configures streaming of the cleaned log into Kafka.
type Publisher struct {
	Paths
	KafkaBrokers []string
	KafkaTopic   string
	BatchSize    int
}

// Worker holds configuration for the Kafka -> Elasticsearch worker.
type Worker struct {
	Common
	KafkaBrokers   []string
	KafkaTopic     string
	KafkaConsumer  string
	DedupeCapacity int
	DedupeTTL      time.Duration
	BatchSize      int
}

// API describes HTTP-layer configuration.
type API struct {
	Common
	Paths
	BindAddr    string
	DefaultPage int
	MaxPage     int
}

// file mirrors the optional YAML file named by PIPELINE_CONFIG_FILE. Values
// found there replace built-in defaults; environment variables still win.
type file struct {
	DataDir       string `yaml:"data_dir"`
	CheckpointDir string `yaml:"checkpoint_dir"`
	Source        struct {
		BaseURL    string   `yaml:"base_url"`
		SearchPath string   `yaml:"search_path"`
		Projects   []string `yaml:"projects"`
		Fields     []string `yaml:"fields"`
		PageSize   int      `yaml:"page_size"`
		Politeness string   `yaml:"politeness"`
	} `yaml:"source"`
	Fetch struct {
		Timeout     string `yaml:"timeout"`
		MaxAttempts int    `yaml:"max_attempts"`
		Backoff     string `yaml:"backoff"`
	} `yaml:"fetch"`
	Transform struct {
		BatchSize int `yaml:"batch_size"`
	} `yaml:"transform"`
	Kafka struct {
		Brokers []string `yaml:"brokers"`
		Topic   string   `yaml:"topic"`
	} `yaml:"kafka"`
	Elasticsearch struct {
		Addr  string `yaml:"addr"`
		Index string `yaml:"index"`
	} `yaml:"elasticsearch"`
}

var defaultFields = []string{"summary", "description", "status", "priority", "reporter", "assignee", "comment", "created", "updated", "labels"}

func loadFile() (*file, error) {
	f := &file{}
	path := getEnv("PIPELINE_CONFIG_FILE", "")
	if path == "" {
		return f, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return f, nil
}

func loadPaths(f *file) Paths {
	dataDir := getEnv("DATA_DIR", or(f.DataDir, "data"))
	cpDir := getEnv("CHECKPOINT_DIR", or(f.CheckpointDir, "checkpoints"))
	return Paths{
		RawLog:                getEnv("RAW_LOG", filepath.Join(dataDir, "raw_issues.jsonl")),
		CleanedLog:            getEnv("CLEANED_LOG", filepath.Join(dataDir, "cleaned_issues.jsonl")),
		CheckpointFile:        getEnv("CHECKPOINT_FILE", filepath.Join(cpDir, "last_checkpoint.json")),
		SeenFile:              getEnv("SEEN_FILE", filepath.Join(cpDir, "seen_hashes.json")),
		PublishCheckpointFile: getEnv("PUBLISH_CHECKPOINT_FILE", filepath.Join(cpDir, "publish_checkpoint.json")),
	}
}

func loadCommon(f *file) Common {
	return Common{
		ElasticsearchAddr:  getEnv("ELASTICSEARCH_ADDR", or(f.Elasticsearch.Addr, "http://elasticsearch:9200")),
		ElasticsearchIndex: getEnv("ELASTICSEARCH_INDEX", or(f.Elasticsearch.Index, "issues")),
	}
}

// LoadScraper builds a Scraper config from the config file and environment.
func LoadScraper() (*Scraper, error) {
	f, err := loadFile()
	if err != nil {
		return nil, err
	}

	projects := f.Source.Projects
	if len(projects) == 0 {
		projects = []string{"HADOOP", "SPARK", "KAFKA"}
	}
	fields := f.Source.Fields
	if len(fields) == 0 {
		fields = defaultFields
	}

	c := &Scraper{
		Paths:             loadPaths(f),
		BaseURL:           getEnv("SOURCE_BASE_URL", or(f.Source.BaseURL, "https://issues.apache.org/jira")),
		SearchPath:        getEnv("SOURCE_SEARCH_PATH", or(f.Source.SearchPath, "/rest/api/2/search")),
		Projects:          splitAndTrim(getEnv("SCRAPER_PROJECTS", strings.Join(projects, ","))),
		Fields:            splitAndTrim(getEnv("SCRAPER_FIELDS", strings.Join(fields, ","))),
		PageSize:          getInt("SCRAPER_PAGE_SIZE", orInt(f.Source.PageSize, 50)),
		Politeness:        getDuration("SCRAPER_POLITENESS", or(f.Source.Politeness, "1s")),
		Timeout:           getDuration("FETCH_TIMEOUT", or(f.Fetch.Timeout, "10s")),
		MaxAttempts:       getInt("FETCH_MAX_ATTEMPTS", orInt(f.Fetch.MaxAttempts, 5)),
		Backoff:           getDuration("FETCH_BACKOFF", or(f.Fetch.Backoff, "2s")),
		MaxBackoff:        getDuration("FETCH_BACKOFF_MAX", "30s"),
		RateLimitCooldown: getDuration("FETCH_RATE_LIMIT_COOLDOWN", "30s"),
	}

	if len(c.Projects) == 0 {
		return nil, fmt.Errorf("SCRAPER_PROJECTS must contain at least one project")
	}
	if c.PageSize <= 0 {
		return nil, fmt.Errorf("SCRAPER_PAGE_SIZE must be positive")
	}
	if c.Politeness < 0 {
		return nil, fmt.Errorf("SCRAPER_POLITENESS cannot be negative")
	}
	if c.MaxAttempts <= 0 {
		return nil, fmt.Errorf("FETCH_MAX_ATTEMPTS must be positive")
	}
	if c.BaseURL == "" {
		return nil, fmt.Errorf("SOURCE_BASE_URL must be set")
	}

	return c, nil
}

// LoadTransformer builds a Transformer config.
func LoadTransformer() (*Transformer, error) {
	f, err := loadFile()
	if err != nil {
		return nil, err
	}

	c := &Transformer{
		Paths:         loadPaths(f),
		BatchSize:     getInt("TRANSFORM_BATCH_SIZE", orInt(f.Transform.BatchSize, 500)),
		ProgressEvery: getInt("PROGRESS_EVERY", 1000),
	}

	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("TRANSFORM_BATCH_SIZE must be positive")
	}
	if c.ProgressEvery < 0 {
		return nil, fmt.Errorf("PROGRESS_EVERY cannot be negative")
	}

	return c, nil
}

// LoadExporter builds an Exporter config.
func LoadExporter() (*Exporter, error) {
	f, err := loadFile()
	if err != nil {
		return nil, err
	}
	paths := loadPaths(f)

	c := &Exporter{
		Paths:        paths,
		Format:       strings.ToLower(getEnv("EXPORT_FORMAT", "csv")),
		Bucket:       getEnv("EXPORT_BUCKET", ""),
		S3Endpoint:   getEnv("EXPORT_S3_ENDPOINT", ""),
		S3AccessKey:  getEnv("EXPORT_S3_ACCESS_KEY", ""),
		S3SecretKey:  getEnv("EXPORT_S3_SECRET_KEY", ""),
		S3Region:     getEnv("EXPORT_S3_REGION", ""),
		S3UseSSL:     getBool("EXPORT_S3_USE_SSL", true),
		UploadPrefix: getEnv("EXPORT_UPLOAD_PREFIX", "exports"),
	}
	c.Output = getEnv("EXPORT_OUTPUT", strings.TrimSuffix(paths.CleanedLog, filepath.Ext(paths.CleanedLog))+"."+c.Format)

	if c.Format != "csv" && c.Format != "parquet" {
		return nil, fmt.Errorf("EXPORT_FORMAT must be csv or parquet")
	}
	if c.Bucket != "" && c.S3Endpoint == "" {
		return nil, fmt.Errorf("EXPORT_S3_ENDPOINT must be set when EXPORT_BUCKET is")
	}

	return c, nil
}

// LoadPublisher builds a Publisher config.
func LoadPublisher() (*Publisher, error) {
	f, err := loadFile()
	if err != nil {
		return nil, err
	}

	c := &Publisher{
		Paths:        loadPaths(f),
		KafkaBrokers: splitAndTrim(getEnv("KAFKA_BROKERS", or(strings.Join(f.Kafka.Brokers, ","), "kafka:9092"))),
		KafkaTopic:   getEnv("KAFKA_TOPIC", or(f.Kafka.Topic, "issues_cleaned")),
		BatchSize:    getInt("PUBLISH_BATCH_SIZE", 100),
	}

	if len(c.KafkaBrokers) == 0 {
		return nil, fmt.Errorf("KAFKA_BROKERS must contain at least one broker")
	}
	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("PUBLISH_BATCH_SIZE must be positive")
	}

	return c, nil
}

// LoadWorker builds a Worker config from environment variables.
func LoadWorker() (*Worker, error) {
	f, err := loadFile()
	if err != nil {
		return nil, err
	}

	c := &Worker{
		Common:         loadCommon(f),
		KafkaBrokers:   splitAndTrim(getEnv("KAFKA_BROKERS", or(strings.Join(f.Kafka.Brokers, ","), "kafka:9092"))),
		KafkaTopic:     getEnv("KAFKA_TOPIC", or(f.Kafka.Topic, "issues_cleaned")),
		KafkaConsumer:  getEnv("KAFKA_CONSUMER_GROUP", "issue-indexer"),
		DedupeCapacity: getInt("WORKER_DEDUPE_CAPACITY", 20000),
		DedupeTTL:      getDuration("WORKER_DEDUPE_TTL", "24h"),
		BatchSize:      getInt("WORKER_BATCH_SIZE", 10),
	}

	if len(c.KafkaBrokers) == 0 {
		return nil, fmt.Errorf("KAFKA_BROKERS must contain at least one broker")
	}
	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("WORKER_BATCH_SIZE must be positive")
	}
	if c.DedupeCapacity <= 0 {
		return nil, fmt.Errorf("WORKER_DEDUPE_CAPACITY must be positive")
	}

	return c, nil
}

// LoadAPI builds an API config from environment variables.
func LoadAPI() (*API, error) {
	f, err := loadFile()
	if err != nil {
		return nil, err
	}

	c := &API{
		Common:      loadCommon(f),
		Paths:       loadPaths(f),
		BindAddr:    getEnv("API_BIND_ADDR", "0.0.0.0:8080"),
		DefaultPage: getInt("API_PAGE_SIZE", 20),
		MaxPage:     getInt("API_MAX_PAGE_SIZE", 100),
	}

	if c.DefaultPage <= 0 {
		return nil, fmt.Errorf("API_PAGE_SIZE must be positive")
	}
	if c.MaxPage <= 0 {
		return nil, fmt.Errorf("API_MAX_PAGE_SIZE must be positive")
	}
	if c.DefaultPage > c.MaxPage {
		return nil, fmt.Errorf("API_PAGE_SIZE cannot exceed API_MAX_PAGE_SIZE")
	}

	return c, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key, fallback string) time.Duration {
	raw := getEnv(key, fallback)
	d, err := time.ParseDuration(raw)
	if err != nil {
		fd, ferr := time.ParseDuration(fallback)
		if ferr != nil {
			panic(fmt.Sprintf("invalid fallback duration %q: %v", fallback, ferr))
		}
		return fd
	}
	return d
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func or(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

func orInt(v, fallback int) int {
	if v != 0 {
		return v
	}
	return fallback
}
