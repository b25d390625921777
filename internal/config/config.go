package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Common contains Elasticsearch parameters shared by every service.
type Common struct {
	ElasticsearchAddr  string
	ElasticsearchIndex string
}

// Kafka locates the source archive topic.
type Kafka struct {
	KafkaBrokers []string
	KafkaTopic   string
}

// API holds configuration for the task server.
type API struct {
	Common
	Kafka
	BindAddr           string
	DefaultPage        int
	MaxPage            int
	ArchiveEnabled     bool
	ResearchAgentURL   string
	ResearchAgentKey   string
	VerifierURL        string
	VerifierKey        string
	AgentTimeout       time.Duration
	AgentRateLimit     float64
	AgentBurst         int
	MaxConcurrentTasks int
	TaskTTL            time.Duration
	PruneInterval      time.Duration
	HistoryDBPath      string
}

// Worker holds configuration for the Kafka -> Elasticsearch archive worker.
type Worker struct {
	Common
	Kafka
	KafkaConsumer    string
	KeywordLimit     int
	KeywordMinLength int
	DedupeCapacity   int
	DedupeTTL        time.Duration
	BatchSize        int
}

// Retention configures the archive cleanup loop.
type Retention struct {
	Common
	Interval  time.Duration
	MaxAge    time.Duration
	BatchSize int
}

// CLI configures newsctl.
type CLI struct {
	APIBaseURL   string
	PollInterval time.Duration
	WaitTimeout  time.Duration
}

func loadCommon(v *values) Common {
	return Common{
		ElasticsearchAddr:  v.getEnv("ELASTICSEARCH_ADDR", "http://elasticsearch:9200"),
		ElasticsearchIndex: v.getEnv("ELASTICSEARCH_INDEX", "sources"),
	}
}

func loadKafka(v *values) Kafka {
	return Kafka{
		KafkaBrokers: splitAndTrim(v.getEnv("KAFKA_BROKERS", "kafka:9092")),
		KafkaTopic:   v.getEnv("KAFKA_TOPIC", "research_sources"),
	}
}

// LoadAPI builds an API config from the environment and CONFIG_FILE.
func LoadAPI() (*API, error) {
	v, err := newValues()
	if err != nil {
		return nil, err
	}

	c := &API{
		Common:             loadCommon(v),
		Kafka:              loadKafka(v),
		BindAddr:           v.getEnv("API_BIND_ADDR", "0.0.0.0:6001"),
		DefaultPage:        v.getInt("API_PAGE_SIZE", 20),
		MaxPage:            v.getInt("API_MAX_PAGE_SIZE", 100),
		ArchiveEnabled:     v.getBool("API_ARCHIVE_ENABLED", true),
		ResearchAgentURL:   v.getEnv("RESEARCH_AGENT_URL", ""),
		ResearchAgentKey:   v.getEnv("RESEARCH_AGENT_API_KEY", ""),
		VerifierURL:        v.getEnv("VERIFIER_URL", ""),
		VerifierKey:        v.getEnv("VERIFIER_API_KEY", ""),
		AgentTimeout:       v.getDuration("AGENT_TIMEOUT", "50m"),
		AgentRateLimit:     v.getFloat("AGENT_RATE_LIMIT", 1),
		AgentBurst:         v.getInt("AGENT_BURST", 2),
		MaxConcurrentTasks: v.getInt("API_MAX_CONCURRENT_TASKS", 4),
		TaskTTL:            v.getDuration("API_TASK_TTL", "24h"),
		PruneInterval:      v.getDuration("API_PRUNE_INTERVAL", "10m"),
		HistoryDBPath:      v.getEnv("HISTORY_DB_PATH", "history.db"),
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
	if c.MaxConcurrentTasks <= 0 {
		return nil, fmt.Errorf("API_MAX_CONCURRENT_TASKS must be positive")
	}
	if c.AgentRateLimit <= 0 {
		return nil, fmt.Errorf("AGENT_RATE_LIMIT must be positive")
	}
	if c.AgentBurst <= 0 {
		return nil, fmt.Errorf("AGENT_BURST must be positive")
	}
	if c.ArchiveEnabled && len(c.KafkaBrokers) == 0 {
		return nil, fmt.Errorf("KAFKA_BROKERS must contain at least one broker when archiving is enabled")
	}

	return c, nil
}

// LoadWorker builds a Worker config from the environment and CONFIG_FILE.
func LoadWorker() (*Worker, error) {
	v, err := newValues()
	if err != nil {
		return nil, err
	}

	c := &Worker{
		Common:           loadCommon(v),
		Kafka:            loadKafka(v),
		KafkaConsumer:    v.getEnv("KAFKA_CONSUMER_GROUP", "source-archiver"),
		KeywordLimit:     v.getInt("WORKER_KEYWORD_LIMIT", 8),
		KeywordMinLength: v.getInt("WORKER_KEYWORD_MIN_LEN", 3),
		DedupeCapacity:   v.getInt("WORKER_DEDUPE_CAPACITY", 20000),
		DedupeTTL:        v.getDuration("WORKER_DEDUPE_TTL", "24h"),
		BatchSize:        v.getInt("WORKER_BATCH_SIZE", 10),
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
	if c.KeywordLimit <= 0 {
		return nil, fmt.Errorf("WORKER_KEYWORD_LIMIT must be positive")
	}
	if c.KeywordMinLength < 0 {
		return nil, fmt.Errorf("WORKER_KEYWORD_MIN_LEN cannot be negative")
	}

	return c, nil
}

// LoadRetention builds a Retention config from the environment and CONFIG_FILE.
func LoadRetention() (*Retention, error) {
	v, err := newValues()
	if err != nil {
		return nil, err
	}

	c := &Retention{
		Common:    loadCommon(v),
		Interval:  v.getDuration("RETENTION_CRON", "24h"),
		MaxAge:    v.getDuration("RETENTION_MAX_AGE", "720h"),
		BatchSize: v.getInt("RETENTION_BATCH_SIZE", 500),
	}

	if c.MaxAge <= 0 {
		return nil, fmt.Errorf("RETENTION_MAX_AGE must be positive")
	}
	if c.Interval <= 0 {
		return nil, fmt.Errorf("RETENTION_CRON must be positive")
	}
	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("RETENTION_BATCH_SIZE must be positive")
	}

	return c, nil
}

// LoadCLI builds the newsctl defaults; flags may override them afterwards.
func LoadCLI() (*CLI, error) {
	v, err := newValues()
	if err != nil {
		return nil, err
	}

	c := &CLI{
		APIBaseURL:   v.getEnv("NEWSCTL_API_URL", "http://localhost:6001"),
		PollInterval: v.getDuration("NEWSCTL_POLL_INTERVAL", "2s"),
		WaitTimeout:  v.getDuration("NEWSCTL_WAIT_TIMEOUT", "50m"),
	}

	if c.PollInterval <= 0 {
		return nil, fmt.Errorf("NEWSCTL_POLL_INTERVAL must be positive")
	}
	return c, nil
}

// values resolves a key from the process environment, then from the optional
// YAML file named by CONFIG_FILE, then from the compiled fallback.
type values struct {
	file map[string]string
}

func newValues() (*values, error) {
	v := &values{file: map[string]string{}}
	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		return v, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	for k, val := range raw {
		switch typed := val.(type) {
		case nil:
		case []any:
			parts := make([]string, 0, len(typed))
			for _, p := range typed {
				parts = append(parts, fmt.Sprint(p))
			}
			v.file[strings.ToUpper(k)] = strings.Join(parts, ",")
		default:
			v.file[strings.ToUpper(k)] = fmt.Sprint(typed)
		}
	}
	return v, nil
}

func (v *values) getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	if val, ok := v.file[key]; ok && val != "" {
		return val
	}
	return fallback
}

func (v *values) getInt(key string, fallback int) int {
	if parsed, err := strconv.Atoi(v.getEnv(key, "")); err == nil {
		return parsed
	}
	return fallback
}

func (v *values) getFloat(key string, fallback float64) float64 {
	if parsed, err := strconv.ParseFloat(v.getEnv(key, ""), 64); err == nil {
		return parsed
	}
	return fallback
}

func (v *values) getBool(key string, fallback bool) bool {
	if parsed, err := strconv.ParseBool(v.getEnv(key, "")); err == nil {
		return parsed
	}
	return fallback
}

func (v *values) getDuration(key, fallback string) time.Duration {
	if d, err := time.ParseDuration(v.getEnv(key, fallback)); err == nil {
		return d
	}
	d, err := time.ParseDuration(fallback)
	if err != nil {
		panic(fmt.Sprintf("invalid fallback duration %q: %v", fallback, err))
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
