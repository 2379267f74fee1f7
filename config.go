package modpipe

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// RedisConfig holds configuration for connecting to a Redis server or cluster.
type RedisConfig struct {
	// Address is the host:port of the Redis server/cluster.
	Address string `json:"address" yaml:"address"`
	// Password is the password used to authenticate.
	Password string `json:"password" yaml:"password"`
	// DB is the database index to select.
	DB int `json:"db" yaml:"db"`
}

// CassandraConfig holds configuration for the optional Cassandra content
// archive backend.
type CassandraConfig struct {
	// ClusterHosts lists contact points for the Cassandra cluster.
	ClusterHosts []string `json:"cluster_hosts" yaml:"cluster_hosts"`
	// Keyspace is the keyspace used for pipeline tables.
	Keyspace string `json:"keyspace" yaml:"keyspace"`
}

// Options holds the configuration for the content-processing pipeline.
type Options struct {
	Redis     RedisConfig      `json:"redis" yaml:"redis"`
	Cassandra *CassandraConfig `json:"cassandra,omitempty" yaml:"cassandra,omitempty"`

	// Stream is the durable log topic submissions are appended to.
	Stream string `json:"stream" yaml:"stream"`
	// Group is the consumer group name shared by all worker processes.
	Group string `json:"group" yaml:"group"`
	// BatchSize caps how many pending messages one pull may deliver.
	BatchSize int64 `json:"batch_size" yaml:"batch_size"`
	// BlockTimeout bounds how long a pull blocks waiting for messages.
	BlockTimeout time.Duration `json:"block_timeout" yaml:"block_timeout"`
	// IdleSleep is the pause between pulls when the log is empty.
	IdleSleep time.Duration `json:"idle_sleep" yaml:"idle_sleep"`

	// EmbeddingDim is the vector dimension registered with the index.
	EmbeddingDim int `json:"embedding_dim" yaml:"embedding_dim"`
	// SimilarityThreshold drops query hits whose cosine similarity is below it.
	SimilarityThreshold float64 `json:"similarity_threshold" yaml:"similarity_threshold"`

	// MetricRetention is the retention window passed to series creation.
	MetricRetention time.Duration `json:"metric_retention" yaml:"metric_retention"`
	// ProcessedTTL bounds the lifetime of processed-id suppression keys.
	ProcessedTTL time.Duration `json:"processed_ttl" yaml:"processed_ttl"`
}

// DefaultOptions returns Options preconfigured for a local Redis Stack.
func DefaultOptions() Options {
	return Options{
		Redis: RedisConfig{
			Address: "localhost:6379",
		},
		Stream:              "content:stream",
		Group:               "content:processors",
		BatchSize:           10,
		BlockTimeout:        5 * time.Second,
		IdleSleep:           1 * time.Second,
		EmbeddingDim:        384,
		SimilarityThreshold: 0.7,
		MetricRetention:     24 * time.Hour,
		ProcessedTTL:        time.Hour,
	}
}

// fileOptions mirrors Options for YAML parsing; durations are strings in
// time.ParseDuration form (e.g. "5s", "24h").
type fileOptions struct {
	Redis     *RedisConfig     `yaml:"redis"`
	Cassandra *CassandraConfig `yaml:"cassandra"`

	Stream    string `yaml:"stream"`
	Group     string `yaml:"group"`
	BatchSize int64  `yaml:"batch_size"`

	BlockTimeout string `yaml:"block_timeout"`
	IdleSleep    string `yaml:"idle_sleep"`

	EmbeddingDim        int     `yaml:"embedding_dim"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`

	MetricRetention string `yaml:"metric_retention"`
	ProcessedTTL    string `yaml:"processed_ttl"`
}

// LoadOptions reads a YAML config file and overlays it on DefaultOptions.
func LoadOptions(path string) (Options, error) {
	opts := DefaultOptions()
	ba, err := os.ReadFile(path)
	if err != nil {
		return opts, fmt.Errorf("reading config %s: %w", path, err)
	}
	var fo fileOptions
	if err := yaml.Unmarshal(ba, &fo); err != nil {
		return opts, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if fo.Redis != nil {
		opts.Redis = *fo.Redis
	}
	opts.Cassandra = fo.Cassandra
	if fo.Stream != "" {
		opts.Stream = fo.Stream
	}
	if fo.Group != "" {
		opts.Group = fo.Group
	}
	if fo.BatchSize > 0 {
		opts.BatchSize = fo.BatchSize
	}
	if fo.EmbeddingDim > 0 {
		opts.EmbeddingDim = fo.EmbeddingDim
	}
	if fo.SimilarityThreshold > 0 {
		opts.SimilarityThreshold = fo.SimilarityThreshold
	}
	for _, d := range []struct {
		raw    string
		target *time.Duration
	}{
		{fo.BlockTimeout, &opts.BlockTimeout},
		{fo.IdleSleep, &opts.IdleSleep},
		{fo.MetricRetention, &opts.MetricRetention},
		{fo.ProcessedTTL, &opts.ProcessedTTL},
	} {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return opts, fmt.Errorf("parsing config %s: %w", path, err)
		}
		*d.target = v
	}
	return opts, nil
}
