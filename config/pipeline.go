package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// PipelineConfig tunes the split/convert/merge pipeline. It is loaded
// from an optional yaml file; every field has a sane default so the
// pipeline runs with no file at all.
type PipelineConfig struct {
	// SplitThreshold is the page count above which a document is split.
	SplitThreshold int `yaml:"splitThreshold"`
	// SplitSize is the maximum number of pages per part.
	SplitSize int `yaml:"splitSize"`
	// MaxRetries bounds per-part storage retries.
	MaxRetries int `yaml:"maxRetries"`
	// RetryDelay is how long a retry waits in the delay queue before
	// redelivery.
	RetryDelay time.Duration `yaml:"retryDelay"`

	Concurrency    int            `yaml:"concurrency"`
	Queues         map[string]int `yaml:"queues"`
	ProcessTimeout time.Duration  `yaml:"processTimeout"`

	// MaxUploadSize bounds ingested PDFs, in bytes.
	MaxUploadSize int64 `yaml:"maxUploadSize"`
	// StorageBackend selects the object store: "minio" or "s3".
	StorageBackend string `yaml:"storageBackend"`
	// UploadWorkers limits concurrent part uploads during ingest.
	UploadWorkers int `yaml:"uploadWorkers"`
}

// DefaultPipelineConfig returns the process-wide defaults.
func DefaultPipelineConfig() *PipelineConfig {
	return &PipelineConfig{
		SplitThreshold: 50,
		SplitSize:      20,
		MaxRetries:     3,
		RetryDelay:     time.Minute,
		Concurrency:    10,
		Queues: map[string]int{
			"critical": 6,
			"default":  3,
			"low":      1,
		},
		ProcessTimeout: 30 * time.Minute,
		MaxUploadSize:  200 * 1024 * 1024,
		StorageBackend: "minio",
		UploadWorkers:  4,
	}
}

// LoadPipelineConfig reads path over the defaults. An empty path or a
// missing file yields the defaults unchanged.
func LoadPipelineConfig(path string) (*PipelineConfig, error) {
	cfg := DefaultPipelineConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read pipeline config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse pipeline config: %w", err)
	}

	if cfg.SplitThreshold <= 0 || cfg.SplitSize <= 0 {
		return nil, fmt.Errorf("splitThreshold and splitSize must be positive")
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("maxRetries must not be negative")
	}
	return cfg, nil
}
