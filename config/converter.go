package config

import (
	"os"
	"strconv"
	"sync"
	"time"
)

var (
	converterOnce   sync.Once
	converterConfig *ConverterConfig
)

// ConverterConfig points at the external markdown conversion service.
type ConverterConfig struct {
	Endpoint    string
	Timeout     time.Duration
	MaxAttempts uint
}

func GetConverterConfig() *ConverterConfig {
	converterOnce.Do(func() {
		loadEnv()

		timeout := 5 * time.Minute
		if raw := os.Getenv("CONVERTER_TIMEOUT_SECONDS"); raw != "" {
			if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
				timeout = time.Duration(parsed) * time.Second
			}
		}

		attempts := uint(3)
		if raw := os.Getenv("CONVERTER_MAX_ATTEMPTS"); raw != "" {
			if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
				attempts = uint(parsed)
			}
		}

		converterConfig = &ConverterConfig{
			Endpoint:    getenv("CONVERTER_ENDPOINT", "http://localhost:8000/convert/pdf"),
			Timeout:     timeout,
			MaxAttempts: attempts,
		}
	})
	return converterConfig
}
