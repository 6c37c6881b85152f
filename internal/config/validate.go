package config

import "fmt"

// Validate checks that the configuration has everything the runner needs.
// Returns an error describing the first validation failure, or nil if valid.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database: unknown driver %q", c.Database.Driver)
	}

	switch c.Queue.Backend {
	case "memory":
		if c.Queue.Size <= 0 {
			return fmt.Errorf("queue: size must be positive")
		}
	case "redis":
		if c.Queue.RedisAddr == "" {
			return fmt.Errorf("queue: redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("queue: unknown backend %q", c.Queue.Backend)
	}
	if c.Queue.Concurrency <= 0 {
		return fmt.Errorf("queue: concurrency must be positive")
	}

	if c.Shopify.APIVersion == "" {
		return fmt.Errorf("shopify: api_version is required")
	}
	if c.Generation.BaseURL == "" {
		return fmt.Errorf("generation: base_url is required (set directly or via APP_BASE_URL)")
	}

	if c.Archive.Enabled && c.Archive.Bucket == "" {
		return fmt.Errorf("archive: bucket is required when archive is enabled")
	}

	return nil
}

// RequireWorkerSecret validates the shared secret used by the job endpoints.
// Use this when the HTTP API is actually served.
func (c *Config) RequireWorkerSecret() error {
	if c.Worker.Secret == "" {
		return fmt.Errorf("worker: secret is required (set directly or via WORKER_SECRET)")
	}
	return nil
}
