package redis

import "time"

// Config mirrors the dial/pool knobs a go-redis universal client needs.
// Addresses supports both single-node and cluster/sentinel topologies.
type Config struct {
	Addresses    []string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxRetries   int
}

func (c *Config) withDefaults() *Config {
	out := *c
	if len(out.Addresses) == 0 {
		out.Addresses = []string{"localhost:6379"}
	}
	if out.DialTimeout == 0 {
		out.DialTimeout = 5 * time.Second
	}
	if out.ReadTimeout == 0 {
		out.ReadTimeout = 3 * time.Second
	}
	if out.WriteTimeout == 0 {
		out.WriteTimeout = 3 * time.Second
	}
	return &out
}
