package ratelimit

import (
	"net/http"
	"strings"
	"time"
)

// Tier is a named limiter applied to a class of routes.
type Tier struct {
	Name    string
	Limiter *Limiter
}

// Key returns the bucket key of a client in this tier.
func (t *Tier) Key(clientIP string) string {
	return "ip:" + clientIP + ":" + t.Name
}

// Config holds the limiters of the API. Reads are not limited.
type Config struct {
	Write Tier
}

// NewConfig limits mutating requests to writesPerMinute per client IP, with
// the given burst.
func NewConfig(writesPerMinute, burst int) *Config {
	return &Config{
		Write: Tier{
			Name:    "write",
			Limiter: NewLimiter(writesPerMinute, time.Minute, burst),
		},
	}
}

// Match returns the tier for a request, or nil when it is not limited.
func (c *Config) Match(method, path string) *Tier {
	switch {
	case c == nil:
		return nil
	case method == http.MethodPost:
		return &c.Write
	case method == http.MethodGet && strings.HasPrefix(path, "/songs/play/"):
		// Playing a song increments its counter.
		return &c.Write
	default:
		return nil
	}
}

// Close stops the limiters.
func (c *Config) Close() {
	if c != nil {
		c.Write.Limiter.Close()
	}
}
