package cache

import (
	"time"

	"go.uber.org/zap"
)

// Option for the schema cache
type Option func(*SchemaCache)

// Key under which the table is persisted in the store
func Key(key string) Option {
	return func(c *SchemaCache) {
		if key != "" {
			c.key = key
		}
	}
}

// Logger for the schema cache
func Logger(l *zap.Logger) Option {
	return func(c *SchemaCache) {
		if l != nil {
			c.l = l
		}
	}
}

// Bypass forces the recomputation of some revisions, even though they are cached.
//
// Each of these revisions is reported absent until its schema is set again.
func Bypass(revs ...string) Option {
	return func(c *SchemaCache) {
		for _, rev := range revs {
			if rev != "" {
				c.bypass[rev] = struct{}{}
			}
		}
	}
}

// Retries sets how many times a failed write of the table is attempted again, and the pause between attempts
func Retries(n uint64, interval time.Duration) Option {
	return func(c *SchemaCache) {
		c.retries = n
		if interval > 0 {
			c.retryInterval = interval
		}
	}
}
