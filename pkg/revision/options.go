package revision

import "go.uber.org/zap"

// Option for the git resolver
type Option func(*Git)

// Logger for the resolver
func Logger(l *zap.Logger) Option {
	return func(g *Git) {
		if l != nil {
			g.l = l
		}
	}
}

// BlobCacheSize sets the number of file contents kept in memory across requests
func BlobCacheSize(size int) Option {
	return func(g *Git) {
		if size > 0 {
			g.blobCacheSize = size
		}
	}
}
