// ABOUTME: TTL-bounded local cache for pulled threat signatures.
// ABOUTME: Serves stale data when the intelligence service is unreachable.

package intel

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sigil-dev/sigil/internal/catalog"
	"github.com/sigil-dev/sigil/internal/types"
)

// DefaultTTL is the freshness window after which the cache re-pulls.
const DefaultTTL = 24 * time.Hour

// SignatureCache keeps the last successfully pulled signature set, persisted
// to disk so delta sync resumes across restarts. A pull failure is never
// fatal: the cache hands out the stale set and retries on the next access.
type SignatureCache struct {
	client *Client
	path   string
	ttl    time.Duration
	logger *logrus.Logger
	now    func() time.Time

	mu         sync.Mutex
	signatures map[string]types.Signature
	version    int64
	fetchedAt  time.Time
}

// NewSignatureCache loads any previously persisted signatures from path. The
// clock is injected so freshness behavior is testable.
func NewSignatureCache(client *Client, path string, ttl time.Duration, logger *logrus.Logger, now func() time.Time) (*SignatureCache, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}

	sc := &SignatureCache{
		client:     client,
		path:       path,
		ttl:        ttl,
		logger:     logger,
		now:        now,
		signatures: make(map[string]types.Signature),
	}

	sigs, version, err := catalog.LoadSignaturesFile(path)
	if err != nil {
		return nil, err
	}
	for _, sig := range sigs {
		sc.signatures[sig.ID] = sig
	}
	sc.version = version
	return sc, nil
}

// Signatures returns the current signature set, pulling a delta first when
// the cache is past its freshness window. On NetworkFailure the stale set is
// returned with no error.
func (sc *SignatureCache) Signatures(ctx context.Context) ([]types.Signature, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.now().Sub(sc.fetchedAt) >= sc.ttl {
		if err := sc.refreshLocked(ctx); err != nil {
			return nil, err
		}
	}
	return sc.snapshotLocked(), nil
}

// Refresh forces a pull regardless of freshness. NetworkFailure degrades to
// the cached set, same as the lazy path.
func (sc *SignatureCache) Refresh(ctx context.Context) ([]types.Signature, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if err := sc.refreshLocked(ctx); err != nil {
		return nil, err
	}
	return sc.snapshotLocked(), nil
}

// Version reports the highest signature version seen, the delta-sync marker.
func (sc *SignatureCache) Version() int64 {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.version
}

func (sc *SignatureCache) refreshLocked(ctx context.Context) error {
	sigs, err := sc.client.Pull(ctx, sc.version)
	if err != nil {
		var netErr *types.NetworkFailure
		if errors.As(err, &netErr) {
			sc.logger.WithFields(logrus.Fields{
				"component":    "intel",
				"cached_count": len(sc.signatures),
				"version":      sc.version,
			}).WithError(err).Warn("Signature pull failed, serving cached set")
			return nil
		}
		return err
	}

	for _, sig := range sigs {
		existing, ok := sc.signatures[sig.ID]
		if ok && existing.Version >= sig.Version {
			continue
		}
		sc.signatures[sig.ID] = sig
		if sig.Version > sc.version {
			sc.version = sig.Version
		}
	}
	sc.fetchedAt = sc.now()

	if sc.path != "" {
		if err := catalog.SaveSignaturesFile(sc.path, sc.snapshotLocked(), sc.version, sc.fetchedAt.UTC().Format(time.RFC3339)); err != nil {
			// Persistence is an optimization; the in-memory set is current.
			sc.logger.WithError(err).Warn("Failed to persist signature cache")
		}
	}
	return nil
}

func (sc *SignatureCache) snapshotLocked() []types.Signature {
	out := make([]types.Signature, 0, len(sc.signatures))
	for _, sig := range sc.signatures {
		out = append(out, sig)
	}
	return out
}
