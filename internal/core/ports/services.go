package ports

import (
	"context"
	"time"

	"wallet-registry/internal/core/domain"
)

//go:generate mockgen -source=services.go -destination=mocks/mock_services.go -package=mocks

// MutationResult is returned by every wallet mutation.
type MutationResult struct {
	// Wallet is the stored wallet; nil for deletes.
	Wallet       *domain.Wallet
	Notification domain.Notification
	Commit       domain.CommitState
}

// Lookup is the outcome of a get-by-id: either Found with a Wallet, or not found.
type Lookup struct {
	Wallet domain.Wallet
	Found  bool
}

// Found wraps w as a successful lookup.
func Found(w domain.Wallet) Lookup { return Lookup{Wallet: w, Found: true} }

// NotFound is the empty lookup.
func NotFound() Lookup { return Lookup{} }

// WalletService is the request-handling contract of the wallet resource.
type WalletService interface {
	Create(ctx context.Context, w domain.Wallet) (*MutationResult, error)
	Update(ctx context.Context, w domain.Wallet) (*MutationResult, error)
	List(ctx context.Context) ([]domain.Wallet, error)
	Get(ctx context.Context, id int64) (Lookup, error)
	Delete(ctx context.Context, id int64) (*MutationResult, error)
	Search(ctx context.Context, query string) ([]domain.Wallet, error)
}

// StaleMarker receives ids whose index entry could not be written.
type StaleMarker interface {
	MarkStale(id int64)
	// Touch is called after a store write and before the matching index write,
	// so a concurrent repair or rebuild can tell that it may have lost the race.
	Touch(id int64)
}

// IndexMaintainer rebuilds and repairs the search index.
type IndexMaintainer interface {
	StaleMarker
	ReconcileOnce(ctx context.Context) (int, error)
	ReindexAll(ctx context.Context) (int, error)
}

// AuditService records mutations asynchronously.
type AuditService interface {
	Record(ctx context.Context, n domain.Notification, commit domain.CommitState)
}

// TokenService validates bearer tokens.
type TokenService interface {
	Generate(subject string, authorities []string) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	Subject     string
	Authorities []string
}

// HasAuthority reports whether the claims grant authority.
func (c *TokenClaims) HasAuthority(authority string) bool {
	for _, a := range c.Authorities {
		if a == authority {
			return true
		}
	}
	return false
}
