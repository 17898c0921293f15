package service

import (
	"context"
	"errors"

	"wallet-registry/internal/core/domain"
	"wallet-registry/internal/core/ports"
	"wallet-registry/internal/search/querystring"
	"wallet-registry/pkg/apperror"
	"wallet-registry/pkg/logger"

	"github.com/rs/zerolog"
)

type walletService struct {
	store ports.WalletStore
	index ports.WalletIndex
	stale ports.StaleMarker
	audit ports.AuditService
	log   zerolog.Logger
}

// NewWalletService creates the wallet service. Every mutation is written to
// store first and to index second; the two writes are not transactional.
// stale and audit may be nil.
func NewWalletService(
	store ports.WalletStore,
	index ports.WalletIndex,
	stale ports.StaleMarker,
	audit ports.AuditService,
	log zerolog.Logger,
) ports.WalletService {
	return &walletService{
		store: store,
		index: index,
		stale: stale,
		audit: audit,
		log:   logger.Component(log, "wallet_service"),
	}
}

func (s *walletService) Create(ctx context.Context, w domain.Wallet) (*ports.MutationResult, error) {
	s.debug(ctx).Str("name", w.Name).Msg("REST request to save Wallet")

	if w.HasID() {
		return nil, apperror.ErrIDExists(domain.EntityName)
	}

	saved, err := s.store.Save(ctx, &w)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	return s.indexSaved(ctx, saved, domain.ActionCreated)
}

func (s *walletService) Update(ctx context.Context, w domain.Wallet) (*ports.MutationResult, error) {
	s.debug(ctx).Int64("id", w.IDValue()).Msg("REST request to update Wallet")

	if !w.HasID() {
		return nil, apperror.ErrIDNull(domain.EntityName)
	}

	saved, err := s.store.Save(ctx, &w)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	return s.indexSaved(ctx, saved, domain.ActionUpdated)
}

func (s *walletService) List(ctx context.Context) ([]domain.Wallet, error) {
	s.debug(ctx).Msg("REST request to get all Wallets")

	wallets, err := s.store.FindAll(ctx)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if wallets == nil {
		wallets = []domain.Wallet{}
	}
	return wallets, nil
}

func (s *walletService) Get(ctx context.Context, id int64) (ports.Lookup, error) {
	s.debug(ctx).Int64("id", id).Msg("REST request to get Wallet")

	w, err := s.store.FindByID(ctx, id)
	if err != nil {
		return ports.NotFound(), apperror.InternalError(err)
	}
	if w == nil {
		return ports.NotFound(), nil
	}
	return ports.Found(*w), nil
}

func (s *walletService) Delete(ctx context.Context, id int64) (*ports.MutationResult, error) {
	s.debug(ctx).Int64("id", id).Msg("REST request to delete Wallet")

	if err := s.store.DeleteByID(ctx, id); err != nil {
		return nil, apperror.InternalError(err)
	}

	result := &ports.MutationResult{
		Notification: notification(domain.ActionDeleted, id),
		Commit:       domain.CommitFull,
	}
	s.touch(id)
	if err := s.index.Remove(ctx, id); err != nil {
		return s.partial(ctx, result, err)
	}
	s.record(ctx, result)
	return result, nil
}

func (s *walletService) Search(ctx context.Context, query string) ([]domain.Wallet, error) {
	s.debug(ctx).Str("query", query).Msg("REST request to search Wallets")

	wallets, err := s.index.Search(ctx, query)
	if err != nil {
		if errors.Is(err, querystring.ErrInvalidQuery) {
			return nil, apperror.Validation(err.Error())
		}
		return nil, apperror.InternalError(err)
	}
	if wallets == nil {
		wallets = []domain.Wallet{}
	}
	return wallets, nil
}

// indexSaved mirrors a stored wallet into the index and builds the result.
func (s *walletService) indexSaved(ctx context.Context, saved *domain.Wallet, action domain.Action) (*ports.MutationResult, error) {
	result := &ports.MutationResult{
		Wallet:       saved,
		Notification: notification(action, saved.IDValue()),
		Commit:       domain.CommitFull,
	}
	s.touch(saved.IDValue())
	if err := s.index.Index(ctx, *saved); err != nil {
		return s.partial(ctx, result, err)
	}
	s.record(ctx, result)
	return result, nil
}

func (s *walletService) touch(id int64) {
	if s.stale != nil {
		s.stale.Touch(id)
	}
}

// partial downgrades result after a failed index write. The store write stands.
func (s *walletService) partial(ctx context.Context, result *ports.MutationResult, cause error) (*ports.MutationResult, error) {
	id := result.Notification.ID
	result.Commit = domain.CommitPartial

	s.log.Warn().
		Err(cause).
		Int64("id", id).
		Str("action", string(result.Notification.Action)).
		Str("request_id", logger.RequestID(ctx)).
		Msg("search index write failed, wallet marked stale")

	if s.stale != nil {
		s.stale.MarkStale(id)
	}
	s.record(ctx, result)
	return result, apperror.ErrIndexStale(domain.EntityName, id, cause)
}

func (s *walletService) record(ctx context.Context, result *ports.MutationResult) {
	if s.audit != nil {
		s.audit.Record(ctx, result.Notification, result.Commit)
	}
}

func (s *walletService) debug(ctx context.Context) *zerolog.Event {
	return s.log.Debug().Str("request_id", logger.RequestID(ctx))
}

func notification(action domain.Action, id int64) domain.Notification {
	return domain.Notification{Action: action, Resource: domain.EntityName, ID: id}
}
