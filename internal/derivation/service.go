package derivation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"wardrobe/internal/domain"
	"wardrobe/internal/imaging"
	"wardrobe/internal/storage"
)

// Submitter hands a record to the job runner.
type Submitter interface {
	Submit(id string) error
}

// Service is the entry point used by the HTTP layer and the binaries.
type Service struct {
	assets     domain.AssetRepository
	store      storage.BlobStore
	dispatcher Submitter
	logger     zerolog.Logger
	now        func() time.Time
}

// NewService builds a Service.
func NewService(assets domain.AssetRepository, store storage.BlobStore, dispatcher Submitter, logger zerolog.Logger) *Service {
	return &Service{
		assets:     assets,
		store:      store,
		dispatcher: dispatcher,
		logger:     logger.With().Str("component", "derivation_service").Logger(),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// RawKey is the blob key of an uploaded original.
func RawKey(ownerID, recordID string, format imaging.Format) string {
	return fmt.Sprintf("raw/%s/%s%s", ownerID, recordID, format.Ext())
}

// Submit stores the raw upload, creates a pending record and schedules its
// derivation. The record is returned even when scheduling fails because the
// queue is full; recovery picks such records up later.
func (s *Service) Submit(ctx context.Context, ownerID string, data []byte, declaredType string) (*domain.DerivedAsset, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, errors.New("derivation: owner id is required")
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("derivation: empty upload: %w", domain.ErrCorruptData)
	}

	contentType := strings.TrimSpace(declaredType)
	format, known := imaging.Sniff(data)
	if known {
		contentType = format.ContentType()
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	id := uuid.NewString()
	key := RawKey(ownerID, id, format)
	url, err := s.store.Put(ctx, key, data, contentType)
	if err != nil {
		return nil, fmt.Errorf("derivation: store raw upload: %w", err)
	}

	now := s.now()
	asset := &domain.DerivedAsset{
		ID:      id,
		OwnerID: ownerID,
		Raw: domain.RawAsset{
			Key:         key,
			URL:         url,
			Bytes:       int64(len(data)),
			ContentType: contentType,
		},
		Status:    domain.StatusPending,
		Colors:    []domain.Color{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.assets.Create(ctx, asset); err != nil {
		if derr := s.store.Delete(context.WithoutCancel(ctx), key); derr != nil {
			s.logger.Warn().Err(derr).Str("key", key).Msg("derivation: orphaned raw upload")
		}
		return nil, fmt.Errorf("derivation: create record: %w", err)
	}

	s.dispatch(asset.ID)
	return asset, nil
}

func (s *Service) dispatch(id string) {
	if err := s.dispatcher.Submit(id); err != nil {
		s.logger.Warn().Err(err).Str("record_id", id).Msg("derivation: record left pending for recovery")
	}
}

// Get returns a record.
func (s *Service) Get(ctx context.Context, id string) (*domain.DerivedAsset, error) {
	return s.assets.GetByID(ctx, id)
}

// Status returns the polling view of a record.
func (s *Service) Status(ctx context.Context, id, locale string) (domain.StatusView, error) {
	asset, err := s.assets.GetByID(ctx, id)
	if err != nil {
		return domain.StatusView{}, err
	}
	return asset.View(locale), nil
}

// List returns the records of an owner, newest first.
func (s *Service) List(ctx context.Context, ownerID string, limit, offset int) ([]domain.DerivedAsset, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.assets.ListByOwner(ctx, ownerID, limit, offset)
}

// Resubmit sends a failed record through the pipeline again. Records in any
// other state yield domain.ErrConflict; a record whose job is still queued
// yields domain.ErrDuplicateSubmission.
func (s *Service) Resubmit(ctx context.Context, id string) (*domain.DerivedAsset, error) {
	if err := s.assets.Reset(ctx, id); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			return nil, fmt.Errorf("derivation: resubmit %s: %w", id, domain.ErrConflict)
		}
		return nil, err
	}
	if err := s.dispatcher.Submit(id); err != nil {
		if errors.Is(err, domain.ErrDuplicateSubmission) {
			return nil, err
		}
		s.logger.Warn().Err(err).Str("record_id", id).Msg("derivation: record left pending for recovery")
	}
	return s.assets.GetByID(ctx, id)
}

// RecoverPending schedules pending records that have not moved for longer
// than grace, typically left behind by a crashed process. It returns the
// number of records scheduled.
func (s *Service) RecoverPending(ctx context.Context, grace time.Duration, limit int) (int, error) {
	stale, err := s.assets.ListStalePending(ctx, s.now().Add(-grace), limit)
	if err != nil {
		return 0, err
	}
	scheduled := 0
	for _, asset := range stale {
		err := s.dispatcher.Submit(asset.ID)
		switch {
		case err == nil:
			scheduled++
		case errors.Is(err, domain.ErrDuplicateSubmission):
		case errors.Is(err, ErrQueueFull), errors.Is(err, ErrDispatcherClosed):
			return scheduled, nil
		default:
			return scheduled, err
		}
	}
	if scheduled > 0 {
		s.logger.Info().Int("scheduled", scheduled).Msg("derivation: recovered pending records")
	}
	return scheduled, nil
}

// FailInterrupted fails records stuck in processing for longer than grace.
// Their job died with its process; the owner can resubmit them.
func (s *Service) FailInterrupted(ctx context.Context, grace time.Duration) (int64, error) {
	n, err := s.assets.FailStaleProcessing(ctx, s.now().Add(-grace), domain.KindInterrupted, "derivation interrupted before completion")
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Warn().Int64("failed", n).Msg("derivation: failed interrupted records")
	}
	return n, nil
}
