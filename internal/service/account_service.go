package service

import (
	"context"
	"fmt"

	"web3-orchestrator/internal/core/domain"
	"web3-orchestrator/internal/core/ports"
	"web3-orchestrator/pkg/apperror"

	"github.com/google/uuid"
)

type accountService struct {
	accountRepo ports.AccountRepository
	encSvc      ports.EncryptionService
}

// NewAccountService creates the payee profile service.
func NewAccountService(accountRepo ports.AccountRepository, encSvc ports.EncryptionService) ports.AccountService {
	return &accountService{
		accountRepo: accountRepo,
		encSvc:      encSvc,
	}
}

func (s *accountService) Get(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	account, err := s.accountRepo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if account == nil {
		return nil, apperror.ErrNotFound("account")
	}
	return account, nil
}

// UpdateWebhookURL sets or, with nil, clears the webhook URL.
func (s *accountService) UpdateWebhookURL(ctx context.Context, id uuid.UUID, url *string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.accountRepo.UpdateWebhookURL(ctx, id, trimmedOrNil(url)); err != nil {
		return apperror.InternalError(err)
	}
	return nil
}

// RotateWebhookSecret replaces the signing secret and returns the new one.
// Deliveries already in flight keep the old signature.
func (s *accountService) RotateWebhookSecret(ctx context.Context, id uuid.UUID) (string, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return "", err
	}

	secret, err := newWebhookSecret()
	if err != nil {
		return "", apperror.InternalError(fmt.Errorf("generate webhook secret: %w", err))
	}
	secretEnc, err := s.encSvc.Encrypt(secret)
	if err != nil {
		return "", apperror.ErrEncryptionFailure(fmt.Errorf("encrypt webhook secret: %w", err))
	}
	if err := s.accountRepo.UpdateWebhookSecret(ctx, id, secretEnc); err != nil {
		return "", apperror.InternalError(err)
	}
	return secret, nil
}
