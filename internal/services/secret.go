package services

import (
	"context"
	"fmt"
	"time"

	"github.com/giselles-ai/giselle-sub007/internal/giselle"
	"github.com/giselles-ai/giselle-sub007/internal/giselle/ports"
	"github.com/giselles-ai/giselle-sub007/internal/repository"
)

// SecretService stores workspace secrets sealed by a Vault.
type SecretService struct {
	repo  repository.SecretRepository
	vault ports.Vault
}

func NewSecretService(repo repository.SecretRepository, vault ports.Vault) *SecretService {
	return &SecretService{repo: repo, vault: vault}
}

// AddSecret seals value and stores it under a new id. The returned secret
// carries no value.
func (s *SecretService) AddSecret(ctx context.Context, workspaceID, label, value string) (*giselle.Secret, error) {
	if workspaceID == "" || label == "" {
		return nil, fmt.Errorf("secret needs a workspace and a label: %w", giselle.ErrInvalidInput)
	}
	sealed, err := s.vault.Encrypt(value)
	if err != nil {
		return nil, fmt.Errorf("seal secret: %w", err)
	}
	secret := &giselle.Secret{
		ID:          giselle.GenerateID(giselle.PrefixSecret),
		WorkspaceID: workspaceID,
		Label:       label,
		Value:       sealed,
		CreatedAt:   time.Now(),
	}
	if err := s.repo.Create(ctx, secret); err != nil {
		return nil, err
	}
	return redact(secret), nil
}

// ListSecrets returns the workspace's secrets without values.
func (s *SecretService) ListSecrets(ctx context.Context, workspaceID string) ([]*giselle.Secret, error) {
	secrets, err := s.repo.ListByWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	out := make([]*giselle.Secret, 0, len(secrets))
	for _, sec := range secrets {
		out = append(out, redact(sec))
	}
	return out, nil
}

// GetSecret returns a secret without its value.
func (s *SecretService) GetSecret(ctx context.Context, id string) (*giselle.Secret, error) {
	secret, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return redact(secret), nil
}

// RevealSecret returns the plaintext value of a secret.
func (s *SecretService) RevealSecret(ctx context.Context, id string) (string, error) {
	secret, err := s.repo.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return s.vault.Decrypt(secret.Value)
}

func (s *SecretService) DeleteSecret(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

func redact(s *giselle.Secret) *giselle.Secret {
	out := *s
	out.Value = ""
	return &out
}
