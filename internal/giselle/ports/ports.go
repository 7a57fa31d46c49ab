package ports

import (
	"context"
	"iter"

	"github.com/giselles-ai/giselle-sub007/internal/giselle"
)

// Authorizer must be consulted before any mutating operation reaches the
// core. The core trusts that the caller already did so.
type Authorizer interface {
	AssertWorkspaceAccess(ctx context.Context, workspaceID string) error
}

// Vault seals secret values before they are persisted.
type Vault interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// LanguageModel streams the output of one model call. A failure is yielded
// as a non-nil error and ends the stream.
type LanguageModel interface {
	Stream(ctx context.Context, req giselle.ModelRequest) iter.Seq2[giselle.OutputChunk, error]
}
