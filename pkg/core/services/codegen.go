package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/wadjakorntonsri/tinylink/pkg/core/domain"
)

// MaxGenerateAttempts bounds collision retries before giving up.
const MaxGenerateAttempts = 10

// codeBytes random bytes give a 6 character hex code
const codeBytes = 3

type codeChecker interface {
	CodeExists(ctx context.Context, code string) (bool, error)
}

// CodeGenerator produces random short codes that are not yet in the store.
type CodeGenerator struct {
	store    codeChecker
	random   func() (string, error)
	attempts int
}

func NewCodeGenerator(store codeChecker) *CodeGenerator {
	return &CodeGenerator{
		store:    store,
		random:   randomHexCode,
		attempts: MaxGenerateAttempts,
	}
}

// Generate returns an unused code or domain.ErrCodeGenerationExhausted.
func (g *CodeGenerator) Generate(ctx context.Context) (string, error) {
	for i := 0; i < g.attempts; i++ {
		code, err := g.random()
		if err != nil {
			return "", err
		}
		exists, err := g.store.CodeExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("check code %q: %w", code, err)
		}
		if !exists {
			return code, nil
		}
	}
	return "", domain.ErrCodeGenerationExhausted
}

func randomHexCode() (string, error) {
	b := make([]byte, codeBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
