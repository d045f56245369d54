package token

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/vibast-solutions/ms-go-account/app/entity"
)

// Entropy, in bytes, of each opaque token kind before hex encoding.
const (
	VerificationBytes = 32
	ResetBytes        = 32
	RefreshBytes      = 64
)

type Generator struct {
	reader io.Reader
}

func NewGenerator() *Generator {
	return &Generator{reader: rand.Reader}
}

// NewGeneratorFromReader is meant for tests that need deterministic output.
func NewGeneratorFromReader(reader io.Reader) *Generator {
	return &Generator{reader: reader}
}

func (g *Generator) Opaque(kind entity.TokenKind) (string, error) {
	size, err := entropyFor(kind)
	if err != nil {
		return "", err
	}

	buf := make([]byte, size)
	if _, err = io.ReadFull(g.reader, buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func entropyFor(kind entity.TokenKind) (int, error) {
	switch kind {
	case entity.TokenVerification:
		return VerificationBytes, nil
	case entity.TokenPasswordReset:
		return ResetBytes, nil
	case entity.TokenRefresh:
		return RefreshBytes, nil
	}
	return 0, fmt.Errorf("unknown token kind %q", kind)
}
