package slug

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
)

// Symbols used for identifiers: lowercase alphanumerics are URL-safe and
// survive case-insensitive filesystems.
const defaultSymbols = "abcdefghijklmnopqrstuvwxyz0123456789"

// DefaultLength gives 36^12 (about 2^62) possible identifiers.
const DefaultLength = 12

// MaxLength bounds identifiers accepted from clients.
const MaxLength = 64

// ErrExhausted is returned when no free identifier was found.
var ErrExhausted = errors.New("could not find a free identifier")

// Generator produces random identifiers
type Generator struct {
	symbols string
	length  int
}

// New creates a new identifier generator; length <= 0 selects DefaultLength.
func New(length int) *Generator {
	if length <= 0 {
		length = DefaultLength
	}
	return &Generator{
		symbols: defaultSymbols,
		length:  length,
	}
}

// Generate creates a new random identifier of the configured length
func (g *Generator) Generate() (string, error) {
	return g.GenerateLength(g.length)
}

// GenerateLength creates a random identifier of the specified length
func (g *Generator) GenerateLength(length int) (string, error) {
	if length <= 0 {
		length = g.length
	}

	result := make([]byte, length)
	symbolsLen := big.NewInt(int64(len(g.symbols)))

	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, symbolsLen)
		if err != nil {
			return "", err
		}
		result[i] = g.symbols[n.Int64()]
	}

	return string(result), nil
}

// GenerateUnique draws identifiers until exists reports one as free. After
// every 10 collisions the length grows by one.
func (g *Generator) GenerateUnique(ctx context.Context, exists func(context.Context, string) (bool, error)) (string, error) {
	const maxAttempts = 50
	length := g.length

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		id, err := g.GenerateLength(length)
		if err != nil {
			return "", err
		}

		taken, err := exists(ctx, id)
		if err != nil {
			return "", fmt.Errorf("check identifier: %w", err)
		}
		if !taken {
			return id, nil
		}

		if attempt%10 == 0 && length < MaxLength {
			length++
		}
	}

	return "", ErrExhausted
}

// Valid reports whether id could have been issued by a Generator: 1 to
// MaxLength characters from [a-z0-9].
func Valid(id string) bool {
	if id == "" || len(id) > MaxLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}
