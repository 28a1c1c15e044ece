package crypto

import (
	"errors"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	// TokenLength is the length of generated client tokens.
	TokenLength = 10

	tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

var ErrTokenLength = errors.New("token length must be positive")

// GenerateToken returns a random alphanumeric token of TokenLength characters.
func GenerateToken() (string, error) {
	return GenerateTokenN(TokenLength)
}

// GenerateTokenN returns a random alphanumeric nanoid of n characters.
func GenerateTokenN(n int) (string, error) {
	if n <= 0 {
		return "", ErrTokenLength
	}
	return gonanoid.Generate(tokenAlphabet, n)
}
