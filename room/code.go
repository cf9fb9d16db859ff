package room

import (
	"crypto/rand"
	"fmt"
	"math/big"

	nanoid "github.com/jaevor/go-nanoid"
)

// CodeGenerator returns a new room code on every call. Codes are opaque to the registry, the prefix
// and length carry no meaning.
type CodeGenerator func() string

type codeFormat struct {
	prefix  string
	charset string
	length  int
}

// The three code formats: a short upper case code, a mixed case code and
// a long code including punctuation.
var codeFormats = []codeFormat{
	{prefix: "P", charset: "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789", length: 6},
	{prefix: "G", charset: "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789", length: 8},
	{prefix: "V", charset: "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789!@#$%^&*", length: 10},
}

// NewCodeGenerator creates a generator which picks one of the code formats at random for every code.
func NewCodeGenerator() (CodeGenerator, error) {
	gens := make([]func() string, len(codeFormats))
	for i, f := range codeFormats {
		gen, err := nanoid.CustomASCII(f.charset, f.length)
		if err != nil {
			return nil, fmt.Errorf("could not create generator for format %s: %w", f.prefix, err)
		}
		gens[i] = gen
	}
	return func() string {
		i := randomIndex(len(codeFormats))
		return codeFormats[i].prefix + gens[i]()
	}, nil
}

func mustCodeGenerator() CodeGenerator {
	gen, err := NewCodeGenerator()
	if err != nil {
		panic(err)
	}
	return gen
}

// randomIndex returns a cryptographically secure random index for a slice of the given length.
func randomIndex(max int) int {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		panic(fmt.Sprintf("could not generate random index: %s", err))
	}
	return int(n.Int64())
}
