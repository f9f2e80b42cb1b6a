package randstr

import "crypto/rand"

type Generator struct {
	alphabet []byte
}

func New(alphabet []byte) *Generator {
	return &Generator{alphabet: alphabet}
}

// GenerateRandomString returns a random string of the given length drawn from
// the generator's alphabet.
func (g *Generator) GenerateRandomString(length int) string {
	buf := make([]byte, length)
	// rand.Read never returns an error on supported platforms.
	_, _ = rand.Read(buf)
	for i, b := range buf {
		buf[i] = g.alphabet[int(b)%len(g.alphabet)]
	}

	return string(buf)
}
