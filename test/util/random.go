package testutil

import (
	"fmt"
	"math/rand"

	"github.com/mazen160/go-random"
)

// RandomString generates a random lowercase string from a seeded source, for
// reproducible property sampling.
func RandomString(rndm *rand.Rand, length int) string {
	str := make([]rune, length)
	for i := range str {
		str[i] = 'a' + rune(rndm.Intn(26))
	}
	return string(str)
}

// RandomEmail generates a plausible unique email address for raw test records.
func RandomEmail() (string, error) {
	user, err := random.String(10)
	if err != nil {
		return "", err
	}
	host, err := random.String(6)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s@%s.example", user, host), nil
}

// RandomSlug generates a two-part url slug shaped like real machine and
// training slugs.
func RandomSlug() (string, error) {
	left, err := random.String(8)
	if err != nil {
		return "", err
	}
	right, err := random.String(8)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s", left, right), nil
}
