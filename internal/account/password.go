package account

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/crypto/pbkdf2"
)

const (
	pbkdf2Iterations = 130_000
	pbkdf2KeyLen     = 32
	saltLen          = 16
)

// HashPassword derives a PBKDF2-HMAC-SHA256 hash and encodes it as
// "pbkdf2$<iterations>$<salt hex>$<hash hex>". The iteration count is stored
// in the hash so it can be raised without invalidating existing credentials.
func HashPassword(password string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", eris.Wrap(err, "account: generate salt")
	}
	dk := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, pbkdf2KeyLen, sha256.New)
	return "pbkdf2$" + strconv.Itoa(pbkdf2Iterations) + "$" +
		hex.EncodeToString(salt) + "$" + hex.EncodeToString(dk), nil
}

// VerifyPassword checks a password against a stored hash in constant time.
// Any malformed stored value verifies as false rather than erroring.
func VerifyPassword(password, stored string) bool {
	parts := strings.Split(stored, "$")
	if len(parts) != 4 || parts[0] != "pbkdf2" {
		return false
	}
	iters, err := strconv.Atoi(parts[1])
	if err != nil || iters <= 0 {
		return false
	}
	salt, err := hex.DecodeString(parts[2])
	if err != nil {
		return false
	}
	expected, err := hex.DecodeString(parts[3])
	if err != nil {
		return false
	}
	dk := pbkdf2.Key([]byte(password), salt, iters, len(expected), sha256.New)
	return hmac.Equal(dk, expected)
}
