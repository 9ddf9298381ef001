package util

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	LicenseKeyBytes     = 8
	licenseKeyGroupSize = 4
	licenseKeySeparator = "-"

	AdminSecretBytes = 32
)

var licenseKeyPattern = regexp.MustCompile(`^[0-9a-f]{4}(-[0-9a-f]{4}){3}$`)

func generateRandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// GenerateLicenseKey returns 8 random bytes as lowercase hex in groups of
// four, e.g. "a1b2-c3d4-e5f6-a7b8".
func GenerateLicenseKey() (string, error) {
	b, err := generateRandomBytes(LicenseKeyBytes)
	if err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}

	encoded := hex.EncodeToString(b)
	groups := make([]string, 0, len(encoded)/licenseKeyGroupSize)
	for i := 0; i < len(encoded); i += licenseKeyGroupSize {
		groups = append(groups, encoded[i:i+licenseKeyGroupSize])
	}
	return strings.Join(groups, licenseKeySeparator), nil
}

func IsLicenseKeyFormat(key string) bool {
	return licenseKeyPattern.MatchString(key)
}

// GenerateAdminSecret returns a URL-safe random secret suitable for the X-Admin-Key header.
func GenerateAdminSecret() (string, error) {
	b, err := generateRandomBytes(AdminSecretBytes)
	if err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func HashAdminSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash secret: %w", err)
	}
	return string(hash), nil
}

// CheckAdminSecret compares candidate against a plain secret in constant time,
// or against a bcrypt hash when one is given. Empty configuration never matches.
func CheckAdminSecret(candidate, secret, secretHash string) bool {
	if candidate == "" {
		return false
	}
	if secret != "" && subtle.ConstantTimeCompare([]byte(candidate), []byte(secret)) == 1 {
		return true
	}
	if secretHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(secretHash), []byte(candidate)) == nil
	}
	return false
}
