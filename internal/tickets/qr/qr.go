package qr

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/skip2/go-qrcode"
)

const (
	tokenPrefix  = "EVT"
	randomBytes  = 10
	signatureLen = 16
	DefaultSize  = 256
)

// Generator issues opaque check-in tokens and renders them as QR images.
// A token carries nothing but its own signature; the registration it belongs
// to is found through the unique qr_code column.
type Generator struct {
	secret []byte
	size   int
}

func NewGenerator(secret string, size int) *Generator {
	hashed := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	if size <= 0 {
		size = DefaultSize
	}
	return &Generator{secret: hashed[:], size: size}
}

// NewToken returns EVT-<unix ms>-<random>-<signature>.
func (g *Generator) NewToken(now time.Time) (string, error) {
	buf := make([]byte, randomBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	random := strings.ToUpper(base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf))
	body := fmt.Sprintf("%s-%d-%s", tokenPrefix, now.UnixMilli(), random)
	return body + "-" + g.sign(body), nil
}

// Valid rejects anything this generator did not issue before a database lookup.
func (g *Generator) Valid(token string) bool {
	i := strings.LastIndex(token, "-")
	if i <= 0 || !strings.HasPrefix(token, tokenPrefix+"-") {
		return false
	}
	body, sig := token[:i], token[i+1:]
	return hmac.Equal([]byte(sig), []byte(g.sign(body)))
}

func (g *Generator) sign(body string) string {
	mac := hmac.New(sha256.New, g.secret)
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))[:signatureLen]
}

// PNG renders the token as a QR code image.
func (g *Generator) PNG(token string) ([]byte, error) {
	return qrcode.Encode(token, qrcode.Medium, g.size)
}
