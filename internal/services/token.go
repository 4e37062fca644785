package services

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"

	"ticketbooth/internal/domain"
)

// tokenBytes is the entropy per redemption token. 24 bytes (192 bits) encode to
// 32 URL-safe characters, far beyond feasible enumeration. The token is never
// derived from the ticket's storage identifier.
const tokenBytes = 24

var tokenPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{32}$`)

type urlTokenCodec struct {
	baseURL string
}

// NewTokenCodec returns a domain.TokenCodec that builds redemption URLs under
// baseURL. A trailing slash on baseURL is ignored.
func NewTokenCodec(baseURL string) domain.TokenCodec {
	return &urlTokenCodec{baseURL: strings.TrimRight(baseURL, "/")}
}

func (c *urlTokenCodec) Mint() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read token entropy: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func (c *urlTokenCodec) RedemptionURL(token string) string {
	return c.baseURL + "/redeem/" + token
}

func (c *urlTokenCodec) TokenFromURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse redemption url: %w", err)
	}
	token := path.Base(u.Path)
	if !tokenPattern.MatchString(token) {
		return "", fmt.Errorf("malformed redemption token")
	}
	return token, nil
}
