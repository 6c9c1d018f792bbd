package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/synapsefold/cognition-core/pkg/contracts"
)

// ServiceAccountProvider validates HMAC-signed inter-service tokens, used
// for engine<->orchestrator<->tool-server calls.
//
// Token format: base64(JSON payload) + "." + base64(HMAC-SHA256
// signature). Config: COGCORE_SA_SECRET env var.
type ServiceAccountProvider struct {
	secret  []byte
	enabled bool
}

type serviceAccountPayload struct {
	Subject string `json:"sub"`
	Service string `json:"service"`
	Exp     int64  `json:"exp"`
}

// NewServiceAccountProvider builds a service-account provider from the
// environment.
func NewServiceAccountProvider() *ServiceAccountProvider {
	secret := os.Getenv("COGCORE_SA_SECRET")
	if secret == "" {
		return &ServiceAccountProvider{}
	}
	return &ServiceAccountProvider{secret: []byte(secret), enabled: true}
}

func (p *ServiceAccountProvider) Name() string { return "service_account" }

// Authenticate validates bearerToken as a signed service-account token.
func (p *ServiceAccountProvider) Authenticate(_ context.Context, bearerToken string) (*contracts.Identity, error) {
	if !p.enabled || bearerToken == "" {
		return nil, nil
	}
	payload, err := p.validateToken(bearerToken)
	if err != nil {
		return nil, fmt.Errorf("invalid service account token: %w", err)
	}
	return &contracts.Identity{
		Subject:   "svc:" + payload.Subject,
		Service:   payload.Service,
		ExpiresAt: time.Unix(payload.Exp, 0),
	}, nil
}

func (p *ServiceAccountProvider) validateToken(token string) (*serviceAccountPayload, error) {
	idx := -1
	for i := len(token) - 1; i >= 0; i-- {
		if token[i] == '.' {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("malformed token: expected payload.signature")
	}
	payloadB64, sigB64 := token[:idx], token[idx+1:]

	mac := hmac.New(sha256.New, p.secret)
	mac.Write([]byte(payloadB64))
	expectedSig := mac.Sum(nil)

	sig, err := base64.RawURLEncoding.DecodeString(sigB64)
	if err != nil {
		return nil, fmt.Errorf("invalid signature encoding: %w", err)
	}
	if !hmac.Equal(sig, expectedSig) {
		return nil, fmt.Errorf("signature mismatch")
	}

	payloadBytes, err := base64.RawURLEncoding.DecodeString(payloadB64)
	if err != nil {
		return nil, fmt.Errorf("invalid payload encoding: %w", err)
	}
	var payload serviceAccountPayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return nil, fmt.Errorf("invalid payload JSON: %w", err)
	}
	if payload.Exp > 0 && time.Now().Unix() > payload.Exp {
		return nil, fmt.Errorf("token expired")
	}
	if payload.Subject == "" {
		return nil, fmt.Errorf("missing subject")
	}
	return &payload, nil
}

// GenerateToken signs a new service-account token. Used by each service's
// outbound HTTP client to authenticate to its peers.
func GenerateToken(secret []byte, subject, service string, ttl time.Duration) (string, error) {
	payload := serviceAccountPayload{Subject: subject, Service: service, Exp: time.Now().Add(ttl).Unix()}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	payloadB64 := base64.RawURLEncoding.EncodeToString(payloadBytes)

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(payloadB64))
	sigB64 := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))

	return payloadB64 + "." + sigB64, nil
}
