// Pub/Sub push 요청 인증
//
// 모드:
//   - oidc: Pub/Sub 가 붙여주는 Google 서명 OIDC 토큰 검증 (audience, 서비스 계정)
//   - hmac: 공유 비밀키로 서명한 HS256 토큰 검증 (GCP 밖에서 push 를 보낼 때)
//   - none: 인증하지 않음

package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/kube-rca/cpu-alert-notifier/internal/config"
)

const (
	googleIssuer   = "https://accounts.google.com"
	googleCertsURL = "https://www.googleapis.com/oauth2/v3/certs"
)

var ErrUnauthorized = errors.New("unauthorized")

// PushAuthenticator - bearer 토큰 검증
type PushAuthenticator interface {
	Authenticate(ctx context.Context, token string) error
}

// NewPushAuthenticator - 설정된 모드에 맞는 인증기 생성 (none 이면 nil)
func NewPushAuthenticator(ctx context.Context, cfg config.AuthConfig) (PushAuthenticator, error) {
	switch cfg.Mode {
	case config.AuthNone, "":
		return nil, nil
	case config.AuthOIDC:
		keySet := oidc.NewRemoteKeySet(ctx, googleCertsURL)
		return NewOIDCAuthenticator(keySet, googleIssuer, cfg.Audience, cfg.ServiceAccount), nil
	case config.AuthHMAC:
		return NewHMACAuthenticator([]byte(cfg.HMACSecret), cfg.Audience), nil
	default:
		return nil, fmt.Errorf("unknown push auth mode %q", cfg.Mode)
	}
}

// OIDCAuthenticator - Google 서명 ID 토큰 검증
type OIDCAuthenticator struct {
	verifier       *oidc.IDTokenVerifier
	serviceAccount string
}

func NewOIDCAuthenticator(keySet oidc.KeySet, issuer, audience, serviceAccount string) *OIDCAuthenticator {
	return &OIDCAuthenticator{
		verifier:       oidc.NewVerifier(issuer, keySet, &oidc.Config{ClientID: audience}),
		serviceAccount: serviceAccount,
	}
}

type pushClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
}

func (a *OIDCAuthenticator) Authenticate(ctx context.Context, token string) error {
	idToken, err := a.verifier.Verify(ctx, token)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if a.serviceAccount == "" {
		return nil
	}

	var claims pushClaims
	if err := idToken.Claims(&claims); err != nil {
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if !claims.EmailVerified || claims.Email != a.serviceAccount {
		return fmt.Errorf("%w: unexpected service account %q", ErrUnauthorized, claims.Email)
	}
	return nil
}

// HMACAuthenticator - 공유 비밀키 HS256 토큰 검증
type HMACAuthenticator struct {
	secret   []byte
	audience string
}

func NewHMACAuthenticator(secret []byte, audience string) *HMACAuthenticator {
	return &HMACAuthenticator{secret: secret, audience: audience}
}

func (a *HMACAuthenticator) Authenticate(_ context.Context, tokenStr string) error {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if a.audience != "" {
		opts = append(opts, jwt.WithAudience(a.audience))
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrUnauthorized
		}
		return a.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return nil
}
