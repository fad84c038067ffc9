package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// OwnerHeader carries the caller id when no JWT secret is configured.
const OwnerHeader = "X-Owner-ID"

type TokenClaims struct {
	Sub    string `json:"sub"`
	Locale string `json:"locale,omitempty"`
	Exp    int64  `json:"exp,omitempty"`
	Issuer string `json:"iss,omitempty"`
}

type ownerKey struct{}

var (
	errMalformedToken = errors.New("invalid token")
	errBadSignature   = errors.New("invalid signature")
	errExpiredToken   = errors.New("token expired")
)

func SignJWT(secret string, claims TokenClaims) (string, error) {
	headerJSON, err := json.Marshal(map[string]string{"alg": "HS256", "typ": "JWT"})
	if err != nil {
		return "", err
	}
	payloadJSON, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	data := base64.RawURLEncoding.EncodeToString(headerJSON) + "." + base64.RawURLEncoding.EncodeToString(payloadJSON)
	return data + "." + hmacSign(secret, data), nil
}

func hmacSign(secret, data string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(data))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func VerifyJWT(secret, token string) (*TokenClaims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, errMalformedToken
	}
	expected := hmacSign(secret, parts[0]+"."+parts[1])
	if !hmac.Equal([]byte(expected), []byte(parts[2])) {
		return nil, errBadSignature
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, errMalformedToken
	}
	var claims TokenClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, errMalformedToken
	}
	if claims.Exp != 0 && time.Now().Unix() > claims.Exp {
		return nil, errExpiredToken
	}
	if strings.TrimSpace(claims.Sub) == "" {
		return nil, errMalformedToken
	}
	return &claims, nil
}

// Owner resolves the caller id. With a secret it requires a valid HS256
// bearer token and uses its subject; without one it trusts OwnerHeader,
// which is only meant for development and internal deployments.
func Owner(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				owner := strings.TrimSpace(r.Header.Get(OwnerHeader))
				if owner == "" {
					writeError(w, http.StatusUnauthorized, "unauthorized", "missing "+OwnerHeader+" header")
					return
				}
				next.ServeHTTP(w, r.WithContext(ContextWithOwner(r.Context(), owner)))
				return
			}

			scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") {
				writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
				return
			}
			claims, err := VerifyJWT(secret, strings.TrimSpace(token))
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
				return
			}
			ctx := ContextWithOwner(r.Context(), claims.Sub)
			if claims.Locale != "" {
				ctx = context.WithValue(ctx, claimLocaleKey{}, claims.Locale)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func OwnerFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ownerKey{}).(string); ok {
		return v
	}
	return ""
}

// ContextWithOwner stores owner in ctx and tags the request logger with it.
func ContextWithOwner(ctx context.Context, owner string) context.Context {
	if strings.TrimSpace(owner) == "" {
		return ctx
	}
	zerolog.Ctx(ctx).UpdateContext(func(c zerolog.Context) zerolog.Context {
		return c.Str("owner_id", owner)
	})
	return context.WithValue(ctx, ownerKey{}, owner)
}

func writeError(w http.ResponseWriter, code int, errCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"code": errCode, "message": message},
	})
}
