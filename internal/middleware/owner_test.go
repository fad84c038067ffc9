package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSignAndVerifyJWT(t *testing.T) {
	claims := TokenClaims{Sub: "user-123", Locale: "id", Exp: time.Now().Add(time.Hour).Unix()}
	token, err := SignJWT("secret", claims)
	if err != nil {
		t.Fatalf("SignJWT() unexpected error: %v", err)
	}
	parsed, err := VerifyJWT("secret", token)
	if err != nil {
		t.Fatalf("VerifyJWT() unexpected error: %v", err)
	}
	if parsed.Sub != claims.Sub || parsed.Locale != claims.Locale {
		t.Fatalf("VerifyJWT() returned %+v, want %+v", parsed, claims)
	}
}

func TestVerifyJWTRejects(t *testing.T) {
	valid, _ := SignJWT("secret-a", TokenClaims{Sub: "u", Exp: time.Now().Add(time.Hour).Unix()})
	expired, _ := SignJWT("secret-a", TokenClaims{Sub: "u", Exp: time.Now().Add(-time.Minute).Unix()})
	noSubject, _ := SignJWT("secret-a", TokenClaims{Exp: time.Now().Add(time.Hour).Unix()})

	tests := []struct {
		name   string
		secret string
		token  string
	}{
		{name: "wrong secret", secret: "secret-b", token: valid},
		{name: "expired", secret: "secret-a", token: expired},
		{name: "missing subject", secret: "secret-a", token: noSubject},
		{name: "malformed", secret: "secret-a", token: "not-a-token"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := VerifyJWT(tc.secret, tc.token); err == nil {
				t.Fatalf("VerifyJWT() expected error")
			}
		})
	}
}

func TestOwnerMiddleware(t *testing.T) {
	token, _ := SignJWT("s3cret", TokenClaims{Sub: "owner-jwt", Exp: time.Now().Add(time.Hour).Unix()})

	tests := []struct {
		name      string
		secret    string
		header    map[string]string
		wantCode  int
		wantOwner string
	}{
		{name: "header owner without secret", header: map[string]string{OwnerHeader: "owner-h"}, wantCode: http.StatusOK, wantOwner: "owner-h"},
		{name: "missing header without secret", wantCode: http.StatusUnauthorized},
		{name: "bearer token", secret: "s3cret", header: map[string]string{"Authorization": "Bearer " + token}, wantCode: http.StatusOK, wantOwner: "owner-jwt"},
		{name: "header ignored with secret", secret: "s3cret", header: map[string]string{OwnerHeader: "owner-h"}, wantCode: http.StatusUnauthorized},
		{name: "bad token", secret: "other", header: map[string]string{"Authorization": "Bearer " + token}, wantCode: http.StatusUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var owner string
			h := Owner(tc.secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				owner = OwnerFromContext(r.Context())
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tc.header {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tc.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantCode)
			}
			if owner != tc.wantOwner {
				t.Fatalf("owner = %q, want %q", owner, tc.wantOwner)
			}
		})
	}
}
