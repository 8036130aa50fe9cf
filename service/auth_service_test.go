package service

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func TestAuthService_ExtractToken_BearerFirst(t *testing.T) {
	a := NewAuthService(nil)

	req := &http.Request{Header: make(http.Header), URL: &url.URL{RawQuery: "token=q"}}
	req.Header.Set("Authorization", "Bearer headerToken")

	got := a.ExtractToken(req)
	if got != "headerToken" {
		t.Fatalf("expected headerToken, got %q", got)
	}
}

func TestAuthService_ExtractToken_QueryFallback(t *testing.T) {
	a := NewAuthService(nil)

	u, _ := url.Parse("http://example.com/path?token=queryToken")
	req := &http.Request{Header: make(http.Header), URL: u}

	got := a.ExtractToken(req)
	if got != "queryToken" {
		t.Fatalf("expected queryToken, got %q", got)
	}
}

func TestAuthService_RedisToken(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	a := NewAuthService(rdb)
	ctx := context.Background()

	token, err := a.Tokens().IssueToken(ctx, "user-1", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken err: %v", err)
	}

	uid, err := a.Authenticate(ctx, token)
	if err != nil || uid != "user-1" {
		t.Fatalf("Authenticate: uid=%q err=%v", uid, err)
	}

	if err := a.RevokeToken(ctx, token); err != nil {
		t.Fatalf("RevokeToken err: %v", err)
	}
	if _, err := a.Authenticate(ctx, token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized after revoke, got %v", err)
	}
}

func TestAuthService_TokenExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	a := NewAuthService(rdb)
	ctx := context.Background()

	token, err := a.Tokens().IssueToken(ctx, "user-1", time.Minute)
	if err != nil {
		t.Fatalf("IssueToken err: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	if _, err := a.Authenticate(ctx, token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized after ttl, got %v", err)
	}
}

func TestAuthService_RevokeAllTokensByUser(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	a := NewAuthService(rdb)
	ctx := context.Background()

	t1, _ := a.Tokens().IssueToken(ctx, "user-1", time.Hour)
	t2, _ := a.Tokens().IssueToken(ctx, "user-1", time.Hour)

	if err := a.RevokeAllTokensByUser(ctx, "user-1"); err != nil {
		t.Fatalf("RevokeAllTokensByUser err: %v", err)
	}
	for _, tk := range []string{t1, t2} {
		if _, err := a.Authenticate(ctx, tk); err == nil {
			t.Fatalf("token %s should be revoked", tk)
		}
	}
}

func TestAuthService_JWT(t *testing.T) {
	v := NewJWTVerifier("secret", "")
	a := NewAuthService(nil).WithJWT(v)

	token, err := v.Sign("user-42", time.Hour)
	if err != nil {
		t.Fatalf("Sign err: %v", err)
	}
	uid, err := a.Authenticate(context.Background(), token)
	if err != nil || uid != "user-42" {
		t.Fatalf("Authenticate: uid=%q err=%v", uid, err)
	}

	other := NewJWTVerifier("other-secret", "")
	forged, _ := other.Sign("user-42", time.Hour)
	if _, err := a.Authenticate(context.Background(), forged); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for bad signature, got %v", err)
	}

	expired, _ := v.Sign("user-42", -time.Minute)
	if _, err := a.Authenticate(context.Background(), expired); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for expired token, got %v", err)
	}
}

func TestAuthService_NoStore(t *testing.T) {
	a := NewAuthService(nil)
	if _, err := a.Authenticate(context.Background(), "opaque"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := a.Authenticate(context.Background(), "  "); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for empty token, got %v", err)
	}
}

func TestAuthService_IssueToken(t *testing.T) {
	mr := miniredis.RunT(t)
	a := NewAuthService(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	tok, err := a.IssueToken(context.Background(), "alice", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if uid, err := a.Authenticate(context.Background(), tok); err != nil || uid != "alice" {
		t.Fatalf("redis token: uid=%q err=%v", uid, err)
	}

	a.WithJWT(NewJWTVerifier("s3cret", ""))
	tok, err = a.IssueToken(context.Background(), "bob", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if !looksLikeJWT(tok) {
		t.Fatalf("expected a JWT, got %q", tok)
	}
	if uid, err := a.Authenticate(context.Background(), tok); err != nil || uid != "bob" {
		t.Fatalf("jwt: uid=%q err=%v", uid, err)
	}

	if _, err := NewAuthService(nil).IssueToken(context.Background(), "x", time.Hour); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("no backend: %v", err)
	}
}

func TestTokenService_TouchSlidesExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	ts := NewTokenService(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	ctx := context.Background()

	token, err := ts.IssueToken(ctx, "user-1", time.Minute)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	mr.FastForward(50 * time.Second)
	if err := ts.Touch(ctx, token, "user-1", time.Minute); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	if got := mr.TTL(tokenKey(token)); got != time.Minute {
		t.Fatalf("ttl after touch = %v", got)
	}
	mr.FastForward(50 * time.Second)
	if uid, err := ts.Lookup(ctx, token); err != nil || uid != "user-1" {
		t.Fatalf("touched token should still be valid: uid=%q err=%v", uid, err)
	}
}

func TestTokenService_RevokeTokenLeavesOtherTokens(t *testing.T) {
	mr := miniredis.RunT(t)
	ts := NewTokenService(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	ctx := context.Background()

	t1, _ := ts.IssueToken(ctx, "user-1", time.Hour)
	t2, _ := ts.IssueToken(ctx, "user-1", time.Hour)
	if err := ts.RevokeToken(ctx, t1); err != nil {
		t.Fatalf("RevokeToken: %v", err)
	}
	members, err := mr.Members(userTokensKey("user-1"))
	if err != nil {
		t.Fatalf("Members: %v", err)
	}
	if len(members) != 1 || members[0] != t2 {
		t.Fatalf("user set should only hold t2, got %v", members)
	}
	if err := ts.RevokeToken(ctx, t1); err != nil {
		t.Fatalf("revoking twice should be a no-op, got %v", err)
	}
}

func TestTokenService_NoRedis(t *testing.T) {
	var ts *TokenService
	if _, err := ts.Lookup(context.Background(), "x"); !errors.Is(err, errNoRedis) {
		t.Fatalf("expected errNoRedis, got %v", err)
	}
	if _, err := NewTokenService(nil).IssueToken(context.Background(), "", time.Hour); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for empty user, got %v", err)
	}
}

func TestAuthService_TouchIgnoresJWT(t *testing.T) {
	mr := miniredis.RunT(t)
	v := NewJWTVerifier("secret", "")
	a := NewAuthService(redis.NewClient(&redis.Options{Addr: mr.Addr()})).WithJWT(v)

	jwtToken, _ := v.Sign("user-1", time.Hour)
	if err := a.Touch(context.Background(), jwtToken, "user-1", time.Hour); err != nil {
		t.Fatalf("Touch on JWT should be a no-op, got %v", err)
	}
	if keys := mr.Keys(); len(keys) != 0 {
		t.Fatalf("JWT touch should not write redis, got %v", keys)
	}
}
