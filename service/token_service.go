package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	defaultTokenTTL = 7 * 24 * time.Hour

	tokenKeyPrefix      = "channel:token:"
	userTokensKeyPrefix = "channel:user_tokens:"

	// 用户 token 集合比单个 token 多活一天，便于自然过期
	userSetGrace = 24 * time.Hour
)

// TokenService Redis opaque token 存储
//
//	channel:token:{token}          -> userID (String, TTL)
//	channel:user_tokens:{userID}   -> Set(token...)
type TokenService struct {
	rdb *redis.Client
}

func NewTokenService(rdb *redis.Client) *TokenService {
	return &TokenService{rdb: rdb}
}

var errNoRedis = errors.New("token store: redis client is nil")

func (s *TokenService) ready() error {
	if s == nil || s.rdb == nil {
		return errNoRedis
	}
	return nil
}

func tokenKey(token string) string { return tokenKeyPrefix + token }
func userTokensKey(uid string) string { return userTokensKeyPrefix + uid }

func newOpaqueToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// IssueToken 生成 token 并写入 Redis，ttl<=0 用默认 7 天
func (s *TokenService) IssueToken(ctx context.Context, userID string, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("empty user id: %w", ErrValidation)
	}
	if err := s.ready(); err != nil {
		return "", err
	}
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	token, err := newOpaqueToken()
	if err != nil {
		return "", err
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, tokenKey(token), userID, ttl)
	pipe.SAdd(ctx, userTokensKey(userID), token)
	pipe.Expire(ctx, userTokensKey(userID), ttl+userSetGrace)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("store token: %w", err)
	}
	return token, nil
}

// Lookup token 对应的 userID；不存在或已过期返回 ErrUnauthorized
func (s *TokenService) Lookup(ctx context.Context, token string) (string, error) {
	if err := s.ready(); err != nil {
		return "", err
	}
	uid, err := s.rdb.Get(ctx, tokenKey(token)).Result()
	switch {
	case errors.Is(err, redis.Nil), err == nil && uid == "":
		return "", fmt.Errorf("token not found: %w", ErrUnauthorized)
	case err != nil:
		return "", err
	}
	return uid, nil
}

// Touch 把 token 的剩余有效期重置为 ttl（滑动过期）
func (s *TokenService) Touch(ctx context.Context, token, userID string, ttl time.Duration) error {
	if err := s.ready(); err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	pipe := s.rdb.TxPipeline()
	pipe.Expire(ctx, tokenKey(token), ttl)
	pipe.Expire(ctx, userTokensKey(userID), ttl+userSetGrace)
	_, err := pipe.Exec(ctx)
	return err
}

// RevokeToken 删除 token，同时从所属用户的集合里移除
func (s *TokenService) RevokeToken(ctx context.Context, token string) error {
	if err := s.ready(); err != nil {
		return err
	}
	uid, err := s.Lookup(ctx, token)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			return nil
		}
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, tokenKey(token))
	pipe.SRem(ctx, userTokensKey(uid), token)
	_, err = pipe.Exec(ctx)
	return err
}

// RevokeUser 注销用户名下全部 token
func (s *TokenService) RevokeUser(ctx context.Context, userID string) error {
	if err := s.ready(); err != nil {
		return err
	}
	tokens, err := s.rdb.SMembers(ctx, userTokensKey(userID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}

	pipe := s.rdb.TxPipeline()
	for _, t := range tokens {
		pipe.Del(ctx, tokenKey(t))
	}
	pipe.Del(ctx, userTokensKey(userID))
	_, err = pipe.Exec(ctx)
	return err
}
