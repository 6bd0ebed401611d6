package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "craftcv"

// TokenKind 区分访问令牌与刷新令牌。
type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
)

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrWrongTokenKind = errors.New("wrong token kind")
)

// Claims 是令牌中的业务字段。OrganizationID 与 MustChangePassword 只出现在访问令牌中。
type Claims struct {
	UserID             uint      `json:"uid"`
	OrganizationID     uint      `json:"org,omitempty"`
	Kind               TokenKind `json:"kind"`
	MustChangePassword bool      `json:"pwd_change,omitempty"`
	jwt.RegisteredClaims
}

// Subject 描述令牌签发对象。
type Subject struct {
	UserID             uint
	OrganizationID     uint
	MustChangePassword bool
}

// TokenPair 封装一次签发的两枚令牌。
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// TokenService 使用 RS256 签发与校验令牌。
type TokenService struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenService 解析 PEM 密钥对。
func NewTokenService(privateKeyPEM, publicKeyPEM []byte, accessTTL, refreshTTL time.Duration) (*TokenService, error) {
	if len(privateKeyPEM) == 0 || len(publicKeyPEM) == 0 {
		return nil, errors.New("both private and public key pem are required")
	}
	if accessTTL <= 0 || refreshTTL <= 0 {
		return nil, errors.New("token ttl must be positive")
	}

	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse rsa private key: %w", err)
	}
	publicKey, err := jwt.ParseRSAPublicKeyFromPEM(publicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse rsa public key: %w", err)
	}

	return &TokenService{
		privateKey: privateKey,
		publicKey:  publicKey,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}, nil
}

// Issue 为 sub 签发一对令牌。刷新令牌带唯一 jti，用于吊销。
func (s *TokenService) Issue(sub Subject) (TokenPair, error) {
	now := s.now()
	subject := strconv.FormatUint(uint64(sub.UserID), 10)
	pair := TokenPair{
		AccessExpiresAt:  now.Add(s.accessTTL),
		RefreshExpiresAt: now.Add(s.refreshTTL),
	}

	access := Claims{
		UserID:             sub.UserID,
		OrganizationID:     sub.OrganizationID,
		Kind:               KindAccess,
		MustChangePassword: sub.MustChangePassword,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(pair.AccessExpiresAt),
		},
	}
	refresh := Claims{
		UserID: sub.UserID,
		Kind:   KindRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(pair.RefreshExpiresAt),
		},
	}

	var err error
	if pair.AccessToken, err = s.sign(access); err != nil {
		return TokenPair{}, err
	}
	if pair.RefreshToken, err = s.sign(refresh); err != nil {
		return TokenPair{}, err
	}
	return pair, nil
}

// ParseAccess 校验访问令牌。
func (s *TokenService) ParseAccess(raw string) (*Claims, error) {
	return s.parse(raw, KindAccess)
}

// ParseRefresh 校验刷新令牌，缺少 jti 的刷新令牌视为无效。
func (s *TokenService) ParseRefresh(raw string) (*Claims, error) {
	claims, err := s.parse(raw, KindRefresh)
	if err != nil {
		return nil, err
	}
	if claims.ID == "" {
		return nil, fmt.Errorf("%w: missing jti", ErrInvalidToken)
	}
	return claims, nil
}

func (s *TokenService) parse(raw string, kind TokenKind) (*Claims, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidToken)
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return s.publicKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Kind != kind {
		return nil, fmt.Errorf("%w: got %q", ErrWrongTokenKind, claims.Kind)
	}
	return claims, nil
}

func (s *TokenService) sign(claims Claims) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.privateKey)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", claims.Kind, err)
	}
	return signed, nil
}
