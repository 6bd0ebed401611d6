package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"craftcv/internal/auth"
	"craftcv/internal/database"
	"craftcv/internal/store"
)

type accountStore interface {
	Register(ctx context.Context, user *database.User, orgName string) (*database.Organization, error)
	ByLogin(ctx context.Context, login string) (*database.User, error)
	ByID(ctx context.Context, id uint) (*database.User, error)
	SetPassword(ctx context.Context, id uint, hash string) error
}

type tokenIssuer interface {
	Issue(sub auth.Subject) (auth.TokenPair, error)
	ParseRefresh(raw string) (*auth.Claims, error)
}

type refreshRevoker interface {
	Revoke(ctx context.Context, claims *auth.Claims) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

type loginThrottle interface {
	Allow(ctx context.Context, ip, login string) error
	RecordFailure(ctx context.Context, login string) error
	Reset(ctx context.Context, login string) error
}

// AuthHandler 处理注册、登录、令牌轮换与改密。
type AuthHandler struct {
	accounts accountStore
	tokens   tokenIssuer
	revoked  refreshRevoker
	throttle loginThrottle
	cookie   refreshCookie
	logger   *slog.Logger
}

func NewAuthHandler(accounts accountStore, tokens tokenIssuer, revoked refreshRevoker, throttle loginThrottle, logger *slog.Logger, cookieDomain string) *AuthHandler {
	return &AuthHandler{
		accounts: accounts,
		tokens:   tokens,
		revoked:  revoked,
		throttle: throttle,
		cookie:   refreshCookie{domain: strings.TrimSpace(cookieDomain)},
		logger:   logger,
	}
}

type registerRequest struct {
	Username         string `json:"username" binding:"required,min=3,max=64"`
	Email            string `json:"email" binding:"required,email,max=255"`
	Password         string `json:"password" binding:"required"`
	OrganizationName string `json:"organization_name" binding:"max=128"`
}

type accountResponse struct {
	UserID           uint   `json:"user_id"`
	Username         string `json:"username"`
	Email            string `json:"email"`
	OrganizationID   uint   `json:"organization_id"`
	OrganizationName string `json:"organization_name"`
}

// Register POST /auth/register
// 组织名省略时使用用户名。
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	if err := auth.ValidatePassword(req.Password); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	logger := loggerFor(c, h.logger).With(slog.String("username", req.Username))

	hashed, err := auth.HashPassword(req.Password)
	if err != nil {
		logger.Error("hash password failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	orgName := strings.TrimSpace(req.OrganizationName)
	if orgName == "" {
		orgName = req.Username
	}
	user := database.User{Username: req.Username, Email: req.Email, PasswordHash: hashed}
	org, err := h.accounts.Register(ctx, &user, orgName)
	if err != nil {
		if errors.Is(err, store.ErrAccountExists) {
			Conflict(c, err.Error())
			return
		}
		logger.Error("register failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	logger.Info("account registered",
		slog.Uint64("user_id", uint64(user.ID)),
		slog.Uint64("organization_id", uint64(org.ID)),
	)
	c.JSON(http.StatusCreated, accountResponse{
		UserID:           user.ID,
		Username:         user.Username,
		Email:            user.Email,
		OrganizationID:   org.ID,
		OrganizationName: org.Name,
	})
}

// loginRequest 的 Login 可以是用户名或注册邮箱。
type loginRequest struct {
	Login    string `json:"login" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type tokenResponse struct {
	AccessToken        string    `json:"access_token"`
	TokenType          string    `json:"token_type"`
	ExpiresAt          time.Time `json:"expires_at"`
	OrganizationID     uint      `json:"organization_id,omitempty"`
	MustChangePassword bool      `json:"must_change_password"`
}

// Login POST /auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	logger := loggerFor(c, h.logger).With(slog.String("login", req.Login))

	if err := h.throttle.Allow(ctx, c.ClientIP(), req.Login); err != nil {
		logger.Info("login throttled", slog.Any("reason", err))
		Error(c, http.StatusTooManyRequests, err.Error())
		return
	}

	user, err := h.accounts.ByLogin(ctx, req.Login)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		logger.Error("login lookup failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	if user == nil || !auth.VerifyPassword(req.Password, user.PasswordHash) {
		if err := h.throttle.RecordFailure(ctx, req.Login); err != nil {
			logger.Warn("record login failure failed", slog.Any("error", err))
		}
		logger.Info("login rejected")
		Unauthorized(c)
		return
	}
	if err := h.throttle.Reset(ctx, req.Login); err != nil {
		logger.Warn("reset login failures failed", slog.Any("error", err))
	}

	h.issue(c, logger, user)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh POST /auth/refresh
// 每次刷新都吊销旧的刷新令牌。
func (h *AuthHandler) Refresh(c *gin.Context) {
	ctx := c.Request.Context()
	logger := loggerFor(c, h.logger)

	claims, ok := h.validRefreshClaims(c, logger)
	if !ok {
		Unauthorized(c)
		return
	}

	user, err := h.accounts.ByID(ctx, claims.UserID)
	if err != nil {
		logger.Info("refresh for unknown user", slog.Any("error", err))
		Unauthorized(c)
		return
	}
	if err := h.revoked.Revoke(ctx, claims); err != nil {
		logger.Error("revoke rotated refresh token failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	h.issue(c, logger.With(slog.Uint64("user_id", uint64(user.ID))), user)
}

// Logout POST /auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	logger := loggerFor(c, h.logger)
	claims, ok := h.validRefreshClaims(c, logger)
	if ok {
		if err := h.revoked.Revoke(c.Request.Context(), claims); err != nil {
			logger.Error("revoke refresh token failed", slog.Any("error", err))
			Internal(c, "internal error")
			return
		}
	}
	h.cookie.clear(c)
	c.Status(http.StatusNoContent)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
	ConfirmPassword string `json:"confirm_password" binding:"required"`
}

// ChangePassword POST /auth/change-password
// 成功后清除强制改密标记并签发新的令牌。
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	switch {
	case req.NewPassword != req.ConfirmPassword:
		BadRequest(c, "password confirmation does not match")
		return
	case req.NewPassword == req.CurrentPassword:
		BadRequest(c, "new password must be different from current password")
		return
	}
	if err := auth.ValidatePassword(req.NewPassword); err != nil {
		BadRequest(c, err.Error())
		return
	}

	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	ctx := c.Request.Context()
	logger := loggerFor(c, h.logger).With(slog.Uint64("user_id", uint64(userID)))

	user, err := h.accounts.ByID(ctx, userID)
	if err != nil {
		logger.Info("change password for unknown user", slog.Any("error", err))
		Unauthorized(c)
		return
	}
	if !auth.VerifyPassword(req.CurrentPassword, user.PasswordHash) {
		logger.Info("change password rejected: current password mismatch")
		Unauthorized(c)
		return
	}

	hashed, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		logger.Error("hash password failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	if err := h.accounts.SetPassword(ctx, user.ID, hashed); err != nil {
		logger.Error("update password failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	user.MustChangePassword = false

	if raw := h.cookie.read(c); raw != "" {
		if claims, err := h.tokens.ParseRefresh(raw); err == nil {
			if err := h.revoked.Revoke(ctx, claims); err != nil {
				logger.Warn("revoke previous refresh token failed", slog.Any("error", err))
			}
		}
	}

	logger.Info("password changed")
	h.issue(c, logger, user)
}

// validRefreshClaims 读取 Cookie 或请求体中的刷新令牌，并确认未被吊销。
func (h *AuthHandler) validRefreshClaims(c *gin.Context, logger *slog.Logger) (*auth.Claims, bool) {
	raw := h.cookie.read(c)
	if raw == "" {
		var req refreshRequest
		if err := c.ShouldBindJSON(&req); err == nil {
			raw = req.RefreshToken
		}
	}
	if raw == "" {
		return nil, false
	}

	claims, err := h.tokens.ParseRefresh(raw)
	if err != nil {
		logger.Info("refresh token rejected", slog.Any("error", err))
		return nil, false
	}
	revoked, err := h.revoked.IsRevoked(c.Request.Context(), claims.ID)
	if err != nil {
		logger.Error("refresh revocation lookup failed", slog.Any("error", err))
		return nil, false
	}
	if revoked {
		logger.Info("refresh token already revoked", slog.String("jti", claims.ID))
		return nil, false
	}
	return claims, true
}

func (h *AuthHandler) issue(c *gin.Context, logger *slog.Logger, user *database.User) {
	sub := auth.Subject{UserID: user.ID, MustChangePassword: user.MustChangePassword}
	if user.Organization != nil {
		sub.OrganizationID = user.Organization.ID
	}
	pair, err := h.tokens.Issue(sub)
	if err != nil {
		logger.Error("issue tokens failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	h.cookie.set(c, pair.RefreshToken, pair.RefreshExpiresAt)
	c.JSON(http.StatusOK, tokenResponse{
		AccessToken:        pair.AccessToken,
		TokenType:          "Bearer",
		ExpiresAt:          pair.AccessExpiresAt,
		OrganizationID:     sub.OrganizationID,
		MustChangePassword: sub.MustChangePassword,
	})
}

const refreshCookieName = "craftcv_refresh"

// refreshCookie 以 HttpOnly Cookie 下发刷新令牌，路径限定在认证接口。
type refreshCookie struct {
	domain string
}

func (rc refreshCookie) read(c *gin.Context) string {
	if token, err := c.Cookie(refreshCookieName); err == nil {
		return token
	}
	return ""
}

func (rc refreshCookie) set(c *gin.Context, token string, expiresAt time.Time) {
	maxAge := int(time.Until(expiresAt).Seconds())
	if maxAge <= 0 {
		maxAge = int(time.Hour.Seconds())
	}
	http.SetCookie(c.Writer, rc.build(c, token, maxAge, expiresAt))
}

func (rc refreshCookie) clear(c *gin.Context) {
	http.SetCookie(c.Writer, rc.build(c, "", -1, time.Time{}))
}

func (rc refreshCookie) build(c *gin.Context, value string, maxAge int, expires time.Time) *http.Cookie {
	secure := c.Request.TLS != nil || strings.EqualFold(c.GetHeader("X-Forwarded-Proto"), "https")
	return &http.Cookie{
		Name:     refreshCookieName,
		Value:    value,
		Path:     "/api/v1/auth",
		Domain:   rc.domain,
		MaxAge:   maxAge,
		Expires:  expires,
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}
