// Package user regroupe les routes authentifiées du client : compte, panier, commandes.
package user

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/markbates/goth"
	"github.com/markbates/goth/gothic"

	"mehashop_back_end/internal/auth"
	"mehashop_back_end/internal/cache"
	"mehashop_back_end/internal/handlers"
	"mehashop_back_end/internal/middleware"
	"mehashop_back_end/internal/models"
	"mehashop_back_end/internal/store"
	"mehashop_back_end/internal/utils"
)

const (
	minPasswordLen = 8
	oauthStateTTL  = 10 * time.Minute
)

type Auditor interface {
	Log(entry models.AuditLog)
}

type AuthHandler struct {
	users          store.Users
	issuer         *utils.TokenIssuer
	cache          *cache.Cache
	audit          Auditor
	frontendURL    string
	allowedOrigins []string
}

func NewAuthHandler(users store.Users, issuer *utils.TokenIssuer, c *cache.Cache, audit Auditor, frontendURL string, allowedOrigins []string) *AuthHandler {
	if audit == nil {
		audit = utils.NewAuditLogger(nil)
	}
	return &AuthHandler{
		users:          users,
		issuer:         issuer,
		cache:          c,
		audit:          audit,
		frontendURL:    frontendURL,
		allowedOrigins: allowedOrigins,
	}
}

func auditEntry(c *gin.Context, userID int64, action, resource, resourceID string, err error) models.AuditLog {
	entry := models.AuditLog{
		UserID:     strconv.FormatInt(userID, 10),
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		IPAddress:  c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
		Success:    err == nil,
	}
	if err != nil {
		entry.ErrorMsg = err.Error()
	}
	return entry
}

func (h *AuthHandler) Register(c *gin.Context) {
	var input struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	input.Username = strings.TrimSpace(input.Username)
	input.Email = strings.TrimSpace(input.Email)

	switch {
	case input.Username == "":
		c.JSON(http.StatusBadRequest, gin.H{"error": "username is required"})
		return
	case input.Email != "" && !strings.Contains(input.Email, "@"):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid email"})
		return
	case len(input.Password) < minPasswordLen:
		c.JSON(http.StatusBadRequest, gin.H{"error": "password must be at least 8 characters"})
		return
	}

	hash, err := utils.HashPassword(input.Password)
	if err != nil {
		handlers.RespondError(c, err)
		return
	}

	u := models.User{Username: input.Username, Email: input.Email, Password: hash}
	if err := h.users.CreateUser(c.Request.Context(), &u); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			c.JSON(http.StatusConflict, gin.H{"error": "user already exists"})
			return
		}
		handlers.RespondError(c, err)
		return
	}
	h.audit.Log(auditEntry(c, u.ID, utils.ActionUserCreate, utils.ResourceUser, strconv.FormatInt(u.ID, 10), nil))

	token, err := h.issuer.Generate(u)
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	log.Printf("👤 Utilisateur %d inscrit (%s)", u.ID, u.Username)
	c.JSON(http.StatusCreated, gin.H{"token": token, "user": u})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var input struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	login := strings.TrimSpace(input.Username)
	if login == "" {
		login = strings.TrimSpace(input.Email)
	}
	if login == "" || input.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username or email and password are required"})
		return
	}

	u, err := h.users.UserByLogin(c.Request.Context(), login)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		handlers.RespondError(c, err)
		return
	}
	ok := false
	if err == nil && u.Password != "" {
		ok, err = utils.VerifyPassword(input.Password, u.Password)
		if err != nil {
			log.Printf("⚠️ Hash illisible pour l'utilisateur %d: %v", u.ID, err)
		}
	}
	if !ok {
		h.audit.Log(auditEntry(c, u.ID, utils.ActionLoginFailed, utils.ResourceUser, login, errors.New("invalid credentials")))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, err := h.issuer.Generate(u)
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	h.audit.Log(auditEntry(c, u.ID, utils.ActionLoginSuccess, utils.ResourceUser, strconv.FormatInt(u.ID, 10), nil))
	c.JSON(http.StatusOK, gin.H{"token": token})
}

// Logout révoque le jeton courant jusqu'à son expiration.
func (h *AuthHandler) Logout(c *gin.Context) {
	userID := middleware.UserID(c)
	jti := c.GetString(middleware.CtxTokenID)
	if err := h.cache.BlacklistToken(c.Request.Context(), jti, middleware.TokenRemaining(c)); err != nil {
		handlers.RespondError(c, err)
		return
	}
	h.audit.Log(auditEntry(c, userID, utils.ActionLogout, utils.ResourceUser, strconv.FormatInt(userID, 10), nil))
	log.Printf("👋 Jeton %s révoqué (utilisateur %d)", jti, userID)
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

func (h *AuthHandler) Me(c *gin.Context) {
	u, err := h.users.UserByID(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

// ================== AUTH SOCIALE ==================

func oauthRedirectKey(state string) string { return "oauth_redirect:" + state }

func (h *AuthHandler) BeginOAuth(c *gin.Context) {
	provider := c.Param("provider")
	if _, err := goth.GetProvider(provider); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unsupported provider"})
		return
	}

	state := uuid.NewString()
	target := auth.SafeRedirect(c.Query("redirect_url"), h.allowedOrigins, h.frontendURL)
	if err := h.cache.SetJSON(c.Request.Context(), oauthRedirectKey(state), target, oauthStateTTL); err != nil {
		log.Printf("⚠️ Redirection OAuth non mémorisée: %v", err)
	}

	q := c.Request.URL.Query()
	q.Set("provider", provider)
	q.Set("state", state)
	c.Request.URL.RawQuery = q.Encode()
	c.Request = auth.WithProvider(c.Request, provider)
	gothic.BeginAuthHandler(c.Writer, c.Request)
}

func (h *AuthHandler) OAuthCallback(c *gin.Context) {
	provider := c.Param("provider")
	c.Request = auth.WithProvider(c.Request, provider)
	ctx := c.Request.Context()

	gu, err := gothic.CompleteUserAuth(c.Writer, c.Request)
	if err != nil {
		log.Printf("❌ OAuth %s: %v", provider, err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "oauth authentication failed"})
		return
	}

	u, err := auth.FindOrCreate(ctx, h.users, gu)
	if err != nil {
		h.audit.Log(auditEntry(c, 0, utils.ActionLoginFailed, utils.ResourceUser, provider, err))
		handlers.RespondError(c, err)
		return
	}
	token, err := h.issuer.Generate(u)
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	h.audit.Log(auditEntry(c, u.ID, utils.ActionLoginSuccess, utils.ResourceUser, provider, nil))

	target := h.frontendURL
	state := c.Query("state")
	if state != "" {
		var stored string
		if found, err := h.cache.GetJSON(ctx, oauthRedirectKey(state), &stored); err == nil && found {
			target = auth.SafeRedirect(stored, h.allowedOrigins, h.frontendURL)
			_ = h.cache.Delete(ctx, oauthRedirectKey(state))
		}
	}
	c.Redirect(http.StatusFound, auth.AppendToken(target, token))
}
