package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"
	"gorm.io/gorm"

	"github.com/lch-dev/board2/config"
	"github.com/lch-dev/board2/models"
	"github.com/lch-dev/board2/session"
	"github.com/lch-dev/board2/utils"
)

// AuthController handles registration, login, logout and third-party providers.
type AuthController struct {
	db    *gorm.DB
	store session.Store
}

// NewAuthController creates an AuthController.
func NewAuthController(db *gorm.DB, store session.Store) *AuthController {
	return &AuthController{db: db, store: store}
}

// Register creates a local account. The password is stored bcrypt-hashed only.
func (a *AuthController) Register(ctx *gin.Context) {
	var req struct {
		UserID   string `json:"userId" binding:"required,alphanum,min=4,max=20"`
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required,min=8"`
		Nickname string `json:"nickname" binding:"required,min=2,max=20"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, "invalid request payload")
		return
	}

	var count int64
	a.db.Model(&models.User{}).Where("user_id = ?", req.UserID).Count(&count)
	if count > 0 {
		utils.Error(ctx, http.StatusBadRequest, "userId already exists")
		return
	}
	a.db.Model(&models.User{}).Where("email = ?", req.Email).Count(&count)
	if count > 0 {
		utils.Error(ctx, http.StatusBadRequest, "email already exists")
		return
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, "failed to hash password")
		return
	}

	user := models.User{
		UserID:   req.UserID,
		Email:    req.Email,
		Password: hash,
		Nickname: req.Nickname,
		Provider: "LOCAL",
	}
	if err := a.db.Create(&user).Error; err != nil {
		// races past the pre-checks surface as the uniqueness violation
		utils.Error(ctx, http.StatusBadRequest, "userId or email already exists")
		return
	}

	utils.Sugar.Infof("registered user %s", user.UserID)
	utils.Success(ctx, "Registered successfully", nil)
}

// Login verifies credentials and mints an opaque session token.
func (a *AuthController) Login(ctx *gin.Context) {
	var req struct {
		UserID   string `json:"userId" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, "invalid request payload")
		return
	}

	var user models.User
	if err := a.db.First(&user, "user_id = ?", req.UserID).Error; err != nil {
		utils.Error(ctx, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if !utils.CheckPassword(user.Password, req.Password) {
		utils.Error(ctx, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := a.store.Create(user.UserID)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, "failed to create session")
		return
	}
	utils.Success(ctx, "Logged in", token)
}

// Logout revokes the presented token. Revoking an unknown token succeeds.
func (a *AuthController) Logout(ctx *gin.Context) {
	authHeader := ctx.GetHeader("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) == 2 {
		if err := a.store.Delete(strings.TrimSpace(parts[1])); err != nil {
			utils.Error(ctx, http.StatusInternalServerError, "failed to delete session")
			return
		}
	}
	utils.Success(ctx, "Logged out", nil)
}

// Me returns the caller's user id.
func (a *AuthController) Me(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, "Unauthorized")
		return
	}
	utils.Success(ctx, "Success", userID)
}

// OAuthRedirect generates a provider-specific authorization URL.
func (a *AuthController) OAuthRedirect(ctx *gin.Context) {
	provider := ctx.Param("provider")
	cfg, err := a.oauthConfig(provider)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, err.Error())
		return
	}

	state := uuid.NewString()
	utils.SaveState(state, 10*time.Minute)

	url := cfg.AuthCodeURL(state, oauth2.AccessTypeOffline)
	utils.Success(ctx, "Success", gin.H{"authorizationUrl": url, "state": state})
}

// OAuthCallback exchanges the authorization code for a user identity and
// mints the same opaque session token local logins get.
func (a *AuthController) OAuthCallback(ctx *gin.Context) {
	provider := ctx.Param("provider")
	code := ctx.Query("code")
	state := ctx.Query("state")

	if code == "" || state == "" {
		utils.Error(ctx, http.StatusBadRequest, "missing code or state")
		return
	}
	if !utils.ConsumeState(state) {
		utils.Error(ctx, http.StatusBadRequest, "invalid or expired state")
		return
	}

	cfg, err := a.oauthConfig(provider)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, err.Error())
		return
	}
	tok, err := cfg.Exchange(context.Background(), code)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, "failed to exchange code")
		return
	}

	info, err := a.fetchOAuthUser(provider, tok)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, err.Error())
		return
	}
	user, err := a.findOrCreateOAuthUser(provider, info)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, "failed to persist user")
		return
	}

	token, err := a.store.Create(user.UserID)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, "failed to create session")
		return
	}
	utils.Success(ctx, "Logged in", gin.H{"token": token, "user": user})
}

func (a *AuthController) oauthConfig(provider string) (*oauth2.Config, error) {
	cfg := config.Get()
	switch strings.ToLower(provider) {
	case "github":
		if cfg.GitHubClientID == "" || cfg.GitHubClientSecret == "" {
			return nil, fmt.Errorf("github oauth not configured")
		}
		return &oauth2.Config{
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret,
			RedirectURL:  fmt.Sprintf("%s/auth/oauth/github/callback", cfg.OAuthRedirectBase),
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     github.Endpoint,
		}, nil
	case "google":
		if cfg.GoogleClientID == "" || cfg.GoogleClientSecret == "" {
			return nil, fmt.Errorf("google oauth not configured")
		}
		return &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  fmt.Sprintf("%s/auth/oauth/google/callback", cfg.OAuthRedirectBase),
			Scopes:       []string{"openid", "profile", "email"},
			Endpoint:     google.Endpoint,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

type oauthUser struct {
	ID          string
	Username    string
	DisplayName string
	Email       string
}

func (a *AuthController) fetchOAuthUser(provider string, token *oauth2.Token) (*oauthUser, error) {
	switch strings.ToLower(provider) {
	case "github":
		return fetchGitHubUser(token)
	case "google":
		return fetchGoogleUser(token)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

func (a *AuthController) findOrCreateOAuthUser(provider string, data *oauthUser) (*models.User, error) {
	providerName := strings.ToUpper(provider)

	var user models.User
	err := a.db.First(&user, "provider = ? AND provider_id = ?", providerName, data.ID).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	email := strings.TrimSpace(data.Email)
	if email == "" {
		// email carries a unique index, so absent provider emails get a
		// synthetic address scoped to the provider identity
		email = fmt.Sprintf("%s_%s@users.noreply", strings.ToLower(provider), data.ID)
	}
	nickname := data.DisplayName
	if nickname == "" {
		nickname = data.Username
	}
	user = models.User{
		UserID:     fmt.Sprintf("%s_%s", strings.ToLower(provider), data.ID),
		Email:      email,
		Nickname:   nickname,
		Provider:   providerName,
		ProviderID: data.ID,
	}
	if err := a.db.Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func fetchGitHubUser(token *oauth2.Token) (*oauthUser, error) {
	req, _ := http.NewRequest("GET", "https://api.github.com/user", nil)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token.AccessToken))
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("github user info request failed: %s", resp.Status)
	}

	var payload struct {
		ID    int64  `json:"id"`
		Login string `json:"login"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	return &oauthUser{
		ID:          fmt.Sprintf("%d", payload.ID),
		Username:    payload.Login,
		DisplayName: payload.Name,
		Email:       payload.Email,
	}, nil
}

func fetchGoogleUser(token *oauth2.Token) (*oauthUser, error) {
	req, _ := http.NewRequest("GET", "https://www.googleapis.com/oauth2/v2/userinfo", nil)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token.AccessToken))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("google user info request failed: %s", resp.Status)
	}

	var payload struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	return &oauthUser{
		ID:          payload.ID,
		Username:    payload.Email,
		DisplayName: payload.Name,
		Email:       payload.Email,
	}, nil
}
