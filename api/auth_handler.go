package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/raushankrgupta/nima-backend/config"
	"github.com/raushankrgupta/nima-backend/logging"
	"github.com/raushankrgupta/nima-backend/models"
	"github.com/raushankrgupta/nima-backend/store"
	"github.com/raushankrgupta/nima-backend/utils"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
	oauthStateCookie  = "oauth_state"
)

// GoogleOAuthConfig builds the sign-in client from the loaded configuration.
func GoogleOAuthConfig() *oauth2.Config {
	return &oauth2.Config{
		RedirectURL:  config.GoogleRedirectURL,
		ClientID:     config.GoogleClientID,
		ClientSecret: config.GoogleClientSecret,
		Scopes:       []string{"https://www.googleapis.com/auth/userinfo.email", "https://www.googleapis.com/auth/userinfo.profile"},
		Endpoint:     google.Endpoint,
	}
}

type SignupRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Gender   string `json:"gender" binding:"omitempty,oneof=male female unisex"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type AuthHandler struct {
	users       store.UserRepository
	oauth       *oauth2.Config
	userInfoURL string
	freeCredits int
	log         logging.Logger
	now         func() time.Time
}

func NewAuthHandler(users store.UserRepository, oauth *oauth2.Config, freeCredits int, log logging.Logger) *AuthHandler {
	return &AuthHandler{
		users:       users,
		oauth:       oauth,
		userInfoURL: googleUserInfoURL,
		freeCredits: freeCredits,
		log:         log,
		now:         time.Now,
	}
}

// Signup registers an email/password account and returns a session token.
func (h *AuthHandler) Signup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}

	hashed, err := utils.HashPassword(req.Password)
	if err != nil {
		respondError(c, fmt.Errorf("hash password: %w", err), "user")
		return
	}

	user := h.newUser(req.Name, req.Email, req.Gender)
	user.Password = hashed
	if err := h.users.Create(c.Request.Context(), user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			c.JSON(http.StatusConflict, models.ErrorResponse{Error: "User with this email already exists"})
			return
		}
		respondError(c, err, "user")
		return
	}

	h.log.Info(c.Request.Context(), "user signed up", "user_id", user.ID.Hex())
	h.issue(c, http.StatusCreated, user)
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}

	user, err := h.users.GetByEmail(c.Request.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		respondError(c, err, "user")
		return
	}
	if err != nil || !utils.CheckPassword(user.Password, req.Password) {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Invalid email or password"})
		return
	}

	h.issue(c, http.StatusOK, user)
}

// GoogleLogin redirects to Google's consent screen. The state is echoed back
// through a short-lived cookie.
func (h *AuthHandler) GoogleLogin(c *gin.Context) {
	state := uuid.NewString()
	c.SetCookie(oauthStateCookie, state, int((10 * time.Minute).Seconds()), "/", "", config.IsProduction(), true)
	c.Redirect(http.StatusTemporaryRedirect, h.oauth.AuthCodeURL(state))
}

type googleUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// GoogleCallback exchanges the code, loads the Google profile and signs the
// user in, creating the account on first use.
func (h *AuthHandler) GoogleCallback(c *gin.Context) {
	ctx := c.Request.Context()

	expected, err := c.Cookie(oauthStateCookie)
	if err != nil || expected == "" || c.Query("state") != expected {
		badRequest(c, "State invalid", nil)
		return
	}
	code := c.Query("code")
	if code == "" {
		badRequest(c, "Code not found", nil)
		return
	}

	token, err := h.oauth.Exchange(ctx, code)
	if err != nil {
		h.log.Warn(ctx, "google token exchange failed", "error", err)
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Failed to exchange token", Message: err.Error()})
		return
	}

	resp, err := h.oauth.Client(ctx, token).Get(h.userInfoURL)
	if err != nil {
		respondError(c, fmt.Errorf("google user info: %w", err), "user")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		respondError(c, fmt.Errorf("google user info: status %d", resp.StatusCode), "user")
		return
	}

	var profile googleUser
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil || profile.Email == "" {
		respondError(c, fmt.Errorf("google user info: missing email"), "user")
		return
	}

	user, err := h.users.GetByEmail(ctx, strings.ToLower(profile.Email))
	switch {
	case errors.Is(err, store.ErrNotFound):
		user = h.newUser(profile.Name, profile.Email, "")
		user.GoogleID = profile.ID
		if err := h.users.Create(ctx, user); err != nil {
			respondError(c, err, "user")
			return
		}
		h.log.Info(ctx, "user signed up with google", "user_id", user.ID.Hex())
	case err != nil:
		respondError(c, err, "user")
		return
	}

	h.issue(c, http.StatusOK, user)
}

func (h *AuthHandler) newUser(name, email, gender string) *models.User {
	now := h.now()
	return &models.User{
		Name:      strings.TrimSpace(name),
		Email:     strings.ToLower(strings.TrimSpace(email)),
		Gender:    gender,
		Credits:   models.NewCredits(h.freeCredits, now),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (h *AuthHandler) issue(c *gin.Context, code int, user *models.User) {
	token, err := utils.GenerateToken(user.ID.Hex())
	if err != nil {
		respondError(c, fmt.Errorf("issue token: %w", err), "user")
		return
	}
	c.JSON(code, models.AuthResponse{Token: token, User: user})
}
