package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

type Claims struct {
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	AccessToken string `json:"access_token"`
	jwt.RegisteredClaims
}

type claimsKey struct{}

var (
	errTokenExchange = errors.New("token exchange failed")
	errFetchUser     = errors.New("failed to get user")
	errIssueToken    = errors.New("failed to create token")
)

func claimsFrom(ctx context.Context) *Claims {
	c, _ := ctx.Value(claimsKey{}).(*Claims)
	return c
}

// Auth handlers
func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	state := generateRandomString(32)
	writeJSON(w, http.StatusOK, map[string]string{
		"auth_url": a.oauthConfig.AuthCodeURL(state),
		"state":    state,
	})
}

func (a *API) issueToken(userID, username, accessToken string) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:      userID,
		Username:    username,
		AccessToken: accessToken,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.jwtSecret)
}

func (a *API) authenticateUser(ctx context.Context, code string) (string, *DiscordUser, error) {
	token, err := a.oauthConfig.Exchange(ctx, code)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", errTokenExchange, err)
	}

	user, err := a.fetchUser(ctx, token.AccessToken)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", errFetchUser, err)
	}

	tokenString, err := a.issueToken(user.ID, getUsername(user), token.AccessToken)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", errIssueToken, err)
	}
	return tokenString, user, nil
}

func loginErrorType(err error) string {
	switch {
	case errors.Is(err, errTokenExchange):
		return "token_exchange_failed"
	case errors.Is(err, errFetchUser):
		return "failed_to_get_user"
	case errors.Is(err, errIssueToken):
		return "failed_to_create_token"
	}
	return "authentication_failed"
}

// handleCallback finishes the Discord login. Browsers are sent back to the
// web UI's login page with the token in the URL fragment; clients asking
// for JSON get the token in the body.
func (a *API) handleCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing code", http.StatusBadRequest)
		return
	}
	wantsJSON := strings.Contains(r.Header.Get("Accept"), "application/json")

	tokenString, user, err := a.authenticateUser(r.Context(), code)
	if err != nil {
		a.logger.Warn("discord login failed", zap.Error(err))
		if wantsJSON {
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": loginErrorType(err)})
			return
		}
		http.Redirect(w, r, a.config.WebUIBaseURL+"/login?error="+loginErrorType(err), http.StatusSeeOther)
		return
	}

	if wantsJSON {
		writeJSON(w, http.StatusOK, map[string]string{
			"token":    tokenString,
			"user_id":  user.ID,
			"username": getUsername(user),
		})
		return
	}
	http.Redirect(w, r, a.config.WebUIBaseURL+"/login?success=true#token="+url.QueryEscape(tokenString), http.StatusSeeOther)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// Middleware
func (a *API) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "missing authorization header", http.StatusUnauthorized)
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			http.Error(w, "invalid authorization header", http.StatusUnauthorized)
			return
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method")
			}
			return a.jwtSecret, nil
		})
		if err != nil || !token.Valid {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
