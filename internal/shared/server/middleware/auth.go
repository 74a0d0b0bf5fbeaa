package middleware

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"resumind/internal/shared/auth"
	"resumind/internal/shared/server/respond"
)

const (
	userIDKey      = "userId"
	userEmailKey   = "userEmail"
	userNameKey    = "userName"
	userPictureKey = "userPicture"

	// DefaultSignInPath starts the Google sign-in flow.
	DefaultSignInPath = "/api/v1/auth/google/start"
)

// AuthOptions controls which paths skip identity checks and where
// unauthenticated callers are sent.
type AuthOptions struct {
	SignInPath     string
	PublicPrefixes []string
}

// Auth validates JWTs or guest headers and stores identity in context.
// Requests without identity get a 401 pointing at the sign-in flow with a
// return-to location.
func Auth(opts AuthOptions) gin.HandlerFunc {
	if opts.SignInPath == "" {
		opts.SignInPath = DefaultSignInPath
	}
	public := append([]string{"/api/v1/auth/"}, opts.PublicPrefixes...)

	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			return
		}

		path := c.Request.URL.Path
		for _, prefix := range public {
			if strings.HasPrefix(path, prefix) {
				c.Next()
				return
			}
		}

		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))

		if authHeader != "" {
			if !strings.HasPrefix(authHeader, "Bearer ") {
				unauthorized(c, opts.SignInPath, "missing or invalid token")
				return
			}

			token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer"))
			if token == "" {
				unauthorized(c, opts.SignInPath, "missing or invalid token")
				return
			}

			claims, err := auth.VerifyJWT(token)
			if err != nil {
				unauthorized(c, opts.SignInPath, "missing or invalid token")
				return
			}

			c.Set(userIDKey, claims.Sub)
			if claims.Email != "" {
				c.Set(userEmailKey, claims.Email)
			}
			if claims.Name != "" {
				c.Set(userNameKey, claims.Name)
			}
			if claims.Picture != "" {
				c.Set(userPictureKey, claims.Picture)
			}
			c.Set("isGuest", false)
			c.Next()
			return
		}

		guestID := strings.TrimSpace(c.GetHeader("X-Guest-Id"))
		if guestID == "" {
			unauthorized(c, opts.SignInPath, "Missing identity")
			return
		}

		c.Set(userIDKey, "guest:"+guestID)
		c.Set("isGuest", true)
		c.Next()
	}
}

// SignInURL returns the sign-in location carrying next as the return-to path.
func SignInURL(signInPath, next string) string {
	if signInPath == "" {
		signInPath = DefaultSignInPath
	}
	if next == "" {
		return signInPath
	}
	return signInPath + "?next=" + url.QueryEscape(next)
}

func unauthorized(c *gin.Context, signInPath, message string) {
	next := c.Request.URL.RequestURI()
	signIn := SignInURL(signInPath, next)
	c.Header("Location", signIn)
	respond.Error(c, http.StatusUnauthorized, "unauthorized", message, gin.H{
		"signIn": signIn,
		"next":   next,
	})
}

// UserIDFromContext fetches the user ID set by the auth middleware.
func UserIDFromContext(c *gin.Context) string {
	return contextString(c, userIDKey)
}

// UserEmailFromContext fetches the user email set by the auth middleware.
func UserEmailFromContext(c *gin.Context) string {
	return contextString(c, userEmailKey)
}

// UserNameFromContext fetches the user name set by the auth middleware.
func UserNameFromContext(c *gin.Context) string {
	return contextString(c, userNameKey)
}

// UserPictureFromContext fetches the user picture set by the auth middleware.
func UserPictureFromContext(c *gin.Context) string {
	return contextString(c, userPictureKey)
}

func contextString(c *gin.Context, key string) string {
	if c == nil {
		return ""
	}
	val, _ := c.Get(key)
	if s, ok := val.(string); ok {
		return s
	}
	return ""
}
