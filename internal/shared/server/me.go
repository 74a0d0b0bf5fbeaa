package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	googleauth "resumind/internal/auth"
	"resumind/internal/shared/server/middleware"
	"resumind/internal/shared/server/respond"
)

const logoutPath = "/api/v1/auth/logout"

type meResponse struct {
	UserID  string `json:"userId"`
	Email   string `json:"email,omitempty"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
	IsGuest bool   `json:"isGuest"`
	// SignIn upgrades a guest session to a Google account.
	SignIn string `json:"signIn,omitempty"`
	Logout string `json:"logout"`
	// AfterLogout is where the client lands once its token is dropped.
	AfterLogout string `json:"afterLogout"`
}

// registerMeRoutes attaches the /me endpoint.
func registerMeRoutes(rg *gin.RouterGroup) {
	rg.GET("/me", meHandler)
}

func meHandler(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	if userID == "" {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
		return
	}

	resp := meResponse{
		UserID:      userID,
		Email:       middleware.UserEmailFromContext(c),
		Name:        middleware.UserNameFromContext(c),
		Picture:     middleware.UserPictureFromContext(c),
		IsGuest:     c.GetBool("isGuest"),
		Logout:      logoutPath,
		AfterLogout: googleauth.LogoutRedirect,
	}
	if resp.IsGuest {
		resp.SignIn = middleware.SignInURL("", "/")
	}
	respond.JSON(c, http.StatusOK, resp)
}
