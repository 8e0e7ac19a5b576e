package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/chatstream-backend/internal/apierr"
	"github.com/yungbote/chatstream-backend/internal/http/response"
	"github.com/yungbote/chatstream-backend/internal/services"
	"github.com/yungbote/chatstream-backend/internal/types"
)

type AuthHandler struct {
	authService services.AuthService
}

func NewAuthHandler(authService services.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

func userPayload(user *types.User, token string, ttlSeconds int) gin.H {
	return gin.H{
		"access_token": token,
		"expires_in":   ttlSeconds,
		"user": gin.H{
			"id":    user.ID.String(),
			"email": user.Email,
			"tier":  string(user.Tier),
		},
	}
}

func (ah *AuthHandler) Register(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondAPIError(c, apierr.BadRequest(errors.New("invalid request body")))
		return
	}
	user, token, err := ah.authService.RegisterUser(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	expiresIn := int(ah.authService.GetAccessTTL().Seconds())
	c.JSON(http.StatusCreated, userPayload(user, token, expiresIn))
}

func (ah *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondAPIError(c, apierr.BadRequest(errors.New("invalid request body")))
		return
	}
	user, token, err := ah.authService.LoginUser(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	expiresIn := int(ah.authService.GetAccessTTL().Seconds())
	response.RespondOK(c, userPayload(user, token, expiresIn))
}

// Guest mints an anonymous account; the client stores the token like any
// other and gets the guest quota.
func (ah *AuthHandler) Guest(c *gin.Context) {
	user, token, err := ah.authService.GuestUser(c.Request.Context())
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	expiresIn := int(ah.authService.GetAccessTTL().Seconds())
	c.JSON(http.StatusCreated, userPayload(user, token, expiresIn))
}
