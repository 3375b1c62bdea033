package handler

import (
	"net/http"
	"strconv"

	"github.com/cocdeshijie/MikaniroBytes/internal/dto"
	"github.com/cocdeshijie/MikaniroBytes/internal/service"
	"github.com/cocdeshijie/MikaniroBytes/utils"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	auth *service.AuthService
}

func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// Register creates an account.
func (h *AuthHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	user, err := h.auth.Register(c.Request.Context(), req)
	if err != nil {
		utils.Fail(c, err)
		return
	}
	utils.Success(c, gin.H{"detail": "User registered successfully.", "id": user.ID, "username": user.Username})
}

func (h *AuthHandler) RegistrationEnabled(c *gin.Context) {
	enabled, err := h.auth.RegistrationEnabled(c.Request.Context())
	if err != nil {
		utils.Fail(c, err)
		return
	}
	utils.Success(c, gin.H{"enabled": enabled})
}

// Login authenticates a user and returns a token.
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	resp, err := h.auth.Login(c.Request.Context(), req.Username, req.Password, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		utils.Fail(c, err)
		return
	}
	utils.Success(c, resp)
}

func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.auth.Logout(c.Request.Context(), c.GetString(utils.CtxSessionToken)); err != nil {
		utils.Fail(c, err)
		return
	}
	utils.Success(c, gin.H{"detail": "Logged out."})
}

func (h *AuthHandler) LogoutAll(c *gin.Context) {
	userID, _ := utils.CurrentUserID(c)
	if err := h.auth.LogoutAll(c.Request.Context(), userID); err != nil {
		utils.Fail(c, err)
		return
	}
	utils.Success(c, gin.H{"detail": "All sessions revoked."})
}

// Sessions lists the caller's sessions and marks the current one.
func (h *AuthHandler) Sessions(c *gin.Context) {
	userID, _ := utils.CurrentUserID(c)
	sessions, err := h.auth.Sessions(c.Request.Context(), userID)
	if err != nil {
		utils.Fail(c, err)
		return
	}
	current := c.GetString(utils.CtxSessionToken)
	out := make([]gin.H, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, gin.H{
			"session_id":    s.ID,
			"ip_address":    s.IPAddress,
			"client_name":   s.ClientName,
			"created_at":    s.CreatedAt,
			"last_accessed": s.LastAccessed,
			"current":       s.Token == current,
		})
	}
	utils.Success(c, out)
}

func (h *AuthHandler) RevokeSession(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}
	userID, _ := utils.CurrentUserID(c)
	if err := h.auth.RevokeSession(c.Request.Context(), userID, id); err != nil {
		utils.Fail(c, err)
		return
	}
	utils.Success(c, gin.H{"detail": "Session revoked."})
}

// CheckSession reports whether a token still maps to a live session.
func (h *AuthHandler) CheckSession(c *gin.Context) {
	var req dto.TokenCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	utils.Success(c, gin.H{"valid": h.auth.CheckToken(c.Request.Context(), req.Token)})
}

func (h *AuthHandler) Me(c *gin.Context) {
	userID, _ := utils.CurrentUserID(c)
	me, err := h.auth.Me(c.Request.Context(), userID)
	if err != nil {
		utils.Fail(c, err)
		return
	}
	utils.Success(c, me)
}

func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req dto.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	userID, _ := utils.CurrentUserID(c)
	if err := h.auth.ChangePassword(c.Request.Context(), userID, req.OldPassword, req.NewPassword); err != nil {
		utils.Fail(c, err)
		return
	}
	utils.Success(c, gin.H{"detail": "Password updated successfully."})
}

func (h *AuthHandler) ChangeUsername(c *gin.Context) {
	var req dto.ChangeUsernameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	userID, _ := utils.CurrentUserID(c)
	name, err := h.auth.ChangeUsername(c.Request.Context(), userID, req.NewUsername)
	if err != nil {
		utils.Fail(c, err)
		return
	}
	utils.Success(c, gin.H{"detail": "Username updated successfully.", "username": name})
}
