package handler

import (
	"github.com/cocdeshijie/MikaniroBytes/internal/service"
	"github.com/cocdeshijie/MikaniroBytes/utils"

	"github.com/gin-gonic/gin"
)

const ctxIdentity = "identity"

// LoadIdentity resolves the authenticated user with its group policy.
// It must run after utils.AuthMiddleware.
func LoadIdentity(settings *service.SettingsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := utils.CurrentUserID(c)
		if !ok {
			abort(c, service.ErrUnauthorized)
			return
		}
		ident, err := settings.Identity(c.Request.Context(), userID)
		if err != nil {
			abort(c, err)
			return
		}
		if ident == nil {
			abort(c, service.ErrUnauthorized)
			return
		}
		c.Set(ctxIdentity, ident)
		c.Next()
	}
}

// RequireSuperAdmin rejects callers outside SUPER_ADMIN. It must run after LoadIdentity.
func RequireSuperAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		ident := identity(c)
		if ident == nil || !ident.IsSuperAdmin() {
			abort(c, service.ErrSuperAdminOnly)
			return
		}
		c.Next()
	}
}

func identity(c *gin.Context) *service.Identity {
	value, ok := c.Get(ctxIdentity)
	if !ok {
		return nil
	}
	ident, _ := value.(*service.Identity)
	return ident
}

func abort(c *gin.Context, err error) {
	utils.Fail(c, err)
	c.Abort()
}
