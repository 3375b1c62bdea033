package router

import (
	"net/http"

	"github.com/cocdeshijie/MikaniroBytes/config"
	"github.com/cocdeshijie/MikaniroBytes/internal/handler"
	"github.com/cocdeshijie/MikaniroBytes/internal/metrics"
	"github.com/cocdeshijie/MikaniroBytes/internal/service"
	"github.com/cocdeshijie/MikaniroBytes/utils"

	"github.com/gin-gonic/gin"
)

// Deps are the services the HTTP surface is built on.
type Deps struct {
	Config   *config.Config
	Tokens   *utils.TokenManager
	Auth     *service.AuthService
	Settings *service.SettingsService
	Uploads  *service.UploadService
	Files    *service.FileService
	Admin    *service.AdminService
}

// InitRouter builds API routes.
func InitRouter(d Deps) *gin.Engine {
	r := gin.Default()
	r.Use(utils.CORSMiddleware(d.Config.CORSOrigins))

	authH := handler.NewAuthHandler(d.Auth)
	fileH := handler.NewFileHandler(d.Uploads, d.Files)
	adminH := handler.NewAdminHandler(d.Admin)

	requireAuth := utils.AuthMiddleware(d.Tokens, d.Auth)
	loadIdentity := handler.LoadIdentity(d.Settings)

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	r.Static("/uploads", d.Config.Storage.UploadDir)
	r.Static("/previews", d.Config.Storage.PreviewDir)

	auth := r.Group("/auth")
	{
		auth.POST("/register", authH.Register)
		auth.GET("/registration-enabled", authH.RegistrationEnabled)
		auth.POST("/login", authH.Login)
		auth.POST("/check-session", authH.CheckSession)

		session := auth.Group("")
		session.Use(requireAuth)
		session.POST("/logout", authH.Logout)
		session.POST("/logout-all", authH.LogoutAll)
		session.GET("/sessions", authH.Sessions)
		session.DELETE("/sessions/:id", authH.RevokeSession)
		session.GET("/me", authH.Me)
		session.POST("/change-password", authH.ChangePassword)
		session.POST("/change-username", authH.ChangeUsername)
	}

	files := r.Group("/files")
	{
		files.POST("/upload", utils.OptionalAuthMiddleware(d.Tokens, d.Auth), fileH.Upload)

		owned := files.Group("")
		owned.Use(requireAuth, loadIdentity)
		owned.POST("/bulk-upload", fileH.BulkUpload)
		owned.GET("/my-files", fileH.MyFiles)
		owned.GET("/download/:id", fileH.Download)
		owned.POST("/batch-download", fileH.BatchDownload)
		owned.POST("/delete", fileH.BatchDelete)
		owned.DELETE("/batch-delete", fileH.BatchDelete)
		owned.DELETE("/:id", fileH.Delete)
	}

	admin := r.Group("/admin")
	admin.Use(requireAuth, loadIdentity, handler.RequireSuperAdmin())
	{
		admin.GET("/groups", adminH.ListGroups)
		admin.POST("/groups", adminH.CreateGroup)
		admin.PUT("/groups/:group_id", adminH.UpdateGroup)
		admin.DELETE("/groups/:group_id", adminH.DeleteGroup)
		admin.GET("/groups/:group_id/files", adminH.GroupFiles)

		admin.GET("/users", adminH.ListUsers)
		admin.PUT("/users/:user_id/group", adminH.UpdateUserGroup)
		admin.DELETE("/users/:user_id", adminH.DeleteUser)
		admin.GET("/users/:user_id/files", adminH.UserFiles)

		admin.GET("/system-settings", adminH.GetSettings)
		admin.PUT("/system-settings", adminH.UpdateSettings)
	}
	return r
}
