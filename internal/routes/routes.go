package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tutorbase/internal/authz"
	"tutorbase/internal/handlers"
	"tutorbase/internal/middleware"
)

func SetupRoutes(
	r *gin.Engine,
	authHandler *handlers.AuthHandler,
	userHandler *handlers.UserHandler,
	passwordResetHandler *handlers.PasswordResetHandler,
	taskHandler *handlers.TaskHandler,
	syncHandler *handlers.SyncHandler,
) *gin.Engine {

	// ---- public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.POST("/login", authHandler.Login)
	r.POST("/refresh", authHandler.RefreshToken)
	r.POST("/register", userHandler.Register)
	r.POST("/password-reset/request", passwordResetHandler.Request)
	r.POST("/password-reset/confirm", passwordResetHandler.Confirm)

	// ---- protected
	r.Use(middleware.AuthMiddleware())

	r.POST("/logout", authHandler.Logout)

	// USERS
	users := r.Group("/users")
	{
		users.GET("/", userHandler.List)
		users.GET("/:id", userHandler.GetByID)
		users.PUT("/:id", userHandler.Update)
		users.DELETE("/:id", middleware.RequireRoles(authz.RoleCoordinator), userHandler.Delete)
	}

	// TASKS
	tasks := r.Group("/tasks")
	{
		tasks.GET("/sync", syncHandler.Stream)
		tasks.POST("/", taskHandler.Create)
		tasks.GET("/", taskHandler.List)
		tasks.GET("/:id", taskHandler.GetByID)
		tasks.PUT("/:id", taskHandler.Update)
		tasks.DELETE("/:id", taskHandler.Delete)
		tasks.POST("/:id/toggle", taskHandler.Toggle)
	}

	return r
}
