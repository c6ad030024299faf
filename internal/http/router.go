package http

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/libdesk/libdesk/internal/auth"
	"github.com/libdesk/libdesk/internal/database/books"
	"github.com/libdesk/libdesk/internal/entities"
	"github.com/libdesk/libdesk/internal/logging"
)

// userRoutePrefixes are the mounts of the user routes. The browser client
// historically used all three.
var userRoutePrefixes = []string{"/api/users", "/api/auth", "/api/user"}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", logging.RequestIDHeader},
		ExposeHeaders:    []string{logging.RequestIDHeader, "Retry-After"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

// NewRouter creates and configures the HTTP router with all endpoints.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logging.RequestLogger(cfg.Logger))
	router.Use(cors.New(corsConfig(cfg.CORSOrigins)))

	// Apply security headers to all responses
	router.Use(auth.SecurityHeadersMiddleware())
	if cfg.EnableHSTS {
		router.Use(auth.StrictTransportSecurityMiddleware())
	}

	// Resolve the bearer token on every request; guards below decide what to reject.
	router.Use(cfg.Authenticator.Handler())

	health := NewHealthController(cfg.Database, cfg.Version)
	users := NewUsersController(cfg)
	booksController := NewBooksController(cfg)
	loans := NewCirculationController(cfg)
	admin := NewAdminController(cfg)

	requireAuth := cfg.Authenticator.RequireAuth()
	requireAdmin := cfg.Authenticator.RequirePrivilege(entities.IdentityAdmin)
	requireSuperAdmin := cfg.Authenticator.RequirePrivilege(entities.IdentitySuperAdmin)

	loginHandlers := []gin.HandlerFunc{users.Login}
	if cfg.RateLimiter != nil {
		loginHandlers = []gin.HandlerFunc{cfg.RateLimiter.LoginMiddleware(), users.Login}
	}

	// Health endpoints
	router.GET("/connect", health.Connect)
	router.GET("/health", health.Status)
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "pong",
		})
	})

	for _, prefix := range userRoutePrefixes {
		group := router.Group(prefix)
		group.POST("/register", users.Register)
		group.POST("/login", loginHandlers...)
		group.POST("/logout", requireAuth, users.Logout)
		group.GET("/info", requireAuth, users.Info)
		group.GET("/borrowing-records/current", requireAuth, users.CurrentRecords)
		group.GET("/borrowing-records/all", requireAuth, users.AllRecords)
		group.GET("/fine-records", requireAuth, users.Fines)
		group.POST("/fine-records/pay", requireAuth, users.PayFine)
		group.POST("/fine-records/pay-all", requireAuth, users.PayAllFines)
		group.GET("/:id", requireAuth, users.GetUser)
		group.PUT("/:id", requireAuth, users.UpdateUser)
		group.GET("/:id/borrowing-records", requireAuth, users.UserRecords)
		group.GET("/:id/fine-records", requireAuth, users.UserFines)
	}

	// Books API endpoints
	bookRoutes := router.Group("/api/books")
	bookRoutes.GET("", booksController.GetAllBooks)
	bookRoutes.POST("/borrow", requireAuth, loans.Borrow)
	bookRoutes.POST("/return", requireAuth, loans.Return)
	bookRoutes.GET("/search/:query", booksController.Search)
	for _, field := range []books.SearchField{books.FieldTitle, books.FieldAuthor, books.FieldTag, books.FieldPublisher, books.FieldISBN} {
		bookRoutes.GET("/search/"+string(field)+"/:query", booksController.SearchBy(field))
	}
	bookRoutes.GET("/:id", booksController.GetBook)
	bookRoutes.POST("", requireAdmin, booksController.CreateBook)
	bookRoutes.PUT("/:id", requireAdmin, booksController.UpdateBook)
	bookRoutes.DELETE("/:id", requireAdmin, booksController.DeleteBook)

	// Borrow endpoints at their original mount
	borrowRoutes := router.Group("/api/borrow")
	borrowRoutes.POST("/borrow", requireAuth, loans.Borrow)
	borrowRoutes.POST("/return", requireAuth, loans.Return)
	borrowRoutes.GET("/records", requireAdmin, loans.Records)
	borrowRoutes.GET("/fines", requireAdmin, loans.Fines)

	// Admin endpoints
	adminRoutes := router.Group("/api/admin", requireAdmin)
	adminRoutes.GET("/users", admin.Users)
	adminRoutes.GET("/borrowing-records", admin.BorrowingRecords)
	adminRoutes.GET("/fine-records", admin.FineRecords)
	adminRoutes.GET("/login-logs", admin.LoginLogs)
	adminRoutes.GET("/audit-events", admin.AuditEvents)
	adminRoutes.POST("/manage-user", admin.ManageUser)
	router.POST("/api/admin/manage-admin", requireSuperAdmin, admin.ManageAdmin)

	return router
}
