package routers

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	logger "github.com/campuslink/groupchat/middleware/log"

	"github.com/campuslink/groupchat/internal/handlers"
	"github.com/campuslink/groupchat/internal/middlewares"
	"github.com/campuslink/groupchat/internal/ws"
	"github.com/campuslink/groupchat/middleware/jwt"
	pkgmw "github.com/campuslink/groupchat/pkg/middlewares"
	"github.com/campuslink/groupchat/utils/ratelimit"
)

// SetupRoutes wires every route onto r. The websocket route is registered
// before the rate limiter so handshakes never queue behind HTTP traffic.
func SetupRoutes(r *gin.Engine,
	tokens *jwt.TokenManager,
	limiter *ratelimit.TokenBucket,
	authHandler *handlers.AuthHandler,
	groupHandler *handlers.GroupHandler,
	messageHandler *handlers.MessageHandler,
	hub *ws.Hub,
	sender ws.MessageSender,
	log *logger.Logger,
) {
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	r.Use(cors.New(corsConfig))

	r.GET("/ws", middlewares.Auth(tokens), func(c *gin.Context) {
		ws.ServeWS(hub, sender, log, c)
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.Use(pkgmw.RateLimit(limiter, 2*time.Second))

	registerUserRoutes(r, tokens, authHandler)
	registerGroupRoutes(r, tokens, groupHandler, messageHandler)
}

func registerUserRoutes(r *gin.Engine, tokens *jwt.TokenManager, h *handlers.AuthHandler) {
	users := r.Group("/api/v1/users")
	{
		users.POST("/register", h.Register)
		users.POST("/login", h.Login)
		users.POST("/refresh", h.Refresh)
	}
}

func registerGroupRoutes(r *gin.Engine, tokens *jwt.TokenManager,
	gh *handlers.GroupHandler, mh *handlers.MessageHandler) {
	groups := r.Group("/api/v1/groups")
	groups.Use(middlewares.Auth(tokens))
	{
		groups.POST("", gh.CreateGroup)
		groups.GET("", gh.ListJoinable)
		groups.GET("/mine", gh.ListMine)

		groups.GET("/:id/members", gh.ListMembers)
		groups.DELETE("/:id/members/:user_id", gh.RemoveMember)
		groups.POST("/:id/leave", gh.Leave)

		groups.POST("/:id/requests", gh.RequestJoin)
		groups.DELETE("/:id/requests", gh.WithdrawRequest)
		groups.GET("/:id/requests", gh.PendingRequests)
		groups.POST("/:id/requests/:user_id/accept", gh.AcceptRequest)
		groups.POST("/:id/requests/:user_id/reject", gh.RejectRequest)

		groups.GET("/:id/messages", mh.History)
		groups.POST("/:id/messages", mh.Send)
	}
}
