package http

import (
	"github.com/gin-gonic/gin"
	httpmw "github.com/treasurydash/ledgersync/http"
	"github.com/treasurydash/ledgersync/internal/auth"
	"github.com/treasurydash/ledgersync/internal/config"
	"github.com/treasurydash/ledgersync/internal/service"
	"go.uber.org/zap"
)

func NewRouter(svc *service.SyncService, jwtSvc *auth.Service, rl config.RateLimitConfig, log *zap.SugaredLogger) *gin.Engine {
	r := gin.New()
	r.Use(httpmw.LoggingMiddleware(log))
	r.Use(httpmw.RateLimitMiddleware(rl.RPS, rl.Burst))

	v1 := r.Group("/v1")
	v1.Use(httpmw.AuthMiddleware(jwtSvc, ""))
	{
		v1.GET("/wallets", walletsHandler(svc))
		v1.GET("/transactions", transactionsHandler(svc))
	}

	admin := r.Group("/v1")
	admin.Use(httpmw.AuthMiddleware(jwtSvc, auth.RoleAdmin))
	{
		admin.POST("/sync", syncHandler(svc))
	}

	return r
}
