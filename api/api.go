package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mikebank/transfer-service/api/middleware"
	"github.com/mikebank/transfer-service/config"
	"github.com/mikebank/transfer-service/model"
)

// TransferService is the orchestrator surface the API depends on.
type TransferService interface {
	SubmitTransfer(ctx context.Context, transfer *model.Transfer) (*model.Transfer, bool, error)
	GetTransfer(ctx context.Context, id string) (*model.Transfer, error)
	GetAllTransfers(ctx context.Context, limit, offset int) ([]model.Transfer, error)
	RecoverTransfers(ctx context.Context, threshold time.Duration) (int, error)
	GetAccountTurnover(ctx context.Context, accountRef string, from, to time.Time) ([]model.AccountTurnover, error)
	GetTopTransfers(ctx context.Context, accountRef string, from time.Time, limit int) ([]model.Transfer, error)
}

type Api struct {
	service TransferService
	router  *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router
	router.POST("/transfers", a.CreateTransfer)
	router.GET("/transfers/:id", a.GetTransfer)
	router.GET("/transfers", a.GetAllTransfers)
	router.POST("/transfers/recover", a.RecoverTransfers)
	router.GET("/analytics/accounts/:ref/turnover", a.GetAccountTurnover)
	router.GET("/analytics/accounts/:ref/top-transfers", a.GetTopTransfers)
	return a.router
}

func NewAPI(service TransferService) (*Api, error) {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	r := gin.Default()
	r.Use(middleware.RateLimitMiddleware(conf))
	if conf.Server.Secure {
		r.Use(middleware.SecretKeyAuthMiddleware())
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, "server running...")
	})

	return &Api{service: service, router: r}, nil
}
