package services

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/alphabatem/common/context"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/wustream/gate_api/dto"
	"github.com/wustream/gate_api/services/handlers"
	"github.com/wustream/gate_api/shared"
)

// HttpService is the gateway orchestrator: it composes blocklist, rate
// limiter, quota ledger, token verification and the delivery proxy into the
// request pipeline.
type HttpService struct {
	context.DefaultService

	quotaSvc   *QuotaService
	rateSvc    *RateLimitService
	blockSvc   *BlocklistService
	tokenSvc   *TokenService
	originSvc  *OriginService
	proxySvc   *ProxyService
	monitorSvc *MonitoringService

	port         int
	adminKeyHash []byte
	app          *fiber.App
}

const HTTP_SVC = "http_svc"

func (svc HttpService) Id() string {
	return HTTP_SVC
}

func (svc *HttpService) Configure(ctx *context.Context) error {
	if port := os.Getenv("HTTP_PORT"); port != "" {
		var err error
		if svc.port, err = strconv.Atoi(port); err != nil {
			return err
		}
	} else {
		svc.port = 8000
	}

	svc.adminKeyHash = []byte(os.Getenv("ADMIN_KEY_HASH"))

	return svc.DefaultService.Configure(ctx)
}

func (svc *HttpService) Start() error {
	svc.quotaSvc = svc.Service(QUOTA_SVC).(*QuotaService)
	svc.rateSvc = svc.Service(RATE_LIMIT_SVC).(*RateLimitService)
	svc.blockSvc = svc.Service(BLOCKLIST_SVC).(*BlocklistService)
	svc.tokenSvc = svc.Service(TOKEN_SVC).(*TokenService)
	svc.originSvc = svc.Service(ORIGIN_SVC).(*OriginService)
	svc.proxySvc = svc.Service(PROXY_SVC).(*ProxyService)
	svc.monitorSvc = svc.Service(MONITORING_SVC).(*MonitoringService)

	svc.app = fiber.New(fiber.Config{
		AppName:               "wustream gateway",
		DisableStartupMessage: os.Getenv("LOG_LEVEL") == "INFO",
		JSONEncoder:           shared.JsonAPI.Marshal,
		JSONDecoder:           shared.JsonAPI.Unmarshal,
		ErrorHandler:          svc.handleError,
		StreamRequestBody:     true,
	})

	svc.app.Use(recover.New())
	svc.app.Use(svc.monitorSvc.Middleware())

	svc.registerRoutes()

	return svc.app.Listen(fmt.Sprintf(":%d", svc.port))
}

func (svc *HttpService) Shutdown() {
	if svc.app != nil {
		_ = svc.app.Shutdown()
	}
}

// App exposes the router. Test hook.
func (svc *HttpService) App() *fiber.App {
	return svc.app
}

func (svc *HttpService) registerRoutes() {
	gatewayHandler := handlers.NewGatewayHandler(svc.tokenSvc, svc.tokenSvc.SessionCookieDuration)
	adminHandler := handlers.NewAdminHandler(svc.quotaSvc, svc.blockSvc, svc.rateSvc)

	svc.app.Get("/ping", svc.ping)

	// Delivery pipeline: blocklist, velocity, capability token, quota
	// (charged to the token's issuing key), then the proxy.
	svc.app.Get("/watch/:token",
		svc.blockSvc.Check(),
		svc.rateSvc.Gate(),
		svc.verifyDeliveryToken(shared.ActionWatch),
		svc.quotaSvc.Gate(svc.tokenSvc),
		svc.watch,
	)
	svc.app.Get("/download/:token",
		svc.blockSvc.Check(),
		svc.rateSvc.Gate(),
		svc.verifyDeliveryToken(shared.ActionDownload),
		svc.quotaSvc.Gate(svc.tokenSvc),
		svc.download,
	)

	v1 := svc.app.Group("/api/v1", svc.blockSvc.Check(), svc.rateSvc.Gate())

	v1.Post("/links", svc.quotaSvc.Gate(svc.tokenSvc), gatewayHandler.IssueLinks)
	v1.Post("/session", svc.quotaSvc.Gate(svc.tokenSvc), gatewayHandler.CreateSession)

	manage := v1.Group("/manage", svc.adminGuard())
	manage.Post("/keys", adminHandler.CreateKey)
	manage.Get("/key/:apiKey", adminHandler.GetKey)
	manage.Post("/update", adminHandler.UpdateQuota)
	manage.Get("/blocked", adminHandler.ListBlocked)
	manage.Delete("/blocked/:identity", adminHandler.Unblock)
	manage.Get("/ratelimits", adminHandler.RateLimitStats)
	manage.Delete("/ratelimits/:identity", adminHandler.ResetRateLimit)
}

// @Summary Ping
// @Description This endpoint checks the health of the service
// @Tags health
// @Produce json
// @Success 200 {object} shared.Response{data=string}
// @Router /ping [get]
func (svc *HttpService) ping(c *fiber.Ctx) error {
	c.Set(fiber.HeaderCacheControl, "max-age=10")
	return shared.ResponseJSON(c, fiber.StatusOK, "Success", "pong")
}

// ==================== DELIVERY ROUTES ====================

// verifyDeliveryToken rejects anything but a well-formed, in-date token for
// the expected action, resolves the origin locator and attaches the
// embedded API key so the quota gate charges the original caller.
func (svc *HttpService) verifyDeliveryToken(action string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, err := svc.tokenSvc.Verify(c.Params("token"))
		if err != nil || claims.Action != action {
			return shared.ResponseRaw(c, fiber.StatusForbidden, dto.TokenRejectedResponse{
				Valid:  false,
				Reason: "Invalid or expired token",
			})
		}

		originURL, err := svc.originSvc.Resolve(claims.Kind, claims.ContentID, claims.Title)
		if err != nil {
			log.WithError(err).Error("origin resolution failed")
			return shared.ResponseRaw(c, fiber.StatusInternalServerError, fiber.Map{"error": "Failed to resolve content"})
		}

		c.Locals(shared.ApiKeyLocal, claims.ApiKey)
		c.Locals(shared.TokenClaimsLocal, claims)
		c.Locals(shared.OriginURLLocal, originURL)
		return c.Next()
	}
}

func (svc *HttpService) watch(c *fiber.Ctx) error {
	originURL, _ := c.Locals(shared.OriginURLLocal).(string)
	return svc.proxySvc.Watch(c, originURL)
}

func (svc *HttpService) download(c *fiber.Ctx) error {
	originURL, _ := c.Locals(shared.OriginURLLocal).(string)
	claims, _ := c.Locals(shared.TokenClaimsLocal).(*DeliveryClaims)

	title := ""
	if claims != nil {
		title = claims.Title
	}

	return svc.proxySvc.Download(c, originURL, title)
}

// ==================== ADMIN GUARD ====================

func (svc *HttpService) adminGuard() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if len(svc.adminKeyHash) == 0 {
			return shared.ResponseForbidden(c)
		}

		key := c.Get("X-Admin-Key")
		if key == "" || bcrypt.CompareHashAndPassword(svc.adminKeyHash, []byte(key)) != nil {
			return shared.ResponseForbidden(c)
		}

		return c.Next()
	}
}

// ==================== ERROR HANDLING ====================

func (svc *HttpService) handleError(c *fiber.Ctx, err error) error {
	if appErr, ok := shared.GetAppError(err); ok {
		if appErr.StatusCode >= 500 {
			log.WithError(appErr.Err).Error(appErr.Message)
		}

		data := appErr.Data
		if data == nil && appErr.Err != nil && appErr.StatusCode < 500 {
			data = appErr.Err.Error()
		}
		return shared.ResponseJSON(c, appErr.StatusCode, appErr.Message, data)
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return shared.ResponseJSON(c, fiberErr.Code, fiberErr.Message, nil)
	}

	log.WithError(err).Error("unhandled error")
	return shared.ResponseInternalError(c, err)
}
