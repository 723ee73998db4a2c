package services

import (
	"context"
	"errors"
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/wustream/gate_api/dto"
	"github.com/wustream/gate_api/model"
	"github.com/wustream/gate_api/shared"
)

// QuotaService is the API-key ledger. Authorize is a single conditional
// UPDATE against the durable store, so N concurrent calls against a key
// with one remaining unit admit exactly one request.
type QuotaService struct {
	appContext.DefaultService

	dbSvc    *DbService
	redisSvc *RedisService
	clockSvc *ClockService
}

const QUOTA_SVC = "quota_svc"

const apiKeyCachePrefix = "apikey:"

func (svc QuotaService) Id() string {
	return QUOTA_SVC
}

func (svc *QuotaService) Configure(ctx *appContext.Context) error {
	return svc.DefaultService.Configure(ctx)
}

func (svc *QuotaService) Start() error {
	svc.dbSvc = svc.Service(DB_SVC).(*DbService)
	svc.redisSvc = svc.Service(REDIS_SVC).(*RedisService)
	svc.clockSvc = svc.Service(CLOCK_SVC).(*ClockService)
	return nil
}

// ==================== AUTHORIZATION ====================

// Authorize checks and spends one quota unit in the same statement. It never
// fails open: any store error rejects the request.
func (svc *QuotaService) Authorize(apiKey string) (*model.ApiKey, error) {
	now := svc.clockSvc.Now()

	res := svc.dbSvc.Db().Model(&model.ApiKey{}).
		Where("api_key = ? AND disabled = ? AND quota_remaining > 0", apiKey, false).
		Updates(map[string]interface{}{
			"quota_remaining": gorm.Expr("quota_remaining - 1"),
			"total_fetches":   gorm.Expr("total_fetches + 1"),
			"updated_at":      now,
		})
	if res.Error != nil {
		return nil, shared.NewInternalError(svc.dbSvc.HandleError(res.Error), "Quota service unavailable")
	}

	if res.RowsAffected == 0 {
		return nil, svc.classifyRejection(apiKey)
	}

	record, err := svc.dbSvc.GetApiKey(apiKey)
	if err != nil {
		// The decrement landed; treat the read-back as telemetry only.
		log.WithError(err).Warn("quota read-back failed after decrement")
		record = &model.ApiKey{ApiKey: apiKey}
	} else {
		svc.syncCache(record)
	}

	return record, nil
}

func (svc *QuotaService) classifyRejection(apiKey string) error {
	record, err := svc.dbSvc.GetApiKey(apiKey)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return shared.NewUnauthorizedError(err, "Invalid API key")
	}
	if err != nil {
		return shared.NewInternalError(svc.dbSvc.HandleError(err), "Quota service unavailable")
	}

	if record.Disabled {
		return shared.NewForbiddenError(nil, "API Key disabled")
	}
	return shared.NewForbiddenError(nil, "Quota exhausted")
}

// syncCache refreshes the cache entry off the critical path. Failures are
// logged; the durable store already holds the truth.
func (svc *QuotaService) syncCache(record *model.ApiKey) {
	snapshot := *record
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		if err := svc.redisSvc.SetJSON(ctx, apiKeyCachePrefix+snapshot.ApiKey, &snapshot, 0); err != nil {
			log.WithError(err).WithField("api_key", snapshot.ApiKey).Warn("api key cache sync failed")
		}
	}()
}

func (svc *QuotaService) invalidateCache(apiKey string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := svc.redisSvc.Delete(ctx, apiKeyCachePrefix+apiKey); err != nil {
		log.WithError(err).WithField("api_key", apiKey).Warn("api key cache invalidation failed")
	}
}

// ==================== LOOKUPS ====================

// GetKey serves manager views. Cache first, durable store on miss. Never
// used for authorization decisions.
func (svc *QuotaService) GetKey(apiKey string) (*model.ApiKey, error) {
	var cached model.ApiKey
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	hit, err := svc.redisSvc.GetJSON(ctx, apiKeyCachePrefix+apiKey, &cached)
	if err != nil {
		log.WithError(err).Warn("api key cache read failed")
	}
	if hit && err == nil {
		return &cached, nil
	}

	record, err := svc.dbSvc.GetApiKey(apiKey)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, shared.NewNotFoundError(err, "API Key Not Found")
	}
	if err != nil {
		return nil, shared.NewInternalError(svc.dbSvc.HandleError(err), "Quota service unavailable")
	}

	svc.syncCache(record)
	return record, nil
}

// ==================== ADMIN OPERATIONS ====================

func (svc *QuotaService) CreateKey(req dto.CreateKeyRequest) (*model.ApiKey, error) {
	now := svc.clockSvc.Now()

	record := &model.ApiKey{
		ApiKey:         uuid.NewString(),
		Name:           req.Name,
		Email:          req.Email,
		QuotaTotal:     req.QuotaTotal,
		QuotaRemaining: req.QuotaTotal,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := svc.dbSvc.CreateApiKey(record); err != nil {
		return nil, shared.NewInternalError(svc.dbSvc.HandleError(err), "Failed to create API key")
	}

	return record, nil
}

// AddTokens grants n extra units: both the ceiling and the balance grow.
func (svc *QuotaService) AddTokens(apiKey string, n int) error {
	if n <= 0 {
		return shared.NewBadRequestError(nil, "Amount must be positive")
	}

	res := svc.dbSvc.Db().Model(&model.ApiKey{}).
		Where("api_key = ?", apiKey).
		Updates(map[string]interface{}{
			"quota_total":     gorm.Expr("quota_total + ?", n),
			"quota_remaining": gorm.Expr("quota_remaining + ?", n),
			"updated_at":      svc.clockSvc.Now(),
		})
	if res.Error != nil {
		return shared.NewInternalError(svc.dbSvc.HandleError(res.Error), "Failed to add tokens")
	}
	if res.RowsAffected == 0 {
		return shared.NewNotFoundError(nil, "API Key Not Found")
	}

	svc.invalidateCache(apiKey)
	return nil
}

// ResetTokens redefines the quota: total == remaining == n, fetch count zeroed.
func (svc *QuotaService) ResetTokens(apiKey string, n int) error {
	if n <= 0 {
		return shared.NewBadRequestError(nil, "Amount must be positive")
	}

	res := svc.dbSvc.Db().Model(&model.ApiKey{}).
		Where("api_key = ?", apiKey).
		Updates(map[string]interface{}{
			"quota_total":     n,
			"quota_remaining": n,
			"total_fetches":   0,
			"updated_at":      svc.clockSvc.Now(),
		})
	if res.Error != nil {
		return shared.NewInternalError(svc.dbSvc.HandleError(res.Error), "Failed to reset tokens")
	}
	if res.RowsAffected == 0 {
		return shared.NewNotFoundError(nil, "API Key Not Found")
	}

	svc.invalidateCache(apiKey)
	return nil
}

func (svc *QuotaService) SetDisabled(apiKey string, disabled bool) error {
	res := svc.dbSvc.Db().Model(&model.ApiKey{}).
		Where("api_key = ?", apiKey).
		Updates(map[string]interface{}{
			"disabled":   disabled,
			"updated_at": svc.clockSvc.Now(),
		})
	if res.Error != nil {
		return shared.NewInternalError(svc.dbSvc.HandleError(res.Error), "Failed to update API key")
	}
	if res.RowsAffected == 0 {
		return shared.NewNotFoundError(nil, "API Key Not Found")
	}

	svc.invalidateCache(apiKey)
	return nil
}

// ==================== MIDDLEWARE ====================

// Gate enforces the quota on every gated route. The key may have been
// attached earlier in the pipeline (delivery tokens embed the issuing key).
func (svc *QuotaService) Gate(tokenSvc *TokenService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		apiKey := ExtractApiKey(c, tokenSvc)
		if apiKey == "" {
			gateRejectionsTotal.WithLabelValues("missing_key").Inc()
			return shared.ResponseRaw(c, fiber.StatusUnauthorized, fiber.Map{"error": "API key missing"})
		}

		record, err := svc.Authorize(apiKey)
		if err != nil {
			if appErr, ok := shared.GetAppError(err); ok {
				gateRejectionsTotal.WithLabelValues(rejectionLabel(appErr.Message)).Inc()
				return shared.ResponseRaw(c, appErr.StatusCode, fiber.Map{"error": appErr.Message})
			}
			gateRejectionsTotal.WithLabelValues("store_error").Inc()
			return shared.ResponseRaw(c, fiber.StatusInternalServerError, fiber.Map{"error": "Quota service unavailable"})
		}

		c.Locals(shared.ApiKeyLocal, record.ApiKey)
		return c.Next()
	}
}

func rejectionLabel(message string) string {
	switch message {
	case "Invalid API key":
		return "invalid_key"
	case "API Key disabled":
		return "key_disabled"
	case "Quota exhausted":
		return "quota_exhausted"
	default:
		return "store_error"
	}
}
