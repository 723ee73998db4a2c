package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wustream/gate_api/dto"
	"github.com/wustream/gate_api/model"
	"github.com/wustream/gate_api/shared"
)

// ==================== FAKES ====================

type quotaCall struct {
	op     string
	apiKey string
	amount int
	flag   bool
}

type fakeQuotaService struct {
	calls []quotaCall
	key   *model.ApiKey
	err   error
}

func (f *fakeQuotaService) CreateKey(req dto.CreateKeyRequest) (*model.ApiKey, error) {
	f.calls = append(f.calls, quotaCall{op: "create", amount: req.QuotaTotal})
	if f.err != nil {
		return nil, f.err
	}
	return &model.ApiKey{
		ApiKey:         "generated-key",
		Name:           req.Name,
		Email:          req.Email,
		QuotaTotal:     req.QuotaTotal,
		QuotaRemaining: req.QuotaTotal,
	}, nil
}

func (f *fakeQuotaService) GetKey(apiKey string) (*model.ApiKey, error) {
	f.calls = append(f.calls, quotaCall{op: "get", apiKey: apiKey})
	if f.key == nil {
		return nil, shared.NewNotFoundError(nil, "API Key Not Found")
	}
	return f.key, nil
}

func (f *fakeQuotaService) AddTokens(apiKey string, n int) error {
	f.calls = append(f.calls, quotaCall{op: "add", apiKey: apiKey, amount: n})
	return f.err
}

func (f *fakeQuotaService) ResetTokens(apiKey string, n int) error {
	f.calls = append(f.calls, quotaCall{op: "reset", apiKey: apiKey, amount: n})
	return f.err
}

func (f *fakeQuotaService) SetDisabled(apiKey string, disabled bool) error {
	f.calls = append(f.calls, quotaCall{op: "disable", apiKey: apiKey, flag: disabled})
	return f.err
}

type fakeBlocklistService struct {
	blocks    []dto.BlockEntryResponse
	unblocked []string
}

func (f *fakeBlocklistService) ActiveBlocks() []dto.BlockEntryResponse { return f.blocks }

func (f *fakeBlocklistService) Block(identity, reason string, hours int) error { return nil }

func (f *fakeBlocklistService) Unblock(identity string) error {
	f.unblocked = append(f.unblocked, identity)
	return nil
}

type fakeRateLimitService struct {
	resets []string
}

func (f *fakeRateLimitService) Stats() dto.RateLimitStatsResponse {
	return dto.RateLimitStatsResponse{TrackedIdentities: 3, ActiveBlocks: 1}
}

func (f *fakeRateLimitService) ResetIdentity(identity string) {
	f.resets = append(f.resets, identity)
}

// ==================== HARNESS ====================

func newAdminApp(quota *fakeQuotaService, blocks *fakeBlocklistService, rate *fakeRateLimitService) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if appErr, ok := shared.GetAppError(err); ok {
				return shared.ResponseJSON(c, appErr.StatusCode, appErr.Message, nil)
			}
			return shared.ResponseInternalError(c, err)
		},
	})

	h := NewAdminHandler(quota, blocks, rate)
	app.Post("/keys", h.CreateKey)
	app.Get("/key/:apiKey", h.GetKey)
	app.Post("/update", h.UpdateQuota)
	app.Get("/blocked", h.ListBlocked)
	app.Delete("/blocked/:identity", h.Unblock)
	app.Get("/ratelimits", h.RateLimitStats)
	app.Delete("/ratelimits/:identity", h.ResetRateLimit)
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, target, body string) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req, err := http.NewRequest(method, target, reader)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// ==================== TESTS ====================

func TestAdminHandler_CreateKey(t *testing.T) {
	quota := &fakeQuotaService{}
	app := newAdminApp(quota, &fakeBlocklistService{}, &fakeRateLimitService{})

	resp := doJSON(t, app, fiber.MethodPost, "/keys",
		`{"name":"partner","email":"p@example.com","quota_total":100}`)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
	require.Len(t, quota.calls, 1)
	assert.Equal(t, 100, quota.calls[0].amount)
}

func TestAdminHandler_CreateKeyValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing name", `{"email":"p@example.com","quota_total":100}`},
		{"bad email", `{"name":"x","email":"not-an-email","quota_total":100}`},
		{"zero quota", `{"name":"x","email":"p@example.com","quota_total":0}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			quota := &fakeQuotaService{}
			app := newAdminApp(quota, &fakeBlocklistService{}, &fakeRateLimitService{})

			resp := doJSON(t, app, fiber.MethodPost, "/keys", tc.body)
			assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
			assert.Empty(t, quota.calls)
		})
	}
}

func TestAdminHandler_UpdateQuotaDispatch(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantOps []string
	}{
		{"add", `{"api_key":"k1","action":"add","amount":10}`, []string{"add"}},
		{"reset", `{"api_key":"k1","action":"reset","amount":10}`, []string{"reset"}},
		{"disable only", `{"api_key":"k1","disable":true}`, []string{"disable"}},
		{"enable and add", `{"api_key":"k1","action":"add","amount":5,"disable":false}`, []string{"disable", "add"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			quota := &fakeQuotaService{}
			app := newAdminApp(quota, &fakeBlocklistService{}, &fakeRateLimitService{})

			resp := doJSON(t, app, fiber.MethodPost, "/update", tc.body)
			assert.Equal(t, fiber.StatusOK, resp.StatusCode)

			ops := make([]string, 0, len(quota.calls))
			for _, call := range quota.calls {
				ops = append(ops, call.op)
			}
			assert.Equal(t, tc.wantOps, ops)

			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.JSONEq(t, `{"success":true}`, string(body))
		})
	}
}

func TestAdminHandler_UpdateQuotaRejectsUnknownAction(t *testing.T) {
	quota := &fakeQuotaService{}
	app := newAdminApp(quota, &fakeBlocklistService{}, &fakeRateLimitService{})

	resp := doJSON(t, app, fiber.MethodPost, "/update", `{"api_key":"k1","action":"gift","amount":10}`)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, quota.calls)
}

func TestAdminHandler_UpdateQuotaRejectsEmptyUpdate(t *testing.T) {
	quota := &fakeQuotaService{}
	app := newAdminApp(quota, &fakeBlocklistService{}, &fakeRateLimitService{})

	resp := doJSON(t, app, fiber.MethodPost, "/update", `{"api_key":"k1"}`)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, quota.calls)
}

func TestAdminHandler_GetKeyNotFound(t *testing.T) {
	app := newAdminApp(&fakeQuotaService{}, &fakeBlocklistService{}, &fakeRateLimitService{})

	resp := doJSON(t, app, fiber.MethodGet, "/key/missing", "")
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestAdminHandler_ListBlocked(t *testing.T) {
	blocks := &fakeBlocklistService{blocks: []dto.BlockEntryResponse{
		{Identity: "1.2.3.4", Reason: "spam", BlockedUntil: time.Now().Add(time.Hour)},
	}}
	app := newAdminApp(&fakeQuotaService{}, blocks, &fakeRateLimitService{})

	resp := doJSON(t, app, fiber.MethodGet, "/blocked", "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var envelope struct {
		Data []dto.BlockEntryResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &envelope))
	require.Len(t, envelope.Data, 1)
	assert.Equal(t, "1.2.3.4", envelope.Data[0].Identity)
}

func TestAdminHandler_UnblockAndReset(t *testing.T) {
	blocks := &fakeBlocklistService{}
	rate := &fakeRateLimitService{}
	app := newAdminApp(&fakeQuotaService{}, blocks, rate)

	resp := doJSON(t, app, fiber.MethodDelete, "/blocked/1.2.3.4", "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"1.2.3.4"}, blocks.unblocked)

	resp = doJSON(t, app, fiber.MethodDelete, "/ratelimits/5.6.7.8", "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"5.6.7.8"}, rate.resets)
}
