package services

import (
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/wustream/gate_api/model"
)

// fakeClock is a controllable time source shared by the TTL tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestClock(c *fakeClock) *ClockService {
	return &ClockService{source: c}
}

// newTestDb opens a private in-memory database. One connection only, so
// concurrent statements serialize the way a real durable store would.
func newTestDb(t *testing.T) *DbService {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&model.ApiKey{}, &model.BlockedIP{}))

	return &DbService{db: db}
}

func newTestQuota(t *testing.T, clock *fakeClock) (*QuotaService, *DbService) {
	t.Helper()

	dbSvc := newTestDb(t)
	svc := &QuotaService{
		dbSvc:    dbSvc,
		redisSvc: &RedisService{},
		clockSvc: newTestClock(clock),
	}
	return svc, dbSvc
}

func newTestBlocklist(t *testing.T, clock *fakeClock) (*BlocklistService, *DbService) {
	t.Helper()

	dbSvc := newTestDb(t)
	svc := &BlocklistService{
		entries:  make(map[string]*model.BlockedIP),
		dbSvc:    dbSvc,
		clockSvc: newTestClock(clock),
	}
	return svc, dbSvc
}

func newTestRateLimit(t *testing.T, clock *fakeClock) (*RateLimitService, *BlocklistService) {
	t.Helper()

	blockSvc, _ := newTestBlocklist(t, clock)
	svc := &RateLimitService{
		states:    make(map[string]*identityState),
		windows:   defaultWindows(),
		clockSvc:  newTestClock(clock),
		blockSvc:  blockSvc,
		stopSweep: make(chan struct{}),
	}
	return svc, blockSvc
}

func newTestToken(clock *fakeClock) *TokenService {
	return &TokenService{
		secret:                []byte("test-secret"),
		watchBaseURL:          "http://api.test",
		downloadBaseURL:       "http://dl.test",
		DownloadTokenDuration: 5 * time.Minute,
		SessionCookieDuration: 30 * 24 * time.Hour,
		clockSvc:              newTestClock(clock),
	}
}

func newRequest(t *testing.T, method, target string, body io.Reader) *http.Request {
	t.Helper()

	req, err := http.NewRequest(method, target, body)
	require.NoError(t, err)
	return req
}

func seedApiKey(t *testing.T, dbSvc *DbService, remaining, total int, disabled bool) *model.ApiKey {
	t.Helper()

	record := &model.ApiKey{
		ApiKey:         uuid.NewString(),
		Name:           "tester",
		Email:          "tester@example.com",
		QuotaTotal:     total,
		QuotaRemaining: remaining,
		Disabled:       disabled,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	require.NoError(t, dbSvc.CreateApiKey(record))
	return record
}
