package services

import (
	"fmt"
	"sync"
	"time"

	"github.com/alphabatem/common/context"
	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"

	"github.com/wustream/gate_api/dto"
	"github.com/wustream/gate_api/shared"
)

// RateWindow is one fixed time horizon with its own request ceiling and its
// own violation-reset duration.
type RateWindow struct {
	Name        string
	Duration    time.Duration
	MaxRequests int
	ResetAfter  time.Duration
}

func defaultWindows() []RateWindow {
	return []RateWindow{
		{Name: shared.WindowPerSecond, Duration: time.Second, MaxRequests: 5, ResetAfter: 2 * time.Minute},
		{Name: shared.WindowPerMinute, Duration: time.Minute, MaxRequests: 50, ResetAfter: 10 * time.Minute},
		{Name: shared.WindowPerHour, Duration: time.Hour, MaxRequests: 500, ResetAfter: time.Hour},
		{Name: shared.WindowPerDay, Duration: 24 * time.Hour, MaxRequests: 1000, ResetAfter: 24 * time.Hour},
	}
}

const (
	violationThreshold = 15
	blockHours         = 24
	idleStateTTL       = 48 * time.Hour
)

type windowCounter struct {
	windowStart time.Time
	count       int
}

type violationCounter struct {
	count   int
	firstAt time.Time
}

// identityState serializes all window updates for one identity. Different
// identities touch different states and never contend.
type identityState struct {
	mu         sync.Mutex
	counters   map[string]*windowCounter
	violations map[string]*violationCounter
	lastSeen   time.Time
}

// RateLimitService tracks request velocity per identity across the fixed
// windows and escalates repeat offenders into the blocklist.
type RateLimitService struct {
	context.DefaultService

	mu      sync.RWMutex
	states  map[string]*identityState
	windows []RateWindow

	clockSvc *ClockService
	blockSvc *BlocklistService
	tokenSvc *TokenService

	stopSweep chan struct{}
}

const RATE_LIMIT_SVC = "rate_limit_svc"

func (svc RateLimitService) Id() string {
	return RATE_LIMIT_SVC
}

func (svc *RateLimitService) Configure(ctx *context.Context) error {
	svc.states = make(map[string]*identityState)
	svc.windows = defaultWindows()
	svc.stopSweep = make(chan struct{})
	return svc.DefaultService.Configure(ctx)
}

func (svc *RateLimitService) Start() error {
	svc.clockSvc = svc.Service(CLOCK_SVC).(*ClockService)
	svc.blockSvc = svc.Service(BLOCKLIST_SVC).(*BlocklistService)
	svc.tokenSvc = svc.Service(TOKEN_SVC).(*TokenService)

	go svc.sweepLoop()
	return nil
}

func (svc *RateLimitService) Shutdown() {
	close(svc.stopSweep)
}

func (svc *RateLimitService) Windows() []RateWindow {
	return svc.windows
}

// ==================== CORE LIMITING ====================

func (svc *RateLimitService) state(identity string, now time.Time) *identityState {
	svc.mu.RLock()
	st, ok := svc.states[identity]
	svc.mu.RUnlock()
	if ok {
		return st
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()
	if st, ok = svc.states[identity]; ok {
		return st
	}
	st = &identityState{
		counters:   make(map[string]*windowCounter),
		violations: make(map[string]*violationCounter),
		lastSeen:   now,
	}
	svc.states[identity] = st
	return st
}

// Allow spends one slot in every window, narrowest first. The first window
// over its ceiling rejects the request and records one violation; wider
// windows are not charged for a rejected request.
func (svc *RateLimitService) Allow(identity string) (bool, *dto.RateLimitInfo) {
	now := svc.clockSvc.Now()
	st := svc.state(identity, now)

	st.mu.Lock()
	defer st.mu.Unlock()
	st.lastSeen = now

	remaining := -1
	for i := range svc.windows {
		w := &svc.windows[i]

		ctr, ok := st.counters[w.Name]
		if !ok || now.Sub(ctr.windowStart) >= w.Duration {
			ctr = &windowCounter{windowStart: now}
			st.counters[w.Name] = ctr
		}
		ctr.count++

		if ctr.count > w.MaxRequests {
			rateLimitBreachesTotal.WithLabelValues(w.Name).Inc()
			warningsLeft := svc.recordViolation(st, identity, w, now)
			return false, &dto.RateLimitInfo{
				Allowed:           false,
				Window:            w.Name,
				Remaining:         0,
				WarningsLeft:      warningsLeft,
				BlockedNextIfZero: warningsLeft == 0,
			}
		}

		if left := w.MaxRequests - ctr.count; remaining < 0 || left < remaining {
			remaining = left
		}
	}

	return true, &dto.RateLimitInfo{Allowed: true, Remaining: remaining, WarningsLeft: violationThreshold}
}

// recordViolation bumps the violation counter for (identity, window),
// restarting the epoch when the window's reset duration has elapsed.
// Crossing the threshold blocks the identity once and clears the counter.
// Caller holds st.mu.
func (svc *RateLimitService) recordViolation(st *identityState, identity string, w *RateWindow, now time.Time) int {
	v, ok := st.violations[w.Name]
	if !ok || now.Sub(v.firstAt) > w.ResetAfter {
		v = &violationCounter{count: 1, firstAt: now}
		st.violations[w.Name] = v
	} else {
		v.count++
	}

	warningsLeft := violationThreshold - v.count
	if warningsLeft < 0 {
		warningsLeft = 0
	}

	if v.count >= violationThreshold {
		reason := fmt.Sprintf("Exceeded %s too many times.", w.Name)
		if err := svc.blockSvc.Block(identity, reason, blockHours); err != nil {
			// Best-effort escalation: the 429 still goes out.
			log.WithError(err).WithField("identity", identity).Error("failed to block identity")
		} else {
			delete(st.violations, w.Name)
		}
	}

	return warningsLeft
}

// ==================== MIDDLEWARE ====================

// Gate applies all windows to the request's identity.
func (svc *RateLimitService) Gate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		identity := Identity(c, svc.tokenSvc)

		allowed, info := svc.Allow(identity)
		if allowed {
			return c.Next()
		}

		return shared.ResponseRaw(c, fiber.StatusTooManyRequests, dto.RateLimitExceededResponse{
			Success:           false,
			Message:           fmt.Sprintf("%s limit reached.", info.Window),
			WarningsLeft:      info.WarningsLeft,
			BlockedNextIfZero: info.BlockedNextIfZero,
		})
	}
}

// ==================== ADMIN VIEWS ====================

func (svc *RateLimitService) Stats() dto.RateLimitStatsResponse {
	svc.mu.RLock()
	tracked := len(svc.states)
	svc.mu.RUnlock()

	windows := make([]dto.WindowConfigResponse, 0, len(svc.windows))
	for _, w := range svc.windows {
		windows = append(windows, dto.WindowConfigResponse{
			Name:        w.Name,
			Duration:    w.Duration.String(),
			MaxRequests: w.MaxRequests,
			ResetAfter:  w.ResetAfter.String(),
		})
	}

	return dto.RateLimitStatsResponse{
		Windows:           windows,
		TrackedIdentities: tracked,
		ActiveBlocks:      svc.blockSvc.CountActive(),
		Timestamp:         svc.clockSvc.Now(),
	}
}

func (svc *RateLimitService) ResetIdentity(identity string) {
	svc.mu.Lock()
	delete(svc.states, identity)
	svc.mu.Unlock()
}

// ==================== BACKGROUND JOBS ====================

func (svc *RateLimitService) sweepLoop() {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			svc.sweepIdle()
		case <-svc.stopSweep:
			return
		}
	}
}

func (svc *RateLimitService) sweepIdle() {
	now := svc.clockSvc.Now()

	svc.mu.Lock()
	defer svc.mu.Unlock()

	evicted := 0
	for identity, st := range svc.states {
		st.mu.Lock()
		idle := now.Sub(st.lastSeen) > idleStateTTL
		st.mu.Unlock()
		if idle {
			delete(svc.states, identity)
			evicted++
		}
	}

	if evicted > 0 {
		log.Printf("Rate limit sweep evicted %d idle identities", evicted)
	}
}
