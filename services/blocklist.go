package services

import (
	"errors"
	"sync"
	"time"

	"github.com/alphabatem/common/context"
	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/wustream/gate_api/dto"
	"github.com/wustream/gate_api/model"
	"github.com/wustream/gate_api/shared"
)

// BlocklistService keeps the set of blocked identities: durable rows plus an
// in-memory index for the hot path. A memory hit is always re-validated
// against the durable store before it is trusted, so out-of-band unblocks
// take effect within one check.
type BlocklistService struct {
	context.DefaultService

	mu      sync.RWMutex
	entries map[string]*model.BlockedIP

	dbSvc    *DbService
	clockSvc *ClockService
	tokenSvc *TokenService
}

const BLOCKLIST_SVC = "blocklist_svc"

func (svc BlocklistService) Id() string {
	return BLOCKLIST_SVC
}

func (svc *BlocklistService) Configure(ctx *context.Context) error {
	svc.entries = make(map[string]*model.BlockedIP)
	return svc.DefaultService.Configure(ctx)
}

// Start scans the durable store once: expired rows are deleted, the rest
// populate the in-memory index.
func (svc *BlocklistService) Start() error {
	svc.dbSvc = svc.Service(DB_SVC).(*DbService)
	svc.clockSvc = svc.Service(CLOCK_SVC).(*ClockService)
	svc.tokenSvc = svc.Service(TOKEN_SVC).(*TokenService)

	rows, err := svc.dbSvc.AllBlockedIPs()
	if err != nil {
		return err
	}

	now := svc.clockSvc.Now()
	loaded := 0

	svc.mu.Lock()
	for i := range rows {
		entry := rows[i]
		if !entry.BlockedUntil.After(now) {
			if err := svc.dbSvc.DeleteBlockedIP(entry.Identity); err != nil {
				log.WithError(err).WithField("identity", entry.Identity).Warn("failed to purge expired block")
			}
			continue
		}
		svc.entries[entry.Identity] = &entry
		loaded++
	}
	svc.mu.Unlock()

	log.Printf("Active blocked identities loaded: %d", loaded)
	return nil
}

// ==================== CORE OPERATIONS ====================

// IsBlocked checks memory first. Absent from memory means not blocked. A hit
// re-reads the durable row; a missing or expired row clears both tiers.
func (svc *BlocklistService) IsBlocked(identity string) (*model.BlockedIP, error) {
	svc.mu.RLock()
	entry, ok := svc.entries[identity]
	svc.mu.RUnlock()

	if !ok {
		return nil, nil
	}

	row, err := svc.dbSvc.GetBlockedIP(identity)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		svc.forget(identity)
		return nil, nil
	}
	if err != nil {
		// Never admit a possibly-blocked identity on a store failure.
		return nil, svc.dbSvc.HandleError(err)
	}

	// The durable row wins over the cached entry: an out-of-band extension
	// or shortening takes effect here.
	if !row.BlockedUntil.After(svc.clockSvc.Now()) {
		svc.forget(identity)
		if err := svc.dbSvc.DeleteBlockedIP(identity); err != nil {
			log.WithError(err).WithField("identity", identity).Warn("failed to delete expired block")
		}
		return nil, nil
	}

	if entry.BlockedUntil != row.BlockedUntil {
		svc.mu.Lock()
		svc.entries[identity] = row
		svc.mu.Unlock()
	}

	return row, nil
}

// Block writes the durable row first, then the index.
func (svc *BlocklistService) Block(identity, reason string, hours int) error {
	if hours <= 0 {
		hours = 24
	}

	now := svc.clockSvc.Now()
	entry := &model.BlockedIP{
		Identity:     identity,
		Reason:       reason,
		BlockedUntil: now.Add(time.Duration(hours) * time.Hour),
		CreatedAt:    now,
	}

	if err := svc.dbSvc.SaveBlockedIP(entry); err != nil {
		return svc.dbSvc.HandleError(err)
	}

	svc.mu.Lock()
	svc.entries[identity] = entry
	svc.mu.Unlock()

	identityBlocksTotal.Inc()

	log.WithFields(log.Fields{
		"identity":      identity,
		"reason":        reason,
		"blocked_until": entry.BlockedUntil,
	}).Warn("identity blocked")

	return nil
}

func (svc *BlocklistService) Unblock(identity string) error {
	if err := svc.dbSvc.DeleteBlockedIP(identity); err != nil {
		return svc.dbSvc.HandleError(err)
	}
	svc.forget(identity)
	return nil
}

func (svc *BlocklistService) forget(identity string) {
	svc.mu.Lock()
	delete(svc.entries, identity)
	svc.mu.Unlock()
}

// ==================== ADMIN VIEWS ====================

func (svc *BlocklistService) ActiveBlocks() []dto.BlockEntryResponse {
	now := svc.clockSvc.Now()

	svc.mu.RLock()
	defer svc.mu.RUnlock()

	blocks := make([]dto.BlockEntryResponse, 0, len(svc.entries))
	for _, entry := range svc.entries {
		if entry.BlockedUntil.After(now) {
			blocks = append(blocks, dto.BlockEntryResponse{
				Identity:     entry.Identity,
				Reason:       entry.Reason,
				BlockedUntil: entry.BlockedUntil,
			})
		}
	}
	return blocks
}

func (svc *BlocklistService) CountActive() int {
	now := svc.clockSvc.Now()

	svc.mu.RLock()
	defer svc.mu.RUnlock()

	count := 0
	for _, entry := range svc.entries {
		if entry.BlockedUntil.After(now) {
			count++
		}
	}
	return count
}

// ==================== MIDDLEWARE ====================

// Check rejects blocked identities before any other gate runs. It consults
// the caller's identity (the same one the rate limiter escalates) and the
// bare network address, so a key block holds even when the key arrives from
// a fresh address and an address block holds without any key.
func (svc *BlocklistService) Check() fiber.Handler {
	return func(c *fiber.Ctx) error {
		entry, err := svc.lookupRequest(c)
		if err != nil {
			log.WithError(err).Error("blocklist check failed")
			return shared.ResponseRaw(c, fiber.StatusInternalServerError, fiber.Map{"error": "Blocklist unavailable"})
		}

		if entry != nil {
			return shared.ResponseRaw(c, fiber.StatusForbidden, dto.BlockedResponse{
				Success:   false,
				Blocked:   true,
				Reason:    entry.Reason,
				UnblockAt: entry.BlockedUntil.UTC().Format(time.RFC3339),
			})
		}

		return c.Next()
	}
}

func (svc *BlocklistService) lookupRequest(c *fiber.Ctx) (*model.BlockedIP, error) {
	identity := Identity(c, svc.tokenSvc)

	entry, err := svc.IsBlocked(identity)
	if entry != nil || err != nil {
		return entry, err
	}

	if ip := ClientIP(c); ip != identity {
		return svc.IsBlocked(ip)
	}
	return nil, nil
}
