package handlers

import (
	"github.com/wustream/gate_api/dto"
	"github.com/wustream/gate_api/model"
)

type QuotaServiceInterface interface {
	CreateKey(req dto.CreateKeyRequest) (*model.ApiKey, error)
	GetKey(apiKey string) (*model.ApiKey, error)
	AddTokens(apiKey string, n int) error
	ResetTokens(apiKey string, n int) error
	SetDisabled(apiKey string, disabled bool) error
}

type TokenServiceInterface interface {
	IssueLinks(req dto.IssueLinksRequest, apiKey string) (*dto.IssueLinksResponse, error)
	IssueSessionCookie(apiKey string) (string, error)
}

type BlocklistServiceInterface interface {
	ActiveBlocks() []dto.BlockEntryResponse
	Block(identity, reason string, hours int) error
	Unblock(identity string) error
}

type RateLimitServiceInterface interface {
	Stats() dto.RateLimitStatsResponse
	ResetIdentity(identity string)
}
