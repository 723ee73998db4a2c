package services

import (
	"time"

	"github.com/alphabatem/common/context"

	"github.com/wustream/gate_api/shared"
)

// ClockService exposes the wall clock to the other services. Tests swap the
// underlying source to drive TTL expiry deterministically.
type ClockService struct {
	context.DefaultService

	source shared.Clock
}

const CLOCK_SVC = "clock_svc"

func (svc ClockService) Id() string {
	return CLOCK_SVC
}

func (svc *ClockService) Configure(ctx *context.Context) error {
	if svc.source == nil {
		svc.source = shared.SystemClock()
	}
	return svc.DefaultService.Configure(ctx)
}

func (svc *ClockService) Start() error {
	return nil
}

func (svc *ClockService) Now() time.Time {
	return svc.source.Now()
}

// SetSource replaces the time source. Test hook.
func (svc *ClockService) SetSource(c shared.Clock) {
	svc.source = c
}
