package main

import (
	"github.com/wustream/gate_api/services"

	"github.com/alphabatem/common/context"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Warn().Err(err).Msg("No .env file loaded")
	}

	ctx, err := context.NewCtx(
		&services.ClockService{},
		&services.DbService{},
		&services.RedisService{},
		&services.MinIOService{},
		&services.OriginService{},
		&services.TokenService{},
		&services.QuotaService{},
		&services.BlocklistService{},
		&services.RateLimitService{},
		&services.ProxyService{},
		&services.MonitoringService{},

		&services.HttpService{},
	)
	if err != nil {
		log.Fatal().Err(err)
		return
	}

	err = ctx.Run()
	if err != nil {
		log.Fatal().Err(err)
		return
	}
}
