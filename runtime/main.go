package main

import (
	"github.com/alphabatem/common/context"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/ghostwriter-labs/gate_api/services"
)

// @title Gate API
// @version 1.0
// @description Access control and quota engine for content generation
// @BasePath /
func main() {
	err := godotenv.Load()
	if err != nil {
		log.Warn().Err(err).Msg("No .env file loaded")
	}

	ctx, err := context.NewCtx(
		&services.MonitoringService{},
		&services.PostgresService{},
		&services.RedisService{},
		&services.JWTService{},
		&services.AuthService{},
		&services.TokenService{},
		&services.RateLimitService{},
		&services.SecurityService{},
		&services.ArchiveService{},
		&services.SchedulerService{},
		&services.GatewayService{},

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
