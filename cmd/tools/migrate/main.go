package main

import (
	"flag"
	"os"

	"github.com/joho/godotenv"

	"github.com/noah-isme/backend-klinik/internal/obs"
	"github.com/noah-isme/backend-klinik/internal/store"
)

func main() {
	down := flag.Int("down", 0, "roll back this many migrations instead of applying pending ones")
	flag.Parse()

	_ = godotenv.Load()
	logger := obs.NewLogger("console", "info").With().Str("component", "migrate").Logger()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		logger.Fatal().Msg("DATABASE_URL is not set")
	}

	if *down > 0 {
		if err := store.MigrateDown(dbURL, *down); err != nil {
			logger.Fatal().Err(err).Msg("migrate down")
		}
		logger.Info().Int("steps", *down).Msg("migrations rolled back")
		return
	}
	if err := store.Migrate(dbURL); err != nil {
		logger.Fatal().Err(err).Msg("migrate up")
	}
	logger.Info().Msg("migrations applied")
}
