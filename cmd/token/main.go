// Command token mints an operator bearer token for the /v1 API.
//
//	API_JWT_SECRET=... go run ./cmd/token -sub ops -ttl 24h
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/channel-session-go/internal/auth"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	_ = godotenv.Load()

	subject := flag.String("sub", "operator", "token subject")
	ttl := flag.Duration("ttl", auth.DefaultTokenTTL, "token lifetime")
	flag.Parse()

	secret := os.Getenv("API_JWT_SECRET")
	if secret == "" {
		log.Fatal().Msg("API_JWT_SECRET is not set")
	}

	token, err := auth.NewJWTService(secret).SignToken(*subject, *ttl)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to sign token")
	}

	fmt.Println(token)
	log.Info().Str("sub", *subject).Time("expiresAt", time.Now().Add(*ttl)).Msg("token issued")
}
