// Command gen-token signs short-lived HS256 bearer tokens for calling an
// API running with AUTH_HS256_SECRET (self-hosted mode).
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/joho/godotenv"
)

func main() {
	var (
		sub = flag.String("sub", "local", "subject claim for the token")
		ttl = flag.Duration("ttl", time.Hour, "token lifetime")
	)
	flag.Parse()

	_ = godotenv.Load()
	secret := os.Getenv("AUTH_HS256_SECRET")
	if secret == "" {
		fmt.Fprintln(os.Stderr, "AUTH_HS256_SECRET must be set")
		os.Exit(1)
	}

	claims := jwt.MapClaims{
		"sub": *sub,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(*ttl).Unix(),
	}
	if aud := os.Getenv("AUTH_AUDIENCE"); aud != "" {
		claims["aud"] = aud
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(token)
}
