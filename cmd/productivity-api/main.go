package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/knight-systems/productivity-service/api"
	"github.com/knight-systems/productivity-service/bookmarks"
	"github.com/knight-systems/productivity-service/dailynote"
	"github.com/knight-systems/productivity-service/fetch"
	"github.com/knight-systems/productivity-service/maildrop"
	"github.com/knight-systems/productivity-service/review"
	"github.com/knight-systems/productivity-service/routines"
	"github.com/knight-systems/productivity-service/storage"
	"github.com/knight-systems/productivity-service/tasks"
	"github.com/knight-systems/productivity-service/vault"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file")
	}
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	logger := log.StandardLogger()

	serviceName := os.Getenv("SERVICE_NAME")
	if serviceName == "" {
		serviceName = "productivity-api"
	}
	environment := os.Getenv("ENVIRONMENT")
	if environment == "" {
		environment = "dev"
	}

	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	capturesTable := os.Getenv("CAPTURES_TABLE")
	queueItemsTable := os.Getenv("QUEUE_ITEMS_TABLE")
	eventsQueue := os.Getenv("CAPTURE_EVENTS_QUEUE")
	if connStr == "" || capturesTable == "" || queueItemsTable == "" || eventsQueue == "" {
		log.Fatal("missing storage config")
	}
	store, err := storage.New(connStr, capturesTable, queueItemsTable, eventsQueue)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	redisConn := os.Getenv("REDIS_CONNECTION_STRING")
	if redisConn == "" {
		log.Fatal("missing redis config")
	}
	rc := redis.NewClient(redisOptions(redisConn))

	dedupeTTL := 24 * time.Hour
	if v := os.Getenv("DEDUPER_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			log.Fatalf("invalid DEDUPER_TTL: %v", err)
		}
		dedupeTTL = d
	}
	deduper := api.NewRedisDeduper(rc, dedupeTTL)

	cacheTTL := 10 * time.Minute
	if v := os.Getenv("STATS_CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			log.Fatalf("invalid STATS_CACHE_TTL: %v", err)
		}
		cacheTTL = d
	}
	stats := storage.NewStatsCache(store, rc, cacheTTL, logger)

	auth := buildAuth()

	tz := time.Local
	if name := os.Getenv("VAULT_TIMEZONE"); name != "" {
		loc, err := time.LoadLocation(name)
		if err != nil {
			log.Fatalf("invalid VAULT_TIMEZONE: %v", err)
		}
		tz = loc
	}

	vlt := buildVault()

	fetcher := fetch.NewClient()
	if v := os.Getenv("FETCH_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			log.Fatalf("invalid FETCH_TIMEOUT: %v", err)
		}
		fetcher = fetcher.WithHTTPClient(&http.Client{Timeout: d})
	}

	var extractor *tasks.Extractor
	var enricher *bookmarks.Enricher
	if key := os.Getenv("GENAI_API_KEY"); key != "" {
		model := os.Getenv("GENAI_MODEL")
		extractor, err = tasks.NewExtractor(context.Background(), key, model)
		if err != nil {
			log.Fatalf("genai extractor: %v", err)
		}
		enricher, err = bookmarks.NewEnricher(context.Background(), key, model)
		if err != nil {
			log.Fatalf("genai enricher: %v", err)
		}
	} else {
		log.Warn("GENAI_API_KEY not set, parsing falls back to heuristics")
	}

	drop := buildDrop(logger)

	daily := dailynote.NewService(vlt, tz, logger)
	parser := tasks.NewService(extractor, tz, logger)
	queue := review.NewService(review.Config{
		Vault:          vlt,
		Fetcher:        fetcher,
		Tasks:          drop,
		Timezone:       tz,
		ReadingProject: os.Getenv("READING_PROJECT"),
	}, logger)
	bmCfg := bookmarks.Config{
		Vault:    vlt,
		Fetcher:  fetcher,
		Daily:    daily,
		Timezone: tz,
	}
	if enricher != nil {
		bmCfg.Enricher = enricher
	}
	bms := bookmarks.NewService(bmCfg, logger)
	rtCfg := routines.Config{Daily: daily, Tasks: drop, Timezone: tz}
	if extractor != nil {
		rtCfg.Extractor = extractor
	}
	rts := routines.NewService(rtCfg, logger)

	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	e.Use(otelecho.Middleware(serviceName))
	e.Use(api.GzipRequestMiddleware)

	api.Register(e, api.Deps{
		Auth:      auth,
		Deduper:   deduper,
		Events:    store,
		Parser:    parser,
		Tasks:     drop,
		Bookmarks: bms,
		Queue:     queue,
		Stats:     stats,
		Daily:     daily,
		Routines:  rts,

		AlexaSkillID: os.Getenv("ALEXA_SKILL_ID"),
		ServiceName:  serviceName,
		Environment:  environment,
		Log:          logger,
	})

	listenAddr := ":8080"
	if val, ok := os.LookupEnv("LISTEN_PORT"); ok {
		listenAddr = ":" + val
	}
	if val, ok := os.LookupEnv("FUNCTIONS_CUSTOMHANDLER_PORT"); ok {
		listenAddr = ":" + val
	}

	e.Logger.Fatal(e.Start(listenAddr))
}

func buildAuth() *api.Auth {
	if os.Getenv("AUTH_TEST_MODE") == "1" {
		log.Warn("AUTH_TEST_MODE enabled, tokens are not verified")
		return api.NewAuth(nil, "", "")
	}
	audience := os.Getenv("AUTH_AUDIENCE")
	if os.Getenv("AUTH_HS256_SECRET") != "" {
		return api.NewAuth(nil, audience, "")
	}
	domain := os.Getenv("AUTH_DOMAIN")
	if audience == "" || domain == "" {
		log.Fatal("missing auth config")
	}
	jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", domain)
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
	if err != nil {
		log.Fatalf("jwks: %v", err)
	}
	return api.NewAuth(jwks, audience, "https://"+domain+"/")
}

func buildVault() vault.Vault {
	switch backend := os.Getenv("VAULT_BACKEND"); backend {
	case "", "github":
		token := os.Getenv("GITHUB_TOKEN")
		repo := os.Getenv("GITHUB_REPO")
		if token == "" || repo == "" {
			log.Fatal("missing GITHUB_TOKEN or GITHUB_REPO")
		}
		gh, err := vault.NewGitHub(token, repo, os.Getenv("GITHUB_BRANCH"))
		if err != nil {
			log.Fatalf("vault: %v", err)
		}
		return gh
	case "local":
		dir := os.Getenv("VAULT_DIR")
		if dir == "" {
			log.Fatal("missing VAULT_DIR")
		}
		return vault.NewLocal(dir)
	default:
		log.Fatalf("unknown VAULT_BACKEND %q", backend)
		return nil
	}
}

func buildDrop(logger *log.Logger) *maildrop.Drop {
	address := os.Getenv("MAILDROP_ADDRESS")
	if address == "" {
		log.Warn("MAILDROP_ADDRESS not set, task delivery disabled")
		return maildrop.NewUnconfiguredDrop("MAILDROP_ADDRESS", logger)
	}
	host := os.Getenv("SMTP_HOST")
	sender := os.Getenv("SMTP_SENDER")
	if host == "" || sender == "" {
		log.Fatal("missing SMTP_HOST or SMTP_SENDER")
	}
	port := 0
	if v := os.Getenv("SMTP_PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			log.Fatalf("invalid SMTP_PORT: %v", err)
		}
		port = n
	}
	mailer, err := maildrop.NewSMTPMailer(maildrop.SMTPConfig{
		Host:     host,
		Port:     port,
		Username: os.Getenv("SMTP_USER"),
		Password: os.Getenv("SMTP_PASSWORD"),
		From:     sender,
		To:       address,
	})
	if err != nil {
		log.Fatalf("smtp: %v", err)
	}
	outboxDir := os.Getenv("OUTBOX_DIR")
	if outboxDir == "" {
		outboxDir = "outbox"
	}
	spool, err := maildrop.OpenSpool(maildrop.SpoolConfig{Dir: outboxDir}, logger)
	if err != nil {
		log.Fatalf("spool: %v", err)
	}
	spool.Start(mailer)
	return maildrop.NewDrop(mailer, spool, logger)
}

func redisOptions(connStr string) *redis.Options {
	opts, err := redis.ParseURL(connStr)
	if err == nil {
		return opts
	}
	parts := strings.Split(connStr, ",")
	opts = &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(kv[0]) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.ToLower(kv[1]) == "true" {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts
}
