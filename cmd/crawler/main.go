package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/jumia-tools/phone-scraper/internal/config"
	"github.com/jumia-tools/phone-scraper/internal/crawler"
	"github.com/jumia-tools/phone-scraper/internal/database"
	"github.com/jumia-tools/phone-scraper/internal/fetcher"
	"github.com/jumia-tools/phone-scraper/internal/parser"
	"github.com/jumia-tools/phone-scraper/internal/queue"
	"github.com/jumia-tools/phone-scraper/internal/ratelimit"
	"github.com/jumia-tools/phone-scraper/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("starting crawler",
		"start_url", cfg.Crawler.StartURL,
		"domain", cfg.Crawler.AllowedDomain,
		"workers", cfg.Crawler.ConcurrentLimit,
		"delay", cfg.Crawler.Delay)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("shutdown signal received")
		cancel()
	}()

	db, err := database.New(ctx, database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: 4,
		MinConns: 1,
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	store := database.NewProductStore(db, logger)

	// Schema problems are fatal before any page is fetched.
	if err := store.CheckSchema(ctx); err != nil {
		logger.Error("schema check failed", "error", err)
		os.Exit(1)
	}

	var frontier queue.Queue
	switch cfg.Queue.Type {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.Queue.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer client.Close()
		frontier = queue.NewRedisQueue(client, cfg.Queue.RedisKey)
	default:
		frontier = queue.NewInMemoryQueue()
	}
	defer frontier.Close()

	limiter := ratelimit.NewHostLimiter(cfg.Crawler.Delay)
	fetch := fetcher.New(limiter, fetcher.Options{
		Timeout: cfg.Crawler.FetchTimeout,
		Headers: cfg.Crawler.Headers(),
	}, logger)

	engine := crawler.New(crawler.Config{
		StartURL:      cfg.Crawler.StartURL,
		AllowedDomain: cfg.Crawler.AllowedDomain,
		Workers:       cfg.Crawler.ConcurrentLimit,
	}, fetch, parser.NewJumiaParser(logger), store, frontier, logger)

	if err := engine.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("crawl failed", "error", err)
		os.Exit(1)
	}
}
