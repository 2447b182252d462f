package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/sns"
	"github.com/gomodule/redigo/redis"
	"github.com/mtd-tools/arrivals-service/cache"
	"github.com/mtd-tools/arrivals-service/config"
	cumtd_client "github.com/mtd-tools/arrivals-service/cumtd-client"
	"github.com/mtd-tools/arrivals-service/dlog"
	"github.com/mtd-tools/arrivals-service/identity"
	"github.com/mtd-tools/arrivals-service/model"
	"github.com/mtd-tools/arrivals-service/notifier"
	"github.com/mtd-tools/arrivals-service/repository"
	"github.com/mtd-tools/arrivals-service/scheduler"
)

func main() {
	loggerOptions := []dlog.LoggerOption{
		dlog.LoggerSetOutput(os.Stderr),
		dlog.LoggerSetPrefix("arrivals-poller: "),
		dlog.LoggerSetFlags(log.Ldate | log.Ltime | log.Lmicroseconds),
	}

	logger := dlog.NewLogger(loggerOptions...)

	logger.Debug("main")

	configPath, exists := os.LookupEnv("ARRIVALS_CONFIG")
	if !exists || configPath == "" {
		configPath = "config.yml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal(err)
	}

	interval, err := cfg.PollInterval()
	if err != nil {
		logger.Fatal(err)
	}

	pool := repository.NewRedisPool([]repository.RedisPoolOption{
		repository.RedisPoolDial(func() (redis.Conn, error) {
			return redis.Dial("tcp", cfg.Redis.Host)
		}),
		repository.RedisPoolMaxActive(cfg.Redis.MaxActive),
		repository.RedisPoolMaxIdle(cfg.Redis.MaxIdle),
	}...)

	defer func() {
		logger.Debug("close Redis pool")
		if err := pool.Close(); err != nil {
			logger.Print("failed to close Redis pool")
		}
	}()

	store := &repository.Store{Logger: logger, Pool: pool}

	apiKey, exists := os.LookupEnv("ARRIVALS_API_KEY")
	if !exists || apiKey == "" {
		apiKey, err = store.LoadCredential()
		if err != nil {
			logger.Fatal(err)
		}
	}

	if apiKey == "" {
		logger.Fatal("no API key configured; run arrivals-wizard first or set ARRIVALS_API_KEY")
	}

	defs, err := store.LoadFilters()
	if err != nil {
		logger.Fatal(err)
	}

	if len(defs) == 0 {
		logger.Fatal("no filters configured; run arrivals-wizard first")
	}

	identities, err := identity.Resolve(defs)
	if err != nil {
		logger.Fatal(err)
	}

	// Keep the configured order when driving the scheduler.
	ordered := make([]model.Identity, 0, len(defs))
	for _, def := range defs {
		ordered = append(ordered, identities[def.Key()])
	}

	client := &cumtd_client.CumtdClient{
		Client: &http.Client{
			Timeout: time.Second * time.Duration(cfg.Upstream.TimeoutSeconds),
		},
		Logger:        logger,
		BaseURL:       cfg.Upstream.BaseURL,
		APIKey:        apiKey,
		MaxDepartures: cfg.Upstream.MaxDepartures,
	}

	sinks := []scheduler.Sink{scheduler.SinkFunc(store.StoreValues)}

	if cfg.SNS.TopicARN != "" {
		sess := session.Must(session.NewSession(&aws.Config{Region: aws.String(cfg.SNS.Region)}))
		sinks = append(sinks, &notifier.SNSNotifier{
			Logger:      logger,
			SNSClient:   sns.New(sess),
			SNSTopicARN: aws.String(cfg.SNS.TopicARN),
		})
	}

	ps := &scheduler.PollScheduler{
		Logger:     logger,
		Cache:      cache.NewPredictionCache(logger, client),
		Interval:   interval,
		Identities: ordered,
		Sinks:      sinks,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := ps.Run(ctx); err != nil && err != context.Canceled {
		logger.Fatal(err)
	}

	logger.Print("shutting down")
}
