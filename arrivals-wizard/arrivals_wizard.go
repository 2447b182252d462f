package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/mtd-tools/arrivals-service/config"
	cumtd_client "github.com/mtd-tools/arrivals-service/cumtd-client"
	"github.com/mtd-tools/arrivals-service/dlog"
	"github.com/mtd-tools/arrivals-service/model"
	"github.com/mtd-tools/arrivals-service/repository"
	"github.com/mtd-tools/arrivals-service/wizard"
)

func main() {
	loggerOptions := []dlog.LoggerOption{
		dlog.LoggerSetOutput(os.Stderr),
		dlog.LoggerSetPrefix("arrivals-wizard: "),
		dlog.LoggerSetFlags(log.Ldate | log.Ltime),
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

	pool := repository.NewRedisPool([]repository.RedisPoolOption{
		repository.RedisPoolDial(func() (redis.Conn, error) {
			return redis.Dial("tcp", cfg.Redis.Host)
		}),
	}...)

	defer func() {
		logger.Debug("close Redis pool")
		if err := pool.Close(); err != nil {
			logger.Print("failed to close Redis pool")
		}
	}()

	store := &repository.Store{Logger: logger, Pool: pool}

	newClient := func(apiKey string) cumtd_client.CumtdClientInterface {
		return &cumtd_client.CumtdClient{
			Client: &http.Client{
				Timeout: time.Second * time.Duration(cfg.Upstream.TimeoutSeconds),
			},
			Logger:        logger,
			BaseURL:       cfg.Upstream.BaseURL,
			APIKey:        apiKey,
			MaxDepartures: cfg.Upstream.MaxDepartures,
		}
	}

	w := wizard.New(logger, store, newClient)
	ctx := context.Background()
	scanner := bufio.NewScanner(os.Stdin)

	for {
		apiKey := prompt(scanner, "CUMTD API key: ")
		if err := w.SubmitCredential(ctx, apiKey); err != nil {
			fmt.Printf("  %v\n", err)
			continue
		}
		break
	}

	for {
		if !addFilter(ctx, w, scanner) {
			continue
		}

		if !strings.EqualFold(prompt(scanner, "Add another stop? [y/N] "), "y") {
			break
		}
	}

	fmt.Println("Done. Start arrivals-poller to begin publishing.")
}

func addFilter(ctx context.Context, w *wizard.Wizard, scanner *bufio.Scanner) bool {
	var stops []model.Stop
	var err error

	for {
		query := prompt(scanner, "Search for a stop: ")
		stops, err = w.SearchStops(ctx, query)
		if err != nil {
			fmt.Printf("  %v\n", err)
			continue
		}
		break
	}

	if len(stops) > 20 {
		stops = stops[:20]
	}

	for i, stop := range stops {
		fmt.Printf("  %2d. %s (%s)\n", i+1, stop.StopName, stop.StopID)
	}

	var chosen model.Stop
	for {
		choice, err := strconv.Atoi(prompt(scanner, "Choose a stop: "))
		if err != nil || choice < 1 || choice > len(stops) {
			fmt.Println("  enter a number from the list")
			continue
		}
		chosen = stops[choice-1]
		break
	}

	if err := w.ChooseStop(chosen); err != nil {
		fmt.Printf("  %v\n", err)
		return false
	}

	if routes := w.RouteOptions(ctx); len(routes) > 0 {
		fmt.Printf("  Routes at this stop: %s\n", strings.Join(routes, ", "))
	}

	route := prompt(scanner, "Route filter (blank for all routes): ")

	direction := ""
	if route != "" {
		if directions := w.DirectionOptions(ctx); len(directions) > 0 {
			fmt.Printf("  Directions seen at this stop: %s\n", strings.Join(directions, ", "))
		}
		direction = prompt(scanner, "Direction filter (blank for all directions): ")
	}

	customName := prompt(scanner, "Custom name (blank for automatic): ")

	id, err := w.SubmitFilter(route, direction, customName)
	if err != nil {
		fmt.Printf("  %v\n", err)
		w.Abort()
		return false
	}

	fmt.Printf("Added %q (slug %s)\n", id.FriendlyName, id.Slug)
	return true
}

func prompt(scanner *bufio.Scanner, label string) string {
	fmt.Print(label)
	if !scanner.Scan() {
		fmt.Println()
		os.Exit(0)
	}
	return strings.TrimSpace(scanner.Text())
}
