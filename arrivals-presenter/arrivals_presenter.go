package main

import (
	"log"
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gomodule/redigo/redis"
	"github.com/mtd-tools/arrivals-service/config"
	"github.com/mtd-tools/arrivals-service/dlog"
	"github.com/mtd-tools/arrivals-service/identity"
	"github.com/mtd-tools/arrivals-service/model"
	"github.com/mtd-tools/arrivals-service/repository"
)

type Presenter struct {
	Logger *dlog.Logger
	Store  *repository.Store
}

type boardEntry struct {
	Slug         string              `json:"slug"`
	FriendlyName string              `json:"friendly_name"`
	Value        *model.ExposedValue `json:"value,omitempty"`
}

func main() {
	loggerOptions := []dlog.LoggerOption{
		dlog.LoggerSetOutput(os.Stderr),
		dlog.LoggerSetPrefix("arrivals-presenter: "),
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

	p := &Presenter{
		Logger: logger,
		Store:  &repository.Store{Logger: logger, Pool: pool},
	}

	router := p.newRouter()

	if err := router.Run(":" + strconv.Itoa(cfg.Presenter.Port)); err != nil {
		logger.Fatal(err)
	}
}

func (p *Presenter) newRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/arrivals", p.handleBoard)
	router.GET("/arrivals/:slug", p.handleArrival)

	return router
}

// handleBoard lists every configured filter with its last published
// value. Identities are re-derived from the persisted filter set, so the
// board always reflects the current configuration.
func (p *Presenter) handleBoard(c *gin.Context) {
	p.Logger.Debug("handleBoard")

	identities, err := p.loadIdentities()
	if err != nil {
		p.Logger.Printf("cannot load configuration: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cannot load configuration"})
		return
	}

	entries := make([]boardEntry, 0, len(identities))
	for _, id := range identities {
		value, err := p.Store.LoadValue(id.Slug)
		if err != nil {
			p.Logger.Printf("cannot load value for %s: %v", id.Slug, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "cannot load arrivals"})
			return
		}
		entries = append(entries, boardEntry{Slug: id.Slug, FriendlyName: id.FriendlyName, Value: value})
	}

	c.JSON(http.StatusOK, gin.H{"arrivals": entries})
}

func (p *Presenter) handleArrival(c *gin.Context) {
	slug := c.Param("slug")
	p.Logger.Debugf("handleArrival for `%s`", slug)

	identities, err := p.loadIdentities()
	if err != nil {
		p.Logger.Printf("cannot load configuration: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cannot load configuration"})
		return
	}

	for _, id := range identities {
		if id.Slug != slug {
			continue
		}

		value, err := p.Store.LoadValue(slug)
		if err != nil {
			p.Logger.Printf("cannot load value for %s: %v", slug, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "cannot load arrival"})
			return
		}

		if value == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no data published yet for this filter"})
			return
		}

		c.JSON(http.StatusOK, boardEntry{Slug: id.Slug, FriendlyName: id.FriendlyName, Value: value})
		return
	}

	c.JSON(http.StatusNotFound, gin.H{"error": "unknown arrival slug"})
}

func (p *Presenter) loadIdentities() ([]model.Identity, error) {
	defs, err := p.Store.LoadFilters()
	if err != nil {
		return nil, err
	}

	identities, err := identity.Resolve(defs)
	if err != nil {
		return nil, err
	}

	ordered := make([]model.Identity, 0, len(defs))
	for _, def := range defs {
		ordered = append(ordered, identities[def.Key()])
	}

	return ordered, nil
}
