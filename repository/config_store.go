package repository

import (
	"encoding/json"

	"github.com/gomodule/redigo/redis"
	"github.com/mtd-tools/arrivals-service/dlog"
	"github.com/mtd-tools/arrivals-service/model"
	"github.com/pkg/errors"
)

const (
	credentialKey  = "arrivals:credential"
	filtersKey     = "arrivals:filters"
	valueKeyPrefix = "arrivals:value:"
)

// Store persists the service's configuration (API credential and the
// ordered filter definitions) and the live exposed values. Filters are
// kept as a Redis list of JSON documents so their configured order
// survives a reload.
type Store struct {
	Logger *dlog.Logger
	Pool   *redis.Pool
}

func (s *Store) SaveCredential(apiKey string) error {
	s.Logger.Debug("SaveCredential")

	if apiKey == "" {
		return errors.New("credential must not be empty")
	}

	conn := s.Pool.Get()
	defer s.closeConn(conn)

	if _, err := conn.Do("SET", credentialKey, apiKey); err != nil {
		return errors.Wrap(err, "cannot store credential")
	}

	return nil
}

// LoadCredential returns the stored API key, or the empty string when
// none has been configured yet.
func (s *Store) LoadCredential() (string, error) {
	s.Logger.Debug("LoadCredential")

	conn := s.Pool.Get()
	defer s.closeConn(conn)

	apiKey, err := redis.String(conn.Do("GET", credentialKey))
	if err == redis.ErrNil {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(err, "cannot load credential")
	}

	return apiKey, nil
}

// SaveFilters replaces the persisted filter set wholesale, preserving the
// given order.
func (s *Store) SaveFilters(defs []model.FilterDefinition) error {
	s.Logger.Debugf("SaveFilters (%d definitions)", len(defs))

	conn := s.Pool.Get()
	defer s.closeConn(conn)

	if err := conn.Send("MULTI"); err != nil {
		return errors.Wrap(err, "cannot start filter transaction")
	}

	if err := conn.Send("DEL", filtersKey); err != nil {
		return errors.Wrap(err, "cannot clear filters")
	}

	for _, def := range defs {
		defJSON, err := json.Marshal(def)
		if err != nil {
			return errors.Wrap(err, "cannot marshal filter definition")
		}
		if err := conn.Send("RPUSH", filtersKey, defJSON); err != nil {
			return errors.Wrap(err, "cannot queue filter definition")
		}
	}

	if _, err := conn.Do("EXEC"); err != nil {
		return errors.Wrap(err, "cannot commit filters")
	}

	return nil
}

func (s *Store) LoadFilters() ([]model.FilterDefinition, error) {
	s.Logger.Debug("LoadFilters")

	conn := s.Pool.Get()
	defer s.closeConn(conn)

	items, err := redis.Strings(conn.Do("LRANGE", filtersKey, 0, -1))
	if err == redis.ErrNil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "cannot load filters")
	}

	defs := make([]model.FilterDefinition, 0, len(items))
	for _, item := range items {
		def := model.FilterDefinition{}
		if err := json.Unmarshal([]byte(item), &def); err != nil {
			return nil, errors.Wrap(err, "cannot unmarshal filter definition")
		}
		defs = append(defs, def)
	}

	return defs, nil
}

func (s *Store) closeConn(conn redis.Conn) {
	if err := conn.Close(); err != nil {
		s.Logger.Printf("failed to close Redis connection: %v", err)
	}
}
