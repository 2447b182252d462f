package repository

import (
	"encoding/json"

	"github.com/gomodule/redigo/redis"
	"github.com/mtd-tools/arrivals-service/model"
	"github.com/pkg/errors"
)

// StoreValues writes a tick's exposed values in one pipelined batch:
// every SET is queued, the connection flushed once, and the replies
// drained afterwards, so a tick costs a single round trip.
func (s *Store) StoreValues(values []model.ExposedValue) error {
	s.Logger.Debugf("StoreValues (%d values)", len(values))

	if len(values) == 0 {
		return nil
	}

	conn := s.Pool.Get()
	defer s.closeConn(conn)

	for _, value := range values {
		valueJSON, err := json.Marshal(value)
		if err != nil {
			return errors.Wrapf(err, "cannot marshal exposed value `%s`", value.Slug)
		}
		if err := conn.Send("SET", valueKeyPrefix+value.Slug, valueJSON); err != nil {
			return errors.Wrapf(err, "cannot queue exposed value `%s`", value.Slug)
		}
	}

	if err := conn.Flush(); err != nil {
		return errors.Wrap(err, "cannot flush exposed values")
	}

	for range values {
		if _, err := conn.Receive(); err != nil {
			return errors.Wrap(err, "error received storing exposed values")
		}
	}

	return nil
}

// LoadValue returns the last published value for a slug, or nil when the
// slug has never been published.
func (s *Store) LoadValue(slug string) (*model.ExposedValue, error) {
	s.Logger.Debugf("LoadValue for `%s`", slug)

	conn := s.Pool.Get()
	defer s.closeConn(conn)

	valueJSON, err := redis.Bytes(conn.Do("GET", valueKeyPrefix+slug))
	if err == redis.ErrNil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "cannot load exposed value `%s`", slug)
	}

	value := model.ExposedValue{}
	if err := json.Unmarshal(valueJSON, &value); err != nil {
		return nil, errors.Wrapf(err, "cannot unmarshal exposed value `%s`", slug)
	}

	return &value, nil
}
