package grid

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	perceive "github.com/milosgajdos/go-perceive"
)

// DefaultRetryInterval is the pause between failed map requests.
const DefaultRetryInterval = 500 * time.Millisecond

// Source provides an occupancy map, e.g. a map server.
type Source interface {
	// Map requests the map
	Map(ctx context.Context) (*Map, error)
}

// SourceFunc is an adapter which allows to use ordinary functions as map sources.
type SourceFunc func(ctx context.Context) (*Map, error)

// Map calls f(ctx).
func (f SourceFunc) Map(ctx context.Context) (*Map, error) {
	return f(ctx)
}

// FileSource loads the map from a map_server style YAML file.
type FileSource string

// Map loads the map file.
func (f FileSource) Map(ctx context.Context) (*Map, error) {
	return Load(string(f))
}

// Fetch requests the map from src until it succeeds, pausing interval between attempts.
// It gives up only when ctx is done, in which case it returns ErrMapUnavailable.
func Fetch(ctx context.Context, src Source, interval time.Duration, log logrus.FieldLogger) (*Map, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	if interval <= 0 {
		interval = DefaultRetryInterval
	}

	log.Info("requesting the map")
	for {
		m, err := src.Map(ctx)
		if err == nil && m != nil {
			log.WithFields(logrus.Fields{
				"width":      m.Width(),
				"height":     m.Height(),
				"resolution": m.Resolution(),
				"free":       m.NumFree(),
			}).Info("map retrieved")
			return m, nil
		}

		log.WithError(err).Warn("request for map failed; trying again")

		select {
		case <-ctx.Done():
			return nil, errors.Wrap(perceive.ErrMapUnavailable, ctx.Err().Error())
		case <-time.After(interval):
		}
	}
}
