package ops

import (
	"context"
	"strings"

	"github.com/yanun0323/logs"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"oms/internal/errors"
	"oms/internal/store"
	"oms/internal/venue"
	"oms/pkg/conn"
)

// BuildVenue creates the configured adapter and wraps it with the timeout and
// chaos decorators when they are enabled. The paper venue is returned as well
// so callers can drive simulated fills; it is nil for other kinds.
func BuildVenue(cfg VenueConfig) (venue.Venue, *venue.Paper, error) {
	var (
		v     venue.Venue
		paper *venue.Paper
	)
	switch strings.ToLower(cfg.Kind) {
	case VenueHTTP:
		h, err := venue.NewHTTP(cfg.HTTP)
		if err != nil {
			return nil, nil, err
		}
		v = h
	default:
		paper = venue.NewPaper(cfg.Paper)
		v = paper
	}

	if cfg.Timeout > 0 {
		v = venue.NewTimeout(v, cfg.Timeout)
	}
	if cfg.Chaos.Enabled() {
		c, err := venue.NewChaos(v, cfg.Chaos)
		if err != nil {
			return nil, nil, err
		}
		v = c
		logs.Warnf("ops: chaos enabled on venue, %+v", cfg.Chaos)
	}
	return v, paper, nil
}

// OpenStore creates the configured record store. The returned close func is never nil.
func OpenStore(ctx context.Context, cfg StoreConfig, logLevel string) (store.Store, func() error, error) {
	noop := func() error { return nil }
	if strings.ToLower(cfg.Kind) != StoreGorm {
		return store.NewMemory(), noop, nil
	}

	opt := cfg.Conn
	if opt.Config == nil {
		opt.Config = &gorm.Config{Logger: logger.Default.LogMode(GormLogLevel(logLevel))}
	}
	client, err := conn.New(opt)
	if err != nil {
		return nil, noop, errors.Wrap(err, "open store")
	}
	s, err := store.NewGorm(ctx, client.DB())
	if err != nil {
		_ = client.Close()
		return nil, noop, err
	}
	logs.Infof("ops: %s store ready", client.Driver())
	return s, client.Close, nil
}

// GormLogLevel maps the service log level onto gorm's logger.
func GormLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "debug", "trace":
		return logger.Info
	case "error", "fatal":
		return logger.Error
	case "silent", "off":
		return logger.Silent
	default:
		return logger.Warn
	}
}
