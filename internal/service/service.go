package service

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"github.com/ANIKETSHETTY47/solar-inverter-monitor/internal/cloud"
	"github.com/ANIKETSHETTY47/solar-inverter-monitor/internal/config"
	"github.com/ANIKETSHETTY47/solar-inverter-monitor/internal/database"
	"github.com/ANIKETSHETTY47/solar-inverter-monitor/internal/notify"
	"github.com/ANIKETSHETTY47/solar-inverter-monitor/internal/repository"
)

const (
	LockNone     = "none"
	LockPostgres = "postgres"
	LockDynamoDB = "dynamodb"
)

// Services wires the checker to the transports and run lock chosen by Settings.
type Services struct {
	Checker  *Checker
	Notifier *notify.Notifier

	db   *sqlx.DB
	mqtt *notify.MQTTTransport
}

// New builds the service graph. Optional channels that fail to initialise are
// logged and left out; the checker then reports their alerts as skipped or
// runs without a cross-process lock.
func New(ctx context.Context, settings config.Settings, logger zerolog.Logger) (*Services, error) {
	s := &Services{}
	var opts []Option

	transports := s.transports(ctx, settings, logger)
	if len(transports) > 0 {
		n, err := notify.NewNotifier(settings.ToEmail, settings.FromEmail, transports,
			notify.WithRequestTimeout(settings.RequestTimeout),
			notify.WithLogger(logger.With().Str("component", "notify").Logger()),
		)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("notifier: %w", err)
		}
		s.Notifier = n
		opts = append(opts, WithAlerter(n))
	} else {
		logger.Warn().Msg("no notification channel configured; alerts will be skipped")
	}

	lock, err := s.runLock(ctx, settings)
	if err != nil {
		logger.Warn().Err(err).Str("backend", settings.LockBackend).Msg("run lock disabled")
	} else if lock != nil {
		opts = append(opts, WithRunLock(lock))
	}

	s.Checker = NewChecker(settings, logger, opts...)
	return s, nil
}

func (s *Services) transports(ctx context.Context, settings config.Settings, logger zerolog.Logger) []notify.Transport {
	var out []notify.Transport

	if settings.EmailConfigured() {
		t, err := notify.NewSendGridTransport(settings.SendGridAPIKey, settings.SendGridHost)
		if err != nil {
			logger.Warn().Err(err).Msg("sendgrid channel disabled")
		} else {
			out = append(out, t)
		}
	}
	if settings.SNSTopicArn != "" {
		t, err := cloud.NewSNSTransport(ctx, settings.AWSRegion, settings.SNSTopicArn)
		if err != nil {
			logger.Warn().Err(err).Msg("sns channel disabled")
		} else {
			out = append(out, t)
		}
	}
	if settings.MQTTBroker != "" {
		t, err := notify.NewMQTTTransport(settings.MQTTBroker, settings.MQTTAlertTopic)
		if err != nil {
			logger.Warn().Err(err).Str("broker", settings.MQTTBroker).Msg("mqtt channel disabled")
		} else {
			s.mqtt = t
			out = append(out, t)
		}
	}
	return out
}

func (s *Services) runLock(ctx context.Context, settings config.Settings) (RunLock, error) {
	switch settings.LockBackend {
	case "", LockNone:
		return nil, nil
	case LockPostgres:
		if settings.DBDSN == "" {
			return nil, fmt.Errorf("%s is required for the postgres lock", config.KeyDBDSN)
		}
		db, err := database.Connect(ctx, settings.DBDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		s.db = db
		return repository.New(db), nil
	case LockDynamoDB:
		return cloud.NewDynamoLock(ctx, settings.AWSRegion, settings.LockTable, settings.LockTTL)
	default:
		return nil, fmt.Errorf("unknown lock backend %q", settings.LockBackend)
	}
}

// Close releases broker and database connections.
func (s *Services) Close() {
	if s.mqtt != nil {
		s.mqtt.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
}
