package config

import (
	"errors"
	"time"
)

const (
	defaultQueueType      = "quorum"
	defaultPublishTimeout = 5 * time.Second
)

type QueueConfig struct {
	QueueUser      string        `mapstructure:"queue-user"`
	QueuePassword  string        `mapstructure:"queue-password"`
	Url            string        `mapstructure:"url"`
	QueueType      string        `mapstructure:"queue-type"`
	PublishTimeout time.Duration `mapstructure:"publish-timeout"`
}

func (cfg *QueueConfig) Validate() error {
	if cfg.Url == "" {
		return errors.New("queue url cannot be empty")
	}

	if cfg.QueueUser == "" {
		return errors.New("queue user cannot be empty")
	}

	if cfg.QueueType == "" {
		cfg.QueueType = defaultQueueType
	}

	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = defaultPublishTimeout
	}

	return nil
}
