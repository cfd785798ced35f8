package eventbus

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/jonadableite/WhatLead-sub000/pkg/events"
)

// LogBus publishes domain events to the structured log. It is the default
// bus for single-node deployments; an external broker can replace it
// without touching the publishers.
type LogBus struct {
	log *logrus.Entry
}

func NewLogBus() *LogBus {
	return &LogBus{log: logrus.WithField("component", "eventbus")}
}

func (b *LogBus) Publish(ctx context.Context, ev events.Event) error {
	b.log.WithFields(logrus.Fields{
		"event":       ev.Name(),
		"occurred_at": ev.OccurredAt(),
		"payload":     ev,
	}).Info("[EVENT] published")
	return nil
}

func (b *LogBus) PublishMany(ctx context.Context, evs []events.Event) error {
	for _, ev := range evs {
		if err := b.Publish(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}
