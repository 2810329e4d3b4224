/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package natsutil connects to NATS JetStream, publishes presence CloudEvents
// and keeps the router session in a KV bucket.
package natsutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/carverauto/netpresence/pkg/logger"
	"github.com/carverauto/netpresence/pkg/models"
)

const (
	eventSource      = "netpresence/monitor"
	eventTypePrefix  = "com.carverauto.netpresence.device."
	subjectPrefix    = "events.presence."
	defaultSubject   = subjectPrefix + "*"
	cloudEventsSpec  = "1.0"
	jsonContentType  = "application/json"
	publisherName    = "nats"
	connectionPrefix = "netpresence"
)

// EventPublisher publishes presence transitions as CloudEvents to JetStream.
type EventPublisher struct {
	js     jetstream.JetStream
	stream string
	logger logger.Logger
}

// NewEventPublisher creates a publisher for a stream that already exists.
func NewEventPublisher(js jetstream.JetStream, streamName string, log logger.Logger) *EventPublisher {
	return &EventPublisher{
		js:     js,
		stream: streamName,
		logger: log,
	}
}

// Name identifies the publisher as a notification recipient.
func (*EventPublisher) Name() string {
	return publisherName
}

// Notify publishes event. It satisfies notify.Notifier.
func (p *EventPublisher) Notify(ctx context.Context, event *models.PresenceEvent) error {
	return p.PublishPresenceEvent(ctx, event)
}

// PublishPresenceEvent wraps event in a CloudEvent and publishes it on
// events.presence.<type>. The event ID doubles as the JetStream dedupe key.
func (p *EventPublisher) PublishPresenceEvent(ctx context.Context, event *models.PresenceEvent) error {
	ce := NewPresenceCloudEvent(event)

	payload, err := json.Marshal(ce)
	if err != nil {
		return fmt.Errorf("failed to marshal presence event: %w", err)
	}

	ack, err := p.js.Publish(ctx, ce.Subject, payload, jetstream.WithMsgID(ce.ID))
	if err != nil {
		return fmt.Errorf("failed to publish presence event: %w", err)
	}

	p.logger.Debug().
		Str("event_id", ce.ID).
		Str("subject", ce.Subject).
		Uint64("seq", ack.Sequence).
		Msg("Published presence event")

	return nil
}

// NewPresenceCloudEvent builds the CloudEvent envelope for event.
func NewPresenceCloudEvent(event *models.PresenceEvent) models.CloudEvent {
	ts := event.Timestamp

	id := uuid.New().String()
	if event.ID > 0 {
		id = fmt.Sprintf("%s-%d", event.ClientMAC, event.ID)
	}

	return models.CloudEvent{
		SpecVersion:     cloudEventsSpec,
		ID:              id,
		Source:          eventSource,
		Type:            eventTypePrefix + event.Type.Slug(),
		DataContentType: jsonContentType,
		Subject:         subjectPrefix + event.Type.Slug(),
		Time:            &ts,
		Data:            models.NewPresenceEventData(event),
	}
}

// Connect dials NATS using cfg, logging connection state changes.
func Connect(cfg *models.NATSConfig, log logger.Logger, extraOpts ...nats.Option) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name(connectionPrefix),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
		nats.ConnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("Connected to NATS")
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	if cfg.CredsFile != "" {
		opts = append(opts, nats.UserCredentials(cfg.CredsFile))
	}

	if cfg.TLS != nil {
		tlsConf, err := TLSConfig(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to build NATS TLS config: %w", err)
		}

		opts = append(opts, nats.Secure(tlsConf))
	}

	opts = append(opts, extraOpts...)

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return nc, nil
}

// NewJetStream returns a JetStream context, scoped to domain when set.
func NewJetStream(nc *nats.Conn, domain string) (jetstream.JetStream, error) {
	if domain == "" {
		js, err := jetstream.New(nc)
		if err != nil {
			return nil, fmt.Errorf("failed to create JetStream context: %w", err)
		}

		return js, nil
	}

	js, err := jetstream.NewWithDomain(nc, domain)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context with domain %s: %w", domain, err)
	}

	return js, nil
}

// CreateEventPublisher ensures the configured stream exists and covers the
// presence subjects, then returns a publisher for it.
func CreateEventPublisher(ctx context.Context, js jetstream.JetStream, cfg *models.NATSConfig, log logger.Logger) (*EventPublisher, error) {
	streamName := cfg.Stream
	if streamName == "" {
		streamName = models.DefaultStreamName
	}

	if err := ensureStream(ctx, js, streamName, cfg.Subjects, log); err != nil {
		return nil, err
	}

	return NewEventPublisher(js, streamName, log), nil
}

func ensureStream(ctx context.Context, js jetstream.JetStream, name string, subjects []string, log logger.Logger) error {
	stream, err := js.Stream(ctx, name)
	if err != nil {
		if !isStreamMissingErr(err) {
			return fmt.Errorf("failed to look up stream %s: %w", name, err)
		}

		if len(subjects) == 0 {
			subjects = []string{defaultSubject}
		}

		subjects = ensureSubjectList(append([]string(nil), subjects...), defaultSubject)

		if _, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
			Name:     name,
			Subjects: subjects,
		}); err != nil {
			return fmt.Errorf("failed to create stream %s: %w", name, err)
		}

		log.Info().Str("stream", name).Strs("subjects", subjects).Msg("Created NATS JetStream stream")

		return nil
	}

	info, err := stream.Info(ctx)
	if err != nil {
		return fmt.Errorf("failed to read stream %s: %w", name, err)
	}

	current := info.Config.Subjects
	updated := ensureSubjectList(append([]string(nil), current...), defaultSubject)

	if len(updated) == len(current) {
		return nil
	}

	cfg := info.Config
	cfg.Subjects = updated

	if _, err := js.UpdateStream(ctx, cfg); err != nil {
		return fmt.Errorf("failed to extend stream %s subjects: %w", name, err)
	}

	log.Info().Str("stream", name).Strs("subjects", updated).Msg("Extended NATS JetStream stream subjects")

	return nil
}

// ensureSubjectList appends subject unless an existing pattern already covers it.
func ensureSubjectList(subjects []string, subject string) []string {
	for _, pattern := range subjects {
		if matchesSubject(pattern, subject) {
			return subjects
		}
	}

	return append(subjects, subject)
}

// matchesSubject reports whether a NATS subject pattern covers subject. A
// literal "*" token in subject only matches "*" or ">" in the pattern.
func matchesSubject(pattern, subject string) bool {
	pTokens := strings.Split(pattern, ".")
	sTokens := strings.Split(subject, ".")

	for i, p := range pTokens {
		if p == ">" {
			return i < len(sTokens)
		}

		if i >= len(sTokens) {
			return false
		}

		if p != "*" && p != sTokens[i] {
			return false
		}
	}

	return len(pTokens) == len(sTokens)
}

func isStreamMissingErr(err error) bool {
	return errors.Is(err, jetstream.ErrStreamNotFound) ||
		errors.Is(err, jetstream.ErrNoStreamResponse) ||
		errors.Is(err, nats.ErrStreamNotFound) ||
		errors.Is(err, nats.ErrNoStreamResponse) ||
		errors.Is(err, nats.ErrNoResponders)
}
