// Package natsprovider is the durable, networked EventProvider backed by
// NATS JetStream, adapted from packages/go-core/natsclient: the same
// Connect/JetStream/StreamConfig/PullSubscribe/Ack-Nak shape, wired
// to the EventProvider capability interface instead of a bespoke outbox
// consumer.
package natsprovider

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/arc-self/safeclaw-gateway/internal/errs"
	"github.com/arc-self/safeclaw-gateway/internal/events"
)

const (
	// StreamEvents is the durable stream backing every gateway subject.
	StreamEvents = "SAFECLAW_EVENTS"
	// SubjectAll captures every gateway-routed event.
	SubjectAll = "events.>"
	// headerMsgID is NATS's native dedup header.
	headerMsgID = "Nats-Msg-Id"
	// headerExpectedLastSeq is NATS's native optimistic-concurrency header.
	headerExpectedLastSeq = "Nats-Expected-Last-Sequence"
)

// Provider is the JetStream-backed EventProvider.
type Provider struct {
	*events.Base

	conn *nats.Conn
	js   nats.JetStreamContext
	log  *zap.Logger
}

// New connects to NATS and idempotently provisions the gateway's stream,
// mirroring natsclient.NewClient + ProvisionStreams.
func New(url string, log *zap.Logger) (*Provider, error) {
	nc, err := nats.Connect(url, nats.RetryOnFailedConnect(true), nats.MaxReconnects(-1))
	if err != nil {
		return nil, errs.Wrap(errs.KindConnection, "failed to connect to NATS", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, errs.Wrap(errs.KindConnection, "failed to initialize JetStream", err)
	}

	p := &Provider{conn: nc, js: js, log: log}
	p.Base = &events.Base{Self: p}

	if err := p.provisionStream(); err != nil {
		nc.Close()
		return nil, err
	}

	log.Info("NATS JetStream connected", zap.String("url", url))
	return p, nil
}

func (p *Provider) provisionStream() error {
	_, err := p.js.StreamInfo(StreamEvents)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return errs.Wrap(errs.KindStream, "failed to query stream info", err)
	}

	cfg := &nats.StreamConfig{
		Name:      StreamEvents,
		Subjects:  []string{SubjectAll},
		Storage:   nats.FileStorage,
		Retention: nats.LimitsPolicy,
	}
	if _, err := p.js.AddStream(cfg); err != nil {
		return errs.Wrap(errs.KindStream, "failed to create stream", err)
	}
	p.log.Info("NATS stream provisioned", zap.String("stream", StreamEvents))
	return nil
}

// Close drains in-flight publishes/deliveries before closing the
// connection, exactly like natsclient.Client.Close.
func (p *Provider) Close() {
	if p.conn == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}

func (p *Provider) Name() string { return "nats" }

func (p *Provider) Publish(ctx context.Context, event events.Event) (uint64, error) {
	return p.PublishWithOptions(ctx, event, events.PublishOptions{})
}

func (p *Provider) PublishWithOptions(_ context.Context, event events.Event, opts events.PublishOptions) (uint64, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return 0, errs.Wrap(errs.KindPublish, "failed to marshal event", err)
	}

	msg := nats.NewMsg(event.Subject)
	msg.Data = data
	if opts.MsgID != nil {
		msg.Header.Set(headerMsgID, *opts.MsgID)
	}
	if opts.ExpectedSequence != nil {
		msg.Header.Set(headerExpectedLastSeq, strconv.FormatUint(*opts.ExpectedSequence, 10))
	}

	var pubOpts []nats.PubOpt
	if opts.TimeoutSecs != nil {
		pubOpts = append(pubOpts, nats.AckWait(secondsToDuration(*opts.TimeoutSecs)))
	}

	ack, err := p.js.PublishMsg(msg, pubOpts...)
	if err != nil {
		if opts.ExpectedSequence != nil {
			return 0, errs.Wrap(errs.KindPublish, "expected sequence conflict", err)
		}
		return 0, errs.Wrap(errs.KindPublish, "publish failed", err)
	}
	return ack.Sequence, nil
}

func (p *Provider) Subscribe(ctx context.Context, filterSubject string) (events.Subscription, error) {
	sub, err := p.js.SubscribeSync(filterSubject)
	if err != nil {
		return nil, errs.Wrap(errs.KindSubscribe, "ephemeral subscribe failed", err)
	}
	return &subscription{sub: sub, durable: false}, nil
}

func (p *Provider) SubscribeDurable(ctx context.Context, consumerName, filterSubject string) (events.Subscription, error) {
	return p.SubscribeDurableWithOptions(ctx, consumerName, filterSubject, events.DefaultSubscribeOptions())
}

func (p *Provider) SubscribeDurableWithOptions(_ context.Context, consumerName, filterSubject string, opts events.SubscribeOptions) (events.Subscription, error) {
	var subOpts []nats.SubOpt
	subOpts = append(subOpts, nats.Durable(consumerName), nats.BindStream(StreamEvents), nats.ManualAck())

	switch opts.DeliverPolicy.Type {
	case events.DeliverLast:
		subOpts = append(subOpts, nats.DeliverLast())
	case events.DeliverNew:
		subOpts = append(subOpts, nats.DeliverNew())
	case events.DeliverByStartSequence:
		subOpts = append(subOpts, nats.StartSequence(opts.DeliverPolicy.Sequence))
	case events.DeliverByStartTime:
		subOpts = append(subOpts, nats.StartTime(millisToTime(opts.DeliverPolicy.Timestamp)))
	case events.DeliverLastPerSubject:
		subOpts = append(subOpts, nats.DeliverLastPerSubject())
	default:
		subOpts = append(subOpts, nats.DeliverAll())
	}

	if opts.MaxDeliver != nil {
		subOpts = append(subOpts, nats.MaxDeliver(int(*opts.MaxDeliver)))
	}
	if opts.MaxAckPending != nil {
		subOpts = append(subOpts, nats.MaxAckPending(int(*opts.MaxAckPending)))
	}
	if opts.AckWaitSecs != nil {
		subOpts = append(subOpts, nats.AckWait(secondsToDuration(*opts.AckWaitSecs)))
	}
	if len(opts.BackoffSecs) > 0 {
		backoffs := make([]time.Duration, len(opts.BackoffSecs))
		for i, s := range opts.BackoffSecs {
			backoffs[i] = secondsToDuration(s)
		}
		subOpts = append(subOpts, nats.BackOff(backoffs))
	}

	sub, err := p.js.PullSubscribe(filterSubject, consumerName, subOpts...)
	if err != nil {
		return nil, errs.Wrap(errs.KindConsumer, "durable subscribe failed", err)
	}
	return &subscription{pull: sub, durable: true}, nil
}

func (p *Provider) History(_ context.Context, filterSubject string, limit int) ([]events.Event, error) {
	sub, err := p.js.PullSubscribe(filterSubject, "", nats.BindStream(StreamEvents), nats.DeliverAll(), nats.AckNone())
	if err != nil {
		return nil, errs.Wrap(errs.KindSubscribe, "history subscribe failed", err)
	}
	defer sub.Unsubscribe()

	if limit <= 0 {
		limit = 100
	}
	msgs, err := sub.Fetch(limit, nats.MaxWait(fetchTimeout))
	if err != nil && !errors.Is(err, nats.ErrTimeout) {
		return nil, errs.Wrap(errs.KindSubscribe, "history fetch failed", err)
	}

	out := make([]events.Event, 0, len(msgs))
	for _, m := range msgs {
		var e events.Event
		if err := json.Unmarshal(m.Data, &e); err == nil {
			out = append(out, e)
		}
	}
	return out, nil
}

func (p *Provider) Unsubscribe(_ context.Context, consumerName string) error {
	if err := p.js.DeleteConsumer(StreamEvents, consumerName); err != nil {
		return errs.Wrap(errs.KindConsumer, "failed to delete consumer", err)
	}
	return nil
}

func (p *Provider) Info(_ context.Context) (events.ProviderInfo, error) {
	info, err := p.js.StreamInfo(StreamEvents)
	if err != nil {
		return events.ProviderInfo{}, errs.Wrap(errs.KindStream, "failed to query stream info", err)
	}
	return events.ProviderInfo{
		Provider:  "nats",
		Messages:  info.State.Msgs,
		Bytes:     info.State.Bytes,
		Consumers: uint64(info.State.Consumers),
	}, nil
}

type subscription struct {
	sub     *nats.Subscription
	pull    *nats.Subscription
	durable bool
}

const fetchBatch = 1

func (s *subscription) Next(ctx context.Context) (events.ReceivedEvent, error) {
	pe, err := s.NextManualAck(ctx)
	if err != nil {
		return events.ReceivedEvent{}, err
	}
	if err := pe.Ack(ctx); err != nil {
		return events.ReceivedEvent{}, errs.Wrap(errs.KindAck, "auto-ack failed", err)
	}
	return pe.Received, nil
}

func (s *subscription) NextManualAck(ctx context.Context) (events.PendingEvent, error) {
	var msg *nats.Msg
	var err error

	if s.pull != nil {
		var msgs []*nats.Msg
		msgs, err = s.pull.Fetch(fetchBatch, nats.Context(ctx))
		if err == nil && len(msgs) > 0 {
			msg = msgs[0]
		}
	} else {
		msg, err = s.sub.NextMsgWithContext(ctx)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return events.PendingEvent{}, errs.Wrap(errs.KindTimeout, "subscription context done", err)
		}
		return events.PendingEvent{}, errs.Wrap(errs.KindSubscribe, "fetch failed", err)
	}

	var e events.Event
	if err := json.Unmarshal(msg.Data, &e); err != nil {
		return events.PendingEvent{}, errs.Wrap(errs.KindSerialization, "failed to unmarshal event", err)
	}

	meta, _ := msg.Metadata()
	var seq uint64
	var numDelivered uint64 = 1
	if meta != nil {
		seq = meta.Sequence.Stream
		numDelivered = meta.NumDelivered
	}

	re := events.ReceivedEvent{Event: e, Sequence: seq, NumDelivered: numDelivered, Stream: msg.Subject}
	return events.PendingEvent{
		Received: re,
		Ack:      func(context.Context) error { return msg.Ack() },
		Nak:      func(context.Context) error { return msg.Nak() },
	}, nil
}

func (s *subscription) Close() error {
	if s.pull != nil {
		return s.pull.Unsubscribe()
	}
	return s.sub.Unsubscribe()
}

func secondsToDuration(secs uint64) time.Duration {
	return time.Duration(secs) * time.Second
}

func millisToTime(ms uint64) time.Time {
	return time.UnixMilli(int64(ms))
}

const fetchTimeout = 2 * time.Second
