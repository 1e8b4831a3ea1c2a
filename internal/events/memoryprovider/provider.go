// Package memoryprovider is the bounded, non-persistent EventProvider
// implementation required by spec §4.1: a ring buffer per subject with
// msg-id dedup, used for tests and single-process deployments with no
// external broker.
package memoryprovider

import (
	"container/list"
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/arc-self/safeclaw-gateway/internal/errs"
	"github.com/arc-self/safeclaw-gateway/internal/events"
)

const defaultRingCapacity = 1000
const defaultDedupCapacity = 10_000

type storedEvent struct {
	event    events.Event
	sequence uint64
}

// Provider is an in-process EventProvider. It never crosses process
// boundaries and retains no state once the process exits.
type Provider struct {
	*events.Base

	mu           sync.RWMutex
	ringCapacity int
	bySubject    map[string][]storedEvent
	nextSeq      uint64

	dedup     map[string]uint64 // msgID -> sequence
	dedupLRU  *list.List
	dedupElem map[string]*list.Element
	dedupCap  int

	consumers map[string]*consumerState
}

type consumerState struct {
	mu      sync.Mutex
	subject string
	events  chan events.ReceivedEvent
	closed  bool
}

func New() *Provider {
	p := &Provider{
		ringCapacity: defaultRingCapacity,
		bySubject:    make(map[string][]storedEvent),
		dedup:        make(map[string]uint64),
		dedupLRU:     list.New(),
		dedupElem:    make(map[string]*list.Element),
		dedupCap:     defaultDedupCapacity,
		consumers:    make(map[string]*consumerState),
	}
	p.Base = &events.Base{Self: p}
	return p
}

func (p *Provider) Name() string { return "memory" }

func (p *Provider) Publish(ctx context.Context, event events.Event) (uint64, error) {
	return p.PublishWithOptions(ctx, event, events.PublishOptions{})
}

func (p *Provider) PublishWithOptions(_ context.Context, event events.Event, opts events.PublishOptions) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if opts.MsgID != nil {
		if seq, ok := p.dedup[*opts.MsgID]; ok {
			return seq, nil
		}
	}

	if opts.ExpectedSequence != nil {
		last := p.lastSequenceLocked(event.Subject)
		if last != *opts.ExpectedSequence {
			return 0, errs.New(errs.KindPublish, "expected sequence conflict")
		}
	}

	p.nextSeq++
	seq := p.nextSeq

	bucket := p.bySubject[event.Subject]
	bucket = append(bucket, storedEvent{event: event, sequence: seq})
	if len(bucket) > p.ringCapacity {
		bucket = bucket[len(bucket)-p.ringCapacity:]
	}
	p.bySubject[event.Subject] = bucket

	if opts.MsgID != nil {
		p.recordDedupLocked(*opts.MsgID, seq)
	}

	p.deliverLocked(event, seq)
	return seq, nil
}

func (p *Provider) lastSequenceLocked(subject string) uint64 {
	bucket := p.bySubject[subject]
	if len(bucket) == 0 {
		return 0
	}
	return bucket[len(bucket)-1].sequence
}

func (p *Provider) recordDedupLocked(msgID string, seq uint64) {
	if el, ok := p.dedupElem[msgID]; ok {
		p.dedupLRU.MoveToFront(el)
		p.dedup[msgID] = seq
		return
	}
	el := p.dedupLRU.PushFront(msgID)
	p.dedupElem[msgID] = el
	p.dedup[msgID] = seq
	if p.dedupLRU.Len() > p.dedupCap {
		oldest := p.dedupLRU.Back()
		if oldest != nil {
			id := oldest.Value.(string)
			p.dedupLRU.Remove(oldest)
			delete(p.dedupElem, id)
			delete(p.dedup, id)
		}
	}
}

func (p *Provider) deliverLocked(event events.Event, seq uint64) {
	for _, c := range p.consumers {
		if !subjectMatches(c.subject, event.Subject) {
			continue
		}
		re := events.ReceivedEvent{Event: event, Sequence: seq, NumDelivered: 1, Stream: event.Subject}
		select {
		case c.events <- re:
		default:
			// best-effort fan-out per subscriber buffer; slow subscribers drop.
		}
	}
}

// subjectMatches implements the dot-separated prefix-wildcard convention:
// a filter subject ending in ">" matches any subject sharing its prefix.
func subjectMatches(filter, subject string) bool {
	if filter == subject {
		return true
	}
	if strings.HasSuffix(filter, ".>") {
		prefix := strings.TrimSuffix(filter, ">")
		return strings.HasPrefix(subject, prefix)
	}
	return false
}

func (p *Provider) Subscribe(ctx context.Context, filterSubject string) (events.Subscription, error) {
	p.mu.Lock()
	p.nextSeq++ // borrow the sequence counter to keep ephemeral names unique
	name := "ephemeral-" + filterSubject + "-" + strconv.FormatUint(p.nextSeq, 10)
	p.mu.Unlock()
	opts := events.DefaultSubscribeOptions()
	opts.DeliverPolicy = events.DeliverPolicy{Type: events.DeliverNew}
	return p.SubscribeDurableWithOptions(ctx, name, filterSubject, opts)
}

func (p *Provider) SubscribeDurable(ctx context.Context, consumerName, filterSubject string) (events.Subscription, error) {
	return p.SubscribeDurableWithOptions(ctx, consumerName, filterSubject, events.DefaultSubscribeOptions())
}

func (p *Provider) SubscribeDurableWithOptions(_ context.Context, consumerName, filterSubject string, opts events.SubscribeOptions) (events.Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cs := &consumerState{subject: filterSubject, events: make(chan events.ReceivedEvent, 256)}
	p.consumers[consumerName] = cs

	var backlog []storedEvent
	switch opts.DeliverPolicy.Type {
	case events.DeliverAll:
		for subj, bucket := range p.bySubject {
			if subjectMatches(filterSubject, subj) {
				backlog = append(backlog, bucket...)
			}
		}
	case events.DeliverByStartSequence:
		for subj, bucket := range p.bySubject {
			if !subjectMatches(filterSubject, subj) {
				continue
			}
			for _, se := range bucket {
				if se.sequence >= opts.DeliverPolicy.Sequence {
					backlog = append(backlog, se)
				}
			}
		}
	case events.DeliverByStartTime:
		for subj, bucket := range p.bySubject {
			if !subjectMatches(filterSubject, subj) {
				continue
			}
			for _, se := range bucket {
				if se.event.Timestamp >= opts.DeliverPolicy.Timestamp {
					backlog = append(backlog, se)
				}
			}
		}
	case events.DeliverLast:
		var latest *storedEvent
		for subj, bucket := range p.bySubject {
			if subjectMatches(filterSubject, subj) && len(bucket) > 0 {
				last := bucket[len(bucket)-1]
				if latest == nil || last.sequence > latest.sequence {
					latest = &last
				}
			}
		}
		if latest != nil {
			backlog = append(backlog, *latest)
		}
	case events.DeliverLastPerSubject:
		for subj, bucket := range p.bySubject {
			if subjectMatches(filterSubject, subj) && len(bucket) > 0 {
				backlog = append(backlog, bucket[len(bucket)-1])
			}
		}
	case events.DeliverNew:
		// nothing backfilled — only future publishes are delivered.
	}

	for _, se := range backlog {
		re := events.ReceivedEvent{Event: se.event, Sequence: se.sequence, NumDelivered: 1, Stream: se.event.Subject}
		select {
		case cs.events <- re:
		default:
		}
	}

	return &subscription{provider: p, name: consumerName, state: cs}, nil
}

func (p *Provider) History(_ context.Context, filterSubject string, limit int) ([]events.Event, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []events.Event
	for subj, bucket := range p.bySubject {
		if !subjectMatches(filterSubject, subj) {
			continue
		}
		for _, se := range bucket {
			out = append(out, se.event)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (p *Provider) Unsubscribe(_ context.Context, consumerName string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	cs, ok := p.consumers[consumerName]
	if !ok {
		return errs.New(errs.KindNotFound, "unknown consumer")
	}
	delete(p.consumers, consumerName)
	cs.mu.Lock()
	if !cs.closed {
		cs.closed = true
		close(cs.events)
	}
	cs.mu.Unlock()
	return nil
}

func (p *Provider) Info(_ context.Context) (events.ProviderInfo, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var messages uint64
	for _, bucket := range p.bySubject {
		messages += uint64(len(bucket))
	}
	return events.ProviderInfo{
		Provider:  "memory",
		Messages:  messages,
		Consumers: uint64(len(p.consumers)),
	}, nil
}

type subscription struct {
	provider *Provider
	name     string
	state    *consumerState
}

func (s *subscription) Next(ctx context.Context) (events.ReceivedEvent, error) {
	select {
	case re, ok := <-s.state.events:
		if !ok {
			return events.ReceivedEvent{}, errs.New(errs.KindSubscribe, "subscription closed")
		}
		return re, nil
	case <-ctx.Done():
		return events.ReceivedEvent{}, errs.Wrap(errs.KindTimeout, "context cancelled", ctx.Err())
	}
}

func (s *subscription) NextManualAck(ctx context.Context) (events.PendingEvent, error) {
	re, err := s.Next(ctx)
	if err != nil {
		return events.PendingEvent{}, err
	}
	return events.PendingEvent{
		Received: re,
		Ack:      func(context.Context) error { return nil },
		Nak:      func(context.Context) error { return nil },
	}, nil
}

func (s *subscription) Close() error {
	return s.provider.Unsubscribe(context.Background(), s.name)
}
