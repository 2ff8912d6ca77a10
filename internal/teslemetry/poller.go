package teslemetry

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

// Topic names a polled data stream of an energy site.
type Topic string

// Polling topics.
const (
	TopicSiteInfo   Topic = "siteInfo"
	TopicLiveStatus Topic = "liveStatus"
)

// Event is delivered to topic handlers after each poll.
// Response is *SiteInfo or *LiveStatus, or nil when the API returned none.
type Event struct {
	Topic    Topic
	Response any
}

// FetchFunc retrieves the current payload of a topic.
type FetchFunc func(ctx context.Context) (any, error)

// ErrorFunc observes poll failures.
type ErrorFunc func(topic Topic, err error)

type handlerEntry struct {
	seq uint64
	fn  func(Event)
}

type topicState struct {
	refs   int
	cancel context.CancelFunc
}

// Poller runs one ticker per requested topic and fans results out to
// registered handlers.
//
// Polling is reference counted: the first RequestPolling call for a topic
// starts its ticker and the last stop function stops it. Fetch errors are
// logged and reported to the ErrorFunc; the next tick tries again.
//
// Thread Safety: all methods are safe for concurrent use.
type Poller struct {
	fetchers  map[Topic]FetchFunc
	intervals map[Topic]time.Duration
	timeout   time.Duration
	logger    Logger

	mu       sync.Mutex
	topics   map[Topic]*topicState
	handlers map[Topic][]handlerEntry
	seq      uint64
	onError  ErrorFunc
	closed   bool

	wg sync.WaitGroup
}

// NewPoller creates a poller for the given fetchers and intervals.
// A topic without an interval is polled every minute.
func NewPoller(fetchers map[Topic]FetchFunc, intervals map[Topic]time.Duration, logger Logger) *Poller {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Poller{
		fetchers:  fetchers,
		intervals: intervals,
		timeout:   defaultRequestTimeout,
		logger:    logger,
		topics:    make(map[Topic]*topicState),
		handlers:  make(map[Topic][]handlerEntry),
	}
}

// SetErrorHandler registers fn to observe poll failures.
func (p *Poller) SetErrorHandler(fn ErrorFunc) {
	p.mu.Lock()
	p.onError = fn
	p.mu.Unlock()
}

// RequestPolling starts polling topic if it is not already running and
// returns a function that releases this request. The release function is
// idempotent. Unknown topics are logged and yield a no-op release.
func (p *Poller) RequestPolling(topic Topic) func() {
	if _, ok := p.fetchers[topic]; !ok {
		p.logger.Warn("polling requested for unknown topic", "topic", topic)
		return func() {}
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return func() {}
	}
	state, ok := p.topics[topic]
	if !ok {
		state = &topicState{}
		p.topics[topic] = state
	}
	state.refs++
	if state.refs == 1 {
		ctx, cancel := context.WithCancel(context.Background())
		state.cancel = cancel
		p.wg.Go(func() { p.run(ctx, topic) })
		p.logger.Debug("polling started", "topic", topic)
	}
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { p.release(topic, state) })
	}
}

func (p *Poller) release(topic Topic, state *topicState) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.topics[topic] != state {
		return
	}
	state.refs--
	if state.refs > 0 {
		return
	}
	state.cancel()
	delete(p.topics, topic)
	p.logger.Debug("polling stopped", "topic", topic)
}

// On registers a handler for topic events and returns an idempotent
// unsubscribe function.
func (p *Poller) On(topic Topic, fn func(Event)) func() {
	p.mu.Lock()
	p.seq++
	seq := p.seq
	p.handlers[topic] = append(p.handlers[topic], handlerEntry{seq: seq, fn: fn})
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			p.handlers[topic] = slices.DeleteFunc(p.handlers[topic], func(h handlerEntry) bool {
				return h.seq == seq
			})
		})
	}
}

// Active reports whether topic is currently being polled.
func (p *Poller) Active(topic Topic) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.topics[topic]
	return ok
}

// Poll fetches topic once and delivers the result to handlers.
func (p *Poller) Poll(ctx context.Context, topic Topic) error {
	fetch, ok := p.fetchers[topic]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}

	resp, err := fetch(ctx)
	if err != nil {
		p.mu.Lock()
		onError := p.onError
		p.mu.Unlock()
		if onError != nil {
			onError(topic, err)
		}
		return fmt.Errorf("polling %s: %w", topic, err)
	}

	p.emit(Event{Topic: topic, Response: resp})
	return nil
}

// Close stops every ticker and waits for in-flight polls to finish.
func (p *Poller) Close() {
	p.mu.Lock()
	p.closed = true
	for topic, state := range p.topics {
		state.cancel()
		delete(p.topics, topic)
	}
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *Poller) run(ctx context.Context, topic Topic) {
	interval := p.intervals[topic]
	if interval <= 0 {
		interval = time.Minute
	}

	p.pollOnce(ctx, topic)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollOnce(ctx, topic)
		}
	}
}

func (p *Poller) pollOnce(ctx context.Context, topic Topic) {
	reqCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.Poll(reqCtx, topic); err != nil && ctx.Err() == nil {
		p.logger.Warn("poll failed", "topic", topic, "error", err)
	}
}

func (p *Poller) emit(ev Event) {
	p.mu.Lock()
	handlers := slices.Clone(p.handlers[ev.Topic])
	p.mu.Unlock()

	for _, h := range handlers {
		p.dispatch(h.fn, ev)
	}
}

// dispatch runs a handler, recovering panics so one bad handler cannot
// stop the ticker.
func (p *Poller) dispatch(fn func(Event), ev Event) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("panic in poll handler", "topic", ev.Topic, "panic", r)
		}
	}()
	fn(ev)
}
