package visit

import (
	"container/list"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/cengoxius/ecommerce01/internal/page"
)

var (
	activeVisits = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "storefront_active_visits",
		Help: "Number of browser visits holding page state",
	})

	visitsEvictedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_visits_evicted_total",
		Help: "Visits dropped from the registry",
	}, []string{"reason"})
)

// defaultMaxPages bounds the product pages one visit keeps open.
const defaultMaxPages = 8

// Visit is one browser visit. Every product it opens gets its own page
// loop, so tabs showing different products never share page state.
type Visit struct {
	ID string

	mu       sync.Mutex
	pages    map[string]*list.Element
	order    *list.List // front is most recently used
	maxPages int
	factory  Factory

	lastSeen time.Time // guarded by Registry.mu
}

type openPage struct {
	productID string
	loop      *page.Loop
}

func newVisit(id string, factory Factory, maxPages int, now time.Time) *Visit {
	return &Visit{
		ID:       id,
		pages:    make(map[string]*list.Element),
		order:    list.New(),
		maxPages: maxPages,
		factory:  factory,
		lastSeen: now,
	}
}

// Page returns the loop of the product page for productID, opening it on
// first use. Past the page limit the least recently used idle page closes.
func (v *Visit) Page(productID string) *page.Loop {
	v.mu.Lock()
	defer v.mu.Unlock()

	if el, ok := v.pages[productID]; ok {
		v.order.MoveToFront(el)
		return el.Value.(*openPage).loop
	}

	for el := v.order.Back(); el != nil && v.order.Len() >= v.maxPages; {
		prev := el.Prev()
		if p := el.Value.(*openPage); !p.loop.Busy() {
			v.order.Remove(el)
			delete(v.pages, p.productID)
		}
		el = prev
	}

	l := v.factory()
	v.pages[productID] = v.order.PushFront(&openPage{productID: productID, loop: l})
	return l
}

// Pages returns the number of open product pages.
func (v *Visit) Pages() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.order.Len()
}

func (v *Visit) loops() []*page.Loop {
	v.mu.Lock()
	defer v.mu.Unlock()
	loops := make([]*page.Loop, 0, v.order.Len())
	for el := v.order.Front(); el != nil; el = el.Next() {
		loops = append(loops, el.Value.(*openPage).loop)
	}
	return loops
}

func (v *Visit) busy() bool {
	for _, l := range v.loops() {
		if l.Busy() {
			return true
		}
	}
	return false
}

// Factory creates the loop for a newly opened product page.
type Factory func() *page.Loop

// Config bounds the registry.
type Config struct {
	TTL       time.Duration
	MaxVisits int
	// MaxPages bounds the product pages kept per visit; 0 means 8.
	MaxPages int
}

// Registry keeps page state per browser visit. Visits idle for longer than
// the TTL are swept; when full, the least recently seen visit is dropped.
type Registry struct {
	mu       sync.Mutex
	visits   map[string]*list.Element
	order    *list.List // front is most recently seen
	factory  Factory
	ttl      time.Duration
	max      int
	maxPages int
	nowFunc  func() time.Time // injectable clock for testing
	logger   *slog.Logger
}

// NewRegistry creates an empty registry. Call Run to start sweeping.
func NewRegistry(cfg Config, factory Factory, logger *slog.Logger) *Registry {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = defaultMaxPages
	}
	return &Registry{
		visits:   make(map[string]*list.Element),
		order:    list.New(),
		factory:  factory,
		ttl:      cfg.TTL,
		max:      cfg.MaxVisits,
		maxPages: cfg.MaxPages,
		nowFunc:  time.Now,
		logger:   logger,
	}
}

// Acquire returns the visit for id, creating a fresh one (with a new id)
// when id is empty, malformed or unknown. created reports whether the
// caller must hand the new id back to the browser.
func (r *Registry) Acquire(id string) (v *Visit, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.nowFunc()
	if el, ok := r.visits[id]; ok {
		v = el.Value.(*Visit)
		v.lastSeen = now
		r.order.MoveToFront(el)
		return v, false
	}

	if r.max > 0 {
		for r.order.Len() >= r.max {
			r.evictLocked(r.order.Back(), "capacity")
		}
	}

	if _, err := uuid.Parse(id); err != nil || id == "" {
		id = uuid.NewString()
	}
	v = newVisit(id, r.factory, r.maxPages, now)
	r.visits[id] = r.order.PushFront(v)
	activeVisits.Inc()
	return v, true
}

// Len returns the number of live visits.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.order.Len()
}

// Sweep drops visits idle for longer than the TTL. A visit with a command
// still in flight on any of its pages is kept until the command lands.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.nowFunc()
	removed := 0
	for el := r.order.Back(); el != nil; {
		prev := el.Prev()
		v := el.Value.(*Visit)
		if now.Sub(v.lastSeen) <= r.ttl {
			// Everything in front was seen more recently.
			break
		}
		if !v.busy() {
			r.evictLocked(el, "idle")
			removed++
		}
		el = prev
	}
	return removed
}

// Run sweeps every TTL until ctx is done.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				r.logger.Debug("swept idle visits", slog.Int("count", n))
			}
		}
	}
}

// Drain waits for in-flight commands of every visit, bounded by ctx.
func (r *Registry) Drain(ctx context.Context) error {
	r.mu.Lock()
	visits := make([]*Visit, 0, r.order.Len())
	for el := r.order.Front(); el != nil; el = el.Next() {
		visits = append(visits, el.Value.(*Visit))
	}
	r.mu.Unlock()

	var loops []*page.Loop
	for _, v := range visits {
		loops = append(loops, v.loops()...)
	}

	for _, l := range loops {
		if err := l.Settle(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) evictLocked(el *list.Element, reason string) {
	v := el.Value.(*Visit)
	r.order.Remove(el)
	delete(r.visits, v.ID)
	activeVisits.Dec()
	visitsEvictedTotal.WithLabelValues(reason).Inc()
}
