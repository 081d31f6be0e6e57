package node

import (
	"context"
	"sync"
	"time"

	"github.com/blockmeshdb/coordinator/logger"
	"github.com/blockmeshdb/coordinator/meta"
)

// AddressLister supplies the current set of node addresses to poll.
type AddressLister interface {
	Addresses(ctx context.Context) ([]meta.Address, error)
}

// LostReporter is notified when a node stops responding, so it can be
// evicted from placement.
type LostReporter interface {
	Lost(addr meta.Address) int
}

// Prober does the actual liveness check against a single address.
type Prober interface {
	Poll(addr meta.Address) bool
}

// ProberFunc adapts a plain function to Prober.
type ProberFunc func(addr meta.Address) bool

func (f ProberFunc) Poll(addr meta.Address) bool { return f(addr) }

// Config configures a Poller. Any zero-valued field falls back to a
// no-op default so a Poller is safe to construct with a partial
// Config in tests.
type Config struct {
	Addresses AddressLister
	Reporter  LostReporter
	Prober    Prober
	Interval  time.Duration
	Logger    logger.Logger
}

// Poller periodically checks every known node's liveness and reports
// unreachable ones so the coordinator can reset their specs.
type Poller struct {
	mu sync.RWMutex

	addresses AddressLister
	reporter  LostReporter
	prober    Prober
	interval  time.Duration
	logger    logger.Logger

	stopping chan struct{}
}

// New returns a Poller. Missing config fields are filled with
// no-ops, matching the defaulting convention the rest of this
// codebase uses for its component constructors.
func New(cfg Config) *Poller {
	p := &Poller{
		addresses: cfg.Addresses,
		reporter:  cfg.Reporter,
		prober:    cfg.Prober,
		interval:  cfg.Interval,
		logger:    cfg.Logger,
		stopping:  make(chan struct{}),
	}
	if p.addresses == nil {
		p.addresses = nopAddressLister{}
	}
	if p.reporter == nil {
		p.reporter = nopLostReporter{}
	}
	if p.prober == nil {
		p.prober = ProberFunc(func(meta.Address) bool { return true })
	}
	if p.interval == 0 {
		p.interval = time.Second
	}
	if p.logger == nil {
		p.logger = logger.NopLogger
	}
	return p
}

// Run starts the polling loop; it blocks until Stop is called.
func (p *Poller) Run() {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopping:
			return
		case <-ticker.C:
		}
		p.pollAll()
	}
}

// Stop ends the polling loop.
func (p *Poller) Stop() {
	close(p.stopping)
}

func (p *Poller) pollAll() {
	ctx := context.Background()

	addrs, err := p.addresses.Addresses(ctx)
	if err != nil {
		p.logger.Warnf("poller: unable to list addresses: %v", err)
		return
	}

	for _, addr := range addrs {
		if p.prober.Poll(addr) {
			continue
		}
		p.logger.Infof("poller: %s unreachable, reporting lost", addr)
		n := p.reporter.Lost(addr)
		p.logger.Debugf("poller: reset %d specs assigned to %s", n, addr)
	}
}

type nopAddressLister struct{}

func (nopAddressLister) Addresses(context.Context) ([]meta.Address, error) { return nil, nil }

type nopLostReporter struct{}

func (nopLostReporter) Lost(meta.Address) int { return 0 }
