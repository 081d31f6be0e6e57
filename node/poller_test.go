package node_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockmeshdb/coordinator/meta"
	"github.com/blockmeshdb/coordinator/node"
)

type staticAddressLister struct {
	addrs []meta.Address
}

func (s staticAddressLister) Addresses(context.Context) ([]meta.Address, error) {
	return s.addrs, nil
}

type recordingReporter struct {
	mu   sync.Mutex
	lost []meta.Address
}

func (r *recordingReporter) Lost(addr meta.Address) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lost = append(r.lost, addr)
	return 1
}

func (r *recordingReporter) seen() []meta.Address {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]meta.Address, len(r.lost))
	copy(out, r.lost)
	return out
}

func TestPollerReportsUnreachableNodes(t *testing.T) {
	reporter := &recordingReporter{}
	prober := node.ProberFunc(func(addr meta.Address) bool {
		return addr != "dead:80"
	})

	p := node.New(node.Config{
		Addresses: staticAddressLister{addrs: []meta.Address{"alive:80", "dead:80"}},
		Reporter:  reporter,
		Prober:    prober,
		Interval:  5 * time.Millisecond,
	})

	go p.Run()
	defer p.Stop()

	require.Eventually(t, func() bool {
		return len(reporter.seen()) > 0
	}, time.Second, 5*time.Millisecond)

	assert.Contains(t, reporter.seen(), meta.Address("dead:80"))
	assert.NotContains(t, reporter.seen(), meta.Address("alive:80"))
}

func TestPollerDefaultsAreSafeToRun(t *testing.T) {
	p := node.New(node.Config{Interval: 5 * time.Millisecond})
	go p.Run()
	time.Sleep(20 * time.Millisecond)
	p.Stop()
}
