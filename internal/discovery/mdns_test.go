// ABOUTME: Tests for discovery manager lifecycle
package discovery

import (
	"testing"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/stretchr/testify/assert"
)

func TestManagerLifecycle(t *testing.T) {
	m := NewManager(Config{InstanceName: "test-engine", Port: 9300})
	assert.NotNil(t, m.Engines())

	// Stop before any advertise/browse must not panic or block.
	m.Stop()

	select {
	case <-m.ctx.Done():
	default:
		t.Fatal("context should be cancelled after Stop")
	}
}

func TestQueryTimeoutIsADuration(t *testing.T) {
	m := NewManager(Config{InstanceName: "test-engine", Port: 9300})
	defer m.Stop()

	entries := make(chan *mdns.ServiceEntry, 1)
	params := m.queryParams(entries)

	assert.Equal(t, ServiceType, params.Service)
	assert.Equal(t, "local", params.Domain)
	// A sub-millisecond timeout means the query returns before any
	// responder can answer.
	assert.GreaterOrEqual(t, params.Timeout, time.Second)
}
