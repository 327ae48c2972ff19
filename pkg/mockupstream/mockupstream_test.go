package mockupstream

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/openr-go/fib-agent/pkg/api"
)

func TestPublisher_PublishesRouteDatabaseThenInterfaceEvents(t *testing.T) {
	p := New("node1", 3, zerolog.Nop())
	routeDBCh := make(chan api.RouteDatabase, 1)
	interfaceDBCh := make(chan api.InterfaceDatabase, 2)
	p.Start(routeDBCh, interfaceDBCh)
	defer p.Stop()

	select {
	case db := <-routeDBCh:
		if len(db.UnicastRoutes) != 3 {
			t.Fatalf("expected 3 routes, got %d", len(db.UnicastRoutes))
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for initial route database")
	}

	select {
	case ifdb := <-interfaceDBCh:
		if ifdb.Interfaces["eth0"].IsUp {
			t.Fatalf("expected eth0 down event first")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for eth0 down event")
	}

	select {
	case ifdb := <-interfaceDBCh:
		if !ifdb.Interfaces["eth0"].IsUp {
			t.Fatalf("expected eth0 back up event second")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for eth0 up event")
	}
}

func TestPublisher_StopHaltsSequence(t *testing.T) {
	p := New("node1", 1, zerolog.Nop())
	routeDBCh := make(chan api.RouteDatabase)
	interfaceDBCh := make(chan api.InterfaceDatabase)
	p.Start(routeDBCh, interfaceDBCh)
	p.Stop()

	select {
	case <-routeDBCh:
		t.Fatal("expected no route database after Stop")
	case <-time.After(50 * time.Millisecond):
	}
}
