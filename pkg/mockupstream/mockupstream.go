// Package mockupstream stands in for the Decision and LinkMonitor
// processes this agent normally receives RouteDatabase and
// InterfaceDatabase publications from. It plays a scripted sequence of
// route and interface events onto the same channels RouteProgrammer.Run
// consumes, on the same step-then-check-stop idiom the teacher's
// installers/mock package uses.
package mockupstream

import (
	"net/netip"
	"time"

	"github.com/rs/zerolog"

	"github.com/openr-go/fib-agent/pkg/api"
)

// Publisher plays a scripted RouteDatabase/InterfaceDatabase sequence.
type Publisher struct {
	log        zerolog.Logger
	nodeName   string
	routeCount int
	stopCh     chan struct{}
}

// New returns a Publisher that will synthesize routeCount unicast
// routes for nodeName, each with the same two next hops on eth0 and
// eth1.
func New(nodeName string, routeCount int, log zerolog.Logger) *Publisher {
	return &Publisher{
		log:        log.With().Str("component", "mockupstream").Logger(),
		nodeName:   nodeName,
		routeCount: routeCount,
		stopCh:     make(chan struct{}),
	}
}

// Start begins the scripted sequence in its own goroutine: a full
// RouteDatabase with routeCount entries, an eth0-down event that
// invalidates every route's eth0 next hop, then an eth0-up event.
func (p *Publisher) Start(routeDBCh chan<- api.RouteDatabase, interfaceDBCh chan<- api.InterfaceDatabase) {
	go p.run(routeDBCh, interfaceDBCh)
}

// Stop ends the scripted sequence if it hasn't already finished.
func (p *Publisher) Stop() {
	close(p.stopCh)
}

func (p *Publisher) run(routeDBCh chan<- api.RouteDatabase, interfaceDBCh chan<- api.InterfaceDatabase) {
	p.log.Info().Msg("starting scripted route/interface sequence")

	if !p.sleep(2 * time.Second) {
		return
	}
	db := p.initialRouteDatabase()
	p.log.Info().Int("routes", len(db.UnicastRoutes)).Msg("publishing initial route database")
	select {
	case routeDBCh <- db:
	case <-p.stopCh:
		return
	}

	if !p.sleep(2 * time.Second) {
		return
	}
	ifaces := api.InterfaceDatabase{
		ThisNodeName: p.nodeName,
		Interfaces: map[string]api.InterfaceInfo{
			"eth0": {IfName: "eth0", IfIndex: 1, IsUp: false},
		},
	}
	p.log.Info().Msg("publishing eth0 down")
	select {
	case interfaceDBCh <- ifaces:
	case <-p.stopCh:
		return
	}

	if !p.sleep(2 * time.Second) {
		return
	}
	ifaces = api.InterfaceDatabase{
		ThisNodeName: p.nodeName,
		Interfaces: map[string]api.InterfaceInfo{
			"eth0": {IfName: "eth0", IfIndex: 1, IsUp: true},
		},
	}
	p.log.Info().Msg("publishing eth0 back up")
	select {
	case interfaceDBCh <- ifaces:
	case <-p.stopCh:
		return
	}

	p.log.Info().Msg("scripted sequence finished")
}

func (p *Publisher) sleep(d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-p.stopCh:
		return false
	}
}

// initialRouteDatabase synthesizes routeCount /24 prefixes, each
// reachable through two weighted next hops on eth0/eth1 so that the
// eth0-down event has a live alternate to fall back to.
func (p *Publisher) initialRouteDatabase() api.RouteDatabase {
	db := api.NewRouteDatabase(p.nodeName)

	idx0 := uint32(1)
	idx1 := uint32(2)
	for i := 0; i < p.routeCount; i++ {
		addr := netip.AddrFrom4([4]byte{10, 0, byte(i), 0})
		prefix := api.IpPrefix{Addr: addr, Length: 24}
		gw0 := netip.AddrFrom4([4]byte{192, 168, 1, 1})
		gw1 := netip.AddrFrom4([4]byte{192, 168, 2, 1})
		db.UnicastRoutes[prefix] = api.UnicastRoute{
			Dest: prefix,
			NextHops: []api.NextHop{
				{Family: api.FamilyV4, Gateway: gw0, IfIndex: &idx0, IfName: "eth0", Weight: 1},
				{Family: api.FamilyV4, Gateway: gw1, IfIndex: &idx1, IfName: "eth1", Weight: 1},
			},
			Type:  api.RouteTypeUnicast,
			Scope: api.RouteScopeUniverse,
		}
	}
	return db
}
