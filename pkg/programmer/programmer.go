// Package programmer implements RouteProgrammer: the component that
// turns RouteDatabase updates and interface-liveness changes into calls
// against the platform FIB agent, with debounced full resyncs, a
// keepalive health check, and a dirty flag that forces a full resync
// after any failed partial update.
//
// Direct port of Fib.cpp's Fib class. The three independent timers
// (syncRoutes, syncFib, healthCheck), the backoff-guarded resync loop,
// and the decision tree in processRouteDB/updateRoutes all follow
// Fib.cpp method-for-method; see the doc comment on each method for its
// source counterpart.
package programmer

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/openr-go/fib-agent/pkg/api"
	"github.com/openr-go/fib-agent/pkg/fibclient"
	"github.com/openr-go/fib-agent/pkg/perf"
	"github.com/openr-go/fib-agent/pkg/pruner"
	"github.com/openr-go/fib-agent/pkg/routedb"
	"github.com/openr-go/fib-agent/pkg/rtimer"
)

// Config is RouteProgrammer's constructor-time configuration, per
// spec.md §6.
type Config struct {
	NodeName             string
	ClientID             int32
	Dryrun               bool
	EnableFibSync        bool
	EnableSegmentRouting bool
	EnableOrderedFib     bool
	ColdStartDuration    time.Duration
	HealthCheckInterval  time.Duration
	PlatformSyncInterval time.Duration
	BackoffInitial       time.Duration
	BackoffMax           time.Duration
	MaxConvergenceMs     int64
	PerfBufferSize       int
}

// RouteProgrammer owns the canonical RouteDatabase for this node and
// programs it into the platform FIB agent.
type RouteProgrammer struct {
	cfg    Config
	log    zerolog.Logger
	client fibclient.Client
	pruner *pruner.Pruner
	perf   *perf.Tracker

	installable api.RouteDatabase
	shadow      api.RouteDatabase

	dirty            bool
	latestAliveSince int64
	backoff          backoff.BackOff
	syncRoutesTimer  rtimer.Timer
	syncFibTimer     rtimer.Timer
	healthCheckTimer rtimer.Timer

	telemetryCh chan<- api.RouteDatabase
}

// SetTelemetryChannel arms a non-blocking fan-out of the installable
// RouteDatabase to ch after every RouteDatabase or InterfaceDatabase
// publication it processes, changed or not. A nil or
// never-read ch (the default) disables telemetry entirely; callers that
// want it must provide a channel with a consumer (pkg/telemetry) before
// Run starts receiving updates.
func (p *RouteProgrammer) SetTelemetryChannel(ch chan<- api.RouteDatabase) {
	p.telemetryCh = ch
}

func (p *RouteProgrammer) publishTelemetry() {
	if p.telemetryCh == nil {
		return
	}
	select {
	case p.telemetryCh <- p.installable:
	default:
	}
}

// New returns a RouteProgrammer with an empty RouteDatabase. Run must be
// called to start its timers and serve its channels.
func New(cfg Config, client fibclient.Client, log zerolog.Logger) *RouteProgrammer {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.BackoffInitial
	b.MaxInterval = cfg.BackoffMax
	b.MaxElapsedTime = 0

	return &RouteProgrammer{
		cfg:              cfg,
		log:              log.With().Str("component", "programmer").Logger(),
		client:           client,
		pruner:           pruner.New(),
		perf:             perf.New(cfg.PerfBufferSize, cfg.MaxConvergenceMs),
		installable:      api.NewRouteDatabase(cfg.NodeName),
		shadow:           api.NewRouteDatabase(cfg.NodeName),
		backoff:          b,
		syncRoutesTimer:  rtimer.New(),
		syncFibTimer:     rtimer.New(),
		healthCheckTimer: rtimer.New(),
	}
}

// Run drives RouteProgrammer's event loop until ctx is canceled:
// RouteDatabase publications, InterfaceDatabase publications, FIB
// requests, and the three timers, exactly as Fib::prepare wires its ZMQ
// sockets and ZmqTimeouts onto one event loop.
func (p *RouteProgrammer) Run(
	ctx context.Context,
	routeDBCh <-chan api.RouteDatabase,
	interfaceDBCh <-chan api.InterfaceDatabase,
	reqCh <-chan api.FibRequest,
) {
	p.syncRoutesTimer.Schedule(p.cfg.ColdStartDuration)
	if !p.cfg.Dryrun {
		p.healthCheckTimer.Schedule(p.cfg.HealthCheckInterval)
		if p.cfg.EnableFibSync {
			p.syncFibTimer.Schedule(p.cfg.PlatformSyncInterval)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case db := <-routeDBCh:
			p.processRouteDB(ctx, db)
		case db := <-interfaceDBCh:
			p.processInterfaceDB(ctx, db)
		case req := <-reqCh:
			p.processRequest(req)
		case <-p.syncRoutesTimer.C():
			p.onSyncRoutesTimerFired(ctx)
		case <-p.syncFibTimer.C():
			p.onSyncFibTimerFired(ctx)
		case <-p.healthCheckTimer.C():
			p.onHealthCheckTimerFired(ctx)
		}
	}
}

// processRouteDB handles a fresh RouteDatabase from the decision
// engine: per Fib::processRouteDb, partition do-not-install routes into
// the shadow set, diff against the previous installable set, replace
// routeDb_, and push the delta.
func (p *RouteProgrammer) processRouteDB(ctx context.Context, db api.RouteDatabase) {
	if db.PerfEvents != nil {
		db.PerfEvents.Add(p.cfg.NodeName, "FIB_ROUTE_DB_RECVD", nowMs())
	}

	partitioned := routedb.Partition(db)
	delta := routedb.ComputeDelta(p.installable, partitioned.Installable)

	p.installable = partitioned.Installable
	p.shadow = partitioned.Shadow

	p.updateRoutes(ctx, delta, db.PerfEvents)
	p.publishTelemetry()
}

// processInterfaceDB handles a fresh InterfaceDatabase from the link
// monitor, per Fib::processInterfaceDb: prune next hops routed out any
// newly-down interface and push the resulting delta.
func (p *RouteProgrammer) processInterfaceDB(ctx context.Context, db api.InterfaceDatabase) {
	if db.PerfEvents != nil {
		db.PerfEvents.Add(p.cfg.NodeName, "FIB_INTF_DB_RECEIVED", nowMs())
	}

	affected := p.pruner.Affected(db)
	delta, err := p.pruner.Apply(p.installable, affected)
	if err != nil {
		p.log.Error().Err(err).Msg("failed to prune routes against interface liveness")
		return
	}

	p.updateRoutes(ctx, delta, db.PerfEvents)
	p.publishTelemetry()
}

// processRequest answers a FibRequest, per Fib::processRequestMsg.
func (p *RouteProgrammer) processRequest(req api.FibRequest) {
	var resp api.FibResponse
	switch req.Cmd {
	case api.RouteDBGet:
		db := p.installable
		resp.RouteDB = &db
	case api.PerfDBGet:
		db := p.perf.Dump(p.cfg.NodeName)
		resp.PerfDB = &db
	case api.RouteDBUninstallableGet:
		db := p.shadow
		resp.RouteDB = &db
	default:
		p.log.Error().Int("cmd", int(req.Cmd)).Msg("unknown fib command received")
	}
	if req.Reply != nil {
		req.Reply <- resp
	}
}

// updateRoutes is the partial-update decision tree of spec.md §4.5,
// ported from Fib::updateRoutes: a dryrun early return before any RPC
// attempt (correcting Fib.cpp's unconditional "skipping route
// programming" log line, which fired regardless of dryrun), then skip
// if a full sync is already pending, else force a full resync if the
// database is dirty from a previous failure, else attempt the partial
// update and mark dirty + schedule a resync on failure.
func (p *RouteProgrammer) updateRoutes(ctx context.Context, delta api.RouteDelta, perfEvents *api.PerfTrace) {
	if p.cfg.Dryrun {
		p.log.Info().Msg("dryrun: skipping route programming")
		p.logPerfEvents(perfEvents)
		return
	}

	if delta.Empty() {
		return
	}

	if p.syncRoutesTimer.IsScheduled() {
		p.log.Info().Msg("pending full sync is scheduled, skipping delta sync for now")
		return
	}
	if p.dirty {
		p.log.Info().Msg("previous route programming failed, enforcing full fib sync")
		p.scheduleImmediateSync()
		return
	}

	if perfEvents != nil {
		perfEvents.Add(p.cfg.NodeName, "FIB_DEBOUNCE", nowMs())
	}

	if err := p.applyDelta(ctx, delta); err != nil {
		p.log.Error().Err(err).Msg("failed to program route delta to fib agent")
		p.dirty = true
		p.scheduleImmediateSync()
		return
	}

	p.dirty = false
	p.logPerfEvents(perfEvents)
}

func (p *RouteProgrammer) applyDelta(ctx context.Context, delta api.RouteDelta) error {
	if len(delta.UnicastToDelete) > 0 {
		if err := p.client.DeleteUnicastRoutes(ctx, p.cfg.ClientID, delta.UnicastToDelete); err != nil {
			return err
		}
	}
	if len(delta.UnicastToUpdate) > 0 {
		if err := p.client.AddUnicastRoutes(ctx, p.cfg.ClientID, delta.UnicastToUpdate); err != nil {
			return err
		}
	}
	if p.cfg.EnableSegmentRouting && len(delta.MplsToDelete) > 0 {
		if err := p.client.DeleteMplsRoutes(ctx, p.cfg.ClientID, delta.MplsToDelete); err != nil {
			return err
		}
	}
	if p.cfg.EnableSegmentRouting && len(delta.MplsToUpdate) > 0 {
		if err := p.client.AddMplsRoutes(ctx, p.cfg.ClientID, delta.MplsToUpdate); err != nil {
			return err
		}
	}
	return nil
}

// scheduleImmediateSync mirrors syncRouteDbDebounced: schedule a full
// sync right away, unless one is already pending.
func (p *RouteProgrammer) scheduleImmediateSync() {
	if !p.syncRoutesTimer.IsScheduled() {
		p.syncRoutesTimer.Schedule(0)
	}
}

func (p *RouteProgrammer) onSyncRoutesTimerFired(ctx context.Context) {
	if p.syncRouteDB(ctx) {
		p.backoff.Reset()
		return
	}
	p.syncRoutesTimer.Schedule(p.backoff.NextBackOff())
}

// syncRouteDB performs a full resync: computes best-next-hops for every
// route in the current RouteDatabase and calls SyncFib/SyncMplsFib, per
// Fib::syncRouteDb. In dryrun mode it logs the routes it would program
// and returns success without calling the client.
func (p *RouteProgrammer) syncRouteDB(ctx context.Context) bool {
	unicast, mpls := routedb.FullSync(p.installable)

	if p.cfg.Dryrun {
		p.log.Info().Int("unicast", len(unicast)).Int("mpls", len(mpls)).Msg("dryrun: skipping full fib sync")
		p.logPerfEvents(p.installable.PerfEvents)
		return true
	}

	if p.installable.PerfEvents != nil {
		p.installable.PerfEvents.Add(p.cfg.NodeName, "FIB_DEBOUNCE", nowMs())
	}

	if err := p.client.SyncFib(ctx, p.cfg.ClientID, unicast); err != nil {
		p.log.Error().Err(err).Msg("failed to sync routeDb with platform fib agent")
		p.dirty = true
		return false
	}
	if p.cfg.EnableSegmentRouting {
		if err := p.client.SyncMplsFib(ctx, p.cfg.ClientID, mpls); err != nil {
			p.log.Error().Err(err).Msg("failed to sync mpls routeDb with platform fib agent")
			p.dirty = true
			return false
		}
	}

	p.dirty = false
	p.logPerfEvents(p.installable.PerfEvents)
	p.log.Info().Msg("done syncing routeDb with fib agent")
	return true
}

func (p *RouteProgrammer) onSyncFibTimerFired(ctx context.Context) {
	if !p.syncRoutesTimer.IsScheduled() {
		p.syncRouteDB(ctx)
	}
	if p.cfg.EnableFibSync {
		p.syncFibTimer.Schedule(p.cfg.PlatformSyncInterval)
	}
}

func (p *RouteProgrammer) onHealthCheckTimerFired(ctx context.Context) {
	p.keepAliveCheck(ctx)
	if !p.cfg.Dryrun {
		p.healthCheckTimer.Schedule(p.cfg.HealthCheckInterval)
	}
}

// keepAliveCheck probes the platform agent's AliveSince and forces a
// full resync if it has changed, per Fib::keepAliveCheck (a restarted
// platform agent has an empty FIB, so any delta-only update since
// restart would be lost without a resync).
func (p *RouteProgrammer) keepAliveCheck(ctx context.Context) {
	aliveSince, err := p.client.AliveSince(ctx)
	if err != nil {
		p.log.Error().Err(err).Msg("failed to make keepalive call to fib agent")
		return
	}
	if aliveSince != p.latestAliveSince {
		p.log.Warn().Msg("fib agent seems to have restarted, performing full route db sync")
		p.dirty = true
		p.backoff.Reset()
		p.scheduleImmediateSync()
	}
	p.latestAliveSince = aliveSince
}

func (p *RouteProgrammer) logPerfEvents(trace *api.PerfTrace) {
	if trace == nil || len(trace.Events) == 0 {
		return
	}
	trace.Add(p.cfg.NodeName, "OPENR_FIB_ROUTES_PROGRAMMED", nowMs())
	if err := p.perf.Add(*trace); err != nil {
		p.log.Warn().Err(err).Msg("ignoring perf event trace")
		return
	}
	p.log.Info().Int64("duration_ms", trace.DurationMs()).Msg("route convergence performance")
}

func nowMs() int64 { return time.Now().UnixMilli() }
