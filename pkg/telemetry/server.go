// Package telemetry exposes the agent's installable RouteDatabase over
// gNMI Subscribe, following the teacher's broadcast-loop/per-subscriber
// channel pattern: one goroutine fans incoming RouteDatabase snapshots
// out to every live subscriber, and each Subscribe RPC sends its own
// initial snapshot, then streams every later full snapshot, against paths under
// afts/ipv4-unicast and afts/mpls.
package telemetry

import (
	"fmt"
	"sync"
	"time"

	pb "github.com/openconfig/gnmi/proto/gnmi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/openr-go/fib-agent/pkg/api"
)

// GNMIServer implements the gNMI service over a stream of
// RouteDatabase snapshots.
type GNMIServer struct {
	pb.UnimplementedGNMIServer

	telemetryChan <-chan api.RouteDatabase

	mu           sync.RWMutex
	latest       api.RouteDatabase
	subscribers  map[int64]chan api.RouteDatabase
	subIDCounter int64
}

// New returns a GNMIServer that fans every RouteDatabase received on
// telemetryChan out to subscribers, starting its broadcast loop
// immediately.
func New(telemetryChan <-chan api.RouteDatabase) *GNMIServer {
	s := &GNMIServer{
		telemetryChan: telemetryChan,
		latest:        api.NewRouteDatabase(""),
		subscribers:   make(map[int64]chan api.RouteDatabase),
	}
	go s.broadcastLoop()
	return s
}

func (s *GNMIServer) broadcastLoop() {
	for db := range s.telemetryChan {
		s.mu.Lock()
		s.latest = db
		for _, subChan := range s.subscribers {
			// Non-blocking send to avoid slow consumers blocking everyone
			select {
			case subChan <- db:
			default:
				// Drop update if consumer is slow
			}
		}
		s.mu.Unlock()
	}
}

// Subscribe implements the gNMI Subscribe RPC: STREAM mode only, an
// initial snapshot of the current RouteDatabase, a SyncResponse, then
// every subsequent snapshot until the client disconnects.
func (s *GNMIServer) Subscribe(stream pb.GNMI_SubscribeServer) error {
	req, err := stream.Recv()
	if err != nil {
		return err
	}

	if req.GetSubscribe().GetMode() != pb.SubscriptionList_STREAM {
		return status.Errorf(codes.Unimplemented, "Only STREAM mode is supported")
	}

	// Register subscriber
	subChan := make(chan api.RouteDatabase, 8)
	s.mu.Lock()
	s.subIDCounter++
	id := s.subIDCounter
	s.subscribers[id] = subChan
	snapshot := s.latest
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		close(subChan)
		s.mu.Unlock()
	}()

	// Send initial snapshot
	for _, notif := range routeDatabaseToNotifications(snapshot) {
		if err := stream.Send(&pb.SubscribeResponse{
			Response: &pb.SubscribeResponse_Update{Update: notif},
		}); err != nil {
			return err
		}
	}

	// Send SyncResponse
	if err := stream.Send(&pb.SubscribeResponse{
		Response: &pb.SubscribeResponse_SyncResponse{SyncResponse: true},
	}); err != nil {
		return err
	}

	// Stream updates
	for {
		select {
		case db, ok := <-subChan:
			if !ok {
				return nil
			}
			for _, notif := range routeDatabaseToNotifications(db) {
				if err := stream.Send(&pb.SubscribeResponse{
					Response: &pb.SubscribeResponse_Update{Update: notif},
				}); err != nil {
					return err
				}
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}

// routeDatabaseToNotifications renders every unicast and MPLS route as
// one gNMI Update under afts/ipv4-unicast/ipv4-entry or afts/mpls, keyed
// by prefix or label, with a single state/next-hop-group leaf
// summarizing the current best next-hop set.
func routeDatabaseToNotifications(db api.RouteDatabase) []*pb.Notification {
	ts := time.Now().UnixNano()
	notifs := make([]*pb.Notification, 0, len(db.UnicastRoutes)+len(db.MplsRoutes))

	for prefix, route := range db.UnicastRoutes {
		path := &pb.Path{
			Elem: []*pb.PathElem{
				{Name: "afts"},
				{Name: "ipv4-unicast"},
				{Name: "ipv4-entry", Key: map[string]string{"prefix": prefix.String()}},
				{Name: "state"},
				{Name: "next-hop-group"},
			},
		}
		val := &pb.TypedValue{Value: &pb.TypedValue_StringVal{StringVal: nextHopGroupString(route.NextHops)}}
		notifs = append(notifs, &pb.Notification{
			Timestamp: ts,
			Update:    []*pb.Update{{Path: path, Val: val}},
		})
	}

	for label, route := range db.MplsRoutes {
		path := &pb.Path{
			Elem: []*pb.PathElem{
				{Name: "afts"},
				{Name: "mpls"},
				{Name: "label-entry", Key: map[string]string{"label": fmt.Sprintf("%d", label)}},
				{Name: "state"},
				{Name: "next-hop-group"},
			},
		}
		val := &pb.TypedValue{Value: &pb.TypedValue_StringVal{StringVal: nextHopGroupString(route.NextHops)}}
		notifs = append(notifs, &pb.Notification{
			Timestamp: ts,
			Update:    []*pb.Update{{Path: path, Val: val}},
		})
	}

	return notifs
}

func nextHopGroupString(nextHops []api.NextHop) string {
	s := ""
	for i, nh := range nextHops {
		if i > 0 {
			s += ","
		}
		s += nh.IfName
		if nh.HasGateway() {
			s += "@" + nh.Gateway.String()
		}
	}
	return s
}
