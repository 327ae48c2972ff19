// Package store is the agent's small persistent key-value store: it
// durably remembers values (route-programming state, client IDs) across
// restarts, debouncing writes to disk behind an exponential backoff so
// a burst of stores collapses into one flush.
//
// Grounded on PersistentStore.cpp: load-or-start-empty at construction,
// serve store/load/erase requests from an in-memory map guarded by the
// owning goroutine, and schedule at most one pending disk flush at a
// time — a request arriving while a flush is already scheduled rides
// along on it instead of scheduling another. Disk writes are atomic
// (temp file + rename) and, per the source's own testing note ("this is
// primarily used for unit testing to save DB immediately"), a zero
// backoff config flushes synchronously before the store request's
// caller gets a reply.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/openr-go/fib-agent/pkg/api"
	"github.com/openr-go/fib-agent/pkg/rtimer"
)

// Config configures a Store; per spec.md §6, every field is set once at
// construction and never mutated afterward.
type Config struct {
	NodeName           string
	StorageFilePath    string
	SaveInitialBackoff time.Duration // 0 with SaveMaxBackoff 0 means synchronous flush
	SaveMaxBackoff     time.Duration
	Dryrun             bool
}

type fileFormat struct {
	KeyVals map[string]string `json:"keyVals"`
}

// Store serves StoreRequests from its own goroutine loop (Run); callers
// reach it only through the request channel, never its fields directly.
type Store struct {
	cfg      Config
	log      zerolog.Logger
	data     map[string]string
	writes   int
	useTimer bool
	backoff  backoff.BackOff
	timer    rtimer.Timer
}

// New loads the on-disk database (starting empty if the file is absent
// or unreadable, per loadDatabaseFromDisk's "log and continue") and
// returns a ready-to-run Store.
func New(cfg Config, log zerolog.Logger) *Store {
	s := &Store{
		cfg:      cfg,
		log:      log.With().Str("component", "store").Logger(),
		data:     make(map[string]string),
		useTimer: cfg.SaveInitialBackoff != 0 || cfg.SaveMaxBackoff != 0,
	}
	if s.useTimer {
		s.backoff = newBackoff(cfg.SaveInitialBackoff, cfg.SaveMaxBackoff)
		s.timer = rtimer.New()
	}
	if err := s.load(); err != nil {
		s.log.Error().Err(err).Str("path", cfg.StorageFilePath).Msg("failed to load config-database from file")
	}
	return s
}

func newBackoff(initial, max time.Duration) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = max
	b.MaxElapsedTime = 0 // never give up; callers drive retries via the timer
	return b
}

// Run serves req on reqCh until ctx is canceled, flushing any dirty
// state to disk before returning — the Go analogue of
// PersistentStore's destructor calling saveDatabaseToDisk one last
// time.
func (s *Store) Run(ctx context.Context, reqCh <-chan api.StoreRequest) {
	defer s.flush()

	var timerC <-chan time.Time
	if s.timer != nil {
		timerC = s.timer.C()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case req := <-reqCh:
			s.handle(req)
		case <-timerC:
			s.onTimerFired()
		}
	}
}

func (s *Store) handle(req api.StoreRequest) {
	resp := api.StoreResponse{Key: req.Key}

	switch req.Type {
	case api.StoreOp:
		s.data[req.Key] = req.Data
		resp.Success = true
	case api.LoadOp:
		data, ok := s.data[req.Key]
		resp.Success = ok
		resp.Data = data
	case api.EraseOp:
		_, ok := s.data[req.Key]
		delete(s.data, req.Key)
		resp.Success = ok
	default:
		s.log.Error().Int("type", int(req.Type)).Msg("got unknown store request")
		resp.Success = false
	}

	if resp.Success && req.Type != api.LoadOp {
		s.scheduleSave()
	}

	if req.Reply != nil {
		req.Reply <- resp
	}
}

// scheduleSave mirrors processRequestMsg's save-scheduling: with no
// backoff configured, flush synchronously so tests observe durable
// state immediately; otherwise arm the debounce timer only if it isn't
// already counting down.
func (s *Store) scheduleSave() {
	if !s.useTimer {
		s.flush()
		return
	}
	if !s.timer.IsScheduled() {
		s.timer.Schedule(s.backoff.NextBackOff())
	}
}

func (s *Store) onTimerFired() {
	if s.flush() {
		s.backoff.Reset()
		return
	}
	s.timer.Schedule(s.backoff.NextBackOff())
}

// flush writes the in-memory database to disk atomically, reporting
// success. In dryrun mode it skips the write entirely but still counts
// as successful, matching saveDatabaseToDisk's dryrun branch.
func (s *Store) flush() bool {
	if s.cfg.Dryrun {
		s.log.Debug().Msg("skipping writing to disk in dryrun mode")
		s.writes++
		return true
	}

	data, err := json.Marshal(fileFormat{KeyVals: s.data})
	if err != nil {
		s.log.Error().Err(err).Msg("failed to encode config-database")
		return false
	}

	dir := filepath.Dir(s.cfg.StorageFilePath)
	tmp, err := os.CreateTemp(dir, ".store-*.tmp")
	if err != nil {
		s.log.Error().Err(err).Str("path", s.cfg.StorageFilePath).Msg("failed to write data to file")
		return false
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		s.log.Error().Err(err).Str("path", s.cfg.StorageFilePath).Msg("failed to write data to file")
		return false
	}
	if err := tmp.Chmod(0666); err != nil {
		tmp.Close()
		s.log.Error().Err(err).Msg("failed to chmod temp store file")
		return false
	}
	if err := tmp.Close(); err != nil {
		s.log.Error().Err(err).Msg("failed to close temp store file")
		return false
	}
	if err := os.Rename(tmp.Name(), s.cfg.StorageFilePath); err != nil {
		s.log.Error().Err(err).Str("path", s.cfg.StorageFilePath).Msg("failed to write data to file")
		return false
	}

	s.writes++
	return true
}

func (s *Store) load() error {
	raw, err := os.ReadFile(s.cfg.StorageFilePath)
	if os.IsNotExist(err) {
		s.log.Info().Str("path", s.cfg.StorageFilePath).Msg("storage file doesn't exist, starting with empty database")
		return nil
	}
	if err != nil {
		return fmt.Errorf("store: read %s: %w", s.cfg.StorageFilePath, err)
	}

	var ff fileFormat
	if err := json.Unmarshal(raw, &ff); err != nil {
		return fmt.Errorf("store: decode %s: %w", s.cfg.StorageFilePath, err)
	}
	if ff.KeyVals != nil {
		s.data = ff.KeyVals
	}
	return nil
}

// WritesToDisk reports how many times the database has been flushed
// (or would have been, in dryrun mode), for tests and telemetry.
func (s *Store) WritesToDisk() int { return s.writes }
