package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/openr-go/fib-agent/pkg/api"
)

func testLogger() zerolog.Logger { return zerolog.Nop() }

func doReq(t *testing.T, reqCh chan<- api.StoreRequest, req api.StoreRequest) api.StoreResponse {
	t.Helper()
	req.Reply = make(chan api.StoreResponse, 1)
	reqCh <- req
	select {
	case resp := <-req.Reply:
		return resp
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for store response")
		return api.StoreResponse{}
	}
}

func TestStore_StoreLoadErase(t *testing.T) {
	dir := t.TempDir()
	s := New(Config{StorageFilePath: filepath.Join(dir, "store.json")}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	reqCh := make(chan api.StoreRequest)
	go s.Run(ctx, reqCh)
	defer cancel()

	resp := doReq(t, reqCh, api.StoreRequest{Type: api.StoreOp, Key: "k1", Data: "v1"})
	if !resp.Success {
		t.Fatalf("expected store to succeed")
	}

	resp = doReq(t, reqCh, api.StoreRequest{Type: api.LoadOp, Key: "k1"})
	if !resp.Success || resp.Data != "v1" {
		t.Fatalf("expected loaded value v1, got %+v", resp)
	}

	resp = doReq(t, reqCh, api.StoreRequest{Type: api.EraseOp, Key: "k1"})
	if !resp.Success {
		t.Fatalf("expected erase to succeed")
	}

	resp = doReq(t, reqCh, api.StoreRequest{Type: api.LoadOp, Key: "k1"})
	if resp.Success {
		t.Fatalf("expected load to fail after erase, got %+v", resp)
	}
}

func TestStore_LoadMissingKeyFails(t *testing.T) {
	dir := t.TempDir()
	s := New(Config{StorageFilePath: filepath.Join(dir, "store.json")}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	reqCh := make(chan api.StoreRequest)
	go s.Run(ctx, reqCh)
	defer cancel()

	resp := doReq(t, reqCh, api.StoreRequest{Type: api.LoadOp, Key: "missing"})
	if resp.Success {
		t.Errorf("expected load of an unset key to fail")
	}
}

func TestStore_ZeroBackoffFlushesSynchronously(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.json")
	s := New(Config{StorageFilePath: path}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	reqCh := make(chan api.StoreRequest)
	go s.Run(ctx, reqCh)
	defer cancel()

	doReq(t, reqCh, api.StoreRequest{Type: api.StoreOp, Key: "k1", Data: "v1"})

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected synchronous flush to have written %s: %v", path, err)
	}
	var ff fileFormat
	if err := json.Unmarshal(raw, &ff); err != nil {
		t.Fatalf("failed to decode written file: %v", err)
	}
	if ff.KeyVals["k1"] != "v1" {
		t.Errorf("expected persisted k1=v1, got %+v", ff.KeyVals)
	}
}

func TestStore_LoadsExistingFileAtConstruction(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.json")
	raw, _ := json.Marshal(fileFormat{KeyVals: map[string]string{"existing": "yes"}})
	if err := os.WriteFile(path, raw, 0666); err != nil {
		t.Fatalf("setup: %v", err)
	}

	s := New(Config{StorageFilePath: path}, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	reqCh := make(chan api.StoreRequest)
	go s.Run(ctx, reqCh)
	defer cancel()

	resp := doReq(t, reqCh, api.StoreRequest{Type: api.LoadOp, Key: "existing"})
	if !resp.Success || resp.Data != "yes" {
		t.Fatalf("expected preloaded value 'yes', got %+v", resp)
	}
}

func TestStore_DryrunSkipsWritingToDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.json")
	s := New(Config{StorageFilePath: path, Dryrun: true}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	reqCh := make(chan api.StoreRequest)
	go s.Run(ctx, reqCh)
	defer cancel()

	doReq(t, reqCh, api.StoreRequest{Type: api.StoreOp, Key: "k1", Data: "v1"})

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("expected dryrun to skip writing to disk, but %s exists", path)
	}
	if s.WritesToDisk() != 1 {
		t.Errorf("expected write counter to still increment in dryrun mode, got %d", s.WritesToDisk())
	}
}

func TestStore_DebouncedBackoffFlushesEventually(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.json")
	s := New(Config{StorageFilePath: path, SaveInitialBackoff: 5 * time.Millisecond, SaveMaxBackoff: 20 * time.Millisecond}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	reqCh := make(chan api.StoreRequest)
	go s.Run(ctx, reqCh)
	defer cancel()

	doReq(t, reqCh, api.StoreRequest{Type: api.StoreOp, Key: "k1", Data: "v1"})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); err == nil {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected debounced flush to eventually write %s", path)
}
