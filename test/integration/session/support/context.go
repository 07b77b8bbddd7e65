// Package support holds the godog step definitions for the session suite.
package support

import (
	"context"
	"fmt"
	"image/color"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/MeKo-Tech/camscan/internal/camera"
	"github.com/MeKo-Tech/camscan/internal/engine"
	"github.com/MeKo-Tech/camscan/internal/server"
	"github.com/MeKo-Tech/camscan/internal/session"
	"github.com/MeKo-Tech/camscan/internal/sink"
	"github.com/MeKo-Tech/camscan/internal/testutil"
)

// waitTimeout bounds every step that waits for the decode loop.
const waitTimeout = 5 * time.Second

// TestContext holds the state of one scenario.
type TestContext struct {
	Provider *testutil.FakeProvider
	Backend  *testutil.FakeBackend
	Preview  *sink.Preview
	Manager  *session.Manager

	// Last operation result
	LastStatus  session.Status
	LastError   error
	LastDefault camera.Device

	// HTTP state
	HTTPServer         *httptest.Server
	LastHTTPStatusCode int
	LastHTTPResponse   []byte

	mu     sync.Mutex
	scans  []string
	errors []string
}

// NewTestContext creates a context with two cameras and a decoder that
// finds nothing.
func NewTestContext() *TestContext {
	testCtx := &TestContext{
		Provider: testutil.NewFakeProvider(
			camera.NewDevice("1", "Front Camera"),
			camera.NewDevice("2", "Back Camera"),
		),
		Backend: testutil.NewFakeBackend(),
		Preview: sink.NewPreview(0, 80),
	}
	testCtx.Provider.SetFrame(testutil.CreateTestImage(16, 16, color.White), time.Millisecond)
	return testCtx
}

// manager builds the session manager on first use so Given steps can still
// reconfigure the fakes.
func (testCtx *TestContext) manager() *session.Manager {
	if testCtx.Manager != nil {
		return testCtx.Manager
	}
	cfg := engine.DefaultConfig()
	cfg.Interval = 0
	cfg.ReadRetry = time.Millisecond
	testCtx.Manager = session.NewManager(
		engine.New(testCtx.Provider, testCtx.Backend, cfg, nil),
		testCtx.Preview,
		session.Options{
			OnScan: func(text string) {
				testCtx.mu.Lock()
				defer testCtx.mu.Unlock()
				testCtx.scans = append(testCtx.scans, text)
			},
			OnError: func(reason string) {
				testCtx.mu.Lock()
				defer testCtx.mu.Unlock()
				testCtx.errors = append(testCtx.errors, reason)
			},
		},
	)
	return testCtx.Manager
}

// httpServer starts the HTTP API on the scenario's manager.
func (testCtx *TestContext) httpServer() *httptest.Server {
	if testCtx.HTTPServer == nil {
		srv := server.NewServer(testCtx.manager(), testCtx.Preview, nil, server.Config{CORSOrigin: "*", Version: "test"})
		testCtx.HTTPServer = httptest.NewServer(srv.Handler())
	}
	return testCtx.HTTPServer
}

// Scans returns the texts passed to the scan handler so far.
func (testCtx *TestContext) Scans() []string {
	testCtx.mu.Lock()
	defer testCtx.mu.Unlock()
	return append([]string(nil), testCtx.scans...)
}

// Errors returns the messages passed to the error handler so far.
func (testCtx *TestContext) Errors() []string {
	testCtx.mu.Lock()
	defer testCtx.mu.Unlock()
	return append([]string(nil), testCtx.errors...)
}

// eventually polls cond until it holds or waitTimeout passes.
func eventually(cond func() bool, format string, args ...any) error {
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return nil
		}
		time.Sleep(2 * time.Millisecond)
	}
	return fmt.Errorf(format, args...)
}

// Cleanup stops the HTTP server and closes the manager.
func (testCtx *TestContext) Cleanup(context.Context) error {
	if testCtx.HTTPServer != nil {
		testCtx.HTTPServer.Close()
		testCtx.HTTPServer = nil
	}
	if testCtx.Manager != nil {
		if err := testCtx.Manager.Close(); err != nil {
			return fmt.Errorf("failed to close session manager: %w", err)
		}
	}
	if open := testCtx.Provider.OpenCount(); open != 0 {
		return fmt.Errorf("%d camera streams leaked", open)
	}
	return nil
}
