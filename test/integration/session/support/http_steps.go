package support

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/cucumber/godog"
)

func (testCtx *TestContext) theHTTPAPIIsRunning() error {
	testCtx.httpServer()
	return nil
}

func (testCtx *TestContext) iSendRequest(method, path string) error {
	return testCtx.iSendRequestWithBody(method, path, "")
}

func (testCtx *TestContext) iSendRequestWithBody(method, path, body string) error {
	srv := testCtx.httpServer()
	req, err := http.NewRequestWithContext(context.Background(), method, srv.URL+path, strings.NewReader(body))
	if err != nil {
		return err
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	testCtx.LastHTTPStatusCode = resp.StatusCode
	testCtx.LastHTTPResponse, err = io.ReadAll(resp.Body)
	return err
}

func (testCtx *TestContext) theResponseStatusShouldBe(code int) error {
	if testCtx.LastHTTPStatusCode != code {
		return fmt.Errorf("expected status %d, got %d: %s", code, testCtx.LastHTTPStatusCode, testCtx.LastHTTPResponse)
	}
	return nil
}

// lookup walks a dotted path such as "status.device.id" through a decoded
// JSON document.
func lookup(doc any, path string) (any, error) {
	cur := doc
	for _, key := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[key]
			if !ok {
				return nil, fmt.Errorf("field %q not found", path)
			}
			cur = v
		case []any:
			i, err := strconv.Atoi(key)
			if err != nil || i < 0 || i >= len(node) {
				return nil, fmt.Errorf("index %q out of range in %q", key, path)
			}
			cur = node[i]
		default:
			return nil, fmt.Errorf("cannot descend into %q", path)
		}
	}
	return cur, nil
}

func (testCtx *TestContext) theResponseFieldShouldBe(path, want string) error {
	var doc any
	if err := json.NewDecoder(bytes.NewReader(testCtx.LastHTTPResponse)).Decode(&doc); err != nil {
		return fmt.Errorf("response is not JSON: %w", err)
	}
	v, err := lookup(doc, path)
	if err != nil {
		return err
	}
	if got := fmt.Sprint(v); got != want {
		return fmt.Errorf("expected %s = %q, got %q", path, want, got)
	}
	return nil
}

// RegisterHTTPSteps registers the HTTP API steps.
func (testCtx *TestContext) RegisterHTTPSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the HTTP API is running$`, testCtx.theHTTPAPIIsRunning)
	sc.Step(`^I send (GET|POST|PUT|DELETE) "([^"]*)"$`, testCtx.iSendRequest)
	sc.Step(`^I send (GET|POST|PUT|DELETE) "([^"]*)" with body '([^']*)'$`, testCtx.iSendRequestWithBody)
	sc.Step(`^the response status should be (\d+)$`, testCtx.theResponseStatusShouldBe)
	sc.Step(`^the response field "([^"]*)" should be "([^"]*)"$`, testCtx.theResponseFieldShouldBe)
}
