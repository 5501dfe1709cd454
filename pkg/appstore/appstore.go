// Package appstore talks to the platform's application store API.
//
// The two supported platform generations expose different endpoint shapes and
// response field names. Each generation is implemented as its own API value so
// that version resolution and package upload always agree on endpoint
// selection.
package appstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

type Platform string

const (
	PlatformLegacy  Platform = "v2"
	PlatformCurrent Platform = "v3"
)

func ParsePlatform(s string) (Platform, error) {
	switch Platform(s) {
	case PlatformLegacy, PlatformCurrent:
		return Platform(s), nil
	default:
		return "", fmt.Errorf("unknown platform %q", s)
	}
}

// Scope determines which collection an app belongs to. A tenant scope is the
// tenant id itself; the global scope is the literal "global".
type Scope string

const ScopeGlobal Scope = "global"

func ScopeFor(tenantID string) Scope {
	if len(tenantID) > 0 {
		return Scope(tenantID)
	}
	return ScopeGlobal
}

var (
	ErrAPIRequestFailed   = errors.New("app store API request failed")
	ErrUnexpectedResponse = errors.New("unexpected app store API response")

	// ErrRequestRejected is the non-2xx subclass of ErrAPIRequestFailed,
	// e.g. the platform refusing an upload whose version is not greater
	// than the deployed one.
	ErrRequestRejected = fmt.Errorf("%w: rejected by the platform", ErrAPIRequestFailed)
)

// API is the per-generation app store contract.
type API interface {
	// CurrentVersion returns the deployed version of the application, if any.
	// A missing application is reported as found == false, not as an error.
	CurrentVersion(ctx context.Context, id string) (version string, found bool, err error)

	// Upload pushes the package file and returns the version the store
	// registered it under. The update flag must reflect whether
	// CurrentVersion found an existing deployment.
	Upload(ctx context.Context, path, id string, update bool) (version string, err error)
}

func New(platform Platform, httpClient *http.Client, baseURL string, scope Scope) (API, error) {
	c := client{
		http:          httpClient,
		baseURL:       strings.TrimRight(baseURL, "/"),
		scope:         scope,
		correlationID: uuid.New().String(),
	}

	switch platform {
	case PlatformLegacy:
		return &legacyAPI{client: c}, nil
	case PlatformCurrent:
		return &currentAPI{client: c}, nil
	default:
		return nil, fmt.Errorf("unknown platform %q", platform)
	}
}

type client struct {
	http          *http.Client
	baseURL       string
	scope         Scope
	correlationID string
}

// do issues the request and parses the response body as JSON. Every request
// carries the run's correlation id so platform-side logs can be matched to a
// single invocation.
func (c *client) do(req *http.Request) (gjson.Result, error) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Correlation-ID", c.correlationID)

	log.Debugf("%s %s", req.Method, req.URL)

	resp, err := c.http.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%w: %s", ErrAPIRequestFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%w: read response: %s", ErrAPIRequestFailed, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return gjson.Result{}, fmt.Errorf("%w: %s: %s", ErrRequestRejected, resp.Status, trimBody(body))
	}

	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("%w: not valid JSON", ErrUnexpectedResponse)
	}

	return gjson.ParseBytes(body), nil
}

func (c *client) get(ctx context.Context, url string) (gjson.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return gjson.Result{}, err
	}
	return c.do(req)
}

// findVersion scans a listing response for the record matching id, reading
// the identifier and version through generation-specific field paths.
func findVersion(listing gjson.Result, idPath, versionPath, id string) (string, bool, error) {
	if !listing.IsArray() {
		return "", false, fmt.Errorf("%w: expected an array of application records", ErrUnexpectedResponse)
	}

	var version string
	var found bool
	var err error

	listing.ForEach(func(_, record gjson.Result) bool {
		if record.Get(idPath).String() != id {
			return true
		}
		v := record.Get(versionPath)
		if !v.Exists() {
			err = fmt.Errorf("%w: record %q has no %q field", ErrUnexpectedResponse, id, versionPath)
			return false
		}
		version = v.String()
		found = true
		return false
	})

	return version, found, err
}

func trimBody(body []byte) string {
	const max = 512
	s := strings.TrimSpace(string(body))
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
