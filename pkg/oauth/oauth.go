// Package oauth acquires platform API credentials through the OAuth2
// client-credentials grant.
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/lestrrat-go/jwx/v2/jwt"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/appstore/deploy/pkg/appstore"
)

var ErrAuthenticationFailed = errors.New("authentication against the identity server failed")

const (
	discoveryPath = "/.well-known/openid-configuration"

	// The legacy identity server predates discovery support and uses the
	// IdentityServer convention for its token endpoint.
	legacyTokenPath = "/connect/token"
)

// Authorize resolves the identity server's token endpoint, performs the
// client-credentials grant, and returns an HTTP client that attaches the
// bearer token to every request it makes.
func Authorize(ctx context.Context, identityURL, clientID, clientSecret string, scope appstore.Scope, platform appstore.Platform) (*http.Client, error) {
	tokenURL, err := tokenEndpoint(ctx, identityURL, platform)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrAuthenticationFailed, err)
	}

	log.Debugf("Requesting client-credentials token from %s", tokenURL)

	conf := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		Scopes:       []string{string(scope)},
		AuthStyle:    oauth2.AuthStyleInParams,
	}

	// Fetch the token eagerly so authentication failures surface here
	// instead of on the first API call.
	source := conf.TokenSource(ctx)
	token, err := source.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrAuthenticationFailed, err)
	}
	if len(token.AccessToken) == 0 {
		return nil, fmt.Errorf("%w: token response contains no access token", ErrAuthenticationFailed)
	}

	logTokenExpiry(token)

	return oauth2.NewClient(ctx, source), nil
}

func tokenEndpoint(ctx context.Context, identityURL string, platform appstore.Platform) (string, error) {
	base := strings.TrimRight(identityURL, "/")

	if platform == appstore.PlatformLegacy {
		return base + legacyTokenPath, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+discoveryPath, nil)
	if err != nil {
		return "", err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch discovery document: %s", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch discovery document: %s", resp.Status)
	}

	discovery := struct {
		TokenEndpoint string `json:"token_endpoint"`
	}{}
	if err := json.NewDecoder(resp.Body).Decode(&discovery); err != nil {
		return "", fmt.Errorf("decode discovery document: %s", err)
	}
	if len(discovery.TokenEndpoint) == 0 {
		return "", fmt.Errorf("discovery document has no token endpoint")
	}

	return discovery.TokenEndpoint, nil
}

// logTokenExpiry debug-logs the token lifetime when the access token happens
// to be a JWT. Opaque tokens are fine; a single run never outlives a token.
func logTokenExpiry(token *oauth2.Token) {
	parsed, err := jwt.ParseInsecure([]byte(token.AccessToken))
	if err != nil {
		log.Debug("Access token is opaque; expiry unknown")
		return
	}
	log.Debugf("Access token expires %s", parsed.Expiration())
}
