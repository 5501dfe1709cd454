package deployclient

import (
	"context"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/appstore/deploy/pkg/appstore"
	"github.com/appstore/deploy/pkg/oauth"
)

// Deployer runs the deployment workflow: authorize, resolve the currently
// deployed version, then upload unless a dry run was requested.
type Deployer struct {
	Authorize func(ctx context.Context, identityURL, clientID, clientSecret string, scope appstore.Scope, platform appstore.Platform) (*http.Client, error)
	NewAPI    func(platform appstore.Platform, httpClient *http.Client, baseURL string, scope appstore.Scope) (appstore.API, error)
}

func NewDeployer() *Deployer {
	return &Deployer{
		Authorize: oauth.Authorize,
		NewAPI:    appstore.New,
	}
}

func (d *Deployer) Run(ctx context.Context, cfg *Config) error {
	log.Infof("Deploying %s to %s (%s scope, platform %s)", cfg.AppID, cfg.APIURL, cfg.Scope(), cfg.Platform)

	client, err := d.Authorize(ctx, cfg.IdentityServerURL, cfg.ClientID, cfg.ClientSecret, cfg.Scope(), cfg.PlatformVariant())
	if err != nil {
		return ErrorWrap(ExitAuthenticationFailure, err)
	}
	log.Infof("Authenticated against %s", cfg.IdentityServerURL)

	api, err := d.NewAPI(cfg.PlatformVariant(), client, cfg.APIURL, cfg.Scope())
	if err != nil {
		return ErrorWrap(ExitInvocationFailure, err)
	}

	current, found, err := api.CurrentVersion(ctx, cfg.AppID)
	if err != nil {
		return apiError(err)
	}

	if found {
		log.Infof("Application %s exists at version %s.", cfg.AppID, current)
	} else {
		log.Infof("Application %s does not exist yet; this will be a first-time deployment.", cfg.AppID)
	}

	if cfg.DryRun {
		log.Infof("Dry run requested; not uploading anything.")
		return nil
	}

	version, err := api.Upload(ctx, cfg.File, cfg.AppID, found)
	if err != nil {
		// A non-2xx answer here is the platform refusing the package,
		// not a transport problem.
		if errors.Is(err, appstore.ErrRequestRejected) {
			return ErrorWrap(ExitUploadRejected, err)
		}
		return apiError(err)
	}

	if found {
		log.Infof("Successfully updated %s from version %s to %s.", cfg.AppID, current, version)
	} else {
		log.Infof("Successfully uploaded %s for the first time at version %s.", cfg.AppID, version)
	}

	return nil
}

func apiError(err error) error {
	switch {
	case errors.Is(err, appstore.ErrUnexpectedResponse):
		return ErrorWrap(ExitResponseError, err)
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorWrap(ExitTimeout, err)
	default:
		return ErrorWrap(ExitRequestFailure, err)
	}
}
