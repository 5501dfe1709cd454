package appstore

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// legacyAPI implements the v2 generation: flat application records and a
// single-request upload.
type legacyAPI struct {
	client
}

func (a *legacyAPI) CurrentVersion(ctx context.Context, id string) (string, bool, error) {
	query := url.Values{}
	query.Set("scope", string(a.scope))

	listing, err := a.get(ctx, a.baseURL+"/apps?"+query.Encode())
	if err != nil {
		return "", false, err
	}

	return findVersion(listing, "id", "version", id)
}

func (a *legacyAPI) Upload(ctx context.Context, path, id string, update bool) (string, error) {
	action := "upload"
	if update {
		action = "update"
	}

	query := url.Values{}
	query.Set("appId", id)
	query.Set("scope", string(a.scope))

	req, err := a.multipartRequest(ctx, http.MethodPost, a.baseURL+"/apps/"+action+"?"+query.Encode(), path)
	if err != nil {
		return "", err
	}

	record, err := a.do(req)
	if err != nil {
		return "", err
	}

	version := record.Get("version")
	if !version.Exists() {
		return "", fmt.Errorf("%w: upload response has no version field", ErrUnexpectedResponse)
	}

	return version.String(), nil
}
