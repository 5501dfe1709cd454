package appstore

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	log "github.com/sirupsen/logrus"
)

// currentAPI implements the v3 generation: records nested under "model", and
// a two-step upload where the file is stored first and then registered with
// the app store. If registration fails, the stored file is left orphaned;
// the platform garbage-collects unreferenced files.
type currentAPI struct {
	client
}

func (a *currentAPI) CurrentVersion(ctx context.Context, id string) (string, bool, error) {
	query := url.Values{}
	query.Set("collectionScope", string(a.scope))

	listing, err := a.get(ctx, a.baseURL+"/app/store/all?"+query.Encode())
	if err != nil {
		return "", false, err
	}

	return findVersion(listing, "model.id", "model.version", id)
}

func (a *currentAPI) Upload(ctx context.Context, path, id string, update bool) (string, error) {
	fileID, err := a.uploadFile(ctx, path)
	if err != nil {
		return "", err
	}

	return a.register(ctx, id, fileID, update)
}

func (a *currentAPI) uploadFile(ctx context.Context, path string) (string, error) {
	query := url.Values{}
	query.Set("virtualPath", "apps")
	query.Set("collectionScope", string(a.scope))

	req, err := a.multipartRequest(ctx, http.MethodPost, a.baseURL+"/files/file?"+query.Encode(), path)
	if err != nil {
		return "", err
	}

	record, err := a.do(req)
	if err != nil {
		return "", err
	}

	fileID := record.Get("fileId")
	if !fileID.Exists() {
		fileID = record.Get("id")
	}
	if !fileID.Exists() {
		return "", fmt.Errorf("%w: file upload response has no file id", ErrUnexpectedResponse)
	}

	log.Debugf("Stored package file %s (%d bytes)", fileID.String(), record.Get("size").Int())

	return fileID.String(), nil
}

func (a *currentAPI) register(ctx context.Context, id, fileID string, update bool) (string, error) {
	method := http.MethodPost
	if update {
		method = http.MethodPut
	}

	query := url.Values{}
	query.Set("appId", id)
	query.Set("collectionScope", string(a.scope))
	query.Set("fileId", fileID)

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+"/app/store?"+query.Encode(), nil)
	if err != nil {
		return "", err
	}

	record, err := a.do(req)
	if err != nil {
		return "", err
	}

	version := record.Get("model.version")
	if !version.Exists() {
		version = record.Get("version")
	}
	if !version.Exists() {
		return "", fmt.Errorf("%w: store registration response has no version field", ErrUnexpectedResponse)
	}

	return version.String(), nil
}
