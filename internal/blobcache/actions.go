package blobcache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

const (
	apiVersion  = "application/json;api-version=6.0-preview.1"
	cacheAPI    = "_apis/artifactcache"
	uploadChunk = 32 * 1024 * 1024 // 32MB
)

// actionsCacheEntry is the query response of the Actions cache service.
type actionsCacheEntry struct {
	Scope           string `json:"scope"`
	CacheKey        string `json:"cacheKey"`
	CacheVersion    string `json:"cacheVersion"`
	CreationTime    string `json:"creationTime"`
	ArchiveLocation string `json:"archiveLocation"`
}

// reserveRequest asks the service to allocate a cache id for an upload.
type reserveRequest struct {
	Key     string `json:"key"`
	Version string `json:"version"`
}

type reserveResponse struct {
	CacheID int64 `json:"cacheId"`
}

// commitRequest finalizes an upload.
type commitRequest struct {
	Size int64 `json:"size"`
}

// Actions is the blob cache hosted by the GitHub Actions runner. The
// service matches the primary key exactly, then each restore key as a
// prefix returning the newest entry, scoped by a version digest of the
// cached paths.
type Actions struct {
	fs      afero.Fs
	client  *http.Client
	baseURL string
	token   string
	log     zerolog.Logger
}

// NewActions builds a client from the runner-provided environment
// (ACTIONS_CACHE_URL and ACTIONS_RUNTIME_TOKEN). ErrNotConfigured is
// returned when either is absent, which is the signal to fall back to the
// disk backend.
func NewActions(fs afero.Fs, log zerolog.Logger) (*Actions, error) {
	baseURL := os.Getenv("ACTIONS_CACHE_URL")
	token := os.Getenv("ACTIONS_RUNTIME_TOKEN")
	if baseURL == "" || token == "" {
		return nil, ErrNotConfigured
	}

	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	return &Actions{
		fs:      fs,
		client:  &http.Client{Timeout: 10 * time.Minute},
		baseURL: baseURL,
		token:   token,
		log:     log,
	}, nil
}

// Restore queries the service with the primary key and fallbacks, and on a
// hit downloads and unpacks the archive in place.
func (a *Actions) Restore(ctx context.Context, entry Entry) (string, error) {
	keys := strings.Join(append([]string{entry.Key}, entry.RestoreKeys...), ",")
	query := url.Values{
		"keys":    {keys},
		"version": {version(entry.Paths)},
	}

	req, err := a.newRequest(ctx, http.MethodGet, "cache?"+query.Encode(), nil)
	if err != nil {
		return "", err
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("cache query failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// fall through to download
	case http.StatusNoContent, http.StatusNotFound:
		return "", nil
	default:
		return "", fmt.Errorf("cache query failed: %s", resp.Status)
	}

	var matched actionsCacheEntry
	if err := json.NewDecoder(resp.Body).Decode(&matched); err != nil {
		return "", fmt.Errorf("failed to decode cache entry: %w", err)
	}

	if err := a.download(ctx, matched.ArchiveLocation); err != nil {
		return "", err
	}

	return matched.CacheKey, nil
}

// Save reserves a cache id, uploads the archive in chunks and commits it.
func (a *Actions) Save(ctx context.Context, entry Entry) error {
	cacheID, err := a.reserve(ctx, entry)
	if err != nil {
		return err
	}

	archive, err := afero.TempFile(a.fs, "", "cargo-cache-*.tgz")
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	defer func() {
		archive.Close()
		_ = a.fs.Remove(archive.Name())
	}()

	if err := pack(a.fs, entry.Paths, archive); err != nil {
		return err
	}

	size, err := archive.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("failed to measure archive: %w", err)
	}
	if _, err := archive.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind archive: %w", err)
	}

	if err := a.upload(ctx, cacheID, archive, size); err != nil {
		return err
	}

	return a.commit(ctx, cacheID, size)
}

func (a *Actions) reserve(ctx context.Context, entry Entry) (int64, error) {
	body, err := json.Marshal(reserveRequest{
		Key:     entry.Key,
		Version: version(entry.Paths),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to encode reserve request: %w", err)
	}

	req, err := a.newRequest(ctx, http.MethodPost, "caches", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("cache reservation failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("cache reservation failed: %s", resp.Status)
	}

	var reserved reserveResponse
	if err := json.NewDecoder(resp.Body).Decode(&reserved); err != nil {
		return 0, fmt.Errorf("failed to decode reservation: %w", err)
	}
	if reserved.CacheID == 0 {
		return 0, fmt.Errorf("cache reservation returned no id")
	}

	return reserved.CacheID, nil
}

func (a *Actions) upload(ctx context.Context, cacheID int64, archive io.Reader, size int64) error {
	for offset := int64(0); offset < size; offset += uploadChunk {
		length := int64(uploadChunk)
		if offset+length > size {
			length = size - offset
		}

		req, err := a.newRequest(ctx, http.MethodPatch, fmt.Sprintf("caches/%d", cacheID),
			io.LimitReader(archive, length))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/octet-stream")
		req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/*", offset, offset+length-1))
		req.ContentLength = length

		resp, err := a.client.Do(req)
		if err != nil {
			return fmt.Errorf("cache upload failed: %w", err)
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("cache upload failed: %s", resp.Status)
		}

		a.log.Debug().
			Int64("cacheId", cacheID).
			Int64("offset", offset).
			Int64("length", length).
			Msg("Uploaded cache chunk")
	}

	return nil
}

func (a *Actions) commit(ctx context.Context, cacheID int64, size int64) error {
	body, err := json.Marshal(commitRequest{Size: size})
	if err != nil {
		return fmt.Errorf("failed to encode commit request: %w", err)
	}

	req, err := a.newRequest(ctx, http.MethodPost, fmt.Sprintf("caches/%d", cacheID), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("cache commit failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("cache commit failed: %s", resp.Status)
	}

	return nil
}

// download fetches the archive from its signed location and unpacks it.
// The location is pre-authorized, so no bearer token is attached.
func (a *Actions) download(ctx context.Context, location string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return fmt.Errorf("failed to build download request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("archive download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("archive download failed: %s", resp.Status)
	}

	return unpack(a.fs, resp.Body)
}

func (a *Actions) newRequest(ctx context.Context, method, resource string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+cacheAPI+"/"+resource, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", resource, err)
	}

	req.Header.Set("Authorization", "Bearer "+a.token)
	req.Header.Set("Accept", apiVersion)

	return req, nil
}

// version scopes cache entries to the path set, so a blob is only ever
// restored onto the layout it was saved from.
func version(paths []string) string {
	h := sha256.New()
	for _, path := range paths {
		h.Write([]byte(path))
		h.Write([]byte{'|'})
	}
	h.Write([]byte("gzip"))

	return hex.EncodeToString(h.Sum(nil))
}
