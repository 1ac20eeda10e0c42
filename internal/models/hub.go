// Package models - hub.go provides a pure Go implementation of HuggingFace
// Hub model downloading.
//
// This module implements the core functionality of huggingface_hub's
// snapshot_download without requiring Python dependencies or external
// binaries. It directly interacts with the Hub's HTTP API to download
// checkpoint weights.
//
// Key features:
//   - Pure Go implementation (no Python required)
//   - Resumable downloads with progress tracking
//   - Parallel chunked downloads for large weight files
//   - SHA256 integrity validation for LFS files
//   - Completion markers so partial trees are never served
//
// Example usage:
//
//	client := models.NewHubClient()
//	modelPath, err := client.DownloadModel(ctx, "heartmula/heartmula-3b", "heartmula-3b", "main", "/data/models", progressFunc)
package models

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultEndpoint is the default HuggingFace Hub endpoint
	DefaultEndpoint = "https://huggingface.co"

	// DefaultUserAgent is the user agent string for HTTP requests
	DefaultUserAgent = "mula/1.0.0 (Go)"

	// ChunkSize for file downloads (8MB)
	ChunkSize = 8 * 1024 * 1024

	// ParallelDownloadThreshold - files larger than this use parallel
	// chunked download (500MB)
	ParallelDownloadThreshold = 500 * 1024 * 1024

	// ParallelDownloadPartSize - size of each part in parallel download (160MB)
	ParallelDownloadPartSize = 160 * 1024 * 1024

	// MaxParallelDownloads - maximum number of concurrent part downloads
	MaxParallelDownloads = 4
)

// HubClient handles HuggingFace Hub API interactions and weight downloads.
type HubClient struct {
	endpoint   string
	httpClient *http.Client
	userAgent  string
	token      string
}

// ProgressFunc is called periodically during download to report progress.
// Parameters: filename, bytesDownloaded, totalBytes
type ProgressFunc func(filename string, downloaded, total int64)

// NewHubClient creates a new Hub client with default settings.
//
// If the HF_TOKEN environment variable is set, it is sent as a Bearer token,
// which is required for gated repositories.
func NewHubClient() *HubClient {
	return NewHubClientWithEndpoint(DefaultEndpoint)
}

// NewHubClientWithEndpoint creates a Hub client against a custom endpoint,
// e.g. a mirror or an internal proxy.
func NewHubClientWithEndpoint(endpoint string) *HubClient {
	return &HubClient{
		endpoint:  strings.TrimSuffix(endpoint, "/"),
		userAgent: DefaultUserAgent,
		token:     os.Getenv("HF_TOKEN"),
		httpClient: &http.Client{
			Timeout: 0, // No timeout for large downloads
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// FileInfo represents a single file in a checkpoint repository.
type FileInfo struct {
	Path   string // File path relative to repository root
	Size   int64  // File size in bytes
	SHA256 string // SHA256 hash for LFS files, empty otherwise
}

// DownloadModel downloads a complete checkpoint from the Hub.
//
// This function:
//  1. Queries the Hub tree API for the repository file list
//  2. Creates the local directory structure: cacheDir/{modelID}/{revision}
//  3. Downloads all files (with resume support, parallel for large files)
//  4. Validates LFS file integrity against the advertised SHA256
//  5. Writes a completion marker and returns the local checkpoint path
//
// A checkpoint directory carrying the completion marker is returned
// immediately without touching the network, so repeated pulls are cheap.
//
// Parameters:
//   - ctx: Context for cancellation
//   - sourceID: Hub repository id (e.g., "heartmula/heartmula-3b")
//   - modelID: Internal checkpoint identifier for the directory structure
//   - revision: Upstream revision (branch, tag or commit; empty means "main")
//   - cacheDir: Base directory for storing checkpoints
//   - progress: Optional callback for progress updates
//
// Returns:
//   - Local path to the downloaded checkpoint
//   - Error if download fails
func (c *HubClient) DownloadModel(
	ctx context.Context,
	sourceID string,
	modelID string,
	revision string,
	cacheDir string,
	progress ProgressFunc,
) (string, error) {
	if revision == "" {
		revision = DefaultRevision
	}

	// Directory structure: cacheDir/{modelID}/{revision}
	// Example: ~/.mula/data/models/heartmula-3b/main
	modelDir := LocalModelDir(cacheDir, modelID, revision)

	// Fast path: a completed download is never repeated.
	if hasMarker(modelDir) {
		return modelDir, nil
	}

	if err := os.MkdirAll(modelDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create model directory: %w", err)
	}

	// Acquire download lock to prevent concurrent downloads of the same
	// checkpoint, which would corrupt the shared temp files.
	lockPath := filepath.Join(modelDir, lockFileName)
	if err := c.acquireLock(lockPath); err != nil {
		return "", fmt.Errorf("failed to acquire download lock: %w", err)
	}
	defer c.releaseLock(lockPath)

	// Get the repository file list from the tree API
	files, err := c.listFiles(ctx, sourceID, revision)
	if err != nil {
		return "", fmt.Errorf("failed to get model files: %w", err)
	}

	for _, file := range files {
		// Check context before each file
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		localPath := filepath.Join(modelDir, filepath.FromSlash(file.Path))

		if err := c.downloadFile(ctx, file, localPath, sourceID, revision, progress); err != nil {
			// Don't report error if context was cancelled
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", fmt.Errorf("failed to download %s: %w", file.Path, err)
		}

		// Validate file integrity when the Hub advertised a SHA256
		// (LFS-tracked weight files).
		if file.SHA256 != "" {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			default:
			}

			// Validation reads the whole file, which takes a while for
			// multi-GB weights, so tell the user what is happening.
			if progress != nil {
				progress(fmt.Sprintf("Verifying %s", file.Path), 0, 0)
			}

			if err := c.validateFileIntegrity(localPath, file.SHA256); err != nil {
				if ctx.Err() != nil {
					return "", ctx.Err()
				}
				return "", fmt.Errorf("integrity check failed for %s: %w", file.Path, err)
			}

			if progress != nil {
				progress(fmt.Sprintf("✓ Verified %s", file.Path), 0, 0)
			}
		}
	}

	// The marker is what IsModelDownloaded checks; without it the
	// directory is treated as a partial download.
	if err := writeMarker(modelDir, sourceID, revision); err != nil {
		return "", fmt.Errorf("failed to write completion marker: %w", err)
	}

	return modelDir, nil
}

// acquireLock creates a lock file to prevent concurrent downloads of the
// same checkpoint.
//
// The lock file contains the process ID and timestamp for debugging. If a
// lock file already exists, this function returns an error.
func (c *HubClient) acquireLock(lockPath string) error {
	if _, err := os.Stat(lockPath); err == nil {
		// Lock file exists, read it to provide a helpful error message
		data, _ := os.ReadFile(lockPath)
		return fmt.Errorf("model download already in progress (lock: %s). If this is stale, remove the lock file manually: %s",
			string(data), lockPath)
	}

	lockInfo := fmt.Sprintf("pid=%d,time=%s", os.Getpid(), time.Now().Format(time.RFC3339))
	if err := os.WriteFile(lockPath, []byte(lockInfo), 0644); err != nil {
		return fmt.Errorf("failed to create lock file: %w", err)
	}

	return nil
}

// releaseLock removes the lock file to allow future downloads.
//
// Safe to call even if the lock file doesn't exist.
func (c *HubClient) releaseLock(lockPath string) {
	// Ignore errors - lock file might not exist if download was cancelled early
	os.Remove(lockPath)
}

// listFiles queries the Hub tree API for the list of files in a repository.
//
// The tree endpoint paginates large repositories via RFC 5988 Link headers;
// all pages are followed. Directories are filtered out.
func (c *HubClient) listFiles(ctx context.Context, sourceID, revision string) ([]FileInfo, error) {
	var files []FileInfo

	pageURL := fmt.Sprintf("%s/api/models/%s/tree/%s?recursive=true",
		c.endpoint, sourceID, url.PathEscape(revision))

	for pageURL != "" {
		req, err := http.NewRequestWithContext(ctx, "GET", pageURL, nil)
		if err != nil {
			return nil, err
		}
		c.setRequestHeaders(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}

		switch resp.StatusCode {
		case http.StatusOK:
			// Fall through to decoding below.
		case http.StatusNotFound:
			resp.Body.Close()
			return nil, fmt.Errorf("model %s (revision %s) not found on the Hub", sourceID, revision)
		case http.StatusUnauthorized, http.StatusForbidden:
			resp.Body.Close()
			return nil, fmt.Errorf("access to model %s denied (gated repositories require HF_TOKEN)", sourceID)
		default:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return nil, fmt.Errorf("Hub API returned status %d: %s", resp.StatusCode, string(body))
		}

		var entries []struct {
			Type string `json:"type"`
			Path string `json:"path"`
			Size int64  `json:"size"`
			LFS  *struct {
				OID  string `json:"oid"`
				Size int64  `json:"size"`
			} `json:"lfs,omitempty"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("failed to parse Hub API response: %w", err)
		}

		for _, e := range entries {
			if e.Type != "file" {
				continue // Skip directories
			}
			info := FileInfo{Path: e.Path, Size: e.Size}
			if e.LFS != nil {
				// For LFS entries the lfs block is authoritative: oid is
				// the content SHA256 and size the real file size.
				info.SHA256 = e.LFS.OID
				info.Size = e.LFS.Size
			}
			files = append(files, info)
		}

		pageURL = nextPageLink(resp.Header.Get("Link"))
		resp.Body.Close()
	}

	return files, nil
}

// nextPageLink extracts the rel="next" URL from an RFC 5988 Link header.
// Returns "" when there is no next page.
func nextPageLink(header string) string {
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if !strings.Contains(part, `rel="next"`) {
			continue
		}
		start := strings.Index(part, "<")
		end := strings.Index(part, ">")
		if start >= 0 && end > start {
			return part[start+1 : end]
		}
	}
	return ""
}

// resolveURL builds the download URL for a single repository file.
//
// Format: {endpoint}/{repo}/resolve/{revision}/{path}. The Hub answers with
// a redirect to its CDN for LFS files; the HTTP client follows it.
func (c *HubClient) resolveURL(sourceID, revision, filePath string) string {
	segments := strings.Split(filePath, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return fmt.Sprintf("%s/%s/resolve/%s/%s",
		c.endpoint, sourceID, url.PathEscape(revision), strings.Join(segments, "/"))
}

// setRequestHeaders applies the common headers to a Hub request.
func (c *HubClient) setRequestHeaders(req *http.Request) {
	req.Header.Set("User-Agent", c.userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// downloadFile downloads a single file, choosing the parallel path for
// large weights and the resumable sequential path otherwise.
func (c *HubClient) downloadFile(
	ctx context.Context,
	file FileInfo,
	localPath string,
	sourceID string,
	revision string,
	progress ProgressFunc,
) error {
	if file.Size >= ParallelDownloadThreshold {
		return c.downloadFileParallel(ctx, file, localPath, sourceID, revision, progress)
	}
	return c.downloadFileSequential(ctx, file, localPath, sourceID, revision, progress)
}

// downloadFileSequential downloads a single file with resume support.
func (c *HubClient) downloadFileSequential(
	ctx context.Context,
	file FileInfo,
	localPath string,
	sourceID string,
	revision string,
	progress ProgressFunc,
) error {
	// Create parent directory
	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return err
	}

	// Check if file already exists and is complete
	var resumeFrom int64 = 0
	tmpPath := localPath + ".tmp"

	if stat, err := os.Stat(localPath); err == nil {
		if stat.Size() == file.Size {
			// File exists and size matches, skip download
			if progress != nil {
				progress(file.Path, file.Size, file.Size)
			}
			return nil
		}
	}

	// Send initial progress to indicate download has started
	if progress != nil {
		progress(file.Path, 0, file.Size)
	}

	// Check if temporary file exists (interrupted download)
	if stat, err := os.Stat(tmpPath); err == nil {
		if stat.Size() < file.Size {
			// Resume from where we left off
			resumeFrom = stat.Size()
		} else {
			// Temp file is larger than expected, start over
			os.Remove(tmpPath)
			resumeFrom = 0
		}
	}

	req, err := http.NewRequestWithContext(ctx, "GET", c.resolveURL(sourceID, revision, file.Path), nil)
	if err != nil {
		return err
	}
	c.setRequestHeaders(req)

	// Set Range header for resume support
	if resumeFrom > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", resumeFrom))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// 200 for full download, 206 for partial (resume)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("download %s returned status %d: %s", file.Path, resp.StatusCode, string(body))
	}

	// The server ignored the Range request; write from scratch.
	if resumeFrom > 0 && resp.StatusCode == http.StatusOK {
		os.Remove(tmpPath)
		resumeFrom = 0
	}

	// Open temporary file for appending if resuming, otherwise create new
	var out *os.File
	if resumeFrom > 0 {
		out, err = os.OpenFile(tmpPath, os.O_WRONLY|os.O_APPEND, 0644)
	} else {
		out, err = os.Create(tmpPath)
	}
	if err != nil {
		return err
	}
	defer func() {
		out.Close()
		// Clean up temp file on error
		if err != nil {
			os.Remove(tmpPath)
		}
	}()

	// Download with progress tracking
	downloaded := resumeFrom
	buf := make([]byte, ChunkSize)
	lastReport := time.Now()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := out.Write(buf[:n]); writeErr != nil {
				return writeErr
			}
			downloaded += int64(n)

			// Report progress every 500ms to reduce callback overhead
			if progress != nil && time.Since(lastReport) > 500*time.Millisecond {
				progress(file.Path, downloaded, file.Size)
				lastReport = time.Now()
			}
		}

		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return readErr
		}
	}

	// Final progress report
	if progress != nil {
		progress(file.Path, downloaded, file.Size)
	}

	// Verify file size is correct
	if downloaded != file.Size {
		return fmt.Errorf("download incomplete: expected %d bytes, got %d", file.Size, downloaded)
	}

	// Close file before rename
	out.Close()

	if err := os.Rename(tmpPath, localPath); err != nil {
		return err
	}

	return nil
}

// downloadFileParallel downloads a large file using parallel chunked
// downloads.
//
// The file is split into up to MaxParallelDownloads parts, fetched
// concurrently with Range requests into a pre-sized temp file. Weight files
// of several GB saturate the link much better this way than a single
// stream.
func (c *HubClient) downloadFileParallel(
	ctx context.Context,
	file FileInfo,
	localPath string,
	sourceID string,
	revision string,
	progress ProgressFunc,
) error {
	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Check if file already exists and is complete
	if info, err := os.Stat(localPath); err == nil && info.Size() == file.Size {
		if progress != nil {
			progress(file.Path, file.Size, file.Size)
		}
		return nil
	}

	if progress != nil {
		progress(file.Path, 0, file.Size)
	}

	downloadURL := c.resolveURL(sourceID, revision, file.Path)

	numParts := int((file.Size + ParallelDownloadPartSize - 1) / ParallelDownloadPartSize)
	if numParts > MaxParallelDownloads {
		numParts = MaxParallelDownloads
	}
	partSize := (file.Size + int64(numParts) - 1) / int64(numParts)

	tempPath := localPath + ".tmp"
	tempFile, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	// Pre-size so parts can seek and write concurrently
	if err := tempFile.Truncate(file.Size); err != nil {
		tempFile.Close()
		return fmt.Errorf("failed to set file size: %w", err)
	}
	tempFile.Close()

	var wg sync.WaitGroup
	errChan := make(chan error, numParts)

	// Aggregate progress across parts. Batched to every 5MB so the
	// callback and its lock don't become the bottleneck.
	var progressMu sync.Mutex
	var totalDownloaded int64
	var lastProgressReport int64
	partProgressFunc := func(partBytes int64) {
		if progress == nil {
			return
		}

		progressMu.Lock()
		totalDownloaded += partBytes
		current := totalDownloaded
		report := current-lastProgressReport >= 5*1024*1024 || current == file.Size
		if report {
			lastProgressReport = current
		}
		progressMu.Unlock()

		if report {
			progress(file.Path, current, file.Size)
		}
	}

	for i := 0; i < numParts; i++ {
		start := int64(i) * partSize
		end := start + partSize - 1
		if end >= file.Size {
			end = file.Size - 1
		}

		wg.Add(1)
		go func(partStart, partEnd int64) {
			defer wg.Done()
			if err := c.downloadFilePart(ctx, downloadURL, tempPath, partStart, partEnd, partProgressFunc); err != nil {
				errChan <- err
			}
		}(start, end)
	}

	wg.Wait()
	close(errChan)

	for partErr := range errChan {
		if partErr != nil {
			os.Remove(tempPath)
			return fmt.Errorf("parallel download failed: %w", partErr)
		}
	}

	if err := os.Rename(tempPath, localPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// downloadFilePart downloads a specific byte range of a file.
//
// Used by the parallel download to fetch individual chunks into a shared
// pre-sized temp file.
//
// Parameters:
//   - ctx: Context for cancellation
//   - url: Download URL
//   - destPath: Destination file path (must already exist at full size)
//   - start: Starting byte offset
//   - end: Ending byte offset (inclusive)
//   - progressCallback: Called with bytes downloaded for this part
func (c *HubClient) downloadFilePart(
	ctx context.Context,
	url string,
	destPath string,
	start, end int64,
	progressCallback func(int64),
) error {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setRequestHeaders(req)
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	// Should be 206 Partial Content; some origins answer 200 for a full
	// range
	if resp.StatusCode != http.StatusPartialContent && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	file, err := os.OpenFile(destPath, os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	if _, err := file.Seek(start, 0); err != nil {
		return fmt.Errorf("failed to seek: %w", err)
	}

	buffer := make([]byte, 256*1024)
	var sinceLast int64

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, readErr := resp.Body.Read(buffer)
		if n > 0 {
			if _, writeErr := file.Write(buffer[:n]); writeErr != nil {
				return fmt.Errorf("failed to write: %w", writeErr)
			}

			sinceLast += int64(n)

			// Batch progress updates - report every 1MB to reduce
			// callback overhead
			if progressCallback != nil && sinceLast >= 1024*1024 {
				progressCallback(sinceLast)
				sinceLast = 0
			}
		}

		if readErr == io.EOF {
			if progressCallback != nil && sinceLast > 0 {
				progressCallback(sinceLast)
			}
			break
		}
		if readErr != nil {
			return fmt.Errorf("failed to read: %w", readErr)
		}
	}

	return nil
}

// validateFileIntegrity verifies the SHA256 hash of a downloaded file.
//
// If the hash doesn't match, the file is deleted to prevent serving
// corrupted weights. For large files this reads the entire file and takes
// a while.
func (c *HubClient) validateFileIntegrity(filePath, expectedSHA256 string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open file for validation: %w", err)
	}
	defer file.Close()

	fileInfo, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to get file info: %w", err)
	}

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	actualSHA256 := hex.EncodeToString(hash.Sum(nil))
	if actualSHA256 != expectedSHA256 {
		// Delete corrupted file
		os.Remove(filePath)
		return fmt.Errorf("integrity check failed: expected %s, got %s (file deleted, size: %d bytes)",
			expectedSHA256, actualSHA256, fileInfo.Size())
	}

	return nil
}
