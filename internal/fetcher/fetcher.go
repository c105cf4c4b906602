// Package fetcher is a bounded, retrying, resumable batch download of
// relative paths from one base URL into a working directory.
//
// Each path is dispatched as a github.com/hibiken/asynq task:
// asynq.Config.Concurrency caps the number of transfers in flight, and
// the handler does the byte-range resume work inside one task attempt
// (asynq-level redelivery is disabled because it would discard that
// resume state). Since the tool is a single self-contained CLI with no
// operator-managed Redis, the broker is an embedded miniredis instance
// started and torn down with the fetch.
package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	taskTypeFetch  = "fetch:file"
	maxRetries     = 10
	chunkSize      = 1 << 20 // 1 MiB
	progressChunks = 10
	connectTimeout = 10 * time.Second
	readTimeout    = 1800 * time.Second
)

// ErrEssentialMissing is returned by FetchAll when essential is true and
// at least one file could not be downloaded after all retries.
var ErrEssentialMissing = fmt.Errorf("fetcher: one or more essential files could not be downloaded")

// Fetcher downloads relative paths from BaseURL into WorkDir, at most
// Concurrency transfers in flight at once.
type Fetcher struct {
	BaseURL     string
	WorkDir     string
	Concurrency int

	mr     *miniredis.Miniredis
	client *asynq.Client
	server *asynq.Server
	mux    *asynq.ServeMux

	mu      sync.Mutex
	results map[string]chan bool
}

// Start boots the embedded Redis broker and the asynq worker server.
func (f *Fetcher) Start() error {
	mr, err := miniredis.Run()
	if err != nil {
		return fmt.Errorf("fetcher: start embedded redis: %w", err)
	}

	concurrency := f.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}

	redisOpt := asynq.RedisClientOpt{Addr: mr.Addr()}
	f.mr = mr
	f.client = asynq.NewClient(redisOpt)
	f.server = asynq.NewServer(redisOpt, asynq.Config{Concurrency: concurrency})
	f.mux = asynq.NewServeMux()
	f.results = make(map[string]chan bool)

	f.mux.HandleFunc(taskTypeFetch, f.handle)

	go func() {
		if err := f.server.Run(f.mux); err != nil {
			log.Printf("[fetch] worker server error: %v", err)
		}
	}()

	return nil
}

// Stop shuts down the worker server, the client and the embedded broker.
func (f *Fetcher) Stop() {
	if f.server != nil {
		f.server.Shutdown()
	}
	if f.client != nil {
		f.client.Close()
	}
	if f.mr != nil {
		f.mr.Close()
	}
}

type filePayload struct {
	RelPath string
}

// FetchAll downloads every relative path, returning one bool per input:
// true for success-or-already-present. If essential is true and any file
// ultimately failed, it returns ErrEssentialMissing.
func (f *Fetcher) FetchAll(relPaths []string, essential bool) ([]bool, error) {
	done := make([]chan bool, len(relPaths))

	for i, rel := range relPaths {
		ch := make(chan bool, 1)
		taskID := uuid.NewString()

		f.mu.Lock()
		f.results[taskID] = ch
		f.mu.Unlock()

		payload, _ := json.Marshal(filePayload{RelPath: rel})
		task := asynq.NewTask(taskTypeFetch, payload,
			asynq.TaskID(taskID),
			asynq.MaxRetry(0), // the handler retries internally; asynq redelivery would restart byte-range state
			asynq.Timeout(readTimeout+connectTimeout),
		)
		if _, err := f.client.Enqueue(task); err != nil {
			return nil, fmt.Errorf("fetcher: enqueue %s: %w", rel, err)
		}
		done[i] = ch
	}

	results := make([]bool, len(relPaths))
	for i, ch := range done {
		results[i] = <-ch
	}

	if essential {
		for _, ok := range results {
			if !ok {
				return results, ErrEssentialMissing
			}
		}
	}
	return results, nil
}

func (f *Fetcher) handle(ctx context.Context, t *asynq.Task) error {
	var p filePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return err
	}

	ok := f.fetchOne(p.RelPath)

	f.mu.Lock()
	ch := f.results[t.ResultWriter().TaskID()]
	delete(f.results, t.ResultWriter().TaskID())
	f.mu.Unlock()

	if ch != nil {
		ch <- ok
	}
	return nil
}

// fetchOne applies the per-file policy: success without network I/O if
// the file already exists; otherwise GET with up to maxRetries attempts,
// probing range support before the second attempt and resuming from the
// already-received byte count when the server honors it.
func (f *Fetcher) fetchOne(rel string) bool {
	dest := filepath.Join(f.WorkDir, rel)
	if _, err := os.Stat(dest); err == nil {
		return true
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		log.Printf("[fetch] mkdir for %s: %v", rel, err)
		return false
	}

	url := f.BaseURL + rel
	rangeSupported := false
	probed := false

	for attempt := 1; attempt <= maxRetries; attempt++ {
		if attempt == 2 {
			rangeSupported = probeRangeSupport(url)
			probed = true
		}

		received := int64(0)
		if probed && rangeSupported {
			if info, err := os.Stat(dest + ".part"); err == nil {
				received = info.Size()
			}
		} else {
			os.Remove(dest + ".part")
		}

		ok := f.download(url, dest+".part", received, rangeSupported && probed)
		if ok {
			if err := os.Rename(dest+".part", dest); err != nil {
				log.Printf("[fetch] rename %s: %v", dest, err)
				return false
			}
			return true
		}
		log.Printf("[fetch] %s: attempt %d/%d failed", rel, attempt, maxRetries)
	}

	os.Remove(dest + ".part")
	return false
}

func probeRangeSupport(url string) bool {
	client := &http.Client{Timeout: connectTimeout}
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	req.Header.Set("Range", "bytes=0-4")
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusPartialContent && resp.Header.Get("Content-Range") != ""
}

func (f *Fetcher) download(url, partPath string, resumeFrom int64, useRange bool) bool {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	if useRange && resumeFrom > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", resumeFrom))
	}

	client := &http.Client{Timeout: connectTimeout + readTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return false
	}

	flags := os.O_CREATE | os.O_WRONLY
	if useRange && resumeFrom > 0 && resp.StatusCode == http.StatusPartialContent {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	out, err := os.OpenFile(partPath, flags, 0o644)
	if err != nil {
		return false
	}
	defer out.Close()

	buf := make([]byte, chunkSize)
	chunks := 0
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				return false
			}
			chunks++
			if chunks%progressChunks == 0 {
				log.Printf("[fetch] %s: %d MiB", partPath, chunks)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return false
		}
	}
	return true
}
