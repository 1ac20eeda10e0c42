package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/heartmula/mula/internal/logger"
	"github.com/heartmula/mula/internal/runtime"
)

// InstanceHeader selects the target instance of a proxied request by
// alias or instance ID. Without it, requests route to the single serving
// instance.
const InstanceHeader = "X-Mula-Instance"

// hopByHopHeaders are not forwarded between the client and the service.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailers",
	"Transfer-Encoding",
	"Upgrade",
}

// ProxyHandler forwards service traffic to instance containers.
//
// The daemon is the stable address on the host; instances come and go on
// ephemeral ports. Clients talk to the daemon root and either name an
// instance with the X-Mula-Instance header or rely on the single-instance
// default. Responses stream: generation endpoints produce audio
// progressively and buffering them would hold multi-minute requests in
// memory.
type ProxyHandler struct {
	handler     *Handler
	client      *http.Client
	concurrency *concurrencyManager
}

// NewProxyHandler creates the reverse proxy.
func NewProxyHandler(h *Handler) *ProxyHandler {
	return &ProxyHandler{
		handler: h,
		client: &http.Client{
			// No timeout: generation requests legitimately run for
			// minutes and stream their result.
			Timeout: 0,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		concurrency: newConcurrencyManager(),
	}
}

// ServeHTTP proxies one request to its target instance.
func (p *ProxyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	inst, err := p.resolveInstance(r)
	if err != nil {
		p.handler.WriteError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	release, err := p.concurrency.acquire(inst)
	if err != nil {
		p.handler.WriteError(w, http.StatusTooManyRequests, err.Error())
		return
	}
	defer release()

	targetURL := inst.Endpoint + r.URL.Path
	if r.URL.RawQuery != "" {
		targetURL += "?" + r.URL.RawQuery
	}

	outReq, err := http.NewRequestWithContext(r.Context(), r.Method, targetURL, r.Body)
	if err != nil {
		p.handler.WriteError(w, http.StatusInternalServerError, "failed to build upstream request")
		return
	}
	copyHeaders(outReq.Header, r.Header)
	outReq.Header.Del(InstanceHeader)

	resp, err := p.client.Do(outReq)
	if err != nil {
		logger.Warn("Proxy to %s (%s) failed: %v", inst.Alias, inst.Endpoint, err)
		p.handler.WriteError(w, http.StatusBadGateway,
			fmt.Sprintf("instance %s is not responding", inst.Alias))
		return
	}
	defer resp.Body.Close()

	copyHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)

	p.streamResponse(w, resp)
}

// resolveInstance picks the target instance for a proxied request.
//
// With the instance header the alias must resolve and be serving. Without
// it, exactly one serving instance may exist; zero or several are
// routing errors the client has to disambiguate.
func (p *ProxyHandler) resolveInstance(r *http.Request) (*runtime.Instance, error) {
	if target := r.Header.Get(InstanceHeader); target != "" {
		inst, err := p.handler.runtimeManager.FindByAlias(r.Context(), target)
		if err != nil {
			return nil, err
		}
		if !isServing(inst) {
			return nil, fmt.Errorf("instance %s is not serving (state: %s)", target, inst.State)
		}
		return inst, nil
	}

	instances, err := p.handler.runtimeManager.List(r.Context())
	if err != nil {
		return nil, err
	}

	var serving []*runtime.Instance
	for _, inst := range instances {
		if isServing(inst) {
			serving = append(serving, inst)
		}
	}

	switch len(serving) {
	case 0:
		return nil, fmt.Errorf("no running instance; start one with 'mula start <model>'")
	case 1:
		return serving[0], nil
	default:
		aliases := make([]string, 0, len(serving))
		for _, inst := range serving {
			aliases = append(aliases, inst.Alias)
		}
		return nil, fmt.Errorf("multiple instances running (%s); select one with the %s header",
			strings.Join(aliases, ", "), InstanceHeader)
	}
}

// streamResponse copies the upstream body, flushing per chunk so
// progressive responses reach the client as they are produced.
func (p *ProxyHandler) streamResponse(w http.ResponseWriter, resp *http.Response) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		_, _ = io.Copy(w, resp.Body)
		return
	}

	buf := make([]byte, 4096)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return
			}
			flusher.Flush()
		}
		if err != nil {
			return
		}
	}
}

// isServing reports whether an instance can take traffic. Running is
// included: a just-started service may answer before the first readiness
// probe fires.
func isServing(inst *runtime.Instance) bool {
	return inst.State == runtime.StateReady || inst.State == runtime.StateRunning
}

// copyHeaders copies all headers except hop-by-hop ones.
func copyHeaders(dst, src http.Header) {
	for key, values := range src {
		if isHopByHop(key) {
			continue
		}
		for _, v := range values {
			dst.Add(key, v)
		}
	}
}

func isHopByHop(key string) bool {
	for _, h := range hopByHopHeaders {
		if strings.EqualFold(key, h) {
			return true
		}
	}
	return false
}

// concurrencyManager enforces per-instance request limits.
//
// An instance's max_concurrent metadata (from the start request) becomes
// a semaphore; zero means unlimited. Semaphores are created lazily and
// dropped when an instance disappears.
type concurrencyManager struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func newConcurrencyManager() *concurrencyManager {
	return &concurrencyManager{slots: make(map[string]chan struct{})}
}

// acquire takes a request slot for the instance. The returned release
// function must be called once the request finishes.
func (c *concurrencyManager) acquire(inst *runtime.Instance) (func(), error) {
	limit := 0
	if raw, ok := inst.Metadata["max_concurrent"]; ok {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}
	if limit <= 0 {
		return func() {}, nil
	}

	c.mu.Lock()
	sem, ok := c.slots[inst.ID]
	if !ok || cap(sem) != limit {
		sem = make(chan struct{}, limit)
		c.slots[inst.ID] = sem
	}
	c.mu.Unlock()

	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	default:
		return nil, fmt.Errorf("instance %s is at its concurrency limit (%d)", inst.Alias, limit)
	}
}
