package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// breakerThreshold is the number of consecutive failed deliveries that opens
// a webhook's circuit breaker.
const breakerThreshold = 5

// WebhookConfig describes a single webhook destination.
type WebhookConfig struct {
	Name          string
	URL           string
	Events        []EventType
	Headers       map[string]string
	Timeout       time.Duration
	MaxRetries    int
	RetryDelay    time.Duration // first backoff step, doubled per retry
	Template      string        // "generic", "slack", "pagerduty"
	AllowInsecure bool

	// MinInterval is the shortest gap between two deliveries. Matching
	// events inside the gap are counted and reported with the next delivery.
	// Zero delivers every event.
	MinInterval time.Duration
}

// WebhookManager subscribes to events and delivers HTTP POST notifications.
type WebhookManager struct {
	bus    *Bus
	logger *slog.Logger
	source string
	hooks  []*hook
	client *http.Client
	subIDs []uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type hook struct {
	cfg     WebhookConfig
	limiter *rate.Limiter // nil when every event is delivered

	mu         sync.Mutex
	suppressed int
	failures   int
	tripped    bool // circuit breaker open
}

// NewWebhookManager creates a webhook manager and subscribes to events.
// source names the pipeline in payloads.
func NewWebhookManager(bus *Bus, source string, configs []WebhookConfig, logger *slog.Logger) *WebhookManager {
	ctx, cancel := context.WithCancel(context.Background())
	wm := &WebhookManager{
		bus:    bus,
		logger: logger,
		source: source,
		client: &http.Client{},
		ctx:    ctx,
		cancel: cancel,
	}

	for _, cfg := range configs {
		if cfg.Timeout == 0 {
			cfg.Timeout = 5 * time.Second
		}
		if cfg.MaxRetries == 0 {
			cfg.MaxRetries = 3
		}
		if cfg.RetryDelay == 0 {
			cfg.RetryDelay = time.Second
		}
		if cfg.Template == "" {
			cfg.Template = "generic"
		}
		h := &hook{cfg: cfg}
		if cfg.MinInterval > 0 {
			h.limiter = rate.NewLimiter(rate.Every(cfg.MinInterval), 1)
		}
		wm.hooks = append(wm.hooks, h)
	}

	wm.subscribe()
	return wm
}

func (wm *WebhookManager) subscribe() {
	seen := make(map[EventType]bool)
	for _, h := range wm.hooks {
		for _, et := range h.cfg.Events {
			seen[et] = true
		}
	}

	for et := range seen {
		wm.subIDs = append(wm.subIDs, wm.bus.Subscribe(et, wm.dispatch))
	}
}

// Stop unsubscribes from all events, cancels pending retries and waits for
// in-flight deliveries.
func (wm *WebhookManager) Stop() {
	for _, id := range wm.subIDs {
		wm.bus.Unsubscribe(id)
	}
	wm.cancel()
	wm.wg.Wait()
}

func (wm *WebhookManager) dispatch(e Event) {
	for _, h := range wm.hooks {
		if !slices.Contains(h.cfg.Events, e.Type) {
			continue
		}
		suppressed, ok := h.admit()
		if !ok {
			continue
		}
		// The bus is synchronous; the network must not stall the pipeline.
		wm.wg.Go(func() { wm.deliver(h, e, suppressed) })
	}
}

// admit reports whether an event may be delivered now and how many events
// were held back since the previous delivery.
func (h *hook) admit() (int, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.tripped {
		return 0, false
	}
	if h.limiter != nil && !h.limiter.Allow() {
		h.suppressed++
		return 0, false
	}
	n := h.suppressed
	h.suppressed = 0
	return n, true
}

func (h *hook) record(err error) (tripped bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err == nil {
		h.failures = 0
		return false
	}
	h.failures++
	if h.failures >= breakerThreshold && !h.tripped {
		h.tripped = true
		return true
	}
	return false
}

func (wm *WebhookManager) deliver(h *hook, e Event, suppressed int) {
	payload := buildPayload(h.cfg.Template, wm.source, e, suppressed)

	var err error
	for attempt := range h.cfg.MaxRetries {
		if attempt > 0 {
			select {
			case <-time.After(h.cfg.RetryDelay << uint(attempt-1)):
			case <-wm.ctx.Done():
				return
			}
		}
		if err = wm.post(h.cfg, payload); err == nil {
			break
		}
	}

	if h.record(err) {
		wm.logger.Warn("webhook circuit breaker tripped", "name", h.cfg.Name, "url", h.cfg.URL)
	}
	if err != nil {
		wm.logger.Error("webhook delivery failed",
			"name", h.cfg.Name,
			"url", h.cfg.URL,
			"event", string(e.Type),
			"error", err,
		)
	}
}

func (wm *WebhookManager) post(cfg WebhookConfig, payload []byte) error {
	ctx, cancel := context.WithTimeout(wm.ctx, cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "ringbuf-webhook/1.0")
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := wm.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}

// buildPayload renders the JSON body for a template. suppressed is the
// number of matching events held back by MinInterval since the last delivery.
func buildPayload(template, source string, e Event, suppressed int) []byte {
	summary := strings.TrimSpace(fmt.Sprintf("%s %s", e.Type, formatEventData(e.Data)))
	if suppressed > 0 {
		summary += fmt.Sprintf(" (+%d suppressed)", suppressed)
	}

	var payload any
	switch template {
	case "slack":
		payload = map[string]string{"text": fmt.Sprintf("[%s] %s", source, summary)}

	case "pagerduty":
		details := maps.Clone(e.Data)
		if details == nil {
			details = map[string]string{}
		}
		details["suppressed"] = strconv.Itoa(suppressed)
		payload = map[string]any{
			"routing_key":  "",
			"event_action": "trigger",
			"dedup_key":    source + "/" + string(e.Type),
			"payload": map[string]any{
				"summary":        summary,
				"source":         source,
				"severity":       pagerDutySeverity(e.Type),
				"timestamp":      e.Timestamp.Format(time.RFC3339),
				"custom_details": details,
			},
		}

	default: // "generic"
		payload = map[string]any{
			"event":      string(e.Type),
			"timestamp":  e.Timestamp.Format(time.RFC3339),
			"source":     source,
			"details":    e.Data,
			"suppressed": suppressed,
		}
	}

	data, _ := json.Marshal(payload)
	return data
}

// formatEventData renders data as sorted key=value pairs.
func formatEventData(data map[string]string) string {
	parts := make([]string, 0, len(data))
	for _, k := range slices.Sorted(maps.Keys(data)) {
		parts = append(parts, k+"="+data[k])
	}
	return strings.Join(parts, " ")
}

func pagerDutySeverity(et EventType) string {
	switch et {
	case ResyncRejected:
		return "critical"
	case BufferDropped:
		return "error"
	case BufferOverrun, FrameOversize:
		return "warning"
	default:
		return "info"
	}
}

// ValidateWebhookURL checks that rawURL is an http or https URL. Plain http
// is only accepted for loopback hosts or with allowInsecure.
func ValidateWebhookURL(rawURL string, allowInsecure bool) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid webhook URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid webhook URL format: %s", rawURL)
	}

	switch u.Scheme {
	case "https":
		return nil
	case "http":
		if allowInsecure || isLoopback(u.Hostname()) {
			return nil
		}
		return fmt.Errorf("webhook URL must use HTTPS: %s (set allow_insecure=true to override)", rawURL)
	default:
		return fmt.Errorf("webhook URL must use http or https: %s", rawURL)
	}
}

func isLoopback(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}
