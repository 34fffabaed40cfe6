// Package webhook delivers signed record change notifications to subscribers.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/lithammer/go-jump-consistent-hash"

	"github.com/Annany2002/nebula-dataapi/internal/domain"
	"github.com/Annany2002/nebula-dataapi/internal/logger"
)

var (
	customLog = logger.NewLogger()
	json      = jsoniter.ConfigCompatibleWithStandardLibrary
)

const (
	UserAgent        = "Nebula-Webhook/1.0"
	SignatureHeader  = "X-Webhook-Signature"
	EventHeader      = "X-Webhook-Event"
	DeliveryHeader   = "X-Webhook-Delivery"
	DefaultWorkers   = 4
	DefaultQueueSize = 256
	DefaultTimeout   = 10 * time.Second

	// outcomeTimeout bounds the bookkeeping write after a delivery attempt.
	outcomeTimeout = 5 * time.Second
	maxRedirects   = 5
)

// Payload is the JSON body posted to subscribers.
type Payload struct {
	Event     string         `json:"event"`
	Table     string         `json:"table"`
	Data      map[string]any `json:"data"`
	Timestamp string         `json:"timestamp"`
}

type job struct {
	hook       domain.Webhook
	event      string
	body       []byte
	deliveryID string
}

// Dispatcher fans record events out to webhook subscribers on a fixed worker pool.
// Jobs for one webhook always land on the same worker, so its deliveries stay ordered.
type Dispatcher struct {
	store    Store
	policy   URLPolicy
	redactor *Redactor
	client   *http.Client
	now      func() time.Time

	workers   int
	queueSize int
	timeout   time.Duration

	mu     sync.RWMutex
	closed bool
	queues []chan job
	wg     sync.WaitGroup
}

type Option func(*Dispatcher)

func WithWorkers(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queueSize = n
		}
	}
}

func WithTimeout(t time.Duration) Option {
	return func(d *Dispatcher) {
		if t > 0 {
			d.timeout = t
		}
	}
}

// WithURLPolicy replaces the default SSRFGuard.
func WithURLPolicy(p URLPolicy) Option {
	return func(d *Dispatcher) { d.policy = p }
}

func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) { d.client = c }
}

// WithSensitiveKeys replaces the default list of redacted key substrings.
func WithSensitiveKeys(keys ...string) Option {
	return func(d *Dispatcher) { d.redactor = NewRedactor(keys...) }
}

// NewDispatcher starts the worker pool.
func NewDispatcher(store Store, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:     store,
		policy:    NewSSRFGuard(),
		redactor:  NewRedactor(),
		now:       time.Now,
		workers:   DefaultWorkers,
		queueSize: DefaultQueueSize,
		timeout:   DefaultTimeout,
	}
	for _, o := range opts {
		o(d)
	}
	if d.client == nil {
		d.client = &http.Client{Timeout: d.timeout}
	}
	if d.client.CheckRedirect == nil {
		client := *d.client
		client.CheckRedirect = d.checkRedirect
		d.client = &client
	}

	d.queues = make([]chan job, d.workers)
	for i := range d.queues {
		d.queues[i] = make(chan job, d.queueSize)
		d.wg.Add(1)
		go d.work(d.queues[i])
	}
	return d
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// checkRedirect applies the URL policy to every hop.
func (d *Dispatcher) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("stopped after %d redirects", maxRedirects)
	}
	return d.policy.Check(req.Context(), req.URL.String())
}

// Dispatch queues deliveries of event for every active subscriber of model.
// It never waits for delivery; a full queue drops the job. Cancellation of ctx
// is ignored since the change it reports is already committed.
func (d *Dispatcher) Dispatch(ctx context.Context, model *domain.Model, event string, data map[string]any) {
	ctx = context.WithoutCancel(ctx)
	hooks, err := d.store.ActiveFor(ctx, model.ID, event)
	if err != nil {
		customLog.Warnf("Webhook: Failed to load subscribers for %s: %v", model.TableName, err)
		return
	}
	if len(hooks) == 0 {
		return
	}

	body, err := json.Marshal(Payload{
		Event:     event,
		Table:     model.TableName,
		Data:      d.redactor.Redact(data),
		Timestamp: d.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		customLog.Errorf("Webhook: Failed to encode %s payload for %s: %v", event, model.TableName, err)
		return
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		customLog.Warnf("Webhook: Dispatcher closed, dropping %s event for %s", event, model.TableName)
		return
	}

	for _, hook := range hooks {
		j := job{hook: hook, event: event, body: body, deliveryID: uuid.NewString()}
		queue := d.queues[d.partition(hook.ID)]
		select {
		case queue <- j:
		default:
			customLog.Warnf("Webhook: Queue full, dropping delivery %s to webhook %d", j.deliveryID, hook.ID)
		}
	}
}

func (d *Dispatcher) partition(id uint) int {
	return int(jump.HashString(strconv.FormatUint(uint64(id), 10), int32(len(d.queues)), jump.NewCRC64()))
}

func (d *Dispatcher) work(queue <-chan job) {
	defer d.wg.Done()
	for j := range queue {
		d.deliver(j)
	}
}

func (d *Dispatcher) deliver(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := d.policy.Check(ctx, j.hook.URL); err != nil {
		customLog.Warnf("Webhook: Skipping webhook %d (%s): %v", j.hook.ID, j.hook.URL, err)
		return
	}

	err := d.post(ctx, j)

	// the delivery deadline may already have passed
	outcomeCtx, cancelOutcome := context.WithTimeout(context.Background(), outcomeTimeout)
	defer cancelOutcome()
	if err != nil {
		customLog.Warnf("Webhook: Delivery %s to %s failed: %v", j.deliveryID, j.hook.URL, err)
		if err := d.store.RecordFailure(outcomeCtx, j.hook.ID); err != nil {
			customLog.Errorf("Webhook: Failed to record failure for webhook %d: %v", j.hook.ID, err)
		}
		return
	}
	if err := d.store.RecordSuccess(outcomeCtx, j.hook.ID); err != nil {
		customLog.Errorf("Webhook: Failed to record success for webhook %d: %v", j.hook.ID, err)
	}
}

func (d *Dispatcher) post(ctx context.Context, j job) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.hook.URL, bytes.NewReader(j.body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set(EventHeader, j.event)
	req.Header.Set(DeliveryHeader, j.deliveryID)
	if j.hook.Secret != "" {
		req.Header.Set(SignatureHeader, "sha256="+Sign(j.hook.Secret, j.body))
	}
	for k, v := range j.hook.Headers {
		req.Header.Set(k, v)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	customLog.Debugf("Webhook: Delivered %s %s to %s", j.event, j.deliveryID, j.hook.URL)
	return nil
}

// Close stops accepting events and waits for queued deliveries until ctx is done.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		for _, q := range d.queues {
			close(q)
		}
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		customLog.Warnf("Webhook: Drain deadline reached, pending deliveries are lost")
		return ctx.Err()
	}
}
