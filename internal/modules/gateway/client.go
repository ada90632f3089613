// README: Request Gateway; thin REST client for trip operations with per-kind in-flight guards.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"tripflow/internal/modules/trip"
	"tripflow/internal/types"
)

// Op names a guarded operation kind.
type Op string

const (
	OpDispatch Op = "dispatch"
	OpRetry    Op = "retry"
	OpRebook   Op = "rebook"
	OpCancel   Op = "cancel"
	OpPay      Op = "pay"
)

// Receipt is the raw pay response; its shape belongs to the payment backend.
type Receipt json.RawMessage

type Config struct {
	BaseURL     string
	Timeout     time.Duration
	Credentials CredentialSource
	HTTPClient  *http.Client
	Logger      logrus.FieldLogger
	Clock       func() time.Time
}

type Client struct {
	baseURL string
	httpc   *http.Client
	creds   CredentialSource
	log     logrus.FieldLogger
	now     func() time.Time

	mu       sync.Mutex
	inflight map[Op]bool
}

func NewClient(cfg Config) *Client {
	httpc := cfg.HTTPClient
	if httpc == nil {
		httpc = &http.Client{Timeout: cfg.Timeout}
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		httpc:    httpc,
		creds:    cfg.Credentials,
		log:      log.WithField("component", "gateway"),
		now:      now,
		inflight: make(map[Op]bool),
	}
}

// acquire marks op busy; the returned func must run on every exit path.
func (c *Client) acquire(op Op) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inflight[op] {
		return nil, fmt.Errorf("%s: %w", op, ErrOperationInProgress)
	}
	c.inflight[op] = true
	return func() {
		c.mu.Lock()
		delete(c.inflight, op)
		c.mu.Unlock()
	}, nil
}

// InFlight reports whether op is outstanding.
func (c *Client) InFlight(op Op) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inflight[op]
}

func (c *Client) validateDispatch(req DispatchRequest) error {
	if !req.Kind.Valid() {
		return &ValidationError{Field: "kind", Message: "must be ride or delivery"}
	}
	if !req.Pickup.HasCoordinates() {
		return &ValidationError{Field: "pickup", Message: "coordinates required"}
	}
	if !req.Destination.HasCoordinates() {
		field := "destination"
		if req.Kind == trip.KindDelivery {
			field = "dropoff"
		}
		return &ValidationError{Field: field, Message: "coordinates required"}
	}
	if !req.VehicleClass.Valid() {
		return &ValidationError{Field: "vehicle_class", Message: fmt.Sprintf("unknown class %q", req.VehicleClass)}
	}
	if req.ScheduledFor != nil && !req.ScheduledFor.After(c.now()) {
		return &ValidationError{Field: "scheduled_for", Message: "must be in the future"}
	}
	return nil
}

func (c *Client) DispatchTrip(ctx context.Context, req DispatchRequest) (*trip.Trip, error) {
	if err := c.validateDispatch(req); err != nil {
		return nil, err
	}
	release, err := c.acquire(OpDispatch)
	if err != nil {
		return nil, err
	}
	defer release()

	var out wireTrip
	if err := c.do(ctx, http.MethodPost, "/api/trips", newDispatchBody(req), &out); err != nil {
		return nil, err
	}
	return out.toTrip(), nil
}

func (c *Client) RetryTrip(ctx context.Context, id types.ID) (*trip.Trip, error) {
	if id.Empty() {
		return nil, &ValidationError{Field: "trip_id", Message: "required"}
	}
	release, err := c.acquire(OpRetry)
	if err != nil {
		return nil, err
	}
	defer release()

	var out wireTrip
	if err := c.do(ctx, http.MethodPatch, "/api/trips/"+id.String()+"/retry", nil, &out); err != nil {
		return nil, err
	}
	return out.toTrip(), nil
}

func (c *Client) RebookTrip(ctx context.Context, id types.ID) (*trip.Trip, error) {
	if id.Empty() {
		return nil, &ValidationError{Field: "trip_id", Message: "required"}
	}
	release, err := c.acquire(OpRebook)
	if err != nil {
		return nil, err
	}
	defer release()

	var out wireTrip
	if err := c.do(ctx, http.MethodPost, "/api/trips/"+id.String()+"/rebook", nil, &out); err != nil {
		return nil, err
	}
	return out.toTrip(), nil
}

// CancelTrip takes the id from the caller so a stale local snapshot never blocks a cancel.
func (c *Client) CancelTrip(ctx context.Context, id types.ID, by trip.CancelledBy, reason string) error {
	if id.Empty() {
		return &ValidationError{Field: "trip_id", Message: "required"}
	}
	if !by.Valid() {
		return &ValidationError{Field: "by", Message: "must be requester or provider"}
	}
	release, err := c.acquire(OpCancel)
	if err != nil {
		return err
	}
	defer release()

	return c.do(ctx, http.MethodPatch, "/api/trips/"+id.String()+"/cancel", cancelBody{By: string(by), Reason: reason}, nil)
}

func (c *Client) PayTrip(ctx context.Context, id types.ID) (Receipt, error) {
	if id.Empty() {
		return nil, &ValidationError{Field: "trip_id", Message: "required"}
	}
	release, err := c.acquire(OpPay)
	if err != nil {
		return nil, err
	}
	defer release()

	var out json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/api/trips/"+id.String()+"/pay", nil, &out); err != nil {
		var svcErr *ServiceError
		if errors.As(err, &svcErr) {
			return nil, &PaymentError{Err: svcErr}
		}
		return nil, err
	}
	return Receipt(out), nil
}

func (c *Client) FetchTripByID(ctx context.Context, id types.ID) (*trip.Trip, error) {
	if id.Empty() {
		return nil, &ValidationError{Field: "trip_id", Message: "required"}
	}
	var out wireTrip
	if err := c.do(ctx, http.MethodGet, "/api/trips/"+id.String(), nil, &out); err != nil {
		return nil, err
	}
	return out.toTrip(), nil
}

// FetchActiveTrip returns nil when the backend has no active trip for this user.
func (c *Client) FetchActiveTrip(ctx context.Context) (*trip.Trip, error) {
	var out wireTrip
	err := c.do(ctx, http.MethodGet, "/api/trips/active", nil, &out)
	var svcErr *ServiceError
	if errors.As(err, &svcErr) && svcErr.Status == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, nil
	}
	return out.toTrip(), nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if c.creds != nil {
		token, err := c.creds.Token(ctx)
		if err != nil {
			return fmt.Errorf("credentials: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	log := c.log.WithFields(logrus.Fields{"method": method, "path": path, "request_id": requestID})
	start := time.Now()
	resp, err := c.httpc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.WithError(err).Warn("request failed")
		return &ServiceError{Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &ServiceError{Status: resp.StatusCode, Message: fmt.Sprintf("read body: %v", err)}
	}
	log = log.WithFields(logrus.Fields{"status": resp.StatusCode, "latency": time.Since(start)})

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb errorBody
		_ = json.Unmarshal(raw, &eb)
		log.Debug("request rejected")
		return &ServiceError{Status: resp.StatusCode, Message: statusMessage(resp.StatusCode, eb)}
	}
	log.Debug("request ok")

	if out == nil || resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if rm, ok := out.(*json.RawMessage); ok {
		*rm = append((*rm)[:0], raw...)
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &ServiceError{Status: resp.StatusCode, Message: fmt.Sprintf("decode response: %v", err)}
	}
	return nil
}
