package forwarder

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"posagent/internal/config"
	"posagent/internal/model"
	"posagent/pkg/logger"
	"posagent/pkg/metrics"
)

// Kind names a downstream handler collaborator.
type Kind string

const (
	KindCalendar   Kind = "calendar"
	KindEmail      Kind = "email"
	KindResearch   Kind = "research"
	KindMessage    Kind = "message"
	KindExperience Kind = "experience"
)

// Target is one handler endpoint with its timeout.
type Target struct {
	URL     string
	Timeout time.Duration
}

// Forwarder POSTs normalized payloads to handler collaborators. Forward
// never returns an error: every failure is folded into the response as
// status 500 with the error text as body. There are no retries and a failed
// forward never rolls back an already-created record.
type Forwarder struct {
	targets map[Kind]Target
	client  *http.Client
	logger  *zap.Logger
}

func NewForwarder(cfg config.HandlersConfig, log *zap.Logger) *Forwarder {
	return &Forwarder{
		targets: map[Kind]Target{
			KindCalendar:   {URL: cfg.Calendar.URL, Timeout: cfg.Calendar.Timeout(20 * time.Second)},
			KindEmail:      {URL: cfg.Email.URL, Timeout: cfg.Email.Timeout(20 * time.Second)},
			KindResearch:   {URL: cfg.Research.URL, Timeout: cfg.Research.Timeout(35 * time.Second)},
			KindMessage:    {URL: cfg.Message.URL, Timeout: cfg.Message.Timeout(6 * time.Second)},
			KindExperience: {URL: cfg.Experience.URL, Timeout: cfg.Experience.Timeout(10 * time.Second)},
		},
		client: &http.Client{},
		logger: log,
	}
}

// Forward sends payload to the handler of the given kind.
func (f *Forwarder) Forward(ctx context.Context, kind Kind, payload any) model.DownstreamResponse {
	log := logger.WithTrace(ctx, f.logger)

	target, ok := f.targets[kind]
	if !ok || target.URL == "" {
		log.Warn("No endpoint configured for handler", zap.String("handler", string(kind)))
		return model.DownstreamResponse{
			StatusCode: http.StatusInternalServerError,
			Body:       "no endpoint configured for handler " + string(kind),
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return model.DownstreamResponse{
			StatusCode: http.StatusInternalServerError,
			Body:       err.Error(),
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, target.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, target.URL, bytes.NewReader(body))
	if err != nil {
		return model.DownstreamResponse{
			StatusCode: http.StatusInternalServerError,
			Body:       err.Error(),
		}
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		metrics.RecordForwardLatency(string(kind), "error", time.Since(start))
		log.Warn("Handler forward failed",
			zap.String("handler", string(kind)),
			zap.Error(err),
		)
		return model.DownstreamResponse{
			StatusCode: http.StatusInternalServerError,
			Body:       err.Error(),
		}
	}
	defer resp.Body.Close()

	metrics.RecordForwardLatency(string(kind), strconv.Itoa(resp.StatusCode), time.Since(start))

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return model.DownstreamResponse{
			StatusCode: http.StatusInternalServerError,
			Body:       err.Error(),
		}
	}

	log.Info("Handler forward completed",
		zap.String("handler", string(kind)),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	return model.DownstreamResponse{
		StatusCode: resp.StatusCode,
		Body:       string(respBody),
	}
}
