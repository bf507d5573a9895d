package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"posagent/internal/config"
	"posagent/internal/model"
	"posagent/pkg/metrics"
)

// ErrPersistence marks a rejected create call. Creates surface it to the
// caller; patch and query failures are swallowed by callers instead.
var ErrPersistence = errors.New("document store rejected the request")

// Store property names for the task collection.
const (
	FieldTitle        = "Title"
	FieldResult       = "Result"
	FieldPurpose      = "Purpose"
	FieldActionPlan   = "Action Plan"
	FieldContext      = "Context"
	FieldSource       = "Source"
	FieldRole         = "Role"
	FieldStatus       = "Status"
	FieldXP           = "XP"
	FieldDueDate      = "Due Date"
	FieldCreatedAt    = "Created At"
	FieldCalendarLink = "Calendar Link"
	FieldEmailLink    = "Email Link"
)

// RecordStore is the gateway to the external document store. TaskRecords
// are owned by the store; this client only issues create/patch/query calls
// and never caches documents across requests.
type RecordStore struct {
	baseURL      string
	token        string
	collectionID string
	httpClient   *http.Client
	logger       *zap.Logger
}

func NewRecordStore(cfg config.StoreConfig, logger *zap.Logger) *RecordStore {
	return &RecordStore{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		token:        cfg.Token,
		collectionID: cfg.CollectionID,
		httpClient: &http.Client{
			Timeout: cfg.Timeout(),
		},
		logger: logger,
	}
}

// Create persists a new TaskRecord and returns the store-assigned ID.
func (s *RecordStore) Create(ctx context.Context, task *model.TaskRecord) (string, error) {
	body := map[string]any{
		"parent":     map[string]any{"database_id": s.collectionID},
		"properties": s.taskProperties(task),
	}

	start := time.Now()
	respBody, status, err := s.do(ctx, http.MethodPost, "/pages", body)
	metrics.RecordStoreCallDuration("create", time.Since(start))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if status != http.StatusOK && status != http.StatusCreated {
		s.logger.Error("Store rejected create",
			zap.Int("status", status),
			zap.ByteString("body", respBody),
		)
		return "", fmt.Errorf("%w: status %d", ErrPersistence, status)
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(respBody, &created); err != nil || created.ID == "" {
		return "", fmt.Errorf("%w: create response missing id", ErrPersistence)
	}

	s.logger.Info("Task record created", zap.String("record_id", created.ID), zap.String("title", task.Title))
	return created.ID, nil
}

// PatchLink attaches a link field to an existing record. The payload carries
// only the one property, so every other field is left untouched.
func (s *RecordStore) PatchLink(ctx context.Context, id, field, url string) error {
	return s.patch(ctx, id, map[string]any{
		field: map[string]any{"url": url},
	})
}

// PatchStatus updates the status select of an existing record.
func (s *RecordStore) PatchStatus(ctx context.Context, id string, status model.Status) error {
	return s.patch(ctx, id, map[string]any{
		FieldStatus: map[string]any{"select": map[string]any{"name": string(status)}},
	})
}

func (s *RecordStore) patch(ctx context.Context, id string, properties map[string]any) error {
	start := time.Now()
	respBody, status, err := s.do(ctx, http.MethodPatch, "/pages/"+id, map[string]any{
		"properties": properties,
	})
	metrics.RecordStoreCallDuration("patch", time.Since(start))
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("patch status %d: %s", status, respBody)
	}
	return nil
}

// QueryByTitle runs a containment search on the title field and returns the
// first match in store response order, or nil when nothing matches.
// Ambiguity is resolved by taking the first match; there is no tie-break.
func (s *RecordStore) QueryByTitle(ctx context.Context, substring string) (*model.TaskRef, error) {
	body := map[string]any{
		"filter": map[string]any{
			"property": FieldTitle,
			"title":    map[string]any{"contains": substring},
		},
	}

	start := time.Now()
	respBody, status, err := s.do(ctx, http.MethodPost, "/databases/"+s.collectionID+"/query", body)
	metrics.RecordStoreCallDuration("query", time.Since(start))
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("query status %d: %s", status, respBody)
	}

	var result struct {
		Results []struct {
			ID         string `json:"id"`
			Properties struct {
				Title struct {
					Title []struct {
						PlainText string `json:"plain_text"`
					} `json:"title"`
				} `json:"Title"`
				Status struct {
					Select *struct {
						Name string `json:"name"`
					} `json:"select"`
				} `json:"Status"`
			} `json:"properties"`
		} `json:"results"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("decode query response: %w", err)
	}
	if len(result.Results) == 0 {
		return nil, nil
	}

	first := result.Results[0]
	ref := &model.TaskRef{ID: first.ID}
	for _, t := range first.Properties.Title.Title {
		ref.Title += t.PlainText
	}
	if first.Properties.Status.Select != nil {
		ref.Status = model.Status(first.Properties.Status.Select.Name)
	}

	if len(result.Results) > 1 {
		s.logger.Debug("Title query matched multiple records, taking first",
			zap.String("substring", substring),
			zap.Int("matches", len(result.Results)),
		)
	}

	return ref, nil
}

func (s *RecordStore) do(ctx context.Context, method, path string, body any) ([]byte, int, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, resp.StatusCode, err
	}

	return respBody, resp.StatusCode, nil
}

func (s *RecordStore) taskProperties(task *model.TaskRecord) map[string]any {
	props := map[string]any{
		FieldTitle:   titleProp(task.Title),
		FieldResult:  richTextProp(task.Result),
		FieldPurpose: richTextProp(task.Purpose),
		FieldContext: richTextProp(task.Context),
		FieldSource:  richTextProp(task.Source),
		FieldRole:    selectProp(string(task.Role)),
		FieldStatus:  selectProp(string(task.Status)),
		FieldXP:      map[string]any{"number": task.XP},
		FieldCreatedAt: map[string]any{
			"date": map[string]any{"start": task.CreatedAt.Format(time.RFC3339)},
		},
	}

	if len(task.ActionPlan) > 0 {
		props[FieldActionPlan] = richTextProp(strings.Join(task.ActionPlan, "\n"))
	}
	if task.Due != nil {
		props[FieldDueDate] = map[string]any{
			"date": map[string]any{"start": task.Due.Format(time.RFC3339)},
		}
	}

	return props
}

func titleProp(text string) map[string]any {
	return map[string]any{
		"title": []map[string]any{
			{"text": map[string]any{"content": text}},
		},
	}
}

func richTextProp(text string) map[string]any {
	return map[string]any{
		"rich_text": []map[string]any{
			{"text": map[string]any{"content": text}},
		},
	}
}

func selectProp(name string) map[string]any {
	return map[string]any{"select": map[string]any{"name": name}}
}
