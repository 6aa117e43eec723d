package itsm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ensemble/backend/internal/config"
	"github.com/ensemble/backend/internal/models"
	"github.com/ensemble/backend/pkg/logger"
	"golang.org/x/time/rate"
)

const (
	defaultPageSize      = 500
	defaultMaxSearchDays = 7
)

var tableForType = map[string]string{
	models.ItsmTypeRFC: "change_request",
	models.ItsmTypeINC: "incident",
}

// ServiceNowClient reads change_request and incident rows through the
// ServiceNow Table API using basic auth.
type ServiceNowClient struct {
	baseURL    string
	username   string
	password   string
	pageSize   int
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewServiceNowClient returns nil when no instance is configured.
func NewServiceNowClient(cfg *config.ITSMConfig) *ServiceNowClient {
	if cfg == nil || strings.TrimSpace(cfg.BaseURL) == "" {
		return nil
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	limit := rate.Inf
	if cfg.SyncRatePerSecond > 0 {
		limit = rate.Limit(cfg.SyncRatePerSecond)
	}
	burst := cfg.SyncBurst
	if burst <= 0 {
		burst = 1
	}
	return &ServiceNowClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		username:   cfg.Username,
		password:   cfg.Password,
		pageSize:   defaultPageSize,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, burst),
	}
}

type tableResponse struct {
	Result []map[string]interface{} `json:"result"`
}

// Fetch pulls recent tickets for every configured workgroup.
func (c *ServiceNowClient) Fetch(ctx context.Context, req FetchRequest) ([]Record, error) {
	days := req.MaxSearchDays
	if days <= 0 {
		days = defaultMaxSearchDays
	}

	var records []Record
	for _, t := range []struct {
		itemType string
		groups   []string
	}{
		{models.ItsmTypeRFC, req.RFCWorkgroups},
		{models.ItsmTypeINC, req.INCWorkgroups},
	} {
		if len(t.groups) == 0 {
			continue
		}
		rows, err := c.fetchTable(ctx, tableForType[t.itemType], buildQuery(t.groups, days))
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			rec := Record{Type: t.itemType, Payload: row}
			rec.ExternalID = rec.Field("number")
			if rec.ExternalID == "" {
				continue
			}
			records = append(records, rec)
		}
	}

	logger.Debug().Int("records", len(records)).Int("days", days).Msg("servicenow fetch complete")
	return records, nil
}

func buildQuery(groups []string, days int) string {
	return fmt.Sprintf("assignment_group.nameIN%s^opened_at>=javascript:gs.daysAgoStart(%d)^ORDERBYDESCopened_at",
		strings.Join(groups, ","), days)
}

func (c *ServiceNowClient) fetchTable(ctx context.Context, table, query string) ([]map[string]interface{}, error) {
	var rows []map[string]interface{}
	for offset := 0; ; offset += c.pageSize {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		params := url.Values{}
		params.Set("sysparm_query", query)
		params.Set("sysparm_display_value", "true")
		params.Set("sysparm_exclude_reference_link", "true")
		params.Set("sysparm_limit", strconv.Itoa(c.pageSize))
		params.Set("sysparm_offset", strconv.Itoa(offset))
		apiURL := fmt.Sprintf("%s/api/now/table/%s?%s", c.baseURL, table, params.Encode())

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
		if err != nil {
			return nil, err
		}
		req.SetBasicAuth(c.username, c.password)
		req.Header.Set("Accept", "application/json")

		page, err := c.do(req, table)
		if err != nil {
			return nil, err
		}
		rows = append(rows, page...)
		if len(page) < c.pageSize {
			return rows, nil
		}
	}
}

func (c *ServiceNowClient) do(req *http.Request, table string) ([]map[string]interface{}, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("ServiceNow %s returned %d: %s", table, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out tableResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode ServiceNow %s response: %w", table, err)
	}
	return out.Result, nil
}
