package weaviate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Client is a thin HTTP client for the subset of the Weaviate REST and
// GraphQL APIs the retrieval backends need: schema management, tenant shard
// management, batch upserts and Get/Aggregate queries.
type Client struct {
	baseURL    string
	class      string
	httpClient *http.Client

	tenantMu       sync.Mutex
	ensuredTenants map[string]bool
}

func New(baseURL, class string) *Client {
	return &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		class:          class,
		httpClient:     &http.Client{Timeout: 60 * time.Second},
		ensuredTenants: map[string]bool{},
	}
}

func (c *Client) Class() string { return c.class }

// Ready probes the liveness endpoint. Used once at backend selection; a node
// that is not ready selects the null backend.
func (c *Client) Ready(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/.well-known/ready", nil)
	if err != nil {
		return fmt.Errorf("create readiness request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("weaviate readiness request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("weaviate readiness status: %s", resp.Status)
	}
	return nil
}

// classSchema mirrors the fields of the schema API we read and write.
type classSchema struct {
	Class              string             `json:"class"`
	Properties         []classProperty    `json:"properties,omitempty"`
	MultiTenancyConfig *multiTenancy      `json:"multiTenancyConfig,omitempty"`
	Vectorizer         string             `json:"vectorizer,omitempty"`
	InvertedIndex      *invertedIndexConf `json:"invertedIndexConfig,omitempty"`
}

type classProperty struct {
	Name     string   `json:"name"`
	DataType []string `json:"dataType"`
}

type multiTenancy struct {
	Enabled bool `json:"enabled"`
}

type invertedIndexConf struct {
	Bm25 struct {
		B  float64 `json:"b"`
		K1 float64 `json:"k1"`
	} `json:"bm25"`
}

func documentProperties() []classProperty {
	return []classProperty{
		{Name: "tenantId", DataType: []string{"text"}},
		{Name: "documentCode", DataType: []string{"text"}},
		{Name: "title", DataType: []string{"text"}},
		{Name: "content", DataType: []string{"text"}},
		{Name: "category", DataType: []string{"text"}},
		{Name: "documentType", DataType: []string{"text"}},
		{Name: "chunkIndex", DataType: []string{"int"}},
	}
}

// GetClass fetches the class schema. A missing class returns (nil, nil).
func (c *Client) GetClass(ctx context.Context) (*classSchema, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/schema/"+c.class, nil)
	if err != nil {
		return nil, fmt.Errorf("create schema request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weaviate schema request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("weaviate schema status: %s", resp.Status)
	}

	var schema classSchema
	if err := json.NewDecoder(resp.Body).Decode(&schema); err != nil {
		return nil, fmt.Errorf("decode schema response: %w", err)
	}
	return &schema, nil
}

// EnsureClass creates the document class if absent. multiTenant selects
// native shard-per-tenant isolation; when false the class carries a tenantId
// property filtered at query time instead.
func (c *Client) EnsureClass(ctx context.Context, multiTenant bool) error {
	existing, err := c.GetClass(ctx)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	schema := classSchema{
		Class:      c.class,
		Properties: documentProperties(),
		Vectorizer: "none",
	}
	if multiTenant {
		schema.MultiTenancyConfig = &multiTenancy{Enabled: true}
	}
	return c.postJSON(ctx, "/v1/schema", schema, nil)
}

// MultiTenancyEnabled reports whether the existing class has native
// multi-tenancy. Missing class returns (false, nil).
func (c *Client) MultiTenancyEnabled(ctx context.Context) (bool, error) {
	schema, err := c.GetClass(ctx)
	if err != nil || schema == nil {
		return false, err
	}
	return schema.MultiTenancyConfig != nil && schema.MultiTenancyConfig.Enabled, nil
}

// EnsureTenant lazily creates a tenant shard and caches the result, so the
// per-request cost after the first call is a mutex check.
func (c *Client) EnsureTenant(ctx context.Context, shard string) error {
	c.tenantMu.Lock()
	if c.ensuredTenants[shard] {
		c.tenantMu.Unlock()
		return nil
	}
	c.tenantMu.Unlock()

	payload := []map[string]string{{"name": shard}}
	err := c.postJSON(ctx, "/v1/schema/"+c.class+"/tenants", payload, nil)
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return err
	}

	c.tenantMu.Lock()
	c.ensuredTenants[shard] = true
	c.tenantMu.Unlock()
	return nil
}

// DeleteTenant drops a tenant shard and everything in it, and invalidates the
// local ensure cache so a later ensure recreates it empty.
func (c *Client) DeleteTenant(ctx context.Context, shard string) error {
	body, err := json.Marshal([]string{shard})
	if err != nil {
		return fmt.Errorf("marshal tenant delete body: %w", err)
	}

	url := c.baseURL + "/v1/schema/" + c.class + "/tenants"
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create tenant delete request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("weaviate tenant delete request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("weaviate tenant delete status: %s", resp.Status)
	}

	c.tenantMu.Lock()
	delete(c.ensuredTenants, shard)
	c.tenantMu.Unlock()
	return nil
}

// ListTenants returns the shard names currently attached to the class.
func (c *Client) ListTenants(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/schema/"+c.class+"/tenants", nil)
	if err != nil {
		return nil, fmt.Errorf("create tenants list request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weaviate tenants list request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("weaviate tenants list status: %s", resp.Status)
	}

	var tenants []struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tenants); err != nil {
		return nil, fmt.Errorf("decode tenants list: %w", err)
	}
	out := make([]string, 0, len(tenants))
	for _, t := range tenants {
		out = append(out, t.Name)
	}
	return out, nil
}

// BatchObject is one upsert entry. Weaviate treats a batch insert with an
// existing id as an update, so deterministic ids make indexing idempotent.
type BatchObject struct {
	ID         string         `json:"id"`
	Class      string         `json:"class"`
	Tenant     string         `json:"tenant,omitempty"`
	Properties map[string]any `json:"properties"`
}

func (c *Client) BatchObjects(ctx context.Context, objects []BatchObject) error {
	if len(objects) == 0 {
		return nil
	}
	payload := map[string]any{"objects": objects}

	var results []struct {
		Result struct {
			Errors *struct {
				Error []struct {
					Message string `json:"message"`
				} `json:"error"`
			} `json:"errors"`
		} `json:"result"`
	}
	if err := c.postJSON(ctx, "/v1/batch/objects", payload, &results); err != nil {
		return err
	}
	for _, r := range results {
		if r.Result.Errors != nil && len(r.Result.Errors.Error) > 0 {
			return fmt.Errorf("weaviate batch object error: %s", r.Result.Errors.Error[0].Message)
		}
	}
	return nil
}

// batchDelete issues a DELETE /v1/batch/objects with a match body. Split out
// because it is the one call that sends a body on DELETE.
func (c *Client) batchDelete(ctx context.Context, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal batch delete body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/v1/batch/objects", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create batch delete request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("weaviate batch delete request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("weaviate batch delete status: %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode batch delete response: %w", err)
	}
	return nil
}

// Query runs a GraphQL document and returns the data payload. GraphQL-level
// errors become Go errors even on HTTP 200.
func (c *Client) Query(ctx context.Context, query string) (json.RawMessage, error) {
	payload := map[string]string{"query": query}

	var out struct {
		Data   json.RawMessage `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := c.postJSON(ctx, "/v1/graphql", payload, &out); err != nil {
		return nil, err
	}
	if len(out.Errors) > 0 {
		return nil, fmt.Errorf("weaviate graphql error: %s", out.Errors[0].Message)
	}
	return out.Data, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("weaviate request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if msg := strings.TrimSpace(string(raw)); msg != "" {
			return fmt.Errorf("weaviate status %s on %s: %s", resp.Status, path, msg)
		}
		return fmt.Errorf("weaviate status %s on %s", resp.Status, path)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response from %s: %w", path, err)
	}
	return nil
}
