// Package transport executes authenticated GraphQL requests against the
// remote catalog's Admin API. It implements types.Transport: one mutation
// entry point for metafield writes plus the two read-side lookups used for
// type resolution. HTTP-level failures surface as transient WriteErrors,
// distinct from the userErrors carried inside mutation results.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/metawrite/metawrite/internal/circuit"
	"github.com/metawrite/metawrite/pkg/errors"
	"github.com/metawrite/metawrite/pkg/types"
)

const (
	// DefaultAPIVersion is the Admin API version requests are pinned to.
	DefaultAPIVersion = "2024-10"

	defaultTimeout = 30 * time.Second

	accessTokenHeader = "X-Catalog-Access-Token"
	requestIDHeader   = "X-Request-ID"
)

// Config represents transport configuration.
type Config struct {
	// ShopDomain is the store's admin host, e.g. "acme.mycatalog.com".
	ShopDomain string `yaml:"shop_domain"`

	// AccessToken authenticates Admin API requests. Loaded from the
	// environment, never from config files.
	AccessToken string `yaml:"-"`

	// APIVersion pins the Admin API version.
	APIVersion string `yaml:"api_version"`

	// Timeout bounds each HTTP request.
	Timeout time.Duration `yaml:"timeout"`
}

// Client is an authenticated GraphQL client for the catalog Admin API.
type Client struct {
	httpClient *http.Client
	endpoint   string
	token      string
	breaker    *circuit.Breaker
	logger     *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithCircuitBreaker guards mutation submission with the given breaker.
func WithCircuitBreaker(b *circuit.Breaker) Option {
	return func(c *Client) { c.breaker = b }
}

// WithHTTPClient substitutes the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// NewClient creates a transport for the configured shop.
func NewClient(cfg *Config, logger *slog.Logger, opts ...Option) (*Client, error) {
	if cfg == nil || cfg.ShopDomain == "" {
		return nil, errors.New(errors.ErrCodeMissingConfig, "shop domain is required").
			WithComponent("transport")
	}
	if cfg.AccessToken == "" {
		return nil, errors.New(errors.ErrCodeMissingConfig, "access token is required").
			WithComponent("transport")
	}
	version := cfg.APIVersion
	if version == "" {
		version = DefaultAPIVersion
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		endpoint: fmt.Sprintf("https://%s/admin/api/%s/graphql.json",
			strings.TrimSuffix(cfg.ShopDomain, "/"), version),
		token:  cfg.AccessToken,
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ExecuteMutation implements types.Transport. userErrors are returned inside
// the result, never as an error; a non-nil error always means the request
// itself failed.
func (c *Client) ExecuteMutation(ctx context.Context, ownerID string, metafields []types.MetafieldInput) (*types.MutationResult, error) {
	variables := map[string]interface{}{
		"input": map[string]interface{}{
			"id":         ownerID,
			"metafields": metafields,
		},
	}

	var resp productUpdateResponse
	run := func() error {
		return c.execute(ctx, productUpdateMutation, variables, &resp)
	}

	var err error
	if c.breaker != nil {
		err = c.breaker.Execute(run)
	} else {
		err = run()
	}
	if err != nil {
		return nil, err
	}

	result := &types.MutationResult{OwnerID: ownerID}
	if p := resp.ProductUpdate.Product; p != nil {
		result.OwnerID = p.ID
		for _, edge := range p.Metafields.Edges {
			result.Metafields = append(result.Metafields, types.AttributeRecord(edge.Node))
		}
	}
	for _, ue := range resp.ProductUpdate.UserErrors {
		result.UserErrors = append(result.UserErrors, types.RemoteError(ue))
	}
	return result, nil
}

// LookupDefinition implements types.Transport. Absence is not an error.
func (c *Client) LookupDefinition(ctx context.Context, ownerType, namespace, key string) (types.TypeDescriptor, error) {
	variables := map[string]interface{}{
		"ownerType": ownerType,
		"namespace": namespace,
		"key":       key,
	}

	var resp definitionResponse
	if err := c.execute(ctx, metafieldDefinitionQuery, variables, &resp); err != nil {
		return types.TypeDescriptor{}, err
	}

	edges := resp.MetafieldDefinitions.Edges
	if len(edges) == 0 {
		return types.TypeDescriptor{}, nil
	}
	td, err := types.ParseType(edges[0].Node.Type.Name)
	if err != nil {
		return types.TypeDescriptor{}, errors.Wrap(err, errors.ErrCodeTypeInvalid,
			"definition declares an unparseable type").
			WithComponent("transport").
			WithContext("declared_type", edges[0].Node.Type.Name)
	}
	return td, nil
}

// LookupExistingAttribute implements types.Transport. Returns nil when the
// owner has no metafield at namespace/key.
func (c *Client) LookupExistingAttribute(ctx context.Context, ownerID, namespace, key string) (*types.AttributeRecord, error) {
	variables := map[string]interface{}{
		"productId": ownerID,
		"namespace": namespace,
		"key":       key,
	}

	var resp productMetafieldResponse
	if err := c.execute(ctx, productMetafieldQuery, variables, &resp); err != nil {
		return nil, err
	}
	if resp.Product == nil || resp.Product.Metafield == nil {
		return nil, nil
	}
	record := types.AttributeRecord(*resp.Product.Metafield)
	return &record, nil
}

// graphQLEnvelope is the standard response wrapper: data plus top-level
// errors.
type graphQLEnvelope struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// execute posts one GraphQL document and decodes data into out.
func (c *Client) execute(ctx context.Context, query string, variables map[string]interface{}, out interface{}) error {
	payload, err := json.Marshal(map[string]interface{}{
		"query":     query,
		"variables": variables,
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "cannot marshal request payload").
			WithComponent("transport")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "cannot build request").
			WithComponent("transport")
	}
	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(accessTokenHeader, c.token)
	req.Header.Set(requestIDHeader, requestID)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeNetworkError, "request failed").
			WithComponent("transport").
			WithContext("request_id", requestID)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeNetworkError, "cannot read response body").
			WithComponent("transport").
			WithContext("request_id", requestID)
	}

	c.logger.Debug("graphql request",
		"request_id", requestID,
		"status", resp.StatusCode,
		"duration", time.Since(start))

	if err := classifyStatus(resp.StatusCode, requestID); err != nil {
		return err
	}

	var envelope graphQLEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return errors.Wrap(err, errors.ErrCodeServerError, "malformed response body").
			WithComponent("transport").
			WithContext("request_id", requestID)
	}
	if len(envelope.Errors) > 0 {
		messages := make([]string, 0, len(envelope.Errors))
		for _, e := range envelope.Errors {
			messages = append(messages, e.Message)
		}
		return errors.Newf(errors.ErrCodeGraphQLError, "graphql errors: %s", strings.Join(messages, "; ")).
			WithComponent("transport").
			WithContext("request_id", requestID)
	}

	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return errors.Wrap(err, errors.ErrCodeServerError, "cannot decode response data").
				WithComponent("transport").
				WithContext("request_id", requestID)
		}
	}
	return nil
}

// classifyStatus maps HTTP status codes onto the error taxonomy: 429 and
// 5xx are transient, any other non-2xx is terminal.
func classifyStatus(status int, requestID string) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests:
		return errors.New(errors.ErrCodeRateLimited, "remote throttled the request").
			WithComponent("transport").
			WithContext("request_id", requestID)
	case status >= 500:
		return errors.Newf(errors.ErrCodeServerError, "remote returned status %d", status).
			WithComponent("transport").
			WithContext("request_id", requestID)
	default:
		return errors.Newf(errors.ErrCodeGraphQLError, "unexpected status %d", status).
			WithComponent("transport").
			WithContext("request_id", requestID)
	}
}
