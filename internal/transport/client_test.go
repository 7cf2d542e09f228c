package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metawrite/metawrite/pkg/errors"
	"github.com/metawrite/metawrite/pkg/types"
)

// newTestClient points a Client at the given handler.
func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(&Config{
		ShopDomain:  "acme.example.com",
		AccessToken: "shptk_test",
	}, nil)
	require.NoError(t, err)
	client.endpoint = server.URL
	return client, server
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(&Config{AccessToken: "tok"}, nil)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeMissingConfig, errors.CodeOf(err))

	_, err = NewClient(&Config{ShopDomain: "acme.example.com"}, nil)
	require.Error(t, err)

	_, err = NewClient(nil, nil)
	require.Error(t, err)
}

func TestClient_ExecuteMutation(t *testing.T) {
	var gotBody map[string]interface{}
	var gotToken string

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get(accessTokenHeader)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		_, _ = w.Write([]byte(`{
			"data": {
				"productUpdate": {
					"product": {
						"id": "gid://catalog/Product/42",
						"metafields": {"edges": [
							{"node": {"id": "gid://catalog/Metafield/1", "namespace": "custom", "key": "color", "type": "single_line_text_field", "value": "red"}}
						]}
					},
					"userErrors": []
				}
			}
		}`))
	})

	result, err := client.ExecuteMutation(context.Background(), "gid://catalog/Product/42", []types.MetafieldInput{
		{Namespace: "custom", Key: "color", Type: "single_line_text_field", Value: "red"},
	})
	require.NoError(t, err)

	assert.Equal(t, "shptk_test", gotToken)
	assert.Equal(t, "gid://catalog/Product/42", result.OwnerID)
	require.Len(t, result.Metafields, 1)
	assert.Equal(t, "red", result.Metafields[0].Value)
	assert.Empty(t, result.UserErrors)

	// The request carried the mutation document and the owner id.
	query, _ := gotBody["query"].(string)
	assert.Contains(t, query, "productUpdate")
	variables := gotBody["variables"].(map[string]interface{})
	input := variables["input"].(map[string]interface{})
	assert.Equal(t, "gid://catalog/Product/42", input["id"])
}

func TestClient_ExecuteMutation_UserErrorsAreNotTransportErrors(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"data": {
				"productUpdate": {
					"product": null,
					"userErrors": [
						{"field": ["input", "metafields", "0", "value"], "message": "Value is invalid for type number_integer"}
					]
				}
			}
		}`))
	})

	result, err := client.ExecuteMutation(context.Background(), "gid://catalog/Product/42", nil)
	require.NoError(t, err, "userErrors must not surface as transport errors")
	require.Len(t, result.UserErrors, 1)
	assert.Equal(t, []string{"input", "metafields", "0", "value"}, result.UserErrors[0].Field)
	assert.Contains(t, result.UserErrors[0].Message, "number_integer")
}

func TestClient_StatusClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantCode  errors.ErrorCode
		retryable bool
	}{
		{"throttled", http.StatusTooManyRequests, errors.ErrCodeRateLimited, true},
		{"server error", http.StatusBadGateway, errors.ErrCodeServerError, true},
		{"unauthorized", http.StatusUnauthorized, errors.ErrCodeGraphQLError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})

			_, err := client.ExecuteMutation(context.Background(), "gid://catalog/Product/1", nil)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, errors.CodeOf(err))
			assert.Equal(t, tt.retryable, errors.IsRetryable(err))
		})
	}
}

func TestClient_GraphQLErrorsSurface(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"errors": [{"message": "Field 'productUpdate' doesn't exist"}]}`))
	})

	_, err := client.ExecuteMutation(context.Background(), "gid://catalog/Product/1", nil)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeGraphQLError, errors.CodeOf(err))
	assert.False(t, errors.IsRetryable(err))
}

func TestClient_LookupDefinition(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		query := body["query"].(string)

		if strings.Contains(query, "metafieldDefinitions") {
			_, _ = w.Write([]byte(`{
				"data": {
					"metafieldDefinitions": {"edges": [
						{"node": {"id": "gid://catalog/MetafieldDefinition/9", "namespace": "custom", "key": "sizes", "type": {"name": "list.number_integer"}}}
					]}
				}
			}`))
			return
		}
		t.Errorf("unexpected query: %s", query)
	})

	td, err := client.LookupDefinition(context.Background(), "PRODUCT", "custom", "sizes")
	require.NoError(t, err)
	assert.True(t, td.List)
	assert.Equal(t, types.KindInteger, td.Element)
}

func TestClient_LookupDefinition_Absent(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data": {"metafieldDefinitions": {"edges": []}}}`))
	})

	td, err := client.LookupDefinition(context.Background(), "PRODUCT", "custom", "missing")
	require.NoError(t, err, "absence is not an error")
	assert.True(t, td.IsZero())
}

func TestClient_LookupExistingAttribute(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"data": {"product": {"metafield": {"id": "gid://catalog/Metafield/3", "namespace": "custom", "key": "color", "type": "single_line_text_field", "value": "blue"}}}
		}`))
	})

	record, err := client.LookupExistingAttribute(context.Background(), "gid://catalog/Product/1", "custom", "color")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, "single_line_text_field", record.Type)
	assert.Equal(t, "blue", record.Value)
}

func TestClient_LookupExistingAttribute_Absent(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data": {"product": {"metafield": null}}}`))
	})

	record, err := client.LookupExistingAttribute(context.Background(), "gid://catalog/Product/1", "custom", "missing")
	require.NoError(t, err)
	assert.Nil(t, record)
}
