package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lcfetch/pkg/errors"
)

func newTestClient(serverURL string) *Client {
	return NewClient("test", serverURL, "test-token", 5*time.Second, nil)
}

func TestClientQuerySuccess(t *testing.T) {
	var gotQuery Query
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, queriesPath, r.URL.Path)
		assert.Equal(t, "test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotQuery))

		json.NewEncoder(w).Encode(Response{
			Status: "success",
			Data: []Record{
				{"_id": float64(10), "period": 1.5},
			},
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	response, err := client.Query(context.Background(), NewFindQuery("ZTF_source_features_DR5", []int64{10}, map[string]int{"period": 1}))
	require.NoError(t, err)

	assert.Equal(t, "find", gotQuery.QueryType)
	assert.Equal(t, "ZTF_source_features_DR5", gotQuery.Query.Catalog)
	assert.Equal(t, []int64{10}, gotQuery.Query.Filter.ID.In)

	require.Len(t, response.Data, 1)
	assert.Equal(t, float64(10), response.Data[0]["_id"])
}

func TestClientQueryErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Response{
			Status:  "error",
			Message: "query execution failed",
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Query(context.Background(), NewFindQuery("ZTF_source_features_DR5", []int64{10}, nil))
	require.Error(t, err)

	apiErr, ok := err.(*errors.Error)
	require.True(t, ok, "expected typed error, got %T", err)
	assert.Equal(t, errors.ErrorTypeQueryFailed, apiErr.Type)
	assert.False(t, errors.IsRetryable(apiErr.Type), "rejected queries must not be retried")
}

func TestClientQueryNoData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Response{Status: "success"})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Query(context.Background(), NewFindQuery("ZTF_source_features_DR5", []int64{10}, nil))
	require.Error(t, err)

	apiErr, ok := err.(*errors.Error)
	require.True(t, ok)
	assert.Equal(t, errors.ErrorTypeQueryFailed, apiErr.Type)
}

func TestClientQueryHTTPStatuses(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantType errors.ErrorType
	}{
		{"unauthorized", http.StatusUnauthorized, errors.ErrorTypeAuth},
		{"forbidden", http.StatusForbidden, errors.ErrorTypeAuth},
		{"server error", http.StatusInternalServerError, errors.ErrorTypeServerError},
		{"bad gateway", http.StatusBadGateway, errors.ErrorTypeServerError},
		{"throttled", http.StatusTooManyRequests, errors.ErrorTypeServerError},
		{"teapot", http.StatusTeapot, errors.ErrorTypeUnknown},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(test.status)
			}))
			defer server.Close()

			client := newTestClient(server.URL)
			_, err := client.Query(context.Background(), NewFindQuery("ZTF_source_features_DR5", []int64{10}, nil))
			require.Error(t, err)

			apiErr, ok := err.(*errors.Error)
			require.True(t, ok)
			assert.Equal(t, test.wantType, apiErr.Type)
			assert.Equal(t, test.status, apiErr.Code)
		})
	}
}

func TestResponseOK(t *testing.T) {
	tests := []struct {
		name     string
		response *Response
		want     bool
	}{
		{"nil response", nil, false},
		{"error status", &Response{Status: "error", Data: []Record{}}, false},
		{"no data", &Response{Status: "success"}, false},
		{"empty data", &Response{Status: "success", Data: []Record{}}, true},
		{"with data", &Response{Status: "success", Data: []Record{{"_id": float64(1)}}}, true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.want, test.response.OK())
		})
	}
}

func TestClientQueryMalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Query(context.Background(), NewFindQuery("ZTF_source_features_DR5", []int64{10}, nil))
	require.Error(t, err)

	apiErr, ok := err.(*errors.Error)
	require.True(t, ok)
	assert.Equal(t, errors.ErrorTypeParsing, apiErr.Type)
}

func TestClientQueryNetworkError(t *testing.T) {
	// Point at a server that is already gone
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := newTestClient(server.URL)
	_, err := client.Query(context.Background(), NewFindQuery("ZTF_source_features_DR5", []int64{10}, nil))
	require.Error(t, err)

	apiErr, ok := err.(*errors.Error)
	require.True(t, ok)
	assert.Equal(t, errors.ErrorTypeNetwork, apiErr.Type)
	assert.True(t, errors.IsRetryable(apiErr.Type))
}
