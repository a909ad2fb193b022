package opensearch

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	opensearchgo "github.com/opensearch-project/opensearch-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/FoodSafety-MS-KB/internal/domain/compound"
	"github.com/turtacn/FoodSafety-MS-KB/internal/infrastructure/monitoring/logging"
)

func newTestIndexer(t *testing.T, serverURL string, batchSize int) *Indexer {
	t.Helper()
	osClient, err := opensearchgo.NewClient(opensearchgo.Config{Addresses: []string{serverURL}})
	require.NoError(t, err)
	c := &Client{client: osClient, logger: logging.NewNopLogger()}
	return NewIndexer(c, "mskb", batchSize, logging.NewNopLogger())
}

func testEntries(t *testing.T) []*compound.Record {
	t.Helper()
	verified, err := compound.NewVerified("50-00-0", []string{"Formaldehyde", "Methanal"})
	require.NoError(t, err)
	orphan, err := compound.NewOrphan("mystery peak 7", "")
	require.NoError(t, err)
	return []*compound.Record{verified, orphan}
}

func TestIndexName_PrefixedAndLowercased(t *testing.T) {
	ix := &Indexer{indexPrefix: "mskb"}
	assert.Equal(t, "mskb-catalog-2026-08", ix.IndexName("2026-08"))
	assert.Equal(t, "mskb-catalog-v1", ix.IndexName("V1"))
}

func TestEnsureIndex_CreatesWhenMissing(t *testing.T) {
	var createdBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodHead:
			w.WriteHeader(http.StatusNotFound)
		case http.MethodPut:
			body, _ := io.ReadAll(r.Body)
			createdBody = string(body)
			w.Write([]byte(`{"acknowledged": true}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer server.Close()

	ix := newTestIndexer(t, server.URL, 500)
	require.NoError(t, ix.EnsureIndex(context.Background(), "mskb-catalog-v1"))
	assert.Contains(t, createdBody, `"identity_key"`)
	assert.Contains(t, createdBody, `"cas_number"`)
}

func TestEnsureIndex_ExistingIndexUntouched(t *testing.T) {
	var putCalls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodHead:
			w.WriteHeader(http.StatusOK)
		case http.MethodPut:
			putCalls++
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer server.Close()

	ix := newTestIndexer(t, server.URL, 500)
	require.NoError(t, ix.EnsureIndex(context.Background(), "mskb-catalog-v1"))
	assert.Zero(t, putCalls)
}

func TestIndexCatalog_BulkPayloadKeyedOnIdentity(t *testing.T) {
	var bulkBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodHead:
			w.WriteHeader(http.StatusOK)
		case strings.HasSuffix(r.URL.Path, "/_bulk"):
			body, _ := io.ReadAll(r.Body)
			bulkBody = string(body)
			w.Write([]byte(`{"errors": false, "items": []}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer server.Close()

	ix := newTestIndexer(t, server.URL, 500)
	stats, err := ix.IndexCatalog(context.Background(), "v1", testEntries(t))
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Indexed)
	assert.Equal(t, 0, stats.Failed)
	assert.Equal(t, 1, stats.Batches)

	assert.Contains(t, bulkBody, `"_id":"50-00-0"`)
	assert.Contains(t, bulkBody, `"_id":"mystery peak 7"`)
	assert.Contains(t, bulkBody, `"status":"Verified"`)
	assert.Contains(t, bulkBody, `"status":"Orphan"`)
}

func TestIndexCatalog_BatchesBySize(t *testing.T) {
	var bulkCalls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodHead:
			w.WriteHeader(http.StatusOK)
		case strings.HasSuffix(r.URL.Path, "/_bulk"):
			bulkCalls++
			w.Write([]byte(`{"errors": false, "items": []}`))
		}
	}))
	defer server.Close()

	ix := newTestIndexer(t, server.URL, 1)
	stats, err := ix.IndexCatalog(context.Background(), "v1", testEntries(t))
	require.NoError(t, err)
	assert.Equal(t, 2, bulkCalls)
	assert.Equal(t, 2, stats.Batches)
}

func TestIndexCatalog_PartialFailuresCounted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodHead:
			w.WriteHeader(http.StatusOK)
		case strings.HasSuffix(r.URL.Path, "/_bulk"):
			w.Write([]byte(`{"errors": true, "items": [
				{"index": {"status": 201}},
				{"index": {"status": 400, "error": {"type": "mapper_parsing_exception", "reason": "bad field"}}}
			]}`))
		}
	}))
	defer server.Close()

	ix := newTestIndexer(t, server.URL, 500)
	stats, err := ix.IndexCatalog(context.Background(), "v1", testEntries(t))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Indexed)
	assert.Equal(t, 1, stats.Failed)
}

func TestDeleteIndex_AbsentIsNotError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	ix := newTestIndexer(t, server.URL, 500)
	assert.NoError(t, ix.DeleteIndex(context.Background(), "mskb-catalog-gone"))
}
