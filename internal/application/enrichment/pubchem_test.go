package enrichment

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/FoodSafety-MS-KB/internal/config"
	"github.com/turtacn/FoodSafety-MS-KB/pkg/errors"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(config.EnrichmentConfig{
		BaseURL:        srv.URL,
		RequestTimeout: 5 * time.Second,
		MaxRetries:     3,
		RetryDelay:     10 * time.Millisecond,
	}, nil)
	return c, srv
}

const propertyBody = `{"PropertyTable":{"Properties":[{"CID":712,"IUPACName":"formaldehyde","MolecularFormula":"CH2O","MolecularWeight":"30.026","CanonicalSMILES":"C=O"}]}}`

func synonymsBody(synonyms ...string) string {
	quoted := make([]string, len(synonyms))
	for i, s := range synonyms {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return fmt.Sprintf(`{"InformationList":{"Information":[{"CID":712,"Synonym":[%s]}]}}`, strings.Join(quoted, ","))
}

func TestClient_LookupName_TwoStepResolution(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "/compound/name/"):
			fmt.Fprint(w, propertyBody)
		case strings.Contains(r.URL.Path, "/compound/cid/712/synonyms/"):
			fmt.Fprint(w, synonymsBody("Formalin", "50-00-0", "Methanal"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	got, err := c.LookupName(context.Background(), "formaldehyde")
	require.NoError(t, err)
	assert.Equal(t, int64(712), got.CID)
	assert.Equal(t, "formaldehyde", got.IUPACName)
	assert.Equal(t, []string{"50-00-0"}, got.CASNumbers)
	assert.Equal(t, "CH2O", got.MolecularFormula)
	assert.Equal(t, "30.026", got.MolecularWeight)
	assert.Equal(t, "C=O", got.SMILES)
}

func TestClient_LookupName_SkipsChecksumInvalidSynonyms(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/synonyms/") {
			// 50-00-1 looks like a CAS but fails the checksum.
			fmt.Fprint(w, synonymsBody("50-00-1", "64-17-5"))
			return
		}
		fmt.Fprint(w, propertyBody)
	}))

	got, err := c.LookupName(context.Background(), "whatever")
	require.NoError(t, err)
	assert.Equal(t, []string{"64-17-5"}, got.CASNumbers)
}

func TestClient_LookupName_RetainsEveryValidCAS(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/synonyms/") {
			fmt.Fprint(w, synonymsBody("50-00-0", "Formalin", "64-17-5", "50-00-0"))
			return
		}
		fmt.Fprint(w, propertyBody)
	}))

	got, err := c.LookupName(context.Background(), "whatever")
	require.NoError(t, err)
	assert.Equal(t, []string{"50-00-0", "64-17-5"}, got.CASNumbers, "deduplicated, in order of appearance")
}

func TestClient_LookupName_NotFound(t *testing.T) {
	calls := 0
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := c.LookupName(context.Background(), "no such compound")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeLookupNoMatch))
	assert.Equal(t, 1, calls, "404 must not be retried")
}

func TestClient_LookupName_RetriesServerErrors(t *testing.T) {
	calls := 0
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if strings.Contains(r.URL.Path, "/synonyms/") {
			fmt.Fprint(w, synonymsBody("50-00-0"))
			return
		}
		fmt.Fprint(w, propertyBody)
	}))

	got, err := c.LookupName(context.Background(), "formaldehyde")
	require.NoError(t, err)
	assert.Equal(t, []string{"50-00-0"}, got.CASNumbers)
	assert.GreaterOrEqual(t, calls, 3)
}

func TestClient_LookupName_GivesUpAfterMaxRetries(t *testing.T) {
	calls := 0
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := c.LookupName(context.Background(), "formaldehyde")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeLookupUnavailable))
	assert.Equal(t, 3, calls)
}

func TestClient_LookupName_SynonymFailureKeepsMatch(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/synonyms/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, propertyBody)
	}))

	got, err := c.LookupName(context.Background(), "formaldehyde")
	require.NoError(t, err)
	assert.Equal(t, int64(712), got.CID)
	assert.Empty(t, got.CASNumbers)
}

func TestClient_LookupName_ParseError(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "not json at all")
	}))

	_, err := c.LookupName(context.Background(), "formaldehyde")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeLookupParseError))
}

func TestClient_LookupName_EmptyPropertyTable(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"PropertyTable":{"Properties":[]}}`)
	}))

	_, err := c.LookupName(context.Background(), "formaldehyde")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeLookupNoMatch))
}
