// Package enrichment resolves orphan compound names against an external
// PUG-REST chemistry service and turns the answers into reviewable
// candidate suggestions.  The service is consulted, never trusted:
// everything it returns stays a candidate until fusion accepts it.
package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/turtacn/FoodSafety-MS-KB/internal/config"
	"github.com/turtacn/FoodSafety-MS-KB/internal/domain/compound"
	"github.com/turtacn/FoodSafety-MS-KB/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/FoodSafety-MS-KB/pkg/errors"
)

// LookupResult is the parsed outcome of one successful name resolution.
// CASNumbers holds every checksum-valid registry number found among the
// synonyms, in order of appearance; disagreement between them is the
// fusion engine's problem, not the client's.
type LookupResult struct {
	CID              int64    `json:"cid"`
	IUPACName        string   `json:"iupac_name"`
	CASNumbers       []string `json:"cas_numbers,omitempty"`
	MolecularFormula string   `json:"molecular_formula,omitempty"`
	MolecularWeight  string   `json:"molecular_weight,omitempty"`
	SMILES           string   `json:"smiles,omitempty"`
	Synonyms         []string `json:"synonyms,omitempty"`
}

// Client is the PUG-REST HTTP client.  Each lookup is two requests: a
// name-to-record property query, then a CID-to-synonyms query scanned for
// a checksum-valid CAS number.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	retryDelay time.Duration
	logger     logging.Logger
}

// NewClient builds a Client from the enrichment configuration.
func NewClient(cfg config.EnrichmentConfig, logger logging.Logger) *Client {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		logger:     logger.Named("pubchem"),
	}
}

type propertyResponse struct {
	PropertyTable struct {
		Properties []struct {
			CID              int64   `json:"CID"`
			IUPACName        string  `json:"IUPACName"`
			MolecularFormula string  `json:"MolecularFormula"`
			MolecularWeight  string  `json:"MolecularWeight"`
			CanonicalSMILES  string  `json:"CanonicalSMILES"`
		} `json:"Properties"`
	} `json:"PropertyTable"`
}

type synonymsResponse struct {
	InformationList struct {
		Information []struct {
			CID     int64    `json:"CID"`
			Synonym []string `json:"Synonym"`
		} `json:"Information"`
	} `json:"InformationList"`
}

// LookupName resolves a compound name.  Returns an ENR_003 error when the
// service has no record for the name, ENR_001/ENR_002 when the service
// could not be reached, ENR_004 when a response could not be parsed.
func (c *Client) LookupName(ctx context.Context, name string) (*LookupResult, error) {
	endpoint := fmt.Sprintf("%s/compound/name/%s/property/IUPACName,MolecularFormula,MolecularWeight,CanonicalSMILES/JSON",
		c.baseURL, url.PathEscape(name))

	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var props propertyResponse
	if err := json.Unmarshal(body, &props); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeLookupParseError, "decoding property response")
	}
	if len(props.PropertyTable.Properties) == 0 {
		return nil, errors.New(errors.ErrCodeLookupNoMatch, "no properties returned").
			WithDetail("name=" + name)
	}

	p := props.PropertyTable.Properties[0]
	result := &LookupResult{
		CID:              p.CID,
		IUPACName:        p.IUPACName,
		MolecularFormula: p.MolecularFormula,
		MolecularWeight:  p.MolecularWeight,
		SMILES:           p.CanonicalSMILES,
	}

	synonyms, err := c.lookupSynonyms(ctx, p.CID)
	if err != nil {
		// A missing synonym list does not invalidate the CID match; the
		// candidate simply carries no CAS suggestion.
		c.logger.Warn("synonym lookup failed",
			logging.String("name", name), logging.Int64("cid", p.CID), logging.Err(err))
		return result, nil
	}
	result.Synonyms = synonyms
	result.CASNumbers = validCASNumbers(synonyms)
	return result, nil
}

func (c *Client) lookupSynonyms(ctx context.Context, cid int64) ([]string, error) {
	endpoint := fmt.Sprintf("%s/compound/cid/%s/synonyms/JSON", c.baseURL, strconv.FormatInt(cid, 10))
	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	var resp synonymsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeLookupParseError, "decoding synonyms response")
	}
	if len(resp.InformationList.Information) == 0 {
		return nil, nil
	}
	return resp.InformationList.Information[0].Synonym, nil
}

// validCASNumbers returns the distinct checksum-valid registry numbers
// among the synonyms, in order of first appearance.
func validCASNumbers(synonyms []string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, s := range synonyms {
		cas, err := compound.ValidateCAS(s)
		if err != nil {
			continue
		}
		if _, dup := seen[cas]; dup {
			continue
		}
		seen[cas] = struct{}{}
		out = append(out, cas)
	}
	return out
}

// get performs one GET with retry.  Transport failures and 5xx responses
// are retried up to maxRetries with a fixed delay; a 404 means the name is
// simply unknown and is returned immediately as ENR_003.
func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, errors.Wrap(ctx.Err(), errors.ErrCodeLookupUnavailable, "lookup cancelled")
			case <-time.After(c.retryDelay):
			}
		}

		body, retryable, err := c.getOnce(ctx, endpoint)
		if err == nil {
			return body, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
		c.logger.Warn("lookup attempt failed",
			logging.String("endpoint", endpoint),
			logging.Int("attempt", attempt),
			logging.Err(err),
		)
	}
	return nil, lastErr
}

func (c *Client) getOnce(ctx context.Context, endpoint string) (body []byte, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false, errors.Wrap(err, errors.ErrCodeLookupUnavailable, "building request")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, errors.Wrap(err, errors.ErrCodeLookupUnavailable, "request failed")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, true, errors.Wrap(err, errors.ErrCodeLookupUnavailable, "reading response body")
		}
		return data, false, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, false, errors.New(errors.ErrCodeLookupNoMatch, "compound not found upstream")
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, true, errors.New(errors.ErrCodeLookupRateLimited, "upstream throttled the request")
	case resp.StatusCode >= 500:
		return nil, true, errors.Newf(errors.ErrCodeLookupUnavailable, "upstream returned %d", resp.StatusCode)
	default:
		return nil, false, errors.Newf(errors.ErrCodeLookupUnavailable, "unexpected status %d", resp.StatusCode)
	}
}
