package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/turtacn/FoodSafety-MS-KB/internal/domain/compound"
	"github.com/turtacn/FoodSafety-MS-KB/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/FoodSafety-MS-KB/pkg/errors"
)

// catalogMapping is the index schema for fused catalog entries.  names uses
// a keyword sub-field so exact synonym filters work next to full-text search.
const catalogMapping = `{
  "settings": {
    "number_of_shards": 1,
    "number_of_replicas": 1,
    "analysis": {
      "normalizer": {
        "lowercase_normalizer": {"type": "custom", "filter": ["lowercase"]}
      }
    }
  },
  "mappings": {
    "properties": {
      "identity_key":      {"type": "keyword"},
      "cas_number":        {"type": "keyword"},
      "preferred_name":    {"type": "text", "fields": {"raw": {"type": "keyword", "normalizer": "lowercase_normalizer"}}},
      "names":             {"type": "text", "fields": {"raw": {"type": "keyword", "normalizer": "lowercase_normalizer"}}},
      "status":            {"type": "keyword"},
      "cas_source":        {"type": "keyword"},
      "molecular_formula": {"type": "keyword"},
      "molecular_weight":  {"type": "keyword"},
      "smiles":            {"type": "keyword"},
      "pubchem_cid":       {"type": "keyword"},
      "iupac_name":        {"type": "text"}
    }
  }
}`

// catalogDoc is the indexed projection of a catalog entry.
type catalogDoc struct {
	IdentityKey      string   `json:"identity_key"`
	CASNumber        string   `json:"cas_number,omitempty"`
	PreferredName    string   `json:"preferred_name"`
	Names            []string `json:"names"`
	Status           string   `json:"status"`
	CASSource        string   `json:"cas_source,omitempty"`
	MolecularFormula string   `json:"molecular_formula,omitempty"`
	MolecularWeight  string   `json:"molecular_weight,omitempty"`
	SMILES           string   `json:"smiles,omitempty"`
	PubChemCID       string   `json:"pubchem_cid,omitempty"`
	IUPACName        string   `json:"iupac_name,omitempty"`
}

// IndexStats summarizes one bulk indexing pass.
type IndexStats struct {
	Indexed int
	Failed  int
	Batches int
}

// Indexer pushes fused catalog versions into OpenSearch for the downstream
// viewer.
type Indexer struct {
	client      *Client
	indexPrefix string
	batchSize   int
	logger      logging.Logger
}

// NewIndexer builds an Indexer.  An empty prefix defaults to "mskb" and a
// non-positive batch size to 500.
func NewIndexer(client *Client, indexPrefix string, batchSize int, logger logging.Logger) *Indexer {
	if indexPrefix == "" {
		indexPrefix = "mskb"
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Indexer{
		client:      client,
		indexPrefix: indexPrefix,
		batchSize:   batchSize,
		logger:      logger,
	}
}

// IndexName returns the per-version catalog index name.
func (i *Indexer) IndexName(version string) string {
	return i.indexPrefix + "-catalog-" + strings.ToLower(version)
}

// IndexExists checks whether the named index is present.
func (i *Indexer) IndexExists(ctx context.Context, name string) (bool, error) {
	resp, err := opensearchapi.IndicesExistsRequest{Index: []string{name}}.Do(ctx, i.client.GetClient())
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeExternalService, "failed to check index existence")
	}
	defer resp.Body.Close()
	return resp.StatusCode == 200, nil
}

// EnsureIndex creates the catalog index when missing.  An existing index is
// left untouched so re-running a phase never drops indexed data.
func (i *Indexer) EnsureIndex(ctx context.Context, name string) error {
	exists, err := i.IndexExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	resp, err := opensearchapi.IndicesCreateRequest{
		Index: name,
		Body:  strings.NewReader(catalogMapping),
	}.Do(ctx, i.client.GetClient())
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeExternalService, "failed to create index")
	}
	defer resp.Body.Close()
	if resp.IsError() {
		return errors.Newf(errors.ErrCodeExternalService, "index creation returned %s", resp.Status())
	}

	i.logger.Info("catalog index created", logging.String("index", name))
	return nil
}

// DeleteIndex removes the named index.  Absent indices are not an error.
func (i *Indexer) DeleteIndex(ctx context.Context, name string) error {
	resp, err := opensearchapi.IndicesDeleteRequest{Index: []string{name}}.Do(ctx, i.client.GetClient())
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeExternalService, "failed to delete index")
	}
	defer resp.Body.Close()
	if resp.StatusCode == 404 {
		return nil
	}
	if resp.IsError() {
		return errors.Newf(errors.ErrCodeExternalService, "index deletion returned %s", resp.Status())
	}
	i.logger.Warn("catalog index deleted", logging.String("index", name))
	return nil
}

// IndexCatalog bulk-indexes one catalog version, batching by the configured
// batch size.  Documents are keyed on identity key so re-indexing a version
// overwrites rather than duplicates.
func (i *Indexer) IndexCatalog(ctx context.Context, version string, entries []*compound.Record) (IndexStats, error) {
	stats := IndexStats{}
	name := i.IndexName(version)
	if err := i.EnsureIndex(ctx, name); err != nil {
		return stats, err
	}

	for start := 0; start < len(entries); start += i.batchSize {
		end := start + i.batchSize
		if end > len(entries) {
			end = len(entries)
		}
		indexed, failed, err := i.bulkIndex(ctx, name, entries[start:end])
		stats.Indexed += indexed
		stats.Failed += failed
		stats.Batches++
		if err != nil {
			return stats, err
		}
	}

	i.logger.Info("catalog indexed",
		logging.String("index", name),
		logging.Int("indexed", stats.Indexed),
		logging.Int("failed", stats.Failed),
		logging.Int("batches", stats.Batches))
	return stats, nil
}

func (i *Indexer) bulkIndex(ctx context.Context, index string, entries []*compound.Record) (indexed, failed int, err error) {
	var buf bytes.Buffer
	for _, entry := range entries {
		meta := map[string]map[string]string{"index": {"_index": index, "_id": entry.IdentityKey}}
		metaLine, merr := json.Marshal(meta)
		if merr != nil {
			return 0, 0, errors.Wrap(merr, errors.ErrCodeSerialization, "failed to marshal bulk action")
		}
		docLine, derr := json.Marshal(toDoc(entry))
		if derr != nil {
			return 0, 0, errors.Wrap(derr, errors.ErrCodeSerialization, "failed to marshal catalog document")
		}
		buf.Write(metaLine)
		buf.WriteByte('\n')
		buf.Write(docLine)
		buf.WriteByte('\n')
	}

	resp, err := opensearchapi.BulkRequest{Body: bytes.NewReader(buf.Bytes())}.Do(ctx, i.client.GetClient())
	if err != nil {
		return 0, len(entries), errors.Wrap(err, errors.ErrCodeExternalService, "bulk index request failed")
	}
	defer resp.Body.Close()
	if resp.IsError() {
		return 0, len(entries), errors.Newf(errors.ErrCodeExternalService, "bulk index returned %s", resp.Status())
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, len(entries), errors.Wrap(err, errors.ErrCodeExternalService, "failed to read bulk response")
	}

	var bulkResp struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			Status int `json:"status"`
			Error  *struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := json.Unmarshal(body, &bulkResp); err != nil {
		return 0, len(entries), errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode bulk response")
	}

	if !bulkResp.Errors {
		return len(entries), 0, nil
	}

	for _, item := range bulkResp.Items {
		for _, result := range item {
			if result.Status >= 200 && result.Status < 300 {
				indexed++
				continue
			}
			failed++
			if result.Error != nil {
				i.logger.Warn("document index failed",
					logging.String("type", result.Error.Type),
					logging.String("reason", result.Error.Reason))
			}
		}
	}
	return indexed, failed, nil
}

func toDoc(entry *compound.Record) catalogDoc {
	return catalogDoc{
		IdentityKey:      entry.IdentityKey,
		CASNumber:        entry.CASNumber,
		PreferredName:    entry.PreferredName,
		Names:            entry.Names,
		Status:           string(entry.Status),
		CASSource:        string(entry.CASSource),
		MolecularFormula: entry.Properties.MolecularFormula,
		MolecularWeight:  entry.Properties.MolecularWeight,
		SMILES:           entry.Properties.SMILES,
		PubChemCID:       entry.Properties.PubChemCID,
		IUPACName:        entry.Properties.IUPACName,
	}
}
