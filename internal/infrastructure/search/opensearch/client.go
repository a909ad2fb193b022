package opensearch

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"

	opensearchgo "github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/turtacn/FoodSafety-MS-KB/internal/config"
	"github.com/turtacn/FoodSafety-MS-KB/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/FoodSafety-MS-KB/pkg/errors"
)

// Client wraps the OpenSearch connection used by the catalog indexer.
type Client struct {
	client *opensearchgo.Client
	logger logging.Logger
}

// NewClient builds a Client from the opensearch section of the configuration
// and verifies connectivity with a ping.
func NewClient(ctx context.Context, cfg config.OpenSearchConfig, logger logging.Logger) (*Client, error) {
	if len(cfg.Addresses) == 0 {
		return nil, errors.New(errors.ErrCodeConfigInvalid, "opensearch addresses required")
	}

	transport := &http.Transport{
		MaxIdleConnsPerHost: 10,
	}
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	osClient, err := opensearchgo.NewClient(opensearchgo.Config{
		Addresses:     cfg.Addresses,
		Username:      cfg.User,
		Password:      cfg.Password,
		MaxRetries:    3,
		RetryBackoff:  func(int) time.Duration { return 100 * time.Millisecond },
		RetryOnStatus: []int{429, 502, 503, 504},
		Transport:     transport,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to create opensearch client")
	}

	c := &Client{client: osClient, logger: logger}
	if err := c.Ping(ctx); err != nil {
		return nil, err
	}

	logger.Info("opensearch connected", logging.Int("addresses", len(cfg.Addresses)))
	return c, nil
}

// Ping checks cluster reachability.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := opensearchapi.PingRequest{}.Do(ctx, c.client)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeServiceUnavailable, "opensearch ping failed")
	}
	defer resp.Body.Close()
	if resp.IsError() {
		return errors.Newf(errors.ErrCodeServiceUnavailable, "opensearch ping returned %d", resp.StatusCode)
	}
	return nil
}

// GetClient exposes the underlying transport for request execution.
func (c *Client) GetClient() *opensearchgo.Client {
	return c.client
}
