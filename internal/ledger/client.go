package ledger

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/workmesh/marketmirror/internal/logger"
	"github.com/workmesh/marketmirror/pkg/config"
)

// Transaction is a raw ledger transaction as returned by the ledger node. The
// payload is opaque here; the decoder turns it into a typed event.
type Transaction struct {
	Hash      common.Hash
	Sequence  uint64
	OpTag     uint32
	Payload   []byte
	Timestamp int64
}

// Client fetches transactions from the ledger. Implementations must return
// transactions in ascending sequence order.
type Client interface {
	// FetchTransactions returns up to limit transactions for the contract
	// address with sequence strictly greater than sinceSeq.
	FetchTransactions(ctx context.Context, address string, sinceSeq uint64, limit int) ([]Transaction, error)
	Close()
}

// Compile-time check to ensure HTTPClient implements the Client interface.
var _ Client = (*HTTPClient)(nil)

// HTTPClient talks to a ledger node over its HTTP JSON API.
type HTTPClient struct {
	endpoint string
	http     *http.Client
	retry    *config.RetryConfig
	log      *logger.Logger
}

// NewHTTPClient creates a ledger client for the configured endpoint.
func NewHTTPClient(cfg *config.LedgerConfig, log *logger.Logger) (*HTTPClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("ledger config is required")
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("ledger endpoint is required")
	}

	timeout := 15 * time.Second
	if cfg.RequestTimeout.Duration > 0 {
		timeout = cfg.RequestTimeout.Duration
	}

	return &HTTPClient{
		endpoint: cfg.Endpoint,
		http:     &http.Client{Timeout: timeout},
		retry:    cfg.Retry,
		log:      log.WithComponent("ledger-client"),
	}, nil
}

// transactionJSON is the wire shape of a single transaction.
type transactionJSON struct {
	Hash      string `json:"hash"`
	Sequence  uint64 `json:"sequence"`
	OpTag     uint32 `json:"op_tag"`
	Payload   string `json:"payload"` // base64
	Timestamp int64  `json:"timestamp"`
}

type transactionsResponse struct {
	Transactions []transactionJSON `json:"transactions"`
}

// FetchTransactions returns up to limit transactions for address with sequence
// greater than sinceSeq, retrying transient failures with backoff.
func (c *HTTPClient) FetchTransactions(ctx context.Context, address string, sinceSeq uint64, limit int) ([]Transaction, error) {
	var txs []Transaction

	err := retryWithBackoff(ctx, c.retry, "fetch_transactions", func() error {
		var err error
		txs, err = c.fetchOnce(ctx, address, sinceSeq, limit)
		return err
	})
	if err != nil {
		FetchErrorsInc(address)
		return nil, err
	}

	FetchesInc(address, len(txs))
	return txs, nil
}

func (c *HTTPClient) fetchOnce(ctx context.Context, address string, sinceSeq uint64, limit int) ([]Transaction, error) {
	u := fmt.Sprintf("%s/v1/accounts/%s/transactions?after=%d&limit=%d",
		c.endpoint, url.PathEscape(address), sinceSeq, limit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build ledger request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ledger request failed: %w", err)
	}
	defer resp.Body.Close()
	FetchDuration(address, time.Since(start))

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("ledger returned status %d: %s", resp.StatusCode, string(body))
	}

	var decoded transactionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode ledger response: %w", err)
	}

	txs := make([]Transaction, 0, len(decoded.Transactions))
	for _, tx := range decoded.Transactions {
		payload, err := base64.StdEncoding.DecodeString(tx.Payload)
		if err != nil {
			return nil, fmt.Errorf("failed to decode payload of transaction %s: %w", tx.Hash, err)
		}
		txs = append(txs, Transaction{
			Hash:      common.HexToHash(tx.Hash),
			Sequence:  tx.Sequence,
			OpTag:     tx.OpTag,
			Payload:   payload,
			Timestamp: tx.Timestamp,
		})
	}

	// The ledger guarantees ascending sequence order per account; a violation
	// here means a broken node, not a transient fault.
	for i := 1; i < len(txs); i++ {
		if txs[i].Sequence <= txs[i-1].Sequence {
			return nil, fmt.Errorf("ledger returned out-of-order sequences %d and %d for %s",
				txs[i-1].Sequence, txs[i].Sequence, address)
		}
	}

	return txs, nil
}

// Close releases idle connections held by the underlying HTTP client.
func (c *HTTPClient) Close() {
	c.http.CloseIdleConnections()
}
