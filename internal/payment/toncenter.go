package payment

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

const (
	ProviderToncenter = "toncenter"

	mainnetEndpoint = "https://toncenter.com/api/v2"
	testnetEndpoint = "https://testnet.toncenter.com/api/v2"

	requestTimeout = 10 * time.Second
)

// ErrUnsupportedProvider means the configured transaction-history provider is
// not one this adapter knows how to talk to. This is a deployment mistake,
// not a runtime condition, so it surfaces at construction time.
var ErrUnsupportedProvider = errors.New("unsupported transaction history provider")

type ClientConfig struct {
	Provider string `yaml:"provider"`
	Network  string `yaml:"network"`
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"apiKey"`
}

// Client reads recent transaction history for an address from the toncenter
// HTTP API. It only ever reads; verification rules live in Verifier.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Provider != ProviderToncenter {
		return nil, errors.Wrapf(ErrUnsupportedProvider, "provider %q", cfg.Provider)
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = mainnetEndpoint
		if cfg.Network == "testnet" {
			endpoint = testnetEndpoint
		}
	}

	return &Client{
		endpoint: endpoint,
		apiKey:   cfg.APIKey,
		http:     &http.Client{Timeout: requestTimeout},
	}, nil
}

type transactionsResponse struct {
	OK     bool             `json:"ok"`
	Result []rawTransaction `json:"result"`
	Error  string           `json:"error"`
}

// Transactions fetches up to limit recent transactions for the address and
// normalizes them. Network failures and non-2xx responses are hard errors,
// distinct from an empty history.
func (c *Client) Transactions(ctx context.Context, address string, limit int) ([]Transaction, error) {
	q := url.Values{}
	q.Set("address", address)
	q.Set("limit", strconv.Itoa(limit))
	if c.apiKey != "" {
		q.Set("api_key", c.apiKey)
	}

	reqURL := fmt.Sprintf("%s/getTransactions?%s", c.endpoint, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build transactions request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "transaction history request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read transaction history response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.Errorf("transaction history provider returned status %d: %s",
			resp.StatusCode, string(body))
	}

	var parsed transactionsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, errors.Wrap(err, "failed to parse transaction history response")
	}
	if !parsed.OK {
		return nil, errors.Errorf("transaction history provider error: %s", parsed.Error)
	}

	txs := make([]Transaction, len(parsed.Result))
	for i, raw := range parsed.Result {
		txs[i] = normalize(raw)
	}
	return txs, nil
}
