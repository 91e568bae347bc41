package aliexpress

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"affiliate-poster/config"
	"affiliate-poster/models"
	"affiliate-poster/utils"
)

const (
	methodProductQuery = "aliexpress.affiliate.product.query"
	responseKey        = "aliexpress_affiliate_product_query_response"
	signMethod         = "sha256"
)

var (
	// ErrAPI is returned when the API answers with an error envelope or a
	// non-success result code.
	ErrAPI = errors.New("aliexpress: api error")
	// ErrMalformedResponse is returned when the body is not the expected JSON.
	ErrMalformedResponse = errors.New("aliexpress: malformed response")
)

// Query describes one product search. Exactly one of Keyword or CategoryID
// is expected to be set.
type Query struct {
	Keyword    string
	CategoryID string
}

func (q Query) String() string {
	if q.CategoryID != "" {
		return "category:" + q.CategoryID
	}
	return q.Keyword
}

// Client queries the AliExpress affiliate product API.
type Client struct {
	cfg      *config.Config
	logger   *utils.Logger
	http     *http.Client
	throttle *utils.Throttle
	retry    *utils.RetryConfig
	now      func() time.Time
}

// New creates a ready-to-use Client.
func New(cfg *config.Config, logger *utils.Logger) *Client {
	return &Client{
		cfg:      cfg,
		logger:   logger,
		http:     &http.Client{Timeout: cfg.HTTPTimeout},
		throttle: utils.NewThrottle(cfg.RateLimit),
		retry: &utils.RetryConfig{
			MaxAttempts: cfg.MaxRetries,
			Backoff:     utils.Backoff{Base: cfg.RetryBase, Max: cfg.RetryMax},
			Logger:      logger,
		},
		now: time.Now,
	}
}

// Sign computes the request signature: parameters sorted by name,
// concatenated as name+value with no separator, HMAC-SHA256 keyed by secret,
// rendered as uppercase hex. The "sign" parameter itself is never signed.
func Sign(params map[string]string, secret string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == "sign" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(params[k])
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(b.String()))
	return strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))
}

// Params builds the signed parameter set for q at time ts.
func (c *Client) Params(q Query, ts time.Time) map[string]string {
	params := map[string]string{
		"app_key":         c.cfg.AliAppKey,
		"timestamp":       strconv.FormatInt(ts.UnixMilli(), 10),
		"sign_method":     signMethod,
		"method":          methodProductQuery,
		"target_currency": c.cfg.AliCurrency,
		"target_language": c.cfg.AliLanguage,
		"tracking_id":     c.cfg.AliTrackingID,
		"page_size":       strconv.Itoa(c.cfg.AliPageSize),
	}
	if q.CategoryID != "" {
		params["category_ids"] = q.CategoryID
	} else {
		params["keywords"] = q.Keyword
	}
	if c.cfg.AliSort != "" {
		params["sort"] = c.cfg.AliSort
	}
	params["sign"] = Sign(params, c.cfg.AliSecret)
	return params
}

// Search runs q against the API. An empty slice with a nil error means the
// API answered and matched nothing; a non-nil error means the request failed.
func (c *Client) Search(ctx context.Context, q Query) ([]models.Product, error) {
	if err := c.throttle.Wait(ctx); err != nil {
		return nil, err
	}

	var products []models.Product
	err := c.retry.Do(ctx, "product-query", func() error {
		var err error
		products, err = c.post(ctx, c.Params(q, c.now()))
		return err
	})
	if err != nil {
		return nil, err
	}

	c.logger.Debug("[aliexpress] %q returned %d products", q.String(), len(products))
	return products, nil
}

type queryResponse struct {
	ErrorResponse *struct {
		Code      string `json:"code"`
		Msg       string `json:"msg"`
		RequestID string `json:"request_id"`
	} `json:"error_response"`
	Query *struct {
		RespResult *struct {
			RespCode int    `json:"resp_code"`
			RespMsg  string `json:"resp_msg"`
			Result   *struct {
				CurrentRecordCount int `json:"current_record_count"`
				TotalRecordCount   int `json:"total_record_count"`
				Products           *struct {
					Product []models.Product `json:"product"`
				} `json:"products"`
			} `json:"result"`
		} `json:"resp_result"`
	} `json:"aliexpress_affiliate_product_query_response"`
}

func (c *Client) post(ctx context.Context, params map[string]string) ([]models.Product, error) {
	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.AliEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, utils.Permanent(fmt.Errorf("aliexpress: build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded;charset=utf-8")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, utils.Permanent(ctx.Err())
		}
		return nil, fmt.Errorf("aliexpress: request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("aliexpress: read body: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, fmt.Errorf("aliexpress: http status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, utils.Permanent(fmt.Errorf("%w: http status %d", ErrAPI, resp.StatusCode))
	}

	return parseResponse(body)
}

func parseResponse(body []byte) ([]models.Product, error) {
	var r queryResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, utils.Permanent(fmt.Errorf("%w: %v", ErrMalformedResponse, err))
	}

	if r.ErrorResponse != nil {
		return nil, utils.Permanent(fmt.Errorf("%w: %s %s", ErrAPI, r.ErrorResponse.Code, r.ErrorResponse.Msg))
	}
	if r.Query == nil || r.Query.RespResult == nil {
		return nil, utils.Permanent(fmt.Errorf("%w: missing %s.resp_result", ErrMalformedResponse, responseKey))
	}

	rr := r.Query.RespResult
	if rr.RespCode != 0 && rr.RespCode != 200 {
		return nil, utils.Permanent(fmt.Errorf("%w: resp_code %d %s", ErrAPI, rr.RespCode, rr.RespMsg))
	}

	// A successful answer with no matches omits result or products entirely.
	if rr.Result == nil || rr.Result.Products == nil {
		return []models.Product{}, nil
	}
	return rr.Result.Products.Product, nil
}
