package aliexpress

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"affiliate-poster/config"
	"affiliate-poster/utils"
)

func testConfig(endpoint string) *config.Config {
	return &config.Config{
		AliAppKey:     "app",
		AliSecret:     "secret",
		AliTrackingID: "track",
		AliEndpoint:   endpoint,
		AliCurrency:   "USD",
		AliLanguage:   "EN",
		AliSort:       "LAST_VOLUME_DESC",
		AliPageSize:   5,
		MaxRetries:    3,
		RetryBase:     time.Millisecond,
		RetryMax:      5 * time.Millisecond,
		HTTPTimeout:   5 * time.Second,
	}
}

func TestSignDeterministic(t *testing.T) {
	params := map[string]string{
		"app_key":   "app",
		"timestamp": "1700000000000",
		"method":    methodProductQuery,
		"keywords":  "Portable Power Bank",
	}

	first := Sign(params, "secret")
	for i := 0; i < 10; i++ {
		if got := Sign(params, "secret"); got != first {
			t.Fatalf("signature changed between calls: %s vs %s", first, got)
		}
	}
	if first != strings.ToUpper(first) {
		t.Errorf("signature should be uppercase hex, got %s", first)
	}
	if len(first) != 64 {
		t.Errorf("signature length: got %d, want 64", len(first))
	}
}

func TestSignSortedConcatenation(t *testing.T) {
	params := map[string]string{"b": "2", "a": "1", "c": "3"}

	mac := hmac.New(sha256.New, []byte("k"))
	mac.Write([]byte("a1b2c3"))
	want := strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))

	if got := Sign(params, "k"); got != want {
		t.Errorf("Sign: got %s, want %s", got, want)
	}
}

func TestSignIgnoresSignParam(t *testing.T) {
	params := map[string]string{"a": "1"}
	plain := Sign(params, "k")
	params["sign"] = "OLD"
	if got := Sign(params, "k"); got != plain {
		t.Errorf("existing sign param changed the signature")
	}
}

func TestSignDependsOnSecret(t *testing.T) {
	params := map[string]string{"a": "1"}
	if Sign(params, "one") == Sign(params, "two") {
		t.Error("different secrets produced the same signature")
	}
}

func TestParamsKeywordAndCategory(t *testing.T) {
	c := New(testConfig("http://unused"), utils.NopLogger())
	ts := time.UnixMilli(1700000000123)

	p := c.Params(Query{Keyword: "Smart Bulb"}, ts)
	if p["keywords"] != "Smart Bulb" || p["category_ids"] != "" {
		t.Errorf("keyword query params wrong: %v", p)
	}
	if p["timestamp"] != "1700000000123" {
		t.Errorf("timestamp: got %q", p["timestamp"])
	}
	if p["sort"] != "LAST_VOLUME_DESC" || p["sign_method"] != "sha256" {
		t.Errorf("static params wrong: %v", p)
	}
	if p["sign"] != Sign(p, "secret") {
		t.Error("sign param does not match recomputed signature")
	}

	p = c.Params(Query{CategoryID: "44"}, ts)
	if p["category_ids"] != "44" {
		t.Errorf("category_ids: got %q", p["category_ids"])
	}
	if _, ok := p["keywords"]; ok {
		t.Error("category query should not carry keywords")
	}
}

func TestParamsOmitsEmptySort(t *testing.T) {
	cfg := testConfig("http://unused")
	cfg.AliSort = ""
	p := New(cfg, utils.NopLogger()).Params(Query{Keyword: "x"}, time.Now())
	if _, ok := p["sort"]; ok {
		t.Error("empty sort should be omitted")
	}
}

const productsBody = `{
  "aliexpress_affiliate_product_query_response": {
    "resp_result": {
      "resp_code": 200,
      "resp_msg": "Call succeeds",
      "result": {
        "current_record_count": 2,
        "products": {
          "product": [
            {"product_id": 1005006123456789, "product_title": "Keyboard X", "target_sale_price": "19.99",
             "target_sale_price_currency": "USD", "evaluate_rate": "96.5%",
             "product_main_image_url": "//ae01.alicdn.com/kf/x.jpg", "promotion_link": "https://s.click.aliexpress.com/e/abc"},
            {"product_id": "42", "product_title": "Mouse Y", "target_sale_price": "5.00"}
          ]
        }
      }
    }
  }
}`

func TestSearchParsesProducts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method: got %s, want POST", r.Method)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
			return
		}
		params := map[string]string{}
		for k := range r.PostForm {
			params[k] = r.PostForm.Get(k)
		}
		if params["sign"] != Sign(params, "secret") {
			t.Errorf("server could not verify signature")
		}
		if params["keywords"] != "Best Budget Mechanical Keyboard" {
			t.Errorf("keywords: got %q", params["keywords"])
		}
		w.Write([]byte(productsBody))
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL), utils.NopLogger())
	products, err := c.Search(context.Background(), Query{Keyword: "Best Budget Mechanical Keyboard"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(products) != 2 {
		t.Fatalf("products: got %d, want 2", len(products))
	}
	if products[0].ID != "1005006123456789" {
		t.Errorf("numeric id: got %q", products[0].ID)
	}
	if products[1].ID != "42" {
		t.Errorf("string id: got %q", products[1].ID)
	}
	if products[0].PromotionLink != "https://s.click.aliexpress.com/e/abc" {
		t.Errorf("promotion link: got %q", products[0].PromotionLink)
	}
}

func TestSearchNoProductsIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"aliexpress_affiliate_product_query_response":{"resp_result":{"resp_code":200,"result":{"current_record_count":0}}}}`))
	}))
	defer srv.Close()

	products, err := New(testConfig(srv.URL), utils.NopLogger()).Search(context.Background(), Query{Keyword: "nothing"})
	if err != nil {
		t.Fatalf("expected nil error for empty result, got %v", err)
	}
	if len(products) != 0 {
		t.Errorf("expected no products, got %d", len(products))
	}
}

func TestSearchFailures(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
	}{
		{"error envelope", `{"error_response":{"code":"IncompleteSignature","msg":"bad sign"}}`, ErrAPI},
		{"bad resp code", `{"aliexpress_affiliate_product_query_response":{"resp_result":{"resp_code":402,"resp_msg":"invalid"}}}`, ErrAPI},
		{"malformed json", `<html>oops</html>`, ErrMalformedResponse},
		{"missing keys", `{"something_else":{}}`, ErrMalformedResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := New(testConfig(srv.URL), utils.NopLogger()).Search(context.Background(), Query{Keyword: "x"})
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
			if atomic.LoadInt32(&calls) != 1 {
				t.Errorf("non-transient failure retried: %d calls", calls)
			}
		})
	}
}

func TestSearchRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(productsBody))
	}))
	defer srv.Close()

	products, err := New(testConfig(srv.URL), utils.NopLogger()).Search(context.Background(), Query{Keyword: "x"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(products) != 2 || atomic.LoadInt32(&calls) != 3 {
		t.Errorf("got %d products after %d calls; want 2 after 3", len(products), calls)
	}
}

func TestSearchNetworkErrorIsReported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	products, err := New(testConfig(url), utils.NopLogger()).Search(context.Background(), Query{Keyword: "x"})
	if err == nil {
		t.Fatal("expected error for unreachable endpoint")
	}
	if products != nil {
		t.Errorf("expected nil products on failure, got %v", products)
	}
}
