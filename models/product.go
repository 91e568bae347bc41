package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// ProductID is the affiliate API's opaque product identifier. The API sends
// it either as a JSON number or a string; both decode to the same value.
type ProductID string

func (id *ProductID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ProductID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("product id: %w", err)
	}
	*id = ProductID(n.String())
	return nil
}

func (id ProductID) String() string { return string(id) }

// Product is one item returned by the affiliate product query.
// It is never modified after it has been fetched.
type Product struct {
	ID            ProductID `json:"product_id"`
	Title         string    `json:"product_title"`
	SalePrice     string    `json:"target_sale_price"`
	Currency      string    `json:"target_sale_price_currency"`
	Rating        string    `json:"evaluate_rate"`
	ImageURL      string    `json:"product_main_image_url"`
	PromotionLink string    `json:"promotion_link"`
}

// Post is a rendered Markdown blog post ready to be written to disk.
type Post struct {
	ProductID ProductID
	Title     string
	Date      time.Time
	FileName  string
	Body      string
	Fallback  bool
}

// RunReport holds the counters of a single pipeline run.
type RunReport struct {
	RunID         string
	StartedAt     time.Time
	FinishedAt    time.Time
	Target        int
	Queries       int
	FailedQueries int
	EmptyResults  int
	Duplicates    int
	Skipped       int
	Posted        int
	Fallbacks     int
	Files         []string
	Terms         []string
}
