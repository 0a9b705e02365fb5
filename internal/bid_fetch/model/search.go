package model

import (
	"errors"
	"fmt"
	"time"
	"unicode/utf8"
)

// ErrInvalidParams marks search input rejected before any network or disk activity.
var ErrInvalidParams = errors.New("invalid search parameters")

const (
	MaxKeywordLen = 100
	MinRows       = 1
	MaxRows       = 500
	DefaultRows   = 100
	DateLayout    = "20060102"
	defaultPageNo = 1
)

// SearchParams is one search request.
type SearchParams struct {
	Keyword     string `json:"keyword" bson:"keyword"`
	StartDate   string `json:"start_date" bson:"start_date"`
	EndDate     string `json:"end_date" bson:"end_date"`
	NumRows     int    `json:"num_rows" bson:"num_rows"`
	PageNo      int    `json:"page_no,omitempty" bson:"page_no,omitempty"`
	Institution string `json:"institution,omitempty" bson:"institution,omitempty"`
}

// WithDefaults fills NumRows and PageNo when unset.
func (p SearchParams) WithDefaults() SearchParams {
	if p.NumRows == 0 {
		p.NumRows = DefaultRows
	}
	if p.PageNo == 0 {
		p.PageNo = defaultPageNo
	}
	return p
}

// Validate checks keyword length, 8-digit dates with start <= end, and the row range.
func (p SearchParams) Validate() error {
	n := utf8.RuneCountInString(p.Keyword)
	if n < 1 || n > MaxKeywordLen {
		return fmt.Errorf("%w: keyword must be 1-%d characters", ErrInvalidParams, MaxKeywordLen)
	}
	start, err := ParseDate(p.StartDate)
	if err != nil {
		return fmt.Errorf("%w: start_date: %v", ErrInvalidParams, err)
	}
	end, err := ParseDate(p.EndDate)
	if err != nil {
		return fmt.Errorf("%w: end_date: %v", ErrInvalidParams, err)
	}
	if start.After(end) {
		return fmt.Errorf("%w: start_date is after end_date", ErrInvalidParams)
	}
	if p.NumRows < MinRows || p.NumRows > MaxRows {
		return fmt.Errorf("%w: num_rows must be %d-%d", ErrInvalidParams, MinRows, MaxRows)
	}
	return nil
}

// ParseDate parses an 8-digit YYYYMMDD date.
func ParseDate(s string) (time.Time, error) {
	if len(s) != 8 {
		return time.Time{}, fmt.Errorf("%q is not YYYYMMDD", s)
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return time.Time{}, fmt.Errorf("%q is not YYYYMMDD", s)
		}
	}
	return time.Parse(DateLayout, s)
}

// SearchResult is everything one search produced.
type SearchResult struct {
	SearchID     string       `json:"search_id" bson:"_id"`
	SearchParams SearchParams `json:"search_params" bson:"search_params"`
	SearchDir    string       `json:"search_dir" bson:"search_dir"`
	JSONFile     string       `json:"json_file" bson:"json_file"`
	ReportFile   string       `json:"report_file,omitempty" bson:"report_file,omitempty"`
	TotalCount   int          `json:"total_count" bson:"total_count"`
	Items        []BidItem    `json:"items" bson:"items"`
	Timestamp    time.Time    `json:"timestamp" bson:"timestamp"`
}

// SearchSummary is a SearchResult without its items.
type SearchSummary struct {
	SearchID     string       `json:"search_id" bson:"_id"`
	SearchParams SearchParams `json:"search_params" bson:"search_params"`
	TotalCount   int          `json:"total_count" bson:"total_count"`
	ItemCount    int          `json:"item_count" bson:"item_count"`
	Timestamp    time.Time    `json:"timestamp" bson:"timestamp"`
}

// Summary drops the items.
func (r *SearchResult) Summary() SearchSummary {
	return SearchSummary{
		SearchID:     r.SearchID,
		SearchParams: r.SearchParams,
		TotalCount:   r.TotalCount,
		ItemCount:    len(r.Items),
		Timestamp:    r.Timestamp,
	}
}

// SearchReport is the JSON written to the reports directory after a search.
type SearchReport struct {
	SearchID      string    `json:"search_id"`
	SearchKeyword string    `json:"search_keyword"`
	SearchDate    time.Time `json:"search_date"`
	TotalBids     int       `json:"total_bids_found"`
	Results       []BidItem `json:"results"`
}
