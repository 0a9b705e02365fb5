package model

import (
	"strconv"
	"strings"
)

// OtherBucket collects items whose grouping field is empty.
const OtherBucket = "기타"

// SearchStatistics aggregates one search result.
type SearchStatistics struct {
	TotalNotices         int            `json:"total_notices"`
	TotalBudget          int64          `json:"total_budget"`
	TotalBudgetFormatted string         `json:"total_budget_formatted"`
	NoticeTypes          map[string]int `json:"notice_types"`
	ContractMethods      map[string]int `json:"contract_methods"`
	Institutions         map[string]int `json:"institutions"`
}

// Statistics sums the assigned budgets (asignBdgtAmt of the original data; values that are
// not integers are skipped) and counts items by notice type, contract method and institution.
func Statistics(r *SearchResult) SearchStatistics {
	stats := SearchStatistics{
		NoticeTypes:     map[string]int{},
		ContractMethods: map[string]int{},
		Institutions:    map[string]int{},
	}
	if r == nil {
		stats.TotalBudgetFormatted = FormatCurrency("0")
		return stats
	}

	stats.TotalNotices = len(r.Items)
	for _, item := range r.Items {
		if amt, err := strconv.ParseInt(item.OriginalData.String("asignBdgtAmt"), 10, 64); err == nil {
			stats.TotalBudget += amt
		}
		stats.NoticeTypes[bucket(item.NtceKindNm)]++
		stats.ContractMethods[bucket(item.CntrctCnclsMthdNm)]++
		stats.Institutions[bucket(item.NtceInsttNm)]++
	}
	stats.TotalBudgetFormatted = FormatCurrency(strconv.FormatInt(stats.TotalBudget, 10))
	return stats
}

func bucket(s string) string {
	if strings.TrimSpace(s) == "" {
		return OtherBucket
	}
	return s
}
