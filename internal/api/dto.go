package api

import (
	"github.com/starford/idmlkit/internal/catalog"
	"github.com/starford/idmlkit/internal/docservice"
	"github.com/starford/idmlkit/internal/models"
)

// PackageDetail is the full package response type (aliased from the domain layer).
type PackageDetail = docservice.PackageDetail

// PackageListResponse wraps paginated package listings.
type PackageListResponse struct {
	Packages []models.PackageSummary `json:"packages" validate:"required"`
	Total    int                     `json:"total" example:"42" validate:"required"`
}

// TextRangeRequest is the request body for adding a text range.
type TextRangeRequest = docservice.TextRangeRequest

// TextRangeResult is returned after a text range was committed.
type TextRangeResult = docservice.TextRangeResult

// SetElementTextRequest is the request body for replacing element text.
type SetElementTextRequest struct {
	Text string `json:"text" example:"Hello\nWorld"`
}

// ElementResult is returned after element text was committed.
type ElementResult = docservice.ElementResult

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []catalog.SearchResult `json:"results" validate:"required"`
}

// TransactionListResponse wraps journaled transactions.
type TransactionListResponse struct {
	Transactions []catalog.TxRow `json:"transactions" validate:"required"`
}

// SweepResponse reports how many retained working copies were removed.
type SweepResponse struct {
	Reclaimed int `json:"reclaimed" example:"3"`
}
