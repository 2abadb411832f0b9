package logview

import "github.com/noah-isme/attendance-dashboard-api/internal/models"

// DefaultPageSize is the number of rows on one dashboard page.
const DefaultPageSize = 8

// Page is one slice of a sorted batch.
type Page struct {
	Items      []models.LogRecord
	Page       int
	PageSize   int
	TotalPages int
	TotalCount int
}

// TotalPages returns ceil(count/pageSize), never less than 1.
func TotalPages(count, pageSize int) int {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if count <= 0 {
		return 1
	}
	return (count + pageSize - 1) / pageSize
}

// Paginate slices records for a 1-based page. Pages outside [1, TotalPages]
// yield empty items rather than an error.
func Paginate(records []models.LogRecord, page, pageSize int) Page {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	result := Page{
		Items:      []models.LogRecord{},
		Page:       page,
		PageSize:   pageSize,
		TotalPages: TotalPages(len(records), pageSize),
		TotalCount: len(records),
	}
	if page < 1 || page > result.TotalPages {
		return result
	}
	start := (page - 1) * pageSize
	if start >= len(records) {
		return result
	}
	end := start + pageSize
	if end > len(records) {
		end = len(records)
	}
	result.Items = records[start:end]
	return result
}

// PreviousPage moves back one page, never below 1.
func PreviousPage(page int) int {
	if page <= 1 {
		return 1
	}
	return page - 1
}

// NextPage moves forward one page, never beyond totalPages (0 counts as 1).
func NextPage(page, totalPages int) int {
	if totalPages < 1 {
		totalPages = 1
	}
	if page >= totalPages {
		return totalPages
	}
	if page < 1 {
		return 1
	}
	return page + 1
}
