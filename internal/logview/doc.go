// Package logview implements the attendance log view model: records are
// filtered by an inclusive date range, ordered by one of a closed set of
// sort options and sliced into fixed-size pages, always in that order.
//
// The pure stages (FilterByRange, SortRecords, Paginate) never mutate their
// input. ViewModel composes them over the latest fetched batch for one viewer
// and applies fetch results with last-request-wins semantics.
package logview
