package task

import (
	"slices"
	"strings"
	"time"
)

// SortOrder selects how a listing is ordered by update time.
type SortOrder int

const (
	SortByUpdatedDesc SortOrder = iota // newest first, the default
	SortByUpdatedAsc
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ListOptions is the filter shared by Store.List and Store.Stats.
// Zero-valued fields match every task.
type ListOptions struct {
	Limit      int
	Offset     int
	Statuses   []Status
	UpdatedGTE int64 // unix seconds, inclusive
	UpdatedLTE int64 // unix seconds, inclusive
	HasResult  *bool
	Order      SortOrder
	Query      string
	Action     string
	RoomID     string
	UserID     string
	ErrorCode  string
}

func (opts *ListOptions) applyDefaults() {
	if opts.Limit <= 0 {
		opts.Limit = defaultPageSize
	}
	opts.Limit = min(opts.Limit, maxPageSize)
	opts.Offset = max(opts.Offset, 0)
	opts.Statuses = normalizeStatuses(opts.Statuses)
	if opts.Order != SortByUpdatedAsc {
		opts.Order = SortByUpdatedDesc
	}

	// Action names and error codes are stored upper-case.
	opts.Action = strings.ToUpper(strings.TrimSpace(opts.Action))
	opts.ErrorCode = strings.ToUpper(strings.TrimSpace(opts.ErrorCode))
	opts.Query = strings.TrimSpace(opts.Query)
	opts.RoomID = strings.TrimSpace(opts.RoomID)
	opts.UserID = strings.TrimSpace(opts.UserID)
}

// ListOption sets one field of ListOptions.
type ListOption func(*ListOptions)

func WithLimit(limit int) ListOption {
	return func(opts *ListOptions) { opts.Limit = limit }
}

func WithOffset(offset int) ListOption {
	return func(opts *ListOptions) { opts.Offset = offset }
}

// WithStatuses replaces the status filter. Unknown statuses are ignored.
func WithStatuses(statuses ...Status) ListOption {
	return func(opts *ListOptions) { opts.Statuses = slices.Clone(statuses) }
}

// WithUpdatedSince keeps tasks updated at or after ts. A zero ts clears the bound.
func WithUpdatedSince(ts time.Time) ListOption {
	return func(opts *ListOptions) { opts.UpdatedGTE = unixOrZero(ts) }
}

// WithUpdatedUntil keeps tasks updated at or before ts. A zero ts clears the bound.
func WithUpdatedUntil(ts time.Time) ListOption {
	return func(opts *ListOptions) { opts.UpdatedLTE = unixOrZero(ts) }
}

func unixOrZero(ts time.Time) int64 {
	if ts.IsZero() {
		return 0
	}
	return ts.Unix()
}

// WithResultPresence keeps tasks that have (or lack) delivered text.
func WithResultPresence(hasResult bool) ListOption {
	return func(opts *ListOptions) { opts.HasResult = &hasResult }
}

func WithSortOrder(order SortOrder) ListOption {
	return func(opts *ListOptions) { opts.Order = order }
}

// WithQuery matches a case-insensitive substring of the action name, the
// input message or the delivered text.
func WithQuery(query string) ListOption {
	return func(opts *ListOptions) { opts.Query = query }
}

// WithAction accepts the action name in any case.
func WithAction(name string) ListOption {
	return func(opts *ListOptions) { opts.Action = name }
}

func WithRoom(roomID string) ListOption {
	return func(opts *ListOptions) { opts.RoomID = roomID }
}

func WithUser(userID string) ListOption {
	return func(opts *ListOptions) { opts.UserID = userID }
}

// WithErrorCode keeps tasks whose last failure carried code, such as
// API_ERROR or VALIDATION_ERROR.
func WithErrorCode(code string) ListOption {
	return func(opts *ListOptions) { opts.ErrorCode = code }
}

// BuildListOptions returns the effective options after defaults, so callers
// can echo the page they were served.
func BuildListOptions(opts ...ListOption) ListOptions {
	return buildListOptions(opts)
}

func buildListOptions(opts []ListOption) ListOptions {
	var options ListOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	options.applyDefaults()
	return options
}

// normalizeStatuses drops unknown and repeated statuses, keeping first-seen
// order. It returns nil when nothing valid remains.
func normalizeStatuses(input []Status) []Status {
	var result []Status
	for _, status := range input {
		if IsValidStatus(status) && !slices.Contains(result, status) {
			result = append(result, status)
		}
	}
	return result
}
