// Package store defines the generic client the pipeline uses to reach the
// persistent store: select/insert/update against named relations plus a
// change subscription keyed by relation and operation.
package store

import (
	"context"
)

// Relation names a table in the store.
type Relation string

// Relations the pipeline reads and writes.
const (
	RelRules  Relation = "lead_scoring_rules"
	RelEvents Relation = "lead_behavior_events"
	RelScores Relation = "lead_scores"
	RelAlerts Relation = "lead_alerts"
)

// Known reports whether r is one of the pipeline relations.
func (r Relation) Known() bool {
	switch r {
	case RelRules, RelEvents, RelScores, RelAlerts:
		return true
	}
	return false
}

// FilterOp is a comparison used in a Filter.
type FilterOp string

const (
	OpEq     FilterOp = "eq"
	OpNeq    FilterOp = "neq"
	OpGt     FilterOp = "gt"
	OpGte    FilterOp = "gte"
	OpLt     FilterOp = "lt"
	OpLte    FilterOp = "lte"
	OpIsNull FilterOp = "is_null"
)

// Filter restricts a query to rows where Column Op Value holds.
type Filter struct {
	Column string
	Op     FilterOp
	Value  any
}

// Eq is shorthand for an equality filter.
func Eq(column string, value any) Filter { return Filter{Column: column, Op: OpEq, Value: value} }

// Order sorts query results by Column.
type Order struct {
	Column string
	Desc   bool
}

// Query selects rows from a relation. Zero Limit means no limit; empty
// Columns selects every column.
type Query struct {
	Relation Relation
	Filters  []Filter
	Order    []Order
	Limit    int
	Columns  []string
}

// ChangeOp is the kind of write reported by a change notification.
type ChangeOp string

const (
	ChangeInsert ChangeOp = "INSERT"
	ChangeUpdate ChangeOp = "UPDATE"
)

// ChangeFilter selects notifications by relation and operation.
type ChangeFilter struct {
	Relation Relation
	Op       ChangeOp
}

// Change is one write observed on the store. Old is nil for inserts.
type Change struct {
	Relation Relation
	Op       ChangeOp
	New      Row
	Old      Row
}

// Matches reports whether c is selected by any of filters.
func (c Change) Matches(filters []ChangeFilter) bool {
	for _, f := range filters {
		if f.Relation == c.Relation && f.Op == c.Op {
			return true
		}
	}
	return false
}

// Status is the state reported by a change subscription.
type Status int

const (
	StatusConnecting Status = iota
	StatusSubscribed
	StatusError
	StatusClosed
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusSubscribed:
		return "subscribed"
	case StatusError:
		return "error"
	case StatusClosed:
		return "closed"
	}
	return "unknown"
}

// ChangeHandler receives matching changes.
type ChangeHandler func(Change)

// StatusHandler receives subscription status transitions. err is set for StatusError.
type StatusHandler func(Status, error)

// Subscription is an open change feed.
type Subscription interface {
	Close() error
}

// Client is the store surface. Errors are *errs.Error values classified by kind.
type Client interface {
	Select(ctx context.Context, q Query) ([]Row, error)
	Insert(ctx context.Context, rel Relation, row Row) (Row, error)
	// Update applies patch to every row matching filters and returns the updated rows.
	Update(ctx context.Context, rel Relation, filters []Filter, patch Row) ([]Row, error)
	Subscribe(ctx context.Context, filters []ChangeFilter, onChange ChangeHandler, onStatus StatusHandler) (Subscription, error)
}
