// Package postgres implements store.Client on PostgreSQL through lib/pq.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/okian/leadpulse/internal/adapters/store"
	"github.com/okian/leadpulse/internal/domain/errs"
	"github.com/okian/leadpulse/pkg/logger"
)

//go:embed migrations/001_leadpulse.sql
var migration string

// Client talks to PostgreSQL.
type Client struct {
	db           *sql.DB
	dsn          string
	channel      string
	minReconnect time.Duration
	maxReconnect time.Duration
	log          logger.Logger
}

var _ store.Client = (*Client)(nil)

// New wraps an open database handle.
func New(db *sql.DB, opts ...Option) *Client {
	c := &Client{
		db:           db,
		channel:      "lead_changes",
		minReconnect: 10 * time.Second,
		maxReconnect: time.Minute,
		log:          logger.Get().Named("postgres"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string, opts ...Option) (*Client, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, classify("store.open", "", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, classify("store.open", "", err)
	}
	return New(db, append([]Option{WithDSN(dsn)}, opts...)...), nil
}

// Close closes the database handle.
func (c *Client) Close() error {
	return c.db.Close()
}

// Migrate creates the relations and triggers the pipeline depends on.
func (c *Client) Migrate(ctx context.Context) error {
	ddl := strings.ReplaceAll(migration, "{{channel}}", pq.QuoteLiteral(c.channel))
	if _, err := c.db.ExecContext(ctx, ddl); err != nil {
		return classify("store.migrate", "", err)
	}
	return nil
}

// Select implements store.Client.
func (c *Client) Select(ctx context.Context, q store.Query) ([]store.Row, error) {
	const op = "store.select"
	query, args, err := buildSelect(q)
	if err != nil {
		return nil, err
	}
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(op, q.Relation, err)
	}
	out, err := scanRows(rows)
	return out, classify(op, q.Relation, err)
}

// Insert implements store.Client.
func (c *Client) Insert(ctx context.Context, rel store.Relation, row store.Row) (store.Row, error) {
	const op = "store.insert"
	query, args, err := buildInsert(rel, row)
	if err != nil {
		return nil, err
	}
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(op, rel, err)
	}
	out, err := scanRows(rows)
	if err != nil {
		return nil, classify(op, rel, err)
	}
	if len(out) == 0 {
		return nil, errs.Database(op, "", fmt.Errorf("insert into %s returned no row", rel), nil)
	}
	return out[0], nil
}

// Update implements store.Client.
func (c *Client) Update(ctx context.Context, rel store.Relation, filters []store.Filter, patch store.Row) ([]store.Row, error) {
	const op = "store.update"
	query, args, err := buildUpdate(rel, filters, patch)
	if err != nil {
		return nil, err
	}
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(op, rel, err)
	}
	out, err := scanRows(rows)
	return out, classify(op, rel, err)
}

func checkRelation(op string, rel store.Relation) error {
	if !rel.Known() {
		return errs.Invalid(op, fmt.Sprintf("unknown relation %q", rel))
	}
	return nil
}

func buildSelect(q store.Query) (string, []any, error) {
	if err := checkRelation("store.select", q.Relation); err != nil {
		return "", nil, err
	}
	cols := "*"
	if len(q.Columns) > 0 {
		quoted := make([]string, len(q.Columns))
		for i, col := range q.Columns {
			quoted[i] = pq.QuoteIdentifier(col)
		}
		cols = strings.Join(quoted, ", ")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", cols, pq.QuoteIdentifier(string(q.Relation)))
	where, args, err := buildWhere(q.Filters, 1)
	if err != nil {
		return "", nil, err
	}
	b.WriteString(where)
	if len(q.Order) > 0 {
		parts := make([]string, len(q.Order))
		for i, o := range q.Order {
			dir := "ASC"
			if o.Desc {
				dir = "DESC"
			}
			parts[i] = pq.QuoteIdentifier(o.Column) + " " + dir
		}
		b.WriteString(" ORDER BY " + strings.Join(parts, ", "))
	}
	if q.Limit > 0 {
		b.WriteString(" LIMIT " + strconv.Itoa(q.Limit))
	}
	return b.String(), args, nil
}

var comparators = map[store.FilterOp]string{ //nolint:gochecknoglobals // fixed operator table
	store.OpEq:  "=",
	store.OpNeq: "<>",
	store.OpGt:  ">",
	store.OpGte: ">=",
	store.OpLt:  "<",
	store.OpLte: "<=",
}

func buildWhere(filters []store.Filter, next int) (string, []any, error) {
	if len(filters) == 0 {
		return "", nil, nil
	}
	parts := make([]string, 0, len(filters))
	args := make([]any, 0, len(filters))
	for _, f := range filters {
		col := pq.QuoteIdentifier(f.Column)
		if f.Op == store.OpIsNull {
			parts = append(parts, col+" IS NULL")
			continue
		}
		cmp, ok := comparators[f.Op]
		if !ok {
			return "", nil, errs.Invalid("store.filter", fmt.Sprintf("unsupported operator %q", f.Op))
		}
		parts = append(parts, fmt.Sprintf("%s %s $%d", col, cmp, next))
		args = append(args, sqlValue(f.Value))
		next++
	}
	return " WHERE " + strings.Join(parts, " AND "), args, nil
}

func sortedColumns(row store.Row) []string {
	cols := make([]string, 0, len(row))
	for k := range row {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

func buildInsert(rel store.Relation, row store.Row) (string, []any, error) {
	if err := checkRelation("store.insert", rel); err != nil {
		return "", nil, err
	}
	if len(row) == 0 {
		return "", nil, errs.Invalid("store.insert", "empty row")
	}
	cols := sortedColumns(row)
	quoted := make([]string, len(cols))
	marks := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, col := range cols {
		quoted[i] = pq.QuoteIdentifier(col)
		marks[i] = "$" + strconv.Itoa(i+1)
		args[i] = sqlValue(row[col])
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		pq.QuoteIdentifier(string(rel)), strings.Join(quoted, ", "), strings.Join(marks, ", "))
	return query, args, nil
}

func buildUpdate(rel store.Relation, filters []store.Filter, patch store.Row) (string, []any, error) {
	if err := checkRelation("store.update", rel); err != nil {
		return "", nil, err
	}
	if len(patch) == 0 {
		return "", nil, errs.Invalid("store.update", "empty patch")
	}
	if len(filters) == 0 {
		return "", nil, errs.Invalid("store.update", "update without filters")
	}
	cols := sortedColumns(patch)
	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+len(filters))
	for i, col := range cols {
		sets[i] = fmt.Sprintf("%s = $%d", pq.QuoteIdentifier(col), i+1)
		args = append(args, sqlValue(patch[col]))
	}
	where, whereArgs, err := buildWhere(filters, len(cols)+1)
	if err != nil {
		return "", nil, err
	}
	query := fmt.Sprintf("UPDATE %s SET %s%s RETURNING *",
		pq.QuoteIdentifier(string(rel)), strings.Join(sets, ", "), where)
	return query, append(args, whereArgs...), nil
}

// sqlValue adapts Go values to what lib/pq can bind.
func sqlValue(v any) any {
	switch t := v.(type) {
	case []string:
		return pq.StringArray(t)
	case map[string]any:
		b, err := json.Marshal(t)
		if err != nil {
			return nil
		}
		return string(b)
	}
	return v
}

func scanRows(rows *sql.Rows) ([]store.Row, error) {
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}

	var out []store.Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		r := make(store.Row, len(cols))
		for i, col := range cols {
			r[col] = normalize(types[i].DatabaseTypeName(), values[i])
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// normalize turns raw driver bytes into the value shapes store.Row expects.
func normalize(dbType string, v any) any {
	b, ok := v.([]byte)
	if !ok {
		return v
	}
	switch strings.ToUpper(dbType) {
	case "_TEXT", "_VARCHAR":
		var arr pq.StringArray
		if err := arr.Scan(b); err != nil {
			return string(b)
		}
		return []string(arr)
	case "JSON", "JSONB":
		var m map[string]any
		if err := json.Unmarshal(b, &m); err != nil {
			return string(b)
		}
		return m
	}
	return string(b)
}
