package factory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/roach88/shardstore/internal/object"
	"github.com/roach88/shardstore/internal/payload"
	"github.com/roach88/shardstore/internal/schema"
	"github.com/roach88/shardstore/internal/storeerr"
)

// maxMatches bounds how many matching serials a lookup collects. Anything
// above one is already an ambiguous match; the extra rows only enrich the error.
const maxMatches = 8

// table is a Factory driven entirely by an ObjectType descriptor. One
// physical table per type, with the store-managed columns:
//
//	serial         INTEGER PRIMARY KEY AUTOINCREMENT (never reused after prune)
//	validated      0/1 ValidationMark
//	generation     UUID of the inserting process
//	version_serial serial of the version row (versioned types only)
//	created_at     RFC 3339 UTC (timestamped types only)
type table struct {
	t       schema.ObjectType
	prepare prepareFunc
	columns string // select list, cached
}

func newTable(t schema.ObjectType, prepare prepareFunc) *table {
	f := &table{t: t, prepare: prepare}
	f.columns = strings.Join(f.selectColumns(), ", ")
	return f
}

func quote(name string) string {
	return `"` + name + `"`
}

func (f *table) Type() schema.ObjectType {
	return f.t
}

func (f *table) selectColumns() []string {
	cols := []string{"serial"}
	for _, c := range f.t.Columns {
		cols = append(cols, quote(c.Name))
	}
	cols = append(cols, "validated")
	if f.t.Versioned {
		cols = append(cols, "version_serial")
	}
	if f.t.Timestamped {
		cols = append(cols, "created_at")
	}
	return cols
}

// ddl returns the statements creating the table and its indexes.
func (f *table) ddl() []string {
	name := f.t.Name

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n\tserial INTEGER PRIMARY KEY AUTOINCREMENT", quote(name))
	for _, c := range f.t.Columns {
		fmt.Fprintf(&b, ",\n\t%s %s", quote(c.Name), c.Type.SQLType())
		if c.Key {
			b.WriteString(" NOT NULL")
		}
	}
	b.WriteString(",\n\tvalidated INTEGER NOT NULL DEFAULT 0")
	b.WriteString(",\n\tgeneration TEXT NOT NULL")
	if f.t.Versioned {
		b.WriteString(",\n\tversion_serial INTEGER")
	}
	if f.t.Timestamped {
		b.WriteString(",\n\tcreated_at TEXT")
	}
	b.WriteString("\n)")

	stmts := []string{b.String()}
	for _, c := range f.t.Columns {
		if c.Indexed {
			stmts = append(stmts, fmt.Sprintf(
				"CREATE INDEX IF NOT EXISTS %s ON %s(%s)",
				quote("idx_"+name+"_"+c.Name), quote(name), quote(c.Name),
			))
		}
	}
	if f.t.TracksValidation {
		stmts = append(stmts, fmt.Sprintf(
			"CREATE INDEX IF NOT EXISTS %s ON %s(validated, generation)",
			quote("idx_"+name+"_validated"), quote(name),
		))
	}
	return stmts
}

// Migrate creates the table and indexes. Idempotent.
func (f *table) Migrate(ctx context.Context, q Querier) error {
	for _, stmt := range f.ddl() {
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s: %w", f.t.Name, err)
		}
	}
	return nil
}

// sqlValue converts a normalized payload value to a driver argument.
func sqlValue(v payload.Value) any {
	switch val := v.(type) {
	case payload.Float:
		return float64(val)
	case payload.Int:
		return int64(val)
	case payload.String:
		return string(val)
	case payload.Bool:
		if val {
			return int64(1)
		}
		return int64(0)
	default:
		return nil
	}
}

// matchClause builds the WHERE clause comparing key columns against p.
func (f *table) matchClause(p payload.Object) (string, []any) {
	var conds []string
	var args []any
	for _, c := range f.t.KeyColumns() {
		cond, condArgs := keyCondition(c, p[c.Name])
		conds = append(conds, cond)
		args = append(args, condArgs...)
	}
	return strings.Join(conds, " AND "), args
}

// keyCondition compares one key column against v under the column's match rule.
func keyCondition(c schema.Column, v payload.Value) (string, []any) {
	if c.Match.Kind == schema.MatchRelative {
		r := float64(v.(payload.Float))
		if r == 0 {
			return fmt.Sprintf("ABS(%s) < ?", quote(c.Name)), []any{c.Match.Epsilon}
		}
		return fmt.Sprintf("ABS((%s - ?) / ?) < ?", quote(c.Name)), []any{r, r, c.Match.Epsilon}
	}
	return fmt.Sprintf("%s = ?", quote(c.Name)), []any{sqlValue(v)}
}

// targetClause selects obj's row by serial. Key columns carried in the
// payload must also match, so a handle routed with the wrong key cannot
// update another row that shares the serial.
func (f *table) targetClause(obj *object.Object) (string, []any, error) {
	conds := []string{"serial = ?"}
	args := []any{obj.StoreID}
	for _, c := range f.t.KeyColumns() {
		raw, ok := obj.Payload[c.Name]
		if !ok {
			continue
		}
		if _, isNull := raw.(payload.Null); isNull {
			continue
		}
		v, err := coerce(f.t, c, raw)
		if err != nil {
			return "", nil, err
		}
		cond, condArgs := keyCondition(c, v)
		conds = append(conds, cond)
		args = append(args, condArgs...)
	}
	return strings.Join(conds, " AND "), args, nil
}

// match returns the serials of rows matching p, at most maxMatches.
func (f *table) match(ctx context.Context, q Querier, p payload.Object) ([]int64, error) {
	where, args := f.matchClause(p)
	rows, err := q.QueryContext(ctx, fmt.Sprintf(
		"SELECT serial FROM %s WHERE %s ORDER BY serial LIMIT %d",
		quote(f.t.Name), where, maxMatches,
	), args...)
	if err != nil {
		return nil, fmt.Errorf("match %s: %w", f.t.Name, err)
	}
	defer rows.Close()

	var serials []int64
	for rows.Next() {
		var serial int64
		if err := rows.Scan(&serial); err != nil {
			return nil, fmt.Errorf("match %s: scan: %w", f.t.Name, err)
		}
		serials = append(serials, serial)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("match %s: iterate: %w", f.t.Name, err)
	}
	return serials, nil
}

// FindOrCreate implements Factory.
//
// The lookup and insert must share one write transaction; the shard's
// single writer connection with BEGIN IMMEDIATE makes the pair atomic with
// respect to every other request on the shard.
func (f *table) FindOrCreate(ctx context.Context, q Querier, req Request) (*object.Object, error) {
	p, err := normalize(f.t, req.Payload)
	if err != nil {
		return nil, err
	}
	if f.prepare != nil {
		if err := f.prepare(f.t, p); err != nil {
			return nil, err
		}
	}

	serials, err := f.match(ctx, q, p)
	if err != nil {
		return nil, err
	}

	switch len(serials) {
	case 0:
		// fall through to insert
	case 1:
		if req.ExplicitID != 0 && serials[0] != req.ExplicitID {
			return nil, storeerr.Consistency(f.t.Name, req.Shard,
				"payload matches serial %d but the leader assigned %d", serials[0], req.ExplicitID)
		}
		obj, err := f.Get(ctx, q, serials[0])
		if err != nil {
			return nil, err
		}
		obj.Shard = req.Shard
		return obj, nil
	default:
		return nil, storeerr.Ambiguous(f.t.Name, req.Shard, serials)
	}

	if req.ExplicitID != 0 {
		var taken int
		err := q.QueryRowContext(ctx,
			fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE serial = ?", quote(f.t.Name)),
			req.ExplicitID,
		).Scan(&taken)
		if err != nil {
			return nil, fmt.Errorf("find or create %s: check serial: %w", f.t.Name, err)
		}
		if taken > 0 {
			return nil, storeerr.Consistency(f.t.Name, req.Shard,
				"serial %d already holds a different payload", req.ExplicitID)
		}
	}

	return f.insert(ctx, q, req, p)
}

func (f *table) insert(ctx context.Context, q Querier, req Request, p payload.Object) (*object.Object, error) {
	var cols []string
	var args []any

	if req.ExplicitID != 0 {
		cols = append(cols, "serial")
		args = append(args, req.ExplicitID)
	}
	for _, c := range f.t.Columns {
		if v, ok := p[c.Name]; ok {
			cols = append(cols, quote(c.Name))
			args = append(args, sqlValue(v))
		}
	}

	validated := !f.t.TracksValidation
	cols = append(cols, "validated", "generation")
	args = append(args, boolInt(validated), req.Generation)

	obj := &object.Object{
		Type:       f.t.Name,
		Payload:    p,
		Provenance: object.NewlyInserted,
		Validated:  validated,
		Shard:      req.Shard,
	}

	if f.t.Versioned {
		cols = append(cols, "version_serial")
		if req.VersionSerial != nil {
			v := *req.VersionSerial
			obj.VersionSerial = &v
			args = append(args, v)
		} else {
			args = append(args, nil)
		}
	}
	if f.t.Timestamped {
		now := req.Now
		if now.IsZero() {
			now = time.Now()
		}
		now = now.UTC()
		obj.CreatedAt = &now
		cols = append(cols, "created_at")
		args = append(args, now.Format(time.RFC3339Nano))
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	result, err := q.ExecContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		quote(f.t.Name), strings.Join(cols, ", "), placeholders,
	), args...)
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", f.t.Name, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert %s: last insert id: %w", f.t.Name, err)
	}
	obj.StoreID = id
	return obj, nil
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scan reads one row in selectColumns order.
func (f *table) scan(row rowScanner) (*object.Object, error) {
	var (
		serial    int64
		validated int64
		version   sql.NullInt64
		created   sql.NullString
	)

	holders := make([]any, len(f.t.Columns))
	for i, c := range f.t.Columns {
		switch c.Type {
		case schema.Float:
			holders[i] = new(sql.NullFloat64)
		case schema.String:
			holders[i] = new(sql.NullString)
		default:
			holders[i] = new(sql.NullInt64)
		}
	}

	dest := make([]any, 0, len(holders)+4)
	dest = append(dest, &serial)
	dest = append(dest, holders...)
	dest = append(dest, &validated)
	if f.t.Versioned {
		dest = append(dest, &version)
	}
	if f.t.Timestamped {
		dest = append(dest, &created)
	}

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	p := make(payload.Object, len(f.t.Columns))
	for i, c := range f.t.Columns {
		switch h := holders[i].(type) {
		case *sql.NullFloat64:
			if h.Valid {
				p[c.Name] = payload.Float(h.Float64)
			}
		case *sql.NullString:
			if h.Valid {
				p[c.Name] = payload.String(h.String)
			}
		case *sql.NullInt64:
			if !h.Valid {
				continue
			}
			if c.Type == schema.Bool {
				p[c.Name] = payload.Bool(h.Int64 != 0)
			} else {
				p[c.Name] = payload.Int(h.Int64)
			}
		}
	}

	obj := &object.Object{
		StoreID:    serial,
		Type:       f.t.Name,
		Payload:    p,
		Provenance: object.DeserializedExisting,
		Validated:  validated != 0,
	}
	if version.Valid {
		v := version.Int64
		obj.VersionSerial = &v
	}
	if created.Valid {
		ts, err := time.Parse(time.RFC3339Nano, created.String)
		if err != nil {
			return nil, fmt.Errorf("parse created_at %q: %w", created.String, err)
		}
		obj.CreatedAt = &ts
	}
	return obj, nil
}

// Get implements Factory.
func (f *table) Get(ctx context.Context, q Querier, serial int64) (*object.Object, error) {
	row := q.QueryRowContext(ctx, fmt.Sprintf(
		"SELECT %s FROM %s WHERE serial = ?", f.columns, quote(f.t.Name),
	), serial)

	obj, err := f.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeerr.NotFound(f.t.Name, -1, serial)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s %d: %w", f.t.Name, serial, err)
	}
	return obj, nil
}

// ReadMany implements Factory.
func (f *table) ReadMany(ctx context.Context, q Querier, filter Filter) iter.Seq2[*object.Object, error] {
	return func(yield func(*object.Object, error) bool) {
		query, args, err := f.readQuery(filter)
		if err != nil {
			yield(nil, err)
			return
		}

		rows, err := q.QueryContext(ctx, query, args...)
		if err != nil {
			yield(nil, fmt.Errorf("read %s: %w", f.t.Name, err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			obj, err := f.scan(rows)
			if err != nil {
				yield(nil, fmt.Errorf("read %s: scan: %w", f.t.Name, err))
				return
			}
			if !yield(obj, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, fmt.Errorf("read %s: iterate: %w", f.t.Name, err))
		}
	}
}

func (f *table) readQuery(filter Filter) (string, []any, error) {
	var where []string
	var args []any

	if ref := filter.ReferencedBy; ref != nil {
		for _, ident := range []string{ref.Type, ref.Column, ref.MatchColumn} {
			if !schema.ValidIdent(ident) {
				return "", nil, storeerr.Config("invalid reference identifier %q", ident)
			}
		}
		where = append(where, fmt.Sprintf(
			"serial IN (SELECT %s FROM %s WHERE %s = ?)",
			quote(ref.Column), quote(ref.Type), quote(ref.MatchColumn),
		))
		args = append(args, ref.Value)
	}
	if filter.OnlyValidated {
		where = append(where, "validated = 1")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", f.columns, quote(f.t.Name))
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	if order := f.t.OrderBy(); order != "serial" {
		fmt.Fprintf(&b, " ORDER BY %s ASC, serial ASC", quote(order))
	} else {
		b.WriteString(" ORDER BY serial ASC")
	}
	return b.String(), args, nil
}

// Store implements Factory.
func (f *table) Store(ctx context.Context, q Querier, obj *object.Object) (*object.Object, error) {
	var sets []string
	var args []any
	for _, c := range f.t.DataColumns() {
		raw, ok := obj.Payload[c.Name]
		if !ok {
			continue
		}
		if _, isNull := raw.(payload.Null); isNull {
			sets = append(sets, fmt.Sprintf("%s = NULL", quote(c.Name)))
			continue
		}
		v, err := coerce(f.t, c, raw)
		if err != nil {
			return nil, err
		}
		sets = append(sets, fmt.Sprintf("%s = ?", quote(c.Name)))
		args = append(args, sqlValue(v))
	}

	where, whereArgs, err := f.targetClause(obj)
	if err != nil {
		return nil, err
	}
	if len(sets) == 0 {
		if err := f.requireTarget(ctx, q, obj, where, whereArgs); err != nil {
			return nil, err
		}
		return f.reload(ctx, q, obj)
	}

	args = append(args, whereArgs...)
	result, err := q.ExecContext(ctx, fmt.Sprintf(
		"UPDATE %s SET %s WHERE %s",
		quote(f.t.Name), strings.Join(sets, ", "), where,
	), args...)
	if err != nil {
		return nil, fmt.Errorf("store %s %d: %w", f.t.Name, obj.StoreID, err)
	}
	if err := requireRow(result, f.t.Name, obj); err != nil {
		return nil, err
	}
	return f.reload(ctx, q, obj)
}

// Validate implements Factory. Types that do not track validation are
// always validated, so only existence is checked.
func (f *table) Validate(ctx context.Context, q Querier, obj *object.Object) (*object.Object, error) {
	where, whereArgs, err := f.targetClause(obj)
	if err != nil {
		return nil, err
	}
	if !f.t.TracksValidation {
		if err := f.requireTarget(ctx, q, obj, where, whereArgs); err != nil {
			return nil, err
		}
	} else {
		result, err := q.ExecContext(ctx, fmt.Sprintf(
			"UPDATE %s SET validated = 1 WHERE %s", quote(f.t.Name), where,
		), whereArgs...)
		if err != nil {
			return nil, fmt.Errorf("validate %s %d: %w", f.t.Name, obj.StoreID, err)
		}
		if err := requireRow(result, f.t.Name, obj); err != nil {
			return nil, err
		}
	}
	return f.reload(ctx, q, obj)
}

// reload re-reads obj's row, keeping the caller-visible provenance and shard.
func (f *table) reload(ctx context.Context, q Querier, obj *object.Object) (*object.Object, error) {
	fresh, err := f.Get(ctx, q, obj.StoreID)
	if err != nil {
		if storeerr.IsNotFound(err) {
			return nil, storeerr.NotFound(f.t.Name, obj.Shard, obj.StoreID)
		}
		return nil, err
	}
	fresh.Provenance = obj.Provenance
	fresh.Shard = obj.Shard
	return fresh, nil
}

// requireTarget checks that the row selected by where exists.
func (f *table) requireTarget(ctx context.Context, q Querier, obj *object.Object, where string, args []any) error {
	var one int
	err := q.QueryRowContext(ctx, fmt.Sprintf(
		"SELECT 1 FROM %s WHERE %s", quote(f.t.Name), where,
	), args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return storeerr.NotFound(f.t.Name, obj.Shard, obj.StoreID)
	}
	if err != nil {
		return fmt.Errorf("%s %d: lookup: %w", f.t.Name, obj.StoreID, err)
	}
	return nil
}

func requireRow(result sql.Result, typ string, obj *object.Object) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s %d: rows affected: %w", typ, obj.StoreID, err)
	}
	if n == 0 {
		return storeerr.NotFound(typ, obj.Shard, obj.StoreID)
	}
	return nil
}

// Prune implements Factory.
func (f *table) Prune(ctx context.Context, q Querier, generation string) (int64, error) {
	if !f.t.TracksValidation {
		return 0, nil
	}
	result, err := q.ExecContext(ctx, fmt.Sprintf(
		"DELETE FROM %s WHERE validated = 0 AND generation <> ?", quote(f.t.Name),
	), generation)
	if err != nil {
		return 0, fmt.Errorf("prune %s: %w", f.t.Name, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune %s: rows affected: %w", f.t.Name, err)
	}
	return n, nil
}
