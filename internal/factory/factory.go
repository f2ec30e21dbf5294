package factory

import (
	"context"
	"database/sql"
	"iter"
	"time"

	"github.com/roach88/shardstore/internal/object"
	"github.com/roach88/shardstore/internal/payload"
	"github.com/roach88/shardstore/internal/schema"
	"github.com/roach88/shardstore/internal/storeerr"
)

// Querier is the subset of *sql.Tx and *sql.DB that factories use.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Request is a find-or-create request against one shard.
type Request struct {
	Payload payload.Object

	// ExplicitID forces the serial of a newly inserted row. Zero lets the
	// shard assign one. Set by the pool when a replicated identifier has
	// already been settled on the leader.
	ExplicitID int64

	// Generation identifies the inserting process for the prune pass.
	Generation string

	// VersionSerial is recorded on insert for versioned types.
	VersionSerial *int64

	// Now is recorded on insert for timestamped types.
	Now time.Time

	// Shard is the index of the shard executing the request.
	Shard int
}

// Reference restricts a bulk read to rows whose serial appears in
// Type.Column among the Type rows where MatchColumn equals Value.
type Reference struct {
	Type        string
	Column      string
	MatchColumn string
	Value       int64
}

// Filter narrows a bulk read.
type Filter struct {
	// ReferencedBy restricts to rows referenced by another type's table.
	ReferencedBy *Reference

	// OnlyValidated drops rows whose ValidationMark is unset.
	OnlyValidated bool

	// ShardKey routes reads of partitioned types to a single shard.
	// Factories ignore it; the pool consumes it.
	ShardKey *int64
}

// RedshiftsForModel returns a filter restricting redshift reads to the
// redshifts that carry a ScalarModelValue for the given model.
func RedshiftsForModel(modelSerial, kSerial int64) Filter {
	return Filter{
		ReferencedBy: &Reference{
			Type:        string(schema.TagScalarModelValue),
			Column:      "z_serial",
			MatchColumn: "model_serial",
			Value:       modelSerial,
		},
		ShardKey: &kSerial,
	}
}

// Factory implements find-or-create and bulk reads for one object type
// against one shard connection. Every method runs inside the caller's
// transaction; factories never begin or commit transactions themselves.
type Factory interface {
	// Type returns the descriptor the factory was built for.
	Type() schema.ObjectType

	// Migrate creates the type's table and indexes if they do not exist.
	Migrate(ctx context.Context, q Querier) error

	// FindOrCreate returns the unique row matching req's key fields within
	// tolerance, or inserts one.
	FindOrCreate(ctx context.Context, q Querier, req Request) (*object.Object, error)

	// ReadMany lazily yields rows in natural sort order. Each range re-issues
	// the query, so the sequence is restartable.
	ReadMany(ctx context.Context, q Querier, filter Filter) iter.Seq2[*object.Object, error]

	// Get reads the row with the given serial.
	Get(ctx context.Context, q Querier, serial int64) (*object.Object, error)

	// Store writes obj's data columns into its existing row.
	Store(ctx context.Context, q Querier, obj *object.Object) (*object.Object, error)

	// Validate sets the row's ValidationMark.
	Validate(ctx context.Context, q Querier, obj *object.Object) (*object.Object, error)

	// Prune deletes unvalidated rows inserted by any generation other than
	// the given one, returning the number removed.
	Prune(ctx context.Context, q Querier, generation string) (int64, error)
}

// bindings is the static mapping from tag to factory constructor.
var bindings = map[schema.Tag]func(schema.ObjectType) Factory{
	schema.TagVersion:           func(t schema.ObjectType) Factory { return newTable(t, prepareLabel) },
	schema.TagStoreTag:          func(t schema.ObjectType) Factory { return newTable(t, prepareLabel) },
	schema.TagTolerance:         func(t schema.ObjectType) Factory { return newTable(t, preparePositive("tol")) },
	schema.TagRedshift:          func(t schema.ObjectType) Factory { return newTable(t, prepareRedshift) },
	schema.TagWavenumber:        func(t schema.ObjectType) Factory { return newTable(t, preparePositive("k_inv_Mpc")) },
	schema.TagIntegrationSolver: func(t schema.ObjectType) Factory { return newTable(t, prepareSolver) },
	schema.TagLambdaCDM:         func(t schema.ObjectType) Factory { return newTable(t, prepareCosmology) },
	schema.TagQCDCosmology:      func(t schema.ObjectType) Factory { return newTable(t, prepareQCDCosmology) },
	schema.TagScalarModel:       func(t schema.ObjectType) Factory { return newTable(t, prepareSerials) },
	schema.TagScalarModelValue:  func(t schema.ObjectType) Factory { return newTable(t, prepareSerials) },
}

// For returns the factory bound to the descriptor's tag.
func For(t schema.ObjectType) (Factory, error) {
	ctor, ok := bindings[schema.Tag(t.Name)]
	if !ok {
		return nil, storeerr.UnknownType(t.Name)
	}
	return ctor(t), nil
}

// Set is the per-shard table of factories, resolved once at startup.
type Set map[string]Factory

// NewSet builds a factory for every registered type.
func NewSet(reg *schema.Registry) (Set, error) {
	set := make(Set, reg.Len())
	for _, t := range reg.Types() {
		f, err := For(t)
		if err != nil {
			return nil, err
		}
		set[t.Name] = f
	}
	return set, nil
}

// Get returns the factory for typ.
func (s Set) Get(typ string) (Factory, error) {
	f, ok := s[typ]
	if !ok {
		return nil, storeerr.UnknownType(typ)
	}
	return f, nil
}
