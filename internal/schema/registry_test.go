package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shardstore/internal/storeerr"
)

func TestRegister_Duplicate(t *testing.T) {
	r := NewRegistry()
	tol, ok := Builtin(TagTolerance)
	require.True(t, ok)

	require.NoError(t, r.Register(tol))
	err := r.Register(tol)
	require.Error(t, err)
	assert.True(t, storeerr.IsConfig(err))
	assert.Contains(t, err.Error(), "registered twice")
}

func TestRegister_UnknownTag(t *testing.T) {
	r := NewRegistry()
	err := r.Register(ObjectType{
		Name:    "BackgroundModel",
		Columns: []Column{{Name: "label", Type: String, Key: true}},
	})
	require.Error(t, err)
	assert.True(t, storeerr.IsConfig(err))
}

func TestRegister_CopiesColumns(t *testing.T) {
	r := NewRegistry()
	z, _ := Builtin(TagRedshift)
	require.NoError(t, r.Register(z))

	z.Columns[0].Name = "mutated"

	got, err := r.Lookup("redshift")
	require.NoError(t, err)
	assert.Equal(t, "z", got.Columns[0].Name)
}

func TestLookup_Unregistered(t *testing.T) {
	r := NewRegistry()
	_, err := r.Lookup("redshift")
	require.Error(t, err)
	assert.True(t, storeerr.IsConfig(err))
}

func TestBuild_Placement(t *testing.T) {
	r, err := Build(
		[]string{"version", "redshift", "wavenumber"},
		[]string{"ScalarModel"},
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"version", "redshift", "wavenumber", "ScalarModel"}, r.Names())

	z, err := r.Lookup("redshift")
	require.NoError(t, err)
	assert.True(t, z.Replicated)

	m, err := r.Lookup("ScalarModel")
	require.NoError(t, err)
	assert.False(t, m.Replicated)
	assert.True(t, m.TracksValidation)
	assert.True(t, m.Versioned)
}

func TestBuild_Errors(t *testing.T) {
	_, err := Build([]string{"redshift"}, []string{"redshift"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "both replicated and partitioned")

	_, err = Build([]string{"redshift", "redshift"}, nil)
	require.Error(t, err)
	assert.True(t, storeerr.IsConfig(err))

	_, err = Build([]string{"nonsense"}, nil)
	require.Error(t, err)
	assert.True(t, storeerr.IsConfig(err))
}

func TestBuiltins_AreValid(t *testing.T) {
	for _, tag := range Tags() {
		t.Run(string(tag), func(t *testing.T) {
			desc, ok := Builtin(tag)
			require.True(t, ok)
			assert.Equal(t, string(tag), desc.Name)
			assert.NoError(t, desc.Validate())
			assert.NotEmpty(t, desc.KeyColumns())
		})
	}
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name string
		desc ObjectType
		want string
	}{
		{
			name: "bad name",
			desc: ObjectType{Name: "drop table", Columns: []Column{{Name: "a", Type: Int, Key: true}}},
			want: "invalid object type name",
		},
		{
			name: "reserved column",
			desc: ObjectType{Name: "x", Columns: []Column{{Name: "serial", Type: Int, Key: true}}},
			want: "reserved",
		},
		{
			name: "relative on int",
			desc: ObjectType{Name: "x", Columns: []Column{{Name: "a", Type: Int, Key: true, Match: Relative(1e-6)}}},
			want: "relative match on non-float",
		},
		{
			name: "zero epsilon",
			desc: ObjectType{Name: "x", Columns: []Column{{Name: "a", Type: Float, Key: true, Match: Relative(0)}}},
			want: "positive epsilon",
		},
		{
			name: "no key",
			desc: ObjectType{Name: "x", Columns: []Column{{Name: "a", Type: Float}}},
			want: "at least one key column",
		},
		{
			name: "unknown sort column",
			desc: ObjectType{Name: "x", Columns: []Column{{Name: "a", Type: Int, Key: true}}, SortColumn: "b"},
			want: "sort column",
		},
		{
			name: "duplicate column",
			desc: ObjectType{Name: "x", Columns: []Column{{Name: "a", Type: Int, Key: true}, {Name: "a", Type: Int}}},
			want: "duplicate column",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.desc.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestObjectType_Columns(t *testing.T) {
	m, _ := Builtin(TagScalarModel)

	keys := m.KeyColumns()
	require.Len(t, keys, 5)
	assert.Equal(t, "label", keys[0].Name)

	data := m.DataColumns()
	require.Len(t, data, 2)
	assert.Equal(t, "compute_time", data[0].Name)

	assert.Equal(t, "serial", m.OrderBy())

	z, _ := Builtin(TagRedshift)
	assert.Equal(t, "z", z.OrderBy())
	col, ok := z.Column("source")
	require.True(t, ok)
	assert.Equal(t, Bool, col.Type)
}
