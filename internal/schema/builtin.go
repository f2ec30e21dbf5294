package schema

// Tag is the closed set of object type names the store knows how to build.
// Adding a type means adding a Tag, a descriptor here and a factory binding.
type Tag string

const (
	TagVersion           Tag = "version"
	TagStoreTag          Tag = "store_tag"
	TagTolerance         Tag = "tolerance"
	TagRedshift          Tag = "redshift"
	TagWavenumber        Tag = "wavenumber"
	TagIntegrationSolver Tag = "IntegrationSolver"
	TagLambdaCDM         Tag = "LambdaCDM"
	TagQCDCosmology      Tag = "QCD_Cosmology"
	TagScalarModel       Tag = "ScalarModel"
	TagScalarModelValue  Tag = "ScalarModelValue"
)

// Matching precisions.
const (
	DefaultRelativePrecision   = 1e-8
	CosmologyRelativePrecision = 1e-5
)

// Tags returns every known tag in a stable order.
func Tags() []Tag {
	return []Tag{
		TagVersion,
		TagStoreTag,
		TagTolerance,
		TagRedshift,
		TagWavenumber,
		TagIntegrationSolver,
		TagLambdaCDM,
		TagQCDCosmology,
		TagScalarModel,
		TagScalarModelValue,
	}
}

// Known reports whether t is in the closed tag set.
func (t Tag) Known() bool {
	_, ok := builtins[t]
	return ok
}

// Builtin returns the descriptor for t with Replicated unset; placement is
// decided by configuration.
func Builtin(t Tag) (ObjectType, bool) {
	fn, ok := builtins[t]
	if !ok {
		return ObjectType{}, false
	}
	return fn(), true
}

var builtins = map[Tag]func() ObjectType{
	TagVersion: func() ObjectType {
		return ObjectType{
			Name: string(TagVersion),
			Columns: []Column{
				{Name: "label", Type: String, Indexed: true, Key: true, Match: Exact()},
			},
		}
	},
	TagStoreTag: func() ObjectType {
		return ObjectType{
			Name: string(TagStoreTag),
			Columns: []Column{
				{Name: "label", Type: String, Indexed: true, Key: true, Match: Exact()},
			},
		}
	},
	TagTolerance: func() ObjectType {
		return ObjectType{
			Name: string(TagTolerance),
			Columns: []Column{
				{Name: "tol", Type: Float, Key: true, Match: Relative(DefaultRelativePrecision)},
			},
			SortColumn: "tol",
		}
	},
	TagRedshift: func() ObjectType {
		return ObjectType{
			Name:        string(TagRedshift),
			Timestamped: true,
			Columns: []Column{
				{Name: "z", Type: Float, Indexed: true, Key: true, Match: Relative(DefaultRelativePrecision)},
				{Name: "source", Type: Bool},
				{Name: "response", Type: Bool},
			},
			SortColumn: "z",
		}
	},
	TagWavenumber: func() ObjectType {
		return ObjectType{
			Name: string(TagWavenumber),
			Columns: []Column{
				{Name: "k_inv_Mpc", Type: Float, Indexed: true, Key: true, Match: Relative(DefaultRelativePrecision)},
			},
			SortColumn: "k_inv_Mpc",
		}
	},
	TagIntegrationSolver: func() ObjectType {
		return ObjectType{
			Name: string(TagIntegrationSolver),
			Columns: []Column{
				{Name: "label", Type: String, Indexed: true, Key: true, Match: Exact()},
				{Name: "stepping", Type: Int, Key: true, Match: Exact()},
			},
		}
	},
	TagLambdaCDM: func() ObjectType {
		rel := Relative(CosmologyRelativePrecision)
		return ObjectType{
			Name: string(TagLambdaCDM),
			Columns: []Column{
				{Name: "name", Type: String, Indexed: true, Key: true, Match: Exact()},
				{Name: "omega_m", Type: Float, Key: true, Match: rel},
				{Name: "omega_cc", Type: Float, Key: true, Match: rel},
				{Name: "h", Type: Float, Key: true, Match: rel},
				{Name: "T_CMB_Kelvin", Type: Float, Key: true, Match: rel},
			},
		}
	},
	TagQCDCosmology: func() ObjectType {
		rel := Relative(CosmologyRelativePrecision)
		return ObjectType{
			Name: string(TagQCDCosmology),
			Columns: []Column{
				{Name: "name", Type: String, Indexed: true, Key: true, Match: Exact()},
				{Name: "eos_table", Type: String, Key: true, Match: Exact()},
				{Name: "omega_m", Type: Float, Key: true, Match: rel},
				{Name: "omega_cc", Type: Float, Key: true, Match: rel},
				{Name: "h", Type: Float, Key: true, Match: rel},
				{Name: "T_CMB_Kelvin", Type: Float, Key: true, Match: rel},
			},
		}
	},
	TagScalarModel: func() ObjectType {
		return ObjectType{
			Name:             string(TagScalarModel),
			Versioned:        true,
			Timestamped:      true,
			TracksValidation: true,
			Columns: []Column{
				{Name: "label", Type: String, Key: true, Match: Exact()},
				{Name: "k_serial", Type: Int, Indexed: true, Key: true, Match: Exact()},
				{Name: "atol_serial", Type: Int, Key: true, Match: Exact()},
				{Name: "rtol_serial", Type: Int, Key: true, Match: Exact()},
				{Name: "solver_serial", Type: Int, Key: true, Match: Exact()},
				{Name: "compute_time", Type: Float},
				{Name: "steps", Type: Int},
			},
		}
	},
	TagScalarModelValue: func() ObjectType {
		return ObjectType{
			Name: string(TagScalarModelValue),
			Columns: []Column{
				{Name: "model_serial", Type: Int, Indexed: true, Key: true, Match: Exact()},
				{Name: "k_serial", Type: Int, Key: true, Match: Exact()},
				{Name: "z_serial", Type: Int, Indexed: true, Key: true, Match: Exact()},
				{Name: "value", Type: Float},
			},
		}
	},
}
