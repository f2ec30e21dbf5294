// Package config loads and checks shardstore configuration.
//
// A configuration file is YAML. Loading happens in three passes: the raw
// document is checked against an embedded CUE schema (shape, ranges,
// unknown fields), decoded over Default(), then checked against the
// built-in object types and shard-key rules.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/roach88/shardstore/internal/router"
	"github.com/roach88/shardstore/internal/schema"
	"github.com/roach88/shardstore/internal/shard"
	"github.com/roach88/shardstore/internal/storeerr"
)

//go:embed schema.cue
var schemaCUE string

// Pipeline defaults.
const (
	DefaultShards       = 20
	DefaultTimeout      = 60 * time.Second
	DefaultVersionLabel = "2025.1.1"
	DefaultMaxInFlight  = 64
)

// Duration is a time.Duration written as "60s" in YAML and JSON.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Retry mirrors shard.RetryPolicy.
type Retry struct {
	MaxAttempts     int      `yaml:"max_attempts" json:"max_attempts"`
	InitialInterval Duration `yaml:"initial_interval" json:"initial_interval"`
	MaxInterval     Duration `yaml:"max_interval" json:"max_interval"`
}

// Profile configures the profiling agent. An empty Target disables it.
type Profile struct {
	// Target is a SQLite file path or a redis:// URL.
	Target    string `yaml:"target" json:"target"`
	QueueSize int    `yaml:"queue_size" json:"queue_size"`
	BatchSize int    `yaml:"batch_size" json:"batch_size"`
}

// Config is the complete configuration of a datastore and the processes
// that open it.
type Config struct {
	// Datastore is the directory holding the shard files.
	Datastore string `yaml:"datastore" json:"datastore"`

	// Shards is the shard count used only when creating a new datastore.
	Shards int `yaml:"shards" json:"shards"`

	// Timeout is the SQLite busy timeout.
	Timeout Duration `yaml:"timeout" json:"timeout"`

	// PruneUnvalidated removes placeholders from earlier processes at open.
	PruneUnvalidated bool `yaml:"prune_unvalidated" json:"prune_unvalidated"`

	// JobName and VersionLabel make up the profiling label.
	JobName      string `yaml:"job_name" json:"job_name"`
	VersionLabel string `yaml:"version_label" json:"version_label"`

	// MaxInFlight bounds concurrent pool requests.
	MaxInFlight int `yaml:"max_in_flight" json:"max_in_flight"`

	Retry   Retry   `yaml:"retry" json:"retry"`
	Profile Profile `yaml:"profile" json:"profile"`

	// Replicated lists the types copied to every shard.
	Replicated []string `yaml:"replicated" json:"replicated"`

	// Partitioned maps each partitioned type to its shard-key field.
	Partitioned map[string]string `yaml:"partitioned" json:"partitioned"`
}

// Default returns the pipeline's standard layout.
func Default() Config {
	policy := shard.DefaultRetryPolicy()
	return Config{
		Datastore:        "datastore",
		Shards:           DefaultShards,
		Timeout:          Duration(DefaultTimeout),
		PruneUnvalidated: true,
		VersionLabel:     DefaultVersionLabel,
		MaxInFlight:      DefaultMaxInFlight,
		Retry: Retry{
			MaxAttempts:     policy.MaxAttempts,
			InitialInterval: Duration(policy.InitialInterval),
			MaxInterval:     Duration(policy.MaxInterval),
		},
		Profile: Profile{QueueSize: 4096, BatchSize: 256},
		Replicated: []string{
			string(schema.TagVersion),
			string(schema.TagStoreTag),
			string(schema.TagTolerance),
			string(schema.TagRedshift),
			string(schema.TagWavenumber),
			string(schema.TagIntegrationSolver),
			string(schema.TagLambdaCDM),
			string(schema.TagQCDCosmology),
		},
		Partitioned: map[string]string{
			string(schema.TagScalarModel):      "k_serial",
			string(schema.TagScalarModelValue): "k_serial",
		},
	}
}

// Load reads, schema-checks and decodes the YAML file at path over the
// defaults, then runs Check.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse is Load for an in-memory document.
func Parse(data []byte) (Config, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Config{}, storeerr.Config("parse config: %v", err)
	}
	if err := checkSchema(raw); err != nil {
		return Config{}, err
	}

	cfg := Default()
	// Lists and maps given in the file replace the defaults rather than merge.
	if _, ok := raw["replicated"]; ok {
		cfg.Replicated = nil
	}
	if _, ok := raw["partitioned"]; ok {
		cfg.Partitioned = nil
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, storeerr.Config("decode config: %v", err)
	}
	if err := cfg.Check(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// checkSchema unifies the raw document with the embedded #Config definition.
func checkSchema(raw map[string]any) error {
	if raw == nil {
		return nil
	}
	ctx := cuecontext.New()
	def := ctx.CompileString(schemaCUE).LookupPath(cue.ParsePath("#Config"))
	if err := def.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	doc := ctx.Encode(raw)
	if err := doc.Err(); err != nil {
		return storeerr.Config("encode config: %v", err)
	}
	if err := def.Unify(doc).Validate(cue.Concrete(true)); err != nil {
		return storeerr.Config("config does not match schema: %v", err)
	}
	return nil
}

// Check validates the configuration against the built-in object types and
// the shard-key rules.
func (c Config) Check() error {
	if c.Datastore == "" {
		return storeerr.Config("datastore directory is required")
	}
	if c.Shards <= 0 {
		return storeerr.Config("shards must be positive, got %d", c.Shards)
	}
	if c.MaxInFlight <= 0 {
		return storeerr.Config("max_in_flight must be positive, got %d", c.MaxInFlight)
	}

	reg, err := c.Registry()
	if err != nil {
		return err
	}
	if _, err := router.New(reg, c.Shards, c.Rules()); err != nil {
		return err
	}

	for _, t := range reg.Types() {
		if !t.Versioned {
			continue
		}
		v, err := reg.Lookup(string(schema.TagVersion))
		if err != nil || !v.Replicated {
			return storeerr.Config("type %q is versioned; %q must be replicated", t.Name, schema.TagVersion)
		}
	}
	return nil
}

// Registry builds the schema registry named by the configuration.
// Partitioned types are registered in name order.
func (c Config) Registry() (*schema.Registry, error) {
	return schema.Build(c.Replicated, c.PartitionedTypes())
}

// PartitionedTypes returns the partitioned type names, sorted.
func (c Config) PartitionedTypes() []string {
	names := make([]string, 0, len(c.Partitioned))
	for name := range c.Partitioned {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Rules returns the router's shard-key rules.
func (c Config) Rules() router.Rules {
	rules := make(router.Rules, len(c.Partitioned))
	for typ, field := range c.Partitioned {
		rules[typ] = field
	}
	return rules
}

// RetryPolicy converts the retry section.
func (c Config) RetryPolicy() shard.RetryPolicy {
	return shard.RetryPolicy{
		MaxAttempts:     c.Retry.MaxAttempts,
		InitialInterval: time.Duration(c.Retry.InitialInterval),
		MaxInterval:     time.Duration(c.Retry.MaxInterval),
	}
}

// ShardPath returns the file path of shard i.
func (c Config) ShardPath(i int) string {
	return filepath.Join(c.Datastore, fmt.Sprintf("shard-%04d.db", i))
}

// ProfileLabel builds the label attached to every profile record.
func (c Config) ProfileLabel(now time.Time) string {
	stamp := now.Truncate(time.Second).Format("2006-01-02T15:04:05")
	if c.JobName != "" {
		return fmt.Sprintf("%s-jobname-%q-primarydb-%q-shards-%d-%s", c.VersionLabel, c.JobName, c.Datastore, c.Shards, stamp)
	}
	return fmt.Sprintf("%s-primarydb-%q-shards-%d-%s", c.VersionLabel, c.Datastore, c.Shards, stamp)
}

// YAML renders the configuration as YAML.
func (c Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
