package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"boosterdb/internal/schema"
	"boosterdb/internal/storage"
)

// RunFile is the optional YAML file passed with --config.
//
//	tables: [clubs, officers]
//	normalize_names: false
//	policy:
//	  on_record_error: retry
//	  retries: 3
//	  backoff: 200ms
//	overrides:
//	  officers:
//	    zip: text
//	fixed_schemas:
//	  - name: clubs
//	    columns:
//	      - {name: id, sql_type: SERIAL, primary_key: true}
//	      - {name: name, type: text, nullable: false}
type RunFile struct {
	Tables         []string                     `yaml:"tables"`
	NormalizeNames bool                         `yaml:"normalize_names"`
	Policy         PolicySpec                   `yaml:"policy"`
	Overrides      map[string]map[string]string `yaml:"overrides"`
	FixedSchemas   []TableSpec                  `yaml:"fixed_schemas"`
	Linkcheck      LinkcheckSpec                `yaml:"linkcheck"`
}

type PolicySpec struct {
	OnRecordError string        `yaml:"on_record_error"`
	Retries       int           `yaml:"retries"`
	Backoff       time.Duration `yaml:"backoff"`
}

// TableSpec is a hand-written table that bypasses inference.
type TableSpec struct {
	Name    string       `yaml:"name"`
	Columns []ColumnSpec `yaml:"columns"`
}

type ColumnSpec struct {
	Name string `yaml:"name"`
	// Source defaults to Name.
	Source     string `yaml:"source"`
	Type       string `yaml:"type"`
	SQLType    string `yaml:"sql_type"`
	Nullable   *bool  `yaml:"nullable"`
	PrimaryKey bool   `yaml:"primary_key"`
}

type LinkcheckSpec struct {
	Table      string  `yaml:"table"`
	URLField   string  `yaml:"url_field"`
	LabelField string  `yaml:"label_field"`
	PerSecond  float64 `yaml:"per_second"`
}

// LoadRunFile reads and strictly decodes path; unknown keys are errors.
func LoadRunFile(path string) (*RunFile, error) {
	if path == "" {
		return nil, errors.New("config: run file path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read run file: %w", err)
	}

	var rf RunFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&rf); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: parse run file: %w", err)
	}

	if issues := rf.Validate(); HasErrors(issues) {
		return nil, fmt.Errorf("config: invalid run file %s: %s", path, FormatIssues(issues))
	}
	return &rf, nil
}

// Severity of a validation issue.
type Severity string

const (
	SeverityError Severity = "error"
	SeverityWarn  Severity = "warn"
)

// Issue is one validation finding, addressed by a dotted path.
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

// FormatIssues joins issues for a single error message.
func FormatIssues(issues []Issue) string {
	parts := make([]string, len(issues))
	for i, is := range issues {
		parts[i] = is.String()
	}
	return strings.Join(parts, "; ")
}

// Validate checks the run file without touching a database.
func (rf *RunFile) Validate() []Issue {
	var issues []Issue
	add := func(sev Severity, path, format string, args ...any) {
		issues = append(issues, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, args...)})
	}

	seen := map[string]bool{}
	for i, t := range rf.Tables {
		p := fmt.Sprintf("tables[%d]", i)
		if err := storage.ValidateTableName(t); err != nil {
			add(SeverityError, p, "%v", err)
		}
		if seen[t] {
			add(SeverityWarn, p, "table %q listed more than once", t)
		}
		seen[t] = true
	}

	switch strings.ToLower(rf.Policy.OnRecordError) {
	case "", "skip", "abort", "retry":
	default:
		add(SeverityError, "policy.on_record_error", "must be skip, abort or retry, got %q", rf.Policy.OnRecordError)
	}
	if rf.Policy.Retries < 0 {
		add(SeverityError, "policy.retries", "must not be negative")
	}
	if rf.Policy.Retries > 0 && !strings.EqualFold(rf.Policy.OnRecordError, "retry") {
		add(SeverityWarn, "policy.retries", "ignored unless on_record_error is retry")
	}

	for _, table := range sortedKeys(rf.Overrides) {
		for _, col := range sortedKeys(rf.Overrides[table]) {
			if _, err := schema.ParseColumnType(rf.Overrides[table][col]); err != nil {
				add(SeverityError, "overrides."+table+"."+col, "%v", err)
			}
		}
	}

	fixed := map[string]bool{}
	for i, ts := range rf.FixedSchemas {
		p := fmt.Sprintf("fixed_schemas[%d]", i)
		if err := storage.ValidateTableName(ts.Name); err != nil {
			add(SeverityError, p+".name", "%v", err)
		}
		if fixed[ts.Name] {
			add(SeverityError, p+".name", "duplicate fixed schema %q", ts.Name)
		}
		fixed[ts.Name] = true
		if _, ok := rf.Overrides[ts.Name]; ok {
			add(SeverityWarn, p, "overrides for %q are ignored for a fixed schema", ts.Name)
		}
		if len(ts.Columns) == 0 {
			add(SeverityError, p+".columns", "at least one column is required")
		}
		for j, c := range ts.Columns {
			cp := fmt.Sprintf("%s.columns[%d]", p, j)
			if strings.TrimSpace(c.Name) == "" {
				add(SeverityError, cp+".name", "is required")
			}
			switch {
			case c.SQLType != "":
				if err := storage.ValidateColumnType(c.SQLType); err != nil {
					add(SeverityError, cp+".sql_type", "%v", err)
				}
			case c.Type == "":
				add(SeverityError, cp, "type or sql_type is required")
			default:
				if _, err := schema.ParseColumnType(c.Type); err != nil {
					add(SeverityError, cp+".type", "%v", err)
				}
			}
		}
	}

	if rf.Linkcheck.PerSecond < 0 {
		add(SeverityError, "linkcheck.per_second", "must not be negative")
	}
	return issues
}

// SchemaOptions returns the inference options for one table.
func (rf *RunFile) SchemaOptions(table string) (schema.Options, error) {
	opts := schema.Options{NormalizeNames: rf.NormalizeNames}
	if len(rf.Overrides[table]) == 0 {
		return opts, nil
	}
	opts.Overrides = make(map[string]schema.Column, len(rf.Overrides[table]))
	for field, typ := range rf.Overrides[table] {
		c, err := schema.ParseColumnType(typ)
		if err != nil {
			return opts, fmt.Errorf("overrides.%s.%s: %w", table, field, err)
		}
		opts.Overrides[field] = c
	}
	return opts, nil
}

// FixedSchemaMap converts fixed_schemas into table schemas keyed by name.
func (rf *RunFile) FixedSchemaMap() (map[string]schema.TableSchema, error) {
	out := make(map[string]schema.TableSchema, len(rf.FixedSchemas))
	for _, ts := range rf.FixedSchemas {
		s := schema.TableSchema{Name: ts.Name, Fixed: true}
		for _, c := range ts.Columns {
			col := schema.Column{Name: c.Name, Source: c.Source, SQLType: c.SQLType, PrimaryKey: c.PrimaryKey}
			if col.Source == "" {
				col.Source = c.Name
			}
			if c.Type != "" {
				parsed, err := schema.ParseColumnType(c.Type)
				if err != nil {
					return nil, fmt.Errorf("fixed_schemas.%s.%s: %w", ts.Name, c.Name, err)
				}
				col.Type, col.Long, col.Array = parsed.Type, parsed.Long, parsed.Array
			} else {
				col.Type = schema.Text
			}
			col.NotNull = c.Nullable != nil && !*c.Nullable
			s.Columns = append(s.Columns, col)
		}
		out[ts.Name] = s
	}
	return out, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
