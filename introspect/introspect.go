// Package introspect derives a declarative data model from the physical schema
// of a live database.
package introspect

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/ridoystarlord/schemaengine/database"
	"github.com/ridoystarlord/schemaengine/datamodel"
	"github.com/ridoystarlord/schemaengine/describer"
)

// Version is the guess of which tool generation created a database.
type Version string

const (
	NonPrisma Version = "NonPrisma"
	Prisma1   Version = "Prisma1"
	Prisma11  Version = "Prisma11"
	Prisma2   Version = "Prisma2"
)

// Affected names the object a warning is about. Only the relevant fields are set.
type Affected struct {
	Model string `json:"model,omitempty"`
	Field string `json:"field,omitempty"`
	Enum  string `json:"enum,omitempty"`
	Value string `json:"value,omitempty"`
	Type  string `json:"tpe,omitempty"`
}

// Warning is a non-fatal finding of the pipeline.
type Warning struct {
	Code     int        `json:"code"`
	Message  string     `json:"message"`
	Affected []Affected `json:"affected"`
}

// Result is the output of CalculateDatamodel.
type Result struct {
	Datamodel *datamodel.Datamodel
	Version   Version
	Warnings  []Warning
}

// Options tunes a pipeline run.
type Options struct {
	// NativeTypes copies the native column type into each scalar field.
	NativeTypes bool
	Logger      *slog.Logger
}

// CalculateDatamodel runs the introspection pipeline over a described schema.
// previous is the data model of an earlier introspection that may have been
// edited by hand; it may be nil.
func CalculateDatamodel(schema *describer.SqlSchema, family database.Family, previous *datamodel.Datamodel, opts Options) *Result {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("calculating data model", "tables", len(schema.Tables), "family", family)

	checker := newVersionChecker(family)
	dm := translate(schema, checker, opts.NativeTypes)

	sanitizeNames(dm)
	deduplicateRelationFieldNames(dm)

	var warnings []Warning
	if previous != nil {
		warnings = append(warnings, enrich(previous, dm)...)
		logger.Debug("enriched data model from previous schema", "warnings", len(warnings))
	}

	// Only guardrail warnings say anything about the tool that created the
	// schema; enrichment reflects the previous data model.
	guardrails := commentOutGuardrails(dm)
	version := checker.version(guardrails, dm)
	warnings = append(warnings, guardrails...)

	idDefaults := addPrisma1IDDefaults(family, version, dm, schema)
	for _, w := range idDefaults {
		warnings = withoutAffected(warnings, WarnEnrichedDefaults, w.Affected)
	}
	warnings = append(warnings, idDefaults...)

	logger.Debug("calculated data model", "models", len(dm.Models), "enums", len(dm.Enums), "version", version)
	return &Result{Datamodel: dm, Version: version, Warnings: warnings}
}

// Introspect describes the live schema and runs the pipeline over it.
func Introspect(ctx context.Context, d describer.Describer, conn *database.Connection, previous *datamodel.Datamodel, opts Options) (*Result, error) {
	schema, err := d.Describe(ctx, conn.Schema)
	if err != nil {
		return nil, fmt.Errorf("introspecting database: %w", err)
	}
	return CalculateDatamodel(schema, conn.Family, previous, opts), nil
}

func warning(code int, message string, affected []Affected) []Warning {
	if len(affected) == 0 {
		return nil
	}
	return []Warning{{Code: code, Message: message, Affected: affected}}
}

// withoutAffected drops the given entries from the warning with code,
// removing the warning once nothing is left in it.
func withoutAffected(warnings []Warning, code int, drop []Affected) []Warning {
	out := warnings[:0]
	for _, w := range warnings {
		if w.Code == code {
			w.Affected = slices.DeleteFunc(slices.Clone(w.Affected), func(a Affected) bool {
				return slices.Contains(drop, a)
			})
			if len(w.Affected) == 0 {
				continue
			}
		}
		out = append(out, w)
	}
	return out
}
