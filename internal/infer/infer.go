// Package infer implements the Special-Type Inferrer (C1): a pure,
// deterministic function from a field descriptor to a special type.
package infer

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/faucetdb/syncer/internal/catalogmodel"
)

// floatBaseTypes are the base types gated as "float".
var floatBaseTypes = baseTypeSet(catalogmodel.FloatField, catalogmodel.DecimalField)

// intOrTextBaseTypes gates rules that apply to integer or textual columns.
var intOrTextBaseTypes = baseTypeSet(
	catalogmodel.IntegerField, catalogmodel.BigIntegerField,
	catalogmodel.CharField, catalogmodel.TextField,
)

// boolOrIntBaseTypes gates the "active" rule.
var boolOrIntBaseTypes = baseTypeSet(
	catalogmodel.BooleanField, catalogmodel.IntegerField, catalogmodel.BigIntegerField,
)

// textBaseTypes gates rules that only make sense for textual columns.
var textBaseTypes = baseTypeSet(catalogmodel.CharField, catalogmodel.TextField)

func baseTypeSet(types ...catalogmodel.BaseType) map[catalogmodel.BaseType]bool {
	m := make(map[catalogmodel.BaseType]bool, len(types))
	for _, t := range types {
		m[t] = true
	}
	return m
}

// rule is one row of the ordered pattern table.
type rule struct {
	pattern     *regexp.Regexp
	allowed     map[catalogmodel.BaseType]bool // nil means wildcard
	specialType catalogmodel.SpecialType
}

// FieldDescriptor is the input to Infer: the minimal information needed to
// decide a special type.
type FieldDescriptor struct {
	Name              string
	BaseType          catalogmodel.BaseType
	PK                bool
	PriorSpecialType  *catalogmodel.SpecialType
}

// Inferrer holds the validated, ordered pattern table. It must be
// constructed with New; a malformed table makes New return an error, which
// callers treat as fatal at startup.
type Inferrer struct {
	rules []rule
}

// New builds the ordered pattern table and validates it: every regex must
// compile, every allowed base type must be a known base type, and every
// produced special type must be a known special type. A malformed table
// returns an error instead of panicking, so callers can treat it as a
// startup failure.
func New() (*Inferrer, error) {
	raw := []struct {
		pattern string
		allowed map[catalogmodel.BaseType]bool
		special catalogmodel.SpecialType
	}{
		// Float-gated latitude/longitude rules.
		{`_lat$`, floatBaseTypes, catalogmodel.SpecialLatitude},
		{`_lon$`, floatBaseTypes, catalogmodel.SpecialLongitude},
		{`_lng$`, floatBaseTypes, catalogmodel.SpecialLongitude},
		{`_long$`, floatBaseTypes, catalogmodel.SpecialLongitude},
		{`_longitude$`, floatBaseTypes, catalogmodel.SpecialLongitude},
		{`_latitude$`, floatBaseTypes, catalogmodel.SpecialLatitude},
		{`^lat$`, floatBaseTypes, catalogmodel.SpecialLatitude},
		{`^latitude$`, floatBaseTypes, catalogmodel.SpecialLatitude},
		{`^lon$`, floatBaseTypes, catalogmodel.SpecialLongitude},
		{`^lng$`, floatBaseTypes, catalogmodel.SpecialLongitude},
		{`^long$`, floatBaseTypes, catalogmodel.SpecialLongitude},
		{`^longitude$`, floatBaseTypes, catalogmodel.SpecialLongitude},

		// Int-or-text-gated category/zip rules.
		{`_rating$`, intOrTextBaseTypes, catalogmodel.SpecialCategory},
		{`_type$`, intOrTextBaseTypes, catalogmodel.SpecialCategory},
		{`^rating$`, intOrTextBaseTypes, catalogmodel.SpecialCategory},
		{`^role$`, intOrTextBaseTypes, catalogmodel.SpecialCategory},
		{`^sex$`, intOrTextBaseTypes, catalogmodel.SpecialCategory},
		{`^status$`, intOrTextBaseTypes, catalogmodel.SpecialCategory},
		{`^type$`, intOrTextBaseTypes, catalogmodel.SpecialCategory},
		{`^currency$`, intOrTextBaseTypes, catalogmodel.SpecialCategory},
		{`^gender$`, intOrTextBaseTypes, catalogmodel.SpecialCategory},
		{`^postalcode$`, intOrTextBaseTypes, catalogmodel.SpecialZipCode},
		{`^postal_code$`, intOrTextBaseTypes, catalogmodel.SpecialZipCode},
		{`^zip_code$`, intOrTextBaseTypes, catalogmodel.SpecialZipCode},
		{`^zipcode$`, intOrTextBaseTypes, catalogmodel.SpecialZipCode},

		// Bool-or-int-gated rule.
		{`^active$`, boolOrIntBaseTypes, catalogmodel.SpecialCategory},

		// Text-gated rules.
		{`_url$`, textBaseTypes, catalogmodel.SpecialURL},
		{`^url$`, textBaseTypes, catalogmodel.SpecialURL},
		{`^city$`, textBaseTypes, catalogmodel.SpecialCity},
		{`^country$`, textBaseTypes, catalogmodel.SpecialCountry},
		{`^countrycode$`, textBaseTypes, catalogmodel.SpecialCountry},
		{`^first_name$`, textBaseTypes, catalogmodel.SpecialName},
		{`^last_name$`, textBaseTypes, catalogmodel.SpecialName},
		{`^full_name$`, textBaseTypes, catalogmodel.SpecialName},
		{`^name$`, textBaseTypes, catalogmodel.SpecialName},
		{`^state$`, textBaseTypes, catalogmodel.SpecialState},
	}

	rules := make([]rule, 0, len(raw))
	for _, r := range raw {
		re, err := regexp.Compile(r.pattern)
		if err != nil {
			return nil, fmt.Errorf("infer: pattern %q does not compile: %w", r.pattern, err)
		}
		for bt := range r.allowed {
			if !catalogmodel.KnownBaseTypes[bt] {
				return nil, fmt.Errorf("infer: rule %q references unknown base type %q", r.pattern, bt)
			}
		}
		if !catalogmodel.KnownSpecialTypes[r.special] {
			return nil, fmt.Errorf("infer: rule %q produces unknown special type %q", r.pattern, r.special)
		}
		rules = append(rules, rule{pattern: re, allowed: r.allowed, specialType: r.special})
	}

	return &Inferrer{rules: rules}, nil
}

// Infer returns the special type for a field descriptor, or nil if no
// inference applies. Decision order, first match wins:
//  1. prior special type, unchanged
//  2. pk? -> id
//  3. name == "id" -> id
//  4. first matching pattern-table rule
//  5. no inference
func (inf *Inferrer) Infer(fd FieldDescriptor) *catalogmodel.SpecialType {
	if fd.PriorSpecialType != nil {
		return fd.PriorSpecialType
	}
	if fd.PK {
		return specialTypePtr(catalogmodel.SpecialID)
	}
	lowered := strings.ToLower(fd.Name)
	if lowered == "id" {
		return specialTypePtr(catalogmodel.SpecialID)
	}
	for _, r := range inf.rules {
		if !r.pattern.MatchString(lowered) {
			continue
		}
		if r.allowed != nil && !r.allowed[fd.BaseType] {
			continue
		}
		return specialTypePtr(r.specialType)
	}
	return nil
}

func specialTypePtr(s catalogmodel.SpecialType) *catalogmodel.SpecialType {
	return &s
}
