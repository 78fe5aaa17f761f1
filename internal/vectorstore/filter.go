package vectorstore

import "fmt"

// Field names a filterable metadata field.
type Field string

const (
	FieldType       Field = "type"
	FieldSource     Field = "source"
	FieldDifficulty Field = "difficulty"
	FieldTags       Field = "tags"
	FieldGoals      Field = "goals"
)

// scalarFields support equality matching; setFields support membership.
var (
	scalarFields = map[Field]bool{FieldType: true, FieldSource: true, FieldDifficulty: true}
	setFields    = map[Field]bool{FieldTags: true, FieldGoals: true}
)

// CondKind tags a filter condition variant.
type CondKind int

const (
	// CondEquals matches a scalar metadata field exactly.
	CondEquals CondKind = iota
	// CondIn matches when a set-valued metadata field intersects the
	// condition's value set.
	CondIn
)

// Condition is one predicate of a filter.
type Condition struct {
	Kind   CondKind
	Field  Field
	Value  string
	Values []string
}

// Equals builds an exact-match condition on a scalar field.
func Equals(field Field, value string) Condition {
	return Condition{Kind: CondEquals, Field: field, Value: value}
}

// In builds a set-membership condition on a set-valued field.
func In(field Field, values ...string) Condition {
	return Condition{Kind: CondIn, Field: field, Values: values}
}

// Filter is a conjunction of conditions, validated against the metadata
// schema at construction time.
type Filter struct {
	conds []Condition
}

// NewFilter validates the conditions and returns a filter. Equality is only
// legal on scalar fields, membership only on set-valued fields.
func NewFilter(conds ...Condition) (*Filter, error) {
	for _, c := range conds {
		switch c.Kind {
		case CondEquals:
			if !scalarFields[c.Field] {
				return nil, fmt.Errorf("%w: equals on non-scalar field %q", ErrInvalidFilter, c.Field)
			}
			if c.Value == "" {
				return nil, fmt.Errorf("%w: equals on %q with empty value", ErrInvalidFilter, c.Field)
			}
		case CondIn:
			if !setFields[c.Field] {
				return nil, fmt.Errorf("%w: in on non-set field %q", ErrInvalidFilter, c.Field)
			}
			if len(c.Values) == 0 {
				return nil, fmt.Errorf("%w: in on %q with empty value set", ErrInvalidFilter, c.Field)
			}
		default:
			return nil, fmt.Errorf("%w: unknown condition kind %d", ErrInvalidFilter, c.Kind)
		}
	}
	return &Filter{conds: conds}, nil
}

// MustFilter is NewFilter for statically known conditions; it panics on a
// schema violation.
func MustFilter(conds ...Condition) *Filter {
	f, err := NewFilter(conds...)
	if err != nil {
		panic(err)
	}
	return f
}

// Conditions returns the filter's predicates for backend translation.
func (f *Filter) Conditions() []Condition {
	if f == nil {
		return nil
	}
	return f.conds
}

// Matches reports whether metadata satisfies every condition. A nil filter
// matches everything.
func (f *Filter) Matches(m Metadata) bool {
	if f == nil {
		return true
	}
	for _, c := range f.conds {
		if !matchCondition(c, m) {
			return false
		}
	}
	return true
}

func matchCondition(c Condition, m Metadata) bool {
	switch c.Kind {
	case CondEquals:
		return scalarValue(c.Field, m) == c.Value
	case CondIn:
		return intersects(setValue(c.Field, m), c.Values)
	}
	return false
}

func scalarValue(f Field, m Metadata) string {
	switch f {
	case FieldType:
		return string(m.Type)
	case FieldSource:
		return m.Source
	case FieldDifficulty:
		return string(m.Difficulty)
	}
	return ""
}

func setValue(f Field, m Metadata) []string {
	switch f {
	case FieldTags:
		return m.Tags
	case FieldGoals:
		return m.Goals
	}
	return nil
}

func intersects(have, want []string) bool {
	for _, h := range have {
		for _, w := range want {
			if h == w {
				return true
			}
		}
	}
	return false
}
