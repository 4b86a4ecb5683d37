package query

import (
	"strings"

	"github.com/trezcool/trainingops/core"
)

type Operator string

const (
	OpEq      Operator = "eq"
	OpNeq     Operator = "neq"
	OpIsNull  Operator = "is-null"
	OpNotNull Operator = "not-null"
)

// Filter restricts a query to rows whose Column matches Value under Op.
// Value is ignored by the null operators.
type Filter struct {
	Column string      `name:"column" validate:"required,ident"`
	Op     Operator    `name:"op" validate:"required,queryop"`
	Value  interface{} `name:"-"`
}

func Eq(col string, val interface{}) Filter  { return Filter{Column: col, Op: OpEq, Value: val} }
func Neq(col string, val interface{}) Filter { return Filter{Column: col, Op: OpNeq, Value: val} }
func IsNull(col string) Filter               { return Filter{Column: col, Op: OpIsNull} }
func NotNull(col string) Filter              { return Filter{Column: col, Op: OpNotNull} }

func (f Filter) String() string {
	switch f.Op {
	case OpEq:
		return f.Column + "=" + valueString(f.Value)
	case OpNeq:
		return f.Column + "!=" + valueString(f.Value)
	case OpIsNull:
		return f.Column + ":null"
	case OpNotNull:
		return f.Column + ":notnull"
	}
	return f.Column + " " + string(f.Op)
}

// ParseFilter reads the CLI filter syntax:
//   col=val      equal
//   col!=val     not equal
//   col:null     is null
//   col:notnull  is not null
func ParseFilter(s string) (Filter, error) {
	s = core.CleanString(s)
	var f Filter

	// the first "=" splits column from value, so values may contain "=", "!=" or ":null"
	i := strings.Index(s, "=")
	switch {
	case i > 0 && s[i-1] == '!':
		f = Neq(s[:i-1], s[i+1:])
	case i >= 0:
		f = Eq(s[:i], s[i+1:])
	case strings.HasSuffix(s, ":null"):
		f = IsNull(strings.TrimSuffix(s, ":null"))
	case strings.HasSuffix(s, ":notnull"):
		f = NotNull(strings.TrimSuffix(s, ":notnull"))
	default:
		return Filter{}, core.NewArgumentError("invalid filter %q: want col=val, col!=val, col:null or col:notnull", s)
	}

	f.Column = core.CleanString(f.Column)
	if !core.IsIdent(f.Column) {
		return Filter{}, core.NewArgumentError("invalid filter %q: bad column name %q", s, f.Column)
	}
	return f, nil
}

// ParseColumns reads a comma-separated projection ("id,name").
func ParseColumns(s string) ([]string, error) {
	cols := core.SplitList(s)
	for _, col := range cols {
		if !core.IsIdent(col) {
			return nil, core.NewArgumentError("invalid column name %q", col)
		}
	}
	return cols, nil
}

// ParseOrdering reads a comma-separated ordering; a leading "-" sorts descending ("name,-created_at").
func ParseOrdering(s string) ([]core.DBOrdering, error) {
	var orderings []core.DBOrdering
	for _, field := range core.SplitList(s) {
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if !core.IsIdent(field) {
			return nil, core.NewArgumentError("invalid ordering column %q", field)
		}
		orderings = append(orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
	return orderings, nil
}

// Filters is a repeatable flag.Value collecting parsed filters.
type Filters []Filter

func (fs *Filters) String() string {
	if fs == nil {
		return ""
	}
	strs := make([]string, 0, len(*fs))
	for _, f := range *fs {
		strs = append(strs, f.String())
	}
	return strings.Join(strs, ",")
}

func (fs *Filters) Set(s string) error {
	f, err := ParseFilter(s)
	if err != nil {
		return err
	}
	*fs = append(*fs, f)
	return nil
}
