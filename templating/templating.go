// Package templating renders templated task fields.
//
// Templates use the Jinja syntax understood by pongo2, so commands such as
//
//	{% for i in range(5) %}echo "{{ ds }} {{ macros.ds_add(ds, 7) }}"{% endfor %}
//
// render against the values of a single task try.
package templating

import (
	"strings"
	"time"

	"github.com/flosch/pongo2/v6"
	"github.com/google/uuid"
	"github.com/juju/errors"
	"github.com/lithammer/dedent"
	"github.com/warriorguo/dagflow/types"
)

const (
	DateLayout       = "2006-01-02"
	DateNoDashLayout = "20060102"
	TSLayout         = "2006-01-02T15:04:05-07:00"
	TSNoDashLayout   = "20060102T150405"
)

// Values are the run-time facts a template context is built from.
type Values struct {
	DAGID       string
	TaskID      string
	RunID       string
	Owner       string
	TryNumber   int
	LogicalDate time.Time
	Interval    types.DataInterval
	Params      types.Data
	Conf        types.Data
}

func NewContext(v Values) types.Data {
	logical := v.LogicalDate.UTC()
	params := v.Params
	if params == nil {
		params = types.Data{}
	}
	conf := v.Conf
	if conf == nil {
		conf = types.Data{}
	}

	return types.Data{
		"ds":                  logical.Format(DateLayout),
		"ds_nodash":           logical.Format(DateNoDashLayout),
		"ts":                  logical.Format(TSLayout),
		"ts_nodash":           logical.Format(TSNoDashLayout),
		"ts_nodash_with_tz":   logical.Format(TSNoDashLayout) + "+0000",
		"logical_date":        logical,
		"execution_date":      logical,
		"data_interval_start": v.Interval.Start.UTC(),
		"data_interval_end":   v.Interval.End.UTC(),
		"run_id":              v.RunID,
		"try_number":          v.TryNumber,
		"dag":                 map[string]any{"dag_id": v.DAGID},
		"task":                map[string]any{"task_id": v.TaskID, "owner": v.Owner},
		"params":              map[string]any(params),
		"conf":                map[string]any(conf),
		"macros":              Macros(),
		"range":               Range,
	}
}

// Macros are the helpers reachable as macros.<name> in templates.
func Macros() map[string]any {
	return map[string]any{
		"ds_add":    DSAdd,
		"ds_format": DSFormat,
		"uuid":      func() string { return uuid.NewString() },
	}
}

// Render executes source against ctx. Output is not HTML-escaped.
func Render(source string, ctx types.Data) (string, error) {
	tpl, err := pongo2.FromString("{% autoescape off %}" + source + "{% endautoescape %}")
	if err != nil {
		return "", errors.Annotatef(err, "parse template")
	}
	out, err := tpl.Execute(pongo2.Context(ctx))
	if err != nil {
		return "", errors.Annotatef(err, "render template")
	}
	return out, nil
}

// Validate only parses source.
func Validate(source string) error {
	_, err := pongo2.FromString(source)
	return errors.Trace(err)
}

// Dedent removes the common leading whitespace of every line and a leading newline.
func Dedent(s string) string {
	return strings.TrimPrefix(dedent.Dedent(s), "\n")
}

// DSAdd shifts a YYYY-MM-DD date by days.
func DSAdd(ds string, days int) (string, error) {
	t, err := time.Parse(DateLayout, ds)
	if err != nil {
		return "", errors.NotValidf("ds %q", ds)
	}
	return t.AddDate(0, 0, days).Format(DateLayout), nil
}

// Range mirrors python's range with one to three arguments.
func Range(args ...int) ([]int, error) {
	start, stop, step := 0, 0, 1
	switch len(args) {
	case 1:
		stop = args[0]
	case 2:
		start, stop = args[0], args[1]
	case 3:
		start, stop, step = args[0], args[1], args[2]
	default:
		return nil, errors.BadRequestf("range expects 1 to 3 arguments, got %d", len(args))
	}
	if step == 0 {
		return nil, errors.BadRequestf("range step must not be zero")
	}
	out := []int{}
	for i := start; (step > 0 && i < stop) || (step < 0 && i > stop); i += step {
		out = append(out, i)
	}
	return out, nil
}

// DSFormat reformats ds from inputFormat to outputFormat, both strftime layouts.
func DSFormat(ds, inputFormat, outputFormat string) (string, error) {
	t, err := time.Parse(strftimeLayout(inputFormat), ds)
	if err != nil {
		return "", errors.NotValidf("ds %q for format %q", ds, inputFormat)
	}
	return t.Format(strftimeLayout(outputFormat)), nil
}

var strftimeDirectives = map[byte]string{
	'Y': "2006",
	'y': "06",
	'm': "01",
	'd': "02",
	'H': "15",
	'I': "03",
	'M': "04",
	'S': "05",
	'p': "PM",
	'b': "Jan",
	'B': "January",
	'a': "Mon",
	'A': "Monday",
	'j': "002",
	'z': "-0700",
	'Z': "MST",
	'%': "%",
}

func strftimeLayout(format string) string {
	var sb strings.Builder
	for i := 0; i < len(format); i++ {
		if format[i] != '%' || i+1 == len(format) {
			sb.WriteByte(format[i])
			continue
		}
		i++
		if layout, exists := strftimeDirectives[format[i]]; exists {
			sb.WriteString(layout)
		} else {
			sb.WriteByte('%')
			sb.WriteByte(format[i])
		}
	}
	return sb.String()
}
