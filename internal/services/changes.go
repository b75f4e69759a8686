package services

import (
	"fmt"
	"strings"
	"time"
)

// change is one field edited by a reviewer.
type change struct {
	Section string `json:"section,omitempty"`
	Field   string `json:"field"`
	From    string `json:"from"`
	To      string `json:"to"`
}

type changeSet []change

// add records the field when its rendered value differs.
func (c *changeSet) add(section, field string, from, to interface{}) {
	f, t := render(from), render(to)
	if f == t {
		return
	}
	*c = append(*c, change{Section: section, Field: field, From: f, To: t})
}

// String renders the changes grouped by section, for example
// commodity: 'Rice' -> 'Wheat' | Tower 3: seal_number: 'S0' -> 'S1'.
func (c changeSet) String() string {
	var parts []string
	var current string
	var fields []string
	flush := func() {
		if len(fields) == 0 {
			return
		}
		entry := strings.Join(fields, ", ")
		if current != "" {
			entry = current + ": " + entry
		}
		parts = append(parts, entry)
		fields = nil
	}
	for _, ch := range c {
		if ch.Section != current {
			flush()
			current = ch.Section
		}
		fields = append(fields, fmt.Sprintf("%s: '%s' -> '%s'", ch.Field, ch.From, ch.To))
	}
	flush()
	return strings.Join(parts, " | ")
}

// Details returns the changes in a form stored in a JSONB column.
func (c changeSet) Details() []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(c))
	for _, ch := range c {
		m := map[string]interface{}{"field": ch.Field, "from": ch.From, "to": ch.To}
		if ch.Section != "" {
			m["section"] = ch.Section
		}
		out = append(out, m)
	}
	return out
}

func render(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case *string:
		if x == nil {
			return ""
		}
		return *x
	case *uint:
		if x == nil {
			return ""
		}
		return fmt.Sprint(*x)
	case *bool:
		if x == nil {
			return ""
		}
		return fmt.Sprint(*x)
	default:
		return fmt.Sprint(x)
	}
}

func fmtTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
