package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"crmai/internal/models"
)

// Condition is one field comparison in a lead filter.
type Condition struct {
	Field string      `json:"field"`
	Op    string      `json:"op"`
	Value interface{} `json:"value"`
}

// LeadFilter is a conjunction of conditions.
type LeadFilter []Condition

// FilterableLeadFields lists the lead columns a caller may filter on.
var FilterableLeadFields = map[string]bool{
	"name": true, "first_name": true, "last_name": true, "lead_name": true,
	"email": true, "mobile_no": true, "organization": true, "industry": true,
	"job_title": true, "website": true, "territory": true, "source": true,
	"status": true, "owner": true,
}

var supportedOps = map[string]bool{
	"=": true, "!=": true, "<": true, ">": true, "<=": true, ">=": true,
	"like": true, "not like": true, "in": true, "not in": true,
}

// ParseLeadFilter accepts the two filter shapes the CRM frontend sends:
//
//	{"status": "New", "industry": ["like", "%Retail%"]}
//	[["status", "=", "New"], ["CRM Lead", "industry", "like", "%Retail%"]]
//
// An empty string means no filter.
func ParseLeadFilter(raw string) (LeadFilter, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil, nil
	}

	var decoded interface{}
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidFilter, err)
	}

	var filter LeadFilter
	switch v := decoded.(type) {
	case map[string]interface{}:
		// Sort keys so the generated SQL is stable.
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, field := range keys {
			cond, err := conditionFromValue(field, v[field])
			if err != nil {
				return nil, err
			}
			filter = append(filter, cond)
		}
	case []interface{}:
		for i, item := range v {
			parts, ok := item.([]interface{})
			if !ok {
				return nil, fmt.Errorf("%w: condition %d is not a list", models.ErrInvalidFilter, i)
			}
			// Drop a leading doctype element.
			if len(parts) == 4 {
				parts = parts[1:]
			}
			if len(parts) != 3 {
				return nil, fmt.Errorf("%w: condition %d must be [field, op, value]", models.ErrInvalidFilter, i)
			}
			field, _ := parts[0].(string)
			op, _ := parts[1].(string)
			cond, err := newCondition(field, op, parts[2])
			if err != nil {
				return nil, err
			}
			filter = append(filter, cond)
		}
	default:
		return nil, fmt.Errorf("%w: expected an object or a list", models.ErrInvalidFilter)
	}
	return filter, nil
}

func conditionFromValue(field string, value interface{}) (Condition, error) {
	if pair, ok := value.([]interface{}); ok {
		if len(pair) != 2 {
			return Condition{}, fmt.Errorf("%w: %s must be [op, value]", models.ErrInvalidFilter, field)
		}
		op, _ := pair[0].(string)
		return newCondition(field, op, pair[1])
	}
	return newCondition(field, "=", value)
}

func newCondition(field, op string, value interface{}) (Condition, error) {
	if !FilterableLeadFields[field] {
		return Condition{}, fmt.Errorf("%w: unknown field %q", models.ErrInvalidFilter, field)
	}
	op = strings.ToLower(strings.TrimSpace(op))
	if !supportedOps[op] {
		return Condition{}, fmt.Errorf("%w: unsupported operator %q", models.ErrInvalidFilter, op)
	}

	if op == "in" || op == "not in" {
		list, ok := value.([]interface{})
		if !ok {
			// Frappe also accepts a comma-separated string.
			s, isString := value.(string)
			if !isString {
				return Condition{}, fmt.Errorf("%w: %s %s needs a list", models.ErrInvalidFilter, field, op)
			}
			for _, part := range strings.Split(s, ",") {
				list = append(list, strings.TrimSpace(part))
			}
		}
		values := make([]string, 0, len(list))
		for _, item := range list {
			str, err := scalarString(field, item)
			if err != nil {
				return Condition{}, err
			}
			values = append(values, str)
		}
		return Condition{Field: field, Op: op, Value: values}, nil
	}

	str, err := scalarString(field, value)
	if err != nil {
		return Condition{}, err
	}
	return Condition{Field: field, Op: op, Value: str}, nil
}

func scalarString(field string, v interface{}) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case bool:
		if t {
			return "1", nil
		}
		return "0", nil
	default:
		return "", fmt.Errorf("%w: value for %s must be a string, number or bool", models.ErrInvalidFilter, field)
	}
}
