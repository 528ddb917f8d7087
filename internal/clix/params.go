package clix

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
)

type PaginationParams struct {
	Limit  int
	Offset int
}

func ParsePagination(flags *pflag.FlagSet) (PaginationParams, error) {
	limit, _ := flags.GetInt("limit")
	offset, _ := flags.GetInt("offset")
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return PaginationParams{Limit: limit, Offset: offset}, nil
}

// ParseFilters builds lead filter JSON from either the raw --filters flag or
// repeated --where flags. A where clause is "field=value", "field!=value" or
// "field~pattern" (a like match); the result uses the list filter shape.
func ParseFilters(flags *pflag.FlagSet) (string, error) {
	raw, _ := flags.GetString("filters")
	wheres, _ := flags.GetStringArray("where")
	raw = strings.TrimSpace(raw)

	if raw != "" && len(wheres) > 0 {
		return "", fmt.Errorf("use either --filters or --where, not both")
	}
	if len(wheres) == 0 {
		return raw, nil
	}

	conditions := make([][3]string, 0, len(wheres))
	for _, w := range wheres {
		cond, err := parseWhere(w)
		if err != nil {
			return "", err
		}
		conditions = append(conditions, cond)
	}
	out, err := json.Marshal(conditions)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func parseWhere(w string) ([3]string, error) {
	for _, op := range []string{"!=", "~", "="} {
		idx := strings.Index(w, op)
		if idx <= 0 {
			continue
		}
		field := strings.TrimSpace(w[:idx])
		value := strings.TrimSpace(w[idx+len(op):])
		if op == "~" {
			op = "like"
			if !strings.Contains(value, "%") {
				value = "%" + value + "%"
			}
		}
		return [3]string{field, op, value}, nil
	}
	return [3]string{}, fmt.Errorf("invalid --where %q: expected field=value, field!=value or field~pattern", w)
}
