package primary

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"crmai/internal/models"
	"crmai/internal/store"

	"github.com/jackc/pgx/v5"
)

const leadColumns = `name, first_name, last_name, lead_name, email, mobile_no, organization,
	industry, job_title, website, territory, source, status, custom_fields,
	owner, modified_by, creation, modified`

func scanLead(row pgx.Row, dest *models.Lead) error {
	return row.Scan(
		&dest.Name,
		&dest.FirstName,
		&dest.LastName,
		&dest.LeadName,
		&dest.Email,
		&dest.MobileNo,
		&dest.Organization,
		&dest.Industry,
		&dest.JobTitle,
		&dest.Website,
		&dest.Territory,
		&dest.Source,
		&dest.Status,
		&dest.CustomFields,
		&dest.Owner,
		&dest.ModifiedBy,
		&dest.CreatedAt,
		&dest.ModifiedAt,
	)
}

// GetLead fetches one lead by its record name.
func (s *StoreImpl) GetLead(ctx context.Context, name string) (*models.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM crm_leads WHERE name = $1`
	var lead models.Lead
	if err := scanLead(s.db.QueryRow(ctx, query, name), &lead); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get lead %s: %w", name, err)
	}
	return &lead, nil
}

// ListLeads returns leads matching filter, most recently modified first.
func (s *StoreImpl) ListLeads(ctx context.Context, filter store.LeadFilter, limit int) ([]*models.Lead, error) {
	where, args, err := buildLeadWhere(filter)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query := fmt.Sprintf(`SELECT %s FROM crm_leads %s ORDER BY modified DESC LIMIT $%d`, leadColumns, where, len(args))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query leads: %w", err)
	}
	defer rows.Close()

	leads, err := pgx.CollectRows[*models.Lead](rows, func(row pgx.CollectableRow) (*models.Lead, error) {
		var lead models.Lead
		if err := scanLead(row, &lead); err != nil {
			return nil, fmt.Errorf("failed to scan lead: %w", err)
		}
		return &lead, nil
	})
	if err != nil {
		return nil, err
	}
	return leads, nil
}

// buildLeadWhere turns a parsed filter into a WHERE clause with positional
// arguments. Field names are re-checked against the allow-list because they
// are interpolated into SQL.
func buildLeadWhere(filter store.LeadFilter) (string, []interface{}, error) {
	if len(filter) == 0 {
		return "", nil, nil
	}
	clauses := make([]string, 0, len(filter))
	args := make([]interface{}, 0, len(filter))
	for _, cond := range filter {
		if !store.FilterableLeadFields[cond.Field] {
			return "", nil, fmt.Errorf("%w: unknown field %q", models.ErrInvalidFilter, cond.Field)
		}
		args = append(args, cond.Value)
		placeholder := fmt.Sprintf("$%d", len(args))
		switch cond.Op {
		case "=", "!=", "<", ">", "<=", ">=":
			op := cond.Op
			if op == "!=" {
				op = "<>"
			}
			clauses = append(clauses, fmt.Sprintf("%s %s %s", cond.Field, op, placeholder))
		case "like":
			clauses = append(clauses, fmt.Sprintf("%s ILIKE %s", cond.Field, placeholder))
		case "not like":
			clauses = append(clauses, fmt.Sprintf("%s NOT ILIKE %s", cond.Field, placeholder))
		case "in":
			clauses = append(clauses, fmt.Sprintf("%s = ANY(%s)", cond.Field, placeholder))
		case "not in":
			clauses = append(clauses, fmt.Sprintf("NOT (%s = ANY(%s))", cond.Field, placeholder))
		default:
			return "", nil, fmt.Errorf("%w: unsupported operator %q", models.ErrInvalidFilter, cond.Op)
		}
	}
	return "WHERE " + strings.Join(clauses, " AND "), args, nil
}

var _ store.LeadStore = (*StoreImpl)(nil)
