package services

import (
	"context"
	"errors"
	"fmt"

	"crmai/internal/logging"
	"crmai/internal/models"
	"crmai/internal/store"
	"crmai/pkg/composer"
)

// LeadService answers inspection requests: the lead fields the prompt sees
// and the recent service log.
type LeadService struct {
	leads   store.LeadStore
	logFile string
}

func NewLeadService(leads store.LeadStore, logFile string) *LeadService {
	return &LeadService{leads: leads, logFile: logFile}
}

// GetLeadStructure returns the lead as the composer sees it, without bookkeeping fields.
func (s *LeadService) GetLeadStructure(ctx context.Context, leadName string) (map[string]interface{}, error) {
	lead, err := s.leads.GetLead(ctx, leadName)
	if err != nil {
		return nil, mapStoreErr(err, "Error getting lead structure for %s", leadName)
	}
	fields := composer.FilterLeadFields(lead.Fields())
	// The structure view keeps the record type so callers can tell what they got.
	fields["doctype"] = LeadDoctype
	return fields, nil
}

// GetAILogs returns up to limit recent log entries, newest first.
func (s *LeadService) GetAILogs(limit int) ([]logging.Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	entries, err := logging.ReadTail(s.logFile, limit)
	if err != nil {
		if errors.Is(err, logging.ErrLogNotFound) {
			return nil, fmt.Errorf("%w: AI email log file not found", models.ErrNotFound)
		}
		return nil, fmt.Errorf("Error retrieving logs: %w", err)
	}
	return entries, nil
}
