// Package jobstate keeps the short-lived progress records of bulk email jobs
// and voice calls in Redis.
package jobstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"crmai/internal/models"
	"crmai/internal/store"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const (
	jobKeyPrefix  = "crm:bulk_email:job:"
	lastLeadsKey  = "crm:bulk_email:last_leads"
	callKeyPrefix = "crm:voice_call:"

	// Attempts before an update gives up on a contended key.
	maxTxRetries = 10
)

// Store persists job status and call records.
type Store struct {
	rdb      redis.UniversalClient
	jobTTL   time.Duration
	leadsTTL time.Duration
	callTTL  time.Duration
}

// NewStore creates a Store. Zero TTLs fall back to 24h for jobs and 1h for
// the lead cache and call records.
func NewStore(rdb redis.UniversalClient, jobTTL, leadsTTL, callTTL time.Duration) *Store {
	if jobTTL <= 0 {
		jobTTL = 24 * time.Hour
	}
	if leadsTTL <= 0 {
		leadsTTL = time.Hour
	}
	if callTTL <= 0 {
		callTTL = time.Hour
	}
	return &Store{rdb: rdb, jobTTL: jobTTL, leadsTTL: leadsTTL, callTTL: callTTL}
}

// NormalizeJobID reduces any accepted alias ("site||id" or "id") to the bare id.
func NormalizeJobID(jobID string) string {
	jobID = strings.TrimSpace(jobID)
	if i := strings.LastIndex(jobID, "||"); i >= 0 {
		return jobID[i+2:]
	}
	return jobID
}

// NormalizeCallID accepts the same "site||id" alias as job ids, and the full
// cache key, and returns the bare provider call id.
func NormalizeCallID(callID string) string {
	return strings.TrimPrefix(NormalizeJobID(callID), callKeyPrefix)
}

func callKey(callID string) string {
	return callKeyPrefix + NormalizeCallID(callID)
}

func jobKey(jobID string) string {
	return jobKeyPrefix + NormalizeJobID(jobID)
}

// --- Bulk job records ---

// Create writes a new record. It fails with store.ErrDuplicate when the id is taken.
func (s *Store) Create(ctx context.Context, rec *models.JobStatus) error {
	if rec == nil || NormalizeJobID(rec.JobID) == "" {
		return fmt.Errorf("job record needs a job id")
	}
	now := time.Now().UTC()
	rec.SimpleJobID = NormalizeJobID(rec.JobID)
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	rec.Progress = clampProgress(rec.Progress)
	if rec.SuccessfulLeads == nil {
		rec.SuccessfulLeads = []models.LeadOutcome{}
	}
	if rec.FailedLeads == nil {
		rec.FailedLeads = []models.LeadOutcome{}
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal job record: %w", err)
	}
	ok, err := s.rdb.SetNX(ctx, jobKey(rec.JobID), payload, s.jobTTL).Result()
	if err != nil {
		return fmt.Errorf("create job record %s: %w", rec.SimpleJobID, err)
	}
	if !ok {
		return store.ErrDuplicate
	}
	return nil
}

// Get returns the record for any alias of jobID, or store.ErrNotFound.
func (s *Store) Get(ctx context.Context, jobID string) (*models.JobStatus, error) {
	data, err := s.rdb.Get(ctx, jobKey(jobID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get job record %s: %w", jobID, err)
	}
	var rec models.JobStatus
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode job record %s: %w", jobID, err)
	}
	return &rec, nil
}

// Update applies mutate inside an optimistic transaction and returns the
// stored result. Progress is clamped to [0,100] and never moves backwards.
func (s *Store) Update(ctx context.Context, jobID string, mutate func(*models.JobStatus)) (*models.JobStatus, error) {
	key := jobKey(jobID)
	var result *models.JobStatus

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return store.ErrNotFound
			}
			return err
		}
		var rec models.JobStatus
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("decode job record: %w", err)
		}
		before := rec.Progress
		mutate(&rec)
		rec.Progress = clampProgress(rec.Progress)
		if rec.Progress < before {
			rec.Progress = before
		}
		rec.UpdatedAt = time.Now().UTC()

		payload, err := json.Marshal(&rec)
		if err != nil {
			return fmt.Errorf("marshal job record: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, s.jobTTL)
			return nil
		})
		if err != nil {
			return err
		}
		result = &rec
		return nil
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			log.WithField("job_id", jobID).Debug("Job record changed during update, retrying")
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("update job record %s: %w", jobID, store.ErrConflict)
}

// List returns every live job record, newest first.
func (s *Store) List(ctx context.Context) ([]*models.JobStatus, error) {
	var keys []string
	iter := s.rdb.Scan(ctx, 0, jobKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan job records: %w", err)
	}

	jobs := make([]*models.JobStatus, 0, len(keys))
	for _, key := range keys {
		rec, err := s.Get(ctx, strings.TrimPrefix(key, jobKeyPrefix))
		if err != nil {
			// Expired between SCAN and GET, or unreadable.
			if !errors.Is(err, store.ErrNotFound) {
				log.Warnf("Skipping job record %s: %v", key, err)
			}
			continue
		}
		jobs = append(jobs, rec)
	}
	sort.SliceStable(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs, nil
}

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// --- Last bulk leads ---

// CacheLeads remembers the lead list of the most recent bulk run.
func (s *Store) CacheLeads(ctx context.Context, leads []*models.Lead) error {
	payload, err := json.Marshal(leads)
	if err != nil {
		return fmt.Errorf("marshal leads: %w", err)
	}
	if err := s.rdb.Set(ctx, lastLeadsKey, payload, s.leadsTTL).Err(); err != nil {
		return fmt.Errorf("cache leads: %w", err)
	}
	return nil
}

// LastLeads returns the cached lead list or store.ErrNotFound.
func (s *Store) LastLeads(ctx context.Context) ([]*models.Lead, error) {
	data, err := s.rdb.Get(ctx, lastLeadsKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("read cached leads: %w", err)
	}
	var leads []*models.Lead
	if err := json.Unmarshal(data, &leads); err != nil {
		return nil, fmt.Errorf("decode cached leads: %w", err)
	}
	return leads, nil
}

// --- Voice call records ---

// SaveCall stores the latest observed state of a call.
func (s *Store) SaveCall(ctx context.Context, rec *models.CallRecord) error {
	if rec == nil || NormalizeCallID(rec.CallID) == "" {
		return fmt.Errorf("call record needs a call id")
	}
	rec.CallID = NormalizeCallID(rec.CallID)
	rec.UpdatedAt = time.Now().UTC()
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal call record: %w", err)
	}
	if err := s.rdb.Set(ctx, callKey(rec.CallID), payload, s.callTTL).Err(); err != nil {
		return fmt.Errorf("save call record %s: %w", rec.CallID, err)
	}
	return nil
}

// GetCall returns a cached call record or store.ErrNotFound.
func (s *Store) GetCall(ctx context.Context, callID string) (*models.CallRecord, error) {
	callID = NormalizeCallID(callID)
	if callID == "" {
		return nil, store.ErrNotFound
	}
	data, err := s.rdb.Get(ctx, callKey(callID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get call record %s: %w", callID, err)
	}
	var rec models.CallRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode call record %s: %w", callID, err)
	}
	return &rec, nil
}
