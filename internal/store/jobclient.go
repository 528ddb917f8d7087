package store

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	log "github.com/sirupsen/logrus"
)

// AsynqJobClient is a concrete JobClient.
// It enqueues tasks on Redis and records each enqueue to the JobStore.
type AsynqJobClient struct {
	client   *asynq.Client
	jobStore JobStore
}

// Ensure AsynqJobClient satisfies the JobClient interface
var _ JobClient = (*AsynqJobClient)(nil)

func NewAsynqJobClient(redisOpt asynq.RedisClientOpt, js JobStore) (*AsynqJobClient, error) {
	if js == nil {
		return nil, fmt.Errorf("JobStore cannot be nil for AsynqJobClient")
	}
	return &AsynqJobClient{client: asynq.NewClient(redisOpt), jobStore: js}, nil
}

func (jc *AsynqJobClient) Close() error {
	return jc.client.Close()
}

// Enqueue enqueues a task and records the event to the JobStore.
// A failed audit write is logged but does not undo the enqueue.
func (jc *AsynqJobClient) Enqueue(ctx context.Context, task *asynq.Task, relatedEntityType, relatedEntityID string, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if jc.client == nil {
		return nil, fmt.Errorf("AsynqJobClient internal client is not initialized")
	}
	info, err := jc.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		log.Errorf("Failed to enqueue task type '%s': %v", task.Type(), err)
		return nil, err
	}
	log.WithFields(log.Fields{"task_id": info.ID, "queue": info.Queue}).Debugf("Enqueued task type '%s'", task.Type())

	recordParams := JobRecordParams{
		JobID:             info.ID,
		TaskType:          task.Type(),
		Payload:           task.Payload(),
		Queue:             info.Queue,
		Status:            "enqueued",
		RelatedEntityType: relatedEntityType,
		RelatedEntityID:   relatedEntityID,
	}
	if err := jc.jobStore.RecordJobEnqueue(ctx, recordParams); err != nil {
		log.Errorf("Failed to record job enqueue event to DB for Task ID %s: %v", info.ID, err)
	}

	return info, nil
}
