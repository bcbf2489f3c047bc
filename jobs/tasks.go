package jobs

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskGodownReconcile recomputes per-godown stock aggregates from batches.
	TaskGodownReconcile = "stock:godown_reconcile"
)

// GodownReconcilePayload names the aggregate to rebuild. Zero values mean
// "all items" / "all godowns".
type GodownReconcilePayload struct {
	ItemID   int64 `json:"item_id"`
	GodownID int64 `json:"godown_id"`
}

// NewGodownReconcileTask constructs an Asynq task.
func NewGodownReconcileTask(payload GodownReconcilePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskGodownReconcile, data, asynq.Queue(QueueDefault)), nil
}

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) (*Client, error) {
	client := asynq.NewClient(redisOpts)
	return &Client{client: client}, nil
}

// EnqueueGodownReconcile enqueues a godown aggregate rebuild.
func (c *Client) EnqueueGodownReconcile(ctx context.Context, itemID, godownID int64) error {
	task, err := NewGodownReconcileTask(GodownReconcilePayload{ItemID: itemID, GodownID: godownID})
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
	return err
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}
