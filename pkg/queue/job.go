package queue

import "context"

// Job handles one message type pulled from the queue.
type Job interface {
	Name() string
	Type() string
	Handle(ctx context.Context, payload interface{}) error
}

// FuncJob adapts a plain function to Job.
type FuncJob struct {
	JobName string
	MsgType string
	Fn      MessageHandler
}

func (j FuncJob) Name() string { return j.JobName }
func (j FuncJob) Type() string { return j.MsgType }

func (j FuncJob) Handle(ctx context.Context, payload interface{}) error {
	return j.Fn(ctx, payload)
}
