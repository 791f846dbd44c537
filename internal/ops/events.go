package ops

import "github.com/justyntemme/strop/internal/conflict"

// Progress reports bytes moved for one item of a running task.
type Progress struct {
	TaskID         string
	Kind           Kind
	Status         Status
	Item           int
	Source         string
	Outcome        Outcome
	BytesDone      int64
	BytesTotal     int64
	TaskBytesDone  int64
	TaskBytesTotal int64
}

func (Progress) Topic() string { return "ops.progress" }

// Completed is emitted once when a task reaches a terminal status.
type Completed struct {
	Task Task
}

func (Completed) Topic() string { return "ops.completed" }

// ConflictRequest asks the user how to handle one colliding item. Answer it
// with Queue.ResolveConflict.
type ConflictRequest struct {
	conflict.Prompt
}

func (ConflictRequest) Topic() string { return "ops.conflict" }
