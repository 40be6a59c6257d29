package queue

import "errors"

// Queue errors
var (
	ErrQueueTimeout    = errors.New("queue timeout")
	ErrQueueFull       = errors.New("processing queue is full")
	ErrQueueClosed     = errors.New("processing queue is closed")
	ErrRequestNotFound = errors.New("request not found")
)
