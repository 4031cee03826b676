package chatlog

import "github.com/tokmz/spaces/pkg/errors"

var (
	ErrQueueFull     = errors.New(3201, "CHATLOG_QUEUE_FULL", "chat log queue is full", 503)
	ErrClosed        = errors.New(3202, "CHATLOG_CLOSED", "chat log is closed", 503)
	ErrInvalidConfig = errors.New(3203, "CHATLOG_INVALID_CONFIG", "chat log invalid config", 500)
	ErrWrite         = errors.New(3204, "CHATLOG_WRITE", "chat log write failed", 500)
)
