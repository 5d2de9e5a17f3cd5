package core

import "github.com/restobook/realtime-server/internal/store"

// SendResult is the outcome of a persist-then-deliver operation.
// Only the originating session ever sees it; fan-out never carries Err.
type SendResult struct {
	Message      *store.Message
	Notification *store.Notification
	Err          *CoreError
}

// OK reports whether the operation succeeded.
func (r SendResult) OK() bool {
	return r.Err == nil
}

func failed(err *CoreError) SendResult {
	return SendResult{Err: err}
}
