package notify

import (
	"fmt"
	"time"
)

// ThrottleError возвращается, когда принимающая сторона просит притормозить
// (обычно 429 с заголовком Retry-After)
type ThrottleError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("throttled: retry after %v (cause: %v)", e.RetryAfter, e.Cause)
}
