package poll

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const defaultInterval = 200 * time.Millisecond

// ErrTimeout 表示在给定时限内条件始终未满足。
var ErrTimeout = errors.New("等待超时")

// TimeoutError 携带最后一次谓词错误（若有），方便定位“为什么一直不满足”。
type TimeoutError struct {
	After   time.Duration
	LastErr error
}

func (e *TimeoutError) Error() string {
	if e.LastErr != nil {
		return fmt.Sprintf("%v（%s）：%v", ErrTimeout, e.After, e.LastErr)
	}
	return fmt.Sprintf("%v（%s）", ErrTimeout, e.After)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

func (e *TimeoutError) Unwrap() error { return e.LastErr }

// Until 以 interval 为间隔反复调用 pred，直到返回 true 或超过 timeout。
//
// - 首次检查立即执行（不先等一个 interval）
// - pred 返回错误视为“尚未满足”，继续轮询；超时时附带最后一次错误
// - 父 ctx 取消：直接返回 ctx.Err()（区别于超时）
func Until(ctx context.Context, timeout, interval time.Duration, pred func(ctx context.Context) (bool, error)) error {
	if interval <= 0 {
		interval = defaultInterval
	}

	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	t := time.NewTicker(interval)
	defer t.Stop()

	var lastErr error
	for {
		ok, err := pred(tctx)
		if err == nil && ok {
			return nil
		}
		if err != nil {
			lastErr = err
		}

		select {
		case <-t.C:
		case <-tctx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &TimeoutError{After: timeout, LastErr: lastErr}
		}
	}
}
