package locate

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Strategy 是一次“定位尝试”：Name 用于错误说明，Find 返回目标或错误。
type Strategy[T any] struct {
	Name string
	Find func(ctx context.Context) (T, error)
}

// Attempt 记录一次失败的尝试（用于解释为什么所有策略都没命中）。
type Attempt struct {
	Strategy string
	Err      error
}

// NotFoundError 表示所有策略都失败了。
// 上层只需要区分“找到/找不到”，具体原因保留在 Attempts 里。
type NotFoundError struct {
	What     string
	Attempts []Attempt
}

func (e *NotFoundError) Error() string {
	if len(e.Attempts) == 0 {
		return fmt.Sprintf("未找到元素 %s（没有可用的定位策略）", e.What)
	}
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", a.Strategy, a.Err))
	}
	return fmt.Sprintf("未找到元素 %s：%s", e.What, strings.Join(parts, "; "))
}

// Unwrap 返回最后一次尝试的错误（通常是超时），便于 errors.Is(ctx 错误)。
func (e *NotFoundError) Unwrap() error {
	if len(e.Attempts) == 0 {
		return nil
	}
	return e.Attempts[len(e.Attempts)-1].Err
}

// IsNotFound 判断 err 是否为 NotFoundError。
func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

// First 按顺序尝试 strategies，第一个成功者胜出。
//
// 约束：
// - 前一个策略失败不会中断链路，只记录到 Attempts
// - ctx 已取消时立即停止（不再尝试后续策略），返回 ctx 错误
// - 全部失败：返回 *NotFoundError
func First[T any](ctx context.Context, what string, strategies ...Strategy[T]) (T, error) {
	var zero T
	nf := &NotFoundError{What: what, Attempts: make([]Attempt, 0, len(strategies))}
	for _, s := range strategies {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		if s.Find == nil {
			nf.Attempts = append(nf.Attempts, Attempt{Strategy: s.Name, Err: errors.New("find 为空")})
			continue
		}
		v, err := s.Find(ctx)
		if err == nil {
			return v, nil
		}
		nf.Attempts = append(nf.Attempts, Attempt{Strategy: s.Name, Err: err})
	}
	return zero, nf
}
