package yuanfenju

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrInvalidResponse 响应结构不符合约定，不重试
	ErrInvalidResponse = errors.New("invalid provider response")
	// ErrTransport 网络层失败（连接错误、超时），可重试
	ErrTransport = errors.New("provider transport failure")
)

// StatusError 非 2xx 响应
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("yuanfenju api error (status %d): %s", e.Code, e.Body)
}

// Retryable 5xx、429、408 可重试，其余 4xx 不重试
func (e *StatusError) Retryable() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests || e.Code == http.StatusRequestTimeout
}

// DataFetchError 获取运势数据最终失败，携带最后一次的底层原因。上层不再重试。
type DataFetchError struct {
	Attempts int
	Err      error
}

func (e *DataFetchError) Error() string {
	return fmt.Sprintf("获取运势数据失败 (尝试 %d 次): %v", e.Attempts, e.Err)
}

func (e *DataFetchError) Unwrap() error { return e.Err }

func retryable(err error) bool {
	if errors.Is(err, ErrTransport) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return false
}
