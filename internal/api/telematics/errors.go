package telematics

import (
	"errors"
	"fmt"
	"net/http"
)

// 错误定义
var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrRateLimited  = errors.New("rate limited")
)

// RequestError 上游请求失败（网络错误或非 2xx 状态码）
type RequestError struct {
	Op         string
	StatusCode int // 0 表示请求未得到响应
	Body       string
	Err        error
}

func (e *RequestError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s failed: status=%d body=%s", e.Op, e.StatusCode, e.Body)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// statusError 根据状态码构造错误
func statusError(op string, status int, body []byte) *RequestError {
	e := &RequestError{Op: op, StatusCode: status, Body: string(body)}
	switch status {
	case http.StatusNotFound:
		e.Err = ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		e.Err = ErrUnauthorized
	case http.StatusTooManyRequests:
		e.Err = ErrRateLimited
	}
	return e
}
