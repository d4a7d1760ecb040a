package rosterapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/goccy/go-json"
)

var (
	ErrMalformedResponse = errors.New("服务器响应格式错误")
	ErrRequest           = errors.New("请求发送失败")
)

// APIError 表示服务器明确返回了 success=false
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("服务器返回错误 (%d): %s", e.StatusCode, e.Message)
}

// envelope 与服务端 handler.Response 对应，success 使用指针以便区分字段缺失
type envelope struct {
	Success *bool           `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// decodeEnvelope 是唯一的响应解析入口，任何形状不符的响应都当作 ErrMalformedResponse 处理，不做兜底猜测
func decodeEnvelope(resp *http.Response, out any) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: 读取响应失败: %v", ErrMalformedResponse, err)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("%w: 状态码 %d: %v", ErrMalformedResponse, resp.StatusCode, err)
	}
	if env.Success == nil {
		return fmt.Errorf("%w: 状态码 %d: 缺少 success 字段", ErrMalformedResponse, resp.StatusCode)
	}

	if !*env.Success {
		return &APIError{StatusCode: resp.StatusCode, Message: env.Message}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: 状态码 %d 与 success=true 不一致", ErrMalformedResponse, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if len(env.Data) == 0 {
		return fmt.Errorf("%w: 缺少 data 字段", ErrMalformedResponse)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%w: 无法解析 data: %v", ErrMalformedResponse, err)
	}

	return nil
}
