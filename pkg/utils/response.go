package utils

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/zhouzirui/z-chat/backend/pkg/apperr"
)

// RespondJSON 发送JSON响应
func RespondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Warn("encode_response_failed", zap.Error(err))
	}
}

// RespondError 发送错误响应
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, apperr.Body{Error: message})
}

// RespondErr 根据错误类型映射状态码并发送错误响应，500 不暴露内部细节
func RespondErr(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		zap.L().Error("request_failed", zap.Error(err))
		message = "internal server error"
	}
	RespondJSON(w, status, apperr.Body{Error: message, Kind: apperr.Kind(err)})
}

// MaxJSONBytes 限制 JSON 请求体大小，足以容纳最长的文本消息
const MaxJSONBytes = 64 << 10

// DecodeJSON 解析请求体，超过 MaxJSONBytes 或格式错误时返回 InvalidInput
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxJSONBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.Invalid("request body exceeds %d bytes", MaxJSONBytes)
		}
		return apperr.Invalid("malformed JSON body: %v", err)
	}
	return nil
}
