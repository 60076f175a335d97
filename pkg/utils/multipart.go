package utils

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/zhouzirui/z-chat/backend/pkg/apperr"
)

// multipartOverhead 为表单边界与头部预留的额外字节
const multipartOverhead = 1 << 20

// IsMultipart 判断请求体是否为 multipart 表单
func IsMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && strings.HasPrefix(mediaType, "multipart/")
}

// FormPart 是 multipart 表单中的单个字段，文件或纯文本二选一
type FormPart struct {
	Data   []byte
	IsFile bool
}

// ReadFormPart 读取名为 field 的表单字段，请求体总大小受 limit 约束
func ReadFormPart(w http.ResponseWriter, r *http.Request, field string, limit int64) (FormPart, error) {
	if !IsMultipart(r) {
		return FormPart{}, apperr.Invalid("expected a multipart/form-data body")
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
	if err := r.ParseMultipartForm(limit + multipartOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return FormPart{}, apperr.Invalid("request body too large")
		}
		return FormPart{}, apperr.Invalid("malformed multipart body: %v", err)
	}

	if file, _, err := r.FormFile(field); err == nil {
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			return FormPart{}, apperr.Invalid("read %s part: %v", field, err)
		}
		return FormPart{Data: data, IsFile: true}, nil
	}
	if values, ok := r.MultipartForm.Value[field]; ok && len(values) > 0 {
		return FormPart{Data: []byte(values[0])}, nil
	}
	return FormPart{}, apperr.Invalid("missing %s part", field)
}
