package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/chiwei-platform/phost/internal/domain"
	"github.com/go-chi/chi/v5"
)

// multipartMemory 超出部分由 net/http 落盘到临时文件。
const multipartMemory = 32 << 20

// refFromRequest 从 {ref} 路径参数与 ?lookup= 构造实体引用。
func refFromRequest(r *http.Request) (domain.Ref, error) {
	field, err := domain.ParseLookupField(r.URL.Query().Get("lookup"))
	if err != nil {
		return domain.Ref{}, err
	}
	value := chi.URLParam(r, "ref")
	if value == "" {
		return domain.Ref{}, fmt.Errorf("%w: reference is required", domain.ErrInvalidInput)
	}
	if field == domain.LookupBySubdomain {
		value = domain.NormalizeSubdomain(value)
	}
	return domain.Ref{Field: field, Value: value}, nil
}

type upload struct {
	Filename string
	Data     []byte
}

// readUpload 解析 multipart 表单并读出 file 字段。
func readUpload(r *http.Request) (*upload, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, fmt.Errorf("%w: upload exceeds %d bytes", domain.ErrInvalidInput, tooLarge.Limit)
		}
		return nil, fmt.Errorf("%w: multipart form: %v", domain.ErrInvalidInput, err)
	}
	f, header, err := r.FormFile("file")
	if err != nil {
		return nil, fmt.Errorf("%w: file is required", domain.ErrInvalidInput)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("%w: read upload: %v", domain.ErrInvalidInput, err)
	}
	return &upload{Filename: header.Filename, Data: data}, nil
}

// formList 合并重复字段与逗号分隔的写法：categories=a&categories=b,c
func formList(r *http.Request, key string) []string {
	var out []string
	for _, v := range r.MultipartForm.Value[key] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func formValue(r *http.Request, key string) string {
	if vs := r.MultipartForm.Value[key]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}
