package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	xerrors "OpenMCP-Ankr/internal/errors"
)

const maxBodyBytes = 1 << 20

// errorBody 是所有失败响应的统一结构。
type errorBody struct {
	Error struct {
		Code       string `json:"code"`
		Message    string `json:"message"`
		StatusCode int    `json:"status,omitempty"`
	} `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	var body errorBody
	body.Error.Code = code
	body.Error.Message = message
	writeJSON(w, status, body)
}

// writeFailure 根据统一错误码选择 HTTP 状态。
func writeFailure(w http.ResponseWriter, err error) {
	if err == nil {
		writeError(w, http.StatusInternalServerError, string(xerrors.CodeUnknown), "no result delivered")
		return
	}
	var body errorBody
	body.Error.Code = string(xerrors.CodeOf(err))
	body.Error.Message = err.Error()
	if e, ok := xerrors.From(err); ok {
		body.Error.Message = e.Message()
		body.Error.StatusCode = e.StatusCode()
	}
	writeJSON(w, xerrors.HTTPStatusOf(err), body)
}

// decodeBody 解析 JSON 请求体，拒绝未知字段。
func decodeBody(r *http.Request, dst any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
