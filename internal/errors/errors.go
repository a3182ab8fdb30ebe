package errors

import (
	stdErrors "errors"
	"fmt"
	"maps"
	"net/http"
	"strconv"
	"sync"
)

// Code 是跨模块统一的错误码，也是 API 响应里的 error.code。
type Code string

// Severity 决定告警与审计日志的级别。
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

const (
	CodeUnknown               Code = "UNKNOWN"
	CodeInvalidArgument       Code = "INVALID_ARGUMENT"
	CodeNotFound              Code = "NOT_FOUND"
	CodeConflict              Code = "CONFLICT"
	CodeInitializationFailure Code = "INITIALIZATION_FAILURE"
	CodeStorageFailure        Code = "STORAGE_FAILURE"
	CodeQueueFailure          Code = "QUEUE_FAILURE"
	CodeTimeout               Code = "TIMEOUT"

	// 动作处理管道只会向调用方暴露以下三类错误。
	CodeConfiguration Code = "CONFIGURATION_ERROR"
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeAPI           Code = "API_ERROR"
)

// 元数据键。
const (
	MetadataStatusCode = "status_code"
	MetadataMethod     = "method"
)

// Attributes 是错误码的默认行为；HTTPStatus 为 0 时按 500 处理。
type Attributes struct {
	Message    string
	Severity   Severity
	Retryable  bool
	Alert      bool
	HTTPStatus int
}

var (
	registryMu sync.RWMutex
	registry   = map[Code]Attributes{
		CodeUnknown:               {Message: "unknown error", Severity: SeverityCritical, Alert: true},
		CodeInvalidArgument:       {Message: "invalid argument", Severity: SeverityInfo, HTTPStatus: http.StatusBadRequest},
		CodeNotFound:              {Message: "resource not found", Severity: SeverityInfo, HTTPStatus: http.StatusNotFound},
		CodeConflict:              {Message: "resource conflict", Severity: SeverityWarning, HTTPStatus: http.StatusConflict},
		CodeInitializationFailure: {Message: "service not initialized", Severity: SeverityWarning, Retryable: true, Alert: true, HTTPStatus: http.StatusServiceUnavailable},
		CodeStorageFailure:        {Message: "storage failure", Severity: SeverityCritical, Retryable: true, Alert: true},
		CodeQueueFailure:          {Message: "queue failure", Severity: SeverityCritical, Retryable: true, Alert: true},
		CodeTimeout:               {Message: "operation timed out", Severity: SeverityWarning, Alert: true, HTTPStatus: http.StatusGatewayTimeout},
		CodeConfiguration:         {Message: "configuration error", Severity: SeverityCritical, Alert: true, HTTPStatus: http.StatusServiceUnavailable},
		CodeValidation:            {Message: "invalid request", Severity: SeverityInfo, HTTPStatus: http.StatusUnprocessableEntity},
		CodeAPI:                   {Message: "remote api failure", Severity: SeverityWarning, Alert: true, HTTPStatus: http.StatusBadGateway},
	}
)

// Register 供业务包在 init 中登记自己的错误码，重复登记会覆盖。
func Register(code Code, attr Attributes) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[code] = attr
}

// AttributesOf 返回错误码的属性，未登记的错误码按 UNKNOWN 处理。
func AttributesOf(code Code) Attributes {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if attr, ok := registry[code]; ok {
		return attr
	}
	return registry[CodeUnknown]
}

// Error 携带错误码、面向调用方的消息、底层原因与可覆盖的默认行为。
type Error struct {
	code     Code
	message  string
	cause    error
	metadata map[string]string

	retryable *bool
	alert     *bool
	severity  *Severity
}

// Option 调整单个错误实例。
type Option func(*Error)

// WithMetadata 附加一个键值。
func WithMetadata(key, value string) Option {
	return func(e *Error) {
		if e.metadata == nil {
			e.metadata = make(map[string]string, 1)
		}
		e.metadata[key] = value
	}
}

// WithStatusCode 记录上游返回的 HTTP 状态码。
func WithStatusCode(status int) Option {
	return WithMetadata(MetadataStatusCode, strconv.Itoa(status))
}

// WithRetryable 覆盖错误码默认的可重试属性。
func WithRetryable(retryable bool) Option {
	return func(e *Error) { e.retryable = &retryable }
}

// WithAlert 覆盖错误码默认的告警属性。
func WithAlert(alert bool) Option {
	return func(e *Error) { e.alert = &alert }
}

// WithSeverity 覆盖错误码默认的严重程度。
func WithSeverity(sev Severity) Option {
	return func(e *Error) { e.severity = &sev }
}

// New 创建错误，message 为空时取错误码登记的默认消息。
func New(code Code, message string, opts ...Option) *Error {
	if message == "" {
		message = AttributesOf(code).Message
	}
	e := &Error{code: code, message: message}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Wrap 与 New 相同，并保留 cause 以便 errors.Is/As 继续匹配。
func Wrap(code Code, cause error, message string, opts ...Option) *Error {
	e := New(code, message, opts...)
	e.cause = cause
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause == nil {
		return fmt.Sprintf("[%s] %s", e.code, e.message)
	}
	return fmt.Sprintf("[%s] %s: %v", e.code, e.message, e.cause)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is 让 errors.Is 按错误码比较两个 *Error。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e != nil && t != nil && e.code == t.code
}

// Code 返回错误码，nil 时为 UNKNOWN。
func (e *Error) Code() Code {
	if e == nil {
		return CodeUnknown
	}
	return e.code
}

// Message 是不含错误码与原因的消息，管道用它拼出 "Error in <method>: <message>"。
func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

// Metadata 返回元数据副本。
func (e *Error) Metadata() map[string]string {
	if e == nil || len(e.metadata) == 0 {
		return nil
	}
	return maps.Clone(e.metadata)
}

// Method 返回出错的 Ankr 方法名，没有记录时为空。
func (e *Error) Method() string {
	if e == nil {
		return ""
	}
	return e.metadata[MetadataMethod]
}

// StatusCode 返回上游 HTTP 状态码，没有时为 0。
func (e *Error) StatusCode() int {
	if e == nil {
		return 0
	}
	status, err := strconv.Atoi(e.metadata[MetadataStatusCode])
	if err != nil {
		return 0
	}
	return status
}

func (e *Error) attributes() Attributes {
	return AttributesOf(e.Code())
}

// Retryable 判断是否可重试。
func (e *Error) Retryable() bool {
	switch {
	case e == nil:
		return false
	case e.retryable != nil:
		return *e.retryable
	}
	return e.attributes().Retryable
}

// ShouldAlert 判断是否需要告警。
func (e *Error) ShouldAlert() bool {
	switch {
	case e == nil:
		return false
	case e.alert != nil:
		return *e.alert
	}
	return e.attributes().Alert
}

// Severity 返回严重程度。
func (e *Error) Severity() Severity {
	switch {
	case e == nil:
		return SeverityInfo
	case e.severity != nil:
		return *e.severity
	}
	return e.attributes().Severity
}

// HTTPStatus 返回该错误在 API 响应中使用的状态码。
func (e *Error) HTTPStatus() int {
	if status := e.attributes().HTTPStatus; status > 0 {
		return status
	}
	return http.StatusInternalServerError
}

// From 在错误链中查找 *Error。
func From(err error) (*Error, bool) {
	var target *Error
	if err != nil && stdErrors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// CodeOf 返回错误链中的错误码，找不到时为 UNKNOWN。
func CodeOf(err error) Code {
	e, _ := From(err)
	return e.Code()
}

// Is 判断错误链中是否携带指定错误码。
func Is(err error, code Code) bool {
	e, ok := From(err)
	return ok && e.Code() == code
}

// RetryableError 判断任意 error 是否可重试，非 *Error 一律不可重试。
func RetryableError(err error) bool {
	e, _ := From(err)
	return e.Retryable()
}

// ShouldAlert 判断任意 error 是否需要告警。
func ShouldAlert(err error) bool {
	e, _ := From(err)
	return e.ShouldAlert()
}

// SeverityOf 返回任意 error 的严重程度，非 *Error 按 UNKNOWN 处理。
func SeverityOf(err error) Severity {
	if e, ok := From(err); ok {
		return e.Severity()
	}
	return AttributesOf(CodeUnknown).Severity
}

// HTTPStatusOf 把任意 error 映射为 API 响应状态码。
func HTTPStatusOf(err error) int {
	if err == nil {
		return http.StatusOK
	}
	e, ok := From(err)
	if !ok {
		return http.StatusInternalServerError
	}
	return e.HTTPStatus()
}
