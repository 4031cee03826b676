package errors

import "net/http"

// 通用错误码 1000-1099，各包在自己的号段内定义专用错误
var (
	ErrServer       = New(1000, "INTERNAL", "internal server error", http.StatusInternalServerError)
	ErrBadRequest   = New(1001, "BAD_REQUEST", "bad request", http.StatusBadRequest)
	ErrUnauthorized = New(1002, "UNAUTHORIZED", "unauthorized", http.StatusUnauthorized)
	ErrForbidden    = New(1003, "FORBIDDEN", "forbidden", http.StatusForbidden)
	ErrNotFound     = New(1004, "NOT_FOUND", "not found", http.StatusNotFound)
	ErrUnavailable  = New(1005, "UNAVAILABLE", "service unavailable", http.StatusServiceUnavailable)
)
