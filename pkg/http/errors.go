package http

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is an error that knows the status it should be reported with.
// Only Code and Message reach the client.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Code + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
}

func (e *AppError) Unwrap() error { return e.Err }

const (
	CodeNotFound    = "ERR_NOT_FOUND"
	CodeBadRequest  = "ERR_BAD_REQUEST"
	CodeUnavailable = "ERR_UNAVAILABLE"
	CodeInternal    = "ERR_INTERNAL"
)

func NotFoundError(msg string) *AppError {
	return &AppError{Code: CodeNotFound, Message: msg, Status: http.StatusNotFound}
}

func BadRequestError(msg string) *AppError {
	return &AppError{Code: CodeBadRequest, Message: msg, Status: http.StatusBadRequest}
}

// UnavailableError reports a dependency that cannot serve right now.
func UnavailableError(msg string) *AppError {
	return &AppError{Code: CodeUnavailable, Message: msg, Status: http.StatusServiceUnavailable}
}

func InternalError(msg string) *AppError {
	return &AppError{Code: CodeInternal, Message: msg, Status: http.StatusInternalServerError}
}

// ErrorMap turns domain errors into AppErrors. Rules are matched with
// errors.Is in the order they were added; an *AppError anywhere in the
// chain wins over every rule.
type ErrorMap struct {
	rules []errorRule
}

type errorRule struct {
	target error
	build  func(msg string) *AppError
}

func NewErrorMap() *ErrorMap { return &ErrorMap{} }

func (m *ErrorMap) NotFound(targets ...error) *ErrorMap    { return m.add(NotFoundError, targets) }
func (m *ErrorMap) BadRequest(targets ...error) *ErrorMap  { return m.add(BadRequestError, targets) }
func (m *ErrorMap) Unavailable(targets ...error) *ErrorMap { return m.add(UnavailableError, targets) }

func (m *ErrorMap) add(build func(string) *AppError, targets []error) *ErrorMap {
	for _, t := range targets {
		m.rules = append(m.rules, errorRule{target: t, build: build})
	}
	return m
}

// Resolve maps err. Unmatched errors become a 500 whose message does not
// leak err.
func (m *ErrorMap) Resolve(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	for _, r := range m.rules {
		if errors.Is(err, r.target) {
			e := r.build(err.Error())
			e.Err = err
			return e
		}
	}
	e := InternalError("internal error")
	e.Err = err
	return e
}
