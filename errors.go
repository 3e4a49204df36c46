package capsolver

import (
	"fmt"
	"slices"
)

// ConfigurationError is returned when a required input is missing or still
// holds its placeholder value. It is always detected before any network call.
type ConfigurationError struct {
	Field   string
	Message string
}

func NewConfigurationError(field, message string) *ConfigurationError {
	return &ConfigurationError{
		Field:   field,
		Message: message,
	}
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("configuration error: %s", e.Message)
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Message)
}

// TaskCreationError is returned when createTask reports a non-zero errorId.
type TaskCreationError struct {
	ErrorID     int
	Code        string
	Description string
}

func NewTaskCreationError(errorID int, code, description string) *TaskCreationError {
	return &TaskCreationError{
		ErrorID:     errorID,
		Code:        code,
		Description: description,
	}
}

func (e *TaskCreationError) Error() string {
	desc := e.Description
	if desc == "" {
		desc = "Unknown error"
	}
	return fmt.Sprintf("failed to create task: %s", desc)
}

// Fatal reports whether the error code is account-level and will not go away
// by submitting the task again.
func (e *TaskCreationError) Fatal() bool {
	return IsFatal(e.Code)
}

// TaskFailedError is returned when polling observes a terminal "failed" status.
type TaskFailedError struct {
	TaskID      TaskHandle
	Description string
}

func NewTaskFailedError(taskID TaskHandle, description string) *TaskFailedError {
	return &TaskFailedError{
		TaskID:      taskID,
		Description: description,
	}
}

func (e *TaskFailedError) Error() string {
	return fmt.Sprintf("task failed: %s", e.Description)
}

// TimeoutError is returned when the attempt budget is exhausted or the
// context ends before the task reaches a terminal status.
type TimeoutError struct {
	Message string
	Cause   error
}

func NewTimeoutError(message string, cause error) *TimeoutError {
	return &TimeoutError{
		Message: message,
		Cause:   cause,
	}
}

func (e *TimeoutError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("timeout: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("timeout: %s", e.Message)
}

func (e *TimeoutError) Unwrap() error {
	return e.Cause
}

// ConnectionError is returned when the API cannot be reached or its
// response cannot be read.
type ConnectionError struct {
	Message string
	Cause   error
}

func NewConnectionError(message string, cause error) *ConnectionError {
	return &ConnectionError{
		Message: message,
		Cause:   cause,
	}
}

func (e *ConnectionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("connection error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("connection error: %s", e.Message)
}

func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// APIError is returned when the API answers outside the task envelope, either
// with a non-JSON error page or with an errorId on a non-task endpoint.
type APIError struct {
	Message    string
	Code       string
	StatusCode int
}

func NewAPIError(message, code string, statusCode int) *APIError {
	return &APIError{
		Message:    message,
		Code:       code,
		StatusCode: statusCode,
	}
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("API error (status %d, %s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
}

var fatalErrorCodes = []string{
	"ERROR_KEY_DENIED_ACCESS",
	"ERROR_KEY_DOES_NOT_EXIST",
	"ERROR_WRONG_USER_KEY",
	"ERROR_ZERO_BALANCE",
	"ERROR_IP_NOT_ALLOWED",
	"ERROR_IP_BANNED",
	"ERROR_SERVICE_UNAVALIABLE",
}

// IsFatal reports whether a CapSolver error code is account-level.
func IsFatal(code string) bool {
	return slices.Contains(fatalErrorCodes, code)
}
