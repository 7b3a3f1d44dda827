package bitmex

import (
	"errors"
	"fmt"
)

// Error categories surfaced by FetchPage. Match them with errors.Is.
var (
	// ErrTransport covers network failures, non-2xx responses and rate limit blocks.
	ErrTransport = errors.New("bitmex transport error")

	// ErrDecode covers bodies that are not a JSON array of quotes.
	ErrDecode = errors.New("bitmex decode error")
)

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 responses and local rate limit blocks.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassDecode represents malformed response bodies.
	ErrorClassDecode ErrorClass = "decode"
)

// APIError is a BitMEX request failure with its classification.
type APIError struct {
	StatusCode int
	ErrorClass ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("BitMEX %s error (status %d): %s: %v",
			e.ErrorClass, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("BitMEX %s error (status %d): %s",
		e.ErrorClass, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// Is matches ErrDecode for decode failures and ErrTransport for everything else.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrDecode:
		return e.ErrorClass == ErrorClassDecode
	case ErrTransport:
		return e.ErrorClass != ErrorClassDecode
	default:
		return false
	}
}

// classifyStatus maps a non-2xx status code to an ErrorClass.
func classifyStatus(statusCode int) ErrorClass {
	switch {
	case statusCode == 429:
		return ErrorClassRateLimit
	case statusCode >= 400 && statusCode < 500:
		return ErrorClassClient
	case statusCode >= 500:
		return ErrorClassServer
	default:
		// 1xx/3xx that the transport did not resolve
		return ErrorClassClient
	}
}
