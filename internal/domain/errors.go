package domain

import "errors"

var (
	// ErrBridgeResourceMissing is returned when the embedded bridge script cannot be found
	ErrBridgeResourceMissing = errors.New("embedded bridge resource not found")

	// ErrBridgeUnavailable is returned when the bridge process is not serving requests
	ErrBridgeUnavailable = errors.New("product bridge unavailable")

	// ErrBridgeRequestFailed is returned when an HTTP request to the bridge fails
	ErrBridgeRequestFailed = errors.New("product bridge request failed")

	// ErrMalformedPayload is returned when a bridge response cannot be decoded
	ErrMalformedPayload = errors.New("malformed bridge payload")

	// ErrBridgeReportedFailure is returned when the bridge answers with success=false
	ErrBridgeReportedFailure = errors.New("product bridge reported failure")

	// ErrRecordRejected is returned when a raw record cannot be normalized into a product
	ErrRecordRejected = errors.New("raw product record rejected")

	// ErrInvalidRequest is returned when request parameters are invalid
	ErrInvalidRequest = errors.New("invalid request parameters")

	// ErrPoolClosed is returned when work is submitted to a stopped worker pool
	ErrPoolClosed = errors.New("worker pool closed")
)
