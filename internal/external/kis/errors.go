package kis

import "errors"

var (
	// ErrAuthFailure is a rejected credential exchange. Never retried.
	ErrAuthFailure = errors.New("kis: credential exchange failed")
	// ErrUpstream is a non-200 status, rt_cd != "0" or an undecodable payload
	ErrUpstream = errors.New("kis: upstream unavailable")
	// ErrNoData means the call succeeded but returned no usable records
	ErrNoData = errors.New("kis: no data")

	errTokenExpired = errors.New("token expired")
)
