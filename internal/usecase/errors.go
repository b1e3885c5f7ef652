package usecase

import "errors"

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotAllowed   = errors.New("not allowed")
)
