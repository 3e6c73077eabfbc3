package cloud

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrConflict      = errors.New("concurrent modification")
	ErrDuplicateRule = errors.New("rule already exists")
	ErrRuleNotFound  = errors.New("rule not found")
	ErrInvalid       = errors.New("invalid request")
)
