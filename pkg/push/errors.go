package push

import "errors"

var (
	ErrInvalidConfig = errors.New("push: invalid config")
	ErrInvalidToken  = errors.New("push: invalid device token")
)
