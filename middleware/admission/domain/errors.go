package domain

import "errors"

var ErrInvalidConfig = errors.New("invalid admission config")
