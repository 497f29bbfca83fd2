package professional

import "errors"

var (
	ErrNotFound   = errors.New("professional not found")
	ErrValidation = errors.New("invalid profile")
	ErrSlugTaken  = errors.New("slug already taken")
)
