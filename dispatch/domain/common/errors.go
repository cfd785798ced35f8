package common

import "errors"

var (
	ErrIntentNotFound   = errors.New("message intent not found")
	ErrInstanceNotFound = errors.New("instance not found")
	ErrJobNotFound      = errors.New("execution job not found")
	ErrJobNotClaimable  = errors.New("job is not claimable")
)
