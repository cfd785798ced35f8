package error

import "net/http"

type NotFoundError string

func (err NotFoundError) Error() string {
	return string(err)
}

func (err NotFoundError) ErrCode() string {
	return "NOT_FOUND_ERROR"
}

func (err NotFoundError) StatusCode() int {
	return http.StatusNotFound
}

// IntentNotFoundError carries its own code so API callers can tell a missing
// message intent from any other 404.
type IntentNotFoundError string

func (err IntentNotFoundError) Error() string {
	return string(err)
}

func (err IntentNotFoundError) ErrCode() string {
	return "MESSAGE_INTENT_NOT_FOUND"
}

func (err IntentNotFoundError) StatusCode() int {
	return http.StatusNotFound
}
