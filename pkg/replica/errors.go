package replica

import "errors"

var (
	ErrNotMaster          = errors.New("replica is not master")
	ErrNotBound           = errors.New("replica has no update gate")
	ErrTopicExists        = errors.New("topic already exists")
	ErrTopicNotFound      = errors.New("topic not found")
	ErrSubscriberNotFound = errors.New("subscriber not found")
	ErrInvalidUpdate      = errors.New("invalid update")
	ErrBadSnapshot        = errors.New("snapshot cannot be decoded")
)
