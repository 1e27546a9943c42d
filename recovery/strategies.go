package recovery

import "fmt"

// StrictStrategy fails on the first defect.
type StrictStrategy struct{}

func NewStrictStrategy() *StrictStrategy {
	return &StrictStrategy{}
}

func (s *StrictStrategy) OnError(err error, location Location) Action {
	return ActionFail
}

// PermissiveStrategy keeps what it can and records every defect so a
// caller can inspect them after the operation finishes.
type PermissiveStrategy struct {
	Errors []error
}

func NewPermissiveStrategy() *PermissiveStrategy {
	return &PermissiveStrategy{}
}

func (s *PermissiveStrategy) OnError(err error, location Location) Action {
	s.Errors = append(s.Errors, fmt.Errorf("[%s] object %d offset %d: %w",
		location.Component, location.ObjectNum, location.ByteOffset, err))
	return ActionFix
}
