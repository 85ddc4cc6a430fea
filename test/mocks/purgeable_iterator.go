// Package mocks provides mock implementations for testing.
package mocks

import (
	"github.com/stretchr/testify/mock"

	"github.com/evstack/ev-derive/core/derive"
)

// NewMockPurgeableIterator creates a new instance of MockPurgeableIterator.
// It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
func NewMockPurgeableIterator[T any](t interface {
	mock.TestingT
	Cleanup(func())
}) *MockPurgeableIterator[T] {
	m := &MockPurgeableIterator[T]{}
	m.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}

// MockPurgeableIterator is a mock upstream stage.
type MockPurgeableIterator[T any] struct {
	mock.Mock
}

var _ derive.PurgeableIterator[int] = (*MockPurgeableIterator[int])(nil)

// Next implements the Iterator interface.
func (m *MockPurgeableIterator[T]) Next() derive.Result[T] {
	args := m.Called()
	return args.Get(0).(derive.Result[T])
}

// Purge implements the PurgeableIterator interface.
func (m *MockPurgeableIterator[T]) Purge() {
	m.Called()
}

// ExpectValues queues one Next call per value, followed by a single NotReady.
func (m *MockPurgeableIterator[T]) ExpectValues(values ...T) {
	for _, v := range values {
		m.On("Next").Return(derive.Ready(v)).Once()
	}
	m.On("Next").Return(derive.NotReady[T]()).Once()
}
