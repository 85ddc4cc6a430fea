package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/evstack/ev-derive/types"
)

// NewMockEngine creates a new instance of MockEngine.
// It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
func NewMockEngine(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockEngine {
	m := &MockEngine{}
	m.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}

// MockEngine is a mock execution engine.
type MockEngine struct {
	mock.Mock
}

// Execute implements the driver Engine interface.
func (m *MockEngine) Execute(ctx context.Context, parent types.BlockInfo, attrs *types.PayloadAttributes) (types.BlockInfo, error) {
	args := m.Called(ctx, parent, attrs)
	return args.Get(0).(types.BlockInfo), args.Error(1)
}
