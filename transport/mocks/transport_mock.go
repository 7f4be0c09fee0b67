package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockTransport struct {
	mock.Mock
}

func (m *MockTransport) Publish(ctx context.Context, topic string, message []byte) error {
	args := m.Called(ctx, topic, message)
	return args.Error(0)
}

func (m *MockTransport) Subscribe(ctx context.Context, topic string, handler func(message []byte)) error {
	args := m.Called(ctx, topic, handler)
	return args.Error(0)
}
