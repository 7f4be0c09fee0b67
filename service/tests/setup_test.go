package service_test

import (
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/zlnvch/flipbook/service"
	storemocks "github.com/zlnvch/flipbook/store/mocks"
	transportmocks "github.com/zlnvch/flipbook/transport/mocks"
)

func setupService(t *testing.T) (*service.Service, *storemocks.MockKeyValueStore, *transportmocks.MockTransport) {
	t.Helper()
	mockStore := new(storemocks.MockKeyValueStore)
	mockTransport := new(transportmocks.MockTransport)

	// The batcher is real but never run; tests read its channel directly
	svc := service.NewService(mockStore, mockTransport, []byte("secret"), 1000)

	return svc, mockStore, mockTransport
}

// Helper that creates a channel and wraps a mock call to signal when it's called
func wrapMockWithSignal(call *mock.Call) chan struct{} {
	done := make(chan struct{})
	call.Run(func(args mock.Arguments) {
		close(done)
	})
	return done
}
