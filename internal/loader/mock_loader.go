package loader

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockLoader is a mock implementation of Loader using testify/mock.
type MockLoader struct {
	mock.Mock
}

func (m *MockLoader) Load(ctx context.Context, src Source) (string, error) {
	args := m.Called(ctx, src)
	return args.String(0), args.Error(1)
}
