package testutil

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/haukkala/procpilot/internal/pm2"
)

type MockSupervisorClient struct {
	mock.Mock
}

func (m *MockSupervisorClient) List(ctx context.Context) ([]pm2.Process, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]pm2.Process), args.Error(1)
}

func (m *MockSupervisorClient) Get(
	ctx context.Context,
	name string,
) (*pm2.Process, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pm2.Process), args.Error(1)
}

func (m *MockSupervisorClient) Start(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

func (m *MockSupervisorClient) Stop(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

func (m *MockSupervisorClient) Restart(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

func (m *MockSupervisorClient) Save(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
