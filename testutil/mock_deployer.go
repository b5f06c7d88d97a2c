package testutil

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/haukkala/procpilot/internal/deploy"
	"github.com/haukkala/procpilot/internal/store"
)

type MockDeployer struct {
	mock.Mock
}

func (m *MockDeployer) Create(
	ctx context.Context,
	req deploy.Request,
) (*deploy.Result, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*deploy.Result), args.Error(1)
}

func (m *MockDeployer) Update(
	ctx context.Context,
	name string,
) (*deploy.Result, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*deploy.Result), args.Error(1)
}

func (m *MockDeployer) Delete(
	ctx context.Context,
	name string,
	force bool,
) (*deploy.Result, error) {
	args := m.Called(ctx, name, force)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*deploy.Result), args.Error(1)
}

func (m *MockDeployer) Cancel(name string) bool {
	args := m.Called(name)
	return args.Bool(0)
}

func (m *MockDeployer) GetConfig(name string) (string, string, error) {
	args := m.Called(name)
	return args.String(0), args.String(1), args.Error(2)
}

func (m *MockDeployer) History(
	ctx context.Context,
	name string,
	limit int64,
) ([]store.Deployment, error) {
	args := m.Called(ctx, name, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]store.Deployment), args.Error(1)
}
