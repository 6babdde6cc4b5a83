package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"comic-server/internal/quota"
)

// MockQuotaStore is a mock type for the quota.Store type
type MockQuotaStore struct {
	mock.Mock
}

// Check provides a mock function with given fields: ctx, identity
func (_m *MockQuotaStore) Check(ctx context.Context, identity string) (quota.Decision, error) {
	ret := _m.Called(ctx, identity)

	var r0 quota.Decision
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(quota.Decision)
	}
	return r0, ret.Error(1)
}

// Sweep provides a mock function with given fields: ctx
func (_m *MockQuotaStore) Sweep(ctx context.Context) (int, error) {
	ret := _m.Called(ctx)
	return ret.Int(0), ret.Error(1)
}

// Reset provides a mock function with given fields: ctx
func (_m *MockQuotaStore) Reset(ctx context.Context) error {
	ret := _m.Called(ctx)
	return ret.Error(0)
}
