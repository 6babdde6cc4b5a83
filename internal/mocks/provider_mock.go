package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"comic-server/internal/model"
	"comic-server/internal/provider"
)

// MockProviderClient is a mock type for the provider.Client type
type MockProviderClient struct {
	mock.Mock

	DegradedMode bool
}

// CompleteText provides a mock function with given fields: ctx, prompt, modelName
func (_m *MockProviderClient) CompleteText(ctx context.Context, prompt string, modelName string) (string, error) {
	ret := _m.Called(ctx, prompt, modelName)

	var r0 string
	if rf, ok := ret.Get(0).(func(context.Context, string, string) string); ok {
		r0 = rf(ctx, prompt, modelName)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(string)
		}
	}

	return r0, ret.Error(1)
}

// SynthesizeImage provides a mock function with given fields: ctx, prompt, style
func (_m *MockProviderClient) SynthesizeImage(ctx context.Context, prompt string, style model.StyleCategory) (string, error) {
	ret := _m.Called(ctx, prompt, style)

	var r0 string
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(string)
	}
	return r0, ret.Error(1)
}

// Moderate provides a mock function with given fields: ctx, text
func (_m *MockProviderClient) Moderate(ctx context.Context, text string) (provider.Moderation, error) {
	ret := _m.Called(ctx, text)

	var r0 provider.Moderation
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(provider.Moderation)
	}
	return r0, ret.Error(1)
}

// Degraded reports the configured operating mode.
func (_m *MockProviderClient) Degraded() bool {
	return _m.DegradedMode
}
