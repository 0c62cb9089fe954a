package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/bnema/courseimages/internal/domain"
)

// MockRegistryClient is a mock implementation of out.RegistryClient
type MockRegistryClient struct {
	mock.Mock
}

// Catalog operations
func (m *MockRegistryClient) ListRepositories(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockRegistryClient) ListTags(ctx context.Context, name string) ([]string, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// Manifest operations
func (m *MockRegistryClient) GetManifest(ctx context.Context, name, reference string) (*domain.Manifest, error) {
	args := m.Called(ctx, name, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Manifest), args.Error(1)
}

func (m *MockRegistryClient) PutManifest(ctx context.Context, name, reference string, manifest *domain.Manifest) (string, error) {
	args := m.Called(ctx, name, reference, manifest)
	return args.String(0), args.Error(1)
}

func (m *MockRegistryClient) DeleteManifest(ctx context.Context, name, digest string) error {
	args := m.Called(ctx, name, digest)
	return args.Error(0)
}

// Blob operations
func (m *MockRegistryClient) GetConfig(ctx context.Context, name string, desc domain.Descriptor) (*domain.ImageConfig, error) {
	args := m.Called(ctx, name, desc)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ImageConfig), args.Error(1)
}

func (m *MockRegistryClient) DeleteBlob(ctx context.Context, name, digest string) error {
	args := m.Called(ctx, name, digest)
	return args.Error(0)
}

func (m *MockRegistryClient) MountBlob(ctx context.Context, name, digest, from string) (domain.MountResult, error) {
	args := m.Called(ctx, name, digest, from)
	return args.Get(0).(domain.MountResult), args.Error(1)
}
