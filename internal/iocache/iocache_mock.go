package iocache

import (
	"context"
	"net/http"

	"github.com/huangsam/offcache/internal/contract"
	"github.com/huangsam/offcache/schema"
	"github.com/stretchr/testify/mock"
)

// MockCacheManager is a mock implementation of CacheManager for testing.
type MockCacheManager struct {
	mock.Mock
}

var _ contract.CacheManager = &MockCacheManager{} // Compile-time check

// GetCacheStorage implements the CacheManager interface.
func (m *MockCacheManager) GetCacheStorage() contract.CacheStorage {
	ret := m.Called()
	storage, _ := ret.Get(0).(contract.CacheStorage)
	return storage
}

// MockCacheStorage is a mock implementation of CacheStorage for testing.
type MockCacheStorage struct {
	mock.Mock
}

var _ contract.CacheStorage = &MockCacheStorage{} // Compile-time check

// Open implements the CacheStorage interface.
func (m *MockCacheStorage) Open(ctx context.Context, name string) (contract.Cache, error) {
	args := m.Called(ctx, name)
	cache, _ := args.Get(0).(contract.Cache)
	return cache, args.Error(1)
}

// Has implements the CacheStorage interface.
func (m *MockCacheStorage) Has(ctx context.Context, name string) (bool, error) {
	args := m.Called(ctx, name)
	return args.Bool(0), args.Error(1)
}

// Keys implements the CacheStorage interface.
func (m *MockCacheStorage) Keys(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	names, _ := args.Get(0).([]string)
	return names, args.Error(1)
}

// Delete implements the CacheStorage interface.
func (m *MockCacheStorage) Delete(ctx context.Context, name string) (bool, error) {
	args := m.Called(ctx, name)
	return args.Bool(0), args.Error(1)
}

// Match implements the CacheStorage interface.
func (m *MockCacheStorage) Match(ctx context.Context, req *http.Request) (*schema.StoredResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*schema.StoredResponse)
	return resp, args.Error(1)
}

// Entries implements the CacheStorage interface.
func (m *MockCacheStorage) Entries(ctx context.Context, name string) ([]schema.CacheEntryInfo, error) {
	args := m.Called(ctx, name)
	infos, _ := args.Get(0).([]schema.CacheEntryInfo)
	return infos, args.Error(1)
}

// GetStatus implements the CacheStorage interface.
func (m *MockCacheStorage) GetStatus() (schema.CacheStatus, error) {
	args := m.Called()
	return args.Get(0).(schema.CacheStatus), args.Error(1)
}

// Close implements the CacheStorage interface.
func (m *MockCacheStorage) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockCache is a mock implementation of Cache for testing.
type MockCache struct {
	mock.Mock
}

var _ contract.Cache = &MockCache{} // Compile-time check

// Name implements the Cache interface.
func (m *MockCache) Name() string {
	return m.Called().String(0)
}

// Match implements the Cache interface.
func (m *MockCache) Match(ctx context.Context, req *http.Request) (*schema.StoredResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*schema.StoredResponse)
	return resp, args.Error(1)
}

// Put implements the Cache interface.
func (m *MockCache) Put(ctx context.Context, req *http.Request, resp *schema.StoredResponse) error {
	return m.Called(ctx, req, resp).Error(0)
}

// PutAll implements the Cache interface.
func (m *MockCache) PutAll(ctx context.Context, resps []*schema.StoredResponse) error {
	return m.Called(ctx, resps).Error(0)
}

// Delete implements the Cache interface.
func (m *MockCache) Delete(ctx context.Context, req *http.Request) (bool, error) {
	args := m.Called(ctx, req)
	return args.Bool(0), args.Error(1)
}

// Keys implements the Cache interface.
func (m *MockCache) Keys(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	urls, _ := args.Get(0).([]string)
	return urls, args.Error(1)
}
