package iocache

import (
	"sync"

	"github.com/huangsam/offcache/internal/contract"
)

// CacheStorageManager holds the process-wide cache storage.
type CacheStorageManager struct {
	sync.RWMutex // Protects the storage pointer during initialization
	storage      contract.CacheStorage
}

var _ contract.CacheManager = &CacheStorageManager{} // Compile-time check

// GetCacheStorage returns the cache storage, or nil before InitStorage succeeds.
func (mgr *CacheStorageManager) GetCacheStorage() contract.CacheStorage {
	mgr.RLock()
	defer mgr.RUnlock()
	return mgr.storage
}
