// Copyright (c) 2026, the voxgate contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import "sync"

// KeyedMutex provides mutual exclusion scoped to a single key, so
// read-modify-write sequences on one license never race while
// different licenses proceed fully in parallel.
type KeyedMutex struct {
	locks sync.Map // string -> *sync.Mutex
}

func (km *KeyedMutex) Lock(key string) func() {
	v, _ := km.locks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
