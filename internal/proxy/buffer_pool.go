// Copyright (c) 2026, the voxgate contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package proxy

import "sync"

// BufferPool provides a thread-safe pool of byte slices for the reverse proxy
type BufferPool struct {
	pool sync.Pool
}

// NewBufferPool creates a new buffer pool with 32KB buffers
func NewBufferPool() *BufferPool {
	return &BufferPool{
		pool: sync.Pool{
			New: func() any {
				return make([]byte, 32*1024)
			},
		},
	}
}

// Get returns a buffer from the pool
func (p *BufferPool) Get() []byte {
	return p.pool.Get().([]byte)
}

// Put returns a buffer to the pool
func (p *BufferPool) Put(buf []byte) {
	// Only pool buffers of the expected size to avoid memory bloat
	if cap(buf) == 32*1024 {
		p.pool.Put(buf)
	}
}
