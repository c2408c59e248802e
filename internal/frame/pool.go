// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package frame

import "sync"

// Size classes for pooled buffers
const (
	// SmallBufferSize fits status replies and the SPI exchange header
	SmallBufferSize = 16
	// ResponseBufferSize fits the largest GetPacket reply the accessory sends
	ResponseBufferSize = 512
)

// BufferPool hands out reusable byte slices so the receive path of a long
// listen does not allocate per read.
type BufferPool struct {
	smallPool    sync.Pool
	responsePool sync.Pool
}

var defaultPool = NewBufferPool()

// NewBufferPool creates a buffer pool
func NewBufferPool() *BufferPool {
	return &BufferPool{
		smallPool: sync.Pool{
			New: func() any {
				buf := make([]byte, SmallBufferSize)
				return &buf
			},
		},
		responsePool: sync.Pool{
			New: func() any {
				buf := make([]byte, ResponseBufferSize)
				return &buf
			},
		},
	}
}

// GetBuffer returns a buffer of length size. Oversized requests are
// allocated directly.
func (p *BufferPool) GetBuffer(size int) []byte {
	var pool *sync.Pool
	switch {
	case size <= SmallBufferSize:
		pool = &p.smallPool
	case size <= ResponseBufferSize:
		pool = &p.responsePool
	default:
		return make([]byte, size)
	}
	bufPtr, ok := pool.Get().(*[]byte)
	if !ok {
		return make([]byte, size)
	}
	return (*bufPtr)[:size]
}

// PutBuffer zeroes buf and returns it to its pool. buf must not be used afterwards.
func (p *BufferPool) PutBuffer(buf []byte) {
	if buf == nil {
		return
	}
	full := buf[:cap(buf)]
	clear(full)
	switch cap(buf) {
	case SmallBufferSize:
		p.smallPool.Put(&full)
	case ResponseBufferSize:
		p.responsePool.Put(&full)
	}
}

// GetBuffer acquires a buffer from the default pool
func GetBuffer(size int) []byte {
	return defaultPool.GetBuffer(size)
}

// PutBuffer returns a buffer to the default pool
func PutBuffer(buf []byte) {
	defaultPool.PutBuffer(buf)
}
