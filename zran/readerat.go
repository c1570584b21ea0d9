// Copyright 2016 CoreOS, Inc
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

package zran

import (
	"encoding/binary"
	"io"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/dgryski/go-tinylfu"
	"github.com/pkg/errors"
)

const minCacheSpans = 16

// ReaderAt serves the uncompressed contents of an indexed stream as an
// io.ReaderAt. Decompressed spans are kept in a TinyLFU cache, so repeated
// reads near the same offsets decompress each span only once.
// A ReaderAt is safe for concurrent use by multiple goroutines.
type ReaderAt struct {
	r   io.ReaderAt
	idx *Index

	mu    sync.Mutex
	cache *tinylfu.T[int, []byte]
}

// NewReaderAt returns a ReaderAt over r, the compressed stream idx was built
// from, caching up to cacheSpans decompressed spans (at least 16).
func NewReaderAt(r io.ReaderAt, idx *Index, cacheSpans int) *ReaderAt {
	if cacheSpans < minCacheSpans {
		cacheSpans = minCacheSpans
	}
	return &ReaderAt{
		r:     r,
		idx:   idx,
		cache: tinylfu.New[int, []byte](cacheSpans, cacheSpans*10, spanHash),
	}
}

func spanHash(i int) uint64 {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(i))
	return xxhash.Sum64(b[:])
}

// Size returns the uncompressed length of the stream.
func (z *ReaderAt) Size() int64 { return z.idx.Size }

// ReadAt implements io.ReaderAt.
func (z *ReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("zran: negative offset")
	}
	n := 0
	for n < len(p) && off < z.idx.Size {
		i := z.idx.find(off)
		span, err := z.span(i)
		if err != nil {
			return n, err
		}
		k := copy(p[n:], span[off-z.idx.Points[i].Out:])
		n += k
		off += int64(k)
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// span returns the uncompressed data between access point i and the next.
func (z *ReaderAt) span(i int) ([]byte, error) {
	z.mu.Lock()
	b, ok := z.cache.Get(i)
	z.mu.Unlock()
	if ok {
		return b, nil
	}

	start := z.idx.Points[i].Out
	end := z.idx.Size
	if i+1 < len(z.idx.Points) {
		end = z.idx.Points[i+1].Out
	}
	b = make([]byte, end-start)
	if _, err := z.idx.Extract(z.r, start, b); err != nil {
		return nil, err
	}

	z.mu.Lock()
	z.cache.Add(i, b)
	z.mu.Unlock()
	return b, nil
}
