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

package flate

// window is the inflater's history: the most recent output, up to maxHist
// bytes, kept in a circular buffer so back-references can reach data that
// was returned to the caller in an earlier call.
type window struct {
	hist []byte // len(hist) == maxHist once allocated
	pos  int    // next write position
	have int    // number of valid bytes, <= len(hist)
}

func (w *window) init() {
	if w.hist == nil {
		w.hist = make([]byte, maxHist)
	}
	w.pos = 0
	w.have = 0
}

// update appends p to the history.
func (w *window) update(p []byte) {
	size := len(w.hist)
	if len(p) >= size {
		copy(w.hist, p[len(p)-size:])
		w.pos = 0
		w.have = size
		return
	}
	n := copy(w.hist[w.pos:], p)
	if n < len(p) {
		copy(w.hist, p[n:])
	}
	w.pos = (w.pos + len(p)) % size
	w.have += len(p)
	if w.have > size {
		w.have = size
	}
}

// read copies len(dst) bytes starting back bytes before the end of the
// history. The caller guarantees back <= w.have and len(dst) <= back.
func (w *window) read(dst []byte, back int) {
	start := w.pos - back
	if start < 0 {
		start += len(w.hist)
	}
	n := copy(dst, w.hist[start:])
	if n < len(dst) {
		copy(dst[n:], w.hist)
	}
}

// bytes returns a copy of the history, oldest byte first.
func (w *window) bytes() []byte {
	out := make([]byte, w.have)
	w.read(out, w.have)
	return out
}
