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

// inflateFast decodes literal/length and distance codes for as long as at
// least 8 bytes of input and maxMatchLength bytes of output room remain.
// Under those conditions a whole length/distance pair always fits in the
// accumulator after a refill, so no step needs to check for suspension.
// On return the accumulator is cut back to fewer than 8 bits and the whole
// bytes it held are handed back to the input.
func (f *Inflater) inflateFast() {
	in, out := f.in, f.out
	ip, op := f.ip, f.op
	hold, nb := f.hold, f.nb
	lit, dist := f.lit, f.dist

loop:
	for len(in)-ip >= 8 && len(out)-op >= maxMatchLength {
		for nb <= 56 {
			hold |= uint64(in[ip]) << nb
			ip++
			nb += 8
		}

		n, sym := lit.lookup(hold)
		if n == 0 || sym >= maxNumLit {
			f.ip = ip
			f.fail(BadHuffmanTable, "invalid literal/length code")
			break
		}
		hold >>= n
		nb -= n
		if sym < endBlockMarker {
			out[op] = byte(sym)
			op++
			continue
		}
		if sym == endBlockMarker {
			f.endBlock()
			break
		}

		sym -= endBlockMarker + 1
		length := int(lengthBase[sym])
		if e := uint(lengthExtra[sym]); e > 0 {
			length += int(hold & (1<<e - 1))
			hold >>= e
			nb -= e
		}

		n, sym = dist.lookup(hold)
		if n == 0 || sym >= maxNumDist {
			f.ip = ip
			f.fail(BadDistance, "invalid distance code")
			break
		}
		hold >>= n
		nb -= n
		distance := int(distBase[sym])
		if e := uint(distExtra[sym]); e > 0 {
			distance += int(hold & (1<<e - 1))
			hold >>= e
			nb -= e
		}
		if distance > f.win.have+op {
			f.ip = ip
			f.fail(BadDistance, "invalid distance too far back")
			break
		}

		if distance > op {
			back := distance - op
			k := length
			if k > back {
				k = back
			}
			f.win.read(out[op:op+k], back)
			op += k
			length -= k
			if length == 0 {
				continue loop
			}
		}
		src := op - distance
		if distance >= length {
			copy(out[op:op+length], out[src:src+length])
			op += length
			continue
		}
		for i := 0; i < length; i++ {
			out[op+i] = out[src+i]
		}
		op += length
	}

	if f.state == bad {
		f.op = op
		return
	}
	give := nb >> 3
	ip -= int(give)
	nb -= give << 3
	hold &= 1<<nb - 1
	f.ip, f.op = ip, op
	f.hold, f.nb = hold, nb
}
