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

// Package checksum implements the incremental Adler-32 (RFC 1950) and
// CRC-32 (RFC 1952) checksums used by zlib and gzip framing.
//
// Both functions take the running value as a seed, so a checksum can be
// carried across arbitrarily split chunks:
//
//	Adler32(Adler32(seed, a), b) == Adler32(seed, append(a, b...))
package checksum

const (
	// AdlerInit is the Adler-32 of the empty string.
	AdlerInit = 1

	adlerMod = 65521
	// adlerMax is the largest n such that
	// 255n(n+1)/2 + (n+1)(adlerMod-1) <= 2^32-1.
	adlerMax = 5552
)

// Adler32 returns the Adler-32 checksum of p appended to the data whose
// checksum is seed.
func Adler32(seed uint32, p []byte) uint32 {
	s1, s2 := seed&0xffff, seed>>16
	for len(p) > 0 {
		var q []byte
		if len(p) > adlerMax {
			p, q = p[:adlerMax], p[adlerMax:]
		}
		for len(p) >= 4 {
			s1 += uint32(p[0])
			s2 += s1
			s1 += uint32(p[1])
			s2 += s1
			s1 += uint32(p[2])
			s2 += s1
			s1 += uint32(p[3])
			s2 += s1
			p = p[4:]
		}
		for _, x := range p {
			s1 += uint32(x)
			s2 += s1
		}
		s1 %= adlerMod
		s2 %= adlerMod
		p = q
	}
	return s2<<16 | s1
}

// Adler32Combine returns the Adler-32 of the concatenation of two chunks,
// given the checksum of each and the length of the second one.
func Adler32Combine(adler1, adler2 uint32, len2 int64) uint32 {
	if len2 < 0 {
		return 0xffffffff
	}
	rem := uint32(len2 % adlerMod)
	sum1 := adler1 & 0xffff
	sum2 := (rem * sum1) % adlerMod
	sum1 += (adler2 & 0xffff) + adlerMod - 1
	sum2 += (adler1 >> 16) + (adler2 >> 16) + adlerMod - rem
	if sum1 >= adlerMod {
		sum1 -= adlerMod
	}
	if sum1 >= adlerMod {
		sum1 -= adlerMod
	}
	if sum2 >= adlerMod<<1 {
		sum2 -= adlerMod << 1
	}
	if sum2 >= adlerMod {
		sum2 -= adlerMod
	}
	return sum2<<16 | sum1
}
