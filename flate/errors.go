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

import (
	"errors"
	"strconv"
)

// Kind classifies a fatal codec error.
type Kind int

const (
	// BadArgument is an invalid level, strategy, window size or call.
	BadArgument Kind = iota + 1
	// BadHeader is a wrong magic, unsupported method or header checksum.
	BadHeader
	// BadBlockType is the reserved block type 3.
	BadBlockType
	// BadStoredLength is a stored block whose LEN and NLEN disagree.
	BadStoredLength
	// BadHuffmanTable is an over-subscribed or incomplete code, or a
	// symbol no code describes.
	BadHuffmanTable
	// BadDistance is a back-reference before the start of the data.
	BadDistance
	// TrailerMismatch is a checksum or length mismatch at stream end.
	TrailerMismatch
	// OutOfMemory is an output growth limit being exceeded.
	OutOfMemory
)

var kindNames = map[Kind]string{
	BadArgument:     "bad argument",
	BadHeader:       "bad header",
	BadBlockType:    "bad block type",
	BadStoredLength: "bad stored block length",
	BadHuffmanTable: "bad huffman table",
	BadDistance:     "bad distance",
	TrailerMismatch: "trailer mismatch",
	OutOfMemory:     "out of memory",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// Error makes a Kind usable as an errors.Is target.
func (k Kind) Error() string { return "flate: " + k.String() }

// An Error reports a fatal problem with the stream or with the way the
// engine was driven. Offset is the number of input bytes consumed when the
// problem was detected.
type Error struct {
	Kind   Kind
	Offset int64
	Msg    string
}

func (e *Error) Error() string {
	return "flate: " + e.Msg + " (" + e.Kind.String() + ") at offset " + strconv.FormatInt(e.Offset, 10)
}

// Is reports whether target is e's Kind.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// KindOf returns the Kind of err, or 0 if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func errorf(kind Kind, offset int64, msg string) *Error {
	return &Error{Kind: kind, Offset: offset, Msg: msg}
}
