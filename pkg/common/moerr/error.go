// Copyright 2021 - 2022 Matrix Origin
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package moerr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
)

const (
	// 0 - 99 is OK.  They do not contain info, and are special handled
	// using a static instance, no alloc.
	Ok    uint16 = 0
	OkMax uint16 = 99

	// Group 1: Internal errors
	ErrStart        uint16 = 20100
	ErrInternal     uint16 = 20101
	ErrNYI          uint16 = 20102
	ErrOOM          uint16 = 20103
	ErrNotSupported uint16 = 20105

	// Group 2: numeric and functions
	ErrOutOfRange       uint16 = 20201
	ErrInvalidArg       uint16 = 20203
	ErrCapacityOverflow uint16 = 20210

	// Group 3: invalid input
	ErrBadConfig    uint16 = 20300
	ErrInvalidInput uint16 = 20301

	// Group 4: unexpected state and io errors
	ErrInvalidState        uint16 = 20400
	ErrEmptyVector         uint16 = 20404
	ErrFileNotFound        uint16 = 20405
	ErrUnexpectedEOF       uint16 = 20407
	ErrAllocatorMismatch   uint16 = 20480
	ErrDoubleDestroy       uint16 = 20481
	ErrConstructOnLive     uint16 = 20482
	ErrReleaseUnknownBlock uint16 = 20483

	// Group End: max value of MOErrorCode
	ErrEnd uint16 = 65535
)

type moErrorMsgItem struct {
	errorMsgOrFormat string
}

var errorMsgRefer = map[uint16]moErrorMsgItem{
	Ok: {"ok"},

	// Group 1: Internal errors
	ErrStart:        {"start error code"},
	ErrInternal:     {"internal error: %s"},
	ErrNYI:          {"%s is not yet implemented"},
	ErrOOM:          {"error: out of memory"},
	ErrNotSupported: {"not supported: %s"},

	// Group 2: numeric and functions
	ErrOutOfRange:       {"out of range value for %s: %s"},
	ErrInvalidArg:       {"invalid argument %s, bad value %v"},
	ErrCapacityOverflow: {"capacity overflow: %d elements exceed the maximum of %d"},

	// Group 3: invalid input
	ErrBadConfig:    {"invalid configuration: %s"},
	ErrInvalidInput: {"invalid input: %s"},

	// Group 4: unexpected state and io errors
	ErrInvalidState:        {"invalid state %s"},
	ErrEmptyVector:         {"empty vector"},
	ErrFileNotFound:        {"file %s is not found"},
	ErrUnexpectedEOF:       {"unexpected end of file %s"},
	ErrAllocatorMismatch:   {"allocator mismatch: %s"},
	ErrDoubleDestroy:       {"destroy of slot %d which holds no live element"},
	ErrConstructOnLive:     {"construct into slot %d which already holds a live element"},
	ErrReleaseUnknownBlock: {"release of a block not acquired from this allocator (size %d)"},

	// Group End: max value of MOErrorCode
	ErrEnd: {"internal error: end of errcode code"},
}

func newError(ctx context.Context, code uint16, args ...any) *Error {
	var err *Error
	item, has := errorMsgRefer[code]
	if !has {
		panic(NewInternalError(ctx, "not exist MOErrorCode: %d", code))
	}
	if len(args) == 0 {
		err = &Error{
			code:    code,
			message: item.errorMsgOrFormat,
		}
	} else {
		err = &Error{
			code:    code,
			message: fmt.Sprintf(item.errorMsgOrFormat, args...),
		}
	}
	return err
}

type Error struct {
	code    uint16
	message string
	detail  string
}

func (e *Error) Error() string {
	return e.message
}

func (e *Error) Detail() string {
	return e.detail
}

func (e *Error) Display() string {
	if len(e.detail) == 0 {
		return e.message
	}
	return fmt.Sprintf("%s: %s", e.message, e.detail)
}

func (e *Error) ErrorCode() uint16 {
	return e.code
}

// WithDetail attaches the underlying cause, e.g. the errno of a failed mmap.
func (e *Error) WithDetail(detail string) *Error {
	e.detail = detail
	return e
}

func (e *Error) Succeeded() bool {
	return e.code < OkMax
}

func IsMoErrCode(e error, rc uint16) bool {
	if e == nil {
		return rc == Ok
	}

	var me *Error
	if !errors.As(e, &me) {
		// This is not a moerr
		return false
	}
	return me.code == rc
}

func DowncastError(e error) *Error {
	if err, ok := e.(*Error); ok {
		return err
	}
	return newError(Context(), ErrInternal, fmt.Sprintf("downcast error failed: %v", e))
}

// ConvertPanicError converts a runtime panic to internal error.
func ConvertPanicError(ctx context.Context, v interface{}) *Error {
	if e, ok := v.(*Error); ok {
		return e
	}
	return newError(ctx, ErrInternal, fmt.Sprintf("panic %v: %s", v, debug.Stack()))
}

// ConvertGoError converts a go error into mo error.
// Note here we must return error, because nil error
// is the same as nil *Error -- Go strangeness.
func ConvertGoError(ctx context.Context, err error) error {
	// nil is nil
	if err == nil {
		return err
	}

	// already a moerr, return it as is
	if _, ok := err.(*Error); ok {
		return err
	}

	// Convert a few well known os/go error.
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		// if io.EOF reaches here, we believe it is not expected.
		return NewUnexpectedEOF(ctx, err.Error())
	}

	return NewInternalError(ctx, "convert go error to mo error %v", err)
}

type contextKey struct{}

// Context returns the context used by the NoCtx constructors.
func Context() context.Context {
	return context.WithValue(context.Background(), contextKey{}, "moerr")
}

func NewInternalError(ctx context.Context, msg string, args ...any) *Error {
	xmsg := fmt.Sprintf(msg, args...)
	return newError(ctx, ErrInternal, xmsg)
}

func NewInternalErrorNoCtx(msg string, args ...any) *Error {
	return NewInternalError(Context(), msg, args...)
}

func NewNYI(ctx context.Context, msg string, args ...any) *Error {
	xmsg := fmt.Sprintf(msg, args...)
	return newError(ctx, ErrNYI, xmsg)
}

func NewNotSupported(ctx context.Context, msg string, args ...any) *Error {
	xmsg := fmt.Sprintf(msg, args...)
	return newError(ctx, ErrNotSupported, xmsg)
}

func NewNotSupportedNoCtx(msg string, args ...any) *Error {
	return NewNotSupported(Context(), msg, args...)
}

func NewOOM(ctx context.Context) *Error {
	return newError(ctx, ErrOOM)
}

func NewOOMNoCtx() *Error {
	return NewOOM(Context())
}

func NewOutOfRange(ctx context.Context, typ string, msg string, args ...any) *Error {
	xmsg := fmt.Sprintf(msg, args...)
	return newError(ctx, ErrOutOfRange, typ, xmsg)
}

func NewInvalidArg(ctx context.Context, arg string, val any) *Error {
	return newError(ctx, ErrInvalidArg, arg, fmt.Sprintf("%v", val))
}

func NewInvalidArgNoCtx(arg string, val any) *Error {
	return NewInvalidArg(Context(), arg, val)
}

func NewCapacityOverflow(ctx context.Context, n int, limit int) *Error {
	return newError(ctx, ErrCapacityOverflow, n, limit)
}

func NewCapacityOverflowNoCtx(n int, limit int) *Error {
	return NewCapacityOverflow(Context(), n, limit)
}

func NewBadConfig(ctx context.Context, msg string, args ...any) *Error {
	xmsg := fmt.Sprintf(msg, args...)
	return newError(ctx, ErrBadConfig, xmsg)
}

func NewInvalidInput(ctx context.Context, msg string, args ...any) *Error {
	xmsg := fmt.Sprintf(msg, args...)
	return newError(ctx, ErrInvalidInput, xmsg)
}

func NewInvalidState(ctx context.Context, msg string, args ...any) *Error {
	xmsg := fmt.Sprintf(msg, args...)
	return newError(ctx, ErrInvalidState, xmsg)
}

func NewInvalidStateNoCtx(msg string, args ...any) *Error {
	return NewInvalidState(Context(), msg, args...)
}

func NewEmptyVector(ctx context.Context) *Error {
	return newError(ctx, ErrEmptyVector)
}

func NewEmptyVectorNoCtx() *Error {
	return NewEmptyVector(Context())
}

func NewFileNotFound(ctx context.Context, f string) *Error {
	return newError(ctx, ErrFileNotFound, f)
}

func NewUnexpectedEOF(ctx context.Context, f string) *Error {
	return newError(ctx, ErrUnexpectedEOF, f)
}

func NewAllocatorMismatch(ctx context.Context, msg string, args ...any) *Error {
	xmsg := fmt.Sprintf(msg, args...)
	return newError(ctx, ErrAllocatorMismatch, xmsg)
}

func NewAllocatorMismatchNoCtx(msg string, args ...any) *Error {
	return NewAllocatorMismatch(Context(), msg, args...)
}

func NewDoubleDestroyNoCtx(slot int) *Error {
	return newError(Context(), ErrDoubleDestroy, slot)
}

func NewConstructOnLiveNoCtx(slot int) *Error {
	return newError(Context(), ErrConstructOnLive, slot)
}

func NewReleaseUnknownBlockNoCtx(size int) *Error {
	return newError(Context(), ErrReleaseUnknownBlock, size)
}
