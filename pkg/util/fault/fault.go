// Copyright 2024 Matrix Origin
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

// A very simple fault injection tool.
package fault

import (
	"context"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/matrixorigin/rawvec/pkg/common/moerr"
)

const (
	RETURN = iota
	GETCOUNT
	PANIC
	ECHO
)

// faultEntry describes how we shall fail
type faultEntry struct {
	name             string  // name of the fault
	cnt              int     // count how many times we run into this
	start, end, skip int     // start, end, skip
	prob             float64 // probability of failure
	action           int
	iarg             int64  // int arg
	sarg             string // string arg
}

type faultMap struct {
	sync.Mutex
	faultPoints map[string]*faultEntry
}

var enabled atomic.Pointer[faultMap]

// Enable fault injection
func Enable() {
	enabled.CompareAndSwap(nil, &faultMap{
		faultPoints: make(map[string]*faultEntry),
	})
}

// Disable fault injection
func Disable() {
	enabled.Store(nil)
}

func IsEnabled() bool {
	return enabled.Load() != nil
}

// TriggerFault triggers a fault point. exist reports whether the point fired.
func TriggerFault(name string) (iret int64, sret string, exist bool) {
	fm := enabled.Load()
	if fm == nil {
		return
	}

	fm.Lock()
	var out *faultEntry
	if e, ok := fm.faultPoints[name]; ok {
		e.cnt += 1
		if e.cnt >= e.start && e.cnt <= e.end && (e.cnt-e.start)%e.skip == 0 {
			if e.prob == 1 || rand.Float64() < e.prob {
				out = e
			}
		}
	}
	var snapshot faultEntry
	if out != nil {
		snapshot = *out
		// the counted point may be bumped concurrently, read it under the lock
		if out.action == GETCOUNT {
			snapshot.iarg = 0
			if ee, ok := fm.faultPoints[out.sarg]; ok {
				snapshot.iarg = int64(ee.cnt)
			}
		}
	}
	fm.Unlock()

	if out == nil {
		return
	}
	exist = true
	iret, sret = snapshot.do()
	return
}

func (e *faultEntry) do() (int64, string) {
	switch e.action {
	case RETURN: // no op
	case GETCOUNT:
		return e.iarg, ""
	case PANIC:
		panic(e.sarg)
	case ECHO:
		return e.iarg, e.sarg
	}
	return 0, ""
}

// AddFaultPoint registers a fault point. freq is start:end:skip:prob, any
// part may be empty for its default (1, max, 1, 1).
func AddFaultPoint(ctx context.Context, name string, freq string, action string, iarg int64, sarg string) error {
	fm := enabled.Load()
	if fm == nil {
		return moerr.NewInternalError(ctx, "add fault point not enabled")
	}

	var err error

	e := &faultEntry{
		name: name,
		iarg: iarg,
		sarg: sarg,
	}

	// freq is start:end:skip:prob
	sesp := strings.Split(freq, ":")
	if len(sesp) != 4 {
		return moerr.NewInvalidArg(ctx, "fault point freq", freq)
	}

	if sesp[0] == "" {
		e.start = 1
	} else {
		e.start, err = strconv.Atoi(sesp[0])
		if err != nil {
			return moerr.NewInvalidArg(ctx, "fault point freq", freq)
		}
	}
	if sesp[1] == "" {
		e.end = math.MaxInt
	} else {
		e.end, err = strconv.Atoi(sesp[1])
		if err != nil || e.end < e.start {
			return moerr.NewInvalidArg(ctx, "fault point freq", freq)
		}
	}
	if sesp[2] == "" {
		e.skip = 1
	} else {
		e.skip, err = strconv.Atoi(sesp[2])
		if err != nil || e.skip <= 0 {
			return moerr.NewInvalidArg(ctx, "fault point freq", freq)
		}
	}
	if sesp[3] == "" {
		e.prob = 1.0
	} else {
		e.prob, err = strconv.ParseFloat(sesp[3], 64)
		if err != nil || e.prob <= 0 || e.prob >= 1 {
			return moerr.NewInvalidArg(ctx, "fault point freq", freq)
		}
	}

	// Action
	switch strings.ToUpper(action) {
	case "RETURN":
		e.action = RETURN
	case "GETCOUNT":
		e.action = GETCOUNT
	case "PANIC":
		e.action = PANIC
	case "ECHO":
		e.action = ECHO
	default:
		return moerr.NewInvalidArg(ctx, "fault action", action)
	}

	fm.Lock()
	defer fm.Unlock()
	if _, ok := fm.faultPoints[name]; ok {
		return moerr.NewInternalError(ctx, "add fault injection point failed.")
	}
	fm.faultPoints[name] = e
	return nil
}

func RemoveFaultPoint(ctx context.Context, name string) error {
	fm := enabled.Load()
	if fm == nil {
		return moerr.NewInternalError(ctx, "add fault injection point not enabled.")
	}

	fm.Lock()
	defer fm.Unlock()
	if _, ok := fm.faultPoints[name]; !ok {
		return moerr.NewInvalidInput(ctx, "invalid injection point %s", name)
	}
	delete(fm.faultPoints, name)
	return nil
}
