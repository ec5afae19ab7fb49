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

package vector

import (
	"math"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/matrixorigin/rawvec/pkg/common/moerr"
)

func TestGrowthPolicy(t *testing.T) {
	const limit = 1 << 20

	convey.Convey("doubling", t, func() {
		g := Doubling{}
		convey.So(g.Name(), convey.ShouldEqual, GrowthDoubling)
		convey.So(g.Next(0, 1, limit), convey.ShouldEqual, 1)
		convey.So(g.Next(1, 2, limit), convey.ShouldEqual, 2)
		convey.So(g.Next(3, 4, limit), convey.ShouldEqual, 6)
		convey.So(g.Next(4, 5, limit), convey.ShouldEqual, 8)
		// range construction reserves exactly the source length
		convey.So(g.Next(0, 7, limit), convey.ShouldEqual, 7)
		convey.So(g.Next(2, 100, limit), convey.ShouldEqual, 100)
		// clamped at the limit, never below need
		convey.So(g.Next(limit-1, limit, limit), convey.ShouldEqual, limit)
	})

	convey.Convey("power of two", t, func() {
		g := PowerOfTwo{}
		convey.So(g.Name(), convey.ShouldEqual, GrowthPowerOfTwo)
		convey.So(g.Next(0, 1, limit), convey.ShouldEqual, 1)
		convey.So(g.Next(1, 2, limit), convey.ShouldEqual, 2)
		convey.So(g.Next(2, 3, limit), convey.ShouldEqual, 4)
		convey.So(g.Next(0, 5, limit), convey.ShouldEqual, 8)
		convey.So(g.Next(8, 9, limit), convey.ShouldEqual, 16)
		convey.So(g.Next(0, limit-3, limit), convey.ShouldEqual, limit)
		convey.So(g.Next(0, 5, 6), convey.ShouldEqual, 6)
	})

	convey.Convey("always grows past live", t, func() {
		for _, g := range []GrowthPolicy{Doubling{}, PowerOfTwo{}} {
			for live := 0; live < 100; live++ {
				next := g.Next(live, live+1, limit)
				convey.So(next, convey.ShouldBeGreaterThan, live)
				convey.So(next, convey.ShouldBeLessThanOrEqualTo, limit)
			}
		}
	})

	convey.Convey("overflow panics", t, func() {
		for _, g := range []GrowthPolicy{Doubling{}, PowerOfTwo{}} {
			func() {
				defer func() {
					e := recover()
					err, ok := e.(*moerr.Error)
					convey.So(ok, convey.ShouldBeTrue)
					convey.So(err.ErrorCode(), convey.ShouldEqual, moerr.ErrCapacityOverflow)
				}()
				g.Next(limit, limit+1, limit)
			}()
		}
	})

	convey.Convey("by name", t, func() {
		g, ok := GrowthPolicyByName("")
		convey.So(ok, convey.ShouldBeTrue)
		convey.So(g, convey.ShouldResemble, Doubling{})
		g, ok = GrowthPolicyByName(GrowthPowerOfTwo)
		convey.So(ok, convey.ShouldBeTrue)
		convey.So(g, convey.ShouldResemble, PowerOfTwo{})
		_, ok = GrowthPolicyByName("fibonacci")
		convey.So(ok, convey.ShouldBeFalse)
	})

	convey.Convey("max capacity", t, func() {
		convey.So(maxCapacity[struct{}](), convey.ShouldEqual, math.MaxInt)
		convey.So(maxCapacity[int64](), convey.ShouldEqual, maxAllocBytes/8)
		convey.So(maxCapacity[[16]byte](), convey.ShouldEqual, maxAllocBytes/16)
	})
}
