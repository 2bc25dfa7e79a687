/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package story

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
)

var durationRe = regexp.MustCompile(`^(\d+)([smh])$`)

// Duration is a delay length as written ("10s", "3m", "2h").
type Duration struct {
	Text    string
	Seconds int
}

// ParseDuration accepts a count followed by exactly one unit of s, m or h,
// with no surrounding whitespace.
func ParseDuration(s string) (Duration, error) {
	m := durationRe.FindStringSubmatch(s)
	if m == nil {
		return Duration{}, fmt.Errorf("invalid delay %q: expected a number followed by s, m or h", s)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return Duration{}, fmt.Errorf("invalid delay %q: %w", s, err)
	}
	unit := 1
	switch m[2] {
	case "m":
		unit = 60
	case "h":
		unit = 3600
	}
	if n > math.MaxInt/unit {
		return Duration{}, fmt.Errorf("invalid delay %q: too long", s)
	}
	n *= unit
	return Duration{Text: s, Seconds: n}, nil
}

func (d Duration) String() string { return d.Text }
