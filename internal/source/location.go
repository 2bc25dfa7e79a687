/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package source holds the positional and diagnostic types shared by every
// stage of story processing: where a token or statement came from, and the
// error values reported against those places.
package source

import "fmt"

// Location identifies a line of story markup. FileLine is 1-based.
// PassageLine is 0 on the passage header and counts up from there, so it
// indexes straight into a passage's raw source lines.
type Location struct {
	File        string `json:"file,omitempty"`
	Passage     string `json:"passage,omitempty"`
	FileLine    int    `json:"fileLine"`
	PassageLine int    `json:"passageLine"`
}

func (l Location) String() string {
	prefix := ""
	if l.File != "" {
		prefix = l.File + ":"
	}
	if l.Passage == "" {
		return fmt.Sprintf("%sline %d", prefix, l.FileLine)
	}
	return fmt.Sprintf("%sline %d (passage %q, line %d)", prefix, l.FileLine, l.Passage, l.PassageLine)
}
