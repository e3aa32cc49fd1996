/*
 * Copyright 2024 Wang Min Xiang
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 * 	http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package pattern compiles the key-pattern grammar used by delete and
// listKeys: a /regex/ literal, or a glob where '*' matches any run of
// characters and '?' matches exactly one, anchored across the whole key.
package pattern

import (
	"regexp"
	"strings"
)

// metacharacters are escaped during glob translation; '*' and '?' are
// handled specially and excluded from this set.
const regexMetacharacters = `.+^$(){}|[]\`

// IsPattern reports whether key should be treated as a pattern rather than
// a literal key: it contains a glob metacharacter or is a /regex/ literal.
func IsPattern(key string) bool {
	if len(key) >= 2 && strings.HasPrefix(key, "/") && strings.HasSuffix(key, "/") {
		return true
	}
	return strings.ContainsAny(key, "*?")
}

// Compile turns a pattern string into a regexp anchored across the whole
// key. A leading and trailing '/' marks the content between as a
// conventional regular expression, used verbatim with no anchors added.
// Otherwise every regex metacharacter is escaped and '*'/'?' are
// translated to '.*'/'.' before anchoring.
func Compile(p string) (*regexp.Regexp, error) {
	if len(p) >= 2 && strings.HasPrefix(p, "/") && strings.HasSuffix(p, "/") {
		// A regex literal is used verbatim: the caller controls anchoring.
		return regexp.Compile(p[1 : len(p)-1])
	}
	return regexp.Compile("^" + globToRegex(p) + "$")
}

func globToRegex(glob string) string {
	var b strings.Builder
	for _, r := range glob {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteByte('.')
		default:
			if strings.ContainsRune(regexMetacharacters, r) {
				b.WriteByte('\\')
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}
