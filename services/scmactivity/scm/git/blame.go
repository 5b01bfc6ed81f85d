// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package git

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/AleutianAI/scmactivity/services/scmactivity/scm"
)

// ErrMalformedBlame is returned when porcelain output cannot be parsed.
var ErrMalformedBlame = errors.New("malformed git blame output")

// commitInfo is the per-commit metadata git prints once per sha.
type commitInfo struct {
	author string
	mail   string
	time   int64
	tz     string
}

// ParseBlamePorcelain parses `git blame --porcelain` output.
//
// # Description
//
// Porcelain output is a sequence of groups. Each group starts with a
// header "<sha> <orig-line> <final-line> [<count>]", followed by commit
// metadata the first time a sha is seen, followed by the line content
// prefixed with a TAB. Metadata is remembered per sha so later groups of
// the same commit resolve to the same author and date.
//
// The author identity is the author e-mail without angle brackets,
// falling back to the author name when the e-mail is empty.
//
// # Outputs
//
//   - []scm.BlameLine: Ordered by final line number.
//   - error: Wraps ErrMalformedBlame on an unparseable header or a content
//     line without a preceding header.
func ParseBlamePorcelain(output []byte) ([]scm.BlameLine, error) {
	commits := make(map[string]*commitInfo)
	var lines []scm.BlameLine

	var currentSHA string
	var currentLine int

	scanner := bufio.NewScanner(bytes.NewReader(output))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		text := scanner.Text()
		if text == "" {
			continue
		}

		if text[0] == '\t' {
			if currentSHA == "" {
				return nil, fmt.Errorf("%w: content before header", ErrMalformedBlame)
			}
			info := commits[currentSHA]
			lines = append(lines, scm.BlameLine{
				Line:     currentLine,
				Revision: currentSHA,
				Author:   info.identity(),
				Date:     info.date(),
			})
			currentSHA = ""
			continue
		}

		if sha, line, ok := parseHeader(text); ok {
			currentSHA = sha
			currentLine = line
			if _, seen := commits[sha]; !seen {
				commits[sha] = &commitInfo{}
			}
			continue
		}

		if currentSHA == "" {
			return nil, fmt.Errorf("%w: unexpected line %q", ErrMalformedBlame, text)
		}
		key, value, _ := strings.Cut(text, " ")
		info := commits[currentSHA]
		switch key {
		case "author":
			info.author = value
		case "author-mail":
			info.mail = value
		case "author-time":
			if ts, err := strconv.ParseInt(value, 10, 64); err == nil {
				info.time = ts
			}
		case "author-tz":
			info.tz = value
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBlame, err)
	}

	sort.SliceStable(lines, func(i, j int) bool { return lines[i].Line < lines[j].Line })
	return lines, nil
}

// parseHeader recognises "<sha> <orig> <final> [<count>]".
func parseHeader(text string) (string, int, bool) {
	fields := strings.Fields(text)
	if len(fields) != 3 && len(fields) != 4 {
		return "", 0, false
	}
	if !isHexSHA(fields[0]) {
		return "", 0, false
	}
	final, err := strconv.Atoi(fields[2])
	if err != nil || final <= 0 {
		return "", 0, false
	}
	return fields[0], final, true
}

func isHexSHA(s string) bool {
	if len(s) != 40 && len(s) != 64 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}

func (c *commitInfo) identity() string {
	mail := strings.TrimSuffix(strings.TrimPrefix(c.mail, "<"), ">")
	if mail != "" {
		return mail
	}
	return c.author
}

func (c *commitInfo) date() time.Time {
	t := time.Unix(c.time, 0)
	if loc, ok := parseTZ(c.tz); ok {
		return t.In(loc)
	}
	return t.UTC()
}

// parseTZ converts git's "+0130" offsets into a fixed zone.
func parseTZ(tz string) (*time.Location, bool) {
	if len(tz) != 5 || (tz[0] != '+' && tz[0] != '-') {
		return nil, false
	}
	hours, err := strconv.Atoi(tz[1:3])
	if err != nil {
		return nil, false
	}
	minutes, err := strconv.Atoi(tz[3:5])
	if err != nil {
		return nil, false
	}
	offset := hours*3600 + minutes*60
	if tz[0] == '-' {
		offset = -offset
	}
	return time.FixedZone(tz, offset), true
}
