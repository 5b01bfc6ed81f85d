// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package svn

import (
	"encoding/xml"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/AleutianAI/scmactivity/services/scmactivity/scm"
)

// ErrMalformedXML is returned when svn output is not the expected XML.
var ErrMalformedXML = errors.New("malformed svn xml output")

type statusDoc struct {
	Targets []struct {
		Entries []struct {
			Path     string `xml:"path,attr"`
			WCStatus struct {
				Item  string `xml:"item,attr"`
				Props string `xml:"props,attr"`
			} `xml:"wc-status"`
		} `xml:"entry"`
	} `xml:"target"`
}

type blameDoc struct {
	Targets []struct {
		Entries []struct {
			LineNumber int `xml:"line-number,attr"`
			Commit     *struct {
				Revision string `xml:"revision,attr"`
				Author   string `xml:"author"`
				Date     string `xml:"date"`
			} `xml:"commit"`
		} `xml:"entry"`
	} `xml:"target"`
}

// cleanItems are wc-status item values that do not denote a local change.
var cleanItems = map[string]bool{
	"":            true,
	"none":        true,
	"normal":      true,
	"unversioned": true,
	"ignored":     true,
	"external":    true,
}

// ParseStatusXML returns the paths of locally modified entries.
//
// An entry counts as modified when either its content item or its
// property status is something other than clean.
func ParseStatusXML(data []byte) ([]string, error) {
	var doc statusDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedXML, err)
	}
	var files []string
	for _, target := range doc.Targets {
		for _, e := range target.Entries {
			if !cleanItems[e.WCStatus.Item] || !cleanItems[e.WCStatus.Props] {
				files = append(files, e.Path)
			}
		}
	}
	return files, nil
}

// ParseBlameXML converts `svn blame --xml` output into blame lines.
//
// Lines without a commit element (locally modified, never committed) get
// an empty revision and author and a zero date.
func ParseBlameXML(data []byte) ([]scm.BlameLine, error) {
	var doc blameDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedXML, err)
	}
	var lines []scm.BlameLine
	for _, target := range doc.Targets {
		for _, e := range target.Entries {
			bl := scm.BlameLine{Line: e.LineNumber}
			if e.Commit != nil {
				bl.Revision = e.Commit.Revision
				bl.Author = e.Commit.Author
				if e.Commit.Date != "" {
					d, err := time.Parse(time.RFC3339Nano, e.Commit.Date)
					if err != nil {
						return nil, fmt.Errorf("%w: line %d date %q", ErrMalformedXML, e.LineNumber, e.Commit.Date)
					}
					bl.Date = d
				}
			}
			lines = append(lines, bl)
		}
	}
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].Line < lines[j].Line })
	return lines, nil
}
