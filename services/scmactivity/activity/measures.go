// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package activity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/AleutianAI/scmactivity/services/scmactivity/scm"
)

// MeasureUpdate is the set of measures one run writes for one file.
type MeasureUpdate struct {
	Resource Resource
	Measures []Measure
}

// Apply writes the update through sink.
func (u *MeasureUpdate) Apply(ctx context.Context, sink MeasureSink) error {
	if sink == nil {
		return errors.New("measure sink is nil")
	}
	if err := sink.SaveMeasures(ctx, u.Resource, u.Measures); err != nil {
		return fmt.Errorf("apply measures for %s: %w", u.Resource.Key, err)
	}
	return nil
}

// Value returns the value of metric, or "" and false.
func (u *MeasureUpdate) Value(metric string) (string, bool) {
	for _, m := range u.Measures {
		if m.Metric == metric {
			return m.Value, true
		}
	}
	return "", false
}

// BuildUpdate turns a classified file and its blame into an update.
//
// # Description
//
// Unchanged files and failed blames produce no update. A successful blame
// yields scm_hash, last_commit_date and last_committer (from the line with
// the most recent date, omitted when no line is dated) and blame_by_line.
//
// # Inputs
//
//   - file: The analysed file.
//   - d: Its classification.
//   - result: Its blame result. May be nil only for unchanged files.
//
// # Outputs
//
//   - *MeasureUpdate: The update, when ok.
//   - bool: false when there is nothing to write.
func BuildUpdate(file AnalyzedFile, d Detection, result *BlameResult) (*MeasureUpdate, bool) {
	if !d.NeedsBlame || result == nil || !result.OK() {
		return nil, false
	}

	measures := make([]Measure, 0, len(GeneratedMetrics))
	measures = append(measures, Measure{Metric: MetricSCMHash, Value: file.Fingerprint.String()})

	if latest, ok := latestLine(result.Lines); ok {
		measures = append(measures,
			Measure{Metric: MetricLastCommitDate, Value: latest.Date.UTC().Format(time.RFC3339)},
			Measure{Metric: MetricLastCommitter, Value: latest.Author},
		)
	}

	lines := result.Lines
	if lines == nil {
		lines = []scm.BlameLine{}
	}
	encoded, err := json.Marshal(lines)
	if err != nil {
		// BlameLine holds only strings, ints and times; Marshal cannot fail.
		encoded = []byte("[]")
	}
	measures = append(measures, Measure{Metric: MetricBlameByLine, Value: string(encoded)})

	return &MeasureUpdate{Resource: file.Resource, Measures: measures}, true
}

// latestLine returns the line with the greatest date. Ties keep the
// lowest line number.
func latestLine(lines []scm.BlameLine) (scm.BlameLine, bool) {
	var best scm.BlameLine
	found := false
	for _, l := range lines {
		if l.Date.IsZero() {
			continue
		}
		if !found || l.Date.After(best.Date) {
			best = l
			found = true
		}
	}
	return best, found
}
