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

import "github.com/AleutianAI/scmactivity/services/scmactivity/fingerprint"

// ChangeDetector classifies files against the fingerprint recorded by a
// previous run.
//
// # Thread Safety
//
// Stateless; safe for concurrent use.
type ChangeDetector struct{}

// Detect compares file's fingerprint with the baseline.
//
// # Inputs
//
//   - file: The file being analysed.
//   - baseline: Fingerprint from the previous run. Ignored when !found.
//   - found: Whether a baseline exists.
//
// # Outputs
//
//   - Detection: New without a baseline, Unchanged when equal, Changed
//     otherwise. Only Unchanged skips blame.
func (ChangeDetector) Detect(file AnalyzedFile, baseline fingerprint.Fingerprint, found bool) Detection {
	switch {
	case !found:
		return Detection{Classification: New, NeedsBlame: true}
	case baseline == file.Fingerprint:
		return Detection{Classification: Unchanged, NeedsBlame: false}
	default:
		return Detection{Classification: Changed, NeedsBlame: true}
	}
}

// unknownDetection is used when the baseline lookup failed.
func unknownDetection() Detection {
	return Detection{Classification: Unknown, NeedsBlame: true}
}
