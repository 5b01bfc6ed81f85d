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

import "errors"

var (
	// ErrLocalModifications is returned when the working copy has
	// uncommitted changes and the run is not configured to ignore them.
	ErrLocalModifications = errors.New("fail to load SCM data as there are local modifications")

	// ErrLocalModificationCheck is returned when the working copy status
	// could not be obtained at all.
	ErrLocalModificationCheck = errors.New("unable to check for local modifications")

	// ErrDisabled is returned by Analyse when the sensor should not run.
	ErrDisabled = errors.New("scm activity is disabled or has no repository url")

	// ErrRunInProgress is returned when Analyse is called while another
	// run of the same sensor is still going.
	ErrRunInProgress = errors.New("an analysis run is already in progress")
)
