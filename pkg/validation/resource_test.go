// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateResourceKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"simple", "Main.java", false},
		{"nested", "src/main/java/App.java", false},
		{"dots in name", "a/b.c.d/e..f", false},
		{"unicode", "docs/naïve.md", false},

		{"empty", "", true},
		{"nul separator", "a.go\x00scm_hash", true},
		{"newline", "a\nb", true},
		{"absolute", "/etc/passwd", true},
		{"backslash", `src\A.java`, true},
		{"parent", "../secret", true},
		{"inner parent", "src/../A.java", true},
		{"dot segment", "./A.java", true},
		{"double slash", "src//A.java", true},
		{"trailing slash", "src/", true},
		{"too long", strings.Repeat("a", MaxResourceKeyLength+1), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateResourceKey(tt.key)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidResourceKey)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSanitizeResourceKey(t *testing.T) {
	got, err := SanitizeResourceKey(" ./src//main\\A.java ")
	require.NoError(t, err)
	assert.Equal(t, "src/main/A.java", got)

	for _, bad := range []string{"", ".", "../x", "/abs"} {
		_, err := SanitizeResourceKey(bad)
		assert.ErrorIs(t, err, ErrInvalidResourceKey, bad)
	}
}
