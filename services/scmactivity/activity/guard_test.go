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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/scmactivity/services/scmactivity/scm"
)

func TestLocalModificationGuard(t *testing.T) {
	fs := &fakeFS{src: []string{"/p/src"}, tests: []string{"/p/test"}}

	tests := []struct {
		name      string
		setup     func(p *fakeProvider)
		wantErr   error
		wantMsg   string
		wantCalls []string
	}{
		{
			name:      "clean working copy",
			setup:     func(p *fakeProvider) {},
			wantCalls: []string{"/p/src", "/p/test"},
		},
		{
			name: "local changes in sources",
			setup: func(p *fakeProvider) {
				p.statuses["/p/src"] = &scm.LocalChangeReport{Success: true, ChangedFiles: []string{"src/A.java", "src/B.java"}}
			},
			wantErr:   ErrLocalModifications,
			wantMsg:   "fail to load SCM data as there are local modifications: src/A.java",
			wantCalls: []string{"/p/src"},
		},
		{
			name: "local changes in tests",
			setup: func(p *fakeProvider) {
				p.statuses["/p/test"] = &scm.LocalChangeReport{Success: true, ChangedFiles: []string{"local diff"}}
			},
			wantErr:   ErrLocalModifications,
			wantMsg:   "local modifications: local diff",
			wantCalls: []string{"/p/src", "/p/test"},
		},
		{
			name: "provider refuses",
			setup: func(p *fakeProvider) {
				p.statuses["/p/src"] = &scm.LocalChangeReport{Success: false, ProviderMessage: "BUG"}
			},
			wantErr:   ErrLocalModificationCheck,
			wantMsg:   "unable to check for local modifications: BUG",
			wantCalls: []string{"/p/src"},
		},
		{
			name:      "provider error",
			setup:     func(p *fakeProvider) { p.statusErr = errBoom },
			wantErr:   ErrLocalModificationCheck,
			wantMsg:   "unable to check for local modifications",
			wantCalls: []string{"/p/src"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newFakeProvider()
			tt.setup(p)
			g := NewLocalModificationGuard(p, fs, false, nil)

			err := g.Check(context.Background())
			if tt.wantErr == nil {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
			assert.Equal(t, tt.wantCalls, p.statusCalls)
		})
	}
}

func TestLocalModificationGuard_Ignore(t *testing.T) {
	p := newFakeProvider()
	p.statusErr = errBoom
	fs := &fakeFS{src: []string{"/p/src"}, tests: []string{"/p/test"}}

	g := NewLocalModificationGuard(p, fs, true, nil)
	require.NoError(t, g.Check(context.Background()))
	assert.Zero(t, p.statusCount())
}

func TestLocalModificationGuard_NilReport(t *testing.T) {
	fs := &fakeFS{src: []string{"/p/src"}}
	g := NewLocalModificationGuard(nilStatusProvider{newFakeProvider()}, fs, false, nil)
	err := g.Check(context.Background())
	assert.ErrorIs(t, err, ErrLocalModificationCheck)
}

type nilStatusProvider struct{ *fakeProvider }

func (nilStatusProvider) Status(context.Context, string) (*scm.LocalChangeReport, error) {
	return nil, nil
}
