// Copyright (c) 2015-2025 Cask Contributors.
//
// This file is part of Cask Object Storage stack
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequestRangeSpec(t *testing.T) {
	testCases := []struct {
		rangeHeader   string
		resourceSize  int64
		expectIgnored bool
		expectErr     bool
		start, length int64
	}{
		{rangeHeader: "bytes=0-9", resourceSize: 16, start: 0, length: 10},
		{rangeHeader: "bytes=10-", resourceSize: 16, start: 10, length: 6},
		{rangeHeader: "bytes=-5", resourceSize: 16, start: 11, length: 5},
		{rangeHeader: "bytes=0-100", resourceSize: 16, start: 0, length: 16},
		{rangeHeader: "bytes=-100", resourceSize: 16, start: 0, length: 16},
		{rangeHeader: "bytes=16-", resourceSize: 16, expectErr: true},
		{rangeHeader: "bytes=20-30", resourceSize: 16, expectErr: true},
		// Unsupported or malformed forms are ignored, the caller
		// serves the full body.
		{rangeHeader: "items=0-9", expectIgnored: true},
		{rangeHeader: "bytes=0-4,10-14", expectIgnored: true},
		{rangeHeader: "bytes=abc-def", expectIgnored: true},
		{rangeHeader: "bytes=5-2", expectIgnored: true},
		{rangeHeader: "bytes=-0", expectIgnored: true},
	}

	for _, tc := range testCases {
		rs, err := parseRequestRangeSpec(tc.rangeHeader)
		require.NoError(t, err, tc.rangeHeader)
		if tc.expectIgnored {
			assert.Nil(t, rs, tc.rangeHeader)
			continue
		}
		require.NotNil(t, rs, tc.rangeHeader)
		start, length, err := rs.GetOffsetLength(tc.resourceSize)
		if tc.expectErr {
			require.Error(t, err, tc.rangeHeader)
			assert.Equal(t, ErrInvalidRange, toAPIErrorCode(err), tc.rangeHeader)
			continue
		}
		require.NoError(t, err, tc.rangeHeader)
		assert.Equal(t, tc.start, start, tc.rangeHeader)
		assert.Equal(t, tc.length, length, tc.rangeHeader)
	}
}

func TestContentRange(t *testing.T) {
	rs, err := parseRequestRangeSpec("bytes=10-")
	require.NoError(t, err)
	start, length, err := rs.GetOffsetLength(16)
	require.NoError(t, err)
	assert.Equal(t, "bytes 10-15/16", rs.contentRange(start, length, 16))

	rs, err = parseRequestRangeSpec("bytes=-5")
	require.NoError(t, err)
	start, length, err = rs.GetOffsetLength(16)
	require.NoError(t, err)
	assert.Equal(t, "bytes 11-15/16", rs.contentRange(start, length, 16))
}
