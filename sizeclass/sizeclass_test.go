package sizeclass

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewValidation(t *testing.T) {
	cases := []struct {
		name    string
		sizes   []int
		wantErr bool
	}{
		{"reference config", []int{2048, 1024, 256}, false},
		{"empty", nil, true},
		{"not decreasing", []int{1024, 1024}, true},
		{"does not divide page", []int{4097}, true},
		{"non positive", []int{0}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.sizes, 0)
			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestClassOfTightestFit(t *testing.T) {
	tbl, err := New(Default, 0)
	require.NoError(t, err)

	cases := []struct {
		size      int
		wantClass int
		wantOK    bool
	}{
		{0, 0, false},
		{-1, 0, false},
		{1, 2, true},
		{200, 2, true},
		{256, 2, true},
		{257, 1, true},
		{1024, 1, true},
		{1025, 0, true},
		{2048, 0, true},
		{2049, 0, false},
	}
	for _, tc := range cases {
		class, ok := tbl.ClassOf(tc.size)
		require.Equal(t, tc.wantOK, ok, "size %d", tc.size)
		if ok {
			require.Equal(t, tc.wantClass, class, "size %d", tc.size)
			require.GreaterOrEqual(t, tbl.Size(class), tc.size)
			if class != tbl.Count()-1 {
				require.Less(t, tbl.Size(class+1), tc.size)
			}
		}
	}
}

func TestChunksPerPage(t *testing.T) {
	tbl, err := New(Default, 0)
	require.NoError(t, err)
	require.Equal(t, 2, tbl.ChunksPerPage(0))
	require.Equal(t, 4, tbl.ChunksPerPage(1))
	require.Equal(t, 16, tbl.ChunksPerPage(2))
}
