package util

import "testing"

func TestChunks(t *testing.T) {
	cases := []struct {
		name     string
		input    []int
		size     int
		expected [][]int
	}{
		{"empty", nil, 3, nil},
		{"exact multiple", []int{1, 2, 3, 4}, 2, [][]int{{1, 2}, {3, 4}}},
		{"short tail", []int{1, 2, 3, 4, 5}, 2, [][]int{{1, 2}, {3, 4}, {5}}},
		{"size larger than input", []int{1, 2}, 10, [][]int{{1, 2}}},
		{"size one", []int{1, 2, 3}, 1, [][]int{{1}, {2}, {3}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Chunks(tc.input, tc.size)
			if len(got) != len(tc.expected) {
				t.Fatalf("expected %d chunks, got %d", len(tc.expected), len(got))
			}
			for i := range got {
				if len(got[i]) != len(tc.expected[i]) {
					t.Fatalf("chunk %d: expected len %d, got %d", i, len(tc.expected[i]), len(got[i]))
				}
				for j := range got[i] {
					if got[i][j] != tc.expected[i][j] {
						t.Errorf("chunk %d[%d]: expected %d, got %d", i, j, tc.expected[i][j], got[i][j])
					}
				}
			}
		})
	}
}

func TestChunks_PanicsOnBadSize(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for size <= 0")
		}
	}()
	Chunks([]int{1}, 0)
}
