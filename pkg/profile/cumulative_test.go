package profile

import (
	"reflect"
	"testing"
)

func TestCumulativeTop(t *testing.T) {
	tests := []struct {
		name      string
		values    []string
		threshold float64
		want      []string
	}{
		{
			name:      "A x6 B x2 C x2 at 0.8",
			values:    repeat("A", 6, "B", 2, "C", 2),
			threshold: 0.8,
			want:      []string{"A", "B"},
		},
		{
			name:      "single value at any threshold under 1",
			values:    []string{"only"},
			threshold: 0.8,
			want:      []string{"only"},
		},
		{
			name:      "empty input",
			values:    nil,
			threshold: 0.8,
			want:      nil,
		},
		{
			name:      "threshold of 1 requires everything",
			values:    repeat("A", 5, "B", 5),
			threshold: 1.0,
			want:      []string{"A", "B"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cumulativeTop(tt.values, tt.threshold)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("cumulativeTop() = %v, want %v", got, tt.want)
			}
		})
	}
}

func repeat(pairs ...any) []string {
	var out []string
	for i := 0; i < len(pairs); i += 2 {
		v := pairs[i].(string)
		n := pairs[i+1].(int)
		for j := 0; j < n; j++ {
			out = append(out, v)
		}
	}
	return out
}
