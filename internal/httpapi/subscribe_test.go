package httpapi

import (
	"net/http/httptest"
	"testing"
)

func TestParseInitialLimit(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want int
	}{
		{name: "missing defaults to 50", raw: "", want: 50},
		{name: "unparseable defaults to 50", raw: "not-a-number", want: 50},
		{name: "within range is kept", raw: "10", want: 10},
		{name: "zero clamps to 1", raw: "0", want: 1},
		{name: "negative clamps to 1", raw: "-5", want: 1},
		{name: "above 200 clamps to 200", raw: "500", want: 200},
		{name: "exactly 200 is kept", raw: "200", want: 200},
		{name: "exactly 1 is kept", raw: "1", want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url := "/api/v1/alerts/subscribe"
			if tt.raw != "" {
				url += "?initial_limit=" + tt.raw
			}
			r := httptest.NewRequest("GET", url, nil)
			if got := parseInitialLimit(r); got != tt.want {
				t.Errorf("parseInitialLimit() = %d, want %d", got, tt.want)
			}
		})
	}
}
