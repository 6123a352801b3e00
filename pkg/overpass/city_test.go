package overpass

import (
	"errors"
	"testing"
)

func TestParseCityState(t *testing.T) {
	tests := []struct {
		in        string
		wantCity  string
		wantState string
		wantErr   bool
	}{
		{in: "boston, ma", wantCity: "Boston", wantState: "MA"},
		{in: "  SAN FRANCISCO ,ca ", wantCity: "San Francisco", wantState: "CA"},
		{in: "winston-salem, NC", wantCity: "Winston-salem", wantState: "NC"},
		{in: "Boston", wantErr: true},
		{in: "Boston, MA, USA", wantErr: true},
		{in: " , MA", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			city, state, err := ParseCityState(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidCity) {
					t.Fatalf("ParseCityState(%q) err = %v, want ErrInvalidCity", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseCityState(%q): %v", tt.in, err)
			}
			if city != tt.wantCity || state != tt.wantState {
				t.Errorf("ParseCityState(%q) = (%q, %q), want (%q, %q)", tt.in, city, state, tt.wantCity, tt.wantState)
			}
		})
	}
}

func TestTitleCase(t *testing.T) {
	if got := TitleCase("new YORK city"); got != "New York City" {
		t.Errorf("TitleCase = %q", got)
	}
}
