package chread

import (
	"strings"
	"testing"
	"time"
)

func TestBuildFilter(t *testing.T) {
	typ := "mysql"
	blocked := true
	sev := 80
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		params   ListAttacksParams
		want     string
		wantArgs int
	}{
		{"no filters", ListAttacksParams{}, "1 = 1", 0},
		{
			name:     "all filters",
			params:   ListAttacksParams{AlgorithmType: &typ, Blocked: &blocked, MinSeverity: &sev, StartTime: &start},
			want:     "1 = 1 AND algorithm_type = @algorithm_type AND blocked = @blocked AND severity >= @min_severity AND timestamp >= @start_time",
			wantArgs: 4,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			where, args := buildFilter(tt.params)
			if where != tt.want {
				t.Errorf("where = %q, want %q", where, tt.want)
			}
			if len(args) != tt.wantArgs {
				t.Errorf("args = %d, want %d", len(args), tt.wantArgs)
			}
		})
	}
}

func TestAttackColumnsMatchScan(t *testing.T) {
	if n := len(strings.Split(attackColumns, ",")); n != 11 {
		t.Errorf("ListAttacks scans 11 columns, attackColumns has %d", n)
	}
}
