package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSchedulerNextRun(t *testing.T) {
	s := &scheduler{hour: 15, minute: 15}

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			name: "before today's slot",
			now:  time.Date(2021, 5, 15, 10, 0, 0, 0, time.UTC),
			want: time.Date(2021, 5, 15, 15, 15, 0, 0, time.UTC),
		},
		{
			name: "exactly on the slot rolls to tomorrow",
			now:  time.Date(2021, 5, 15, 15, 15, 0, 0, time.UTC),
			want: time.Date(2021, 5, 16, 15, 15, 0, 0, time.UTC),
		},
		{
			name: "after today's slot",
			now:  time.Date(2021, 5, 15, 20, 0, 0, 0, time.UTC),
			want: time.Date(2021, 5, 16, 15, 15, 0, 0, time.UTC),
		},
		{
			name: "month boundary",
			now:  time.Date(2021, 5, 31, 23, 59, 0, 0, time.UTC),
			want: time.Date(2021, 6, 1, 15, 15, 0, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.nextRun(tt.now))
		})
	}
}
