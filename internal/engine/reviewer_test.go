package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"tradewarden/internal/domain"
)

func TestGradeExit(t *testing.T) {
	trade := &domain.Trade{EntryPrice: 100, TakeProfit: 110}

	tests := []struct {
		name    string
		reason  domain.CloseReason
		rr      float64
		highest float64
		lowest  float64
		want    int
	}{
		{
			name:   "stop fired then price recovered to the target",
			reason: domain.CloseReasonStopLoss,
			rr:     1.5, highest: 110.5, lowest: 94.5,
			want: -10,
		},
		{
			name:   "stop saved a position that stayed down",
			reason: domain.CloseReasonStopLoss,
			rr:     1.5, highest: 104, lowest: 92,
			want: 10,
		},
		{
			name:   "target hit near the local top",
			reason: domain.CloseReasonTakeProfit,
			rr:     1.5, highest: 110.5, lowest: 108,
			want: 10,
		},
		{
			name:   "target with modest continuation",
			reason: domain.CloseReasonTakeProfit,
			rr:     1.5, highest: 113, lowest: 109,
			want: 5,
		},
		{
			name:   "target left more than the risk-reward multiple on the table",
			reason: domain.CloseReasonTakeProfit,
			rr:     0.02, highest: 113, lowest: 109,
			want: -5,
		},
		{
			name:   "trail exit near the top",
			reason: domain.CloseReasonTrailingStop,
			rr:     1.5, highest: 110.2, lowest: 105,
			want: 10,
		},
		{
			name:   "trail cut a position with room left",
			reason: domain.CloseReasonTrailingStop,
			rr:     1.5, highest: 112, lowest: 106,
			want: 5,
		},
		{
			name:   "advisor exit has no assessment",
			reason: domain.CloseReasonWiseMan,
			rr:     1.5, highest: 105, lowest: 95,
			want: 0,
		},
		{
			name:   "dust close has no assessment",
			reason: domain.CloseReasonDust,
			rr:     1.5, highest: 105, lowest: 95,
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, notes := gradeExit(trade, tt.reason, tt.rr, tt.highest, tt.lowest)
			assert.Equal(t, tt.want, score)
			assert.NotEmpty(t, notes)
		})
	}
}
