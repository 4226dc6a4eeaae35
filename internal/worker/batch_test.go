package worker

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/ppiankov/hopqa/internal/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchProcessor_ProcessUnits(t *testing.T) {
	var calls int32
	handler := UnitHandlerFunc(func(ctx context.Context, unit string) report.UnitOutcome {
		atomic.AddInt32(&calls, 1)
		if unit == "video_02" {
			return report.UnitOutcome{Unit: unit, Status: report.StatusFailed, Err: fmt.Errorf("oracle exhausted")}
		}
		return report.UnitOutcome{Unit: unit, Status: report.StatusDone, Total: 3, Passed: 2, Failed: 1}
	})

	units := []string{"video_03", "video_01", "video_02"}
	outcomes := NewBatchProcessor(handler, 2).ProcessUnits(context.Background(), units)

	require.Len(t, outcomes, 3)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, "video_01", outcomes[0].Unit)
	assert.Equal(t, "video_02", outcomes[1].Unit)
	assert.Error(t, outcomes[1].GetError())
	assert.Equal(t, report.StatusDone, outcomes[2].Status)
}

func TestBatchProcessor_Empty(t *testing.T) {
	handler := UnitHandlerFunc(func(ctx context.Context, unit string) report.UnitOutcome {
		t.Fatal("handler must not run")
		return report.UnitOutcome{}
	})
	assert.Empty(t, NewBatchProcessor(handler, 4).ProcessUnits(context.Background(), nil))
}
