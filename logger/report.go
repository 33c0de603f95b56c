package logger

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

type stageStat struct {
	units int64
	bytes int64
}

var (
	warnsTotal     int64
	errorsTotal    int64
	downloads      int64
	downloadBytes  int64
	toolRuns       int64
	toolFailures   int64
	resultsWritten int64
	stages         sync.Map // map[string]*stageStat
)

func recordWarn(component string) {
	_ = component
	atomic.AddInt64(&warnsTotal, 1)
}

func recordError(component string) {
	_ = component
	atomic.AddInt64(&errorsTotal, 1)
}

// IncrementDownload records one completed archive transfer.
func IncrementDownload(size int64) {
	atomic.AddInt64(&downloads, 1)
	atomic.AddInt64(&downloadBytes, size)
	recordStage("acquisition", int(size))
}

// IncrementToolRun records one external tool invocation; failed marks a
// nonzero exit or timeout.
func IncrementToolRun(failed bool) {
	atomic.AddInt64(&toolRuns, 1)
	if failed {
		atomic.AddInt64(&toolFailures, 1)
	}
}

// IncrementResultWritten records one line appended to the results log.
func IncrementResultWritten() {
	atomic.AddInt64(&resultsWritten, 1)
	recordStage("results", 0)
}

// RecordStageUnit records one processed unit for an arbitrary stage name.
func RecordStageUnit(name string, size int) {
	recordStage(name, size)
}

func recordStage(name string, size int) {
	v, _ := stages.LoadOrStore(name, &stageStat{})
	st := v.(*stageStat)
	atomic.AddInt64(&st.units, 1)
	atomic.AddInt64(&st.bytes, int64(size))
}

// StartReport periodically logs a consolidated pipeline and host report
// and publishes the headline numbers as CloudWatch metrics.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				emitReport(log)
			}
		}
	}()
}

func emitReport(log *Log) {
	fields := Fields{
		"downloads":       atomic.LoadInt64(&downloads),
		"download_bytes":  atomic.LoadInt64(&downloadBytes),
		"tool_runs":       atomic.LoadInt64(&toolRuns),
		"tool_failures":   atomic.LoadInt64(&toolFailures),
		"results_written": atomic.LoadInt64(&resultsWritten),
		"warns":           atomic.LoadInt64(&warnsTotal),
		"errors":          atomic.LoadInt64(&errorsTotal),
		"goroutines":      runtime.NumGoroutine(),
	}

	stageSummary := make([]string, 0, 4)
	stages.Range(func(k, v interface{}) bool {
		st := v.(*stageStat)
		stageSummary = append(stageSummary, k.(string))
		fields["stage_"+k.(string)+"_units"] = atomic.LoadInt64(&st.units)
		return true
	})
	fields["stages"] = strings.Join(stageSummary, ",")

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		fields["cpu_percent"] = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		fields["memory_mb"] = float64(vm.Used) / 1024 / 1024
	}
	if du, err := disk.Usage("/"); err == nil {
		fields["disk_used_mb"] = float64(du.Used) / 1024 / 1024
	}

	log.WithComponent("report").WithFields(fields).Info("pipeline report")

	data := []cwtypes.MetricDatum{
		{MetricName: aws.String("Downloads"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&downloads)))},
		{MetricName: aws.String("ToolRuns"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&toolRuns)))},
		{MetricName: aws.String("ToolFailures"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&toolFailures)))},
		{MetricName: aws.String("ResultsWritten"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&resultsWritten)))},
	}
	publishMetrics(context.Background(), data)
}
