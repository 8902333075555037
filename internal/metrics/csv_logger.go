package metrics

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// Result is one benchmark run as recorded in the results CSV.
type Result struct {
	Mode      string
	Shards    int
	Depth     int
	Threads   int
	BlockSize uint64
	Random    bool
	Direct    bool

	Bytes   int64
	Elapsed time.Duration
	MiBps   float64

	RP99, RP50, RP25 time.Duration
	WP99, WP50, WP25 time.Duration
}

var csvHeader = []string{
	"MODE", "SHARDS", "DEPTH", "THREADS", "BS", "RANDOM", "DIRECT",
	"BYTES", "ELAPSED", "MIBPS",
	"R_P99", "R_P50", "R_P25", "W_P99", "W_P50", "W_P25",
	"CPU", "MEMORY", "TIME",
}

// LogResultToCSV appends r to path, writing the header first when the file
// is new or empty.
func LogResultToCSV(path string, r Result) error {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	fileInfo, err := file.Stat()
	if err != nil {
		return err
	}
	if fileInfo.Size() == 0 {
		if err := writer.Write(csvHeader); err != nil {
			return fmt.Errorf("error writing CSV header: %w", err)
		}
	}

	row := []string{
		r.Mode,
		strconv.Itoa(r.Shards),
		strconv.Itoa(r.Depth),
		strconv.Itoa(r.Threads),
		strconv.FormatUint(r.BlockSize, 10),
		strconv.FormatBool(r.Random),
		strconv.FormatBool(r.Direct),
		strconv.FormatInt(r.Bytes, 10),
		r.Elapsed.String(),
		fmt.Sprintf("%.2f", r.MiBps),
		r.RP99.String(), r.RP50.String(), r.RP25.String(),
		r.WP99.String(), r.WP50.String(), r.WP25.String(),
		fmt.Sprintf("%.1f", getCPUUsagePercent()),
		fmt.Sprintf("%.1f", getMemoryUsageMB()),
		time.Now().UTC().Format(time.RFC3339),
	}
	if err := writer.Write(row); err != nil {
		return fmt.Errorf("error writing CSV data row: %w", err)
	}
	writer.Flush()
	return writer.Error()
}

// getMemoryUsageMB returns the heap in use by this process in MB
func getMemoryUsageMB() float64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return float64(m.Alloc) / 1024 / 1024
}

// getCPUUsagePercent samples system CPU usage over 100ms.
func getCPUUsagePercent() float64 {
	idle1, total1 := getCPUStats()
	time.Sleep(100 * time.Millisecond)
	idle2, total2 := getCPUStats()

	idleDelta := float64(idle2 - idle1)
	totalDelta := float64(total2 - total1)
	if totalDelta == 0 {
		return 0
	}
	return (1.0 - idleDelta/totalDelta) * 100.0
}

// getCPUStats reads /proc/stat and returns idle and total CPU time
func getCPUStats() (idle, total uint64) {
	file, err := os.Open("/proc/stat")
	if err != nil {
		return 0, 0
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "cpu ") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 5 {
			return 0, 0
		}
		// cpu user nice system idle iowait irq softirq steal guest guest_nice
		var values []uint64
		for _, field := range fields[1:] {
			val, err := strconv.ParseUint(field, 10, 64)
			if err != nil {
				continue
			}
			values = append(values, val)
			total += val
		}
		if len(values) >= 4 {
			idle = values[3]
		}
		break
	}
	return idle, total
}
