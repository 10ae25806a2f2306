package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"golang.org/x/term"

	"github.com/i5heu/autofuel/internal/queue"
	"github.com/i5heu/autofuel/internal/testbench"
	"github.com/i5heu/autofuel/pkg/autofuel"
	"github.com/i5heu/autofuel/pkg/config"
	"github.com/i5heu/autofuel/pkg/sliceprovider"
)

// BenchmarkResult holds results for one drain run.
type BenchmarkResult struct {
	Implementation  string  `json:"implementation"`
	NumConsumers    int     `json:"num_consumers"`
	PoolSize        int     `json:"pool_size"`
	NumItems        int     `json:"num_items"`
	MaxBatch        int     `json:"max_batch"`
	ProviderLatency string  `json:"provider_latency"`
	NumConsumed     int64   `json:"num_messages_consumed"`
	Refills         int64   `json:"refills"`
	ActualElapsed   string  `json:"actual_elapsed"`
	Throughput      float64 `json:"throughput_msgs_sec"`
	Timestamp       int64   `json:"timestamp"`
	GoVersion       string  `json:"go_version"`
}

// SystemInfo holds system information.
type SystemInfo struct {
	NumCPU            int     `json:"num_cpu"`
	TrueCPU           int     `json:"true_cpu,omitempty"`
	SimulatedCPUCount int     `json:"simulated_cpu_count,omitempty"`
	CPUModel          string  `json:"cpu_model,omitempty"`
	CPUSpeedMHz       float64 `json:"cpu_speed_mhz,omitempty"`
	GOARCH            string  `json:"go_arch"`
	TotalMemory       uint64  `json:"total_memory_bytes,omitempty"`
}

// FullReport represents a complete bench session.
type FullReport struct {
	SessionTime string            `json:"session_time"`
	SystemInfo  SystemInfo        `json:"system_info"`
	Benchmarks  []BenchmarkResult `json:"benchmarks"`
}

type benchQueue = queue.Interface[*int]

// instance is a freshly built queue plus a way to read its refill count.
type instance struct {
	q       benchQueue
	refills func() int64
}

// Implementation is one queue setup under test.
type Implementation struct {
	name        string
	description string
	pkgName     string
	features    []string
	newQueue    func(ctx context.Context, cfg testbench.Config) (instance, error)
}

func items(n int) []*int {
	out := make([]*int, n)
	for i := range out {
		v := i
		out[i] = &v
	}
	return out
}

// getImplementations enumerates the queue setups we compare.
func getImplementations() []Implementation {
	return []Implementation{
		{
			name:        "AutoFuelQueue",
			pkgName:     "autofuel",
			description: "Gated queue that refills itself from a provider in batches of up to pool size.",
			features:    []string{"MPMC", "FIFO", "AutoFuel"},
			newQueue: func(ctx context.Context, cfg testbench.Config) (instance, error) {
				p := sliceprovider.New(items(cfg.NumItems),
					sliceprovider.WithMaxBatch(cfg.MaxBatch),
					sliceprovider.WithLatency(cfg.ProviderLatency),
				)
				q, err := autofuel.New[*int](cfg.PoolSize, p)
				if err != nil {
					return instance{}, err
				}
				if err := q.Open(ctx); err != nil {
					return instance{}, err
				}
				return instance{q: q, refills: func() int64 { return q.Stats().Refills }}, nil
			},
		},
		{
			name:        "PrefilledQueue",
			pkgName:     "queue",
			description: "All items loaded up front, consumers take until empty. No provider, no gate.",
			features:    []string{"MPMC", "FIFO"},
			newQueue: func(ctx context.Context, cfg testbench.Config) (instance, error) {
				return instance{q: queue.NewPrefilled(items(cfg.NumItems)), refills: func() int64 { return 0 }}, nil
			},
		},
	}
}

// runOne builds a queue for impl and drains it with cfg.
func runOne(ctx context.Context, impl Implementation, cfg testbench.Config) (BenchmarkResult, error) {
	inst, err := impl.newQueue(ctx, cfg)
	if err != nil {
		return BenchmarkResult{}, fmt.Errorf("%s: %w", impl.name, err)
	}
	res, err := testbench.RunDrain[*int](ctx, inst.q, cfg, testbench.Hooks[*int]{})
	if err != nil {
		return BenchmarkResult{}, fmt.Errorf("%s: %w", impl.name, err)
	}
	return BenchmarkResult{
		Implementation:  impl.name,
		NumConsumers:    cfg.NumConsumers,
		PoolSize:        cfg.PoolSize,
		NumItems:        cfg.NumItems,
		MaxBatch:        cfg.MaxBatch,
		ProviderLatency: cfg.ProviderLatency.String(),
		NumConsumed:     res.Consumed,
		Refills:         inst.refills(),
		ActualElapsed:   res.Elapsed.String(),
		Throughput:      res.Throughput(),
		Timestamp:       time.Now().Unix(),
		GoVersion:       runtime.Version(),
	}, nil
}

// outputMarkdownTable loads the JSON file and outputs a Markdown table.
func outputMarkdownTable(jsonFile string) {
	data, err := os.ReadFile(jsonFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading JSON file %q: %v\n", jsonFile, err)
		os.Exit(1)
	}
	var sessions []FullReport
	if err := json.Unmarshal(data, &sessions); err != nil {
		fmt.Fprintf(os.Stderr, "Error unmarshalling JSON: %v\n", err)
		os.Exit(1)
	}
	if len(sessions) == 0 {
		fmt.Fprintln(os.Stderr, "No sessions found in JSON.")
		os.Exit(1)
	}
	fmt.Print(markdownTable(sessions[len(sessions)-1]))
}

// markdownTable renders one session, fastest first.
func markdownTable(session FullReport) string {
	meta := make(map[string]Implementation)
	for _, impl := range getImplementations() {
		meta[impl.name] = impl
	}

	rows := append([]BenchmarkResult(nil), session.Benchmarks...)
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Throughput > rows[j].Throughput
	})

	var b strings.Builder
	b.WriteString("## Last Session Benchmark Summary\n\n")
	b.WriteString("| Implementation   | Package    | Features                 | Consumers | Refills | Throughput (msgs/sec) |\n")
	b.WriteString("|------------------|------------|--------------------------|-----------|---------|-----------------------|\n")
	for _, r := range rows {
		m := meta[r.Implementation]
		fmt.Fprintf(&b, "| %-16s | %-10s | %-24s | %9d | %7d | %21.0f |\n",
			r.Implementation, m.pkgName, strings.Join(m.features, ", "), r.NumConsumers, r.Refills, r.Throughput)
	}
	return b.String()
}

func newProgressBar(total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("bench"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionClearOnFinish(),
	)
}

func main() {
	// Flags.
	testIterations := flag.Int("iter", 0, "Number of iterations per consumer count (0 = use the config value)")
	cpuMaxFlag := flag.Int("cpu", 0, "If non-zero, run with that GOMAXPROCS value")
	configPath := flag.String("config", "", "Path to a YAML bench plan (see configs/bench.yaml)")
	jsonExport := flag.Bool("json", false, "Export results as JSON to test-results.json")
	markdownTableFlag := flag.Bool("markdown-table", false, "Output markdown table from test-results.json and exit")
	jsonFileForMarkdown := flag.String("jsonfile", "test-results.json", "Path to JSON file for markdown table")
	progressFlag := flag.Bool("progress", false, "Display a progress bar with ETA (only on a terminal)")
	flag.Parse()

	if *markdownTableFlag {
		outputMarkdownTable(*jsonFileForMarkdown)
		return
	}

	plan := config.Default()
	if *configPath != "" {
		var err error
		plan, err = config.Load(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(1)
		}
	}
	if *testIterations > 0 {
		plan.Iterations = *testIterations
	}

	trueCpuCount := runtime.NumCPU()
	cpus := runtime.GOMAXPROCS(0)
	if *cpuMaxFlag > 0 {
		cpus = min(*cpuMaxFlag, trueCpuCount)
		runtime.GOMAXPROCS(cpus)
	}
	sysInfo := gatherSystemInfo()
	sysInfo.NumCPU = cpus
	sysInfo.TrueCPU = trueCpuCount
	sysInfo.SimulatedCPUCount = cpus

	fmt.Printf("\n=============================\n")
	fmt.Printf("GOMAXPROCS = %d, pool_size = %d, items = %d\n", cpus, plan.Run.PoolSize, plan.Run.NumItems)
	fmt.Printf("=============================\n")

	impls := getImplementations()
	totalTests := len(plan.Consumers) * plan.Iterations * len(impls)

	var bar *progressbar.ProgressBar
	if *progressFlag && term.IsTerminal(int(os.Stderr.Fd())) {
		bar = newProgressBar(totalTests)
	}

	ctx := context.Background()
	var results []BenchmarkResult

	for _, consumers := range plan.Consumers {
		cfg := plan.Run
		cfg.NumConsumers = consumers
		fmt.Printf("  [Consumers: %d]\n", consumers)

		for iteration := 1; iteration <= plan.Iterations; iteration++ {
			fmt.Printf("    iteration %d/%d\n", iteration, plan.Iterations)
			for _, impl := range impls {
				runtime.GC()

				result, err := runOne(ctx, impl, cfg)
				if err != nil {
					fmt.Fprintln(os.Stderr, "Error:", err)
					os.Exit(1)
				}
				if bar != nil {
					bar.Add(1)
				}

				fmt.Printf("    %s => consumed=%d, refills=%d, throughput=%.0f msg/s, took=%s\n",
					impl.name, result.NumConsumed, result.Refills, result.Throughput, result.ActualElapsed)
				results = append(results, result)
			}
		}
	}
	if bar != nil {
		bar.Finish()
	}

	report := FullReport{
		SessionTime: time.Now().Format(time.RFC3339),
		SystemInfo:  sysInfo,
		Benchmarks:  results,
	}
	fmt.Println()
	fmt.Print(markdownTable(report))

	// If JSON export is requested, append the new session to test-results.json.
	if *jsonExport {
		const filename = "test-results.json"
		var previous []FullReport
		if data, err := os.ReadFile(filename); err == nil && len(data) > 0 {
			if err := json.Unmarshal(data, &previous); err != nil {
				fmt.Fprintf(os.Stderr, "Error reading existing %s: %v\n", filename, err)
				os.Exit(1)
			}
		}
		updated := append(previous, report)
		data, err := json.MarshalIndent(updated, "", "  ")
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error marshalling JSON:", err)
			os.Exit(1)
		}
		if err = os.WriteFile(filename, data, 0644); err != nil {
			fmt.Fprintln(os.Stderr, "Error writing JSON file:", err)
			os.Exit(1)
		}
		fmt.Printf("\nWrote results to %s\n", filename)
	}
}

// gatherSystemInfo collects basic CPU and memory details.
func gatherSystemInfo() SystemInfo {
	var cpuModel string
	var cpuSpeed float64
	if infos, err := cpu.Info(); err == nil && len(infos) > 0 {
		cpuModel = infos[0].ModelName
		cpuSpeed = infos[0].Mhz
	}

	var totalMemory uint64
	if vm, err := mem.VirtualMemory(); err == nil {
		totalMemory = vm.Total
	}

	return SystemInfo{
		NumCPU:      runtime.NumCPU(),
		CPUModel:    cpuModel,
		CPUSpeedMHz: cpuSpeed,
		GOARCH:      runtime.GOARCH,
		TotalMemory: totalMemory,
	}
}
