// Package convert implements the converter registry and manager (spec.md
// §4.6): dispatches classified files to the first converter that accepts
// them, running a bounded worker pool with per-task retry/backoff and a
// mutex-protected summary.
package convert

import (
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/krkrport/mnemonic/pkg/config"
	"github.com/krkrport/mnemonic/pkg/errs"
)

// Status is the terminal state of one file's conversion.
type Status string

const (
	StatusSuccess Status = "success"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Result is one file's immutable conversion outcome.
type Result struct {
	SourcePath string
	DestPath   string // empty on failure/skip
	Status     Status
	Message    string
	BytesBefore int64
	BytesAfter  int64
}

// CompressionRatio is BytesAfter/BytesBefore, or 1.0 if BytesBefore is zero.
func (r Result) CompressionRatio() float64 {
	if r.BytesBefore == 0 {
		return 1.0
	}
	return float64(r.BytesAfter) / float64(r.BytesBefore)
}

// BytesSaved is BytesBefore - BytesAfter (negative if the output grew).
func (r Result) BytesSaved() int64 {
	return r.BytesBefore - r.BytesAfter
}

// Summary aggregates every file's Result from one convert_files or
// convert_directory invocation.
type Summary struct {
	Total   int
	Success int
	Failed  int
	Skipped int
	Results []Result
}

// Converter is the uniform single-file transformation interface every
// leaf worker in pkg/convert/{text,imageconv,audio,video,midi,script}
// implements. Dispatch is explicit first-match on CanConvert, never
// shared base-class state (spec.md §9).
type Converter interface {
	SupportedExtensions() []string
	CanConvert(path string) bool
	Convert(src, dst string) (Result, error)
}

// ProgressFunc is invoked under the manager's lock after each file settles.
type ProgressFunc func(completed, total int)

// Manager owns an ordered converter registry and drives the bounded
// worker pool described in §4.6.
type Manager struct {
	converters []Converter
	retry      config.RetryConfig
	progress   ProgressFunc
	workers    int

	mu      sync.Mutex
	summary Summary
}

// NewManager builds a Manager with the given ordered converter registry
// (first-match wins) and retry policy. Worker count follows §4.6:
// min(available_memory_MiB/500, cpu_count), clamped to at least 1, falling
// back to cpu_count if memory can't be determined.
func NewManager(converters []Converter, retry config.RetryConfig, progress ProgressFunc) *Manager {
	return &Manager{
		converters: converters,
		retry:      retry,
		progress:   progress,
		workers:    workerCount(),
	}
}

func workerCount() int {
	cpuCount := runtime.NumCPU()
	if memMiB, ok := availableMemoryMiB(); ok {
		w := memMiB / 500
		if w < 1 {
			w = 1
		}
		if w < cpuCount {
			return w
		}
	}
	return cpuCount
}

// filePair is one (src, dst) conversion job.
type filePair struct {
	src, dst string
}

// ConvertFiles dispatches each (src, dst) pair to the first converter that
// accepts it, running up to m.workers jobs concurrently.
func (m *Manager) ConvertFiles(pairs [][2]string) Summary {
	jobs := make([]filePair, len(pairs))
	for i, p := range pairs {
		jobs[i] = filePair{src: p[0], dst: p[1]}
	}
	return m.run(jobs)
}

// ConvertDirectory walks srcRoot (recursively, if requested) and converts
// every file into the corresponding path under dstRoot.
func (m *Manager) ConvertDirectory(srcRoot, dstRoot string, recursive bool) (Summary, error) {
	var jobs []filePair

	walkFn := func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if !recursive && path != srcRoot {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(srcRoot, path)
		if err != nil {
			return err
		}
		jobs = append(jobs, filePair{src: path, dst: filepath.Join(dstRoot, rel)})
		return nil
	}

	if err := filepath.Walk(srcRoot, walkFn); err != nil {
		return Summary{}, err
	}
	return m.run(jobs), nil
}

func (m *Manager) run(jobs []filePair) Summary {
	m.summary = Summary{Total: len(jobs)}

	pool := m.workers
	if pool < 1 {
		pool = 1
	}

	g := new(errgroup.Group)
	g.SetLimit(pool)

	for _, job := range jobs {
		job := job
		g.Go(func() error {
			m.settle(job)
			return nil
		})
	}
	_ = g.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.summary
}

func (m *Manager) settle(job filePair) {
	result := m.convertWithRetry(job)
	m.record(result)
}

func (m *Manager) convertWithRetry(job filePair) Result {
	converter := m.findConverter(job.src)
	if converter == nil {
		return Result{SourcePath: job.src, Status: StatusSkipped, Message: "no converter"}
	}

	attempts := m.retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var last Result
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := os.MkdirAll(filepath.Dir(job.dst), 0o755); err != nil {
			return Result{SourcePath: job.src, Status: StatusFailed, Message: err.Error()}
		}

		result, err := m.invoke(converter, job)
		if err == nil && result.Status == StatusSuccess {
			return result
		}

		last = result
		if err != nil {
			last = Result{SourcePath: job.src, Status: StatusFailed, Message: err.Error()}
		}

		if attempt < attempts {
			time.Sleep(m.retry.Backoff(attempt))
		}
	}
	return last
}

// invoke recovers from a converter panic, treating it the same as a
// returned failure - component boundaries are the only place business
// failures cross a language-level unwind (spec.md §9).
func (m *Manager) invoke(converter Converter, job filePair) (result Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errs.New(errs.ConversionFailed, job.src, "converter panicked")
		}
	}()
	return converter.Convert(job.src, job.dst)
}

func (m *Manager) findConverter(path string) Converter {
	for _, c := range m.converters {
		if c.CanConvert(path) {
			return c
		}
	}
	return nil
}

func (m *Manager) record(result Result) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch result.Status {
	case StatusSuccess:
		m.summary.Success++
	case StatusSkipped:
		m.summary.Skipped++
	default:
		m.summary.Failed++
	}
	m.summary.Results = append(m.summary.Results, result)

	if m.progress != nil {
		m.progress(len(m.summary.Results), m.summary.Total)
	}
}
