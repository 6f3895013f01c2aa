// Package sample keeps the sample packs registered with the bridge and
// resolves play requests to engine buffer numbers.
package sample

import (
	"fmt"
	"log/slog"
	"sort"
)

// DefaultBuffer is used when a play request cannot be resolved.
const DefaultBuffer int32 = 0

// Sample is one file loaded into an engine buffer.
type Sample struct {
	FilePath     string
	BufferNumber int32
	Category     string
	ToneIndex    int32
}

// BufferLoadScript returns the interpreter statement that loads s into its
// buffer on server.
func (s Sample) BufferLoadScript(server string) string {
	return fmt.Sprintf("Buffer.read(%s, %q, 0, -1, bufnum: %d); \n", server, s.FilePath, s.BufferNumber)
}

// ScoreRow returns the score row that allocates and reads s at time zero of
// an offline render.
func (s Sample) ScoreRow() string {
	return fmt.Sprintf("[0.0, (Buffer.new(server, 44100 * 8.0, 2, bufnum: %d)).allocReadMsg(%q)]", s.BufferNumber, s.FilePath)
}

// Dict maps pack names to their samples. The zero value is not usable; use
// NewDict. Like the registry, it is owned by one goroutine.
type Dict struct {
	packs  map[string][]Sample
	logger *slog.Logger
}

// NewDict returns an empty dictionary. A nil logger uses slog.Default.
func NewDict(logger *slog.Logger) *Dict {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dict{packs: make(map[string][]Sample), logger: logger}
}

// Register adds s to pack. A sample already registered under the same tone
// index is replaced. If the file is already present under another tone
// index, the existing sample is kept and returned.
func (d *Dict) Register(pack string, s Sample) Sample {
	samples := d.packs[pack][:0:0]
	for _, existing := range d.packs[pack] {
		if existing.ToneIndex != s.ToneIndex {
			samples = append(samples, existing)
		}
	}

	for _, existing := range samples {
		if existing.FilePath == s.FilePath {
			d.packs[pack] = samples
			return existing
		}
	}

	samples = append(samples, s)
	sort.SliceStable(samples, func(i, j int) bool { return samples[i].ToneIndex < samples[j].ToneIndex })
	d.packs[pack] = samples
	return s
}

// Resolve picks the sample at index within pack, counting only samples of
// category unless category is empty. The index wraps around the number of
// candidates. ok is false when nothing matched.
func (d *Dict) Resolve(pack string, index int, category string) (Sample, bool) {
	samples, ok := d.packs[pack]
	if !ok {
		return Sample{}, false
	}

	var candidates []Sample
	for _, s := range samples {
		if category == "" || s.Category == category {
			candidates = append(candidates, s)
		}
	}
	if len(candidates) == 0 {
		return Sample{}, false
	}

	i := index % len(candidates)
	if i < 0 {
		i += len(candidates)
	}
	return candidates[i], true
}

// Buffer resolves a play request to a buffer number, falling back to
// DefaultBuffer with a warning.
func (d *Dict) Buffer(pack string, index int, category string) int32 {
	s, ok := d.Resolve(pack, index, category)
	if !ok {
		d.logger.Warn("no sample for play request, using default buffer",
			"pack", pack, "index", index, "category", category, "buffer", DefaultBuffer)
		return DefaultBuffer
	}
	return s.BufferNumber
}

// All returns every registered sample ordered by pack name and tone index.
func (d *Dict) All() []Sample {
	names := make([]string, 0, len(d.packs))
	for name := range d.packs {
		names = append(names, name)
	}
	sort.Strings(names)

	var all []Sample
	for _, name := range names {
		all = append(all, d.packs[name]...)
	}
	return all
}

// Len returns the number of registered samples.
func (d *Dict) Len() int {
	n := 0
	for _, samples := range d.packs {
		n += len(samples)
	}
	return n
}
