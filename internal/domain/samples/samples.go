// Package samples loads labelled reference poses used to seed the pose
// classifier. Each CSV line is
//
//	<sample name>,<class name>,x0,y0,z0,...,x32,y32,z32
//
// Lines that cannot be parsed are skipped with a warning.
package samples

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/okian/repsense/internal/domain/model"
	"github.com/okian/repsense/pkg/logger"
)

const (
	dims        = 3
	fieldsCount = 2 + model.NumLandmarks*dims
)

// Sample is one labelled reference pose.
type Sample struct {
	Name      string
	Class     string
	Landmarks model.LandmarkFrame
}

// Set is an immutable collection of samples.
type Set struct {
	samples []Sample
	byClass map[string]int
}

// Len returns the number of samples.
func (s *Set) Len() int { return len(s.samples) }

// Count returns how many samples carry class.
func (s *Set) Count(class string) int { return s.byClass[class] }

// Classes returns the distinct class names, sorted.
func (s *Set) Classes() []string {
	out := make([]string, 0, len(s.byClass))
	for c := range s.byClass {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Missing returns the classes from want that have no samples, keeping
// the order of want.
func (s *Set) Missing(want []string) []string {
	var out []string
	for _, c := range want {
		if s.byClass[c] == 0 {
			out = append(out, c)
		}
	}
	return out
}

// LoadFile reads samples from path. A missing file is logged and yields an
// empty set.
func LoadFile(ctx context.Context, path string) (*Set, error) {
	log := logger.Get().Named("samples")
	if path == "" {
		return Empty(), nil
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Warn(ctx, "pose samples file not found; continuing without samples", logger.String("path", path))
		return Empty(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadSamples, err)
	}
	defer func() { _ = f.Close() }()

	log.Debug(ctx, "loading pose samples", logger.String("path", path))
	return Load(ctx, f)
}

// Load parses samples from r.
func Load(ctx context.Context, r io.Reader) (*Set, error) {
	log := logger.Get().Named("samples")

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true
	cr.Comment = '#'

	set := Empty()
	line := 0
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				log.Warn(ctx, "could not parse pose sample", logger.Int("line", line), logger.Error(err))
				continue
			}
			return nil, fmt.Errorf("%w: %w", ErrLoadSamples, err)
		}

		sample, err := parse(record)
		if err != nil {
			log.Warn(ctx, "could not parse pose sample", logger.Int("line", line), logger.Error(err))
			continue
		}
		set.samples = append(set.samples, sample)
		set.byClass[sample.Class]++
	}

	log.Info(ctx, "loaded pose samples",
		logger.Int("samples", set.Len()),
		logger.Any("classes", set.Classes()),
	)
	return set, nil
}

func parse(record []string) (Sample, error) {
	if len(record) != fieldsCount {
		return Sample{}, fmt.Errorf("%w: want %d fields, got %d", ErrMalformedSample, fieldsCount, len(record))
	}
	s := Sample{
		Name:      strings.TrimSpace(record[0]),
		Class:     strings.TrimSpace(record[1]),
		Landmarks: make(model.LandmarkFrame, model.NumLandmarks),
	}
	if s.Class == "" {
		return Sample{}, fmt.Errorf("%w: empty class name", ErrMalformedSample)
	}
	for i := 0; i < model.NumLandmarks; i++ {
		var xyz [dims]float64
		for d := 0; d < dims; d++ {
			raw := strings.TrimSpace(record[2+i*dims+d])
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return Sample{}, fmt.Errorf("%w: landmark %s: %q", ErrMalformedSample, model.LandmarkType(i), raw)
			}
			xyz[d] = v
		}
		s.Landmarks[model.LandmarkType(i)] = model.Point{X: xyz[0], Y: xyz[1], Z: xyz[2]}
	}
	return s, nil
}

// Empty returns a set with no samples.
func Empty() *Set {
	return &Set{byClass: make(map[string]int)}
}
