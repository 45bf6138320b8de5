package tracker

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
)

// Point is one recorded value of a scalar time series.
type Point struct {
	Step  int
	Value float64
}

// ScalarWriter records named scalar time series during a run and
// persists them with gob. It stands in for an external metrics
// dashboard: everything logged through it survives the process and can
// be reloaded for plotting.
type ScalarWriter struct {
	filename string
	series   map[string][]Point
}

// NewScalarWriter creates a ScalarWriter that persists to filename,
// creating parent directories as needed.
func NewScalarWriter(filename string) (*ScalarWriter, error) {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return nil, fmt.Errorf("newScalarWriter: could not create "+
				"directory: %v", err)
		}
	}

	return &ScalarWriter{
		filename: filename,
		series:   make(map[string][]Point),
	}, nil
}

// AddScalar appends one value to the named series.
func (w *ScalarWriter) AddScalar(tag string, step int, value float64) {
	w.series[tag] = append(w.series[tag], Point{Step: step, Value: value})
}

// Save persists all series recorded so far, overwriting any previous
// save.
func (w *ScalarWriter) Save() error {
	file, err := os.Create(w.filename)
	if err != nil {
		return fmt.Errorf("save: could not open save file: %v", err)
	}
	defer file.Close()

	en := gob.NewEncoder(file)
	if err := en.Encode(w.series); err != nil {
		return fmt.Errorf("save: could not encode scalar data: %v", err)
	}
	return nil
}

// LoadScalars reads back the series saved by a ScalarWriter.
func LoadScalars(filename string) (map[string][]Point, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("loadScalars: could not open file: %v", err)
	}
	defer file.Close()

	var series map[string][]Point
	de := gob.NewDecoder(file)
	if err := de.Decode(&series); err != nil {
		return nil, fmt.Errorf("loadScalars: could not decode scalar "+
			"data: %v", err)
	}
	return series, nil
}
