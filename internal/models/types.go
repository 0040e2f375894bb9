package models

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// Sample represents a single point of a simulation result series.
// Time is kept exactly as the simulation service wrote it.
type Sample struct {
	Time  string  `json:"time"`
	Value float64 `json:"value"`
}

// FileHandle is an uploaded input file: its display name and raw content.
type FileHandle struct {
	Name string
	Data []byte
}

// Present reports whether f holds any content. A nil or zero-byte file is
// never sent to the service.
func (f *FileHandle) Present() bool {
	return f != nil && len(f.Data) > 0
}

// LoadFile reads a file from disk into a FileHandle named after its base name.
func LoadFile(path string) (*FileHandle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read input file: %w", err)
	}
	return &FileHandle{Name: filepath.Base(path), Data: data}, nil
}

// Dimensions describes a rectangular building in meters. A zero field means
// the value was not provided.
type Dimensions struct {
	Length float64
	Width  float64
	Height float64
}

// Provided reports whether any of the three dimensions has been entered.
func (d Dimensions) Provided() bool {
	return d.Length != 0 || d.Width != 0 || d.Height != 0
}

// Complete reports whether all three dimensions are positive finite numbers.
func (d Dimensions) Complete() bool {
	for _, v := range []float64{d.Length, d.Width, d.Height} {
		if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// SimulationRequest is everything needed for one submission attempt.
type SimulationRequest struct {
	BuildingModel *FileHandle
	Weather       *FileHandle
	Dimensions    Dimensions
}

// ResultKind discriminates the two payload shapes served by the results endpoint.
type ResultKind int

const (
	// KindTable is delimited text with a header row.
	KindTable ResultKind = iota
	// KindSamples is an already structured list of samples.
	KindSamples
)

func (k ResultKind) String() string {
	switch k {
	case KindTable:
		return "table"
	case KindSamples:
		return "samples"
	default:
		return "unknown"
	}
}

// RawResult is a results payload whose shape was resolved by the transport.
// Text is set for KindTable, Samples for KindSamples.
type RawResult struct {
	Kind    ResultKind
	Text    string
	Samples []Sample
}

// TableResult wraps delimited text as a RawResult.
func TableResult(text string) RawResult {
	return RawResult{Kind: KindTable, Text: text}
}

// SamplesResult wraps structured samples as a RawResult.
func SamplesResult(samples []Sample) RawResult {
	return RawResult{Kind: KindSamples, Samples: samples}
}
