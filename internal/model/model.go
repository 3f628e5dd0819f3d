// Package model implements the learning algorithm behind the alert
// classifier. The trainer depends only on the Algorithm and Classifier
// interfaces, so the concrete model can be swapped without touching the
// training orchestration.
package model

import (
	"fmt"
	"math"
	"math/rand"

	"alertguard/internal/features"
)

// Sample is one labeled training example. Positive means malicious.
type Sample struct {
	Features features.Vector
	Positive bool
}

// Classifier produces a positive-class probability for a feature vector.
type Classifier interface {
	PredictProba(v features.Vector) (float64, error)
}

// Algorithm fits a Classifier from labeled samples. Fitting must be
// deterministic given the seed.
type Algorithm interface {
	Fit(samples []Sample, seed int64) (Classifier, error)
}

const (
	// artifactFormat is bumped whenever the serialized layout changes.
	artifactFormat = 1

	epochs       = 300
	learningRate = 0.1
	l2Penalty    = 1e-4
)

// LogisticRegression is the default Algorithm: one-hot encoded categoricals,
// standardized numerics, and a logistic model trained by seeded gradient
// descent. It mirrors the preprocessing the original training corpus was
// built with, including the unknown-category-encodes-to-zero behavior.
type LogisticRegression struct{}

// Model is a fitted classifier plus everything needed to encode a vector the
// same way at inference time.
type Model struct {
	Format  int              `json:"format"`
	Fields  []fieldSpec      `json:"fields"`
	Vocab   []map[string]int `json:"vocab"`
	Mean    []float64        `json:"mean"`
	Std     []float64        `json:"std"`
	Weights []float64        `json:"weights"`
	Bias    float64          `json:"bias"`
	Seed    int64            `json:"seed"`
}

type fieldSpec struct {
	Name        string `json:"name"`
	Categorical bool   `json:"categorical"`
}

// Fit builds the encoder from the samples and trains the logistic model.
func (LogisticRegression) Fit(samples []Sample, seed int64) (Classifier, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("no samples to fit")
	}

	m := &Model{
		Format: artifactFormat,
		Seed:   seed,
	}
	for _, f := range features.Schema {
		m.Fields = append(m.Fields, fieldSpec{Name: f.Name, Categorical: f.Kind == features.Categorical})
	}

	m.buildEncoder(samples)

	dim := m.encodedDim()
	m.Weights = make([]float64, dim)

	rows := make([][]float64, len(samples))
	targets := make([]float64, len(samples))
	for i, s := range samples {
		row, err := m.encode(s.Features)
		if err != nil {
			return nil, fmt.Errorf("encode sample %d: %w", i, err)
		}
		rows[i] = row
		if s.Positive {
			targets[i] = 1
		}
	}

	rng := rand.New(rand.NewSource(seed))
	order := make([]int, len(rows))
	for i := range order {
		order[i] = i
	}

	n := float64(len(rows))
	for epoch := 0; epoch < epochs; epoch++ {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		for _, idx := range order {
			row := rows[idx]
			p := sigmoid(dot(m.Weights, row) + m.Bias)
			grad := p - targets[idx]
			for j, x := range row {
				m.Weights[j] -= learningRate * (grad*x + l2Penalty*m.Weights[j]/n)
			}
			m.Bias -= learningRate * grad
		}
	}

	return m, nil
}

// PredictProba returns the probability that the vector is malicious.
func (m *Model) PredictProba(v features.Vector) (float64, error) {
	row, err := m.encode(v)
	if err != nil {
		return 0, err
	}
	p := sigmoid(dot(m.Weights, row) + m.Bias)
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return 0, fmt.Errorf("non-finite probability")
	}
	return p, nil
}

// Validate checks a deserialized model against the live schema. A mismatch
// means the artifact was trained against a different field set and must not
// be served.
func (m *Model) Validate() error {
	if m.Format != artifactFormat {
		return fmt.Errorf("unsupported artifact format %d", m.Format)
	}
	if len(m.Fields) != len(features.Schema) {
		return fmt.Errorf("artifact has %d fields, schema has %d", len(m.Fields), len(features.Schema))
	}
	for i, f := range features.Schema {
		spec := m.Fields[i]
		if spec.Name != f.Name || spec.Categorical != (f.Kind == features.Categorical) {
			return fmt.Errorf("field %d mismatch: artifact %q, schema %q", i, spec.Name, f.Name)
		}
	}
	if len(m.Vocab) != len(m.Fields) || len(m.Mean) != len(m.Fields) || len(m.Std) != len(m.Fields) {
		return fmt.Errorf("encoder tables do not match field count")
	}
	if len(m.Weights) != m.encodedDim() {
		return fmt.Errorf("weight vector has %d entries, encoder produces %d", len(m.Weights), m.encodedDim())
	}
	for _, w := range m.Weights {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("non-finite weight in artifact")
		}
	}
	return nil
}

// buildEncoder learns vocabularies for categoricals and mean/std for
// numerics from the training samples.
func (m *Model) buildEncoder(samples []Sample) {
	nf := len(m.Fields)
	m.Vocab = make([]map[string]int, nf)
	m.Mean = make([]float64, nf)
	m.Std = make([]float64, nf)

	for i, f := range m.Fields {
		if f.Categorical {
			vocab := make(map[string]int)
			for _, s := range samples {
				val := s.Features.Cat[i]
				if _, ok := vocab[val]; !ok {
					vocab[val] = len(vocab)
				}
			}
			m.Vocab[i] = vocab
			m.Std[i] = 1
			continue
		}

		m.Vocab[i] = map[string]int{}
		var sum, sumSq float64
		for _, s := range samples {
			x := s.Features.Num[i]
			sum += x
			sumSq += x * x
		}
		n := float64(len(samples))
		mean := sum / n
		variance := sumSq/n - mean*mean
		std := 0.0
		if variance > 0 {
			std = math.Sqrt(variance)
		}
		if std == 0 {
			std = 1 // constant column, avoid division by zero
		}
		m.Mean[i] = mean
		m.Std[i] = std
	}
}

func (m *Model) encodedDim() int {
	dim := 0
	for i, f := range m.Fields {
		if f.Categorical {
			dim += len(m.Vocab[i])
		} else {
			dim++
		}
	}
	return dim
}

// encode produces the dense row for one vector. Categorical values absent
// from the training vocabulary contribute nothing, so inference never fails
// on unseen values.
func (m *Model) encode(v features.Vector) ([]float64, error) {
	if len(v.Cat) != len(m.Fields) || len(v.Num) != len(m.Fields) {
		return nil, fmt.Errorf("vector has %d/%d slots, expected %d", len(v.Cat), len(v.Num), len(m.Fields))
	}

	row := make([]float64, m.encodedDim())
	offset := 0
	for i, f := range m.Fields {
		if f.Categorical {
			if idx, ok := m.Vocab[i][v.Cat[i]]; ok {
				row[offset+idx] = 1
			}
			offset += len(m.Vocab[i])
			continue
		}
		row[offset] = (v.Num[i] - m.Mean[i]) / m.Std[i]
		offset++
	}
	return row, nil
}

func dot(w, x []float64) float64 {
	var s float64
	for i := range w {
		s += w[i] * x[i]
	}
	return s
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}
