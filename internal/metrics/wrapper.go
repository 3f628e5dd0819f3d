package metrics

// Wrapper exposes the metrics as plain methods so that components depend on
// small interfaces instead of Prometheus types. A nil wrapper is valid and
// drops all observations, which keeps tests free of registry setup.
type Wrapper struct {
	m *Metrics
}

// NewWrapper wraps a Metrics set. m may be nil.
func NewWrapper(m *Metrics) *Wrapper {
	return &Wrapper{m: m}
}

func (w *Wrapper) ok() bool { return w != nil && w.m != nil }

func (w *Wrapper) AlertsIngestedInc() {
	if w.ok() {
		w.m.AlertsIngested.Inc()
	}
}

func (w *Wrapper) WSReconnectsInc() {
	if w.ok() {
		w.m.WSReconnects.Inc()
	}
}

func (w *Wrapper) PredictionsInc() {
	if w.ok() {
		w.m.Predictions.Inc()
	}
}

func (w *Wrapper) PredictionFailuresInc() {
	if w.ok() {
		w.m.PredictionFailures.Inc()
	}
}

func (w *Wrapper) PredictionUnavailableInc() {
	if w.ok() {
		w.m.PredictionUnavailable.Inc()
	}
}

func (w *Wrapper) PredictionScoresObserve(v float64) {
	if w.ok() {
		w.m.PredictionScores.Observe(v)
	}
}

func (w *Wrapper) PredictionLatencyObserve(v float64) {
	if w.ok() {
		w.m.PredictionLatency.Observe(v)
	}
}

func (w *Wrapper) ModelAgeSet(v float64) {
	if w.ok() {
		w.m.ModelAge.Set(v)
	}
}

func (w *Wrapper) TrainingRunsInc() {
	if w.ok() {
		w.m.TrainingRuns.Inc()
	}
}

func (w *Wrapper) TrainingFailuresInc() {
	if w.ok() {
		w.m.TrainingFailures.Inc()
	}
}

func (w *Wrapper) TrainingDurationObserve(v float64) {
	if w.ok() {
		w.m.TrainingDuration.Observe(v)
	}
}

func (w *Wrapper) PromotionsInc() {
	if w.ok() {
		w.m.Promotions.Inc()
	}
}

func (w *Wrapper) RollbacksInc() {
	if w.ok() {
		w.m.Rollbacks.Inc()
	}
}

func (w *Wrapper) AutoLabelsInc() {
	if w.ok() {
		w.m.AutoLabels.Inc()
	}
}

func (w *Wrapper) HumanLabelsInc() {
	if w.ok() {
		w.m.HumanLabels.Inc()
	}
}

func (w *Wrapper) ErrorsInc() {
	if w.ok() {
		w.m.ErrorsTotal.Inc()
	}
}
