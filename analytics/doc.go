// Package analytics mines the message bus history for frequency, pattern,
// and performance signals.
//
// # Overview
//
// An Analyzer is a pure read-side over a MessageSource (satisfied by
// *bus.Bus). Every report is computed from the deep-copied snapshot that
// SearchMessages returns, so analysis never mutates or holds live bus
// state.
//
//	a := analytics.New(b)
//
//	freq := a.FrequencyAnalysis(time.Hour)
//	patterns := a.DetectPatterns(time.Hour)
//	fmt.Println(a.GenerateReport(24 * time.Hour))
//
// All reports accept a look-back window; a zero window means the entire
// retained history. An empty window yields zero-valued reports with empty
// maps, never an error.
//
// # Pattern detection
//
// DetectPatterns flags four signal kinds, each bounded by a configurable
// threshold (see Thresholds):
//
//   - repeated errors: the same error-named type from the same sender at
//     least RepeatedErrorMin times
//   - bursts: more than BurstMin-1 messages inside one BurstWindow bucket
//   - slow responses: request/response pairs slower than SlowResponse
//   - common sequences: length-SequenceLength type runs occurring at
//     least SequenceMin times
//
// # Periodic reporting
//
// A Reporter runs GenerateReport on an interval and writes the result to
// an io.Writer, logging a one-line summary per run:
//
//	r := analytics.NewReporter(a, analytics.ReporterConfig{
//	    Interval: time.Hour,
//	    Out:      os.Stdout,
//	})
//	if err := r.Start(); err != nil { ... }
//	defer r.Stop()
package analytics
