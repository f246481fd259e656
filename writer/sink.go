package writer

import (
	"errors"

	"mboflow/models"
	"mboflow/processor"
)

// teeSink copies every record to each of its sinks.
type teeSink struct {
	sinks []processor.MbpSink
}

func (t *teeSink) WriteRecord(rec models.MbpRecord) error {
	for _, s := range t.sinks {
		if err := s.WriteRecord(rec); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every sink and joins their errors.
func (t *teeSink) Close() error {
	var errs []error
	for _, s := range t.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// TeeOpener opens one sink per opener and fans records out to all of them.
// Nil openers are skipped.
func TeeOpener(openers ...processor.SinkOpener) processor.SinkOpener {
	var active []processor.SinkOpener
	for _, o := range openers {
		if o != nil {
			active = append(active, o)
		}
	}
	if len(active) == 1 {
		return active[0]
	}
	return func(source, implementation string) (processor.MbpSink, error) {
		tee := &teeSink{}
		for _, open := range active {
			s, err := open(source, implementation)
			if err != nil {
				tee.Close()
				return nil, err
			}
			tee.sinks = append(tee.sinks, s)
		}
		return tee, nil
	}
}

type runTee []processor.RunSink

func (t runTee) WriteRun(run models.LatencyRun) error {
	for _, s := range t {
		if err := s.WriteRun(run); err != nil {
			return err
		}
	}
	return nil
}

// TeeRuns hands every latency run to each non-nil sink.
func TeeRuns(sinks ...processor.RunSink) processor.RunSink {
	var t runTee
	for _, s := range sinks {
		if s != nil {
			t = append(t, s)
		}
	}
	return t
}
