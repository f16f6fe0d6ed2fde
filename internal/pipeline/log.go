package pipeline

import (
	"bgageek-backend/internal/telemetry"
)

// Severity is the level of a pipeline log line.
type Severity string

const (
	SEVERITY_INFO    Severity = "info"
	SEVERITY_SUCCESS Severity = "success"
	SEVERITY_WARN    Severity = "warn"
	SEVERITY_ERROR   Severity = "error"
)

// LogSink receives the human readable progress of the pipeline.
type LogSink interface {
	Log(message string, severity Severity)
}

type LogSinkFunc func(message string, severity Severity)

func (f LogSinkFunc) Log(message string, severity Severity) {
	f(message, severity)
}

type multiLogSink []LogSink

func (m multiLogSink) Log(message string, severity Severity) {
	for _, sink := range m {
		sink.Log(message, severity)
	}
}

// LogSinks fans every line out to each of sinks.
func LogSinks(sinks ...LogSink) LogSink {
	return multiLogSink(sinks)
}

const report_pipeline_log = "pipeline.log"

// TelemetryLogSink forwards pipeline logs to telemetry, errors become
// warnings and everything else is debug output.
type TelemetryLogSink struct {
	tel telemetry.API
}

func NewTelemetryLogSink(tel telemetry.API) TelemetryLogSink {
	return TelemetryLogSink{tel: tel}
}

func (s TelemetryLogSink) Log(message string, severity Severity) {
	if severity == SEVERITY_ERROR {
		s.tel.ReportWarning(report_pipeline_log, message)
		return
	}
	s.tel.ReportDebug(message, string(severity))
}
