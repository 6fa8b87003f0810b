// Package logs provides a common logging facility for crater applications.
// It supports output to stdout or systemd journald based on configuration.
package logs

import (
	"io"
	"os"
	"os/exec"

	"github.com/charmbracelet/log"
)

// LogOutput defines the output destination for logs
type LogOutput string

const (
	// OutputStdout sends logs to standard output
	OutputStdout LogOutput = "stdout"
	// OutputStderr sends logs to standard error, keeping stdout free for
	// protocol output
	OutputStderr LogOutput = "stderr"
	// OutputJournald sends logs to systemd journald
	OutputJournald LogOutput = "journald"
	// OutputAuto automatically selects journald if available, otherwise stdout
	OutputAuto LogOutput = "auto"
)

// Logger wraps the charm log.Logger with additional configuration
type Logger struct {
	*log.Logger
	output LogOutput
}

// Config holds the configuration for the logger
type Config struct {
	// Output specifies where logs should be sent (stdout, journald, auto)
	Output LogOutput
	// Level sets the minimum log level (debug, info, warn, error)
	Level string
	// Prefix sets a prefix for all log messages
	Prefix string
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	return Config{
		Output: OutputAuto,
		Level:  "info",
	}
}

// journaldAvailable reports whether both the systemd-cat binary and the
// journald socket are present
func journaldAvailable() bool {
	_, pathErr := exec.LookPath("systemd-cat")
	_, sockErr := os.Stat("/run/systemd/journal/socket")
	return pathErr == nil && sockErr == nil
}

// parseLevel converts a string level to log.Level, defaulting to info
func parseLevel(level string) log.Level {
	parsed, err := log.ParseLevel(level)
	if err != nil {
		return log.InfoLevel
	}
	return parsed
}

// selectWriter resolves the configured destination to a concrete writer.
// Auto and journald both fall back to stdout when journald is unreachable.
func selectWriter(requested LogOutput) (io.Writer, LogOutput) {
	switch requested {
	case OutputStderr:
		return os.Stderr, OutputStderr
	case OutputJournald, OutputAuto:
		if journaldAvailable() {
			return newJournaldWriter(), OutputJournald
		}
	}
	return os.Stdout, OutputStdout
}

// New creates a new Logger with the given configuration
func New(cfg Config) *Logger {
	writer, output := selectWriter(cfg.Output)
	return &Logger{
		Logger: log.NewWithOptions(writer, log.Options{
			Level:           parseLevel(cfg.Level),
			Prefix:          cfg.Prefix,
			ReportTimestamp: true,
		}),
		output: output,
	}
}

// NewDefault creates a new Logger with default configuration
func NewDefault() *Logger {
	return New(DefaultConfig())
}

// Output returns the current output destination
func (l *Logger) Output() LogOutput {
	return l.output
}

// journaldWriter implements io.Writer for journald
type journaldWriter struct {
	identifier string
}

func newJournaldWriter() *journaldWriter {
	return &journaldWriter{identifier: "crater"}
}

// Write sends a message to journald via systemd-cat, falling back to
// stdout when the pipe cannot be established.
func (w *journaldWriter) Write(p []byte) (n int, err error) {
	cmd := exec.Command("systemd-cat", "-t", w.identifier)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return os.Stdout.Write(p)
	}

	if err := cmd.Start(); err != nil {
		return os.Stdout.Write(p)
	}

	n, err = stdin.Write(p)
	stdin.Close()
	_ = cmd.Wait()

	return n, err
}
