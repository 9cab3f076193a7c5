package jobsource

import (
	"context"
	"encoding/json"
	"io"
	stdlog "log"
	"strings"

	"github.com/hpcloud/tail"
	"github.com/sirupsen/logrus"

	"github.com/grovetools/rulesync/logging"
	"github.com/grovetools/rulesync/pkg/models"
)

// Log follows an NDJSON file with one JobEvent per line. The whole file is
// replayed on start so folding rebuilds the current job states.
type Log struct {
	path string
	log  *logrus.Entry
}

// NewLog creates a source following path.
func NewLog(path string) *Log {
	return &Log{path: path, log: logging.NewLogger("jobsource.log")}
}

// Run tails the file until ctx ends.
func (l *Log) Run(ctx context.Context, publish func(models.JobEvent)) error {
	t, err := tail.TailFile(l.path, tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: false,
		Location:  &tail.SeekInfo{Offset: 0, Whence: io.SeekStart},
		Logger:    stdlog.New(io.Discard, "", 0),
	})
	if err != nil {
		return err
	}
	defer t.Cleanup()
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-t.Lines:
			if !ok {
				return t.Err()
			}
			if line.Err != nil {
				l.log.WithError(line.Err).Warn("Job log read failed")
				continue
			}
			if ev, ok := ParseLine(line.Text); ok {
				publish(ev)
			} else if strings.TrimSpace(line.Text) != "" {
				l.log.WithField("line", line.Text).Debug("Skipping malformed job line")
			}
		}
	}
}

// Close is a no-op; Run releases the file when its context ends.
func (l *Log) Close() error {
	return nil
}

// ParseLine decodes one NDJSON job line. Lines without a job id are rejected.
func ParseLine(text string) (models.JobEvent, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.JobEvent{}, false
	}
	var ev models.JobEvent
	if err := json.Unmarshal([]byte(text), &ev); err != nil || ev.JobID == "" {
		return models.JobEvent{}, false
	}
	return ev, true
}
