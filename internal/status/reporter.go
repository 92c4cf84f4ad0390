package status

import (
	"fmt"
	"io"
	"sync"

	"github.com/robfig/cron/v3"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Reporter writes a one-line session summary to Out on a cron schedule.
type Reporter struct {
	sess Session
	out  io.Writer
	cron *cron.Cron

	mu      sync.Mutex
	running bool
}

// ReporterOpts holds parameters for creating a Reporter.
type ReporterOpts struct {
	Schedule string // 5-field cron expression or descriptor such as "@every 1m"
	Session  Session
	Out      io.Writer
}

// NewReporter validates opts and returns a stopped Reporter.
func NewReporter(opts ReporterOpts) (*Reporter, error) {
	if opts.Session == nil {
		return nil, fmt.Errorf("status: session is required")
	}
	if opts.Out == nil {
		return nil, fmt.Errorf("status: output writer is required")
	}
	sched, err := cronParser.Parse(opts.Schedule)
	if err != nil {
		return nil, fmt.Errorf("status: parse schedule %q: %w", opts.Schedule, err)
	}
	r := &Reporter{
		sess: opts.Session,
		out:  opts.Out,
		cron: cron.New(cron.WithParser(cronParser)),
	}
	r.cron.Schedule(sched, cron.FuncJob(r.Report))
	return r, nil
}

// Report writes one summary line immediately.
func (r *Reporter) Report() {
	fmt.Fprintln(r.out, Summary(r.sess))
}

// Summary formats the session's state and transcript length, e.g.
// "[connected] 12 messages".
func Summary(sess Session) string {
	n := sess.Transcript().Len()
	noun := "messages"
	if n == 1 {
		noun = "message"
	}
	return fmt.Sprintf("[%s] %d %s", sess.State(), n, noun)
}

// Start begins firing on the schedule. It is a no-op if already running.
func (r *Reporter) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	r.running = true
	r.cron.Start()
}

// Stop halts the schedule and waits for a running report to finish.
func (r *Reporter) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.mu.Unlock()
	<-r.cron.Stop().Done()
}
