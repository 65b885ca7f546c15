// Package automation hosts the reminder scheduler behind the assistant's
// scheduling tools. Tasks carry a cron expression and a message; when a
// task fires, the message is delivered into the visible conversation
// through the [host.Conversation] capability of the currently connected
// shell.
//
// The scheduler accepts standard five-field cron expressions plus the
// @hourly/@daily/@every descriptors. Tasks are recurring; a task fires
// until it is cancelled.
package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/chatit-cloud/neuroos/internal/observe"
	"github.com/chatit-cloud/neuroos/pkg/host"
)

// deliverTimeout bounds a single reminder delivery.
const deliverTimeout = 10 * time.Second

// Task is one scheduled reminder.
type Task struct {
	// ID is the scheduler-assigned identifier, e.g. "task-3".
	ID string

	// Name is a short human label. Defaults to the ID.
	Name string

	// Schedule is the cron expression the task was created with.
	Schedule string

	// Message is the reminder text delivered when the task fires.
	Message string

	// NextRun is the next time the task will fire.
	NextRun time.Time
}

type taskEntry struct {
	task  Task
	entry cron.EntryID
	sched cron.Schedule
}

// Scheduler runs reminder tasks on cron schedules. It is safe for
// concurrent use.
type Scheduler struct {
	mu     sync.Mutex
	cron   *cron.Cron
	tasks  map[string]*taskEntry
	order  []string
	nextID int
	conv   host.Conversation

	logger  *slog.Logger
	metrics *observe.Metrics

	stopOnce sync.Once
}

// Option configures a [Scheduler].
type Option func(*Scheduler)

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithMetrics sets the metrics sink for the scheduled-tasks gauge.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// New constructs a stopped scheduler. Call [Scheduler.Start] to begin
// firing tasks.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		tasks:  make(map[string]*taskEntry),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	cl := cronLogger{l: s.logger}
	s.cron = cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl)))
	return s
}

// Start begins firing tasks. Tasks may be added before or after Start.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for any in-flight delivery to finish.
// Safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		<-s.cron.Stop().Done()
	})
}

// Bind points reminder delivery at conv, replacing any previous binding.
// Passing nil detaches delivery, e.g. when the shell connection drops;
// tasks firing while detached are logged and skipped, not queued.
func (s *Scheduler) Bind(conv host.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conv = conv
}

// Add validates schedule, registers a new task, and returns it. The name
// may be empty, in which case it defaults to the assigned ID.
func (s *Scheduler) Add(name, schedule, message string) (Task, error) {
	if message == "" {
		return Task{}, errors.New("automation: a reminder message is required")
	}
	sched, err := cron.ParseStandard(schedule)
	if err != nil {
		return Task{}, fmt.Errorf("automation: invalid schedule %q: %w", schedule, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := fmt.Sprintf("task-%d", s.nextID)
	if name == "" {
		name = id
	}
	entryID := s.cron.Schedule(sched, cron.FuncJob(func() { s.fire(id) }))
	t := Task{
		ID:       id,
		Name:     name,
		Schedule: schedule,
		Message:  message,
		NextRun:  sched.Next(time.Now()),
	}
	s.tasks[id] = &taskEntry{task: t, entry: entryID, sched: sched}
	s.order = append(s.order, id)
	s.logger.Info("scheduled task", "task", id, "name", name, "schedule", schedule)
	s.gauge(1)
	return t, nil
}

// Remove cancels the task with the given ID.
func (s *Scheduler) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	te, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("automation: no scheduled task with ID %q", id)
	}
	s.cron.Remove(te.entry)
	delete(s.tasks, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.logger.Info("cancelled task", "task", id, "name", te.task.Name)
	s.gauge(-1)
	return nil
}

// Tasks returns every registered task in creation order, with NextRun
// freshly computed.
func (s *Scheduler) Tasks() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	out := make([]Task, 0, len(s.order))
	for _, id := range s.order {
		te := s.tasks[id]
		t := te.task
		t.NextRun = te.sched.Next(now)
		out = append(out, t)
	}
	return out
}

// fire delivers the reminder for id into the bound conversation.
func (s *Scheduler) fire(id string) {
	s.mu.Lock()
	te, ok := s.tasks[id]
	conv := s.conv
	s.mu.Unlock()
	if !ok {
		return
	}
	if conv == nil {
		s.logger.Warn("reminder fired with no shell connected", "task", id, "name", te.task.Name)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
	defer cancel()
	if err := conv.AppendMessage(ctx, "system", "Reminder: "+te.task.Message); err != nil {
		s.logger.Error("failed to deliver reminder", "task", id, "error", err)
		return
	}
	s.logger.Info("reminder delivered", "task", id, "name", te.task.Name)
}

// gauge moves the scheduled-tasks gauge by delta. Callers hold s.mu.
func (s *Scheduler) gauge(delta int64) {
	if s.metrics == nil {
		return
	}
	s.metrics.ScheduledTasks.Add(context.Background(), delta)
}

// cronLogger adapts slog to the cron logger interface. Scheduling chatter
// goes to debug; only job panics surface at error level.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}
