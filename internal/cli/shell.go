package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"dreamflow/internal/models"
)

const Prompt = "> "

const helpText = `Commands:
  add <title> [| description]           create a task
  list                                  show all tasks
  update <id> [title] [| description]   change a task
  delete <id>                           remove a task
  complete <id>                         toggle a task's completion
  help                                  show this help
  exit                                  quit`

// Tasks is the task API the shell drives.
type Tasks interface {
	CreateTask(ctx context.Context, owner uint, in models.NewTask) (models.Task, error)
	ListTasks(ctx context.Context, owner uint, filter models.TaskFilter) ([]models.Task, error)
	UpdateTask(ctx context.Context, owner, id uint, patch models.TaskPatch) (models.Task, error)
	DeleteTask(ctx context.Context, owner, id uint) (models.Task, error)
	ToggleComplete(ctx context.Context, owner, id uint) (models.Task, error)
}

// Shell reads one command per line and writes plain text replies.
type Shell struct {
	tasks Tasks
	owner uint
	out   io.Writer
	log   *zap.Logger
}

func NewShell(tasks Tasks, owner uint, out io.Writer, log *zap.Logger) *Shell {
	if log == nil {
		log = zap.NewNop()
	}
	return &Shell{tasks: tasks, owner: owner, out: out, log: log}
}

// Run processes commands from in until exit, end of input or ctx is done.
func (s *Shell) Run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	s.println("Todo shell. Type 'help' for commands.")
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		fmt.Fprint(s.out, Prompt)
		if !scanner.Scan() {
			s.println("")
			return scanner.Err()
		}
		if !s.Execute(ctx, scanner.Text()) {
			return nil
		}
	}
}

// Execute runs a single command line. It returns false once the user asks to exit.
func (s *Shell) Execute(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return true
	}
	cmd, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(cmd) {
	case "add":
		s.add(ctx, rest)
	case "list":
		s.list(ctx)
	case "update":
		s.update(ctx, rest)
	case "delete":
		s.delete(ctx, rest)
	case "complete":
		s.complete(ctx, rest)
	case "help":
		s.println(helpText)
	case "exit", "quit":
		s.println("Goodbye!")
		return false
	default:
		s.println(fmt.Sprintf("Unknown command %q. Type 'help' for commands.", cmd))
	}
	return true
}

func (s *Shell) add(ctx context.Context, args string) {
	title, description := splitText(args)
	in := models.NewTask{}
	if title != nil {
		in.Title = *title
	}
	if description != nil {
		in.Description = *description
	}
	task, err := s.tasks.CreateTask(ctx, s.owner, in)
	if err != nil {
		s.fail("add", 0, err)
		return
	}
	s.println(fmt.Sprintf("Added task %d: %s", task.ID, task.Title))
}

func (s *Shell) list(ctx context.Context) {
	tasks, err := s.tasks.ListTasks(ctx, s.owner, models.TaskFilter{Status: models.TaskStatusAll})
	if err != nil {
		s.fail("list", 0, err)
		return
	}
	if len(tasks) == 0 {
		s.println("No tasks.")
		return
	}
	for _, t := range tasks {
		s.println(formatTask(t))
	}
}

func (s *Shell) update(ctx context.Context, args string) {
	idArg, rest, _ := strings.Cut(args, " ")
	id, ok := s.parseID(idArg)
	if !ok {
		return
	}
	title, description := splitText(rest)
	task, err := s.tasks.UpdateTask(ctx, s.owner, id, models.TaskPatch{Title: title, Description: description})
	if err != nil {
		s.fail("update", id, err)
		return
	}
	s.println(fmt.Sprintf("Updated task %d: %s", task.ID, task.Title))
}

func (s *Shell) delete(ctx context.Context, args string) {
	id, ok := s.parseID(args)
	if !ok {
		return
	}
	task, err := s.tasks.DeleteTask(ctx, s.owner, id)
	if err != nil {
		s.fail("delete", id, err)
		return
	}
	s.println(fmt.Sprintf("Deleted task %d: %s", task.ID, task.Title))
}

func (s *Shell) complete(ctx context.Context, args string) {
	id, ok := s.parseID(args)
	if !ok {
		return
	}
	task, err := s.tasks.ToggleComplete(ctx, s.owner, id)
	if err != nil {
		s.fail("complete", id, err)
		return
	}
	state := "incomplete"
	if task.Completed {
		state = "complete"
	}
	s.println(fmt.Sprintf("Task %d marked as %s", task.ID, state))
}

func (s *Shell) parseID(arg string) (uint, bool) {
	n, err := strconv.ParseUint(strings.TrimSpace(arg), 10, 32)
	if err != nil || n == 0 {
		s.println("Error: task id must be a positive integer")
		return 0, false
	}
	return uint(n), true
}

func (s *Shell) fail(command string, id uint, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		s.println(fmt.Sprintf("Error: task %d not found", id))
	case models.IsValidationError(err):
		s.println("Error: " + err.Error())
	default:
		s.log.Error("command failed", zap.String("command", command), zap.Error(err))
		s.println("Error: " + err.Error())
	}
}

func (s *Shell) println(line string) {
	fmt.Fprintln(s.out, line)
}

// splitText parses "[title] [| description]". A missing side comes back nil.
func splitText(args string) (title, description *string) {
	left, right, found := strings.Cut(args, "|")
	if t := strings.TrimSpace(left); t != "" {
		title = &t
	}
	if found {
		d := strings.TrimSpace(right)
		description = &d
	}
	return title, description
}

func formatTask(t models.Task) string {
	mark := "☐"
	if t.Completed {
		mark = "✅"
	}
	line := fmt.Sprintf("[%d] %s %s", t.ID, mark, t.Title)
	if t.Description != "" {
		line += " - " + t.Description
	}
	return line
}
