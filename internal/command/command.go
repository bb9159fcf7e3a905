// Package command implements the operator-facing named-pipe
// command/response channel: open the command FIFO (blocks until an
// operator opens it for writing), read one line, close it, dispatch to
// a registered handler, write the response line to the response FIFO,
// close it, and loop.
//
// Handler shape is grounded on the original's per-verb command table
// (subcommands/cmd_burnwire.c's CommandDescription.parse returning a
// status and writing straight to the response pipe); here a Handler
// returns the response line directly instead of writing to a package
// global, since Go has no equivalent of the original's g_rsp_pipe.
package command

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

// Handler processes one command's arguments (the verb's trailing
// tokens) and returns the line to write back to the operator.
type Handler func(args []string) (string, error)

// Registry maps a verb's first token to a Handler. Multi-word verbs
// ("mission pause") are registered under their full space-joined form.
type Registry map[string]Handler

// Channel owns the two named pipes and the handler registry.
type Channel struct {
	commandPath  string
	responsePath string
	registry     Registry
	logger       *slog.Logger
}

// New creates the command/response FIFOs if they don't already exist
// (mode 0644, matching the operator-facing contract) and returns a
// Channel ready to Serve.
func New(commandPath, responsePath string, registry Registry, logger *slog.Logger) (*Channel, error) {
	if logger == nil {
		logger = slog.Default()
	}
	for _, path := range []string{commandPath, responsePath} {
		if err := unix.Mkfifo(path, 0o644); err != nil && !os.IsExist(err) {
			return nil, fmt.Errorf("command: mkfifo %s: %w", path, err)
		}
	}
	return &Channel{commandPath: commandPath, responsePath: responsePath, registry: registry, logger: logger}, nil
}

// quitSignal is the type behind Quit, which a handler returns to signal
// that the Serve loop stops after delivering the response.
type quitSignal struct{}

func (quitSignal) Error() string { return "quit requested" }

// Quit is the sentinel error a "quit" handler returns.
var Quit error = quitSignal{}

// Serve runs one open/read/dispatch/write/close cycle per loop
// iteration until a handler returns Quit or stop is closed.
func (c *Channel) Serve(stop <-chan struct{}) error {
	for {
		select {
		case <-stop:
			return nil
		default:
		}

		line, err := c.readCommand()
		if err != nil {
			c.logger.Error("command: failed to read command line", "error", err.Error())
			continue
		}
		if line == "" {
			continue
		}

		response, err := c.dispatch(line)
		if writeErr := c.writeResponse(response); writeErr != nil {
			c.logger.Error("command: failed to write response", "error", writeErr.Error())
		}
		if err == Quit {
			return nil
		}
	}
}

func (c *Channel) readCommand() (string, error) {
	f, err := os.OpenFile(c.commandPath, os.O_RDONLY, 0)
	if err != nil {
		return "", fmt.Errorf("open command pipe: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return "", scanner.Err()
	}
	return strings.TrimSpace(scanner.Text()), nil
}

func (c *Channel) writeResponse(line string) error {
	f, err := os.OpenFile(c.responsePath, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("open response pipe: %w", err)
	}
	defer f.Close()
	_, err = fmt.Fprintln(f, line)
	return err
}

// dispatch tokenizes line and resolves the longest registered verb
// prefix (so "mission pause" matches before falling back to "mission").
func (c *Channel) dispatch(line string) (string, error) {
	tokens := strings.Fields(line)
	if len(tokens) == 0 {
		return "error: empty command", nil
	}

	if len(tokens) >= 2 {
		twoWord := tokens[0] + " " + tokens[1]
		if h, ok := c.registry[twoWord]; ok {
			resp, err := h(tokens[2:])
			return responseOrError(resp, err), err
		}
	}

	h, ok := c.registry[tokens[0]]
	if !ok {
		return fmt.Sprintf("error: unknown command %q", tokens[0]), nil
	}
	resp, err := h(tokens[1:])
	return responseOrError(resp, err), err
}

func responseOrError(resp string, err error) string {
	if err != nil && err != Quit {
		return "error: " + err.Error()
	}
	return resp
}
