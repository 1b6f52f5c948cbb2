// Package cargo locates and invokes the cargo executable. Only its caching
// side effects on the Cargo home matter to the rest of this tool; the one
// extra nicety is turning clippy diagnostics into workflow annotations.
package cargo

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/rs/zerolog"
)

// Commander interface for testing
type Commander interface {
	Run() error
}

// Cargo runs cargo subcommands
type Cargo struct {
	path        string
	log         zerolog.Logger
	execCommand func(name string, args ...string) Commander
}

// FromEnvironment locates cargo on PATH
func FromEnvironment(log zerolog.Logger) (*Cargo, error) {
	path, err := exec.LookPath("cargo")
	if err != nil {
		return nil, fmt.Errorf("cargo not found on PATH: %w", err)
	}

	return &Cargo{
		path: path,
		log:  log,
		execCommand: func(name string, args ...string) Commander {
			return exec.Command(name, args...)
		},
	}, nil
}

// BuildArgs assembles the argument list for a subcommand. clippy gets JSON
// message output so diagnostics can be annotated.
func BuildArgs(subcommand string, args []string) []string {
	finalArgs := []string{subcommand}
	if subcommand == "clippy" {
		finalArgs = append(finalArgs, "--message-format=json")
	}

	return append(finalArgs, args...)
}

// Run executes a cargo subcommand, inheriting stdio. For clippy, stdout is
// consumed line by line and compiler messages are surfaced as annotations.
func (c *Cargo) Run(subcommand string, args []string) error {
	finalArgs := BuildArgs(subcommand, args)

	cmd := c.execCommand(c.path, finalArgs...)
	ec, ok := cmd.(*exec.Cmd)
	if ok {
		ec.Stderr = os.Stderr
		if subcommand == "clippy" {
			return c.runAnnotated(ec, subcommand)
		}
		ec.Stdout = os.Stdout
	}

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("cargo %s failed: %w", subcommand, err)
	}

	return nil
}

// runAnnotated drains the JSON message stream before waiting so no
// diagnostic is lost when the pipe closes.
func (c *Cargo) runAnnotated(ec *exec.Cmd, subcommand string) error {
	stdout, err := ec.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to capture cargo output: %w", err)
	}

	if err := ec.Start(); err != nil {
		return fmt.Errorf("cargo %s failed: %w", subcommand, err)
	}

	c.processMessages(stdout)

	if err := ec.Wait(); err != nil {
		return fmt.Errorf("cargo %s failed: %w", subcommand, err)
	}

	return nil
}

// message is one line of cargo's JSON message stream.
type message struct {
	Reason  string `json:"reason"`
	Message struct {
		Message string `json:"message"`
		Level   string `json:"level"`
		Spans   []struct {
			FileName  string `json:"file_name"`
			LineStart int    `json:"line_start"`
		} `json:"spans"`
	} `json:"message"`
}

func (c *Cargo) processMessages(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()

		var msg message
		if err := json.Unmarshal(line, &msg); err != nil {
			c.log.Debug().Err(err).Msg("Unable to parse cargo output line as JSON metadata record")
			continue
		}

		if msg.Reason != "compiler-message" || msg.Message.Message == "" {
			continue
		}

		annotate(os.Stdout, msg)
	}
}

// annotate emits one diagnostic as a workflow command so the Actions UI
// attaches it to the offending file.
func annotate(w io.Writer, msg message) {
	level := "warning"
	if msg.Message.Level == "error" {
		level = "error"
	}

	if len(msg.Message.Spans) > 0 {
		span := msg.Message.Spans[0]
		fmt.Fprintf(w, "::%s file=%s,line=%d::%s\n", level, span.FileName, span.LineStart, msg.Message.Message)
		return
	}

	fmt.Fprintf(w, "::%s::%s\n", level, msg.Message.Message)
}
