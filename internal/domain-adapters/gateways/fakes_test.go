package gateways

import (
	"context"
	"errors"
	"os"
	"sync"

	"github.com/ochairo/prgate/internal/domain/entities"
	"github.com/ochairo/prgate/internal/domain/interfaces/gateways"
)

// fakeRunner records commands and answers them through handle
type fakeRunner struct {
	mu       sync.Mutex
	commands []gateways.Command
	missing  map[string]bool
	handle   func(cmd gateways.Command) *gateways.CommandResult
}

func (f *fakeRunner) Run(_ context.Context, cmd gateways.Command) *gateways.CommandResult {
	f.mu.Lock()
	f.commands = append(f.commands, cmd)
	f.mu.Unlock()

	if f.handle == nil {
		return &gateways.CommandResult{}
	}
	return f.handle(cmd)
}

func (f *fakeRunner) LookPath(name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.missing[name] {
		return "", gateways.ErrToolUnavailable
	}
	return "/usr/local/bin/" + name, nil
}

func (f *fakeRunner) lastCommand() gateways.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.commands) == 0 {
		return gateways.Command{}
	}
	return f.commands[len(f.commands)-1]
}

// argAfter returns the argument following flag, or ""
func argAfter(args []string, flag string) string {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func writeOutput(path, content string) {
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		panic(err)
	}
}

// fakeProvisioner marks tools as installed on the fake runner
type fakeProvisioner struct {
	runner  *fakeRunner
	fail    bool
	ensured []entities.ToolName
}

func (p *fakeProvisioner) Ensure(_ context.Context, tool entities.ToolName, _ string) error {
	p.ensured = append(p.ensured, tool)
	if p.fail {
		return errors.New("download failed")
	}
	p.runner.mu.Lock()
	defer p.runner.mu.Unlock()
	for name := range p.runner.missing {
		delete(p.runner.missing, name)
	}
	return nil
}
