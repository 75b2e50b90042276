package executor

import (
	"fmt"
	"os"
	"strings"
)

const defaultTopology = `## Infrastructure Map
The managed estate is described by the codebase in the working directory:
- Ansible playbooks and roles in playbooks/
- Inventories in inventories/, host variables in host_vars/, group variables in group_vars/
- Operational documentation and runbooks in docs/

Resolve hosts, ports and container names from the inventories before running commands.`

// ContextDocument is the system context handed to the engine on every call.
type ContextDocument struct {
	Topology       string
	Environment    string
	AllowEditTools bool
}

// LoadTopology reads a topology document from path, falling back to the
// built-in description when path is empty.
func LoadTopology(path string) (string, error) {
	if path == "" {
		return defaultTopology, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return defaultTopology, fmt.Errorf("read context document: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return defaultTopology, nil
	}
	return string(data), nil
}

// Render produces the markdown document written to the context file.
func (d ContextDocument) Render() string {
	topology := d.Topology
	if topology == "" {
		topology = defaultTopology
	}
	edit := "DISABLED"
	if d.AllowEditTools {
		edit = "ENABLED"
	}

	var b strings.Builder
	b.WriteString("You are Oracle, the incident-response agent for this infrastructure.\n\n")
	b.WriteString(topology)
	b.WriteString("\n\n## Execution Rules\n")
	b.WriteString("1. Prefer direct diagnostic commands over broad codebase searches.\n")
	b.WriteString("2. Take host and port details from the infrastructure map instead of searching for them.\n")
	b.WriteString("3. You run non-interactively. Never ask questions; make reasonable assumptions.\n")
	b.WriteString("4. Keep responses concise and focused on actions taken and their results.\n")
	fmt.Fprintf(&b, "\n## Environment: %s\n- Edit Tools: %s\n", strings.ToUpper(d.Environment), edit)
	return b.String()
}

// writeContextFile stores doc in a temporary file. The returned cleanup
// removes it and is safe to call more than once.
func writeContextFile(doc string) (string, func(), error) {
	f, err := os.CreateTemp("", "oracle-context-*.md")
	if err != nil {
		return "", func() {}, fmt.Errorf("create context file: %w", err)
	}
	name := f.Name()
	cleanup := func() { _ = os.Remove(name) }

	if _, err := f.WriteString(doc); err != nil {
		f.Close()
		cleanup()
		return "", func() {}, fmt.Errorf("write context file: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", func() {}, fmt.Errorf("close context file: %w", err)
	}
	return name, cleanup, nil
}
