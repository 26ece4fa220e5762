package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/sahilm/fuzzy"
)

const (
	readWindowLines  = 200
	listEntryLimit   = 100
	searchMatchLimit = 50
	grepMatchLimit   = 20
	grepLineLimit    = 120
	stdoutLimit      = 1500
	stderrLimit      = 800
	defaultTimeout   = 60 * time.Second
)

// commandDenylist blocks obviously destructive commands before the
// approval gate is even consulted.
var commandDenylist = []string{"rm -rf /", "mkfs", "dd if=", ":(){ ", "fork bomb"}

// grepSkipDirs are dependency and VCS directories grep_search never
// descends into. Hidden entries are skipped separately.
var grepSkipDirs = map[string]bool{
	"node_modules": true,
	"__pycache__":  true,
	".git":         true,
	"venv":         true,
	".venv":        true,
}

// Executor runs tool calls scoped to a single workspace root. Expected
// failures (missing files, ambiguous edits, denied approvals) are reported
// as result text, never as Go errors; Execute never fails its caller.
type Executor struct {
	root       string
	approver   Approver
	cmdTimeout time.Duration
}

// NewExecutor resolves the workspace root (absolute, symlinks followed)
// once; every later path check is against this resolved prefix.
func NewExecutor(workspaceDir string) (*Executor, error) {
	abs, err := filepath.Abs(workspaceDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("workspace does not exist: %w", err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return nil, fmt.Errorf("workspace does not exist: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace is not a directory: %s", resolved)
	}

	return &Executor{
		root:       resolved,
		cmdTimeout: defaultTimeout,
	}, nil
}

// SetApprover sets the approval gate. A nil approver auto-approves.
func (e *Executor) SetApprover(a Approver) {
	e.approver = a
}

// SetCommandTimeout overrides the run_command timeout.
func (e *Executor) SetCommandTimeout(d time.Duration) {
	e.cmdTimeout = d
}

func (e *Executor) Root() string {
	return e.root
}

func (e *Executor) approve(toolName, description string) bool {
	if !approvalRequired(toolName) || e.approver == nil {
		return true
	}
	return e.approver.Approve(toolName, description)
}

// resolvePath resolves a path parameter against the workspace root and
// rejects anything that lands outside it. The path is never rewritten to
// fit; escapes fail loudly so the model can correct itself.
func (e *Executor) resolvePath(pathStr string) (string, error) {
	p := pathStr
	if !filepath.IsAbs(p) {
		p = filepath.Join(e.root, p)
	}
	p = filepath.Clean(p)

	// Follow symlinks on the deepest existing ancestor, then re-join the
	// not-yet-existing suffix, so a link buried in an uncreated subpath
	// cannot smuggle a path through the prefix check. Dangling links are
	// followed by hand: writes go through them even though EvalSymlinks
	// refuses to resolve them.
	resolved := p
	var suffix []string
	links := 0
	for {
		if r, evalErr := filepath.EvalSymlinks(resolved); evalErr == nil {
			resolved = r
			break
		}
		if fi, lstatErr := os.Lstat(resolved); lstatErr == nil && fi.Mode()&os.ModeSymlink != 0 {
			links++
			if links > 40 {
				// Symlink loop.
				return "", fmt.Errorf(
					"%s Security error: cannot access path outside workspace.\n  Requested: %s\n  Workspace: %s",
					FailureMarker, pathStr, e.root,
				)
			}
			if target, readErr := os.Readlink(resolved); readErr == nil {
				if !filepath.IsAbs(target) {
					target = filepath.Join(filepath.Dir(resolved), target)
				}
				resolved = filepath.Clean(target)
				continue
			}
		}
		parent := filepath.Dir(resolved)
		if parent == resolved {
			break
		}
		suffix = append([]string{filepath.Base(resolved)}, suffix...)
		resolved = parent
	}
	p = filepath.Join(append([]string{resolved}, suffix...)...)

	if p != e.root && !strings.HasPrefix(p, e.root+string(filepath.Separator)) {
		return "", fmt.Errorf(
			"%s Security error: cannot access path outside workspace.\n  Requested: %s\n  Workspace: %s",
			FailureMarker, pathStr, e.root,
		)
	}
	return p, nil
}

// Execute runs one tool call and returns its outcome as result text.
func (e *Executor) Execute(ctx context.Context, call ToolCall) string {
	switch call.Name {
	case ToolReadFile:
		return e.readFile(call.Params)
	case ToolWriteFile:
		return e.writeFile(call.Params)
	case ToolEditFile:
		return e.editFile(call.Params)
	case ToolListDirectory:
		return e.listDirectory(call.Params)
	case ToolSearchFiles:
		return e.searchFiles(call.Params)
	case ToolGrepSearch:
		return e.grepSearch(call.Params)
	case ToolRunCommand:
		return e.runCommand(ctx, call.Params)
	default:
		return fmt.Sprintf("%s Unknown tool: %s", FailureMarker, call.Name)
	}
}

func isBinary(data []byte) bool {
	checkLen := len(data)
	if checkLen > 512 {
		checkLen = 512
	}
	return bytes.IndexByte(data[:checkLen], 0) != -1
}

func (e *Executor) readFile(params map[string]any) string {
	path, err := e.resolvePath(getString(params, "path"))
	if err != nil {
		return err.Error()
	}

	info, statErr := os.Stat(path)
	if statErr != nil {
		return fmt.Sprintf("%s File not found: %s", FailureMarker, path)
	}
	if info.IsDir() {
		return fmt.Sprintf("%s Not a file: %s", FailureMarker, path)
	}

	data, readErr := os.ReadFile(path)
	if readErr != nil {
		return fmt.Sprintf("%s Tool error (%s): %v", FailureMarker, ToolReadFile, readErr)
	}
	if isBinary(data) {
		return fmt.Sprintf("%s Cannot read binary file: %s", FailureMarker, path)
	}

	lines := strings.Split(string(data), "\n")
	lineCount := len(lines)

	start := getInt(params, "start_line", 1)
	if start < 1 {
		start = 1
	}
	end := getInt(params, "end_line", start-1+readWindowLines)
	if end > lineCount {
		end = lineCount
	}
	if start > end {
		start = end
	}

	var numbered strings.Builder
	for i := start; i <= end; i++ {
		if i > start {
			numbered.WriteByte('\n')
		}
		fmt.Fprintf(&numbered, "%4d | %s", i, lines[i-1])
	}

	name := filepath.Base(path)
	if lineCount > end {
		return fmt.Sprintf("📄 **%s** (%d lines, showing L%d-%d)\n```\n%s\n```\n... (%d more lines)",
			name, lineCount, start, end, numbered.String(), lineCount-end)
	}
	return fmt.Sprintf("📄 **%s** (%d lines)\n```\n%s\n```", name, lineCount, numbered.String())
}

func (e *Executor) writeFile(params map[string]any) string {
	path, err := e.resolvePath(getString(params, "path"))
	if err != nil {
		return err.Error()
	}
	content := getString(params, "content")

	action := "create"
	lineCount := strings.Count(content, "\n") + 1
	description := fmt.Sprintf("📝 File %s: %s (%d lines)", action, filepath.Base(path), lineCount)

	if old, readErr := os.ReadFile(path); readErr == nil {
		action = "modify"
		description = fmt.Sprintf("📝 File %s: %s (%d lines)\n%s",
			action, filepath.Base(path), lineCount, generateDiff(string(old), content, filepath.Base(path)))
	}

	if !e.approve(ToolWriteFile, description) {
		return SkipMarker + " User rejected file write."
	}

	if mkErr := os.MkdirAll(filepath.Dir(path), 0755); mkErr != nil {
		return fmt.Sprintf("%s Tool error (%s): %v", FailureMarker, ToolWriteFile, mkErr)
	}
	if writeErr := os.WriteFile(path, []byte(content), 0644); writeErr != nil {
		return fmt.Sprintf("%s Tool error (%s): %v", FailureMarker, ToolWriteFile, writeErr)
	}

	return fmt.Sprintf("%s File %s done: %s (%d lines)", SuccessMarker, action, filepath.Base(path), lineCount)
}

func (e *Executor) editFile(params map[string]any) string {
	path, err := e.resolvePath(getString(params, "path"))
	if err != nil {
		return err.Error()
	}

	search := getString(params, "search")
	replace := getString(params, "replace")
	if search == "" {
		return FailureMarker + " 'search' parameter is required."
	}

	info, statErr := os.Stat(path)
	if statErr != nil {
		return fmt.Sprintf("%s File not found: %s", FailureMarker, path)
	}
	if info.IsDir() {
		return fmt.Sprintf("%s Not a file: %s", FailureMarker, path)
	}

	data, readErr := os.ReadFile(path)
	if readErr != nil {
		return fmt.Sprintf("%s Tool error (%s): %v", FailureMarker, ToolEditFile, readErr)
	}
	if isBinary(data) {
		return fmt.Sprintf("%s Cannot edit binary file: %s", FailureMarker, path)
	}
	content := string(data)

	count := strings.Count(content, search)
	if count == 0 {
		hint := ""
		if nearby := similarLines(search, content); len(nearby) > 0 {
			hint = "\nSimilar lines:\n  → " + strings.Join(nearby, "\n  → ")
		}
		return FailureMarker + " Search string not found." + hint
	}
	if count > 1 {
		return fmt.Sprintf("%s Search string found %d times. Please be more specific.", FailureMarker, count)
	}

	newContent := strings.Replace(content, search, replace, 1)
	description := fmt.Sprintf("✏️ Edit file: %s\n%s",
		filepath.Base(path), generateDiff(content, newContent, filepath.Base(path)))

	if !e.approve(ToolEditFile, description) {
		return SkipMarker + " User rejected edit."
	}

	if writeErr := os.WriteFile(path, []byte(newContent), info.Mode().Perm()); writeErr != nil {
		return fmt.Sprintf("%s Tool error (%s): %v", FailureMarker, ToolEditFile, writeErr)
	}

	return fmt.Sprintf("%s File edited: %s (1 change applied)", SuccessMarker, filepath.Base(path))
}

// similarLines fuzzy-matches the first line of a failed search string
// against the file's lines and returns up to 3 candidates as hints.
func similarLines(search, content string) []string {
	firstLine := strings.TrimSpace(strings.SplitN(search, "\n", 2)[0])
	if firstLine == "" {
		return nil
	}

	lines := strings.Split(content, "\n")
	matches := fuzzy.Find(firstLine, lines)

	var nearby []string
	for _, m := range matches {
		line := strings.TrimSpace(lines[m.Index])
		if line == "" {
			continue
		}
		nearby = append(nearby, line)
		if len(nearby) == 3 {
			break
		}
	}
	return nearby
}

func (e *Executor) listDirectory(params map[string]any) string {
	pathParam := getString(params, "path")
	if pathParam == "" {
		pathParam = "."
	}
	path, err := e.resolvePath(pathParam)
	if err != nil {
		return err.Error()
	}

	info, statErr := os.Stat(path)
	if statErr != nil {
		return fmt.Sprintf("%s Directory not found: %s", FailureMarker, path)
	}
	if !info.IsDir() {
		return fmt.Sprintf("%s Not a directory: %s", FailureMarker, path)
	}

	entries, readErr := os.ReadDir(path)
	if readErr != nil {
		return fmt.Sprintf("%s Tool error (%s): %v", FailureMarker, ToolListDirectory, readErr)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDir() != entries[j].IsDir() {
			return entries[i].IsDir()
		}
		return entries[i].Name() < entries[j].Name()
	})

	var visible []os.DirEntry
	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), ".") {
			visible = append(visible, entry)
		}
	}

	var lines []string
	for _, entry := range visible {
		if len(lines) >= listEntryLimit {
			break
		}
		if entry.IsDir() {
			lines = append(lines, "  📁 "+entry.Name())
			continue
		}
		size := ""
		if fi, err := entry.Info(); err == nil {
			size = " (" + humanSize(fi.Size()) + ")"
		}
		lines = append(lines, "  📄 "+entry.Name()+size)
	}

	name := filepath.Base(path)
	header := fmt.Sprintf("📂 **%s** (%d items)", name, len(visible))
	return header + "\n" + strings.Join(lines, "\n")
}

func humanSize(size int64) string {
	switch {
	case size < 1024:
		return fmt.Sprintf("%dB", size)
	case size < 1024*1024:
		return fmt.Sprintf("%.1fKB", float64(size)/1024)
	default:
		return fmt.Sprintf("%.1fMB", float64(size)/(1024*1024))
	}
}

func (e *Executor) searchFiles(params map[string]any) string {
	pattern := getString(params, "pattern")
	if pattern == "" {
		pattern = "*"
	}
	pathParam := getString(params, "path")
	if pathParam == "" {
		pathParam = "."
	}
	base, err := e.resolvePath(pathParam)
	if err != nil {
		return err.Error()
	}
	if _, statErr := os.Stat(base); statErr != nil {
		return fmt.Sprintf("%s Path not found: %s", FailureMarker, base)
	}

	var matches []string
	_ = filepath.WalkDir(base, func(p string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if d.IsDir() {
			if p != base && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasPrefix(p, e.root+string(filepath.Separator)) {
			return nil
		}
		rel, relErr := filepath.Rel(base, p)
		if relErr != nil {
			return nil
		}
		if ok, _ := doublestar.Match(pattern, rel); !ok {
			if ok, _ := doublestar.Match(pattern, d.Name()); !ok {
				return nil
			}
		}
		matches = append(matches, p)
		return nil
	})
	sort.Strings(matches)

	if len(matches) == 0 {
		return fmt.Sprintf("🔍 No files matching '%s'.", pattern)
	}

	var lines []string
	for i, m := range matches {
		if i >= searchMatchLimit {
			break
		}
		rel, _ := filepath.Rel(e.root, m)
		lines = append(lines, "  📄 "+rel)
	}

	result := fmt.Sprintf("🔍 '%s' results (%d files)", pattern, len(matches))
	if len(matches) > searchMatchLimit {
		result += fmt.Sprintf(" — showing first %d", searchMatchLimit)
	}
	return result + "\n" + strings.Join(lines, "\n")
}

func (e *Executor) grepSearch(params map[string]any) string {
	query := getString(params, "query")
	if query == "" {
		return FailureMarker + " 'query' parameter is required."
	}
	pathParam := getString(params, "path")
	if pathParam == "" {
		pathParam = "."
	}
	base, err := e.resolvePath(pathParam)
	if err != nil {
		return err.Error()
	}

	info, statErr := os.Stat(base)
	if statErr != nil {
		return fmt.Sprintf("%s Path not found: %s", FailureMarker, base)
	}

	var files []string
	if !info.IsDir() {
		files = []string{base}
	} else {
		_ = filepath.WalkDir(base, func(p string, d os.DirEntry, walkErr error) error {
			if walkErr != nil {
				return nil
			}
			if d.IsDir() {
				if p != base && (strings.HasPrefix(d.Name(), ".") || grepSkipDirs[d.Name()]) {
					return filepath.SkipDir
				}
				return nil
			}
			if strings.HasPrefix(d.Name(), ".") {
				return nil
			}
			if strings.HasPrefix(p, e.root+string(filepath.Separator)) {
				files = append(files, p)
			}
			return nil
		})
		sort.Strings(files)
	}

	queryLower := strings.ToLower(query)
	var results []string
	for _, fp := range files {
		data, readErr := os.ReadFile(fp)
		if readErr != nil || isBinary(data) {
			continue
		}
		rel, _ := filepath.Rel(e.root, fp)
		for i, line := range strings.Split(string(data), "\n") {
			if !strings.Contains(strings.ToLower(line), queryLower) {
				continue
			}
			trimmed := cutRunes(strings.TrimSpace(line), grepLineLimit)
			results = append(results, fmt.Sprintf("  %s:%d: %s", rel, i+1, trimmed))
			if len(results) >= grepMatchLimit {
				break
			}
		}
		if len(results) >= grepMatchLimit {
			break
		}
	}

	if len(results) == 0 {
		return fmt.Sprintf("🔍 '%s' not found.", query)
	}

	header := fmt.Sprintf("🔍 '%s' results (%d matches)", query, len(results))
	return header + "\n" + strings.Join(results, "\n")
}

func (e *Executor) runCommand(ctx context.Context, params map[string]any) string {
	command := getString(params, "command")
	if command == "" {
		return FailureMarker + " No command provided."
	}

	lower := strings.ToLower(command)
	for _, denied := range commandDenylist {
		if strings.Contains(lower, denied) {
			return fmt.Sprintf("%s Dangerous command blocked: %s", FailureMarker, command)
		}
	}

	description := fmt.Sprintf("⚙️ Run command: `%s`", command)
	if !e.approve(ToolRunCommand, description) {
		return SkipMarker + " User rejected command execution."
	}

	cctx, cancel := context.WithTimeout(ctx, e.cmdTimeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, "sh", "-c", command)
	cmd.Dir = e.root
	cmd.WaitDelay = 5 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	if errors.Is(cctx.Err(), context.DeadlineExceeded) {
		return fmt.Sprintf("%s Command timed out ⏰ (%ds): %s", FailureMarker, int(e.cmdTimeout.Seconds()), command)
	}

	exitCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return fmt.Sprintf("%s Command failed: %v", FailureMarker, runErr)
		}
	}

	parts := []string{fmt.Sprintf("⚙️ `%s` (exit code: %d)", command, exitCode)}

	if out := strings.TrimSpace(stdout.String()); out != "" {
		if cut := cutRunes(out, stdoutLimit); cut != out {
			out = cut + "\n... (output truncated)"
		}
		parts = append(parts, "```\n"+out+"\n```")
	}
	if errOut := strings.TrimSpace(stderr.String()); errOut != "" {
		if cut := cutRunes(errOut, stderrLimit); cut != errOut {
			errOut = cut + "\n... (stderr truncated)"
		}
		parts = append(parts, "**stderr:**\n```\n"+errOut+"\n```")
	}

	return strings.Join(parts, "\n")
}
