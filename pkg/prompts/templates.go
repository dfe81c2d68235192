// Package prompts holds the agent's instruction and the quick-action
// templates used by the terminal client.
//
// A quick action is a Markdown file in a prompts directory. Typing
// /name arg1 arg2 in the chat client expands the template, substituting
// argument placeholders before the text is sent to the agent.
//
// Discovery, first match wins:
//   - Project:  {cwd}/.shopchat/prompts/
//   - Global:   ~/.config/shopchat/prompts/
//   - Built-in: cart, submit, recommend, tips, lesson
//
// Template files may start with YAML front matter carrying a description.
//
// Placeholder substitution:
//
//	$1, $2, …    positional arguments
//	$@           all arguments joined with spaces
//	$ARGUMENTS   same as $@
//	${@:N}       arguments from Nth onwards (1-indexed)
//	${@:N:L}     L arguments starting at Nth
package prompts

import (
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"
)

const configDir = ".shopchat"

// Template is a loaded quick action.
type Template struct {
	Name        string
	Description string
	Content     string // body after front matter
	Source      string // "builtin" | "user" | "project"
	FilePath    string
}

// Builtin returns the quick actions that ship with the client.
func Builtin() []Template {
	return []Template{
		{Name: "cart", Description: "Show the current cart", Source: "builtin",
			Content: "Show me what's in my cart using access_cart_information tool"},
		{Name: "submit", Description: "Submit the cart as an order", Source: "builtin",
			Content: "I would like to submit my order. Please confirm the items and total with me, then place it."},
		{Name: "recommend", Description: "Recommend products for a sport", Source: "builtin",
			Content: "Can you recommend some products for $@? Skip anything already in my cart."},
		{Name: "tips", Description: "Send training tips for a sport", Source: "builtin",
			Content: "Please send me training tips for $1 by ${@:2}."},
		{Name: "lesson", Description: "Find times for a lesson or service", Source: "builtin",
			Content: "Which times are available for a $1 on ${@:2}?"},
	}
}

// LoadTemplates discovers templates from the project and global prompts
// directories, then the built-ins.
func LoadTemplates(cwd string) []Template {
	var all []Template
	seen := map[string]bool{}

	add := func(ts []Template) {
		for _, t := range ts {
			if !seen[t.Name] {
				seen[t.Name] = true
				all = append(all, t)
			}
		}
	}

	add(loadFromDir(filepath.Join(cwd, configDir, "prompts"), "project"))
	add(loadFromDir(globalPromptsDir(), "user"))
	add(Builtin())
	return all
}

// Expand expands text of the form "/name args..." using the matching
// template. ok is false, and text is returned unchanged, when text is not a
// quick action or names no known template.
func Expand(text string, templates []Template) (expanded string, ok bool) {
	if !strings.HasPrefix(text, "/") {
		return text, false
	}
	name, rest, _ := strings.Cut(strings.TrimPrefix(text, "/"), " ")
	for _, t := range templates {
		if t.Name == name {
			return substituteArgs(t.Content, parseArgs(rest)), true
		}
	}
	return text, false
}

// Find returns the template with the given name.
func Find(templates []Template, name string) (Template, bool) {
	for _, t := range templates {
		if t.Name == name {
			return t, true
		}
	}
	return Template{}, false
}

// ---------------------------------------------------------------------------
// Argument parsing
// ---------------------------------------------------------------------------

// parseArgs splits s on blanks; single or double quotes group words.
func parseArgs(s string) []string {
	var (
		args  []string
		cur   strings.Builder
		quote rune
		open  bool
	)
	flush := func() {
		if open {
			args = append(args, cur.String())
			cur.Reset()
			open = false
		}
	}
	for _, c := range s {
		switch {
		case quote != 0 && c == quote:
			quote = 0
		case quote != 0:
			cur.WriteRune(c)
		case c == '"' || c == '\'':
			quote, open = c, true
		case c == ' ' || c == '\t':
			flush()
		default:
			cur.WriteRune(c)
			open = true
		}
	}
	flush()
	return args
}

var (
	positional   = regexp.MustCompile(`\$(\d+)`)
	slicePattern = regexp.MustCompile(`\$\{@:(\d+)(?::(\d+))?\}`)
)

// substituteArgs replaces placeholders in content with the given arguments.
// Positional placeholders go first so $10 is not read as $1 followed by 0.
func substituteArgs(content string, args []string) string {
	out := positional.ReplaceAllStringFunc(content, func(m string) string {
		n, _ := strconv.Atoi(m[1:])
		if n < 1 {
			return ""
		}
		return strings.Join(window(args, n, 1), "")
	})
	out = slicePattern.ReplaceAllStringFunc(out, func(m string) string {
		sub := slicePattern.FindStringSubmatch(m)
		start, _ := strconv.Atoi(sub[1])
		length := -1
		if sub[2] != "" {
			length, _ = strconv.Atoi(sub[2])
		}
		return strings.Join(window(args, start, length), " ")
	})
	all := strings.Join(args, " ")
	out = strings.ReplaceAll(out, "$ARGUMENTS", all)
	return strings.ReplaceAll(out, "$@", all)
}

// window returns up to length args starting at the 1-indexed start; a
// negative length means the rest.
func window(args []string, start, length int) []string {
	if start < 1 {
		start = 1
	}
	if start > len(args) {
		return nil
	}
	end := len(args)
	if length >= 0 && start-1+length < end {
		end = start - 1 + length
	}
	return args[start-1 : end]
}

// ---------------------------------------------------------------------------
// File loading
// ---------------------------------------------------------------------------

func loadFromDir(dir, source string) []Template {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var templates []Template
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}

		meta, body := splitFrontmatter(string(data))
		var fm struct {
			Description string `yaml:"description"`
		}
		if meta != "" {
			_ = yaml.Unmarshal([]byte(meta), &fm)
		}
		desc := fm.Description
		if desc == "" {
			desc = firstLine(body, 60)
		}

		abs, _ := filepath.Abs(path)
		templates = append(templates, Template{
			Name:        strings.TrimSuffix(e.Name(), ".md"),
			Description: desc,
			Content:     strings.TrimSpace(body),
			Source:      source,
			FilePath:    abs,
		})
	}
	return templates
}

func firstLine(body string, max int) string {
	for _, line := range strings.SplitN(body, "\n", 10) {
		if t := strings.TrimSpace(line); t != "" {
			if len(t) > max {
				t = t[:max-3] + "..."
			}
			return t
		}
	}
	return ""
}

// splitFrontmatter separates a leading "---" delimited YAML block from the
// body. Returns ("", content) if there is none.
func splitFrontmatter(content string) (meta, body string) {
	lines := strings.Split(content, "\n")
	if len(lines) < 2 || strings.TrimSpace(lines[0]) != "---" {
		return "", content
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			return strings.Join(lines[1:i], "\n"), strings.Join(lines[i+1:], "\n")
		}
	}
	return "", content
}

// ---------------------------------------------------------------------------
// Path helpers
// ---------------------------------------------------------------------------

func globalPromptsDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "shopchat", "prompts")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "shopchat", "prompts")
}
