// Package classedit makes small structural edits to a single PHP class file
// working on its text.
package classedit

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	namespaceRe = regexp.MustCompile(`(?m)^namespace\s+[^;]+;[ \t]*\n`)
	useRe       = regexp.MustCompile(`(?m)^use\s+([^;]+);[ \t]*\n`)
	classRe     = regexp.MustCompile(`(?m)^(?:final\s+|abstract\s+)*class\s+\w+[^{]*\{`)
)

// Manipulator holds the source of one class.
type Manipulator struct {
	src string
}

// New wraps class source code.
func New(src string) *Manipulator {
	return &Manipulator{src: src}
}

// SourceCode returns the edited source.
func (m *Manipulator) SourceCode() string {
	return m.src
}

// AddUseStatement imports class unless it is already imported. The import
// goes after the last existing one, or after the namespace declaration.
func (m *Manipulator) AddUseStatement(class string) error {
	class = strings.TrimPrefix(strings.TrimSpace(class), `\`)
	if class == "" {
		return fmt.Errorf("empty class name")
	}

	uses := useRe.FindAllStringSubmatchIndex(m.src, -1)
	for _, u := range uses {
		if strings.TrimSpace(m.src[u[2]:u[3]]) == class {
			return nil
		}
	}

	line := "use " + class + ";\n"
	if len(uses) > 0 {
		end := uses[len(uses)-1][1]
		m.src = m.src[:end] + line + m.src[end:]
		return nil
	}

	ns := namespaceRe.FindStringIndex(m.src)
	if ns == nil {
		return fmt.Errorf("no namespace declaration to place use statement after")
	}
	m.src = m.src[:ns[1]] + "\n" + line + m.src[ns[1]:]
	return nil
}

// AddMethod inserts a method body before the closing brace of the class.
// body is re-indented to one level.
func (m *Manipulator) AddMethod(body string) error {
	if classRe.FindStringIndex(m.src) == nil {
		return fmt.Errorf("no class declaration found")
	}
	end := strings.LastIndex(m.src, "}")
	if end < 0 {
		return fmt.Errorf("class has no closing brace")
	}

	before := strings.TrimRight(m.src[:end], " \t\n")
	m.src = before + "\n\n" + indent(strings.TrimSpace(body), "    ") + "\n" + m.src[end:]
	return nil
}

// HasMethod reports whether a function with the given name is declared.
func (m *Manipulator) HasMethod(name string) bool {
	re := regexp.MustCompile(`function\s+` + regexp.QuoteMeta(name) + `\s*\(`)
	return re.MatchString(m.src)
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		if strings.TrimSpace(l) != "" {
			lines[i] = prefix + strings.TrimRight(l, " \t")
		} else {
			lines[i] = ""
		}
	}
	return strings.Join(lines, "\n")
}
