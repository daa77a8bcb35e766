package form

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"maps"
	"strings"

	"plebchat/internal/schema"
)

// Prompter fills a model's fields from line input.
type Prompter struct {
	in     *bufio.Reader
	out    io.Writer
	styles Styles
}

// NewPrompter reads answers from in and writes prompts to out.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out, styles: NewStyles(DefaultTheme)}
}

// ReadLine reads one trimmed line. io.EOF is returned only when nothing
// was read.
func (p *Prompter) ReadLine() (string, error) {
	line, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Fill prompts for every field of m in order and returns the validated
// record. initial supplies the current values; a blank answer keeps the
// current value or the field default. An invalid answer is reported inline
// and asked again.
func (p *Prompter) Fill(m *schema.Model, initial map[string]any) (map[string]any, error) {
	values := maps.Clone(initial)
	if values == nil {
		values = map[string]any{}
	}
	for _, f := range m.Fields {
		check, err := m.Without(m.Name+"."+f.Name, others(m, f.Name)...)
		if err != nil {
			return nil, err
		}
		for {
			current, has := values[f.Name]
			if !has && f.HasDefault {
				current, has = f.Default, true
			}
			fmt.Fprint(p.out, p.prompt(f, current, has))

			answer, err := p.ReadLine()
			if err != nil {
				if errors.Is(err, io.EOF) {
					return nil, io.ErrUnexpectedEOF
				}
				return nil, err
			}
			var candidate any
			switch {
			case answer != "":
				candidate = answer
			case has:
				candidate = current
			}

			checked, err := check.Validate(map[string]any{f.Name: candidate})
			if err == nil {
				if v, ok := checked[f.Name]; ok {
					values[f.Name] = v
				} else {
					delete(values, f.Name)
				}
				break
			}
			var verr *schema.ValidationError
			if !errors.As(err, &verr) {
				return nil, err
			}
			for _, v := range verr.Violations {
				fmt.Fprintln(p.out, p.styles.Error.Render("  ✗ "+v.Message))
			}
		}
	}
	return m.Validate(values)
}

func (p *Prompter) prompt(f schema.Field, current any, has bool) string {
	var b strings.Builder
	b.WriteString(p.styles.Label.Render(f.Label()))
	hint := kindHint(f)
	if has {
		hint += fmt.Sprintf(", default %v", current)
	}
	b.WriteString(" " + p.styles.Hint.Render("("+hint+")"))
	if f.Description != "" {
		b.WriteString("\n  " + p.styles.Hint.Render(f.Description))
	}
	b.WriteString("\n> ")
	return b.String()
}

func kindHint(f schema.Field) string {
	if f.Kind == schema.KindEnum {
		return strings.Join(f.Enum, "|")
	}
	switch f.Type {
	case schema.Bool:
		return "true|false"
	case "":
		return string(schema.Text)
	default:
		return string(f.Type)
	}
}

func others(m *schema.Model, keep string) []string {
	out := make([]string, 0, len(m.Fields))
	for _, f := range m.Fields {
		if f.Name != keep {
			out = append(out, f.Name)
		}
	}
	return out
}
