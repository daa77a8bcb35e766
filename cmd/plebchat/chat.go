package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"plebchat/internal/agents"
	"plebchat/internal/client"
	"plebchat/internal/form"
	"plebchat/internal/schema"
	"plebchat/internal/session"
)

// chatLoop reads lines and commands and runs one stream per message.
type chatLoop struct {
	client   *client.Client
	state    *session.State
	prompter *form.Prompter
	out      io.Writer
	verbose  bool
	styles   form.Styles
}

func (l *chatLoop) run(ctx context.Context) error {
	l.header()
	for {
		fmt.Fprint(l.out, l.styles.Label.Render("you")+"> ")
		line, err := l.prompter.ReadLine()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}

		cmd, arg, _ := strings.Cut(line, " ")
		switch cmd {
		case "":
		case ":quit", ":q":
			return nil
		case ":agent":
			l.agent(strings.TrimSpace(arg))
		case ":config":
			l.config()
		case ":form":
			l.form(ctx)
		case ":history":
			l.history()
		case ":reset":
			l.state.Reset()
			fmt.Fprintln(l.out, l.styles.Hint.Render("Conversation cleared."))
		default:
			l.quick(ctx, line)
		}
	}
}

func (l *chatLoop) header() {
	a := l.state.Agent()
	fmt.Fprintf(l.out, "%s %s\n", l.styles.Label.Render(a.Data.Name), l.styles.Hint.Render("v"+a.Data.Version))
	if a.Data.Info != "" {
		fmt.Fprintln(l.out, l.styles.Hint.Render(a.Data.Info))
	}
	if a.Data.Placeholder != "" {
		fmt.Fprintln(l.out, l.styles.Hint.Render("e.g. "+a.Data.Placeholder))
	}
}

func (l *chatLoop) agent(id string) {
	if id == "" {
		current := l.state.Agent().Data.ID
		for _, a := range l.state.Agents() {
			mark := " "
			if a.Data.ID == current {
				mark = "*"
			}
			fmt.Fprintf(l.out, "%s %-10s %s\n", mark, a.Data.ID, a.Data.Name)
		}
		return
	}
	if err := l.state.Select(id); err != nil {
		l.fail(err)
		return
	}
	l.header()
}

func (l *chatLoop) config() {
	m, err := l.state.ConfigModel()
	if err != nil {
		l.fail(err)
		return
	}
	current, err := l.state.Config()
	if err != nil {
		l.fail(err)
		return
	}
	values, err := l.prompter.Fill(m, current)
	if err != nil {
		l.fail(err)
		return
	}
	if err := l.state.SetConfig(values); err != nil {
		l.fail(err)
		return
	}
	fmt.Fprintln(l.out, l.styles.Hint.Render("Configuration saved."))
}

func (l *chatLoop) form(ctx context.Context) {
	m, err := l.state.InputModel()
	if err != nil {
		l.fail(err)
		return
	}
	input, err := l.prompter.Fill(m, nil)
	if err != nil {
		l.fail(err)
		return
	}
	l.send(ctx, input)
}

// quick sends line as the query with every other input field defaulted.
func (l *chatLoop) quick(ctx context.Context, line string) {
	m, err := l.state.InputModel()
	if err != nil {
		l.fail(err)
		return
	}
	if _, ok := m.Field(agents.QueryKey); !ok {
		fmt.Fprintln(l.out, l.styles.Warn.Render("This agent takes no query; use :form."))
		return
	}
	input, err := m.Validate(map[string]any{agents.QueryKey: line})
	if err != nil {
		l.fail(err)
		fmt.Fprintln(l.out, l.styles.Hint.Render("Use :form to fill every field."))
		return
	}
	l.send(ctx, input)
}

func (l *chatLoop) send(ctx context.Context, input map[string]any) {
	req, err := l.state.Request(input)
	if err != nil {
		l.fail(err)
		return
	}
	s, err := l.client.Stream(ctx, req)
	if err != nil {
		l.fail(err)
		return
	}
	defer s.Close()

	reply, err := form.NewTranscript(l.out, l.verbose).Play(s.Next)
	if err != nil {
		// the transcript has already reported it
		return
	}
	l.state.Complete(input, reply)
}

func (l *chatLoop) history() {
	turns := l.state.History()
	if len(turns) == 0 {
		fmt.Fprintln(l.out, l.styles.Hint.Render("No messages yet."))
		return
	}
	for _, t := range turns {
		fmt.Fprintf(l.out, "%s: %s\n", l.styles.Label.Render(t.Role), t.Content)
	}
}

func (l *chatLoop) fail(err error) {
	var apiErr *client.APIError
	var verr *schema.ValidationError
	switch {
	case errors.As(err, &apiErr) && len(apiErr.Violations) > 0:
		fmt.Fprintln(l.out, l.styles.Error.Render(apiErr.Message))
		for _, v := range apiErr.Violations {
			fmt.Fprintln(l.out, l.styles.Error.Render("  ✗ "+v.String()))
		}
	case errors.As(err, &verr):
		for _, v := range verr.Violations {
			fmt.Fprintln(l.out, l.styles.Error.Render("✗ "+v.String()))
		}
	case errors.Is(err, client.ErrAgentNotFound):
		fmt.Fprintln(l.out, l.styles.Error.Render("Agent not found"))
	default:
		fmt.Fprintln(l.out, l.styles.Error.Render(err.Error()))
	}
}
