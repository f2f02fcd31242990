package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/hupe1980/consultmesh"
	"github.com/hupe1980/consultmesh/core"
	"github.com/hupe1980/consultmesh/files"
)

var (
	// Styles
	promptStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			Padding(0, 1)

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)
)

type chatOptions struct {
	problem  string
	codeFile string
	files    []string
	approach string
}

func newChatCmd(root *rootOptions) *cobra.Command {
	opts := &chatOptions{}
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Consult interactively in a single session",
		Long: `Starts a session from a problem description plus code and asks follow-up
questions line by line. Commands: /sessions, /end, /quit.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mesh, _, err := root.build(cmd.Context())
			if err != nil {
				return err
			}
			mesh.Start(cmd.Context())
			defer mesh.Close()

			var code string
			if opts.codeFile != "" {
				raw, err := readCodeFile(opts.codeFile)
				if err != nil {
					return err
				}
				code = raw
			}
			return runChat(cmd.Context(), mesh, opts, code, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&opts.problem, "problem", "p", "", "Problem description for the new session")
	cmd.Flags().StringVar(&opts.codeFile, "code", "", "File whose content becomes the session's code context")
	cmd.Flags().StringArrayVarP(&opts.files, "file", "f", nil, "File to attach (repeatable)")
	cmd.Flags().StringVar(&opts.approach, "approach", "", "solution, review, debug, optimize, explain or follow-up")
	_ = cmd.MarkFlagRequired("problem")
	return cmd
}

func runChat(ctx context.Context, mesh *consultmesh.Mesh, opts *chatOptions, code string, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	sessionID := ""
	fmt.Fprintln(out, headerStyle.Render("consultmesh chat")+" "+idStyle.Render("(/sessions, /end, /quit)"))

	for {
		fmt.Fprint(out, promptStyle.Render("? "))
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit":
			return nil
		case "/sessions":
			fmt.Fprintln(out, consultmesh.FormatSessions(mesh.ListSessions()))
			continue
		case "/end":
			if sessionID == "" {
				fmt.Fprintln(out, warnStyle.Render("no active session"))
				continue
			}
			if err := mesh.EndSession(sessionID); err != nil {
				fmt.Fprintln(out, errorStyle.Render(consultmesh.FriendlyError(err)))
			} else {
				fmt.Fprintln(out, idStyle.Render("session "+sessionID+" ended"))
			}
			sessionID = ""
			continue
		}

		req := core.ConsultRequest{SessionID: sessionID, Question: line, PreferredApproach: opts.approach}
		if sessionID == "" {
			req.ProblemDescription = opts.problem
			req.CodeContext = code
			req.AttachedFiles = opts.files
		}
		res, err := mesh.Consult(ctx, req)
		if err != nil {
			fmt.Fprintln(out, errorStyle.Render(consultmesh.FriendlyError(err)))
			continue
		}
		sessionID = res.SessionID

		fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("Message #%d", res.TurnNumber))+" "+idStyle.Render(res.SessionID))
		for _, fe := range res.FileErrors {
			fmt.Fprintln(out, warnStyle.Render(fmt.Sprintf("skipped %s: %s", fe.Path, fe.Kind)))
		}
		fmt.Fprintln(out, res.Answer)
	}
}

// readCodeFile loads the code context with the checks applied to attached files.
func readCodeFile(path string) (string, error) {
	raw, err := files.NewOSReader().Read(context.Background(), path)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
