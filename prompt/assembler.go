// Package prompt assembles the outbound prompt for a turn from cached
// context, newly attached files, the conversation history and the new
// question. Assembly is deterministic and lossless: when the result would
// exceed the character budget it fails with a too_large error naming the
// sections to drop instead of truncating anything.
package prompt

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/hupe1980/consultmesh/core"
	"github.com/hupe1980/consultmesh/internal/util"
)

// DefaultMaxChars is the default budget for an assembled prompt.
const DefaultMaxChars = 50_000

// DefaultSystemPrompt frames the model as a consultant to another agent.
const DefaultSystemPrompt = `You are an expert coding assistant helping another AI agent solve complex programming problems on behalf of a human developer.

Provide clear, practical solutions with working code examples. Explain your reasoning concisely but thoroughly, focus on security and maintainability, point out edge cases, and use the technologies shown in the provided code context. If important information is missing, ask specific clarifying questions about requirements, error messages, environment or scale.`

const intro = "I need your help with a complex coding problem. Here's the context:"

// Section names reported in too_large errors.
const (
	SectionSystem            = "system"
	SectionProblem           = "problem_description"
	SectionCodeContext       = "code_context"
	SectionHistory           = "history"
	SectionAdditionalContext = "additional_context"
	SectionQuestion          = "question"
	SectionInstruction       = "instruction"
	sectionFilePrefix        = "file:"
)

// FileSection returns the section name used for an attached file.
func FileSection(path string) string { return sectionFilePrefix + path }

// Options configures an Assembler.
type Options struct {
	// SystemPrompt may contain text/template markers; .session_id, .approach
	// and .model are available.
	SystemPrompt string
	// MaxChars is the budget in characters (runes). <= 0 disables the check.
	MaxChars int
}

// Input is everything needed to build one turn's prompt.
type Input struct {
	SessionID         string
	Model             string
	Context           core.ContextSnapshot
	NewFiles          []core.CachedFile
	History           []core.Turn
	AdditionalContext string
	Question          string
	Approach          Approach
}

// Assembler builds prompts. It is stateless and safe for concurrent use.
type Assembler struct {
	opts Options
}

// New returns an Assembler with defaults applied.
func New(optFns ...func(o *Options)) *Assembler {
	opts := Options{SystemPrompt: DefaultSystemPrompt, MaxChars: DefaultMaxChars}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Assembler{opts: opts}
}

// MaxChars returns the configured budget.
func (a *Assembler) MaxChars() int { return a.opts.MaxChars }

type section struct {
	name string
	text string
	size int
	// fixed sections cannot be dropped by the caller.
	fixed bool
}

// Build returns the assembled prompt or a *core.Error of kind too_large.
func (a *Assembler) Build(in Input) (string, error) {
	sections, err := a.sections(in)
	if err != nil {
		return "", err
	}

	total := 0
	for _, s := range sections {
		total += s.size
	}
	if a.opts.MaxChars > 0 && total > a.opts.MaxChars {
		return "", &core.Error{
			Kind:      core.KindTooLarge,
			SessionID: in.SessionID,
			Sections:  offending(sections, total, a.opts.MaxChars),
			Msg:       fmt.Sprintf("assembled prompt is %d characters, limit is %d", total, a.opts.MaxChars),
		}
	}

	var b strings.Builder
	b.Grow(total)
	for _, s := range sections {
		b.WriteString(s.text)
	}
	return b.String(), nil
}

// sections renders every prompt section in its fixed order.
func (a *Assembler) sections(in Input) ([]section, error) {
	approach := in.Approach
	if approach == "" {
		approach = ApproachSolution
	}
	system, err := util.RenderTemplate(a.opts.SystemPrompt, map[string]any{
		"session_id": in.SessionID,
		"approach":   string(approach),
		"model":      in.Model,
	})
	if err != nil {
		return nil, &core.Error{Kind: core.KindInvalidRequest, SessionID: in.SessionID, Msg: "rendering system prompt", Err: err}
	}

	var out []section
	add := func(name, text string, fixed bool) {
		if text == "" {
			return
		}
		out = append(out, section{name: name, text: text, size: utf8.RuneCountInString(text), fixed: fixed})
	}

	add(SectionSystem, system+"\n\n"+intro+"\n", true)
	if in.Context.Description != "" {
		add(SectionProblem, "\n**Problem Description:**\n"+in.Context.Description+"\n", false)
	}
	if in.Context.CodeContext != "" {
		add(SectionCodeContext, "\n**Code Context:**\n"+in.Context.CodeContext+"\n", false)
	}

	files := make([]core.CachedFile, 0, len(in.Context.Files)+len(in.NewFiles))
	files = append(files, in.Context.Files...)
	files = append(files, in.NewFiles...)
	for i, f := range files {
		var b strings.Builder
		if i == 0 {
			b.WriteString("\n**Attached Files:**\n")
		}
		b.WriteString("\n--- File: ")
		b.WriteString(f.Path)
		if f.Description != "" {
			b.WriteString(" - ")
			b.WriteString(f.Description)
		}
		b.WriteString(" ---\n")
		b.WriteString(f.Content)
		if !strings.HasSuffix(f.Content, "\n") {
			b.WriteString("\n")
		}
		b.WriteString("--- End of ")
		b.WriteString(f.Path)
		b.WriteString(" ---\n")
		add(FileSection(f.Path), b.String(), false)
	}

	if len(in.History) > 0 {
		var b strings.Builder
		b.WriteString("\n**Conversation So Far:**\n")
		for i, t := range in.History {
			fmt.Fprintf(&b, "\n**Question %d:** %s\n", i+1, t.Question)
			if t.AdditionalContext != "" {
				fmt.Fprintf(&b, "**Additional Context/Updates:**\n%s\n", t.AdditionalContext)
			}
			fmt.Fprintf(&b, "**Answer %d:**\n%s\n", i+1, t.Answer)
		}
		add(SectionHistory, b.String(), false)
	}

	if in.AdditionalContext != "" {
		add(SectionAdditionalContext, "\n**Additional Context/Updates:**\n"+in.AdditionalContext+"\n", false)
	}
	add(SectionQuestion, "\n**Question:** "+in.Question+"\n", true)
	add(SectionInstruction, "\n"+approach.Instruction()+"\n", true)
	return out, nil
}

// offending picks the largest droppable sections, biggest first, until the
// remainder fits the budget. If nothing droppable is enough, the fixed
// sections are named as well.
func offending(sections []section, total, limit int) []string {
	candidates := make([]section, 0, len(sections))
	for _, s := range sections {
		if !s.fixed {
			candidates = append(candidates, s)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].size > candidates[j].size })

	var names []string
	for _, s := range candidates {
		if total <= limit {
			break
		}
		names = append(names, s.name)
		total -= s.size
	}
	if total > limit {
		for _, s := range sections {
			if s.fixed {
				names = append(names, s.name)
			}
		}
	}
	return names
}
