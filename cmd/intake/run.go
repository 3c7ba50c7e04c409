package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kalambet/intake/internal/config"
	"github.com/kalambet/intake/internal/matching"
	"github.com/kalambet/intake/internal/questionnaire"
	"github.com/kalambet/intake/internal/session"
	"github.com/kalambet/intake/internal/storage"
)

const (
	cmdBack = ":back"
	cmdQuit = ":quit"
)

var errAborted = errors.New("questionnaire aborted")

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fill the questionnaire interactively in the terminal",
	Long: `Walk through the questionnaire section by section.

Press Enter to keep the current answer, type :back to return to the previous
section, :quit to leave. Options can be picked by number or value; separate
multiple choices with commas.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		source, _ := cmd.Flags().GetString("source")
		noStore, _ := cmd.Flags().GetBool("no-store")

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if source == "" {
			source = cfg.Questionnaire.Source
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		printStep("Loading questionnaire from %s", source)
		doc, err := newLoader(source).Load(ctx)
		if err != nil {
			return err
		}

		opts := session.Options{
			Submitter: matching.NewClient(cfg.Matching.BaseURL, cfg.Matching.APIKey, cfg.MatchingTimeout()),
		}
		if !noStore {
			store, err := storage.Open(cfg.Storage.DataDir)
			if err != nil {
				return fmt.Errorf("opening storage: %w", err)
			}
			defer store.Close()
			opts.Recorder = store
		}

		s := session.New(uuid.NewString(), doc, opts)
		printStatus("Sections", "%d", len(doc.Sections))
		printStatus("Estimated time", "%s min", strconv.FormatFloat(doc.Metadata.EstimatedMinutes(), 'f', -1, 64))

		t := newTerminal(cmd.InOrStdin(), cmd.OutOrStdout())
		res, err := t.run(ctx, s)
		if err != nil {
			return err
		}
		printResult(cmd.OutOrStdout(), res)
		return nil
	},
}

func init() {
	runCmd.Flags().String("source", "", "questionnaire URL or file (default: questionnaire.source)")
	runCmd.Flags().Bool("no-store", false, "do not record the submission in the local history")
}

// terminal drives a session from line-based input.
type terminal struct {
	in  *bufio.Scanner
	out io.Writer
}

func newTerminal(in io.Reader, out io.Writer) *terminal {
	return &terminal{in: bufio.NewScanner(in), out: out}
}

func (t *terminal) readLine() (string, error) {
	if !t.in.Scan() {
		if err := t.in.Err(); err != nil {
			return "", err
		}
		return "", errAborted
	}
	return strings.TrimSpace(t.in.Text()), nil
}

// run loops until the profile is submitted and a result is received.
func (t *terminal) run(ctx context.Context, s *session.Session) (*matching.Result, error) {
	for {
		back, err := t.fillSection(s)
		if err != nil {
			return nil, err
		}
		if back {
			if err := s.Previous(); err != nil {
				return nil, err
			}
			continue
		}

		step, err := s.Next(ctx)
		var verr *questionnaire.ValidationError
		switch {
		case errors.As(err, &verr):
			t.printFieldErrors(s, verr.Fields)
			continue
		case err != nil && step == session.StepSubmit:
			res, err := t.retrySubmit(ctx, s, err)
			if err != nil {
				return nil, err
			}
			return res, nil
		case err != nil:
			return nil, err
		case step == session.StepSubmit:
			return s.State().Result, nil
		}
	}
}

// fillSection prompts every visible question of the current section. It
// reports true when the user asked to go back.
func (t *terminal) fillSection(s *session.Session) (bool, error) {
	st := s.State()
	fmt.Fprintf(t.out, "\n%s %s\n",
		colorize(fmt.Sprintf("[%d/%d]", st.SectionIndex+1, st.SectionCount), color.FgCyan),
		colorize(st.Section.Title, color.Bold))
	if st.Section.Critical() {
		fmt.Fprintln(t.out, colorize("  important section", color.FgYellow))
	}
	if st.Section.Description != "" {
		fmt.Fprintf(t.out, "  %s\n", st.Section.Description)
	}

	for _, q := range st.Section.Questions {
		// Visibility is re-read after every answer.
		cur := s.State()
		if !isVisible(cur, q.ID) {
			continue
		}
		back, err := t.ask(s, q, cur)
		if err != nil || back {
			return back, err
		}
	}
	return false, nil
}

func isVisible(st session.State, id string) bool {
	for _, q := range st.Visible {
		if q.ID == id {
			return true
		}
	}
	return false
}

func (t *terminal) ask(s *session.Session, q questionnaire.Question, st session.State) (bool, error) {
	for {
		t.printQuestion(q, st)
		line, err := t.readLine()
		if err != nil {
			return false, err
		}
		switch line {
		case cmdBack:
			if st.SectionIndex == 0 {
				printWarning("already on the first section")
				continue
			}
			return true, nil
		case cmdQuit:
			return false, errAborted
		case "":
			return false, nil
		}

		v, err := parseAnswer(q, line)
		if err != nil {
			printError("%v", err)
			continue
		}
		if err := s.SetAnswer(q.ID, v); err != nil {
			printError("%v", err)
			continue
		}
		return false, nil
	}
}

func (t *terminal) printQuestion(q questionnaire.Question, st session.State) {
	label := q.Label
	if q.Required {
		label += " *"
	}
	fmt.Fprintf(t.out, "\n%s\n", colorize(label, color.Bold))
	if q.HelpText != "" {
		fmt.Fprintf(t.out, "  %s\n", q.HelpText)
	}
	for i, o := range q.Options {
		fmt.Fprintf(t.out, "  %d) %s\n", i+1, o.Label)
	}
	if msg, ok := st.Errors[q.ID]; ok {
		fmt.Fprintln(t.out, colorize("  "+msg, color.FgRed))
	}
	prompt := "> "
	if cur, ok := st.Answers[q.ID]; ok {
		prompt = fmt.Sprintf("[%s] > ", answerLabel(q, cur))
	}
	fmt.Fprint(t.out, prompt)
}

func answerLabel(q questionnaire.Question, v questionnaire.Value) string {
	if v.Kind() == questionnaire.KindSet {
		labels := make([]string, 0, v.Len())
		for _, item := range v.Items() {
			labels = append(labels, q.OptionLabel(questionnaire.Text(item)))
		}
		return strings.Join(labels, ", ")
	}
	if q.Type.HasOptions() {
		return q.OptionLabel(v)
	}
	return v.String()
}

func (t *terminal) printFieldErrors(s *session.Session, fields questionnaire.FieldErrors) {
	printError("please fix %d answer(s) before continuing", len(fields))
	cfg := s.Config()
	for _, id := range fields.IDs() {
		label := id
		if q, ok := cfg.Question(id); ok {
			label = q.Label
		}
		printStatus(label, "%s", fields[id])
	}
}

func (t *terminal) retrySubmit(ctx context.Context, s *session.Session, cause error) (*matching.Result, error) {
	for {
		printError("%v", cause)
		var serr *matching.SubmissionError
		if !errors.As(cause, &serr) || !serr.Retryable() {
			return nil, cause
		}
		fmt.Fprint(t.out, "Retry the submission? [Y/n] ")
		line, err := t.readLine()
		if err != nil {
			return nil, cause
		}
		if strings.EqualFold(line, "n") || strings.EqualFold(line, "no") {
			return nil, cause
		}
		res, err := s.Submit(ctx)
		if err == nil {
			return res, nil
		}
		cause = err
	}
}

// parseAnswer reads one line of input as an answer to q. Options may be
// given by 1-based number, value or label.
func parseAnswer(q questionnaire.Question, input string) (questionnaire.Value, error) {
	switch q.Type {
	case questionnaire.TypeNumber:
		f, err := strconv.ParseFloat(strings.ReplaceAll(input, ",", "."), 64)
		if err != nil {
			return questionnaire.Value{}, fmt.Errorf("%q is not a number", input)
		}
		return questionnaire.Number(f), nil
	case questionnaire.TypeText:
		return questionnaire.Text(input), nil
	case questionnaire.TypeSelect, questionnaire.TypeRadio:
		return pickOption(q, input)
	case questionnaire.TypeMultiSelect:
		var items []string
		for _, part := range strings.Split(input, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			v, err := pickOption(q, part)
			if err != nil {
				return questionnaire.Value{}, err
			}
			items = append(items, v.String())
		}
		return questionnaire.Set(items...), nil
	}
	return questionnaire.Value{}, fmt.Errorf("unsupported question type %q", q.Type)
}

func pickOption(q questionnaire.Question, input string) (questionnaire.Value, error) {
	if n, err := strconv.Atoi(input); err == nil && n >= 1 && n <= len(q.Options) {
		return q.Options[n-1].Value, nil
	}
	for _, o := range q.Options {
		if strings.EqualFold(o.Value.String(), input) || strings.EqualFold(o.Label, input) {
			return o.Value, nil
		}
	}
	return questionnaire.Value{}, fmt.Errorf("%q is not one of the options", input)
}

func printResult(out io.Writer, res *matching.Result) {
	if res == nil {
		return
	}
	fmt.Fprintf(out, "\n%s\n", colorize(fmt.Sprintf("%d aid program(s) analysed, %d eligible", res.Total, res.Eligible), color.Bold))
	if res.EstimatedMax > 0 {
		fmt.Fprintf(out, "Estimated total: %s to %s\n", matching.FormatAmount(res.EstimatedMin), matching.FormatAmount(res.EstimatedMax))
	}

	eligible, quasi, _ := res.Split()
	printEntries(out, "Eligible", eligible, color.FgGreen)
	printEntries(out, "Nearly eligible", quasi, color.FgYellow)
	if len(eligible) == 0 && len(quasi) == 0 {
		fmt.Fprintln(out, "No matching program for this profile.")
	}
}

func printEntries(out io.Writer, title string, entries []matching.Entry, attr color.Attribute) {
	if len(entries) == 0 {
		return
	}
	fmt.Fprintf(out, "\n%s\n", colorize(title, attr, color.Bold))
	for _, e := range entries {
		name := e.Program.Title
		if name == "" {
			name = string(e.ProgramID)
		}
		fmt.Fprintf(out, "  %s  %s", colorize(fmt.Sprintf("%3.0f", e.Score), attr), name)
		if e.Program.Organization != "" {
			fmt.Fprintf(out, " (%s)", e.Program.Organization)
		}
		fmt.Fprintln(out)
		if e.Summary != "" {
			fmt.Fprintf(out, "       %s\n", e.Summary)
		}
		if len(e.MissingCriteria) > 0 {
			fmt.Fprintf(out, "       missing: %s\n", strings.Join(e.MissingCriteria, ", "))
		}
	}
}
