package main

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrWong99/dawvox/internal/app"
	"github.com/MrWong99/dawvox/internal/config"
	"github.com/MrWong99/dawvox/internal/dispatch"
	"github.com/MrWong99/dawvox/internal/feedback"
	"github.com/MrWong99/dawvox/internal/intent"
	"github.com/MrWong99/dawvox/pkg/types"
)

func newCheckCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and compile the grammar",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, err := loadConfig(o)
			if err != nil {
				return err
			}
			grammar, err := cfg.Grammar()
			if err != nil {
				return err
			}
			r, err := intent.NewResolver(grammar, cfg.ResolverConfig())
			if err != nil {
				return err
			}
			if _, err := dispatch.New(grammar, dispatch.ModeDryRun); err != nil {
				return err
			}
			if _, err := feedback.NewCatalog(cfg.Feedback.Language, cfg.Feedback.Phrases); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderSummary(cfg, path))
			fmt.Fprintf(out, "configuration OK: %d intents from %d grammar entries\n", len(r.Intents()), len(grammar))
			return nil
		},
	}
}

func newResolveCmd(o *options) *cobra.Command {
	var (
		lang       string
		candidates int
	)
	cmd := &cobra.Command{
		Use:   "resolve <text...>",
		Short: "Show how a spoken phrase would be understood",
		Long: "resolve runs text through the intent resolver and a dry-run dispatch,\n" +
			"printing the intent, its parameters and the action that would be sent.",
		Example: `  dawvox resolve spur drei stumm
  dawvox resolve --lang en mute track 12`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(o)
			if err != nil {
				return err
			}
			if lang == "" {
				lang = cfg.STT.Language
			}
			grammar, err := cfg.Grammar()
			if err != nil {
				return err
			}
			r, err := intent.NewResolver(grammar, cfg.ResolverConfig())
			if err != nil {
				return err
			}
			catalog, err := feedback.NewCatalog(lang, cfg.Feedback.Phrases)
			if err != nil {
				return err
			}
			d, err := dispatch.New(grammar, dispatch.ModeDryRun, dispatch.WithCatalog(catalog))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			text := strings.Join(args, " ")

			if candidates > 0 {
				cs := r.Candidates(text, lang)
				rows := make([][]string, 0, min(candidates, len(cs)))
				for _, c := range cs[:min(candidates, len(cs))] {
					rows = append(rows, []string{c.Intent, c.Pattern, c.Params.Format(), strconv.FormatFloat(c.Confidence, 'f', 2, 64)})
				}
				fmt.Fprintln(out, renderTable([]string{"Intent", "Pattern", "Params", "Confidence"}, rows))
			}

			in, err := r.Resolve(types.Transcript{UtteranceID: 1, Text: text, Language: lang})
			if errors.Is(err, intent.ErrNoMatch) {
				fmt.Fprintf(out, "%s %s\n", warnStyle.Render("no match:"), catalog.Phrase(feedback.KindUnrecognized))
				return nil
			}
			if err != nil {
				return err
			}
			res := d.Dispatch(cmd.Context(), in)

			rows := [][2]string{
				{"Intent", in.Name},
				{"Params", in.Params.Format()},
				{"Match", fmt.Sprintf("%s (%.2f)", in.Match, in.Confidence)},
				{"Pattern", in.Pattern},
				{"Action", res.Command.Action.String()},
				{"Feedback", res.Feedback},
			}
			if res.Err != nil {
				rows = append(rows, [2]string{"Error", res.Err.Error()})
			}
			for _, row := range rows {
				fmt.Fprintln(out, labelStyle.Render(row[0])+row[1])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&lang, "lang", "", "transcript language (default stt.language)")
	cmd.Flags().IntVar(&candidates, "candidates", 0, "also list the best N candidates")
	return cmd
}

func newHistoryCmd(o *options) *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent commands from the journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(o)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if cfg.Journal.Backend == config.JournalMemory {
				fmt.Fprintln(out, "journal.backend is memory: history is only kept while dawvox runs")
				return nil
			}
			store, err := app.OpenJournal(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.Recent(cmd.Context(), n)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(out, "no commands recorded yet")
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []string{
					e.At.Local().Format("2006-01-02 15:04:05"),
					truncate(e.Transcript, 32),
					e.Intent,
					e.Mode,
					e.Status,
					truncate(e.Feedback, 32),
				})
			}
			fmt.Fprintln(out, renderTable([]string{"Time", "Transcript", "Intent", "Mode", "Status", "Feedback"}, rows))
			return nil
		},
	}
	cmd.Flags().IntVarP(&n, "limit", "n", 20, "number of entries to show")
	return cmd
}

func newPhrasesCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "phrases",
		Short: "List wake phrases and feedback phrases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(o)
			if err != nil {
				return err
			}
			catalog, err := feedback.NewCatalog(cfg.Feedback.Language, cfg.Feedback.Phrases)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			wake := make([][]string, 0, len(cfg.WakeWord.Phrases))
			for _, p := range cfg.WakeWord.Phrases {
				role := p.Role
				if role == "" {
					role = "wake"
				}
				wake = append(wake, []string{p.ID, p.Text, orAny(p.Language), role})
			}
			fmt.Fprintln(out, titleStyle.Render("Wake phrases"))
			fmt.Fprintln(out, renderTable([]string{"ID", "Text", "Language", "Role"}, wake))

			kinds := feedback.Kinds()
			slices.Sort(kinds)
			fb := make([][]string, 0, len(kinds))
			for _, k := range kinds {
				if p := catalog.Phrase(k); p != "" {
					fb = append(fb, []string{string(k), p})
				}
			}
			fmt.Fprintln(out, titleStyle.Render("Feedback ("+catalog.Language()+")"))
			fmt.Fprintln(out, renderTable([]string{"Kind", "Phrase"}, fb))
			return nil
		},
	}
}

func orAny(lang string) string {
	if lang == "" {
		return "any"
	}
	return lang
}
