package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"resumind/internal/intake"
	"resumind/internal/resumes"
)

func newSubmitCommand(opts *Options) *cobra.Command {
	var sub resumes.Submission
	cmd := &cobra.Command{
		Use:   "submit [resume.pdf]",
		Short: "Upload a PDF resume and request feedback",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := serviceFromContext(cmd.Context())
			if err != nil {
				return err
			}
			file, err := readFile(args[0])
			if err != nil {
				return err
			}
			summary := intake.Describe(file)
			out := cmd.OutOrStdout()
			if !opts.JSON {
				fmt.Fprintf(out, "%s (%s)\n", summary.Name, summary.Size)
			}

			sub.File = file
			outcome := svc.Submit(cmd.Context(), opts.User, sub, func(status string) {
				if !opts.JSON {
					fmt.Fprintln(out, status)
				}
			})
			if opts.JSON {
				if err := writeJSON(out, outcome); err != nil {
					return err
				}
			} else if outcome.ID != "" {
				fmt.Fprintf(out, "id: %s\n", outcome.ID)
			}
			if !outcome.OK() {
				for _, a := range outcome.Recovery {
					fmt.Fprintf(cmd.ErrOrStderr(), "  %s: %s\n", a.Label, a.Href)
				}
				return errors.New(outcome.Status)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sub.CompanyName, "company", "", "company name")
	cmd.Flags().StringVar(&sub.JobTitle, "title", "", "job title")
	cmd.Flags().StringVar(&sub.JobDescription, "description", "", "job description")
	return cmd
}

func newListCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored resume records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := serviceFromContext(cmd.Context())
			if err != nil {
				return err
			}
			listing := svc.List(cmd.Context(), opts.User)
			if listing.Err != nil {
				return fmt.Errorf("failed to load resumes: %w", listing.Err)
			}
			out := cmd.OutOrStdout()
			if opts.JSON {
				return writeJSON(out, listing.Entries)
			}
			if len(listing.Entries) == 0 {
				fmt.Fprintln(out, "no resumes")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCOMPANY\tTITLE\tSCORE")
			for _, e := range listing.Entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Record.ID, dash(e.Record.CompanyName), dash(e.Record.JobTitle), score(e.Record))
			}
			return tw.Flush()
		},
	}
}

func newShowCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "show [id]",
		Short: "Print the feedback stored for one resume",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := serviceFromContext(cmd.Context())
			if err != nil {
				return err
			}
			rec, err := svc.Get(cmd.Context(), opts.User, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.JSON {
				return writeJSON(out, rec)
			}
			fmt.Fprintf(out, "%s  %s / %s  score %s\n", rec.ID, dash(rec.CompanyName), dash(rec.JobTitle), score(rec))
			if rec.Feedback == nil {
				fmt.Fprintln(out, "no feedback yet")
				return nil
			}
			sections := []struct {
				name string
				s    resumes.Section
			}{
				{"ATS", rec.Feedback.ATS},
				{"Tone & style", rec.Feedback.ToneAndStyle},
				{"Content", rec.Feedback.Content},
				{"Structure", rec.Feedback.Structure},
				{"Skills", rec.Feedback.Skills},
			}
			for _, sec := range sections {
				fmt.Fprintf(out, "\n%s (%g)\n", sec.name, sec.s.Score)
				for _, tip := range sec.s.Tips {
					mark := "+"
					if tip.Type == resumes.TipImprove {
						mark = "!"
					}
					fmt.Fprintf(out, "  %s %s\n", mark, tip.Tip)
				}
			}
			return nil
		},
	}
}

// confirmFunc asks the operator to approve a destructive action.
type confirmFunc func(label string) (bool, error)

func newWipeCommand(opts *Options, confirm confirmFunc) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "wipe",
		Short: "Delete every stored file and record for the user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := serviceFromContext(cmd.Context())
			if err != nil {
				return err
			}
			if !yes {
				ok, err := confirm(fmt.Sprintf("Wipe all resumes for %s", opts.User))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "aborted")
					return nil
				}
			}
			report, err := svc.Purge(cmd.Context(), opts.User, resumes.PurgeRequest{Confirmed: true})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.JSON {
				return writeJSON(out, report)
			}
			fmt.Fprintf(out, "files: %d attempted, %d failed\n", report.BlobsAttempted, report.BlobsFailed)
			if report.FlushFailed {
				fmt.Fprintln(out, "records: flush failed")
			}
			fmt.Fprintf(out, "remaining: %d\n", len(report.Listing.Entries))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func promptConfirm(label string) (bool, error) {
	p := promptui.Prompt{Label: label, IsConfirm: true}
	if _, err := p.Run(); err != nil {
		if errors.Is(err, promptui.ErrAbort) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func readFile(path string) (*intake.File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	ct := ""
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		ct = intake.PDFContentType
	}
	return &intake.File{Name: filepath.Base(path), ContentType: ct, Data: data}, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func dash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func score(rec resumes.ResumeRecord) string {
	if rec.Feedback == nil {
		return "-"
	}
	return fmt.Sprintf("%g", rec.Feedback.OverallScore)
}
