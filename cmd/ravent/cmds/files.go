package cmds

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/ravent/pkg/files"
	"github.com/go-go-golems/ravent/pkg/gateway"
	"github.com/go-go-golems/ravent/pkg/ui"
)

func newFilesCommand(r *root) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "files",
		Short: "Manage the documents the assistant answers from",
	}
	cmd.AddCommand(
		newFilesListCommand(r),
		newFilesUploadCommand(r),
		newFilesDeleteCommand(r),
		newFilesBrowseCommand(r),
	)
	return cmd
}

func newFilesListCommand(r *root) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List uploaded files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutput(output); err != nil {
				return err
			}
			a := r.app
			if err := a.RequireSession(cmd.Context()); err != nil {
				return err
			}
			recs, err := a.Files.List(cmd.Context())
			if err != nil {
				return explain(err, files.ListFailedMessage)
			}
			if recs == nil {
				recs = []files.FileRecord{}
			}
			if output != outputText {
				return writeStructured(a.Out, output, recs)
			}
			if len(recs) == 0 {
				a.Printf("No files uploaded yet.\n")
				return nil
			}
			tw := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "ID\tNAME\tUPLOADED")
			for _, rec := range recs {
				uploaded := ""
				if !rec.UploadedAt.IsZero() {
					uploaded = rec.UploadedAt.Local().Format("2006-01-02 15:04")
				}
				_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\n", rec.ID, rec.Name(), uploaded)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", outputText, "Output format (text, yaml, json)")
	return cmd
}

func newFilesUploadCommand(r *root) *cobra.Command {
	return &cobra.Command{
		Use:   "upload PATH...",
		Short: "Upload PDF, DOCX or TXT files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := r.app
			if err := a.RequireSession(cmd.Context()); err != nil {
				return err
			}
			for _, arg := range args {
				p, err := homedir.Expand(arg)
				if err != nil {
					return err
				}
				if !files.Supported(p) {
					return &UserError{Message: files.UploadFailedMessage, Cause: errors.Wrap(files.ErrUnsupportedType, p)}
				}
				rec, err := a.Files.Upload(cmd.Context(), p)
				if err != nil {
					return explain(err, files.UploadFailedMessage)
				}
				a.Printf("Uploaded %s (#%d).\n", rec.Name(), rec.ID)
			}
			return nil
		},
	}
}

func newFilesDeleteCommand(r *root) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete an uploaded file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil || id <= 0 {
				return errors.Errorf("invalid file id %q", args[0])
			}
			a := r.app
			if err := a.RequireSession(cmd.Context()); err != nil {
				return err
			}
			if !yes {
				ok, err := a.prompter().confirm(fmt.Sprintf("Delete file #%d?", id))
				if err != nil {
					return err
				}
				if !ok {
					a.Printf("Cancelled.\n")
					return nil
				}
			}
			if err := a.Files.Delete(cmd.Context(), id); err != nil {
				return explain(err, files.DeleteFailedMessage)
			}
			a.Printf("Deleted file #%d.\n", id)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}

func newFilesBrowseCommand(r *root) *cobra.Command {
	return &cobra.Command{
		Use:         "browse",
		Short:       "Browse, upload and delete files in a full-screen view",
		Args:        cobra.NoArgs,
		Annotations: tuiAnnotation(),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := r.app
			if err := a.RequireSession(cmd.Context()); err != nil {
				return err
			}
			if !a.Interactive() {
				return errors.New("files browse needs a terminal; use `ravent files list`")
			}
			model := ui.NewFilesModel(cmd.Context(), a.Files)
			final, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
			if err != nil {
				return errors.Wrap(err, "files view")
			}
			if fm, ok := final.(ui.FilesModel); ok && fm.SessionExpired() {
				return &UserError{Message: gateway.SessionExpiredErrorMessage + " Run `ravent login`.", Cause: gateway.ErrSessionInvalid}
			}
			return nil
		},
	}
}
