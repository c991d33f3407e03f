package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"credence/internal/assistant"
	"credence/internal/types"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

// askCmd sends one message through the pipeline
var askCmd = &cobra.Command{
	Use:   "ask [message]",
	Short: "Send one chat message to a group as a user",
	Long: `Runs a single message through intent routing, document resolution,
context assembly, the model, and command execution, then prints the reply.

Example:
  credence ask --group g1 --user u1 "summarize the Q3 budget file"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

// filesCmd lists a group's documents
var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "List a group's documents, most recent first",
	RunE:  runFiles,
}

func init() {
	askCmd.Flags().String("group", "", "Group ID")
	askCmd.Flags().String("user", "", "Caller user ID")
	askCmd.Flags().String("name", "", "Caller display name")
	askCmd.Flags().String("email", "", "Caller email")
	askCmd.Flags().Int("width", 80, "Word wrap width for the rendered reply")
	askCmd.Flags().Bool("raw", false, "Print the reply without markdown rendering")
	_ = askCmd.MarkFlagRequired("group")
	_ = askCmd.MarkFlagRequired("user")

	filesCmd.Flags().String("group", "", "Group ID")
	_ = filesCmd.MarkFlagRequired("group")
}

func runAsk(cmd *cobra.Command, args []string) error {
	group, _ := cmd.Flags().GetString("group")
	user, _ := cmd.Flags().GetString("user")
	name, _ := cmd.Flags().GetString("name")
	email, _ := cmd.Flags().GetString("email")
	width, _ := cmd.Flags().GetInt("width")
	raw, _ := cmd.Flags().GetBool("raw")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	resp, err := a.service.Handle(ctx, assistant.Request{
		Caller:  types.Caller{UserID: user, Name: name, Email: email},
		GroupID: group,
		Message: strings.Join(args, " "),
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if raw {
		fmt.Fprintln(out, resp.ResponseText)
	} else {
		fmt.Fprintln(out, renderMarkdown(resp.ResponseText, width))
	}
	if resp.IsCommand {
		fmt.Fprintln(out, okStyle.Render("command executed"))
	}
	if resp.RequiresPermission != "" {
		fmt.Fprintln(out, warnStyle.Render("requires permission: "+resp.RequiresPermission))
	}
	return nil
}

func runFiles(cmd *cobra.Command, args []string) error {
	group, _ := cmd.Flags().GetString("group")

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	docs, err := st.ListDocuments(cmd.Context(), group, cfg.Context.ListLimit)
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("Documents in %s (%d)", group, len(docs))))
	if len(docs) == 0 {
		fmt.Fprintln(out, mutedStyle.Render(assistant.NoFilesText))
		return nil
	}
	now := time.Now()
	for _, d := range docs {
		kind := d.MediaType
		if d.IsInlineContent {
			kind = "note"
		}
		fmt.Fprintf(out, "%-40s %s\n", d.Title, mutedStyle.Render(fmt.Sprintf("%s  %s  %s  %s",
			d.ID, kind, humanize.Bytes(uint64(d.SizeBytes)), humanize.RelTime(d.UploadedAt, now, "ago", "from now"))))
	}
	return nil
}
