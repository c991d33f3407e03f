package main

import (
	"errors"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"credence/internal/retrieval"
	"credence/internal/store"
	"credence/internal/types"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// uploadCmd stores a file and registers it as a group document
var uploadCmd = &cobra.Command{
	Use:   "upload [file]",
	Short: "Upload a file into a group's documents",
	Long: `Copies a file into the blob store and records it in the documents table.
With --inline the file's text is stored in the row itself instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runUpload,
}

// migrateCmd upgrades a legacy documents table
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Upgrade a legacy documents table to storage locators",
	Long: `Adds documents.storage_path when it is missing and backfills it from
each row's access_url. Rows whose URL yields no locator are left empty
and reported.`,
	RunE: runMigrate,
}

// seedCmd writes default permissions and optional fixtures
var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed role permissions, and optionally a group, user and membership",
	Long: `Writes the default role permission table. When --group is set the group
is created; when --user is also set the user is created and added with --role.

Example:
  credence seed --group g1 --group-name "Field Ops" --user u1 --email ana@example.com --role manager`,
	RunE: runSeed,
}

func init() {
	uploadCmd.Flags().String("group", "", "Group ID")
	uploadCmd.Flags().String("title", "", "Document title (defaults to the file name)")
	uploadCmd.Flags().Bool("inline", false, "Store the text in the documents row")
	_ = uploadCmd.MarkFlagRequired("group")

	seedCmd.Flags().String("group", "", "Group ID to create")
	seedCmd.Flags().String("group-name", "", "Group display name")
	seedCmd.Flags().String("user", "", "User ID to create and add to the group")
	seedCmd.Flags().String("email", "", "User email")
	seedCmd.Flags().String("handle", "", "User handle")
	seedCmd.Flags().String("name", "", "User display name")
	seedCmd.Flags().String("role", string(types.RoleMember), "Membership role")
}

func runUpload(cmd *cobra.Command, args []string) error {
	group, _ := cmd.Flags().GetString("group")
	title, _ := cmd.Flags().GetString("title")
	inline, _ := cmd.Flags().GetBool("inline")
	ctx := cmd.Context()

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	name := filepath.Base(args[0])
	if title == "" {
		title = name
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	doc := types.DocumentRef{
		ID:        uuid.NewString(),
		GroupID:   group,
		Title:     title,
		MediaType: mime.TypeByExtension(strings.ToLower(filepath.Ext(name))),
		SizeBytes: int64(len(data)),
	}

	if inline {
		if !utf8.Valid(data) {
			return fmt.Errorf("%s is not UTF-8 text; upload it without --inline", name)
		}
		doc.IsInlineContent = true
		doc.InlineText = string(data)
	} else {
		blobs, err := store.NewFSBlobStore(cfg.Store.BlobRoot)
		if err != nil {
			return fmt.Errorf("failed to open blob store: %w", err)
		}
		doc.StorageLocator = path.Join(group, doc.ID, name)
		if err := blobs.Put(ctx, doc.StorageLocator, data); err != nil {
			return fmt.Errorf("failed to store blob: %w", err)
		}
	}

	if err := st.AddDocument(ctx, doc, ""); err != nil {
		return fmt.Errorf("failed to record document: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s, %s)\n",
		okStyle.Render("uploaded"), title, doc.ID, humanize.Bytes(uint64(doc.SizeBytes)))
	return nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	out := cmd.OutOrStdout()
	if !st.LegacyDocuments() {
		fmt.Fprintln(out, mutedStyle.Render("documents table is already current"))
		return nil
	}

	res, err := st.UpgradeDocuments(cmd.Context(), retrieval.LocatorFromAccessURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("schema v%d -> v%d", res.FromVersion, res.ToVersion)))
	fmt.Fprintf(out, "backfilled:   %d\n", res.Backfilled)
	if res.Unresolvable > 0 {
		fmt.Fprintln(out, warnStyle.Render(fmt.Sprintf("unresolvable: %d", res.Unresolvable)))
	}
	fmt.Fprintln(out, mutedStyle.Render("took "+res.Duration.String()))
	return nil
}

func runSeed(cmd *cobra.Command, args []string) error {
	groupID, _ := cmd.Flags().GetString("group")
	groupName, _ := cmd.Flags().GetString("group-name")
	userID, _ := cmd.Flags().GetString("user")
	email, _ := cmd.Flags().GetString("email")
	handle, _ := cmd.Flags().GetString("handle")
	name, _ := cmd.Flags().GetString("name")
	role, _ := cmd.Flags().GetString("role")
	ctx := cmd.Context()

	if userID != "" && groupID == "" {
		return fmt.Errorf("--user requires --group")
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	out := cmd.OutOrStdout()
	if err := st.SeedDefaults(ctx); err != nil {
		return fmt.Errorf("failed to seed permissions: %w", err)
	}
	fmt.Fprintln(out, okStyle.Render("seeded role permissions"))

	if groupID == "" {
		return nil
	}
	if groupName == "" {
		groupName = groupID
	}
	if g, err := st.GetGroup(ctx, groupID); err == nil {
		fmt.Fprintf(out, "group %s (%s) already exists\n", g.ID, g.Name)
	} else if !errors.Is(err, types.ErrNotFound) {
		return fmt.Errorf("failed to look up group: %w", err)
	} else {
		if err := st.CreateGroup(ctx, types.Group{ID: groupID, Name: groupName}); err != nil {
			return fmt.Errorf("failed to create group: %w", err)
		}
		fmt.Fprintf(out, "group %s (%s)\n", groupID, groupName)
	}

	if userID == "" {
		return nil
	}
	if err := st.CreateUser(ctx, types.User{ID: userID, Email: email, Handle: handle, Name: name}); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	if err := st.AddMember(ctx, groupID, userID, types.Role(strings.ToLower(role))); err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}
	fmt.Fprintf(out, "user %s joined %s as %s\n", userID, groupID, strings.ToLower(role))
	return nil
}
