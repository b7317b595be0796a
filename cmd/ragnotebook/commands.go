package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"ragnotebook/internal/chat"
	"ragnotebook/internal/config"
	"ragnotebook/internal/domain"
)

func newAskCmd() *cobra.Command {
	var topK int
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question about the indexed documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(true)
			if err != nil {
				return err
			}
			defer a.close()

			if cmd.Flags().Changed("top-k") {
				a.chat = chat.New(a.settings, a.client, chat.WithTopK(topK), chat.WithLogger(a.log))
			}
			msg, err := a.chat.Submit(cmd.Context(), strings.Join(args, " "))
			if msg.ID == "" {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg.Content)
			if len(msg.Sources) > 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "\nSources:")
				for _, s := range msg.Sources {
					fmt.Fprintln(cmd.OutOrStdout(), "  -", s)
				}
			}
			return err
		},
	}
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of chunks to retrieve (overrides config)")
	return cmd
}

func newUploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload [file...]",
		Short: "Upload and index one or more documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(true)
			if err != nil {
				return err
			}
			defer a.close()

			var failed int
			for _, path := range args {
				f, err := domain.FileFromPath(path)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
					failed++
					continue
				}
				a.docs.SelectFile(f)
				doc, err := a.docs.Upload(cmd.Context())
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", f.Name, err)
					failed++
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s indexed as %s (%d chunks)\n", doc.Name, doc.ID, doc.ChunkCount)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d uploads failed", failed, len(args))
			}
			return nil
		},
	}
}

func newDocsCmd() *cobra.Command {
	docs := &cobra.Command{
		Use:   "docs",
		Short: "Manage indexed documents",
	}

	var filter string
	list := &cobra.Command{
		Use:   "list",
		Short: "List indexed documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(true)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.docs.Refresh(cmd.Context()); err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSIZE\tCHUNKS\tUPLOADED")
			for _, d := range a.docs.Filter(filter) {
				uploaded := "-"
				if !d.UploadedAt.IsZero() {
					uploaded = humanize.Time(d.UploadedAt)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", d.ID, d.Name, humanize.Bytes(uint64(max(d.SizeBytes, 0))), d.ChunkCount, uploaded)
			}
			return w.Flush()
		},
	}
	list.Flags().StringVarP(&filter, "filter", "f", "", "Only show documents whose name contains this text")

	rm := &cobra.Command{
		Use:   "rm [id...]",
		Short: "Delete documents by id",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(true)
			if err != nil {
				return err
			}
			defer a.close()

			var errs []error
			for _, id := range args {
				if err := a.docs.Remove(cmd.Context(), id); err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", id, err))
					continue
				}
				fmt.Fprintln(cmd.OutOrStdout(), "deleted", id)
			}
			return errors.Join(errs...)
		},
	}

	docs.AddCommand(list, rm)
	return docs
}

func newTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Test connectivity to the LLM endpoint and the vector store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(true)
			if err != nil {
				return err
			}
			defer a.close()

			checks := []struct {
				name string
				run  func() error
			}{
				{"LLM endpoint", func() error { return a.settings.TestLLM(cmd.Context()) }},
				{"Vector store", func() error { return a.settings.TestVectorStore(cmd.Context()) }},
			}
			var failed bool
			for _, c := range checks {
				if err := c.run(); err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "%-14s %s %v\n", c.name, color.RedString("error:"), err)
					failed = true
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-14s %s\n", c.name, color.GreenString("ok"))
			}
			if failed {
				return errors.New("connectivity test failed")
			}
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the backend health report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(true)
			if err != nil {
				return err
			}
			defer a.close()

			h, err := a.client.Health(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "backend:      %s (%s)\n", h.Status, a.client.BaseURL())
			fmt.Fprintf(out, "vector store: %s\n", h.VectorStore)
			if len(h.EmbeddingModelsLoaded) > 0 {
				fmt.Fprintf(out, "models:       %s\n", strings.Join(h.EmbeddingModelsLoaded, ", "))
			}
			if h.Error != "" {
				fmt.Fprintf(out, "error:        %s\n", h.Error)
			}
			return nil
		},
	}
}

func newConfigCmd() *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cfgPath
			if path == "" {
				p, err := config.DefaultUserConfigPath()
				if err != nil {
					return err
				}
				path = p
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.Save(path, config.Default()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "wrote", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")

	cfgCmd.AddCommand(initCmd)
	return cfgCmd
}
