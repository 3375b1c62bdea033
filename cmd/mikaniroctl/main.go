package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cocdeshijie/MikaniroBytes/config"
	"github.com/cocdeshijie/MikaniroBytes/internal/app"
	"github.com/cocdeshijie/MikaniroBytes/internal/service"
	"github.com/cocdeshijie/MikaniroBytes/internal/storage"
	"github.com/cocdeshijie/MikaniroBytes/model"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "mikaniroctl: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "mikaniroctl",
		Short:        "MikaniroBytes operator CLI",
		SilenceUsage: true,
	}
	cmd.AddCommand(
		newInitDBCmd(),
		newImportCmd(),
		newRenderTemplateCmd(),
	)
	return cmd
}

func newInitDBCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-db",
		Short: "Create the schema and seed built-in groups, users and settings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			cfg.PreviewMode = config.PreviewModeOff
			a, err := app.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "database ready (%s), admin user %q\n", cfg.DBDriver, cfg.AdminUsername)
			return nil
		},
	}
}

func newImportCmd() *cobra.Command {
	var username string
	cmd := &cobra.Command{
		Use:   "import <archive>",
		Short: "Import a .zip/.tar/.tar.gz archive on behalf of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			info, err := f.Stat()
			if err != nil {
				return err
			}

			a, err := app.New(cmd.Context(), config.Load())
			if err != nil {
				return err
			}
			// Close 会等待本地缩略图任务完成
			defer a.Close()

			var user model.User
			err = a.DB.WithContext(cmd.Context()).Where("username = ?", username).First(&user).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("user %q not found", username)
			}
			if err != nil {
				return err
			}

			report, err := a.Upload.BulkImport(cmd.Context(), user.ID, service.BulkInput{
				Filename: filepath.Base(args[0]),
				Archive:  f,
				Size:     info.Size(),
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), report.Text)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "user", "u", "admin", "Owner of the imported files")
	return cmd
}

func newRenderTemplateCmd() *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "render-template <template>",
		Short: "Print the directory a path template renders to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now().UTC()
			if at != "" {
				parsed, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("invalid --at: %w", err)
				}
				now = parsed.UTC()
			}
			out := storage.RenderPathTemplate(args[0], now)
			if out == "" {
				out = storage.RenderPathTemplate(model.DefaultPathTemplate, now)
				fmt.Fprintf(cmd.ErrOrStderr(), "template renders to the upload root, showing %s instead\n", model.DefaultPathTemplate)
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "Render at this RFC3339 time instead of now")
	return cmd
}
