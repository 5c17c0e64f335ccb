package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aquilax/treeboard/log"
	"github.com/aquilax/treeboard/qrcode"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const (
	Version = "0.1.0"
	appName = "treeboard"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Campus tree catalog",
		Long: `Treeboard serves a catalog of campus trees. Visitors reach a tree page by
scanning its QR code, like it and share memories; administrators add and
remove trees and print the codes.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), configPath)
		},
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if os.Getenv("GO_ENV") != "" {
			log.Plain()
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the web server",
			RunE: func(cmd *cobra.Command, args []string) error {
				return serve(cmd.Context(), configPath)
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Create or update the database schema",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withBoard(configPath, func(l *TreeBoard) error {
					if err := l.Migrate(cmd.Context()); err != nil {
						return err
					}
					log.Info.Printf("schema up to date")
					return nil
				})
			},
		},
		qrCmd(&configPath),
		adminCmd(&configPath),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, Version)
			},
		},
	)
	return cmd
}

func withBoard(configPath string, fn func(l *TreeBoard) error) error {
	c, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	l, err := NewTreeBoard(c)
	if err != nil {
		return err
	}
	defer l.Close()
	return fn(l)
}

func serve(ctx context.Context, configPath string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return withBoard(configPath, func(l *TreeBoard) error {
		if err := l.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		srv := l.Server(l.config.Server)
		errc := make(chan error, 1)
		go func() {
			log.Info.Printf("Starting server at %s", srv.Addr)
			errc <- srv.ListenAndServe()
		}()
		select {
		case err := <-errc:
			return err
		case <-ctx.Done():
		}
		log.Info.Printf("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
}

func qrCmd(configPath *string) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "qr <tree-id>...",
		Short: "Write the QR code PNG for each tree",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBoard(*configPath, func(l *TreeBoard) error {
				if l.config.Site.BaseURL == "" {
					return errors.New("site.base_url is required to print QR codes")
				}
				for _, id := range args {
					t, err := l.db.GetTree(cmd.Context(), id)
					if err != nil {
						return fmt.Errorf("tree %s: %w", id, err)
					}
					png, err := qrcode.Render(treeURL(l.config.Site.BaseURL, t.ID), l.qr)
					if err != nil {
						return err
					}
					name := filepath.Join(out, qrFilename(t.Name))
					if err := os.WriteFile(name, png, 0o644); err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", ".", "Output directory")
	return cmd
}

func adminCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage administrator accounts",
	}
	var password string
	add := &cobra.Command{
		Use:   "add <email>",
		Short: "Create an administrator account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
				pw, err := term.ReadPassword(int(os.Stdin.Fd()))
				fmt.Fprintln(cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				password = string(pw)
			}
			return withBoard(*configPath, func(l *TreeBoard) error {
				if err := l.Migrate(cmd.Context()); err != nil {
					return err
				}
				if err := l.auth.Register(cmd.Context(), args[0], password); err != nil {
					return err
				}
				log.Info.Printf("administrator %s added", args[0])
				return nil
			})
		},
	}
	add.Flags().StringVarP(&password, "password", "p", "", "Password (prompted when empty)")
	cmd.AddCommand(add)
	return cmd
}
