package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/qomolangma-jp/alumni-komatsu-liff/internal/content"
	"github.com/qomolangma-jp/alumni-komatsu-liff/internal/format"
	"github.com/qomolangma-jp/alumni-komatsu-liff/internal/i18n"
	"github.com/qomolangma-jp/alumni-komatsu-liff/internal/registration"
)

func newStatusCmd(opts *rootOptions) *cobra.Command {
	var lang string
	cmd := &cobra.Command{
		Use:   "status <lineUserId>",
		Short: "Print the registration summary the form would show for a LINE user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadRuntime(opts)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			api, err := newRegistrationAPI(cfg, logger)
			if err != nil {
				return err
			}
			bundle, err := i18n.Load(cfg.Resources.LocalesDir, cfg.Resources.DefaultLocale, []string{"ja", "en"})
			if err != nil {
				return err
			}
			notices := content.NewLibrary(cfg.Resources.ContentDir, bundle.Fallback(), content.WithoutCache())

			if lang == "" {
				lang = cfg.Resources.DefaultLocale
			}
			if normalized := bundle.Normalize(lang); normalized != "" {
				lang = normalized
			} else {
				lang = bundle.Fallback()
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Registration.APITimeout)
			defer cancel()
			status, err := api.CheckRegistration(ctx, args[0])
			if err != nil {
				logger.Error("registration check failed", zap.String("line_user_id", args[0]), zap.Error(err))
				return fmt.Errorf("check registration: %w", err)
			}
			return printStatus(cmd.OutOrStdout(), bundle, notices, lang, status)
		},
	}
	cmd.Flags().StringVar(&lang, "lang", "", "locale used for labels (defaults to LIFF_DEFAULT_LOCALE)")
	return cmd
}

func printStatus(out io.Writer, bundle *i18n.Bundle, notices *content.Library, lang string, status registration.RegistrationStatus) error {
	if !status.Registered {
		_, err := fmt.Fprintln(out, "not registered")
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, row := range registration.Summary(status.User) {
		value := format.FmtSummaryValue(row, lang)
		if value == "" {
			value = bundle.T(lang, "format.empty")
		}
		if _, err := fmt.Fprintf(tw, "%s\t%s\n", bundle.T(lang, "registration.summary."+row.ID), value); err != nil {
			return err
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if notice := notices.Lookup(content.SlugSupport, lang); notice.Text != "" {
		if _, err := fmt.Fprintf(out, "\n%s\n", notice.Text); err != nil {
			return err
		}
	}
	return nil
}
