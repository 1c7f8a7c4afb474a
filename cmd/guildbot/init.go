package main

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

var tokenPattern = regexp.MustCompile(`^\d+:[A-Za-z0-9_-]+$`)

// answers collects what the init wizard asks for.
type answers struct {
	Token        string
	BackendURL   string
	PublicURL    string
	Mode         string
	WebhookURL   string
	Bind         string
	BearerToken  string
	UnbanOnAdd   bool
	KickOnBlock  bool
	AuditLog     bool
	TokenFromEnv bool
}

func initCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Interactively write a configuration file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, _ := cmd.Flags().GetString("output")
			force, _ := cmd.Flags().GetBool("force")

			a := answers{
				PublicURL: "https://guild.xyz",
				Mode:      "polling",
				Bind:      "0.0.0.0:8991",
				AuditLog:  true,
			}
			if err := initForm(&a).Run(); err != nil {
				return err
			}
			if err := writeYAML(out, buildConfig(a), force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s. Check it with: guildbot config check %s\n", out, out)
			return nil
		},
	}
	cmd.Flags().StringP("output", "o", "guildbot.yaml", "Where to write the configuration")
	cmd.Flags().Bool("force", false, "Overwrite an existing file")
	return cmd
}

func initForm(a *answers) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Read the bot token from $BOT_TOKEN at runtime?").
				Value(&a.TokenFromEnv),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Bot token").
				Description("From @BotFather, <bot id>:<secret>").
				EchoMode(huh.EchoModePassword).
				Validate(validateToken).
				Value(&a.Token),
		).WithHideFunc(func() bool { return a.TokenFromEnv }),
		huh.NewGroup(
			huh.NewInput().Title("Guild backend URL").Validate(validateURL).Value(&a.BackendURL),
			huh.NewInput().Title("Guild public URL").Validate(validateURL).Value(&a.PublicURL),
			huh.NewSelect[string]().
				Title("How should the bot receive updates?").
				Options(huh.NewOptions("polling", "webhook")...).
				Value(&a.Mode),
		),
		huh.NewGroup(
			huh.NewInput().Title("Public webhook URL").Validate(validateURL).Value(&a.WebhookURL),
		).WithHideFunc(func() bool { return a.Mode != "webhook" }),
		huh.NewGroup(
			huh.NewInput().Title("Control API listen address").Value(&a.Bind),
			huh.NewInput().
				Title("Control API bearer token").
				Description("Leave empty to keep the API open").
				EchoMode(huh.EchoModePassword).
				Value(&a.BearerToken),
			huh.NewConfirm().Title("Unban users when access is granted?").Value(&a.UnbanOnAdd),
			huh.NewConfirm().Title("Kick users from every group when they block the bot?").Value(&a.KickOnBlock),
			huh.NewConfirm().Title("Keep an audit log of admission decisions?").Value(&a.AuditLog),
		),
	)
}

func validateToken(s string) error {
	if !tokenPattern.MatchString(s) {
		return errors.New("expected <bot id>:<secret>")
	}
	return nil
}

func validateURL(s string) error {
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("must be an http(s) URL")
	}
	return nil
}

// buildConfig turns wizard answers into a version 1 configuration document.
func buildConfig(a answers) map[string]any {
	token := a.Token
	if a.TokenFromEnv {
		token = "${BOT_TOKEN}"
	}
	bot := map[string]any{
		"token":         token,
		"mode":          a.Mode,
		"unban_on_add":  a.UnbanOnAdd,
		"kick_on_block": a.KickOnBlock,
	}
	gateway := map[string]any{"bind": a.Bind}
	if a.Mode == "webhook" {
		bot["webhook_url"] = a.WebhookURL
		bot["webhook_secret"] = "${TELEGRAM_WEBHOOK_SECRET:-}"
	}
	if a.BearerToken != "" {
		gateway["auth"] = map[string]any{"bearer_token": a.BearerToken}
	}
	modules := map[string]any{
		"backend.guild": map[string]any{
			"url":        a.BackendURL,
			"public_url": a.PublicURL,
		},
		"bot.telegram": bot,
		"gateway.http": gateway,
	}
	if a.AuditLog {
		modules["audit.sqlite"] = map[string]any{"retention": "720h"}
	}
	return map[string]any{
		"version": "1",
		"modules": modules,
	}
}
