package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/ericfisherdev/mergebridge/internal/application"
)

// promptSecretFn reads a secret interactively. Replaced in tests.
var promptSecretFn = func(key string) (string, error) {
	var value string
	err := huh.NewInput().
		Title("Value for " + key).
		EchoMode(huh.EchoModePassword).
		Validate(func(s string) error {
			if strings.TrimSpace(s) == "" {
				return fmt.Errorf("value must not be empty")
			}
			return nil
		}).
		Value(&value).
		Run()
	if err != nil {
		return "", fmt.Errorf("input cancelled")
	}
	return value, nil
}

func newSecretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage encrypted secrets in the local store",
	}
	cmd.AddCommand(newSecretSetCmd(), newSecretGetCmd())
	return cmd
}

func newSecretSetCmd() *cobra.Command {
	var (
		value  string
		verify bool
	)

	cmd := &cobra.Command{
		Use:   "set <key>",
		Short: "Store a secret, prompting for the value when --value is omitted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]

			if value == "" {
				prompted, err := promptSecretFn(key)
				if err != nil {
					return err
				}
				value = prompted
			}

			rt, err := openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			svc := rt.secretService()
			out := cmd.OutOrStdout()

			if key == application.SecretKeySourceControlToken {
				login, err := svc.SaveSourceControlToken(cmd.Context(), value, verify)
				if err != nil {
					return err
				}
				if login != "" {
					fmt.Fprintf(out, "saved %s (authenticated as %s)\n", key, login)
					return nil
				}
				fmt.Fprintf(out, "saved %s\n", key)
				return nil
			}

			if verify {
				return fmt.Errorf("--verify only applies to %s", application.SecretKeySourceControlToken)
			}
			if err := svc.Save(cmd.Context(), key, value); err != nil {
				return err
			}
			fmt.Fprintf(out, "saved %s\n", key)
			return nil
		},
	}

	cmd.Flags().StringVar(&value, "value", "", "Secret value (prompted when omitted)")
	cmd.Flags().BoolVar(&verify, "verify", false, "Verify a GitHub token and store the authenticated login")
	return cmd
}

func newSecretGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print a stored secret, masked",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			masked, ok, err := rt.secretService().LoadMasked(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("secret %q is not set", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), masked)
			return nil
		},
	}
}
