// tokman is the operational CLI: rotate or inspect signing keys, and sign or
// verify tokens against the configured store.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/tokman"
	"github.com/dropDatabas3/tokman/internal/config"
	"github.com/dropDatabas3/tokman/internal/observability/logger"
)

func main() {
	_ = godotenv.Load()

	var cfgPath string

	root := &cobra.Command{
		Use:           "tokman",
		Short:         "Manage service signing keys and tokens",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", os.Getenv("TOKMAN_CONFIG"), "path to YAML config")

	open := func() (*tokman.Manager, error) {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return nil, err
		}
		logger.Init(logger.Config{Env: cfg.App.Env, Level: "warn", ServiceName: cfg.Service.Name})
		return tokman.Open(cfg)
	}

	keysCmd := &cobra.Command{Use: "keys", Short: "Signing key operations"}

	keysCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the active key id",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := open()
			if err != nil {
				return err
			}
			defer mgr.Close()
			kid, err := mgr.ActiveKeyID(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println(kid)
			return nil
		},
	})

	keysCmd.AddCommand(&cobra.Command{
		Use:   "rotate",
		Short: "Generate a new active key; the old one stays verifiable until its retirement TTL",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := open()
			if err != nil {
				return err
			}
			defer mgr.Close()
			pair, err := mgr.RotateKeys(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println(pair.KID)
			return nil
		},
	})

	var audience string
	var claimFlags []string
	signCmd := &cobra.Command{
		Use:   "sign",
		Short: "Sign a token with ad-hoc claims",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := open()
			if err != nil {
				return err
			}
			defer mgr.Close()

			claims := map[string]any{"aud": audience}
			for _, kv := range claimFlags {
				k, v, ok := strings.Cut(kv, "=")
				if !ok {
					return fmt.Errorf("bad claim %q, want key=value", kv)
				}
				claims[k] = v
			}
			tok, err := mgr.Encode(cmd.Context(), claims)
			if err != nil {
				return err
			}
			fmt.Println(tok)
			return nil
		},
	}
	signCmd.Flags().StringVar(&audience, "aud", "", "audience service name (required)")
	signCmd.Flags().StringArrayVar(&claimFlags, "claim", nil, "extra claim as key=value (repeatable)")
	_ = signCmd.MarkFlagRequired("aud")

	verifyCmd := &cobra.Command{
		Use:   "verify <token>",
		Short: "Verify a token and print its claims",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := open()
			if err != nil {
				return err
			}
			defer mgr.Close()

			claims, _, err := mgr.Decode(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out, _ := json.MarshalIndent(claims, "", "  ")
			fmt.Println(string(out))
			return nil
		},
	}

	tokenCmd := &cobra.Command{Use: "token", Short: "Token operations"}
	tokenCmd.AddCommand(signCmd, verifyCmd)
	root.AddCommand(keysCmd, tokenCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "tokman:", err)
		os.Exit(1)
	}
}
