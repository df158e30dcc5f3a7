package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/jason-s-yu/codeduel/internal/auth"
	"github.com/jason-s-yu/codeduel/internal/config"
	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token PLAYER_ID",
	Args:  cobra.ExactArgs(1),
	Short: "Print a signed auth token for a player",
	Long: `Prints a token signed with the configured key pair. The server must be
configured with the same private_key_path and public_key_path to accept it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("parse player id: %w", err)
		}
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if cfg.Auth.PrivateKeyPath == "" {
			return fmt.Errorf("auth.private_key_path must be set to mint tokens")
		}
		if err := initAuth(cfg); err != nil {
			return err
		}
		token, err := auth.CreateJWT(id)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}
