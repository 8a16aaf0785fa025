package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"chatsync/database"
	"chatsync/models"
)

func init() {
	loginCmd.Flags().StringP("username", "u", "", "account username")
	loginCmd.Flags().StringP("token", "t", "", "API token issued by the server")
	loginCmd.MarkFlagRequired("username")
	loginCmd.MarkFlagRequired("token")

	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd)
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store the identity used to connect",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		username, _ := cmd.Flags().GetString("username")
		token, _ := cmd.Flags().GetString("token")
		id := models.Identity{Username: strings.TrimSpace(username), Token: strings.TrimSpace(token)}
		if !id.Valid() {
			return errors.New("username and token must not be blank")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Save(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", id.Username)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored identity",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Clear(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Print the stored username",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		id, err := store.Load(cmd.Context())
		if errors.Is(err, database.ErrNoIdentity) {
			fmt.Fprintln(cmd.OutOrStdout(), "Not signed in")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), id.Username)
		return nil
	},
}
