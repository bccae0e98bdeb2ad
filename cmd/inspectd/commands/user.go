package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/inspectd/pkg/auth"
	"github.com/marmos91/inspectd/pkg/config"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "List registered usernames",
	Long: `List the usernames registered in the credential store.

Accounts are created automatically the first time a client logs in with an
unknown username, so this list grows as clients connect.`,
	RunE: runUsers,
}

func runUsers(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	store := auth.NewCredentialStore(cfg.Storage.UsersFile)
	usernames, err := store.Usernames()
	if err != nil {
		return fmt.Errorf("failed to read credential store: %w", err)
	}

	if len(usernames) == 0 {
		fmt.Println("No users registered")
		return nil
	}

	for _, name := range usernames {
		fmt.Println(name)
	}
	return nil
}
