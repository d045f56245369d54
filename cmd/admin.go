package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-account/app/dto"
	"github.com/vibast-solutions/ms-go-account/app/secret"
	"github.com/vibast-solutions/ms-go-account/app/service"
	"github.com/vibast-solutions/ms-go-account/app/types"
	"github.com/vibast-solutions/ms-go-account/config"

	"github.com/spf13/cobra"
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Inspect and repair accounts",
}

var adminListCmd = &cobra.Command{
	Use:   "list",
	Short: "List accounts, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		adminService, release, err := newAdminServiceForCommands()
		if err != nil {
			return err
		}
		defer release()

		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")
		req := &types.ListAccountsRequest{Limit: limit, Offset: offset}
		if err = req.Validate(); err != nil {
			return err
		}

		views, err := adminService.ListAccounts(cmd.Context(), req)
		if err != nil {
			return err
		}
		for _, view := range views {
			printAccount(cmd.OutOrStdout(), view)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d account(s)\n", len(views))
		return nil
	},
}

var adminShowCmd = &cobra.Command{
	Use:   "show <email>",
	Short: "Show the account holding an email address",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		adminService, release, err := newAdminServiceForCommands()
		if err != nil {
			return err
		}
		defer release()

		view, err := adminService.FindAccountByEmail(cmd.Context(), args[0])
		if err != nil {
			if errors.Is(err, service.ErrAccountNotFound) {
				return fmt.Errorf("no account with email %q", args[0])
			}
			return err
		}
		printAccount(cmd.OutOrStdout(), view)
		return nil
	},
}

var adminSetPasswordCmd = &cobra.Command{
	Use:   "set-password <email>",
	Short: "Set a new password for an account and end its sessions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		adminService, release, err := newAdminServiceForCommands()
		if err != nil {
			return err
		}
		defer release()

		password, err := promptPassword(cmd.InOrStdin(), cmd.OutOrStdout())
		if err != nil {
			return err
		}

		req := &types.AdminSetPasswordRequest{Email: args[0], NewPassword: password}
		if err = req.Validate(); err != nil {
			return err
		}
		if err = adminService.SetPassword(cmd.Context(), req); err != nil {
			if errors.Is(err, service.ErrAccountNotFound) {
				return fmt.Errorf("no account with email %q", args[0])
			}
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "password updated for %s\n", args[0])
		return nil
	},
}

var adminDeleteCmd = &cobra.Command{
	Use:   "delete <account_id>",
	Short: "Delete an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		adminService, release, err := newAdminServiceForCommands()
		if err != nil {
			return err
		}
		defer release()

		if err = adminService.DeleteAccount(cmd.Context(), args[0]); err != nil {
			if errors.Is(err, service.ErrAccountNotFound) {
				return fmt.Errorf("account %q not found", args[0])
			}
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "deleted account %s\n", args[0])
		return nil
	},
}

func init() {
	adminListCmd.Flags().Int("limit", service.DefaultPageSize, "maximum number of accounts to list")
	adminListCmd.Flags().Int("offset", 0, "number of accounts to skip")

	adminCmd.AddCommand(adminListCmd)
	adminCmd.AddCommand(adminShowCmd)
	adminCmd.AddCommand(adminSetPasswordCmd)
	adminCmd.AddCommand(adminDeleteCmd)
	rootCmd.AddCommand(adminCmd)
}

func newAdminServiceForCommands() (service.AdminService, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if err = configureLogging(cfg.Log); err != nil {
		return nil, nil, err
	}
	if cfg.Storage.Driver != config.StorageMySQL {
		return nil, nil, errMySQLRequired
	}

	hasher, err := secret.NewBcryptHasher(cfg.Password.HashCost)
	if err != nil {
		return nil, nil, err
	}

	dir, release, err := openDirectory(cfg)
	if err != nil {
		return nil, nil, err
	}
	return service.NewAdminService(dir, hasher, cfg), release, nil
}

func promptPassword(in io.Reader, out io.Writer) (string, error) {
	reader := bufio.NewReader(in)
	fmt.Fprint(out, "New password: ")
	input, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}

	password := strings.TrimRight(input, "\r\n")
	if password == "" {
		return "", errors.New("password must not be empty")
	}
	return password, nil
}

func printAccount(out io.Writer, view *dto.AccountView) {
	email := "-"
	if view.Email != nil {
		email = *view.Email
	}
	lastLogin := "never"
	if view.LastLogin != nil {
		lastLogin = view.LastLogin.Format(time.RFC3339)
	}

	fmt.Fprintf(out, "%s\t%s\t%s\tverified=%t\tstreak=%d\tlast_login=%s\n",
		view.ID, view.Username, email, view.EmailVerified, view.StreakDays, lastLogin)
}
