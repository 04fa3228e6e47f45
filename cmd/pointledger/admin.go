package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dukerupert/pointledger/internal/auth"
	"github.com/dukerupert/pointledger/internal/ledger"
	"github.com/dukerupert/pointledger/internal/store"
)

var (
	adminEmail    string
	adminPassword string
	accountEmail  string
	approveID     int64
	approverEmail string
)

var createAdminCmd = &cobra.Command{
	Use:   "create-admin",
	Short: "Create an admin account, or promote an existing one",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		db, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		accounts := ledger.NewAccountStore(logger)
		existing, err := accounts.GetByEmail(ctx, db, adminEmail)
		if err == nil {
			if err := accounts.SetAdmin(ctx, db, existing.ID, true); err != nil {
				return err
			}
			logger.Info("account promoted to admin", "account_id", existing.ID, "email", existing.Email)
			return nil
		}
		if !errors.Is(err, ledger.ErrNotFound) {
			return err
		}

		hash, err := auth.HashPassword(adminPassword)
		if err != nil {
			return err
		}
		acct, err := accounts.Create(ctx, db, ledger.NewAccount{
			Email:        adminEmail,
			PasswordHash: hash,
			IsAdmin:      true,
		})
		if err != nil {
			return err
		}
		logger.Info("admin account created", "account_id", acct.ID, "email", acct.Email)
		return nil
	},
}

var deactivateCmd = &cobra.Command{
	Use:   "deactivate",
	Short: "Deactivate an account and revoke its sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		db, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		accounts := ledger.NewAccountStore(logger)
		acct, err := accounts.GetByEmail(ctx, db, accountEmail)
		if err != nil {
			return err
		}
		if err := accounts.SetActive(ctx, db, acct.ID, false); err != nil {
			return err
		}
		// Tokens stop working now. Sockets already open on a running server
		// stay up until they reconnect; POST /api/deactivate_account/ closes
		// them immediately.
		if err := store.NewSessionStore(db, cfg.TokenTTL).DeleteByAccountID(ctx, acct.ID); err != nil {
			return err
		}
		logger.Info("account deactivated", "account_id", acct.ID)
		return nil
	},
}

var approveCmd = &cobra.Command{
	Use:   "approve",
	Short: "Approve a pending redemption request",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		db, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		accounts := ledger.NewAccountStore(logger)
		approver, err := accounts.GetByEmail(ctx, db, approverEmail)
		if err != nil {
			return fmt.Errorf("approver: %w", err)
		}
		if !approver.IsAdmin {
			return fmt.Errorf("approver %s is not an admin", approver.Email)
		}

		workflow := ledger.NewRedemptionWorkflow(db, accounts, logger)
		res, err := workflow.Approve(ctx, approveID, approver.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "approved request %d; account %d balance is now %d\n",
			res.Request.ID, res.Request.AccountID, res.Balance)
		return nil
	},
}

func init() {
	createAdminCmd.Flags().StringVar(&adminEmail, "email", "", "admin email address")
	createAdminCmd.Flags().StringVar(&adminPassword, "password", "", "admin password (min 8 characters)")
	_ = createAdminCmd.MarkFlagRequired("email")
	_ = createAdminCmd.MarkFlagRequired("password")

	deactivateCmd.Flags().StringVar(&accountEmail, "email", "", "account email address")
	_ = deactivateCmd.MarkFlagRequired("email")

	approveCmd.Flags().Int64Var(&approveID, "id", 0, "redemption request id")
	approveCmd.Flags().StringVar(&approverEmail, "approver", "", "email of the approving admin")
	_ = approveCmd.MarkFlagRequired("id")
	_ = approveCmd.MarkFlagRequired("approver")
}
