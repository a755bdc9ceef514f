package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/nslnv/leaddesk/pkg/admin"
	"github.com/nslnv/leaddesk/pkg/audit"
	"github.com/nslnv/leaddesk/pkg/config"
	"github.com/nslnv/leaddesk/pkg/database"
)

func NewAdminCommand(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage admin panel users",
	}
	cmd.AddCommand(newAdminCreateCommand(opts), newHashPasswordCommand())
	return cmd
}

// readPassword returns flagValue or the first line of in
func readPassword(flagValue string, in io.Reader) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if in == nil {
		return "", errors.New("password is required")
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading password from stdin: %w", err)
	}
	pw := strings.TrimRight(line, "\r\n")
	if pw == "" {
		return "", errors.New("password is required (--password or stdin)")
	}
	return pw, nil
}

func checkPassword(pw string) error {
	if len(pw) < admin.MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters", admin.MinPasswordLength)
	}
	return nil
}

func newAdminCreateCommand(opts *Options) *cobra.Command {
	var (
		username       string
		password       string
		role           string
		updatePassword bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an admin user (password from --password or stdin)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pw, err := readPassword(password, cmd.InOrStdin())
			if err != nil {
				return err
			}
			if err := checkPassword(pw); err != nil {
				return err
			}

			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			db, err := database.Open(ctx, cfg.Database, zap.NewNop().Sugar())
			if err != nil {
				return err
			}
			defer db.Close()
			if err := db.Migrate(ctx); err != nil {
				return err
			}

			return createAdmin(ctx, cmd.OutOrStdout(), db, username, pw, role, updatePassword)
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "Login name (stored lower-case)")
	cmd.Flags().StringVar(&password, "password", "", "Password; read from stdin when omitted")
	cmd.Flags().StringVar(&role, "role", admin.DefaultRole, "Role recorded on the session")
	cmd.Flags().BoolVar(&updatePassword, "update-password", false, "Replace the password if the user already exists")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func createAdmin(ctx context.Context, out io.Writer, db *database.DB, username, password, role string, updatePassword bool) error {
	hash, err := admin.HashPassword(password, 0)
	if err != nil {
		return err
	}
	users := admin.NewUserStore(db)
	sink := audit.NewSQLSink(db)

	user, err := users.Create(ctx, username, hash, role)
	switch {
	case err == nil:
		_ = sink.Write(ctx, audit.NewEvent(audit.EventAdminCreated, "Admin user created", map[string]interface{}{
			"username": user.Username,
			"role":     user.Role,
			"via":      "cli",
		}))
		_, err = fmt.Fprintf(out, "Created admin user %q (id %d, role %s)\n", user.Username, user.ID, user.Role)
		return err
	case errors.Is(err, admin.ErrUserExists) && updatePassword:
		if err := users.SetPassword(ctx, username, hash); err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "Updated password of admin user %q\n", admin.NormalizeUsername(username))
		return err
	default:
		return err
	}
}

func newHashPasswordCommand() *cobra.Command {
	var (
		password string
		cost     int
	)
	cmd := &cobra.Command{
		Use:   "hash-password",
		Short: "Print the bcrypt hash of a password (from --password or stdin)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pw, err := readPassword(password, cmd.InOrStdin())
			if err != nil {
				return err
			}
			if err := checkPassword(pw); err != nil {
				return err
			}
			if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
				return fmt.Errorf("cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
			}
			hash, err := admin.HashPassword(pw, cost)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), hash)
			return err
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "Password; read from stdin when omitted")
	cmd.Flags().IntVar(&cost, "cost", bcrypt.DefaultCost, "bcrypt cost")
	return cmd
}
