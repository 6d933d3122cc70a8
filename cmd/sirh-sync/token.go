package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/sirh-sync/internal/models"
	"github.com/noah-isme/sirh-sync/internal/service"
	"github.com/noah-isme/sirh-sync/pkg/config"
)

func newTokenCmd() *cobra.Command {
	var (
		userID string
		email  string
		role   string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API access token signed with JWT_SECRET",
		Example: `  sirh-sync token --user 42 --role ADMIN --ttl 8h`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			platformRole := models.PlatformRole(strings.ToUpper(role))
			switch platformRole {
			case models.PlatformRoleUser, models.PlatformRoleAdmin, models.PlatformRoleSuperAdmin:
			default:
				return fmt.Errorf("unknown role %q", role)
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			token, err := service.NewTokenService(cfg.JWT.Secret).Issue(models.Actor{UserID: userID, Role: platformRole}, email, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "User ID carried by the token")
	cmd.Flags().StringVar(&email, "email", "", "Email carried by the token")
	cmd.Flags().StringVar(&role, "role", string(models.PlatformRoleUser), "Platform role: USER, ADMIN or SUPERADMIN")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}
