package hlprovision

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/squidgyai/hlprovision/api/pkg/config"
	"github.com/squidgyai/hlprovision/api/pkg/token"
)

func newInspectCommand() *cobra.Command {
	var (
		rawToken string
		tenantID string
		sqlite   string
	)

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show expiry bookkeeping for a stored or pasted bearer token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if rawToken == "" && tenantID == "" {
				return fmt.Errorf("either --token or --tenant-id is required")
			}

			if rawToken == "" {
				cfg, err := config.LoadServerConfig()
				if err != nil {
					return err
				}
				flags := &jobFlags{sqlite: sqlite}
				credStore, err := flags.openStore(cfg)
				if err != nil {
					return err
				}
				defer credStore.Close()

				record, err := credStore.GetTenantCredentials(cmd.Context(), tenantID)
				if err != nil {
					return err
				}
				rawToken = record.BearerToken
			}

			claims := token.Inspect(rawToken)
			if claims == nil {
				return fmt.Errorf("token carries no usable expiry claims")
			}

			out := cmd.OutOrStdout()
			if claims.IssuedAt != nil {
				fmt.Fprintf(out, "issued_at:  %s\n", claims.IssuedAt.Format(time.RFC3339))
			}
			fmt.Fprintf(out, "expires_at: %s\n", claims.ExpiresAt.Format(time.RFC3339))
			if lifetime, ok := claims.Lifetime(); ok {
				fmt.Fprintf(out, "lifetime:   %s\n", lifetime)
			}
			if remaining, ok := claims.Remaining(time.Now()); ok {
				fmt.Fprintf(out, "remaining:  %s\n", remaining)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&rawToken, "token", "", "bearer token to inspect directly")
	cmd.Flags().StringVar(&tenantID, "tenant-id", "", "inspect the stored bearer token for this tenant")
	cmd.Flags().StringVar(&sqlite, "sqlite", "", "use a local sqlite file instead of postgres")
	return cmd
}
