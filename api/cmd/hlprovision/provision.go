package hlprovision

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/squidgyai/hlprovision/api/pkg/config"
	"github.com/squidgyai/hlprovision/api/pkg/provisioner"
	"github.com/squidgyai/hlprovision/api/pkg/selector"
	"github.com/squidgyai/hlprovision/api/pkg/store"
	"github.com/squidgyai/hlprovision/api/pkg/types"
)

type jobFlags struct {
	tenantID string
	email    string
	password string
	location string
	scopes   string
	sqlite   string
}

func (f *jobFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.tenantID, "tenant-id", "", "internal tenant identifier the credentials are stored under")
	cmd.Flags().StringVar(&f.email, "email", "", "console login email (also the OTP mailbox recipient)")
	cmd.Flags().StringVar(&f.password, "password", "", "console login password")
	cmd.Flags().StringVar(&f.location, "location", "", "location ID of the target sub-account")
	cmd.Flags().StringVar(&f.scopes, "scopes", "", "comma separated scope names, default is the standard set")
	cmd.Flags().StringVar(&f.sqlite, "sqlite", "", "use a local sqlite file instead of postgres")
}

func (f *jobFlags) validate() error {
	if f.tenantID == "" || f.email == "" || f.password == "" || f.location == "" {
		return fmt.Errorf("--tenant-id, --email, --password and --location are required")
	}
	return nil
}

func (f *jobFlags) scopeList() []string {
	if f.scopes == "" {
		return nil
	}
	var scopes []string
	for _, s := range strings.Split(f.scopes, ",") {
		if s = strings.TrimSpace(s); s != "" {
			scopes = append(scopes, s)
		}
	}
	return scopes
}

func (f *jobFlags) openStore(cfg config.ServerConfig) (*store.PostgresStore, error) {
	if f.sqlite != "" {
		return store.NewSQLiteStore(f.sqlite)
	}
	return store.NewPostgresStore(cfg.Store)
}

func newProvisionCommand() *cobra.Command {
	flags := &jobFlags{}

	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Log in, capture tokens and mint a scoped integration token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runJob(cmd, flags, types.JobFlavorFullProvision)
		},
	}
	flags.register(cmd)
	return cmd
}

func newRefreshCommand() *cobra.Command {
	flags := &jobFlags{}

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Re-authenticate and refresh the captured session tokens without the wizard",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runJob(cmd, flags, types.JobFlavorTokenRefresh)
		},
	}
	flags.register(cmd)
	return cmd
}

func runJob(cmd *cobra.Command, flags *jobFlags, flavor types.JobFlavor) error {
	if err := flags.validate(); err != nil {
		return err
	}

	cfg, err := config.LoadServerConfig()
	if err != nil {
		return err
	}

	credStore, err := flags.openStore(cfg)
	if err != nil {
		return err
	}
	defer credStore.Close()

	factory := provisioner.NewRodRunnerFactory(cfg, selector.DefaultTable(), nil)
	orch := provisioner.NewOrchestrator(factory, credStore, provisioner.Options{
		JobTimeout:  cfg.Jobs.JobTimeout,
		StepTimeout: cfg.Jobs.StepTimeout,
	})

	job := provisioner.NewJob(flags.tenantID, flags.email, flags.password, flags.location, flavor, flags.scopeList())
	result := orch.Run(cmd.Context(), job)

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))

	if result.Status == types.RunStatusFailed {
		return fmt.Errorf("job %s failed: %s", result.JobID, result.Reason)
	}
	return nil
}
