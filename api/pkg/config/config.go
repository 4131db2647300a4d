package config

import (
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type ServerConfig struct {
	Target  Target
	Mailbox Mailbox
	Browser Browser
	Store   Store
	Jobs    Jobs
}

// Target describes the web console we provision against. The UI behind
// these URLs is not a stable contract; selectors live in the strategy
// tables, not here.
type Target struct {
	BaseURL string `envconfig:"TARGET_BASE_URL" default:"https://app.onetoo.com"`
	// IntegrationsPathTemplate is rendered with the tenant handle (location ID).
	IntegrationsPathTemplate string `envconfig:"TARGET_INTEGRATIONS_PATH" default:"/v2/location/%s/settings/private-integrations/"`
	IntegrationName          string `envconfig:"TARGET_INTEGRATION_NAME" default:"location key"`
}

// DestinationMarker is the URL fragment that identifies the integrations
// page, derived from the path template so the two cannot drift apart.
func (t Target) DestinationMarker() string {
	trimmed := strings.Trim(t.IntegrationsPathTemplate, "/")
	parts := strings.Split(trimmed, "/")
	return parts[len(parts)-1]
}

type Mailbox struct {
	IMAPHost string `envconfig:"MAILBOX_IMAP_HOST" default:"imap.gmail.com"`
	IMAPPort int    `envconfig:"MAILBOX_IMAP_PORT" default:"993"`
	Username string `envconfig:"MAILBOX_USERNAME"`
	Password string `envconfig:"MAILBOX_PASSWORD"`
	// Senders the OTP email may arrive from, most likely first.
	Senders       []string      `envconfig:"MAILBOX_SENDERS" default:"noreply@talk.onetoo.com,noreply@gohighlevel.com,no-reply@gohighlevel.com"`
	Subject       string        `envconfig:"MAILBOX_SUBJECT" default:"Login security code"`
	PollAttempts  int           `envconfig:"MAILBOX_POLL_ATTEMPTS" default:"30"`
	PollInterval  time.Duration `envconfig:"MAILBOX_POLL_INTERVAL" default:"1s"`
	RecencyWindow time.Duration `envconfig:"MAILBOX_RECENCY_WINDOW" default:"1h"`
}

type Browser struct {
	// ControlURL connects to an already running Chrome. When empty a local
	// browser is launched.
	ControlURL string `envconfig:"BROWSER_CONTROL_URL"`
	Headless   bool   `envconfig:"BROWSER_HEADLESS" default:"true"`
	// KeepOpen leaves the browser running after a job for debugging. The
	// job-level timeout still tears it down.
	KeepOpen     bool          `envconfig:"BROWSER_KEEP_OPEN" default:"false"`
	WindowWidth  int           `envconfig:"BROWSER_WINDOW_WIDTH" default:"1920"`
	WindowHeight int           `envconfig:"BROWSER_WINDOW_HEIGHT" default:"1080"`
	PageTimeout  time.Duration `envconfig:"BROWSER_PAGE_TIMEOUT" default:"30s"`
}

type Store struct {
	Host        string `envconfig:"POSTGRES_HOST" default:"localhost"`
	Port        int    `envconfig:"POSTGRES_PORT" default:"5432"`
	Database    string `envconfig:"POSTGRES_DATABASE" default:"hlprovision"`
	Username    string `envconfig:"POSTGRES_USER" default:"postgres"`
	Password    string `envconfig:"POSTGRES_PASSWORD" default:"postgres"`
	AutoMigrate bool   `envconfig:"DATABASE_AUTO_MIGRATE" default:"true"`
}

type Jobs struct {
	// MaxConcurrent caps how many browsers run at once. Browsers are
	// memory and CPU heavy; unbounded concurrency exhausts the host.
	MaxConcurrent int           `envconfig:"JOBS_MAX_CONCURRENT" default:"2"`
	JobTimeout    time.Duration `envconfig:"JOBS_TIMEOUT" default:"5m"`
	StepTimeout   time.Duration `envconfig:"JOBS_STEP_TIMEOUT" default:"60s"`
}

func LoadServerConfig() (ServerConfig, error) {
	var cfg ServerConfig
	err := envconfig.Process("", &cfg)
	if err != nil {
		return ServerConfig{}, err
	}
	return cfg, nil
}
