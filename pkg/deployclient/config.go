package deployclient

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/appstore/deploy/pkg/appstore"
)

const DefaultTimeout = time.Minute * 10

// Config fields are declared in validation order; the first failing field
// decides the reported error.
type Config struct {
	AppID             string        `json:"appId" validate:"required,appid"`
	File              string        `json:"file" validate:"required,file"`
	APIURL            string        `json:"apiUrl" validate:"required,http_url"`
	IdentityServerURL string        `json:"idSrvUrl" validate:"required,http_url"`
	Platform          string        `json:"platform" validate:"required,oneof=v2 v3"`
	ClientID          string        `json:"clientId" validate:"required"`
	ClientSecret      string        `json:"clientSecret" validate:"required"`
	TenantID          string        `json:"tenantId"`
	Verbose           bool          `json:"verbose"`
	Silent            bool          `json:"silent" validate:"excluded_with=Verbose"`
	DryRun            bool          `json:"dryRun"`
	Dry               bool          `json:"dry"` // deprecated alias for DryRun
	Timeout           time.Duration `json:"timeout"`
	ShowVersion       bool          `json:"version"`
}

// Configuration keys, identical to flag names.
const (
	AppID             = "appId"
	File              = "file"
	APIURL            = "apiUrl"
	IdentityServerURL = "idSrvUrl"
	Platform          = "platform"
	ClientID          = "clientId"
	ClientSecret      = "clientSecret"
	TenantID          = "tenantId"
	Verbose           = "verbose"
	Silent            = "silent"
	DryRun            = "dryRun"
	Timeout           = "timeout"
)

// MaskedConfigKeys lists configuration keys whose values must never be
// printed in full.
var MaskedConfigKeys = []string{
	ClientSecret,
}

var appIDPattern = regexp.MustCompile(`^[a-z][a-z0-9]+\.[a-z][a-z0-9]+$`)

func InitConfig() {
	flag.String(AppID, "", "Application identifier, e.g. 'acme.timesheet'. (env APP_ID)")
	flag.String(File, "", "Path to the application package archive. (env FILE)")
	flag.String(APIURL, "", "Base URL of the platform API. (env API_URL)")
	flag.String(IdentityServerURL, "", "Base URL of the identity server. (env ID_SRV_URL)")
	flag.String(Platform, string(appstore.PlatformCurrent), "Platform generation, 'v2' or 'v3'. (env PLATFORM)")
	flag.String(ClientID, "", "OAuth2 client id. (env CLIENT_ID)")
	flag.String(ClientSecret, "", "OAuth2 client secret. (env CLIENT_SECRET)")
	flag.String(TenantID, "", "Tenant to deploy into; deploys globally if unset. (env TENANT_ID)")
	flag.Bool(Verbose, false, "Print debug output. (env VERBOSE)")
	flag.Bool(Silent, false, "Suppress all informational output. (env SILENT)")
	flag.Bool(DryRun, false, "Resolve the currently deployed version, but don't upload anything. (env DRY_RUN)")
	flag.Bool("dry", false, "Alias for --dryRun.")
	flag.Duration(Timeout, DefaultTimeout, "Time to wait for the whole deployment to complete. (env TIMEOUT)")
	flag.Bool("version", false, "Print version information and exit.")

	_ = flag.CommandLine.MarkDeprecated("dry", "use --dryRun instead")

	bindEnv()
}

func bindEnv() {
	_ = viper.BindEnv(AppID, "APP_ID")
	_ = viper.BindEnv(File, "FILE")
	_ = viper.BindEnv(APIURL, "API_URL")
	_ = viper.BindEnv(IdentityServerURL, "ID_SRV_URL")
	_ = viper.BindEnv(Platform, "PLATFORM")
	_ = viper.BindEnv(ClientID, "CLIENT_ID")
	_ = viper.BindEnv(ClientSecret, "CLIENT_SECRET")
	_ = viper.BindEnv(TenantID, "TENANT_ID")
	_ = viper.BindEnv(Verbose, "VERBOSE")
	_ = viper.BindEnv(Silent, "SILENT")
	_ = viper.BindEnv(DryRun, "DRY_RUN")
	_ = viper.BindEnv(Timeout, "TIMEOUT")
}

// Scope is a pure function of the tenant id and is never configured directly.
func (cfg *Config) Scope() appstore.Scope {
	return appstore.ScopeFor(cfg.TenantID)
}

func (cfg *Config) PlatformVariant() appstore.Platform {
	return appstore.Platform(cfg.Platform)
}

func (cfg *Config) Validate() error {
	cfg.DryRun = cfg.DryRun || cfg.Dry

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	v := validator.New()
	err := v.RegisterValidation("appid", func(fl validator.FieldLevel) bool {
		return appIDPattern.MatchString(fl.Field().String())
	})
	if err != nil {
		return err
	}

	err = v.Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}

	return sentinel(verrs[0])
}

// sentinel translates the first validation failure into the error class the
// caller reports to the user.
func sentinel(fieldError validator.FieldError) error {
	switch fieldError.Field() {
	case "AppID":
		return fmt.Errorf("%w: got %q", ErrInvalidIdentifier, fieldError.Value())
	case "File":
		return fmt.Errorf("%w: %q", ErrFileNotFound, fieldError.Value())
	case "APIURL", "IdentityServerURL":
		return fmt.Errorf("%w: got %q", ErrInvalidURL, fieldError.Value())
	case "Platform":
		return fmt.Errorf("%w: got %q", ErrInvalidPlatform, fieldError.Value())
	case "Silent":
		return ErrInvalidOutputMode
	case "ClientID", "ClientSecret":
		return ErrCredentialRequired
	default:
		return fmt.Errorf("invalid configuration: %s", fieldError)
	}
}
