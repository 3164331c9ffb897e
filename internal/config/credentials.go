package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"

	"github.com/ericfisherdev/barsync/internal/domain/model"
)

// credentialEntry is one [[credential]] table of the credentials file.
type credentialEntry struct {
	TenantID    int64  `toml:"tenant_id" validate:"gt=0"`
	Vendor      string `toml:"vendor" validate:"oneof=contahub nibo"`
	Environment string `toml:"environment"`
	BaseURL     string `toml:"base_url" validate:"required_if=Vendor contahub"`
	Username    string `toml:"username" validate:"required_if=Vendor contahub"`
	Secret      string `toml:"secret" validate:"required"`
	CompanyID   string `toml:"company_id"`
	EmployeeID  string `toml:"employee_id"`
	Active      *bool  `toml:"active"`
}

type credentialFile struct {
	Credentials []credentialEntry `toml:"credential"`
}

// LoadCredentials reads vendor credentials from a TOML file of [[credential]]
// tables. Entries without an environment get defaultEnv; entries without
// "active" are active. Unknown keys are rejected so typos do not silently drop
// a field.
func LoadCredentials(path, defaultEnv string) ([]model.ExternalCredential, error) {
	var file credentialFile
	md, err := toml.DecodeFile(path, &file)
	if err != nil {
		return nil, fmt.Errorf("decode credentials file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("credentials file %s has unknown keys: %s", path, strings.Join(keys, ", "))
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	creds := make([]model.ExternalCredential, 0, len(file.Credentials))
	for i, e := range file.Credentials {
		if err := validate.Struct(e); err != nil {
			return nil, fmt.Errorf("credentials file %s entry %d: %w", path, i+1, err)
		}

		env := e.Environment
		if env == "" {
			env = defaultEnv
		}
		active := true
		if e.Active != nil {
			active = *e.Active
		}

		creds = append(creds, model.ExternalCredential{
			TenantID:    e.TenantID,
			Vendor:      model.Vendor(e.Vendor),
			Environment: env,
			BaseURL:     e.BaseURL,
			Username:    e.Username,
			Secret:      e.Secret,
			CompanyID:   e.CompanyID,
			EmployeeID:  e.EmployeeID,
			Active:      active,
		})
	}

	return creds, nil
}
