package session

import (
	"encoding/json"
	"strings"
)

const (
	// ServiceLabel is the label the platform service is bound under.
	ServiceLabel = "iotf-service"
	vcapEnv      = "VCAP_SERVICES"
)

// APIKey is the alternate credential form: an application API key and its
// token. The org id is encoded in User.
type APIKey struct {
	User     string `json:"user" yaml:"user"`
	Password string `json:"password" yaml:"password"`
}

// ServiceBinding holds the credentials of an environment-bound service.
type ServiceBinding struct {
	Name     string
	Org      string
	APIKey   string
	APIToken string
}

type vcapService struct {
	Name        string `json:"name"`
	Label       string `json:"label"`
	Credentials struct {
		Org      string `json:"org"`
		APIKey   string `json:"apiKey"`
		APIToken string `json:"apiToken"`
	} `json:"credentials"`
}

// LookupServiceBinding reads the platform service descriptor from the
// environment. Only the first bound instance is used; multiple orgs are not
// supported.
func LookupServiceBinding(getenv func(string) string) (ServiceBinding, error) {
	raw := strings.TrimSpace(getenv(vcapEnv))
	if raw == "" {
		return ServiceBinding{}, ErrNoServiceBinding
	}
	var services map[string][]vcapService
	if err := json.Unmarshal([]byte(raw), &services); err != nil {
		return ServiceBinding{}, &BindingError{Reason: "decode " + vcapEnv, Err: err}
	}
	instances := services[ServiceLabel]
	if len(instances) == 0 {
		return ServiceBinding{}, ErrNoServiceBinding
	}
	first := instances[0]
	if first.Credentials.Org == "" || first.Credentials.APIKey == "" {
		return ServiceBinding{}, &BindingError{Reason: "instance " + first.Name + " has no org/apiKey"}
	}
	return ServiceBinding{
		Name:     first.Name,
		Org:      first.Credentials.Org,
		APIKey:   first.Credentials.APIKey,
		APIToken: first.Credentials.APIToken,
	}, nil
}

// ParseOrg extracts the org id from an API key username.
func ParseOrg(user string) (string, error) {
	parts := strings.Split(strings.TrimSpace(user), "-")
	if len(parts) < 2 || parts[1] == "" {
		return "", &OrgParseError{Username: user}
	}
	return parts[1], nil
}
