// Package converter converts counterparty statements into Beancount
// transactions and exports them to monthly files.
package converter

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/shunichi-ikebuchi/ledger-companion/pkg/counterparty"
	"github.com/shunichi-ikebuchi/ledger-companion/pkg/ledger"
)

//go:embed account-mapping.yaml
var defaultMapping []byte

// AccountMappingConfig represents the complete account mapping configuration.
type AccountMappingConfig struct {
	Currency string `yaml:"currency"`
	// Counterparties maps a ledger kind to the control account that carries
	// the balance. Each counterparty gets a sub-account below it.
	Counterparties map[string]string `yaml:"counterparties"`
	// Sources maps an entry source to the account on the other side of an
	// obligation (e.g. purchase to an expense account).
	Sources map[string]string `yaml:"sources"`
	// PaymentMethods maps a payment method to the account money moved through.
	PaymentMethods map[string]string `yaml:"payment_methods"`
	// DefaultSettlement is used for payment methods without a mapping.
	DefaultSettlement string `yaml:"default_settlement"`
}

// Mapper maps ledger concepts to Beancount account names.
type Mapper struct {
	config AccountMappingConfig
}

// NewMapper creates a new Mapper from a YAML configuration file.
// An empty path loads the built-in mapping.
func NewMapper(configPath string) (*Mapper, error) {
	if configPath == "" {
		return ParseMapping(defaultMapping)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseMapping(data)
}

// ParseMapping parses a YAML mapping. Keys missing from it fall back to the
// built-in mapping.
func ParseMapping(data []byte) (*Mapper, error) {
	var base AccountMappingConfig
	if err := yaml.Unmarshal(defaultMapping, &base); err != nil {
		return nil, fmt.Errorf("failed to parse built-in mapping: %w", err)
	}

	var config AccountMappingConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if config.Currency == "" {
		config.Currency = base.Currency
	}
	if config.DefaultSettlement == "" {
		config.DefaultSettlement = base.DefaultSettlement
	}
	config.Counterparties = merge(base.Counterparties, config.Counterparties)
	config.Sources = merge(base.Sources, config.Sources)
	config.PaymentMethods = merge(base.PaymentMethods, config.PaymentMethods)

	return &Mapper{config: config}, nil
}

func merge(base, override map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

// Currency returns the commodity used on every posting.
func (m *Mapper) Currency() string {
	return m.config.Currency
}

// CounterpartyAccount returns the sub-account carrying the balance of cp.
func (m *Mapper) CounterpartyAccount(cp counterparty.Counterparty) string {
	parent := m.config.Counterparties[string(cp.Kind)]
	if parent == "" {
		parent = "Equity:Unmapped"
	}
	name := sanitizeAccountName(cp.Name)
	if name == "" {
		name = sanitizeAccountName(cp.ID)
	}
	if name == "" {
		return parent
	}
	return parent + ":" + name
}

// SourceAccount returns the account opposite an obligation from source.
func (m *Mapper) SourceAccount(source ledger.Source) string {
	if account := m.config.Sources[string(source)]; account != "" {
		return account
	}
	return "Equity:Unmapped:" + sanitizeAccountName(string(source))
}

// SettlementAccount returns the account a payment method moves money
// through. Case is ignored when matching.
func (m *Mapper) SettlementAccount(method string) string {
	if account := m.config.PaymentMethods[method]; account != "" {
		return account
	}
	for k, v := range m.config.PaymentMethods {
		if strings.EqualFold(k, method) {
			return v
		}
	}
	return m.config.DefaultSettlement
}

// sanitizeAccountName turns a display name into a Beancount account
// component: ASCII letters, digits and dashes, starting with a capital letter
// or digit.
func sanitizeAccountName(name string) string {
	var sb strings.Builder
	upper := true
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9':
			if upper && r >= 'a' && r <= 'z' {
				r -= 'a' - 'A'
			}
			sb.WriteRune(r)
			upper = false
		case r == '-' && sb.Len() > 0:
			sb.WriteRune(r)
		default:
			upper = true
		}
	}
	return strings.TrimRight(sb.String(), "-")
}
