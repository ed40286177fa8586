package emulator

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed seed.yaml
var defaultSeed []byte

// Seed is the fixture data loaded into an empty store.
type Seed struct {
	Tokens    []string   `yaml:"tokens"`
	Companies []Document `yaml:"companies"`
	Clients   []Document `yaml:"clients"`
	Vendors   []Document `yaml:"vendors"`
	Expenses  []Document `yaml:"expenses"`
	Parties   []Document `yaml:"parties"`
	Sales     []Document `yaml:"sales"`
	Purchases []Document `yaml:"purchases"`
	Receipts  []Document `yaml:"receipts"`
	Payments  []Document `yaml:"payments"`
}

// DefaultSeed returns the built-in fixtures.
func DefaultSeed() (*Seed, error) {
	return ParseSeed(defaultSeed)
}

// LoadSeed reads fixtures from a YAML file.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed parses YAML fixtures.
func ParseSeed(data []byte) (*Seed, error) {
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed: %w", err)
	}
	return &seed, nil
}

// Apply writes the fixtures into s. Existing documents with the same ids are
// overwritten.
func (s *Store) Apply(seed *Seed) error {
	for _, token := range seed.Tokens {
		if err := s.PutToken(token); err != nil {
			return fmt.Errorf("failed to store token: %w", err)
		}
	}

	sets := []struct {
		bucket string
		docs   []Document
	}{
		{BucketCompanies, seed.Companies},
		{BucketClients, seed.Clients},
		{BucketVendors, seed.Vendors},
		{BucketExpenses, seed.Expenses},
		{BucketParties, seed.Parties},
		{BucketSales, seed.Sales},
		{BucketPurchases, seed.Purchases},
		{BucketReceipts, seed.Receipts},
		{BucketPayments, seed.Payments},
	}
	for _, set := range sets {
		for _, doc := range set.docs {
			if _, err := s.Put(set.bucket, doc); err != nil {
				return fmt.Errorf("failed to seed %s: %w", set.bucket, err)
			}
		}
	}
	return nil
}
