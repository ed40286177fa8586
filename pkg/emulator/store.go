package emulator

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var (
	// ErrNotFound is returned when a document is not found.
	ErrNotFound = errors.New("document not found")

	// ErrInvalidID is returned when a document has no usable id.
	ErrInvalidID = errors.New("invalid document id")
)

// Bucket names. Document buckets are named after the REST collections.
const (
	BucketTokens    = "tokens"
	BucketCompanies = "companies"
	BucketClients   = "clients"
	BucketVendors   = "vendors"
	BucketExpenses  = "expenses"
	BucketParties   = "parties"
	BucketSales     = "sales"
	BucketPurchases = "purchase"
	BucketReceipts  = "receipts"
	BucketPayments  = "payments"
)

var buckets = []string{
	BucketTokens, BucketCompanies, BucketClients, BucketVendors, BucketExpenses,
	BucketParties, BucketSales, BucketPurchases, BucketReceipts, BucketPayments,
}

// Document is a stored JSON object.
type Document = map[string]any

// Store is the bbolt database behind the emulator.
type Store struct {
	db *bolt.DB
}

// NewStore opens the database at dbPath and creates every bucket.
func NewStore(dbPath string) (*Store, error) {
	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(bucket)); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put stores doc under its _id, assigning a new one when missing.
// It returns the id.
func (s *Store) Put(bucketName string, doc Document) (string, error) {
	id, _ := doc["_id"].(string)
	if id == "" {
		id = uuid.NewString()
		doc["_id"] = id
	}
	if _, ok := doc["createdAt"]; !ok {
		doc["createdAt"] = time.Now().UTC().Format(time.RFC3339)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to marshal document: %w", err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return fmt.Errorf("bucket %s not found", bucketName)
		}
		return b.Put([]byte(id), data)
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// Get retrieves one document.
func (s *Store) Get(bucketName, id string) (Document, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	var doc Document
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return fmt.Errorf("bucket %s not found", bucketName)
		}

		data := b.Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}

		var err error
		doc, err = unmarshal(data)
		return err
	})
	return doc, err
}

// List retrieves every document of a bucket accepted by filter, in key order.
func (s *Store) List(bucketName string, filter func(Document) bool) ([]Document, error) {
	docs := []Document{}

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return fmt.Errorf("bucket %s not found", bucketName)
		}

		return b.ForEach(func(k, v []byte) error {
			doc, err := unmarshal(v)
			if err != nil {
				return fmt.Errorf("failed to unmarshal %s/%s: %w", bucketName, k, err)
			}
			if filter == nil || filter(doc) {
				docs = append(docs, doc)
			}
			return nil
		})
	})
	return docs, err
}

// Delete removes one document.
func (s *Store) Delete(bucketName, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return fmt.Errorf("bucket %s not found", bucketName)
		}
		return b.Delete([]byte(id))
	})
}

// PutToken registers a valid bearer token.
func (s *Store) PutToken(token string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(BucketTokens)).Put([]byte(token), []byte(time.Now().UTC().Format(time.RFC3339)))
	})
}

// ValidToken reports whether token was registered.
func (s *Store) ValidToken(token string) (bool, error) {
	var ok bool
	err := s.db.View(func(tx *bolt.Tx) error {
		ok = tx.Bucket([]byte(BucketTokens)).Get([]byte(token)) != nil
		return nil
	})
	return ok, err
}

// unmarshal decodes a document keeping numbers exact.
func unmarshal(data []byte) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}
