package store

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// ImageHost is the prefix of every catalog image URL.
const ImageHost = "https://storage.cloud.google.com/"

const imageBucket = "bettersale-product-images"

// ImageURL is the bucket URL of a product image:
// {host}{bucket}/{sport}/{category}/{id}.jpg, lower-cased, with dashes in
// the id turned into underscores.
func ImageURL(p Product) string {
	file := strings.ReplaceAll(strings.ToLower(p.ID), "-", "_") + ".jpg"
	return ImageHost + imageBucket + "/" + strings.ToLower(p.Sport) + "/" + strings.ToLower(p.Category) + "/" + file
}

// UpdateImageURLs rewrites every product image URL that is not already on
// ImageHost. It returns the number of products changed.
func (s *Store) UpdateImageURLs(ctx context.Context) (int, error) {
	var products []Product
	err := s.db.WithContext(ctx).
		Where("image_url IS NULL OR image_url NOT LIKE ?", ImageHost+"%").
		Find(&products).Error
	if err != nil {
		return 0, errors.Wrap(err, "store: find stale image urls")
	}
	if len(products) == 0 {
		s.log.Info("no products with non-bucket image urls")
		return 0, nil
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, p := range products {
			url := ImageURL(p)
			if err := tx.Model(&Product{}).Where("id = ?", p.ID).Update("image_url", url).Error; err != nil {
				return errors.Wrapf(err, "update %s", p.ID)
			}
			s.log.WithField("product_id", p.ID).Debugf("image url %q -> %q", p.ImageURL, url)
		}
		return nil
	})
	if err != nil {
		return 0, errors.Wrap(err, "store: update image urls")
	}
	s.log.WithField("count", len(products)).Info("product image urls updated")
	return len(products), nil
}

// VerifyPersistence writes a throwaway customer, reads it back through a
// fresh query and removes it again.
func (s *Store) VerifyPersistence(ctx context.Context) error {
	id := "TEST-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	c := Customer{
		ID:                id,
		AccountNumber:     "ACC-" + id,
		FirstName:         "Test",
		LastName:          "Customer",
		Email:             "test@example.com",
		PhoneNumber:       "555-1234",
		CustomerStartDate: s.now().Format(dateLayout),
		LoyaltyPoints:     100,
		PreferredStore:    "Test Store",
	}
	db := s.db.WithContext(ctx)
	if err := db.Create(&c).Error; err != nil {
		return errors.Wrap(err, "store: verify: create customer")
	}
	defer db.Delete(&Customer{}, "id = ?", id)

	var got Customer
	if err := db.Take(&got, "id = ?", id).Error; err != nil {
		return errors.Wrapf(err, "store: verify: customer %s not read back", id)
	}
	if got.AccountNumber != c.AccountNumber {
		return errors.Errorf("store: verify: account number %q, want %q", got.AccountNumber, c.AccountNumber)
	}
	s.log.WithField("customer_id", id).Info("persistence verified")
	return nil
}
