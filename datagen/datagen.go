// Package datagen produces the synthetic users, products and orders the
// benchmark operations run against. All functions are pure: each call mints
// a fresh random identifier and touches no shared state.
package datagen

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"dbbench/models"
)

// RandomUser returns a user with a templated name/email and a ~90% chance of
// being active.
func RandomUser() *models.User {
	return &models.User{
		ID:        uuid.New(),
		Name:      fmt.Sprintf("User %d", 1000+rand.Intn(8999)),
		Email:     fmt.Sprintf("user%d@example.com", 1000+rand.Intn(8999)),
		CreatedAt: time.Now().UTC(),
		Active:    rand.Float64() < 0.9,
	}
}

// RandomProduct returns a product priced in [1.00, 100.00) with a stock level
// in [0, 1000).
func RandomProduct() *models.Product {
	return &models.Product{
		ID:          uuid.New(),
		Name:        fmt.Sprintf("Product %d", 1000+rand.Intn(8999)),
		Description: fmt.Sprintf("Description for product %d", 1000+rand.Intn(8999)),
		Price:       float64(100+rand.Intn(9900)) / 100.0,
		Stock:       rand.Intn(1000),
		CreatedAt:   time.Now().UTC(),
	}
}

// RandomOrder returns an order referencing the given user and product. The
// caller supplies the ids, so references are always valid at creation time.
func RandomOrder(userID, productID uuid.UUID) *models.Order {
	quantity := 1 + rand.Intn(9)
	price := float64(1000+rand.Intn(9000)) / 100.0

	return &models.Order{
		ID:         uuid.New(),
		UserID:     userID,
		ProductID:  productID,
		Quantity:   quantity,
		TotalPrice: price * float64(quantity),
		CreatedAt:  time.Now().UTC(),
	}
}

// Batch generates count users, count products and count orders. Orders are
// paired with users and products cyclically by index, so every reference
// resolves within the batch.
func Batch(count int) ([]*models.User, []*models.Product, []*models.Order) {
	users := make([]*models.User, count)
	products := make([]*models.Product, count)
	orders := make([]*models.Order, count)

	for i := 0; i < count; i++ {
		users[i] = RandomUser()
		products[i] = RandomProduct()
	}
	for i := 0; i < count; i++ {
		orders[i] = RandomOrder(users[i%len(users)].ID, products[i%len(products)].ID)
	}

	return users, products, orders
}
