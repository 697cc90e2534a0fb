package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	Active    bool      `json:"active"`
}

type Product struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       float64   `json:"price"`
	Stock       int       `json:"stock"`
	CreatedAt   time.Time `json:"created_at"`
}

type Order struct {
	ID         uuid.UUID `json:"id"`
	UserID     uuid.UUID `json:"user_id"`
	ProductID  uuid.UUID `json:"product_id"`
	Quantity   int       `json:"quantity"`
	TotalPrice float64   `json:"total_price"`
	CreatedAt  time.Time `json:"created_at"`
}

// OrderWithDetails is a read model built by the join operations. It is never
// written back to storage.
type OrderWithDetails struct {
	ID         uuid.UUID `json:"id"`
	Quantity   int       `json:"quantity"`
	TotalPrice float64   `json:"total_price"`
	CreatedAt  time.Time `json:"created_at"`
	User       User      `json:"user"`
	Product    Product   `json:"product"`
}

// BenchmarkResult holds the outcome of a single timed operation.
type BenchmarkResult struct {
	Database            string    `json:"database"`
	TestName            string    `json:"test_name"`
	Operations          int       `json:"operations"`
	DurationMs          int64     `json:"duration_ms"`
	OperationsPerSecond float64   `json:"operations_per_second"`
	CPUCount            int       `json:"cpu_count"`
	Timestamp           time.Time `json:"timestamp"`
}

// BenchmarkResults is one full run: the eleven results in execution order.
type BenchmarkResults struct {
	Database  string             `json:"database"`
	Results   []*BenchmarkResult `json:"results"`
	Timestamp time.Time          `json:"timestamp"`
}
