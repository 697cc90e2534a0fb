// Package memory implements the benchmark contract with in-process maps.
// It exercises the orchestration core without an external database and gives
// a throughput baseline the storage engines can be compared against.
package memory

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"

	"dbbench/datagen"
	"dbbench/measure"
	"dbbench/models"
	"dbbench/worker"
)

type Engine struct {
	handle *worker.Handle
	cpu    atomic.Int64

	users    map[uuid.UUID]*models.User
	products map[uuid.UUID]*models.Product
	orders   map[uuid.UUID]*models.Order
}

func New(cpuCount int, pool *worker.Pool) *Engine {
	e := &Engine{
		handle:   worker.NewHandle(pool),
		users:    map[uuid.UUID]*models.User{},
		products: map[uuid.UUID]*models.Product{},
		orders:   map[uuid.UUID]*models.Order{},
	}
	e.cpu.Store(int64(cpuCount))
	return e
}

// Init has no structures to create; it only confirms the handle is usable.
func (e *Engine) Init() error {
	return e.handle.Do(func() error { return nil })
}

func (e *Engine) GenerateTestData(count int) error {
	users, products, orders := datagen.Batch(count)

	return e.handle.Do(func() error {
		for _, u := range users {
			e.users[u.ID] = u
		}
		for _, p := range products {
			e.products[p.ID] = p
		}
		for _, o := range orders {
			e.orders[o.ID] = o
		}
		return nil
	})
}

func (e *Engine) Cleanup() error {
	return e.handle.Do(func() error {
		e.users = map[uuid.UUID]*models.User{}
		e.products = map[uuid.UUID]*models.Product{}
		e.orders = map[uuid.UUID]*models.Order{}
		return nil
	})
}

func (e *Engine) DatabaseName() string {
	return "Memory"
}

// SetCPUCount only records the setting; there is no backend to reconfigure.
func (e *Engine) SetCPUCount(count int) {
	e.cpu.Store(int64(count))
}

func (e *Engine) GetCPUCount() int {
	return int(e.cpu.Load())
}

// Returns up to limit user ids, in map order
func (e *Engine) userIDs(limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := e.handle.Do(func() error {
		for id := range e.users {
			if len(ids) == limit {
				break
			}
			ids = append(ids, id)
		}
		return nil
	})
	return ids, err
}

func (e *Engine) ensureUserIDs(limit, healCount int) ([]uuid.UUID, error) {
	ids, err := e.userIDs(limit)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		if err := e.GenerateTestData(healCount); err != nil {
			return nil, err
		}
		ids, err = e.userIDs(limit)
	}
	return ids, err
}

func (e *Engine) ensureOrders(healCount int) error {
	empty := false
	if err := e.handle.Do(func() error {
		empty = len(e.orders) == 0
		return nil
	}); err != nil {
		return err
	}
	if empty {
		return e.GenerateTestData(healCount)
	}
	return nil
}

func (e *Engine) InsertSingleManyTimes(count int) (*models.BenchmarkResult, error) {
	return measure.Execution(e.DatabaseName(), "Insert Single Many Times", count, e.GetCPUCount(), func() error {
		return e.handle.Do(func() error {
			for i := 0; i < count; i++ {
				u := datagen.RandomUser()
				e.users[u.ID] = u
			}
			return nil
		})
	})
}

func (e *Engine) InsertManyAtOnce(count int) (*models.BenchmarkResult, error) {
	return measure.Execution(e.DatabaseName(), "Insert Many At Once", count, e.GetCPUCount(), func() error {
		users := make([]*models.User, count)
		for i := range users {
			users[i] = datagen.RandomUser()
		}

		return e.handle.Do(func() error {
			for _, u := range users {
				e.users[u.ID] = u
			}
			return nil
		})
	})
}

func (e *Engine) ReadByIDManyTimes(count int) (*models.BenchmarkResult, error) {
	ids, err := e.ensureUserIDs(count, 100)
	if err != nil {
		return nil, err
	}

	return measure.Execution(e.DatabaseName(), "Read By ID Many Times", count, e.GetCPUCount(), func() error {
		return e.handle.Do(func() error {
			for i := 0; i < count; i++ {
				_ = e.users[ids[i%len(ids)]]
			}
			return nil
		})
	})
}

func (e *Engine) ReadManyByIDs(count int) (*models.BenchmarkResult, error) {
	ids, err := e.ensureUserIDs(count, 100)
	if err != nil {
		return nil, err
	}

	return measure.Execution(e.DatabaseName(), "Read Many By IDs", count, e.GetCPUCount(), func() error {
		return e.handle.Do(func() error {
			results := make([]*models.User, 0, len(ids))
			for _, id := range ids {
				if u, ok := e.users[id]; ok {
					results = append(results, u)
				}
			}
			return nil
		})
	})
}

func (e *Engine) ReadByColumnSearch(count int) (*models.BenchmarkResult, error) {
	return measure.Execution(e.DatabaseName(), "Read By Column Search", count, e.GetCPUCount(), func() error {
		return e.handle.Do(func() error {
			var results []*models.User
			for _, u := range e.users {
				if len(results) == count {
					break
				}
				if strings.Contains(u.Email, "example.com") {
					results = append(results, u)
				}
			}
			return nil
		})
	})
}

func (e *Engine) ReadWithOneJoin(count int) (*models.BenchmarkResult, error) {
	if err := e.ensureOrders(500); err != nil {
		return nil, err
	}

	return measure.Execution(e.DatabaseName(), "Read With One Join", count, e.GetCPUCount(), func() error {
		return e.handle.Do(func() error {
			var results []*models.OrderWithDetails
			for _, o := range e.orders {
				if len(results) == count {
					break
				}
				u, ok := e.users[o.UserID]
				if !ok {
					continue
				}
				results = append(results, &models.OrderWithDetails{
					ID:         o.ID,
					Quantity:   o.Quantity,
					TotalPrice: o.TotalPrice,
					CreatedAt:  o.CreatedAt,
					User:       *u,
				})
			}
			return nil
		})
	})
}

func (e *Engine) ReadWithTwoJoins(count int) (*models.BenchmarkResult, error) {
	if err := e.ensureOrders(500); err != nil {
		return nil, err
	}

	return measure.Execution(e.DatabaseName(), "Read With Two Joins", count, e.GetCPUCount(), func() error {
		return e.handle.Do(func() error {
			var results []*models.OrderWithDetails
			for _, o := range e.orders {
				if len(results) == count {
					break
				}
				u, ok := e.users[o.UserID]
				if !ok {
					continue
				}
				p, ok := e.products[o.ProductID]
				if !ok {
					continue
				}
				results = append(results, &models.OrderWithDetails{
					ID:         o.ID,
					Quantity:   o.Quantity,
					TotalPrice: o.TotalPrice,
					CreatedAt:  o.CreatedAt,
					User:       *u,
					Product:    *p,
				})
			}
			return nil
		})
	})
}

func (e *Engine) UpdateSingleFieldOneEntry(count int) (*models.BenchmarkResult, error) {
	ids, err := e.ensureUserIDs(1, 100)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, errors.New("no users available to update")
	}
	userID := ids[0]

	return measure.Execution(e.DatabaseName(), "Update Single Field One Entry", count, e.GetCPUCount(), func() error {
		return e.handle.Do(func() error {
			for i := 0; i < count; i++ {
				if u, ok := e.users[userID]; ok {
					u.Active = i%2 == 0
				}
			}
			return nil
		})
	})
}

func (e *Engine) UpdateSingleFieldManyEntries(count int) (*models.BenchmarkResult, error) {
	return measure.Execution(e.DatabaseName(), "Update Single Field Many Entries", count, e.GetCPUCount(), func() error {
		return e.handle.Do(func() error {
			updated := 0
			for _, u := range e.users {
				if updated == count {
					break
				}
				u.Active = true
				updated++
			}
			return nil
		})
	})
}

func (e *Engine) UpdateMultipleFieldsOneEntry(count int) (*models.BenchmarkResult, error) {
	productID, err := e.ensureProductID()
	if err != nil {
		return nil, err
	}

	return measure.Execution(e.DatabaseName(), "Update Multiple Fields One Entry", count, e.GetCPUCount(), func() error {
		return e.handle.Do(func() error {
			for i := 0; i < count; i++ {
				if p, ok := e.products[productID]; ok {
					p.Price = 10.0 + float64(i%100)
					p.Stock = 100 + i%50
					p.Description = "Updated description"
				}
			}
			return nil
		})
	})
}

func (e *Engine) UpdateMultipleFieldsManyEntries(count int) (*models.BenchmarkResult, error) {
	return measure.Execution(e.DatabaseName(), "Update Multiple Fields Many Entries", count, e.GetCPUCount(), func() error {
		return e.handle.Do(func() error {
			updated := 0
			for _, p := range e.products {
				if updated == count {
					break
				}
				p.Price = 10.0 + float64(updated%100)
				p.Stock = 100 + updated%50
				p.Description = "Updated description"
				updated++
			}
			return nil
		})
	})
}

// Returns one product id, generating data first if the store is empty
func (e *Engine) ensureProductID() (uuid.UUID, error) {
	pick := func() (uuid.UUID, bool) {
		var id uuid.UUID
		found := false
		e.handle.Do(func() error {
			for pid := range e.products {
				id, found = pid, true
				break
			}
			return nil
		})
		return id, found
	}

	if id, ok := pick(); ok {
		return id, nil
	}
	if err := e.GenerateTestData(100); err != nil {
		return uuid.Nil, err
	}
	id, ok := pick()
	if !ok {
		return uuid.Nil, errors.New("no products available to update")
	}
	return id, nil
}
