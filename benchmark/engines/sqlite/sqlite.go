// Package sqlite implements the benchmark contract on top of a single SQLite
// database file.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"dbbench/datagen"
	"dbbench/measure"
	"dbbench/models"
	"dbbench/worker"
)

type Engine struct {
	db     *sql.DB
	handle *worker.Handle
	cpu    atomic.Int64
}

// New opens (or creates) the database file and initializes the schema.
// The file is opened in WAL mode with a relaxed synchronous level, the same
// tuning the suite uses for every run.
func New(path string, cpuCount int, pool *worker.Pool) (*Engine, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	// a single shared connection; the handle serializes access anyway
	db.SetMaxOpenConns(1)

	e := &Engine{db: db, handle: worker.NewHandle(pool)}
	e.cpu.Store(int64(cpuCount))

	if err := e.Init(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) Init() error {
	return e.handle.Do(func() error {
		stmts := []string{
			`pragma cache_size = 100000`,
			`create table if not exists users (
				id text primary key,
				name text not null,
				email text not null,
				created_at text not null,
				active integer not null
			)`,
			`create table if not exists products (
				id text primary key,
				name text not null,
				description text not null,
				price real not null,
				stock integer not null,
				created_at text not null
			)`,
			`create table if not exists orders (
				id text primary key,
				user_id text not null,
				product_id text not null,
				quantity integer not null,
				total_price real not null,
				created_at text not null,
				foreign key (user_id) references users (id),
				foreign key (product_id) references products (id)
			)`,
			`create index if not exists idx_users_email on users (email)`,
			`create index if not exists idx_products_name on products (name)`,
			`create index if not exists idx_orders_user_id on orders (user_id)`,
			`create index if not exists idx_orders_product_id on orders (product_id)`,
		}
		for _, stmt := range stmts {
			if _, err := e.db.Exec(stmt); err != nil {
				return err
			}
		}
		return nil
	})
}

func (e *Engine) GenerateTestData(count int) error {
	users, products, orders := datagen.Batch(count)

	return e.handle.Do(func() error {
		tx, err := e.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		for _, u := range users {
			if _, err := tx.Exec(insertUserSQL, u.ID.String(), u.Name, u.Email,
				u.CreatedAt.Format(time.RFC3339Nano), u.Active); err != nil {
				return err
			}
		}
		for _, p := range products {
			if _, err := tx.Exec(insertProductSQL, p.ID.String(), p.Name, p.Description,
				p.Price, p.Stock, p.CreatedAt.Format(time.RFC3339Nano)); err != nil {
				return err
			}
		}
		for _, o := range orders {
			if _, err := tx.Exec(insertOrderSQL, o.ID.String(), o.UserID.String(), o.ProductID.String(),
				o.Quantity, o.TotalPrice, o.CreatedAt.Format(time.RFC3339Nano)); err != nil {
				return err
			}
		}

		return tx.Commit()
	})
}

func (e *Engine) Cleanup() error {
	return e.handle.Do(func() error {
		tx, err := e.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		for _, table := range []string{"orders", "products", "users"} {
			if _, err := tx.Exec("delete from " + table); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

func (e *Engine) DatabaseName() string {
	return "SQLite"
}

// SetCPUCount records the setting and applies the sorter thread pragma in the
// background. The pragma may not be in effect when this returns.
func (e *Engine) SetCPUCount(count int) {
	e.cpu.Store(int64(count))
	e.handle.Go(func() error {
		_, err := e.db.Exec(fmt.Sprintf("pragma threads = %d", count))
		return err
	})
}

func (e *Engine) GetCPUCount() int {
	return int(e.cpu.Load())
}

const (
	insertUserSQL    = "insert into users (id, name, email, created_at, active) values (?, ?, ?, ?, ?)"
	insertProductSQL = "insert into products (id, name, description, price, stock, created_at) values (?, ?, ?, ?, ?, ?)"
	insertOrderSQL   = "insert into orders (id, user_id, product_id, quantity, total_price, created_at) values (?, ?, ?, ?, ?, ?)"
	selectUserSQL    = "select id, name, email, created_at, active from users"
)

// Returns up to limit user ids, in scan order
func (e *Engine) userIDs(limit int) ([]string, error) {
	var ids []string
	err := e.handle.Do(func() error {
		rows, err := e.db.Query("select id from users limit ?", limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return rows.Err()
	})
	return ids, err
}

// Makes sure at least one user row exists, generating a small batch if not
func (e *Engine) ensureUserIDs(limit, healCount int) ([]string, error) {
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
	var n int
	err := e.handle.Do(func() error {
		return e.db.QueryRow("select count(*) from orders").Scan(&n)
	})
	if err != nil {
		return err
	}
	if n == 0 {
		return e.GenerateTestData(healCount)
	}
	return nil
}

func scanUser(rows *sql.Rows) (*models.User, error) {
	var (
		u       models.User
		id, created string
	)
	if err := rows.Scan(&id, &u.Name, &u.Email, &created, &u.Active); err != nil {
		return nil, err
	}
	var err error
	if u.ID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	if u.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return nil, err
	}
	return &u, nil
}

func (e *Engine) InsertSingleManyTimes(count int) (*models.BenchmarkResult, error) {
	return measure.Execution(e.DatabaseName(), "Insert Single Many Times", count, e.GetCPUCount(), func() error {
		return e.handle.Do(func() error {
			for i := 0; i < count; i++ {
				u := datagen.RandomUser()
				if _, err := e.db.Exec(insertUserSQL, u.ID.String(), u.Name, u.Email,
					u.CreatedAt.Format(time.RFC3339Nano), u.Active); err != nil {
					return err
				}
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
			tx, err := e.db.Begin()
			if err != nil {
				return err
			}
			defer tx.Rollback()

			for _, u := range users {
				if _, err := tx.Exec(insertUserSQL, u.ID.String(), u.Name, u.Email,
					u.CreatedAt.Format(time.RFC3339Nano), u.Active); err != nil {
					return err
				}
			}
			return tx.Commit()
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
				var (
					u           models.User
					id, created string
				)
				err := e.db.QueryRow(selectUserSQL+" where id = ?", ids[i%len(ids)]).
					Scan(&id, &u.Name, &u.Email, &created, &u.Active)
				if err != nil && !errors.Is(err, sql.ErrNoRows) {
					return err
				}
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
			placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
			args := make([]any, len(ids))
			for i, id := range ids {
				args[i] = id
			}

			rows, err := e.db.Query(selectUserSQL+" where id in ("+placeholders+")", args...)
			if err != nil {
				return err
			}
			defer rows.Close()

			for rows.Next() {
				if _, err := scanUser(rows); err != nil {
					return err
				}
			}
			return rows.Err()
		})
	})
}

func (e *Engine) ReadByColumnSearch(count int) (*models.BenchmarkResult, error) {
	return measure.Execution(e.DatabaseName(), "Read By Column Search", count, e.GetCPUCount(), func() error {
		return e.handle.Do(func() error {
			rows, err := e.db.Query(selectUserSQL+" where email like ? limit ?", "%example.com%", count)
			if err != nil {
				return err
			}
			defer rows.Close()

			for rows.Next() {
				if _, err := scanUser(rows); err != nil {
					return err
				}
			}
			return rows.Err()
		})
	})
}

func (e *Engine) ReadWithOneJoin(count int) (*models.BenchmarkResult, error) {
	if err := e.ensureOrders(500); err != nil {
		return nil, err
	}

	return measure.Execution(e.DatabaseName(), "Read With One Join", count, e.GetCPUCount(), func() error {
		return e.handle.Do(func() error {
			rows, err := e.db.Query(`
				select o.id, o.quantity, o.total_price, o.created_at,
				       u.id, u.name, u.email, u.created_at, u.active
				from orders o
				join users u on o.user_id = u.id
				limit ?`, count)
			if err != nil {
				return err
			}
			defer rows.Close()

			for rows.Next() {
				var (
					d                                      models.OrderWithDetails
					orderID, orderCreated, userID, userCreated string
				)
				if err := rows.Scan(&orderID, &d.Quantity, &d.TotalPrice, &orderCreated,
					&userID, &d.User.Name, &d.User.Email, &userCreated, &d.User.Active); err != nil {
					return err
				}
				if err := decodeJoin(&d, orderID, orderCreated, userID, userCreated); err != nil {
					return err
				}
			}
			return rows.Err()
		})
	})
}

func (e *Engine) ReadWithTwoJoins(count int) (*models.BenchmarkResult, error) {
	if err := e.ensureOrders(500); err != nil {
		return nil, err
	}

	return measure.Execution(e.DatabaseName(), "Read With Two Joins", count, e.GetCPUCount(), func() error {
		return e.handle.Do(func() error {
			rows, err := e.db.Query(`
				select o.id, o.quantity, o.total_price, o.created_at,
				       u.id, u.name, u.email, u.created_at, u.active,
				       p.id, p.name, p.description, p.price, p.stock, p.created_at
				from orders o
				join users u on o.user_id = u.id
				join products p on o.product_id = p.id
				limit ?`, count)
			if err != nil {
				return err
			}
			defer rows.Close()

			for rows.Next() {
				var (
					d                                      models.OrderWithDetails
					orderID, orderCreated, userID, userCreated string
					productID, productCreated                  string
				)
				if err := rows.Scan(&orderID, &d.Quantity, &d.TotalPrice, &orderCreated,
					&userID, &d.User.Name, &d.User.Email, &userCreated, &d.User.Active,
					&productID, &d.Product.Name, &d.Product.Description, &d.Product.Price,
					&d.Product.Stock, &productCreated); err != nil {
					return err
				}
				if err := decodeJoin(&d, orderID, orderCreated, userID, userCreated); err != nil {
					return err
				}
				var err error
				if d.Product.ID, err = uuid.Parse(productID); err != nil {
					return err
				}
				if d.Product.CreatedAt, err = time.Parse(time.RFC3339Nano, productCreated); err != nil {
					return err
				}
			}
			return rows.Err()
		})
	})
}

// Fills the id and timestamp fields shared by both join read models
func decodeJoin(d *models.OrderWithDetails, orderID, orderCreated, userID, userCreated string) error {
	var err error
	if d.ID, err = uuid.Parse(orderID); err != nil {
		return err
	}
	if d.CreatedAt, err = time.Parse(time.RFC3339Nano, orderCreated); err != nil {
		return err
	}
	if d.User.ID, err = uuid.Parse(userID); err != nil {
		return err
	}
	d.User.CreatedAt, err = time.Parse(time.RFC3339Nano, userCreated)
	return err
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
				if _, err := e.db.Exec("update users set active = ? where id = ?", i%2 == 0, userID); err != nil {
					return err
				}
			}
			return nil
		})
	})
}

func (e *Engine) UpdateSingleFieldManyEntries(count int) (*models.BenchmarkResult, error) {
	return measure.Execution(e.DatabaseName(), "Update Single Field Many Entries", count, e.GetCPUCount(), func() error {
		return e.handle.Do(func() error {
			_, err := e.db.Exec("update users set active = ? where id in (select id from users limit ?)", true, count)
			return err
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
				if _, err := e.db.Exec("update products set price = ?, stock = ?, description = ? where id = ?",
					10.0+float64(i%100), 100+i%50, fmt.Sprintf("Updated description %d", i), productID); err != nil {
					return err
				}
			}
			return nil
		})
	})
}

func (e *Engine) UpdateMultipleFieldsManyEntries(count int) (*models.BenchmarkResult, error) {
	return measure.Execution(e.DatabaseName(), "Update Multiple Fields Many Entries", count, e.GetCPUCount(), func() error {
		return e.handle.Do(func() error {
			tx, err := e.db.Begin()
			if err != nil {
				return err
			}
			defer tx.Rollback()

			rows, err := tx.Query("select id from products limit ?", count)
			if err != nil {
				return err
			}
			var ids []string
			for rows.Next() {
				var id string
				if err := rows.Scan(&id); err != nil {
					rows.Close()
					return err
				}
				ids = append(ids, id)
			}
			rows.Close()
			if err := rows.Err(); err != nil {
				return err
			}

			for i, id := range ids {
				if _, err := tx.Exec("update products set price = ?, stock = ?, description = ? where id = ?",
					10.0+float64(i%100), 100+i%50, fmt.Sprintf("Updated description %d", i), id); err != nil {
					return err
				}
			}
			return tx.Commit()
		})
	})
}

// Returns one product id, generating data first if the table is empty
func (e *Engine) ensureProductID() (string, error) {
	var id string
	query := func() error {
		return e.handle.Do(func() error {
			return e.db.QueryRow("select id from products limit 1").Scan(&id)
		})
	}

	err := query()
	if errors.Is(err, sql.ErrNoRows) {
		if err := e.GenerateTestData(100); err != nil {
			return "", err
		}
		err = query()
	}
	return id, err
}
