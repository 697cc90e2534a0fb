// Package postgres implements the benchmark contract against a PostgreSQL
// server reached through a single shared connection pool.
package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/lib/pq"

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

// New connects to the server at dsn and initializes the schema.
func New(dsn string, cpuCount int, pool *worker.Pool) (*Engine, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	// keep idle connections at the open limit, otherwise connections are
	// constantly created and destroyed under load
	db.SetMaxIdleConns(10)
	if err := db.Ping(); err != nil {
		return nil, err
	}

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
			`create table if not exists users (
				id uuid primary key,
				name text not null,
				email text not null,
				created_at timestamptz not null,
				active boolean not null
			)`,
			`create table if not exists products (
				id uuid primary key,
				name text not null,
				description text not null,
				price double precision not null,
				stock integer not null,
				created_at timestamptz not null
			)`,
			`create table if not exists orders (
				id uuid primary key,
				user_id uuid not null references users (id),
				product_id uuid not null references products (id),
				quantity integer not null,
				total_price double precision not null,
				created_at timestamptz not null
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
			if _, err := tx.Exec(insertUserSQL, u.ID, u.Name, u.Email, u.CreatedAt, u.Active); err != nil {
				return err
			}
		}
		for _, p := range products {
			if _, err := tx.Exec(insertProductSQL, p.ID, p.Name, p.Description, p.Price, p.Stock, p.CreatedAt); err != nil {
				return err
			}
		}
		for _, o := range orders {
			if _, err := tx.Exec(insertOrderSQL, o.ID, o.UserID, o.ProductID, o.Quantity, o.TotalPrice, o.CreatedAt); err != nil {
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
	return "PostgreSQL"
}

// SetCPUCount records the setting and reconfigures the server's parallel
// worker limit in the background. The new limit may not be in effect when
// this returns.
func (e *Engine) SetCPUCount(count int) {
	e.cpu.Store(int64(count))
	e.handle.Go(func() error {
		if _, err := e.db.Exec(fmt.Sprintf("alter system set max_parallel_workers_per_gather = %d", count)); err != nil {
			return err
		}
		_, err := e.db.Exec("select pg_reload_conf()")
		return err
	})
}

func (e *Engine) GetCPUCount() int {
	return int(e.cpu.Load())
}

const (
	insertUserSQL    = "insert into users (id, name, email, created_at, active) values ($1, $2, $3, $4, $5)"
	insertProductSQL = "insert into products (id, name, description, price, stock, created_at) values ($1, $2, $3, $4, $5, $6)"
	insertOrderSQL   = "insert into orders (id, user_id, product_id, quantity, total_price, created_at) values ($1, $2, $3, $4, $5, $6)"
	selectUserSQL    = "select id, name, email, created_at, active from users"
)

func (e *Engine) userIDs(limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := e.handle.Do(func() error {
		rows, err := e.db.Query("select id from users limit $1", limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var id uuid.UUID
			if err := rows.Scan(&id); err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return rows.Err()
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
	var u models.User
	if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.CreatedAt, &u.Active); err != nil {
		return nil, err
	}
	return &u, nil
}

func (e *Engine) InsertSingleManyTimes(count int) (*models.BenchmarkResult, error) {
	return measure.Execution(e.DatabaseName(), "Insert Single Many Times", count, e.GetCPUCount(), func() error {
		return e.handle.Do(func() error {
			for i := 0; i < count; i++ {
				u := datagen.RandomUser()
				if _, err := e.db.Exec(insertUserSQL, u.ID, u.Name, u.Email, u.CreatedAt, u.Active); err != nil {
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
				if _, err := tx.Exec(insertUserSQL, u.ID, u.Name, u.Email, u.CreatedAt, u.Active); err != nil {
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
				var u models.User
				err := e.db.QueryRow(selectUserSQL+" where id = $1", ids[i%len(ids)]).
					Scan(&u.ID, &u.Name, &u.Email, &u.CreatedAt, &u.Active)
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
			strIDs := make([]string, len(ids))
			for i, id := range ids {
				strIDs[i] = id.String()
			}

			rows, err := e.db.Query(selectUserSQL+" where id = any($1::uuid[])", pq.Array(strIDs))
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
			rows, err := e.db.Query(selectUserSQL+" where email like $1 limit $2", "%example.com%", count)
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
				limit $1`, count)
			if err != nil {
				return err
			}
			defer rows.Close()

			for rows.Next() {
				var d models.OrderWithDetails
				if err := rows.Scan(&d.ID, &d.Quantity, &d.TotalPrice, &d.CreatedAt,
					&d.User.ID, &d.User.Name, &d.User.Email, &d.User.CreatedAt, &d.User.Active); err != nil {
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
				limit $1`, count)
			if err != nil {
				return err
			}
			defer rows.Close()

			for rows.Next() {
				var d models.OrderWithDetails
				if err := rows.Scan(&d.ID, &d.Quantity, &d.TotalPrice, &d.CreatedAt,
					&d.User.ID, &d.User.Name, &d.User.Email, &d.User.CreatedAt, &d.User.Active,
					&d.Product.ID, &d.Product.Name, &d.Product.Description, &d.Product.Price,
					&d.Product.Stock, &d.Product.CreatedAt); err != nil {
					return err
				}
			}
			return rows.Err()
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
				if _, err := e.db.Exec("update users set active = $1 where id = $2", i%2 == 0, userID); err != nil {
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
			_, err := e.db.Exec("update users set active = $1 where id in (select id from users limit $2)", true, count)
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
				if _, err := e.db.Exec("update products set price = $1, stock = $2, description = $3 where id = $4",
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

			rows, err := tx.Query("select id from products limit $1", count)
			if err != nil {
				return err
			}
			var ids []uuid.UUID
			for rows.Next() {
				var id uuid.UUID
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
				if _, err := tx.Exec("update products set price = $1, stock = $2, description = $3 where id = $4",
					10.0+float64(i%100), 100+i%50, fmt.Sprintf("Updated description %d", i), id); err != nil {
					return err
				}
			}
			return tx.Commit()
		})
	})
}

func (e *Engine) ensureProductID() (uuid.UUID, error) {
	var id uuid.UUID
	query := func() error {
		return e.handle.Do(func() error {
			return e.db.QueryRow("select id from products limit 1").Scan(&id)
		})
	}

	err := query()
	if errors.Is(err, sql.ErrNoRows) {
		if err := e.GenerateTestData(100); err != nil {
			return uuid.Nil, err
		}
		err = query()
	}
	return id, err
}
