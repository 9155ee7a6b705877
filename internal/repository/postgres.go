// Package repository содержит реализации хранилища состояния маркетплейса.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"

	"github.com/mmeshcher/servimarket-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrUserExists возвращается при попытке создать пользователя с уже существующим логином.
var (
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrServiceNotFound возвращается, если заявка не найдена.
	ErrServiceNotFound = errors.New("service not found")
	// ErrServiceExists возвращается при попытке создать заявку с занятым идентификатором.
	ErrServiceExists = errors.New("service already exists")
	// ErrOfferExists возвращается при попытке создать предложение материалов с занятым идентификатором.
	ErrOfferExists = errors.New("supply offer already exists")
	// ErrVersionConflict возвращается, когда переход применён к устаревшей версии заявки.
	ErrVersionConflict = errors.New("service version conflict")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// withRetry повторяет операцию при сбоях сериализации и дедлоках.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	backoff := retry.WithMaxRetries(3, retry.NewFibonacci(500*time.Millisecond))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn()
		if err == nil {
			return nil
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				return retry.RetryableError(err)
			}
		}

		return err
	})
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateUser создаёт нового пользователя.
func (r *PostgresRepository) CreateUser(ctx context.Context, u model.User) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (id, login, password_hash, name, role, rating_sum, rating_count, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		u.ID, u.Login, u.PasswordHash, u.Name, string(u.Role),
		u.Reputation.RatingSum, u.Reputation.RatingCount, u.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%w: %s", ErrUserExists, u.Login)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func scanUser(row pgx.Row) (*model.User, error) {
	var (
		u    model.User
		role string
	)
	err := row.Scan(&u.ID, &u.Login, &u.PasswordHash, &u.Name, &role,
		&u.Reputation.RatingSum, &u.Reputation.RatingCount, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.Role = model.Role(role)
	return &u, nil
}

const userColumns = `id, login, password_hash, name, role, rating_sum, rating_count, created_at`

// GetUserByLogin возвращает пользователя по логину.
func (r *PostgresRepository) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE login = $1`, login)
	return scanUser(row)
}

// GetUserByID возвращает пользователя по идентификатору.
func (r *PostgresRepository) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// CreateService сохраняет новую заявку.
func (r *PostgresRepository) CreateService(ctx context.Context, svc model.Service) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO services
		   (id, requester_id, status, title, description, category, location, service_date,
		    required_supply, selected_quote_id, rating, version, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), $11, $12, $13)`,
		svc.ID, svc.RequesterID, string(svc.Status), svc.Title, svc.Description,
		svc.Category, svc.Location, svc.Date, svc.RequiredSupply,
		svc.SelectedQuoteID, svc.Rating, svc.Version, svc.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%w: %s", ErrServiceExists, svc.ID)
		}
		return fmt.Errorf("insert service: %w", err)
	}
	return nil
}

// GetService возвращает заявку вместе с предложениями в порядке их добавления.
func (r *PostgresRepository) GetService(ctx context.Context, id string) (*model.Service, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, requester_id, status, title, description, category, location, service_date,
		        required_supply, COALESCE(selected_quote_id, ''), rating, version, created_at
		 FROM services WHERE id = $1`, id)

	svc, err := scanService(row)
	if err != nil {
		return nil, err
	}

	quotes, err := r.quotesForService(ctx, id)
	if err != nil {
		return nil, err
	}
	svc.Quotes = quotes

	return svc, nil
}

func scanService(row pgx.Row) (*model.Service, error) {
	var (
		svc    model.Service
		status string
	)
	err := row.Scan(&svc.ID, &svc.RequesterID, &status, &svc.Title, &svc.Description,
		&svc.Category, &svc.Location, &svc.Date, &svc.RequiredSupply,
		&svc.SelectedQuoteID, &svc.Rating, &svc.Version, &svc.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrServiceNotFound
		}
		return nil, fmt.Errorf("scan service: %w", err)
	}
	svc.Status = model.ServiceStatus(status)
	return &svc, nil
}

func (r *PostgresRepository) quotesForService(ctx context.Context, serviceID string) ([]model.Quote, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, service_id, provider_id, price, duration_days, deadline, notes, created_at
		 FROM quotes
		 WHERE service_id = $1
		 ORDER BY position`,
		serviceID,
	)
	if err != nil {
		return nil, fmt.Errorf("select quotes: %w", err)
	}
	defer rows.Close()

	var quotes []model.Quote
	for rows.Next() {
		var q model.Quote
		if err := rows.Scan(&q.ID, &q.ServiceID, &q.ProviderID, &q.PriceCents,
			&q.DurationDays, &q.Deadline, &q.Notes, &q.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan quote: %w", err)
		}
		quotes = append(quotes, q)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return quotes, nil
}

// ListServices возвращает все заявки с предложениями.
func (r *PostgresRepository) ListServices(ctx context.Context) ([]model.Service, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, requester_id, status, title, description, category, location, service_date,
		        required_supply, COALESCE(selected_quote_id, ''), rating, version, created_at
		 FROM services
		 ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("select services: %w", err)
	}
	defer rows.Close()

	var services []model.Service
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		services = append(services, *svc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	for i := range services {
		quotes, err := r.quotesForService(ctx, services[i].ID)
		if err != nil {
			return nil, err
		}
		services[i].Quotes = quotes
	}

	return services, nil
}

// SaveTransition атомарно сохраняет результат перехода: строку заявки,
// её предложения и, если передано, приращение репутации исполнителя.
// Репутация обновляется как дельта поверх текущего значения в БД, а не
// абсолютным значением из снимка: проверка версии защищает только заявку,
// и завершения разных заявок одного исполнителя не должны терять оценки.
// Запись отклоняется с ErrVersionConflict, если версия заявки в БД не
// совпадает с ожидаемой.
func (r *PostgresRepository) SaveTransition(ctx context.Context, svc model.Service, expectedVersion int64, delta *model.ReputationDelta) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		cmdTag, err := tx.Exec(ctx,
			`UPDATE services
			 SET status = $2, selected_quote_id = NULLIF($3, ''), rating = $4, version = version + 1
			 WHERE id = $1 AND version = $5`,
			svc.ID, string(svc.Status), svc.SelectedQuoteID, svc.Rating, expectedVersion,
		)
		if err != nil {
			return fmt.Errorf("update service: %w", err)
		}
		if cmdTag.RowsAffected() == 0 {
			return fmt.Errorf("%w: service %s version %d", ErrVersionConflict, svc.ID, expectedVersion)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM quotes WHERE service_id = $1`, svc.ID); err != nil {
			return fmt.Errorf("delete quotes: %w", err)
		}

		for i, q := range svc.Quotes {
			_, err := tx.Exec(ctx,
				`INSERT INTO quotes (id, service_id, provider_id, price, duration_days, deadline, notes, position, created_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				q.ID, svc.ID, q.ProviderID, q.PriceCents, q.DurationDays, q.Deadline, q.Notes, i, q.CreatedAt,
			)
			if err != nil {
				return fmt.Errorf("insert quote: %w", err)
			}
		}

		if delta != nil {
			cmdTag, err := tx.Exec(ctx,
				`UPDATE users
				 SET rating_sum = rating_sum + $2, rating_count = rating_count + 1
				 WHERE id = $1`,
				delta.ProviderID, delta.Rating,
			)
			if err != nil {
				return fmt.Errorf("update reputation: %w", err)
			}
			if cmdTag.RowsAffected() == 0 {
				return fmt.Errorf("%w: %s", ErrUserNotFound, delta.ProviderID)
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		return nil
	})
}

// CreateSupplyOffer сохраняет новое предложение материалов.
func (r *PostgresRepository) CreateSupplyOffer(ctx context.Context, offer model.SupplyOffer) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO supply_offers (id, supplier_id, name, category, price, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		offer.ID, offer.SupplierID, offer.Name, offer.Category, offer.PriceCents, offer.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%w: %s", ErrOfferExists, offer.ID)
		}
		return fmt.Errorf("insert supply offer: %w", err)
	}
	return nil
}

// ListSupplyOffers возвращает все предложения материалов.
func (r *PostgresRepository) ListSupplyOffers(ctx context.Context) ([]model.SupplyOffer, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, supplier_id, name, category, price, created_at
		 FROM supply_offers
		 ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("select supply offers: %w", err)
	}
	defer rows.Close()

	var offers []model.SupplyOffer
	for rows.Next() {
		var o model.SupplyOffer
		if err := rows.Scan(&o.ID, &o.SupplierID, &o.Name, &o.Category, &o.PriceCents, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan supply offer: %w", err)
		}
		offers = append(offers, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return offers, nil
}
