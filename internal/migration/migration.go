package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	auditdomain "github.com/smallbiznis/billbook/internal/audit/domain"
	billdomain "github.com/smallbiznis/billbook/internal/bill/domain"
	ledgerdomain "github.com/smallbiznis/billbook/internal/ledger/domain"
	partydomain "github.com/smallbiznis/billbook/internal/party/domain"
	paymentdomain "github.com/smallbiznis/billbook/internal/payment/domain"
	taxdomain "github.com/smallbiznis/billbook/internal/tax/domain"
	"gorm.io/gorm"
)

// billKindIndex keeps one bill, return and cancellation entry per bill.
const billKindIndex = `CREATE UNIQUE INDEX IF NOT EXISTS ux_party_ledger_entries_bill_kind
	ON party_ledger_entries (bill_id, kind)
	WHERE bill_id IS NOT NULL AND kind IN ('bill', 'return', 'cancellation')`

// RunMigrations applies the embedded postgres migrations.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

// Models lists every table the engine owns.
func Models() []any {
	return []any{
		&partydomain.Party{},
		&ledgerdomain.LedgerEntry{},
		&billdomain.Bill{},
		&billdomain.BillLine{},
		&paymentdomain.Payment{},
		&taxdomain.TaxRate{},
		&auditdomain.AuditLog{},
	}
}

// AutoMigrate builds the schema from the models for sqlite and mysql, which
// have no embedded migration set.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	if db.Dialector.Name() == "mysql" {
		// mysql has no partial indexes; the duplicate pre-check in the poster covers it.
		return nil
	}
	if err := db.Exec(billKindIndex).Error; err != nil {
		return fmt.Errorf("create bill kind index: %w", err)
	}
	return nil
}
