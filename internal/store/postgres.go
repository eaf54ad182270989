package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/DoyleJ11/auction-backend/internal/engine"
)

// saleRow is the sales table. ID orders replay.
type saleRow struct {
	ID        uint            `gorm:"primaryKey"`
	PlayerID  string          `gorm:"uniqueIndex;not null"`
	TeamID    string          `gorm:"index;not null"`
	Price     decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	RTMUsed   bool            `gorm:"not null;default:false"`
	CreatedAt time.Time
}

func (saleRow) TableName() string { return "sales" }

func (r saleRow) record() engine.SaleRecord {
	return engine.SaleRecord{PlayerID: r.PlayerID, TeamID: r.TeamID, Price: r.Price, RTMUsed: r.RTMUsed}
}

type PostgresConfig struct {
	DSN      string
	MaxConns int
}

// Postgres stores sales through gorm on a pgx-backed database/sql handle.
type Postgres struct {
	db     *gorm.DB
	sqlDB  *sql.DB
	logger *zap.Logger
}

func OpenPostgres(ctx context.Context, cfg PostgresConfig, log *zap.Logger) (*Postgres, error) {
	if log == nil {
		log = zap.NewNop()
	}

	connCfg, err := pgx.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	if connCfg.RuntimeParams == nil {
		connCfg.RuntimeParams = map[string]string{}
	}
	connCfg.RuntimeParams["application_name"] = "auction-backend"

	sqlDB := stdlib.OpenDB(*connCfg)
	if cfg.MaxConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxConns)
		sqlDB.SetMaxIdleConns(cfg.MaxConns)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("open gorm: %w", err)
	}
	if err := db.WithContext(ctx).AutoMigrate(&saleRow{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate sales: %w", err)
	}

	log.Info("sale store ready", zap.String("host", connCfg.Host), zap.String("database", connCfg.Database))
	return &Postgres{db: db, sqlDB: sqlDB, logger: log}, nil
}

// AppendSale inserts rec. A row already stored for the same player with the
// same outcome counts as success, so a write whose reply was lost can be
// retried; a different outcome for that player is ErrConflict.
func (p *Postgres) AppendSale(ctx context.Context, rec engine.SaleRecord) error {
	row := saleRow{PlayerID: rec.PlayerID, TeamID: rec.TeamID, Price: rec.Price, RTMUsed: rec.RTMUsed}
	res := p.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "player_id"}}, DoNothing: true}).
		Create(&row)
	if res.Error != nil {
		return fmt.Errorf("insert sale %s: %w", rec.PlayerID, res.Error)
	}
	if res.RowsAffected == 1 {
		p.logger.Debug("sale stored", zap.Uint("id", row.ID), zap.String("player", rec.PlayerID), zap.String("team", rec.TeamID))
		return nil
	}

	var existing saleRow
	if err := p.db.WithContext(ctx).Where("player_id = ?", rec.PlayerID).Take(&existing).Error; err != nil {
		return fmt.Errorf("read back sale %s: %w", rec.PlayerID, err)
	}
	if err := sameSale(existing.record(), rec); err != nil {
		return err
	}
	p.logger.Info("sale already stored", zap.Uint("id", existing.ID), zap.String("player", rec.PlayerID))
	return nil
}

func (p *Postgres) LoadSales(ctx context.Context) ([]engine.SaleRecord, error) {
	var rows []saleRow
	if err := p.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load sales: %w", err)
	}
	out := make([]engine.SaleRecord, len(rows))
	for i, r := range rows {
		out[i] = r.record()
	}
	return out, nil
}

// TruncateSales erases the history. Used by a full reset.
func (p *Postgres) TruncateSales(ctx context.Context) error {
	if err := p.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&saleRow{}).Error; err != nil {
		return fmt.Errorf("truncate sales: %w", err)
	}
	return nil
}

func (p *Postgres) Close() error {
	return p.sqlDB.Close()
}
