package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type lobbyRow struct {
	Code      string `gorm:"primaryKey;size:12"`
	HostID    string `gorm:"size:64;not null"`
	Open      bool   `gorm:"not null;default:true"`
	StartedAt *time.Time
	CreatedAt time.Time
}

func (lobbyRow) TableName() string { return "lobbies" }

type memberRow struct {
	ID        uint   `gorm:"primaryKey"`
	LobbyCode string `gorm:"size:12;not null;uniqueIndex:idx_lobby_player;index"`
	PlayerID  string `gorm:"size:64;not null;uniqueIndex:idx_lobby_player"`
	Name      string `gorm:"size:64"`
	Slot      int    `gorm:"not null"`
	Ready     bool   `gorm:"not null;default:false"`
	Role      string `gorm:"size:8;not null"`
	Status    string `gorm:"size:8;not null;index"` // active | left
	JoinedAt  time.Time
}

func (memberRow) TableName() string { return "lobby_members" }

const (
	statusActive = "active"
	statusLeft   = "left"
)

// GormStore keeps lobby records in Postgres or SQLite.
type GormStore struct {
	db  *gorm.DB
	log *zap.Logger
}

// Open picks the dialect from dsn: postgres:// or postgresql:// go through
// pgx, sqlite:<path> through the sqlite driver.
func Open(dsn string, log *zap.Logger) (*GormStore, error) {
	cfg := &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	}

	var dialector gorm.Dialector
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		pcfg, err := pgx.ParseConfig(dsn)
		if err != nil {
			return nil, fmt.Errorf("parse postgres dsn: %w", err)
		}
		dialector = postgres.New(postgres.Config{Conn: stdlib.OpenDB(*pcfg)})
	case strings.HasPrefix(dsn, "sqlite:"):
		dialector = sqlite.Open(strings.TrimPrefix(dsn, "sqlite:"))
	default:
		return nil, fmt.Errorf("unsupported database url %q", dsn)
	}

	db, err := gorm.Open(dialector, cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(&lobbyRow{}, &memberRow{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Info("lobby store ready", zap.String("dialect", db.Dialector.Name()))
	return &GormStore{db: db, log: log}, nil
}

func (s *GormStore) Create(ctx context.Context, code string, host Member) error {
	now := time.Now().UTC()
	if host.JoinedAt.IsZero() {
		host.JoinedAt = now
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&lobbyRow{Code: code, HostID: host.PlayerID, Open: true, CreatedAt: now}).Error; err != nil {
			return err
		}
		return tx.Create(&memberRow{
			LobbyCode: code,
			PlayerID:  host.PlayerID,
			Name:      host.Name,
			Slot:      0,
			Role:      string(RoleHost),
			Status:    statusActive,
			JoinedAt:  host.JoinedAt,
		}).Error
	})
	if isDuplicate(err) {
		return ErrCodeTaken
	}
	return err
}

func (s *GormStore) Join(ctx context.Context, code string, m Member) error {
	if m.Role == "" {
		m.Role = RoleMember
	}
	if m.JoinedAt.IsZero() {
		m.JoinedAt = time.Now().UTC()
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&lobbyRow{}, "code = ?", code).Error; err != nil {
			return notFound(err)
		}
		var row memberRow
		err := tx.Where("lobby_code = ? AND player_id = ?", code, m.PlayerID).First(&row).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			row = memberRow{LobbyCode: code, PlayerID: m.PlayerID, JoinedAt: m.JoinedAt}
		case err != nil:
			return err
		}
		row.Name = m.Name
		row.Slot = m.Slot
		row.Ready = m.Ready
		row.Role = string(m.Role)
		row.Status = statusActive
		return tx.Save(&row).Error
	})
}

func (s *GormStore) SetReady(ctx context.Context, code, playerID string, ready bool) error {
	res := s.db.WithContext(ctx).Model(&memberRow{}).
		Where("lobby_code = ? AND player_id = ? AND status = ?", code, playerID, statusActive).
		Update("ready", ready)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotMember
	}
	return nil
}

func (s *GormStore) Leave(ctx context.Context, code, playerID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&memberRow{}).
			Where("lobby_code = ? AND player_id = ? AND status = ?", code, playerID, statusActive).
			Updates(map[string]any{"status": statusLeft, "ready": false})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotMember
		}

		var rest []memberRow
		if err := tx.Where("lobby_code = ? AND status = ?", code, statusActive).Order("slot").Find(&rest).Error; err != nil {
			return err
		}
		for i := range rest {
			role := RoleMember
			if i == 0 {
				role = RoleHost
			}
			if err := tx.Model(&rest[i]).Updates(map[string]any{"slot": i, "role": string(role)}).Error; err != nil {
				return err
			}
		}
		if len(rest) > 0 {
			return tx.Model(&lobbyRow{}).Where("code = ?", code).Update("host_id", rest[0].PlayerID).Error
		}
		return nil
	})
}

func (s *GormStore) Start(ctx context.Context, code string, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&lobbyRow{}).Where("code = ?", code).
		Updates(map[string]any{"open": false, "started_at": at})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) GetByCode(ctx context.Context, code string) (*Record, error) {
	db := s.db.WithContext(ctx)
	var row lobbyRow
	if err := db.First(&row, "code = ?", code).Error; err != nil {
		return nil, notFound(err)
	}
	var members []memberRow
	if err := db.Where("lobby_code = ? AND status = ?", code, statusActive).Order("slot").Find(&members).Error; err != nil {
		return nil, err
	}

	rec := &Record{
		Code:      row.Code,
		HostID:    row.HostID,
		Open:      row.Open,
		StartedAt: row.StartedAt,
		CreatedAt: row.CreatedAt,
		Members:   make([]Member, 0, len(members)),
	}
	for _, m := range members {
		rec.Members = append(rec.Members, Member{
			PlayerID: m.PlayerID,
			Name:     m.Name,
			Slot:     m.Slot,
			Ready:    m.Ready,
			Role:     Role(m.Role),
			JoinedAt: m.JoinedAt,
		})
	}
	return rec, nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
