package database

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/trackvote/pkg/models"
)

// MySQLDB is the optional durability layer. The in-memory engine is
// authoritative at runtime; these tables exist so rooms, queues and votes
// survive a process restart.
type MySQLDB struct {
	*gorm.DB
}

func NewMySQLDB(host, port, user, password, dbname string) (*MySQLDB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		user, password, host, port, dbname)

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	}

	db, err := gorm.Open(mysql.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := autoMigrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &MySQLDB{DB: db}, nil
}

func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Room{},
		&models.Member{},
		&models.QueueItem{},
		&models.Vote{},
	)
}

// Room operations

func (db *MySQLDB) CreateRoom(room *models.Room) error {
	return db.Create(room).Error
}

func (db *MySQLDB) CloseRoom(roomID uuid.UUID) error {
	return db.Model(&models.Room{}).
		Where("id = ?", roomID).
		Updates(map[string]any{"active": false, "updated_at": time.Now()}).Error
}

// ActiveRooms returns every room to reload at startup.
func (db *MySQLDB) ActiveRooms() ([]models.Room, error) {
	var rooms []models.Room
	if err := db.Where("active = ?", true).Find(&rooms).Error; err != nil {
		return nil, err
	}
	return rooms, nil
}

// Member operations

func (db *MySQLDB) UpsertMember(member *models.Member) error {
	var existing models.Member
	result := db.Where("room_id = ? AND user_id = ?", member.RoomID, member.UserID).First(&existing)
	if result.Error == gorm.ErrRecordNotFound {
		return db.Create(member).Error
	}
	return result.Error
}

func (db *MySQLDB) Members(roomID uuid.UUID) ([]models.Member, error) {
	var members []models.Member
	if err := db.Where("room_id = ?", roomID).Find(&members).Error; err != nil {
		return nil, err
	}
	return members, nil
}

// Queue operations

func (db *MySQLDB) AddQueueItem(item *models.QueueItem) error {
	return db.Create(item).Error
}

// MarkPlayed records an advance; the row stays for history/debugging but
// is excluded from reloads.
func (db *MySQLDB) MarkPlayed(itemID uuid.UUID) error {
	return db.Model(&models.QueueItem{}).
		Where("id = ?", itemID).
		Updates(map[string]any{"played": true, "updated_at": time.Now()}).Error
}

// ActiveQueue returns the room's unplayed items in submission order. The
// ranking itself is recomputed in memory from the votes.
func (db *MySQLDB) ActiveQueue(roomID uuid.UUID) ([]models.QueueItem, error) {
	var items []models.QueueItem
	if err := db.Where("room_id = ? AND played = ?", roomID, false).
		Order("seq ASC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// Vote operations

func (db *MySQLDB) UpsertVote(vote *models.Vote) error {
	var existing models.Vote
	result := db.Where("queue_item_id = ? AND user_id = ?", vote.QueueItemID, vote.UserID).First(&existing)

	if result.Error == gorm.ErrRecordNotFound {
		return db.Create(vote).Error
	}
	if result.Error != nil {
		return result.Error
	}

	existing.Value = vote.Value
	existing.UpdatedAt = time.Now()
	return db.Save(&existing).Error
}

// VotesForItems loads the vote maps for a set of queue items in one query.
func (db *MySQLDB) VotesForItems(itemIDs []uuid.UUID) (map[uuid.UUID]map[uuid.UUID]int, error) {
	out := make(map[uuid.UUID]map[uuid.UUID]int, len(itemIDs))
	if len(itemIDs) == 0 {
		return out, nil
	}

	var votes []models.Vote
	if err := db.Where("queue_item_id IN ?", itemIDs).Find(&votes).Error; err != nil {
		return nil, err
	}

	for _, v := range votes {
		if out[v.QueueItemID] == nil {
			out[v.QueueItemID] = make(map[uuid.UUID]int)
		}
		out[v.QueueItemID][v.UserID] = v.Value
	}
	return out, nil
}
