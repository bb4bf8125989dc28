package journal

import (
	"time"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Event kinds recorded by the server. The journal is an audit trail of
// registry and directory churn; the server never reads it back to
// rebuild state.
const (
	KindRegister = "register"
	KindDelete   = "delete"
	KindSweep    = "sweep"
	KindBind     = "bind"
	KindUnbind   = "unbind"
)

type Event struct {
	ID        uint `gorm:"primaryKey"`
	Kind      string
	PeerID    string
	Detail    string
	CreatedAt time.Time
}

// Journal appends operational events to a sqlite file. A nil *Journal is
// valid and drops everything, so callers need no journaling-enabled
// branches.
type Journal struct {
	db  *gorm.DB
	log *logrus.Logger
}

func Open(path string, log *logrus.Logger) (*Journal, error) {
	if log == nil {
		log = logrus.New()
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&Event{}); err != nil {
		return nil, err
	}
	return &Journal{db: db, log: log}, nil
}

func (j *Journal) Record(kind, peerID, detail string) {
	if j == nil {
		return
	}
	evt := Event{Kind: kind, PeerID: peerID, Detail: detail}
	if err := j.db.Create(&evt).Error; err != nil {
		j.log.Warnf("Failed to journal %s event for %s: %v", kind, peerID, err)
	}
}

// Recent returns up to limit events, newest first.
func (j *Journal) Recent(limit int) ([]Event, error) {
	if j == nil {
		return nil, nil
	}
	var events []Event
	err := j.db.Order("id desc").Limit(limit).Find(&events).Error
	return events, err
}

func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
