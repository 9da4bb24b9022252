package session

import (
	"time"

	"gorm.io/gorm"

	"github.com/lch-dev/board2/models"
	"github.com/lch-dev/board2/utils"
)

// StartSweeper launches a background goroutine that periodically deletes
// expired sessions rows. It is a no-op when no TTL is configured (the Redis
// backend expires keys on its own).
func StartSweeper(db *gorm.DB, ttl, interval time.Duration) {
	if ttl <= 0 {
		return
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	go func() {
		for {
			time.Sleep(interval)
			sweepExpired(db, ttl)
		}
	}()
}

func sweepExpired(db *gorm.DB, ttl time.Duration) {
	cutoff := time.Now().Add(-ttl)
	res := db.Delete(&models.Session{}, "created_at <= ?", cutoff)
	if res.Error != nil {
		utils.Sugar.Warnf("session sweeper failed: %v", res.Error)
		return
	}
	if res.RowsAffected > 0 {
		utils.Sugar.Infof("session sweeper removed %d stale sessions", res.RowsAffected)
	}
}
