package store

import (
	"encoding/json"

	"github.com/google/uuid"
)

// User is the persisted account row, including aggregate game statistics.
type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	Username     string    `gorm:"size:50;uniqueIndex"`
	PasswordHash string    `gorm:"size:128"`
	DisplayName  string    `gorm:"size:100"`

	TotalGames int
	GoodWins   int
	GoodLosses int
	EvilWins   int
	EvilLosses int

	// RoleStats is a JSON object mapping role name -> {wins, losses}.
	// Stored as text so the same model works on Postgres and the sqlite
	// test driver.
	RoleStats string `gorm:"type:text"`
}

func (User) TableName() string { return "users" }

// Wins is the aggregate win total surfaced on rosters and the leaderboard.
func (u *User) Wins() int { return u.GoodWins + u.EvilWins }

type RoleStat struct {
	Wins   int `json:"wins"`
	Losses int `json:"losses"`
}

func (u *User) roleStats() map[string]RoleStat {
	stats := map[string]RoleStat{}
	if u.RoleStats != "" {
		// A corrupt blob resets to empty rather than failing the write.
		_ = json.Unmarshal([]byte(u.RoleStats), &stats)
	}
	return stats
}

func (u *User) setRoleStats(stats map[string]RoleStat) {
	b, err := json.Marshal(stats)
	if err != nil {
		return
	}
	u.RoleStats = string(b)
}
