package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/chiraitori/HoYo-Code-Sender-Discord-Bot/internal/game"
)

// Repository handles all database operations
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new repository with SQLite
func NewRepository(dbPath string) (*Repository, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	repo := &Repository{db: db}

	// Run migrations
	if err := repo.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

// migrate creates the database schema
func (r *Repository) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS codes (
			game VARCHAR(20) NOT NULL,
			code VARCHAR(50) NOT NULL,
			reward TEXT NOT NULL DEFAULT '',
			is_expired INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (game, code)
		)`,
		`CREATE TABLE IF NOT EXISTS guild_configs (
			guild_id VARCHAR(20) PRIMARY KEY,
			channel_id VARCHAR(20) NOT NULL DEFAULT '',
			genshin_role VARCHAR(20) NOT NULL DEFAULT '',
			hsr_role VARCHAR(20) NOT NULL DEFAULT '',
			zzz_role VARCHAR(20) NOT NULL DEFAULT '',
			channel_missing_notified INTEGER NOT NULL DEFAULT 0,
			channel_missing_at TIMESTAMP,
			permission_missing_notified INTEGER NOT NULL DEFAULT 0,
			permission_missing_at TIMESTAMP,
			permission_missing_perm VARCHAR(50) NOT NULL DEFAULT '',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS guild_settings (
			guild_id VARCHAR(20) PRIMARY KEY,
			auto_send_enabled INTEGER NOT NULL DEFAULT 1,
			favorite_games_enabled INTEGER NOT NULL DEFAULT 0,
			genshin_enabled INTEGER NOT NULL DEFAULT 1,
			hkrpg_enabled INTEGER NOT NULL DEFAULT 1,
			nap_enabled INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE TABLE IF NOT EXISTS guild_languages (
			guild_id VARCHAR(20) PRIMARY KEY,
			language VARCHAR(10) NOT NULL DEFAULT 'en'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_codes_game ON codes(game)`,
	}

	for _, migration := range migrations {
		if _, err := r.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// Code ledger operations

// GetAllCodes returns the full ledger snapshot
func (r *Repository) GetAllCodes() ([]*Code, error) {
	rows, err := r.db.Query(
		`SELECT game, code, reward, is_expired, created_at FROM codes`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var codes []*Code
	for rows.Next() {
		c := &Code{}
		if err := rows.Scan(&c.Game, &c.Code, &c.Reward, &c.IsExpired, &c.CreatedAt); err != nil {
			return nil, err
		}
		codes = append(codes, c)
	}

	return codes, rows.Err()
}

// InsertCodes inserts a batch of new ledger entries in one transaction.
// Entries that already exist are left untouched.
func (r *Repository) InsertCodes(codes []*Code) error {
	if len(codes) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO codes (game, code, reward, is_expired) VALUES (?, ?, ?, ?)
		 ON CONFLICT(game, code) DO NOTHING`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range codes {
		if _, err := stmt.Exec(c.Game, c.Code, c.Reward, c.IsExpired); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// SetCodesExpired flips the expiry flag for a batch of codes of one
// game in one transaction
func (r *Repository) SetCodesExpired(g game.ID, codes []string, expired bool) error {
	if len(codes) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`UPDATE codes SET is_expired = ? WHERE game = ? AND code = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, code := range codes {
		if _, err := stmt.Exec(expired, g, code); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Guild config operations

const configColumns = `guild_id, channel_id, genshin_role, hsr_role, zzz_role,
	channel_missing_notified, channel_missing_at,
	permission_missing_notified, permission_missing_at, permission_missing_perm`

func scanConfig(scan func(...any) error) (*GuildConfig, error) {
	c := &GuildConfig{}
	var channelAt, permAt sql.NullTime
	err := scan(
		&c.GuildID, &c.ChannelID, &c.GenshinRole, &c.StarRailRole, &c.ZenlessRole,
		&c.ChannelMissing.Notified, &channelAt,
		&c.PermissionMissing.Notified, &permAt, &c.PermissionMissing.Permission,
	)
	if err != nil {
		return nil, err
	}
	if channelAt.Valid {
		c.ChannelMissing.LastNotified = &channelAt.Time
	}
	if permAt.Valid {
		c.PermissionMissing.LastNotified = &permAt.Time
	}
	return c, nil
}

// GetGuildConfig retrieves one guild's configuration
func (r *Repository) GetGuildConfig(guildID string) (*GuildConfig, error) {
	row := r.db.QueryRow(
		`SELECT `+configColumns+` FROM guild_configs WHERE guild_id = ?`, guildID,
	)
	return scanConfig(row.Scan)
}

// GetAllGuildConfigs loads every guild configuration, once per cycle
func (r *Repository) GetAllGuildConfigs() ([]*GuildConfig, error) {
	rows, err := r.db.Query(`SELECT ` + configColumns + ` FROM guild_configs`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*GuildConfig
	for rows.Next() {
		c, err := scanConfig(rows.Scan)
		if err != nil {
			return nil, err
		}
		configs = append(configs, c)
	}

	return configs, rows.Err()
}

// UpsertGuildConfig creates or updates the channel and role mapping for
// a guild. Problem flags are reset: a successful reconfiguration means
// the previous delivery problems no longer apply.
func (r *Repository) UpsertGuildConfig(c *GuildConfig) error {
	_, err := r.db.Exec(
		`INSERT INTO guild_configs (guild_id, channel_id, genshin_role, hsr_role, zzz_role)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(guild_id) DO UPDATE SET
			channel_id = excluded.channel_id,
			genshin_role = excluded.genshin_role,
			hsr_role = excluded.hsr_role,
			zzz_role = excluded.zzz_role,
			channel_missing_notified = 0,
			channel_missing_at = NULL,
			permission_missing_notified = 0,
			permission_missing_at = NULL,
			permission_missing_perm = ''`,
		c.GuildID, c.ChannelID, c.GenshinRole, c.StarRailRole, c.ZenlessRole,
	)
	return err
}

// SetGameRole updates a single game's mention role for a guild
func (r *Repository) SetGameRole(guildID string, g game.ID, roleID string) error {
	column := ""
	switch g {
	case game.Genshin:
		column = "genshin_role"
	case game.StarRail:
		column = "hsr_role"
	case game.Zenless:
		column = "zzz_role"
	default:
		return fmt.Errorf("unknown game: %s", g)
	}

	_, err := r.db.Exec(
		`INSERT INTO guild_configs (guild_id, `+column+`) VALUES (?, ?)
		 ON CONFLICT(guild_id) DO UPDATE SET `+column+` = excluded.`+column,
		guildID, roleID,
	)
	return err
}

// MarkChannelMissingNotified records that the guild owner has been
// alerted about a missing notification channel
func (r *Repository) MarkChannelMissingNotified(guildID string) error {
	_, err := r.db.Exec(
		`UPDATE guild_configs SET channel_missing_notified = 1, channel_missing_at = ? WHERE guild_id = ?`,
		time.Now().UTC(), guildID,
	)
	return err
}

// MarkPermissionMissingNotified records that the guild owner has been
// alerted about a missing permission
func (r *Repository) MarkPermissionMissingNotified(guildID, permission string) error {
	_, err := r.db.Exec(
		`UPDATE guild_configs SET permission_missing_notified = 1, permission_missing_at = ?, permission_missing_perm = ? WHERE guild_id = ?`,
		time.Now().UTC(), permission, guildID,
	)
	return err
}

// ClearProblemFlags resets both problem classes after a successful
// reconfiguration
func (r *Repository) ClearProblemFlags(guildID string) error {
	_, err := r.db.Exec(
		`UPDATE guild_configs SET
			channel_missing_notified = 0, channel_missing_at = NULL,
			permission_missing_notified = 0, permission_missing_at = NULL, permission_missing_perm = ''
		 WHERE guild_id = ?`,
		guildID,
	)
	return err
}

// Guild settings operations

const settingsColumns = `guild_id, auto_send_enabled, favorite_games_enabled,
	genshin_enabled, hkrpg_enabled, nap_enabled`

func scanSettings(scan func(...any) error) (*GuildSettings, error) {
	s := &GuildSettings{GameFilter: make(map[game.ID]bool, 3)}
	var genshin, hkrpg, nap bool
	err := scan(&s.GuildID, &s.AutoSendEnabled, &s.FavoriteGamesEnabled, &genshin, &hkrpg, &nap)
	if err != nil {
		return nil, err
	}
	s.GameFilter[game.Genshin] = genshin
	s.GameFilter[game.StarRail] = hkrpg
	s.GameFilter[game.Zenless] = nap
	return s, nil
}

// GetGuildSettings retrieves one guild's settings
func (r *Repository) GetGuildSettings(guildID string) (*GuildSettings, error) {
	row := r.db.QueryRow(
		`SELECT `+settingsColumns+` FROM guild_settings WHERE guild_id = ?`, guildID,
	)
	return scanSettings(row.Scan)
}

// GetAllGuildSettings loads every guild's settings keyed by guild id
func (r *Repository) GetAllGuildSettings() (map[string]*GuildSettings, error) {
	rows, err := r.db.Query(`SELECT ` + settingsColumns + ` FROM guild_settings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	settings := make(map[string]*GuildSettings)
	for rows.Next() {
		s, err := scanSettings(rows.Scan)
		if err != nil {
			return nil, err
		}
		settings[s.GuildID] = s
	}

	return settings, rows.Err()
}

// EnsureGuildSettings creates a default settings row if none exists
func (r *Repository) EnsureGuildSettings(guildID string) error {
	_, err := r.db.Exec(
		`INSERT INTO guild_settings (guild_id) VALUES (?) ON CONFLICT(guild_id) DO NOTHING`,
		guildID,
	)
	return err
}

// SetAutoSend toggles automatic code delivery for a guild
func (r *Repository) SetAutoSend(guildID string, enabled bool) error {
	_, err := r.db.Exec(
		`INSERT INTO guild_settings (guild_id, auto_send_enabled) VALUES (?, ?)
		 ON CONFLICT(guild_id) DO UPDATE SET auto_send_enabled = excluded.auto_send_enabled`,
		guildID, enabled,
	)
	return err
}

// SetGameEnabled toggles one game's notifications for a guild and
// switches the guild into favorite-games mode
func (r *Repository) SetGameEnabled(guildID string, g game.ID, enabled bool) error {
	column := ""
	switch g {
	case game.Genshin:
		column = "genshin_enabled"
	case game.StarRail:
		column = "hkrpg_enabled"
	case game.Zenless:
		column = "nap_enabled"
	default:
		return fmt.Errorf("unknown game: %s", g)
	}

	_, err := r.db.Exec(
		`INSERT INTO guild_settings (guild_id, favorite_games_enabled, `+column+`) VALUES (?, 1, ?)
		 ON CONFLICT(guild_id) DO UPDATE SET
			favorite_games_enabled = 1,
			`+column+` = excluded.`+column,
		guildID, enabled,
	)
	return err
}

// Guild language operations

// GetGuildLanguage returns the guild's language preference, or "" when unset
func (r *Repository) GetGuildLanguage(guildID string) (string, error) {
	var language string
	err := r.db.QueryRow(
		`SELECT language FROM guild_languages WHERE guild_id = ?`, guildID,
	).Scan(&language)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return language, nil
}

// SetGuildLanguage stores the guild's language preference
func (r *Repository) SetGuildLanguage(guildID, language string) error {
	_, err := r.db.Exec(
		`INSERT INTO guild_languages (guild_id, language) VALUES (?, ?)
		 ON CONFLICT(guild_id) DO UPDATE SET language = excluded.language`,
		guildID, language,
	)
	return err
}

// DeleteGuildData removes every record scoped to a guild in one
// transaction. Used both by /deletesetup and by dead-tenant cleanup.
func (r *Repository) DeleteGuildData(guildID string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"guild_configs", "guild_settings", "guild_languages"} {
		if _, err := tx.Exec(`DELETE FROM `+table+` WHERE guild_id = ?`, guildID); err != nil {
			return err
		}
	}

	return tx.Commit()
}
