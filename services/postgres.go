package services

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/alphabatem/common/context"
	log "github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ghostwriter-labs/gate_api/model"
	"github.com/ghostwriter-labs/gate_api/shared"
)

type PostgresService struct {
	context.DefaultService
	db *gorm.DB

	database string
}

const POSTGRES_SVC = "postgres_svc"

func (ds PostgresService) Id() string {
	return POSTGRES_SVC
}

func (ds PostgresService) Db() *gorm.DB {
	return ds.db
}

func (ds *PostgresService) Configure(ctx *context.Context) error {
	ds.database = os.Getenv("DATABASE_URL")
	if ds.database == "" {
		// Fallback to individual environment variables
		host := os.Getenv("DB_HOST")
		if host == "" {
			host = "localhost"
		}
		port := os.Getenv("DB_PORT")
		if port == "" {
			port = "5432"
		}
		user := os.Getenv("DB_USER")
		if user == "" {
			user = "postgres"
		}
		password := os.Getenv("DB_PASSWORD")
		if password == "" {
			password = "postgres"
		}
		dbname := os.Getenv("DB_NAME")
		if dbname == "" {
			dbname = "gate_api"
		}
		sslmode := os.Getenv("DB_SSLMODE")
		if sslmode == "" {
			sslmode = "disable"
		}
		timezone := os.Getenv("DB_TIMEZONE")
		if timezone == "" {
			timezone = "UTC"
		}

		ds.database = fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
			host, user, password, dbname, port, sslmode, timezone)
	}

	return ds.DefaultService.Configure(ctx)
}

func (ds *PostgresService) Start() (err error) {
	// Retry connection with exponential backoff
	maxRetries := 10
	retryDelay := time.Second

	for attempt := 1; attempt <= maxRetries; attempt++ {
		log.Printf("Attempting to connect to database (attempt %d/%d)...", attempt, maxRetries)

		ds.db, err = gorm.Open(postgres.Open(ds.database), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Error),
		})

		if err == nil {
			sqlDB, dbErr := ds.db.DB()
			if dbErr == nil {
				pingErr := sqlDB.Ping()
				if pingErr == nil {
					log.Println("Successfully connected to database")
					break
				}
				err = pingErr
			} else {
				err = dbErr
			}
		}

		if attempt == maxRetries {
			log.Printf("Failed to connect to database after %d attempts: %v", maxRetries, err)
			return err
		}

		log.Printf("Database connection failed: %v. Retrying in %v...", err, retryDelay)
		time.Sleep(retryDelay)

		retryDelay *= 2
		if retryDelay > 10*time.Second {
			retryDelay = 10 * time.Second
		}
	}

	models := []interface{}{
		&model.AccessToken{},
		&model.SecurityEvent{},
		&model.AdminUser{},
	}

	err = ds.db.AutoMigrate(models...)
	if err != nil {
		log.Printf("Failed to migrate database: %v", err)
		return err
	}

	err = ds.seedInitialAdmin()
	if err != nil {
		log.Printf("Failed to seed initial admin: %v", err)
		return err
	}

	log.Println("Database connected and migrated successfully")
	return nil
}

// seedInitialAdmin creates a first operator account from env so a fresh
// deployment is reachable. No-op when any admin exists or env is unset.
func (ds *PostgresService) seedInitialAdmin() error {
	username := os.Getenv("ADMIN_USERNAME")
	password := os.Getenv("ADMIN_PASSWORD")
	if username == "" || password == "" {
		return nil
	}

	var count int64
	if err := ds.db.Model(&model.AdminUser{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	id, _ := uuid.NewV7()
	admin := &model.AdminUser{
		ID:        id.String(),
		Username:  username,
		Password:  string(hashed),
		IsActive:  true,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := ds.db.Create(admin).Error; err != nil {
		return err
	}

	log.Printf("Seeded initial admin user %s", username)
	return nil
}

func (ds *PostgresService) Shutdown() {
	sqlDB, err := ds.db.DB()
	if err == nil {
		sqlDB.Close()
	}
}

// IsNotFound reports whether a store error means the row is genuinely
// absent. HandleError wraps the driver error, so an unreachable database
// never reads as a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

func (ds *PostgresService) HandleError(err error) error {
	if err == nil {
		return nil
	}

	var statusCode int
	var errorType string

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		statusCode = http.StatusNotFound // 404
		errorType = "NOT_FOUND"
	case errors.Is(err, gorm.ErrDuplicatedKey):
		statusCode = http.StatusConflict // 409
		errorType = "CONFLICT"
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		statusCode = http.StatusBadRequest // 400
		errorType = "FOREIGN_KEY_VIOLATION"
	case errors.Is(err, gorm.ErrInvalidTransaction):
		statusCode = http.StatusInternalServerError // 500
		errorType = "TRANSACTION_ERROR"
	default:
		if strings.Contains(err.Error(), "duplicate key value violates unique constraint") {
			statusCode = http.StatusConflict // 409
			errorType = "UNIQUE_CONSTRAINT"
		} else if strings.Contains(err.Error(), "relation") && strings.Contains(err.Error(), "does not exist") {
			statusCode = http.StatusInternalServerError // 500
			errorType = "SCHEMA_ERROR"
		} else if strings.Contains(err.Error(), "connection refused") {
			statusCode = http.StatusServiceUnavailable // 503
			errorType = "DATABASE_CONNECTION_ERROR"
		} else {
			statusCode = http.StatusInternalServerError // 500
			errorType = "INTERNAL_ERROR"
		}
	}

	logEntry := log.WithFields(log.Fields{
		"status_code": statusCode,
		"error_type":  errorType,
		"error":       err.Error(),
	})

	if statusCode >= 500 {
		logEntry.Error("Database error occurred")
	} else {
		logEntry.Warn("Database operation failed")
	}

	return fmt.Errorf("%s: %w", errorType, err)
}

// ==================== TOKEN METHODS ====================

func (ds *PostgresService) CreateToken(token *model.AccessToken) (*model.AccessToken, error) {
	if token.ID == "" {
		token.ID = uuid.New().String()
	}
	now := time.Now()
	token.CreatedAt = now
	token.UpdatedAt = now

	if err := ds.db.Create(token).Error; err != nil {
		return nil, ds.HandleError(err)
	}
	return token, nil
}

func (ds *PostgresService) GetToken(id string) (*model.AccessToken, error) {
	var token model.AccessToken
	if err := ds.db.Where("id = ?", id).First(&token).Error; err != nil {
		return nil, ds.HandleError(err)
	}
	return &token, nil
}

func (ds *PostgresService) UpdateToken(token *model.AccessToken) error {
	token.UpdatedAt = time.Now()
	if err := ds.db.Save(token).Error; err != nil {
		return ds.HandleError(err)
	}
	return nil
}

func (ds *PostgresService) DeactivateToken(id string) (bool, error) {
	res := ds.db.Model(&model.AccessToken{}).
		Where("id = ? AND is_active = ?", id, true).
		Updates(map[string]interface{}{
			"is_active":  false,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, ds.HandleError(res.Error)
	}
	return res.RowsAffected > 0, nil
}

// GetActiveTokenByFingerprint finds the live free-tier token issued for an
// owner fingerprint, if any.
func (ds *PostgresService) GetActiveTokenByFingerprint(fingerprint, tier string) (*model.AccessToken, error) {
	var token model.AccessToken
	err := ds.db.Where("owner_fingerprint = ? AND tier = ? AND is_active = ?", fingerprint, tier, true).
		First(&token).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, ds.HandleError(err)
	}
	return &token, nil
}

// DeactivateTokensByFingerprint retires every active token of a tier for an
// owner. Used when a paid purchase supersedes the free grant.
func (ds *PostgresService) DeactivateTokensByFingerprint(fingerprint, tier string) (int64, error) {
	res := ds.db.Model(&model.AccessToken{}).
		Where("owner_fingerprint = ? AND tier = ? AND is_active = ?", fingerprint, tier, true).
		Updates(map[string]interface{}{
			"is_active":  false,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return 0, ds.HandleError(res.Error)
	}
	return res.RowsAffected, nil
}

func (ds *PostgresService) ListTokens(tier string, active *bool, page, pageSize int) ([]model.AccessToken, int64, error) {
	var tokens []model.AccessToken
	var total int64

	query := ds.db.Model(&model.AccessToken{})
	if tier != "" {
		query = query.Where("tier = ?", tier)
	}
	if active != nil {
		query = query.Where("is_active = ?", *active)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, ds.HandleError(err)
	}

	offset := (page - 1) * pageSize
	if err := query.Order("created_at DESC").Limit(pageSize).Offset(offset).
		Find(&tokens).Error; err != nil {
		return nil, 0, ds.HandleError(err)
	}

	return tokens, total, nil
}

// ==================== QUOTA CONSUMPTION ====================

var poolColumns = map[string]struct {
	used  string
	limit string
}{
	shared.PoolGigachat: {used: "gigachat_used", limit: "gigachat_limit"},
	shared.PoolOpenAI:   {used: "openai_used", limit: "openai_limit"},
}

// ConsumePool applies a conditional increment in one statement so that
// concurrent consumers can never push usage past the limit. Zero rows
// affected means the guard failed: inactive token or insufficient quota.
func (ds *PostgresService) ConsumePool(id, pool string, amount int64, ip string) (bool, error) {
	cols, ok := poolColumns[pool]
	if !ok {
		return false, fmt.Errorf("unknown pool: %s", pool)
	}

	now := time.Now()
	updates := map[string]interface{}{
		cols.used:      gorm.Expr(cols.used+" + ?", amount),
		"total_used":   gorm.Expr("total_used + ?", amount),
		"last_used_at": &now,
		"updated_at":   now,
	}
	if ip != "" {
		updates["last_known_ip"] = ip
	}

	res := ds.db.Model(&model.AccessToken{}).
		Where("id = ? AND is_active = ?", id, true).
		Where(fmt.Sprintf("%s = -1 OR %s + ? <= %s", cols.limit, cols.used, cols.limit), amount).
		Updates(updates)
	if res.Error != nil {
		return false, ds.HandleError(res.Error)
	}

	return res.RowsAffected > 0, nil
}

// ==================== SCHEDULER QUERIES ====================

// BulkExpireTokens deactivates every active token whose expiry has passed.
// Perpetual tokens carry a NULL expiry and are never touched.
func (ds *PostgresService) BulkExpireTokens(now time.Time) (int64, error) {
	res := ds.db.Model(&model.AccessToken{}).
		Where("is_active = ? AND expires_at IS NOT NULL AND expires_at < ?", true, now).
		Updates(map[string]interface{}{
			"is_active":  false,
			"updated_at": now,
		})
	if res.Error != nil {
		return 0, ds.HandleError(res.Error)
	}
	return res.RowsAffected, nil
}

func (ds *PostgresService) GetTokensDueForRenewal(now time.Time, tiers []string) ([]model.AccessToken, error) {
	var tokens []model.AccessToken
	err := ds.db.Where("is_active = ? AND next_renewal IS NOT NULL AND next_renewal <= ? AND tier IN ?",
		true, now, tiers).
		Find(&tokens).Error
	if err != nil {
		return nil, ds.HandleError(err)
	}
	return tokens, nil
}

// RenewToken resets the pool counters and advances both the renewal marker
// and the expiry to the next period boundary. The next_renewal guard keeps
// a duplicated run from resetting twice.
func (ds *PostgresService) RenewToken(id string, now, nextRenewal time.Time) (bool, error) {
	res := ds.db.Model(&model.AccessToken{}).
		Where("id = ? AND is_active = ? AND next_renewal IS NOT NULL AND next_renewal <= ?", id, true, now).
		Updates(map[string]interface{}{
			"gigachat_used": 0,
			"openai_used":   0,
			"next_renewal":  &nextRenewal,
			"expires_at":    &nextRenewal,
			"updated_at":    now,
		})
	if res.Error != nil {
		return false, ds.HandleError(res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (ds *PostgresService) CountPrunableTokens(cutoff time.Time) (int64, error) {
	var count int64
	err := ds.db.Model(&model.AccessToken{}).
		Where("is_active = ? AND expires_at IS NOT NULL AND expires_at < ?", false, cutoff).
		Count(&count).Error
	if err != nil {
		return 0, ds.HandleError(err)
	}
	return count, nil
}

// PruneTokens deletes long-dead expired tokens. Perpetual tokens (NULL
// expiry) are excluded even when deactivated by an operator.
func (ds *PostgresService) PruneTokens(cutoff time.Time) (int64, error) {
	res := ds.db.Where("is_active = ? AND expires_at IS NOT NULL AND expires_at < ?", false, cutoff).
		Delete(&model.AccessToken{})
	if res.Error != nil {
		return 0, ds.HandleError(res.Error)
	}
	return res.RowsAffected, nil
}

// ==================== SECURITY EVENT METHODS ====================

func (ds *PostgresService) CreateSecurityEvent(event *model.SecurityEvent) error {
	if event.ID == "" {
		id, _ := uuid.NewV7()
		event.ID = id.String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	if err := ds.db.Create(event).Error; err != nil {
		return ds.HandleError(err)
	}
	return nil
}

func (ds *PostgresService) GetUnarchivedEvents(before time.Time, limit int) ([]model.SecurityEvent, error) {
	var events []model.SecurityEvent
	err := ds.db.Where("archived = ? AND created_at < ?", false, before).
		Order("created_at ASC").Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, ds.HandleError(err)
	}
	return events, nil
}

func (ds *PostgresService) MarkEventsArchived(ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	err := ds.db.Model(&model.SecurityEvent{}).
		Where("id IN ?", ids).
		Update("archived", true).Error
	if err != nil {
		return ds.HandleError(err)
	}
	return nil
}

func (ds *PostgresService) GetRecentEvents(identity string, since time.Time, limit int) ([]model.SecurityEvent, error) {
	var events []model.SecurityEvent
	query := ds.db.Where("created_at >= ?", since)
	if identity != "" {
		query = query.Where("identity = ?", identity)
	}

	err := query.Order("created_at DESC").Limit(limit).Find(&events).Error
	if err != nil {
		return nil, ds.HandleError(err)
	}
	return events, nil
}

// ==================== ADMIN METHODS ====================

func (ds *PostgresService) GetAdminByUsername(username string) (*model.AdminUser, error) {
	var admin model.AdminUser
	if err := ds.db.Where("username = ? AND is_active = ?", username, true).First(&admin).Error; err != nil {
		return nil, ds.HandleError(err)
	}
	return &admin, nil
}

func (ds *PostgresService) UpdateAdminLastLogin(adminID string) error {
	now := time.Now()
	return ds.db.Model(&model.AdminUser{}).Where("id = ?", adminID).Updates(map[string]interface{}{
		"last_login": &now,
		"updated_at": now,
	}).Error
}
