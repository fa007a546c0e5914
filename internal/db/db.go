package db

import (
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"workshop-tracker-backend/config"
	"workshop-tracker-backend/internal/model"
)

// defaultStages is the production process seeded on first run. Positions are
// 1-based; the validate flow advances through them in order.
var defaultStages = []model.StageDefinition{
	{Name: "material_collection", Label: "Collecte matériel", Position: 1, EstimatedDurationHours: 8, RequiredRole: model.RoleSupervisor},
	{Name: "assembly", Label: "Montage", Position: 2, EstimatedDurationHours: 24, RequiredRole: model.RoleAssemblyTech},
	{Name: "testing", Label: "Tests", Position: 3, EstimatedDurationHours: 8, RequiredRole: model.RoleTestingTech},
	{Name: "delivery", Label: "Livraison", Position: 4, EstimatedDurationHours: 4, RequiredRole: model.RoleDeliveryTech},
	{Name: "installation", Label: "Installation", Position: 5, EstimatedDurationHours: 8, RequiredRole: model.RoleInstallationTech},
}

// Init initializes the database connection and runs migrations.
func Init(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "postgres", "":
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetimeMinutes > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)
	}

	log.Println("Running database migrations...")
	if err := Migrate(db); err != nil {
		return nil, err
	}

	log.Println("Database initialization complete.")
	return db, nil
}

// Migrate runs schema migrations and seeds the stage definitions. It is
// exported so tests can prepare an in-memory database the same way.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.User{},
		&model.Client{},
		&model.StageDefinition{},
		&model.Machine{},
		&model.WorkflowStage{},
		&model.StageHistory{},
		&model.PushSubscription{},
	); err != nil {
		return fmt.Errorf("automigrate failed: %w", err)
	}

	return seedStageDefinitions(db)
}

// seedStageDefinitions inserts the default process stages when missing.
// Existing definitions are left untouched.
func seedStageDefinitions(db *gorm.DB) error {
	for _, def := range defaultStages {
		var existing model.StageDefinition
		err := db.Where("name = ?", def.Name).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if err := db.Create(&def).Error; err != nil {
				return fmt.Errorf("failed to seed stage %q: %w", def.Name, err)
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to check stage %q: %w", def.Name, err)
		}
	}
	return nil
}

// SeedAdmin creates the bootstrap administrator account when no user with the
// configured email exists. A blank email or password disables seeding.
func SeedAdmin(db *gorm.DB, cfg *config.SeedConfig) error {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return nil
	}

	var count int64
	if err := db.Model(&model.User{}).Where("email = ?", cfg.AdminEmail).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to look up seed admin: %w", err)
	}
	if count > 0 {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash seed admin password: %w", err)
	}

	admin := model.User{
		Username:       cfg.AdminUsername,
		Email:          cfg.AdminEmail,
		PasswordHash:   string(hash),
		Role:           model.RoleAdmin,
		StageAccess:    model.StageAccessForRole[model.RoleAdmin],
		IsActive:       true,
		CanValidateAll: true,
	}
	if err := db.Create(&admin).Error; err != nil {
		return fmt.Errorf("failed to create seed admin: %w", err)
	}
	log.Printf("Seeded administrator account %s (%s)", admin.Username, admin.Email)
	return nil
}
