package cmd

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/frahmantamala/cardspend/internal/user"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed the database with sample data for development and testing purposes.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(".")
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		sqlDB, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}

		db, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: sqlDB.DB}), &gorm.Config{})
		if err != nil {
			log.Fatalf("failed to open gorm connection: %v", err)
		}

		if clearData {
			if err := db.Exec("DELETE FROM users").Error; err != nil {
				log.Fatalf("failed to clear users: %v", err)
			}
			fmt.Println("Cleared users table")
		}

		password := "password"
		hash, _ := bcrypt.GenerateFromPassword([]byte(password), cfg.Security.BCryptCost)

		seedUsers := []user.User{
			{Name: "Tarun", Email: "tarun@mail.com", Role: user.RoleSuperAdmin},
			{Name: "Priya MIS", Email: "priya.mis@mail.com", Role: user.RoleMISManager},
			{Name: "Raghav", Email: "raghav@mail.com", Role: user.RoleServiceHandler, BusinessUnit: "Wytlabs"},
			{Name: "Asha Admin", Email: "asha@mail.com", Role: user.RoleBusinessUnitAdmin, BusinessUnit: "Wytlabs"},
			{Name: "John Doe", Email: "john.doe@mail.com", Role: user.RoleSPOC, BusinessUnit: "Collabx"},
		}

		for _, seed := range seedUsers {
			var exists int64
			db.Model(&user.User{}).Where("email = ?", seed.Email).Count(&exists)
			if exists > 0 {
				fmt.Printf("user %s already exists, skipping\n", seed.Email)
				continue
			}

			now := time.Now()
			seed.ID = uuid.NewString()
			seed.PasswordHash = string(hash)
			seed.IsActive = true
			seed.CreatedAt = now
			seed.UpdatedAt = now

			if err := db.Create(&seed).Error; err != nil {
				log.Fatalf("failed to insert user %s: %v", seed.Email, err)
			}
			fmt.Printf("Seeded %s user: %s\n", seed.Role, seed.Email)
		}
	},
}
